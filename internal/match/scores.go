package match

import (
	"math"
	"sort"
	"strings"
	"time"

	"jobhunter/aggregator-service/internal/model"
)

// SalaryScore rates how the posting's pay compares to the user's target,
// on [0, 1]. Either side missing data is neutral (0.5). A job paying at or
// above the user's midpoint is perfect; between 80% and 100% of it the
// score ramps linearly from 0.5 to 1.0, below that from 0 to 0.5.
func SalaryScore(userMin, userMax *int, jobMin, jobMax int) float64 {
	if userMin == nil && userMax == nil {
		return 0.5
	}
	if jobMin == 0 && jobMax == 0 {
		return 0.5
	}

	uMin, uMax := 0, 0
	if userMin != nil {
		uMin = *userMin
	}
	if userMax != nil {
		uMax = *userMax
	} else {
		uMax = uMin
	}
	userMid := float64(uMin+uMax) / 2

	jMax := jobMax
	if jMax == 0 {
		jMax = jobMin
	}
	jobMid := float64(jobMin+jMax) / 2

	if userMid == 0 || jobMid == 0 {
		return 0.5
	}

	ratio := jobMid / userMid
	switch {
	case ratio >= 1.0:
		return 1.0
	case ratio >= 0.8:
		return 0.5 + (ratio-0.8)*2.5
	default:
		return math.Max(0, ratio/0.8*0.5)
	}
}

// LocationScore rates place-of-work fit on [0, 1]. The remote preference
// dominates: remote-only users score remote postings 1 and everything else
// 0; onsite users score remote postings 0. Otherwise a substring match in
// either direction against the user's target locations wins.
func LocationScore(locations []string, remotePref model.RemotePreference, post *model.CanonicalPosting) float64 {
	if remotePref == model.RemoteOnly {
		if post.Remote {
			return 1.0
		}
		return 0.0
	}
	if post.Remote {
		if remotePref == model.RemoteOnsite {
			return 0.0
		}
		return 1.0
	}

	if len(locations) == 0 {
		return 0.5 // no preference
	}
	if post.Location == "" {
		return 0.3 // unknown location
	}

	jobLoc := strings.ToLower(post.Location)
	for _, loc := range locations {
		l := strings.ToLower(loc)
		if strings.Contains(jobLoc, l) || strings.Contains(l, jobLoc) {
			return 1.0
		}
		// Canton codes match the resolved region directly.
		if post.Region != "" && strings.EqualFold(loc, post.Region) {
			return 1.0
		}
	}
	return 0.0
}

// RecencyScore steps down with posting age: 1.0 within a day, 0.8 within a
// week, 0.5 within two, 0.3 within a month, 0.1 beyond.
func RecencyScore(firstSeen, now time.Time) float64 {
	days := int(now.Sub(firstSeen).Hours() / 24)
	switch {
	case days <= 1:
		return 1.0
	case days <= 7:
		return 0.8
	case days <= 14:
		return 0.5
	case days <= 30:
		return 0.3
	default:
		return 0.1
	}
}

// SkillOverlap compares profile skills with posting tags, case-insensitive,
// returning matched and missing skill lists sorted alphabetically.
func SkillOverlap(userSkills, jobTags []string) (matching, missing []string) {
	userSet := make(map[string]bool, len(userSkills))
	for _, s := range userSkills {
		userSet[strings.ToLower(s)] = true
	}
	seen := make(map[string]bool, len(jobTags))
	for _, t := range jobTags {
		tag := strings.ToLower(t)
		if seen[tag] {
			continue
		}
		seen[tag] = true
		if userSet[tag] {
			matching = append(matching, tag)
		} else {
			missing = append(missing, tag)
		}
	}
	sort.Strings(matching)
	sort.Strings(missing)
	return matching, missing
}

// FinalScore folds the five sub-scores (each [0, 1]) into the weighted
// final score on [0, 100], rounded to one decimal.
func FinalScore(w model.Weights, embedding, llm, salary, location, recency float64) float64 {
	raw := w.Embedding*embedding + w.LLM*llm + w.Salary*salary + w.Location*location + w.Recency*recency
	return math.Round(raw*1000) / 10
}
