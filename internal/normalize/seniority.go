package normalize

import (
	"regexp"
	"strings"

	"jobhunter/aggregator-service/internal/model"
)

// seniorityPatterns are checked in priority order, most senior first, so
// "Head of Engineering (Senior)" resolves to head.
var seniorityPatterns = []struct {
	level    model.Seniority
	keywords []string
}{
	{model.SeniorityHead, []string{"head of", "director", "directeur", "direktor", "chef de"}},
	{model.SeniorityLead, []string{"lead", "leiter", "team lead", "chef d'équipe", "teamleiter"}},
	{model.SenioritySenior, []string{"senior", "sr.", "experienced", "erfahren", "expérimenté"}},
	{model.SeniorityMid, []string{"mid-level", "mid level", "confirmé", "confirmed"}},
	{model.SeniorityJunior, []string{"junior", "jr.", "anfänger", "débutant"}},
	{model.SeniorityIntern, []string{"intern", "internship", "praktikant", "praktikum", "stage", "stagiaire", "trainee"}},
}

// InferSeniority classifies the title into a seniority tier and returns
// the title with the matched marker removed, so "Senior Go Engineer" and
// "Go Engineer" carry the same canonical role name. Titles with no
// recognizable marker return "" and the title unchanged; they match any
// profile tier.
func InferSeniority(title string) (model.Seniority, string) {
	t := strings.ToLower(title)
	if t == "" {
		return "", title
	}
	for _, p := range seniorityPatterns {
		for _, kw := range p.keywords {
			if strings.Contains(t, kw) {
				return p.level, stripMarker(title, kw)
			}
		}
	}
	return "", title
}

// stripMarker removes every occurrence of the matched keyword,
// case-insensitively, and tidies the leftover whitespace and separators.
// A title that was nothing but the marker stays intact rather than
// collapsing to the empty string.
func stripMarker(title, keyword string) string {
	re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(keyword))
	stripped := re.ReplaceAllString(title, " ")
	stripped = strings.TrimSpace(whitespaceRE.ReplaceAllString(stripped, " "))
	stripped = strings.Trim(stripped, "-–,/ ")
	if stripped == "" {
		return title
	}
	return stripped
}
