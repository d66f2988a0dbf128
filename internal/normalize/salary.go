package normalize

import (
	"regexp"
	"strconv"
	"strings"

	"jobhunter/aggregator-service/internal/model"
)

// Conversion rates to CHF. Rates are deliberately coarse; salary feeds into
// a bounded match sub-score, not accounting.
var currencyToCHF = map[string]float64{
	"CHF": 1.0,
	"EUR": 0.96,
	"USD": 0.88,
	"GBP": 1.12,
}

// Annualization multipliers. Hourly assumes the standard Swiss 2080-hour
// working year.
var periodMultiplier = map[string]int{
	"yearly":  1,
	"monthly": 12,
	"hourly":  2080,
}

var (
	salaryRangeRE  = regexp.MustCompile(`(\d[\d.,']*)\s*[kK]?\s*(?:[-–—]|to)+\s*(\d[\d.,']*)\s*[kK]?`)
	salarySingleRE = regexp.MustCompile(`(\d[\d.,']+)\s*[kK]?`)
	currencyRE     = regexp.MustCompile(`(?i)(CHF|EUR|USD|GBP|€|\$|£)`)
)

var currencySymbols = map[string]string{
	"€": "EUR",
	"$": "USD",
	"£": "GBP",
}

// NormalizeSalary converts whatever salary information the source carried
// into CHF per year. Structured min/max win over free text; missing data
// yields zeros, never an error.
func NormalizeSalary(raw model.RawPosting) (minCHF, maxCHF int, currency, period, original string) {
	currency = strings.ToUpper(strings.TrimSpace(raw.Currency))
	period = strings.ToLower(strings.TrimSpace(raw.Period))
	original = strings.TrimSpace(raw.SalaryText)

	min, max := raw.SalaryMin, raw.SalaryMax
	if min == 0 && max == 0 && original != "" {
		var parsed string
		min, max, parsed = parseSalaryText(original)
		if currency == "" {
			currency = parsed
		}
	}
	if min == 0 && max == 0 {
		return 0, 0, currency, period, original
	}

	rate, ok := currencyToCHF[currency]
	if !ok {
		rate = 1.0
	}
	mult := periodMultiplier[period]
	if mult == 0 {
		mult = 1
	}

	if min > 0 {
		minCHF = int(min * rate * float64(mult))
	}
	if max > 0 {
		maxCHF = int(max * rate * float64(mult))
	}
	return minCHF, maxCHF, currency, period, original
}

// parseSalaryText extracts min, max and currency from free text like
// "CHF 100'000 - 120'000" or "80k-100k EUR". A single value is both
// bounds.
func parseSalaryText(text string) (min, max float64, currency string) {
	if m := currencyRE.FindString(text); m != "" {
		if mapped, ok := currencySymbols[m]; ok {
			currency = mapped
		} else {
			currency = strings.ToUpper(m)
		}
	}

	if m := salaryRangeRE.FindStringSubmatch(text); m != nil {
		return parseSalaryNumber(m[1], text), parseSalaryNumber(m[2], text), currency
	}
	if m := salarySingleRE.FindStringSubmatch(text); m != nil {
		v := parseSalaryNumber(m[1], text)
		return v, v, currency
	}
	return 0, 0, currency
}

// parseSalaryNumber strips thousands separators and applies a "k" suffix
// found anywhere in the surrounding text.
func parseSalaryNumber(raw, context string) float64 {
	cleaned := strings.NewReplacer(",", "", ".", "", "'", "").Replace(strings.TrimSpace(raw))
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	if v < 1000 && strings.Contains(strings.ToLower(context), "k") {
		v *= 1000
	}
	return v
}
