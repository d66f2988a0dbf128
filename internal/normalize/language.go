package normalize

import (
	"github.com/abadojack/whatlanggo"
)

// Languages a Swiss posting can be classified as. Anything else stays
// unclassified rather than guessing.
var supportedLanguages = map[string]bool{
	"de": true, "fr": true, "en": true, "it": true,
}

const (
	// languageMinConfidence rejects low-certainty detections; a wrong
	// language is worse for matching than no language.
	languageMinConfidence = 0.7
	// languageMinTextLen is the minimum combined text length for detection
	// to be meaningful.
	languageMinTextLen = 50
)

// DetectLanguage classifies title+description as de, fr, en or it. Returns
// "" when the text is too short, the detector is unsure, or the language is
// outside the supported set.
func DetectLanguage(title, description string) string {
	text := title + " " + description
	if len(text) < languageMinTextLen {
		return ""
	}

	info := whatlanggo.Detect(text)
	if info.Confidence < languageMinConfidence {
		return ""
	}
	code := info.Lang.Iso6391()
	if !supportedLanguages[code] {
		return ""
	}
	return code
}
