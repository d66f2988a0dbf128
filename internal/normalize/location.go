package normalize

import "strings"

// Location strings that mean "no fixed place of work".
var remoteSynonyms = map[string]bool{
	"worldwide": true, "remote": true, "anywhere": true, "global": true,
	"n/a": true, "-": true, "various": true, "multiple countries": true,
	"all regions": true, "international": true, "any location": true,
	"work from home": true, "wfh": true, "distributed": true,
	"location independent": true,
}

// Swiss canton name variants (DE/FR/IT/EN, lowercase) to two-letter codes.
var swissCantons = map[string]string{
	"zurich": "ZH", "zürich": "ZH", "zh": "ZH",
	"bern": "BE", "berne": "BE", "be": "BE",
	"luzern": "LU", "lucerne": "LU", "lu": "LU",
	"uri": "UR", "ur": "UR",
	"schwyz": "SZ", "sz": "SZ",
	"obwalden": "OW", "ow": "OW",
	"nidwalden": "NW", "nw": "NW",
	"glarus": "GL", "gl": "GL",
	"zug": "ZG", "zg": "ZG",
	"fribourg": "FR", "freiburg": "FR",
	"solothurn": "SO", "so": "SO",
	"basel-stadt": "BS", "basel": "BS", "bs": "BS", "bâle": "BS",
	"basel-landschaft": "BL", "bl": "BL",
	"schaffhausen": "SH", "sh": "SH",
	"appenzell ausserrhoden": "AR", "ar": "AR",
	"appenzell innerrhoden": "AI",
	"st. gallen": "SG", "st.gallen": "SG", "sg": "SG", "saint-gall": "SG",
	"graubünden": "GR", "graubunden": "GR", "grisons": "GR", "gr": "GR",
	"aargau": "AG", "argovie": "AG", "ag": "AG",
	"thurgau": "TG", "thurgovie": "TG", "tg": "TG",
	"ticino": "TI", "tessin": "TI", "ti": "TI",
	"vaud": "VD", "waadt": "VD", "vd": "VD",
	"valais": "VS", "wallis": "VS", "vs": "VS",
	"neuchâtel": "NE", "neuchatel": "NE", "neuenburg": "NE", "ne": "NE",
	"genève": "GE", "geneve": "GE", "geneva": "GE", "genf": "GE", "ge": "GE",
	"jura": "JU", "ju": "JU",
}

// CleanLocation standardizes a location string; remote-style synonyms
// collapse to a single canonical label.
func CleanLocation(location string) string {
	stripped := strings.TrimSpace(location)
	if stripped == "" {
		return ""
	}
	if remoteSynonyms[strings.ToLower(stripped)] {
		return "Remote"
	}
	return stripped
}

// IsRemoteLocation reports whether the raw location string means remote.
func IsRemoteLocation(location string) bool {
	return remoteSynonyms[strings.ToLower(strings.TrimSpace(location))]
}

// ExtractCanton maps a location string to a Swiss canton code, or "" when
// no canton can be recognized. Substring matches only use names longer than
// two characters to avoid code collisions inside unrelated words.
func ExtractCanton(location string) string {
	loc := strings.ToLower(strings.TrimSpace(location))
	if loc == "" {
		return ""
	}
	if code, ok := swissCantons[loc]; ok {
		return code
	}
	for name, code := range swissCantons {
		if len(name) > 2 && strings.Contains(loc, name) {
			return code
		}
	}
	return ""
}

// ExtractCity returns the leading segment of a comma-separated location,
// which Swiss boards consistently use for the city.
func ExtractCity(location string) string {
	stripped := strings.TrimSpace(location)
	if stripped == "" || remoteSynonyms[strings.ToLower(stripped)] {
		return ""
	}
	city, _, _ := strings.Cut(stripped, ",")
	return strings.TrimSpace(city)
}
