package language

import "strings"

type entry struct {
	code2   string   // ISO 639-1 (2-letter)
	alt3    []string // ISO 639-2 forms accepted in config ("fra" and "fre")
	display string   // Human-readable name
	words   []string // Full word forms (e.g. "english")
}

var languages = []entry{
	{"en", []string{"eng"}, "English", []string{"english"}},
	{"es", []string{"spa"}, "Spanish", []string{"spanish"}},
	{"fr", []string{"fra", "fre"}, "French", []string{"french"}},
	{"de", []string{"deu", "ger"}, "German", []string{"german"}},
	{"it", []string{"ita"}, "Italian", []string{"italian"}},
	{"pt", []string{"por"}, "Portuguese", []string{"portuguese"}},
	{"ja", []string{"jpn"}, "Japanese", []string{"japanese"}},
	{"ko", []string{"kor"}, "Korean", []string{"korean"}},
	{"zh", []string{"zho", "chi"}, "Chinese", []string{"chinese"}},
	{"ru", []string{"rus"}, "Russian", []string{"russian"}},
	{"ar", []string{"ara"}, "Arabic", []string{"arabic"}},
	{"hi", []string{"hin"}, "Hindi", []string{"hindi"}},
	{"nl", []string{"nld", "dut"}, "Dutch", []string{"dutch"}},
	{"pl", []string{"pol"}, "Polish", []string{"polish"}},
	{"sv", []string{"swe"}, "Swedish", []string{"swedish"}},
	{"da", []string{"dan"}, "Danish", []string{"danish"}},
	{"no", []string{"nor"}, "Norwegian", []string{"norwegian"}},
	{"fi", []string{"fin"}, "Finnish", []string{"finnish"}},
}

var index map[string]*entry

func init() {
	index = make(map[string]*entry, len(languages)*4)
	for i := range languages {
		e := &languages[i]
		index[e.code2] = e
		for _, alt := range e.alt3 {
			index[alt] = e
		}
		for _, w := range e.words {
			index[w] = e
		}
	}
}

func lookup(code string) *entry {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return nil
	}
	return index[code]
}

// ToISO2 converts a recognized language code or word to ISO 639-1.
// Unrecognized 2-letter codes pass through so less common hints still
// reach the transcription model; anything else collapses to empty, which
// callers treat as auto-detect.
func ToISO2(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return ""
	}
	if e := lookup(code); e != nil {
		return e.code2
	}
	if len(code) == 2 {
		return code
	}
	return ""
}

// DisplayName returns a human-readable language name for a recognized
// code. Returns "Unknown" for empty input, or the uppercased code for
// unrecognized input.
func DisplayName(code string) string {
	if strings.TrimSpace(code) == "" {
		return "Unknown"
	}
	if e := lookup(code); e != nil {
		return e.display
	}
	return strings.ToUpper(strings.TrimSpace(code))
}
