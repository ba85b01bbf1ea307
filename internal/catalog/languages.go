package catalog

// Language is a supported translation target.
type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
	Flag string `json:"flag"`
}

var languages = []Language{
	{Code: "en", Name: "English", Flag: "🇺🇸"},
	{Code: "es", Name: "Spanish", Flag: "🇪🇸"},
	{Code: "de", Name: "German", Flag: "🇩🇪"},
	{Code: "hi", Name: "Hindi", Flag: "🇮🇳"},
	{Code: "ja", Name: "Japanese", Flag: "🇯🇵"},
}

// Languages returns the supported target languages in display order.
func Languages() []Language {
	return append([]Language(nil), languages...)
}

// LookupLanguage finds a supported language by code.
func LookupLanguage(code string) (Language, bool) {
	for _, l := range languages {
		if l.Code == code {
			return l, true
		}
	}
	return Language{}, false
}

// LanguageName returns the display name for code, or the code itself when it
// is not a supported language.
func LanguageName(code string) string {
	if l, ok := LookupLanguage(code); ok {
		return l.Name
	}
	return code
}

// SupportedCodes keeps only codes present in the language list, preserving
// order and dropping duplicates.
func SupportedCodes(codes []string) []string {
	seen := make(map[string]bool, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		if seen[c] {
			continue
		}
		if _, ok := LookupLanguage(c); ok {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}
