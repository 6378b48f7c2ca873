// Package language holds the static catalog of caption languages the service
// can translate into.
package language

// Language describes one supported caption language.
type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
	Flag string `json:"flag"`
}

var catalog = []Language{
	{Code: "ar", Name: "Arabic", Flag: "🇸🇦"},
	{Code: "en", Name: "English", Flag: "🇺🇸"},
	{Code: "es", Name: "Spanish", Flag: "🇪🇸"},
	{Code: "fr", Name: "French", Flag: "🇫🇷"},
	{Code: "de", Name: "German", Flag: "🇩🇪"},
	{Code: "ja", Name: "Japanese", Flag: "🇯🇵"},
	{Code: "nl", Name: "Dutch", Flag: "🇳🇱"},
	{Code: "ur", Name: "Urdu", Flag: "🇵🇰"},
	{Code: "tr", Name: "Turkish", Flag: "🇹🇷"},
	{Code: "id", Name: "Indonesian", Flag: "🇮🇩"},
	{Code: "ms", Name: "Malay", Flag: "🇲🇾"},
}

var byCode = func() map[string]Language {
	m := make(map[string]Language, len(catalog))
	for _, lang := range catalog {
		m[lang.Code] = lang
	}
	return m
}()

// Supported returns the full catalog in a stable order.
func Supported() []Language {
	return append([]Language(nil), catalog...)
}

// Lookup returns the language for an ISO 639-1 code.
func Lookup(code string) (Language, bool) {
	lang, ok := byCode[code]
	return lang, ok
}

// IsSupported reports whether the code names a catalog language.
func IsSupported(code string) bool {
	_, ok := byCode[code]
	return ok
}
