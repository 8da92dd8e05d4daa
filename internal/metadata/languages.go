package metadata

import (
	"fmt"
	"strings"
)

// Language is one row of the static language table.
type Language struct {
	English string
	Code    string // platform code
	ISO     string // ISO-639-2/B legacy code
}

// NullLanguage is the sentinel for a code the platform has no language for.
const NullLanguage = "NULL"

// DefaultLanguage is used when an archive carries no language tag.
const DefaultLanguage = "en"

var languages = []Language{
	{"English", "en", "eng"},
	{"Japanese", "ja", "jpn"},
	{"Japanese (Romaji)", "ja-ro", "jpn"},
	{"Polish", "pl", "pol"},
	{"Serbo-Croatian", "sh", "hrv"},
	{"Dutch", "nl", "dut"},
	{"Italian", "it", "ita"},
	{"Russian", "ru", "rus"},
	{"German", "de", "ger"},
	{"Hungarian", "hu", "hun"},
	{"French", "fr", "fre"},
	{"Finnish", "fi", "fin"},
	{"Vietnamese", "vi", "vie"},
	{"Greek", "el", "gre"},
	{"Bulgarian", "bg", "bul"},
	{"Spanish (Es)", "es", "spa"},
	{"Portuguese (Br)", "pt-br", "por"},
	{"Portuguese (Pt)", "pt", "por"},
	{"Swedish", "sv", "swe"},
	{"Arabic", "ar", "ara"},
	{"Danish", "da", "dan"},
	{"Chinese (Simp)", "zh", "chi"},
	{"Chinese (Romaji)", "zh-ro", "chi"},
	{"Bengali", "bn", "ben"},
	{"Romanian", "ro", "rum"},
	{"Czech", "cs", "cze"},
	{"Mongolian", "mn", "mon"},
	{"Turkish", "tr", "tur"},
	{"Indonesian", "id", "ind"},
	{"Korean", "ko", "kor"},
	{"Korean (Romaji)", "ko-ro", "kor"},
	{"Spanish (LATAM)", "es-la", "spa"},
	{"Persian", "fa", "per"},
	{"Malay", "ms", "may"},
	{"Thai", "th", "tha"},
	{"Catalan", "ca", "cat"},
	{"Filipino", "tl", "fil"},
	{"Chinese (Trad)", "zh-hk", "chi"},
	{"Ukrainian", "uk", "ukr"},
	{"Burmese", "my", "bur"},
	{"Lithuanian", "lt", "lit"},
	{"Hebrew", "he", "heb"},
	{"Hindi", "hi", "hin"},
	{"Norwegian", "no", "nor"},
	{"Other", NullLanguage, NullLanguage},
}

// Languages returns a copy of the language table.
func Languages() []Language {
	out := make([]Language, len(languages))
	copy(out, languages)
	return out
}

// Disambiguator picks one language when a free-text tag matches several.
type Disambiguator interface {
	Choose(input string, candidates []Language) (Language, error)
}

// DisambiguatorFunc adapts a function to Disambiguator.
type DisambiguatorFunc func(input string, candidates []Language) (Language, error)

func (f DisambiguatorFunc) Choose(input string, candidates []Language) (Language, error) {
	return f(input, candidates)
}

// FailClosed refuses every ambiguous language. Used when nobody can be asked.
var FailClosed Disambiguator = DisambiguatorFunc(func(input string, candidates []Language) (Language, error) {
	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.English
	}
	return Language{}, fmt.Errorf("%w: %q matches %s", ErrAmbiguousLanguage, input, strings.Join(names, ", "))
})

// ResolveLanguage turns a raw language tag into a platform code. The result
// may be NullLanguage for legacy codes the platform does not know.
func ResolveLanguage(raw string, d Disambiguator) (string, error) {
	raw = strings.TrimSpace(raw)
	lower := strings.ToLower(raw)

	switch {
	case raw == "":
		return DefaultLanguage, nil
	case lower == "eng" || lower == "en":
		return DefaultLanguage, nil
	case len(raw) < 2:
		return "", fmt.Errorf("%w: %q", ErrUnresolvedLanguage, raw)
	}

	for _, l := range languages {
		if l.Code != NullLanguage && strings.EqualFold(l.Code, raw) {
			return l.Code, nil
		}
	}

	if len(raw) == 3 {
		for _, l := range languages {
			if l.ISO == lower {
				return l.Code, nil
			}
		}
		return NullLanguage, nil
	}

	var matches []Language
	for _, l := range languages {
		if strings.Contains(strings.ToLower(l.English), lower) {
			matches = append(matches, l)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %q", ErrUnresolvedLanguage, raw)
	case 1:
		return matches[0].Code, nil
	}

	if d == nil {
		d = FailClosed
	}
	chosen, err := d.Choose(raw, matches)
	if err != nil {
		return "", err
	}
	for _, m := range matches {
		if m == chosen {
			return chosen.Code, nil
		}
	}
	return "", fmt.Errorf("%w: %q is not one of the offered languages", ErrUnresolvedLanguage, chosen.English)
}
