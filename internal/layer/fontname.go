package layer

import "strings"

var weightTokens = []struct {
	token  string
	weight int
}{
	{"extralight", 200},
	{"ultralight", 200},
	{"semibold", 600},
	{"demibold", 600},
	{"extrabold", 800},
	{"ultrabold", 800},
	{"thin", 100},
	{"hairline", 100},
	{"light", 300},
	{"medium", 500},
	{"bold", 700},
	{"heavy", 800},
	{"black", 900},
}

// ParseFontName splits a PostScript or file name such as
// "Inter-SemiBoldItalic" into family, weight and style. The family is
// everything before the first '-'.
func ParseFontName(name string) (string, int, FontStyle) {
	family, suffix, _ := strings.Cut(strings.TrimSpace(name), "-")
	lower := strings.ToLower(suffix)

	style := StyleNormal
	if strings.Contains(lower, "italic") || strings.Contains(lower, "oblique") {
		style = StyleItalic
	}
	weight := DefaultFontWeight
	for _, w := range weightTokens {
		if strings.Contains(lower, w.token) {
			weight = w.weight
			break
		}
	}
	return family, weight, style
}

// FamilyKey folds a family name for lookups: case, spaces, '-' and '_'
// are ignored.
func FamilyKey(family string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(family) {
		switch r {
		case ' ', '-', '_':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
