package catalog

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/YasiruR/mule-sync/domain"
)

// Keywords tokenizes a display name into the lower-cased alphanumeric runs
// that are long enough to be indexed, in order of first appearance
func Keywords(name string) []string {
	tokens := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]struct{}, len(tokens))
	var kws []string
	for _, t := range tokens {
		if utf8.RuneCountInString(t) < domain.MinKeywordLength {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		kws = append(kws, t)
	}

	return kws
}
