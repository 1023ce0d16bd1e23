package catalog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeywords(t *testing.T) {
	tests := []struct {
		name string
		want []string
	}{
		{`movie_2024.mkv`, []string{`movie`, `2024`, `mkv`}},
		{`The.Big-Show  S01E02`, []string{`the`, `big`, `show`, `s01e02`}},
		{`a bc def`, []string{`def`}},
		{`Mkv mkv MKV`, []string{`mkv`}},
		{`Ünïcode—Tïtle`, []string{`ünïcode`, `tïtle`}},
		{`--__..`, nil},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, Keywords(tc.name), tc.name)
	}
}

func TestKeywordsAreRederivable(t *testing.T) {
	name := `Ubuntu-24.04_desktop(amd64).iso`
	for _, kw := range Keywords(name) {
		assert.Contains(t, strings.ToLower(name), kw)
		assert.GreaterOrEqual(t, len([]rune(kw)), 3)
	}
}
