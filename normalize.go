package cascade

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeQuery folds text for matching and cache keys: surrounding space is
// trimmed, inner runs of space collapsed, case and diacritics removed, so
// "  Córdoba " and "cordoba" share a key.
func NormalizeQuery(text string) string {
	return strings.Join(strings.Fields(fold(text)), " ")
}

func fold(text string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, text)
	if err != nil {
		out = text
	}
	return strings.ToLower(out)
}

// orderByRelevance moves entities whose folded display name contains query to
// the front, keeping server order within each group.
func orderByRelevance(entities []Entity, query string) []Entity {
	if query == "" || len(entities) < 2 {
		return entities
	}
	matched := make([]Entity, 0, len(entities))
	rest := make([]Entity, 0, len(entities))
	for _, entity := range entities {
		if strings.Contains(NormalizeQuery(entity.DisplayName), query) || strings.Contains(NormalizeQuery(entity.Code), query) {
			matched = append(matched, entity)
			continue
		}
		rest = append(rest, entity)
	}
	return append(matched, rest...)
}
