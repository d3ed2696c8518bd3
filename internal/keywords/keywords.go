package keywords

import "github.com/sells-group/storedir/internal/model"

// LegacyCategories is the category set searched when a run names none.
var LegacyCategories = []model.Category{
	model.CategoryGeneral,
	model.CategoryHardware,
	model.CategoryPaint,
}

// Phrases returns the ordered, de-duplicated search phrases for the given
// categories in country c. An empty category list means LegacyCategories.
// Categories without phrases for c are skipped.
func Phrases(c Country, categories []model.Category) []string {
	if len(categories) == 0 {
		categories = LegacyCategories
	}
	e := entryFor(c)

	seen := make(map[string]bool)
	var out []string
	for _, cat := range categories {
		for _, p := range e.phrases[cat] {
			key := Fold(p)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, p)
		}
	}
	return out
}

// ParseCategories converts names to categories, returning the names that
// did not match.
func ParseCategories(names []string) ([]model.Category, []string) {
	var (
		cats    []model.Category
		invalid []string
	)
	for _, n := range names {
		c, ok := model.ParseCategory(Fold(n))
		if !ok {
			invalid = append(invalid, n)
			continue
		}
		cats = append(cats, c)
	}
	return cats, invalid
}
