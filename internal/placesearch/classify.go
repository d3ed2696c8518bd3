package placesearch

import (
	"strings"

	"github.com/sells-group/storedir/internal/keywords"
	"github.com/sells-group/storedir/internal/model"
)

// Detection labels for stores that matched nothing.
const DetectionNone = "none"

// nameTerms are folded substrings matched against a store name. Categories
// are checked in model.Categories order so "Tintas e Ferragens" is paint.
var nameTerms = map[model.Category][]string{
	model.CategoryPaint:    {"tinta", "pintura", "pinturer", "paint", "verniz"},
	model.CategoryLumber:   {"madeir", "maderer", "lumber", "serralheria de madeira"},
	model.CategoryPlumbing: {"hidraulic", "plomer", "sanitari", "plumb", "encanamento"},
	model.CategoryHardware: {"ferrag", "ferreter", "hardware", "parafus"},
	model.CategoryGeneral:  {"construc", "home center", "building", "deposito", "corralon", "materiais", "materiales"},
}

// typeTags maps provider type tags to categories.
var typeTags = map[model.Category][]string{
	model.CategoryPaint:    {"paint_store"},
	model.CategoryLumber:   {"lumber_store", "wood_supplier"},
	model.CategoryPlumbing: {"plumbing_supply_store", "plumber"},
	model.CategoryHardware: {"hardware_store"},
	model.CategoryGeneral:  {"home_improvement_store", "building_materials_store", "home_goods_store"},
}

// Classify assigns a category from the store name, then the provider type
// tags. The second return value records what matched: "name:<term>",
// "type:<tag>" or "none".
func Classify(name string, types []string) (model.Category, string) {
	folded := keywords.Fold(name)
	for _, cat := range model.Categories {
		for _, term := range nameTerms[cat] {
			if strings.Contains(folded, term) {
				return cat, "name:" + term
			}
		}
	}

	tags := make(map[string]bool, len(types))
	for _, t := range types {
		tags[TypeTag(t)] = true
	}
	for _, cat := range model.Categories {
		for _, tag := range typeTags[cat] {
			if tags[tag] {
				return cat, "type:" + tag
			}
		}
	}
	return model.CategoryUnknown, DetectionNone
}

// TypeTag normalizes a free-text category label ("Hardware Store") into the
// snake_case tag form used by the places provider.
func TypeTag(s string) string {
	return strings.ReplaceAll(keywords.Fold(s), " ", "_")
}
