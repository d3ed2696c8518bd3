package keywords

import "github.com/sells-group/storedir/internal/model"

type entry struct {
	locale   Locale
	phrases  map[model.Category][]string
	fallback bool
}

var spanishPhrases = map[model.Category][]string{
	model.CategoryGeneral:  {"materiales de construcción", "corralón de materiales"},
	model.CategoryHardware: {"ferretería"},
	model.CategoryPaint:    {"pinturería", "tienda de pinturas"},
	model.CategoryLumber:   {"maderera", "maderería"},
	model.CategoryPlumbing: {"sanitarios y plomería"},
}

// table is immutable after init.
var table = map[Country]entry{
	Brazil: {
		locale:   Locale{Language: "pt-BR", Region: "BR"},
		fallback: true,
		phrases: map[model.Category][]string{
			model.CategoryGeneral:  {"loja de material de construção", "materiais de construção"},
			model.CategoryHardware: {"loja de ferragens", "ferragens"},
			model.CategoryPaint:    {"loja de tintas"},
			model.CategoryLumber:   {"madeireira"},
			model.CategoryPlumbing: {"materiais hidráulicos"},
		},
	},
	Portugal: {
		locale: Locale{Language: "pt-PT", Region: "PT"},
		phrases: map[model.Category][]string{
			model.CategoryGeneral:  {"materiais de construção"},
			model.CategoryHardware: {"loja de ferragens"},
			model.CategoryPaint:    {"loja de tintas"},
			model.CategoryLumber:   {"madeiras"},
			model.CategoryPlumbing: {"material sanitário"},
		},
	},
	Argentina: {locale: Locale{Language: "es-AR", Region: "AR"}, phrases: spanishPhrases},
	Mexico:    {locale: Locale{Language: "es-MX", Region: "MX"}, phrases: spanishPhrases},
	Chile:     {locale: Locale{Language: "es-CL", Region: "CL"}, phrases: spanishPhrases},
	Colombia:  {locale: Locale{Language: "es-CO", Region: "CO"}, phrases: spanishPhrases},
	Spain:     {locale: Locale{Language: "es-ES", Region: "ES"}, phrases: spanishPhrases},
	UnitedStates: {
		locale: Locale{Language: "en-US", Region: "US"},
		phrases: map[model.Category][]string{
			model.CategoryGeneral:  {"building supply store"},
			model.CategoryHardware: {"hardware store"},
			model.CategoryPaint:    {"paint store"},
			model.CategoryLumber:   {"lumber yard"},
			model.CategoryPlumbing: {"plumbing supply store"},
		},
	},
}

func entryFor(c Country) entry {
	if e, ok := table[c]; ok {
		return e
	}
	for _, e := range table {
		if e.fallback {
			return e
		}
	}
	return table[FallbackCode]
}
