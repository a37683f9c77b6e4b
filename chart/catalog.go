package chart

import (
	coreconfig "github.com/m3rciful/chartbot/core/config"
)

// Shortcut is one symbol-selection button. Studies and Style override the
// current query when set.
type Shortcut struct {
	Text    string
	Symbol  string
	Studies []string
	Style   string
}

// Settings holds the defaults and keyboard catalog of one kind.
type Settings struct {
	Default   Query
	Intervals []string
	Shortcuts [][]Shortcut
}

// Catalog groups the per-kind settings.
type Catalog struct {
	Price Settings
	Chart Settings
}

// For returns the settings of kind k. Unknown kinds get zero settings.
func (c Catalog) For(k Kind) Settings {
	switch k {
	case KindPrice:
		return c.Price
	case KindChart:
		return c.Chart
	}
	return Settings{}
}

// Build merges partial over the defaults of kind k.
func (c Catalog) Build(k Kind, partial Query) Query {
	return Build(c.For(k).Default, partial)
}

// CatalogFromConfig converts the price and chart config sections.
func CatalogFromConfig(cfg *coreconfig.Config) Catalog {
	if cfg == nil {
		return Catalog{}
	}
	return Catalog{
		Price: settingsFromConfig(cfg.Price),
		Chart: settingsFromConfig(cfg.Chart),
	}
}

func settingsFromConfig(kc coreconfig.KindConfig) Settings {
	s := Settings{
		Default: Build(Query{}, Query{
			Symbol:   kc.Default.Symbol,
			Interval: kc.Default.Interval,
			Studies:  kc.Default.Studies,
			Style:    kc.Default.Style,
		}),
		Intervals: append([]string(nil), kc.Intervals...),
	}
	for _, row := range kc.Inputs {
		out := make([]Shortcut, 0, len(row))
		for _, sc := range row {
			out = append(out, Shortcut{
				Text:    sc.Text,
				Symbol:  sc.Symbol,
				Studies: append([]string(nil), sc.Studies...),
				Style:   sc.Style,
			})
		}
		s.Shortcuts = append(s.Shortcuts, out)
	}
	return s
}
