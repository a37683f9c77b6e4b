package chart

import "strings"

// Kind distinguishes the mini price chart from the advanced chart.
type Kind int

const (
	KindPrice Kind = iota + 1
	KindChart
)

func (k Kind) String() string {
	switch k {
	case KindPrice:
		return "price"
	case KindChart:
		return "chart"
	default:
		return "unknown"
	}
}

// StudiesSeparator joins study names in captions, commands and callback tokens.
const StudiesSeparator = ";"

// Query is the canonical request for one chart image.
// An empty field means the value is absent.
type Query struct {
	Symbol   string
	Interval string
	Studies  []string
	Style    string
}

// StudiesString returns the studies joined with StudiesSeparator.
func (q Query) StudiesString() string {
	return strings.Join(q.Studies, StudiesSeparator)
}

// Build fills every absent field of partial from defaults. The symbol is upper-cased.
func Build(defaults, partial Query) Query {
	out := Query{
		Symbol:   firstNonEmpty(partial.Symbol, defaults.Symbol),
		Interval: firstNonEmpty(partial.Interval, defaults.Interval),
		Style:    firstNonEmpty(partial.Style, defaults.Style),
	}
	out.Symbol = strings.ToUpper(out.Symbol)

	studies := partial.Studies
	if len(studies) == 0 {
		studies = defaults.Studies
	}
	if len(studies) > 0 {
		out.Studies = append([]string(nil), studies...)
	}
	return out
}

// SplitStudies splits a separator-joined list, dropping empty names.
func SplitStudies(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(raw, StudiesSeparator) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return strings.TrimSpace(b)
}
