// Package callbacks encodes chart requests into inline button data and back.
//
// Token schema, pipe-delimited ASCII with a fixed arity per kind:
//
//	P|SYMBOL|INTERVAL|NONCE
//	PS|SYMBOL|INTERVAL|NONCE
//	C|SYMBOL|INTERVAL|STUDIES|STYLE|NONCE
//	CS|SYMBOL|INTERVAL|STUDIES|STYLE|NONCE
//
// STUDIES are joined by ';' and STUDIES/STYLE may be empty segments. NONCE is
// the last four digits of the wall clock in milliseconds and only keeps
// otherwise identical buttons distinct.
package callbacks

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/m3rciful/chartbot/chart"
)

// MaxLen is the Telegram limit for callback_data.
const MaxLen = 64

// Delimiter separates token fields; no field may contain it.
const Delimiter = "|"

const (
	nonceDigits = 4
	minSegments = 3
)

var (
	ErrTokenTooLong = errors.New("callbacks: token exceeds 64 bytes")
	ErrDelimiter    = errors.New("callbacks: field contains a reserved delimiter")
	ErrUnknownKind  = errors.New("callbacks: unknown token kind")
	ErrMalformed    = errors.New("callbacks: malformed token")
)

// Kind is the token discriminator.
type Kind string

const (
	KindPrice        Kind = "P"
	KindPriceSymbols Kind = "PS"
	KindChart        Kind = "C"
	KindChartSymbols Kind = "CS"
)

// KindFor returns the token kind for a chart kind and the symbol-rows flag.
func KindFor(k chart.Kind, withSymbols bool) Kind {
	switch {
	case k == chart.KindChart && withSymbols:
		return KindChartSymbols
	case k == chart.KindChart:
		return KindChart
	case withSymbols:
		return KindPriceSymbols
	default:
		return KindPrice
	}
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindPrice, KindPriceSymbols, KindChart, KindChartSymbols:
		return true
	}
	return false
}

// Chart maps the token kind onto the chart kind.
func (k Kind) Chart() chart.Kind {
	if k == KindChart || k == KindChartSymbols {
		return chart.KindChart
	}
	return chart.KindPrice
}

// WithSymbols reports whether the reply keeps the symbol rows.
func (k Kind) WithSymbols() bool {
	return k == KindPriceSymbols || k == KindChartSymbols
}

func (k Kind) arity() int {
	if k.Chart() == chart.KindChart {
		return 6
	}
	return 4
}

// Token is a decoded callback.
type Token struct {
	Kind     Kind
	Symbol   string
	Interval string
	Studies  []string
	Style    string
	Nonce    string
}

// Query returns the token fields as a partial query.
func (t Token) Query() chart.Query {
	return chart.Query{
		Symbol:   t.Symbol,
		Interval: t.Interval,
		Studies:  t.Studies,
		Style:    t.Style,
	}
}

// Codec encodes tokens. Now is used for the nonce; nil means time.Now.
type Codec struct {
	Now func() time.Time
}

// NewCodec returns a codec using the wall clock.
func NewCodec() *Codec {
	return &Codec{Now: time.Now}
}

func (c *Codec) nonce() string {
	now := time.Now
	if c != nil && c.Now != nil {
		now = c.Now
	}
	s := strconv.FormatInt(now().UnixMilli(), 10)
	if len(s) > nonceDigits {
		s = s[len(s)-nonceDigits:]
	}
	return s
}

// Encode renders q as a token of the given kind.
// Studies and style are written for chart kinds only.
func (c *Codec) Encode(kind Kind, q chart.Query) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, string(kind))
	}
	symbol := strings.ToUpper(strings.TrimSpace(q.Symbol))
	fields := []string{string(kind), symbol, q.Interval}
	if kind.Chart() == chart.KindChart {
		for _, s := range q.Studies {
			if strings.Contains(s, chart.StudiesSeparator) {
				return "", fmt.Errorf("%w: study %q", ErrDelimiter, s)
			}
		}
		fields = append(fields, q.StudiesString(), q.Style)
	}
	for _, f := range fields[1:] {
		if strings.Contains(f, Delimiter) {
			return "", fmt.Errorf("%w: %q", ErrDelimiter, f)
		}
	}
	fields = append(fields, c.nonce())

	token := strings.Join(fields, Delimiter)
	if len(token) > MaxLen {
		return "", fmt.Errorf("%w: %d bytes", ErrTokenTooLong, len(token))
	}
	return token, nil
}

// Fit encodes q, dropping trailing studies and then the style until the
// token fits MaxLen. Symbol and interval are never dropped.
func (c *Codec) Fit(kind Kind, q chart.Query) (string, error) {
	q.Studies = append([]string(nil), q.Studies...)
	for {
		token, err := c.Encode(kind, q)
		if !errors.Is(err, ErrTokenTooLong) {
			return token, err
		}
		switch {
		case len(q.Studies) > 0:
			q.Studies = q.Studies[:len(q.Studies)-1]
		case q.Style != "":
			q.Style = ""
		default:
			return "", err
		}
	}
}

// Decode parses callback data. Missing trailing optional segments decode as
// empty values.
func Decode(data string) (Token, error) {
	parts := strings.Split(data, Delimiter)
	if len(parts) < minSegments {
		return Token{}, fmt.Errorf("%w: %d segments", ErrMalformed, len(parts))
	}
	kind := Kind(parts[0])
	if !kind.Valid() {
		return Token{}, fmt.Errorf("%w: %q", ErrUnknownKind, parts[0])
	}
	if len(parts) > kind.arity() {
		return Token{}, fmt.Errorf("%w: %d segments for kind %s", ErrMalformed, len(parts), kind)
	}

	segment := func(i int) string {
		if i < len(parts) {
			return parts[i]
		}
		return ""
	}
	tok := Token{
		Kind:     kind,
		Symbol:   strings.ToUpper(segment(1)),
		Interval: segment(2),
	}
	if kind.Chart() == chart.KindChart {
		tok.Studies = chart.SplitStudies(segment(3))
		tok.Style = segment(4)
		tok.Nonce = segment(5)
	} else {
		tok.Nonce = segment(3)
	}
	return tok, nil
}
