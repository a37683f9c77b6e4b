// Package reply builds the outgoing messages of one dispatch.
package reply

import (
	"context"
	"log/slog"
	"strings"

	"github.com/m3rciful/chartbot/chart"
	"github.com/m3rciful/chartbot/core/logger"
	"github.com/m3rciful/chartbot/core/telegram/callbacks"
)

// ParseModeHTML marks text replies rendered as Telegram HTML.
const ParseModeHTML = "HTML"

// Button is one inline keyboard button.
type Button struct {
	Text string
	Data string
}

// Keyboard is a grid of inline buttons.
type Keyboard [][]Button

// Text is a plain message reply.
type Text struct {
	ChatID    int64
	Text      string
	ParseMode string
}

// Photo sends a new photo message.
type Photo struct {
	ChatID   int64
	Image    []byte
	Caption  string
	Keyboard Keyboard
}

// PhotoEdit replaces the media of an existing message.
type PhotoEdit struct {
	ChatID    int64
	MessageID int
	Image     []byte
	Caption   string
	Keyboard  Keyboard
}

// Composer renders captions and keyboards from the configured catalog.
type Composer struct {
	catalog chart.Catalog
	codec   *callbacks.Codec
}

// NewComposer returns a composer. A nil codec uses the wall clock.
func NewComposer(catalog chart.Catalog, codec *callbacks.Codec) *Composer {
	if codec == nil {
		codec = callbacks.NewCodec()
	}
	return &Composer{catalog: catalog, codec: codec}
}

// Caption renders "SYMBOL INTERVAL" for price and
// "SYMBOL INTERVAL STUDIES STYLE" for chart. Empty parts are omitted.
func (c *Composer) Caption(kind chart.Kind, q chart.Query) string {
	parts := []string{strings.ToUpper(q.Symbol), q.Interval}
	if kind == chart.KindChart {
		parts = append(parts, q.StudiesString(), q.Style)
	}
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}

// Keyboard builds the interval row and, when withSymbols is set, the shortcut rows.
// Buttons whose token cannot be encoded are skipped.
func (c *Composer) Keyboard(ctx context.Context, kind chart.Kind, q chart.Query, withSymbols bool) Keyboard {
	settings := c.catalog.For(kind)
	tk := callbacks.KindFor(kind, withSymbols)

	var kb Keyboard
	intervals := make([]Button, 0, len(settings.Intervals))
	for _, interval := range settings.Intervals {
		bq := q
		bq.Interval = interval
		if btn, ok := c.button(ctx, tk, interval, bq); ok {
			intervals = append(intervals, btn)
		}
	}
	if len(intervals) > 0 {
		kb = append(kb, intervals)
	}
	if !withSymbols {
		return kb
	}

	for _, row := range settings.Shortcuts {
		buttons := make([]Button, 0, len(row))
		for _, sc := range row {
			bq := q
			bq.Symbol = sc.Symbol
			if len(sc.Studies) > 0 {
				bq.Studies = sc.Studies
			}
			if sc.Style != "" {
				bq.Style = sc.Style
			}
			if btn, ok := c.button(ctx, tk, sc.Text, bq); ok {
				buttons = append(buttons, btn)
			}
		}
		if len(buttons) > 0 {
			kb = append(kb, buttons)
		}
	}
	return kb
}

func (c *Composer) button(ctx context.Context, kind callbacks.Kind, text string, q chart.Query) (Button, bool) {
	data, err := c.codec.Fit(kind, q)
	if err != nil {
		logger.Warn(ctx, "reply", "keyboard.button.skip",
			slog.String("symbol", q.Symbol),
			slog.String("interval", q.Interval),
			slog.String("err", err.Error()),
		)
		return Button{}, false
	}
	return Button{Text: text, Data: data}, true
}
