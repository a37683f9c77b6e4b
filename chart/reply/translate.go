package reply

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	coreconfig "github.com/m3rciful/chartbot/core/config"
	"github.com/m3rciful/chartbot/core/logger"
)

const maxLoggedBody = 512

// Translator maps upstream failures to user-facing text.
type Translator struct {
	messages coreconfig.MessagesConfig
}

// NewTranslator returns a translator using the configured message texts.
func NewTranslator(messages coreconfig.MessagesConfig) *Translator {
	return &Translator{messages: messages}
}

// Translate returns the text shown for a failed call with the given status.
// Only a 422 may surface the upstream "error" detail; the status and body are always logged.
func (t *Translator) Translate(ctx context.Context, status int, body []byte) string {
	logger.Error(ctx, "reply", "upstream.fail",
		slog.String("status", "fail"),
		slog.Int("http_code", status),
		slog.String("payload", logger.SanitizeLimit(string(body), maxLoggedBody)),
	)

	switch status {
	case http.StatusUnprocessableEntity:
		if detail := errorDetail(body); detail != "" {
			return detail
		}
		return t.messages.Invalid
	case http.StatusTooManyRequests:
		return t.messages.RateLimit
	default:
		return t.messages.Error
	}
}

// Invalid returns the invalid-command text.
func (t *Translator) Invalid() string {
	return t.messages.Invalid
}

func errorDetail(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var payload struct {
		Error any `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	s, _ := payload.Error.(string)
	return strings.TrimSpace(s)
}
