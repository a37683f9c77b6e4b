package telegram

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/chartbot/core/logger"

	tele "gopkg.in/telebot.v4"
)

const (
	// SecretTokenHeader carries webhook.secret_token on every Telegram delivery.
	SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

	// MaxUpdateBytes bounds the webhook request body.
	MaxUpdateBytes = 1 << 20

	defaultDispatchTimeout = 30 * time.Second
)

// WebhookOptions configures the inbound webhook handler.
type WebhookOptions struct {
	Path        string
	SecretToken string
	// Timeout caps the handling of one update; 0 -> default.
	Timeout time.Duration
	Handle  UpdateHandler
	// Metrics is served on /metrics when not nil.
	Metrics http.Handler
}

type webhookHandler struct {
	opts WebhookOptions
}

// NewWebhookHandler returns the HTTP surface of webhook mode. Updates are handled
// synchronously and the response is written once dispatch returns.
func NewWebhookHandler(opts WebhookOptions) http.Handler {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultDispatchTimeout
	}
	return &webhookHandler{opts: opts}
}

func (h *webhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == h.opts.Path && r.Method == http.MethodPost:
		h.serveUpdate(w, r)
	case r.URL.Path == "/healthz" && r.Method == http.MethodGet:
		writeMessage(w, http.StatusOK, "OK")
	case r.URL.Path == "/metrics" && h.opts.Metrics != nil:
		h.opts.Metrics.ServeHTTP(w, r)
	default:
		writeMessage(w, http.StatusNotFound, "Route not found!")
	}
}

func (h *webhookHandler) serveUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := logger.WithRequestID(r.Context(), uuid.New().String())

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		logger.Warn(ctx, "tg.webhook", "request.reject",
			slog.String("reason", "content_type"),
			slog.Int("http_code", http.StatusBadRequest),
		)
		writeMessage(w, http.StatusBadRequest, "Content type must be application/json")
		return
	}
	if h.opts.SecretToken != "" {
		got := r.Header.Get(SecretTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.opts.SecretToken)) != 1 {
			logger.Warn(ctx, "tg.webhook", "request.reject",
				slog.String("reason", "secret_token"),
				slog.Int("http_code", http.StatusUnauthorized),
			)
			writeMessage(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
	}

	var upd tele.Update
	if err := json.NewDecoder(io.LimitReader(r.Body, MaxUpdateBytes)).Decode(&upd); err != nil {
		logger.Warn(ctx, "tg.webhook", "request.reject",
			slog.String("reason", "decode"),
			slog.Int("http_code", http.StatusBadRequest),
			slog.String("err", err.Error()),
		)
		writeMessage(w, http.StatusBadRequest, "Invalid update payload")
		return
	}

	// Telegram may drop the connection early; the update is still finished under our own deadline.
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.opts.Timeout)
	defer cancel()
	if h.opts.Handle != nil {
		h.opts.Handle(dctx, upd)
	}
	writeMessage(w, http.StatusOK, "Success")
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Message string `json:"message"`
	}{Message: msg})
}
