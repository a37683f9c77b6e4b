// Package messenger performs outbound Bot API calls through telebot.
// Every call is attempted once; failures are returned as *DeliveryError.
package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/m3rciful/chartbot/chart/reply"
	"github.com/m3rciful/chartbot/core/logger"
	"github.com/m3rciful/chartbot/core/metrics"
	"github.com/m3rciful/chartbot/core/telegram/keyboard"

	tele "gopkg.in/telebot.v4"
)

const (
	MethodSendMessage    = "sendMessage"
	MethodSendPhoto      = "sendPhoto"
	MethodEditMedia      = "editMessageMedia"
	MethodSendChatAction = "sendChatAction"
	MethodAnswerCallback = "answerCallbackQuery"
)

var tokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)

// DeliveryError is a failed Bot API call. Status is 0 when the call failed
// before an HTTP status was known.
type DeliveryError struct {
	Method string
	Status int
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("messenger: %s failed (%d): %s", e.Method, e.Status, sanitizeErrorMessage(e.Err))
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func (e *DeliveryError) StatusCode() int { return e.Status }

// ResponseBody renders the failure the way the Bot API reports it.
func (e *DeliveryError) ResponseBody() []byte {
	payload := struct {
		OK          bool   `json:"ok"`
		ErrorCode   int    `json:"error_code,omitempty"`
		Description string `json:"description,omitempty"`
	}{ErrorCode: e.Status, Description: description(e.Err)}
	data, _ := json.Marshal(payload)
	return data
}

// API is the subset of *tele.Bot used for outbound calls.
type API interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	EditMedia(msg tele.Editable, media tele.Inputtable, opts ...interface{}) (*tele.Message, error)
	Notify(to tele.Recipient, action tele.ChatAction, threadID ...int) error
	Respond(c *tele.Callback, resp ...*tele.CallbackResponse) error
}

// Messenger sends replies built by the reply package.
type Messenger struct {
	api API
}

// New wraps a telebot bot (or any API implementation).
func New(api API) *Messenger {
	return &Messenger{api: api}
}

// SendText sends a text message.
func (m *Messenger) SendText(ctx context.Context, r reply.Text) error {
	opts := &tele.SendOptions{ParseMode: tele.ParseMode(r.ParseMode)}
	return m.call(ctx, MethodSendMessage, r.ChatID, func() error {
		_, err := m.api.Send(tele.ChatID(r.ChatID), r.Text, opts)
		return err
	})
}

// SendPhoto uploads a new photo with caption and inline keyboard.
func (m *Messenger) SendPhoto(ctx context.Context, r reply.Photo) error {
	photo := &tele.Photo{File: tele.FromReader(bytes.NewReader(r.Image)), Caption: r.Caption}
	opts := &tele.SendOptions{ReplyMarkup: keyboard.Inline(r.Keyboard)}
	return m.call(ctx, MethodSendPhoto, r.ChatID, func() error {
		_, err := m.api.Send(tele.ChatID(r.ChatID), photo, opts)
		return err
	})
}

// EditPhoto replaces the media, caption and keyboard of an existing message.
func (m *Messenger) EditPhoto(ctx context.Context, r reply.PhotoEdit) error {
	msg := tele.StoredMessage{MessageID: strconv.Itoa(r.MessageID), ChatID: r.ChatID}
	photo := &tele.Photo{File: tele.FromReader(bytes.NewReader(r.Image)), Caption: r.Caption}
	opts := &tele.SendOptions{ReplyMarkup: keyboard.Inline(r.Keyboard)}
	return m.call(ctx, MethodEditMedia, r.ChatID, func() error {
		_, err := m.api.EditMedia(msg, photo, opts)
		return err
	})
}

// NotifyUploadPhoto shows the "sending photo" chat action.
func (m *Messenger) NotifyUploadPhoto(ctx context.Context, chatID int64) error {
	return m.call(ctx, MethodSendChatAction, chatID, func() error {
		return m.api.Notify(tele.ChatID(chatID), tele.UploadingPhoto)
	})
}

// Answer acknowledges a callback query.
func (m *Messenger) Answer(ctx context.Context, callbackID string) error {
	return m.call(ctx, MethodAnswerCallback, 0, func() error {
		return m.api.Respond(&tele.Callback{ID: callbackID})
	})
}

// call issues the request even when ctx is already done: telebot calls take no
// context, and an acknowledgement or error reply must still reach the user.
func (m *Messenger) call(ctx context.Context, method string, chatID int64, run func() error) error {
	start := time.Now()
	err := run()
	took := time.Since(start)
	if err == nil {
		logger.LogEvent(ctx, logger.TG, slog.LevelDebug, "send.ok",
			slog.String("status", "ok"),
			slog.String("method", method),
			slog.Duration("duration", took),
		)
		return nil
	}

	derr := &DeliveryError{Method: method, Status: httpStatusFromError(err), Err: err}
	metrics.DeliveryFailed(method)
	attrs := []slog.Attr{
		slog.String("status", "fail"),
		slog.String("method", method),
		slog.Int("http_code", derr.Status),
		slog.String("err_code", classifyError(err)),
		slog.Duration("duration", took),
		slog.String("err", sanitizeErrorMessage(err)),
	}
	if chatID != 0 && logger.ChatIDFrom(ctx) == 0 {
		attrs = append(attrs, slog.Int64("chat_id", chatID))
	}
	logger.LogEvent(ctx, logger.TG, slog.LevelError, "send.fail", attrs...)
	return derr
}

func classifyError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "cancelled"
	}
	status := httpStatusFromError(err)
	switch {
	case status == http.StatusTooManyRequests:
		return "flood"
	case status >= 500:
		return "http_5xx"
	case status >= 400:
		return "http_4xx"
	}
	return "transport"
}

// sanitizeErrorMessage prevents accidental leakage of bot tokens in logs.
func sanitizeErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	return tokenRe.ReplaceAllString(err.Error(), "bot<redacted>")
}

func description(err error) string {
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return apiErr.Description
	}
	return sanitizeErrorMessage(err)
}

func httpStatusFromError(err error) int {
	if err == nil {
		return 0
	}

	var floodErr tele.FloodError
	if errors.As(err, &floodErr) {
		return http.StatusTooManyRequests
	}

	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}

	var groupErr tele.GroupError
	if errors.As(err, &groupErr) {
		return http.StatusBadRequest
	}

	// telebot renders unknown API errors as "telegram: <description> (<code>)"
	msg := err.Error()
	lastOpen := strings.LastIndex(msg, "(")
	lastClose := strings.LastIndex(msg, ")")
	if lastOpen >= 0 && lastClose > lastOpen+1 {
		if code, convErr := strconv.Atoi(strings.TrimSpace(msg[lastOpen+1 : lastClose])); convErr == nil {
			return code
		}
	}
	return 0
}
