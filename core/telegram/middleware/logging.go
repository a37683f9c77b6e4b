package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/m3rciful/chartbot/core/logger"
	"github.com/m3rciful/chartbot/dispatch"
)

// Logging writes a sampled receipt line and one summary line per update.
// The caller is expected to attach rid and update meta to ctx.
func Logging(next dispatch.HandlerFunc) dispatch.HandlerFunc {
	return func(ctx context.Context, u dispatch.Update) dispatch.Outcome {
		start := time.Now()
		kind := "nil"
		if u != nil {
			kind = u.Kind()
		}
		ctx = logger.WithLogger(ctx, logger.TG)

		if logger.ShouldSampleDebug() {
			attrs := []slog.Attr{
				slog.String("status", "ok"),
				slog.String("update_kind", kind),
			}
			attrs = append(attrs, payloadAttrs(u)...)
			logger.LogEvent(ctx, logger.TG, slog.LevelDebug, "update.received", attrs...)
		}

		outcome := next(ctx, u)

		status := "ok"
		level := slog.LevelInfo
		switch outcome {
		case dispatch.OutcomeFailed:
			status = "fail"
			level = slog.LevelWarn
		case dispatch.OutcomeIgnored, dispatch.OutcomeUnknown:
			status = "skip"
		}
		logger.LogEvent(ctx, logger.TG, level, "update.handled",
			slog.String("status", status),
			slog.String("update_kind", kind),
			slog.String("outcome", string(outcome)),
			slog.Duration("duration", time.Since(start)),
		)
		return outcome
	}
}

func payloadAttrs(u dispatch.Update) []slog.Attr {
	switch v := u.(type) {
	case dispatch.Message:
		return []slog.Attr{
			slog.String("chat_type", v.Chat.Type.String()),
			slog.String("payload", logger.SanitizeLimit(v.Text, 256)),
		}
	case dispatch.ChannelPost:
		return []slog.Attr{
			slog.String("chat_type", v.Chat.Type.String()),
			slog.String("payload", logger.SanitizeLimit(v.Text, 256)),
		}
	case dispatch.ChatMemberUpdate:
		return []slog.Attr{
			slog.String("chat_type", v.Chat.Type.String()),
			slog.String("payload", v.NewStatus),
		}
	case dispatch.CallbackQuery:
		return []slog.Attr{slog.String("payload", logger.SanitizeLimit(v.Data, 64))}
	}
	return nil
}
