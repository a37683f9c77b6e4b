package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/m3rciful/chartbot/core/logger"
	"github.com/m3rciful/chartbot/core/metrics"
	"github.com/m3rciful/chartbot/dispatch"
)

// Middleware wraps a dispatch handler.
type Middleware func(next dispatch.HandlerFunc) dispatch.HandlerFunc

// Chain applies mws so that the first one is the outermost.
func Chain(h dispatch.HandlerFunc, mws ...Middleware) dispatch.HandlerFunc {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			h = mws[i](h)
		}
	}
	return h
}

// Default is the chain used by the runtime: recover, logging, metrics.
func Default() []Middleware {
	return []Middleware{Recover, Logging, Metrics}
}

// Recover catches panics in handlers so one update cannot bring the bot down.
func Recover(next dispatch.HandlerFunc) dispatch.HandlerFunc {
	return func(ctx context.Context, u dispatch.Update) (outcome dispatch.Outcome) {
		defer func() {
			if r := recover(); r != nil {
				metrics.PanicRecovered()
				logger.LogEvent(ctx, logger.TG, slog.LevelError, "tg.panic",
					slog.String("status", "fail"),
					slog.String("err", fmt.Sprint(r)),
					slog.String("stack", string(debug.Stack())),
				)
				outcome = dispatch.OutcomeFailed
			}
		}()
		return next(ctx, u)
	}
}
