package middleware

import (
	"context"

	"github.com/m3rciful/chartbot/core/metrics"
	"github.com/m3rciful/chartbot/dispatch"
)

// Metrics counts received updates by kind and dispatch outcomes.
func Metrics(next dispatch.HandlerFunc) dispatch.HandlerFunc {
	return func(ctx context.Context, u dispatch.Update) dispatch.Outcome {
		kind := "nil"
		if u != nil {
			kind = u.Kind()
		}
		metrics.UpdateReceived(kind)
		outcome := next(ctx, u)
		metrics.DispatchOutcome(string(outcome))
		return outcome
	}
}
