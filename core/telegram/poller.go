package telegram

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/m3rciful/chartbot/core/logger"
	"github.com/m3rciful/chartbot/core/telegram/workers"

	tele "gopkg.in/telebot.v4"
)

const (
	defaultLongPollTimeout = 10 * time.Second
	confirmTimeout         = 5 * time.Second
)

func longPollTimeout(seconds int) time.Duration {
	if seconds <= 0 {
		return defaultLongPollTimeout
	}
	return time.Duration(seconds) * time.Second
}

// UpdateSource delivers raw updates until stop is closed. *tele.LongPoller satisfies it.
type UpdateSource interface {
	Poll(b *tele.Bot, dest chan tele.Update, stop chan struct{})
}

// Pump reads updates from a long poller and hands them to a worker pool.
type Pump struct {
	Bot     *tele.Bot
	Source  UpdateSource
	Pool    *workers.Pool
	Handler UpdateHandler
	// Confirm acknowledges every update below offset on shutdown. Without it the
	// last batch is redelivered on the next start.
	Confirm func(ctx context.Context, offset int) error
}

// UpdateHandler processes one raw update.
type UpdateHandler func(ctx context.Context, upd tele.Update)

// Run blocks until ctx is done and every accepted update has been handled.
func (p *Pump) Run(ctx context.Context) error {
	if p.Source == nil || p.Handler == nil {
		return errors.New("telegram: pump needs a source and a handler")
	}

	updates := make(chan tele.Update, 64)
	stop := make(chan struct{})
	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		p.Source.Poll(p.Bot, updates, stop)
	}()

	last := 0
	accept := func(upd tele.Update) {
		if upd.ID > last {
			last = upd.ID
		}
		p.submit(ctx, upd)
	}

	done := ctx.Done()
	for {
		select {
		case <-done:
			close(stop)
			done = nil
		case upd := <-updates:
			// the poller finishes its current batch after stop; all of it is handled
			accept(upd)
		case <-pollDone:
			for drained := false; !drained; {
				select {
				case upd := <-updates:
					accept(upd)
				default:
					drained = true
				}
			}
			if p.Pool != nil {
				p.Pool.Close()
			}
			p.confirm(ctx, last)
			return ctx.Err()
		}
	}
}

// confirm moves the server-side offset past the handled updates so a restart
// does not replay them.
func (p *Pump) confirm(ctx context.Context, last int) {
	if p.Confirm == nil || last == 0 {
		return
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), confirmTimeout)
	defer cancel()
	if err := p.Confirm(cctx, last+1); err != nil {
		logger.Warn(ctx, "tg.poll", "offset.confirm.fail",
			slog.Int("offset", last+1),
			slog.String("err", err.Error()),
		)
	}
}

// ConfirmOffset acknowledges updates below offset with a non-blocking getUpdates.
func ConfirmOffset(bot *tele.Bot) func(ctx context.Context, offset int) error {
	return func(_ context.Context, offset int) error {
		_, err := bot.Raw("getUpdates", map[string]string{
			"offset":  strconv.Itoa(offset),
			"limit":   "1",
			"timeout": "0",
		})
		return err
	}
}

func (p *Pump) submit(ctx context.Context, upd tele.Update) {
	// Handling outlives a shutdown signal so an accepted update is finished, not dropped.
	jobCtx := context.WithoutCancel(ctx)
	run := func(ctx context.Context) { p.Handler(ctx, upd) }

	if p.Pool == nil {
		run(jobCtx)
		return
	}
	err := p.Pool.Submit(jobCtx, "update", run)
	if err == nil {
		return
	}
	if errors.Is(err, workers.ErrQueueFull) {
		logger.Warn(ctx, "tg.poll", "queue.full",
			slog.Int("update_id", upd.ID),
		)
		run(jobCtx)
		return
	}
	logger.Warn(ctx, "tg.poll", "update.drop",
		slog.Int("update_id", upd.ID),
		slog.String("err", err.Error()),
	)
}
