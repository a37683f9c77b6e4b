package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/m3rciful/chartbot/chart"
	"github.com/m3rciful/chartbot/core/chartimg"
	coreconfig "github.com/m3rciful/chartbot/core/config"
	"github.com/m3rciful/chartbot/core/logger"
	"github.com/m3rciful/chartbot/core/metrics"
	"github.com/m3rciful/chartbot/core/telegram/callbacks"
	"github.com/m3rciful/chartbot/core/telegram/commands"
	"github.com/m3rciful/chartbot/core/telegram/messenger"
	"github.com/m3rciful/chartbot/core/telegram/middleware"
	"github.com/m3rciful/chartbot/core/telegram/workers"
	"github.com/m3rciful/chartbot/dispatch"

	tele "gopkg.in/telebot.v4"
)

const shutdownTimeout = 10 * time.Second

// RunOptions controls the behaviour of RunTelegram.
type RunOptions struct {
	Config *coreconfig.Config

	// Recorder receives one entry per chart request; nil disables the journal.
	Recorder dispatch.Recorder
	// Middlewares wrap the dispatcher; nil selects middleware.Default().
	Middlewares []middleware.Middleware

	OnStart func(ctx context.Context, rt Runtime) error
	OnStop  func(ctx context.Context, rt Runtime) error
}

// Runtime exposes runtime components to lifecycle hooks.
type Runtime struct {
	Bot        *tele.Bot
	Dispatcher *dispatch.Dispatcher
	Registry   *Registry
}

// RunTelegram composes the bot and serves updates until ctx is done.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Config == nil {
		return fmt.Errorf("telegram: nil config provided")
	}
	cfg := opts.Config

	buildStart := time.Now()
	bot, err := NewBot(cfg)
	if err != nil {
		return err
	}

	username := cfg.Telegram.Username
	if username == "" && bot.Me != nil {
		username = bot.Me.Username
	}

	d := dispatch.New(dispatch.Options{
		Catalog:   chart.CatalogFromConfig(cfg),
		Messages:  cfg.Messages,
		Parser:    commands.Parser{Username: username},
		Codec:     callbacks.NewCodec(),
		Messenger: messenger.New(bot),
		Images:    chartimg.New(cfg.ChartImg, nil),
		Recorder:  opts.Recorder,
	})

	mws := opts.Middlewares
	if mws == nil {
		mws = middleware.Default()
	}
	handle := UpdateHandlerFor(middleware.Chain(d.Dispatch, mws...))

	rt := Runtime{
		Bot:        bot,
		Dispatcher: d,
		Registry:   NewRegistry(cfg.Commands),
	}

	logger.TG.LogAttrs(ctx, slog.LevelInfo, "bot.ready",
		slog.String("mode", cfg.Telegram.RunMode),
		slog.String("username", username),
		slog.Bool("journal", opts.Recorder != nil),
		slog.Duration("duration", logger.RoundMS(time.Since(buildStart))),
	)

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			return err
		}
	}

	var runErr error
	switch cfg.Telegram.RunMode {
	case coreconfig.RunModeWebhook:
		runErr = runWebhook(ctx, cfg, handle)
	default:
		// webhook deployments publish the menu once through `setup`
		_ = InitBotCommands(ctx, bot, rt.Registry)
		runErr = runLongPoll(ctx, cfg, bot, handle)
	}

	var stopErr error
	if opts.OnStop != nil {
		stopErr = opts.OnStop(context.WithoutCancel(ctx), rt)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return errors.Join(runErr, stopErr)
	}
	return stopErr
}

// NewBot builds the Bot API client. The bot never starts telebot's own poller.
func NewBot(cfg *coreconfig.Config) (*tele.Bot, error) {
	bot, err := tele.NewBot(tele.Settings{
		URL:    cfg.Telegram.APIURL,
		Token:  cfg.Telegram.Token,
		Client: BuildHTTPClient(longPollTimeout(cfg.Telegram.LongPollTimeoutSeconds)),
		OnError: func(err error, _ tele.Context) {
			logger.TG.LogAttrs(context.Background(), slog.LevelWarn, "bot.error",
				slog.String("err", err.Error()),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: bot initialization failed: %w", err)
	}
	return bot, nil
}

// UpdateHandlerFor classifies raw updates and runs h with correlation ids attached.
func UpdateHandlerFor(h dispatch.HandlerFunc) UpdateHandler {
	return func(ctx context.Context, upd tele.Update) {
		u := dispatch.FromTelegram(upd)
		chatID := dispatch.ChatIDOf(u)
		ctx = logger.WithUpdateMeta(ctx, upd.ID, chatID)
		ctx = logger.WithRID(ctx, logger.BuildRID(upd.ID, chatID))
		h(ctx, u)
	}
}

func runWebhook(ctx context.Context, cfg *coreconfig.Config, handle UpdateHandler) error {
	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		metricsHandler = metrics.Handler()
	}
	addr := fmt.Sprintf("%s:%d", cfg.Webhook.Listen, cfg.Webhook.Port)
	srv := &http.Server{
		Addr: addr,
		Handler: NewWebhookHandler(WebhookOptions{
			Path:        cfg.Webhook.Path,
			SecretToken: cfg.Webhook.SecretToken,
			Timeout:     time.Duration(cfg.Webhook.DispatchTimeoutSeconds) * time.Second,
			Handle:      handle,
			Metrics:     metricsHandler,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.TG.LogAttrs(ctx, slog.LevelInfo, "webhook.listen",
		slog.String("listen", addr),
		slog.String("path", cfg.Webhook.Path),
		slog.Bool("metrics", metricsHandler != nil),
		slog.Bool("secret_token", cfg.Webhook.SecretToken != ""),
	)
	return serveHTTP(ctx, srv)
}

func runLongPoll(ctx context.Context, cfg *coreconfig.Config, bot *tele.Bot, handle UpdateHandler) error {
	if err := bot.RemoveWebhook(false); err != nil {
		logger.TG.LogAttrs(ctx, slog.LevelWarn, "webhook.delete.fail",
			slog.String("err", err.Error()),
		)
	} else {
		logger.TG.LogAttrs(ctx, slog.LevelInfo, "webhook.delete")
	}

	timeout := longPollTimeout(cfg.Telegram.LongPollTimeoutSeconds)
	pump := &Pump{
		Bot:     bot,
		Source:  &tele.LongPoller{Timeout: timeout},
		Pool:    workers.New(workers.Options{Workers: cfg.Telegram.Workers}),
		Handler: handle,
		Confirm: ConfirmOffset(bot),
	}
	logger.TG.LogAttrs(ctx, slog.LevelInfo, "poll.start",
		slog.Duration("timeout", timeout),
		slog.Int("workers", cfg.Telegram.Workers),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pump.Run(gctx) })
	if cfg.Metrics.Enabled && cfg.Metrics.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: cfg.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		logger.TG.LogAttrs(ctx, slog.LevelInfo, "metrics.listen",
			slog.String("listen", cfg.Metrics.Listen),
		)
		g.Go(func() error { return serveHTTP(gctx, srv) })
	}
	return g.Wait()
}

// serveHTTP runs srv until ctx is done, then shuts it down gracefully.
func serveHTTP(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("telegram: http server %s: %w", srv.Addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("telegram: http shutdown %s: %w", srv.Addr, err)
	}
	<-errCh
	return ctx.Err()
}
