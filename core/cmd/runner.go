package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m3rciful/chartbot/core/bootstrap"
	coreconfig "github.com/m3rciful/chartbot/core/config"
	"github.com/m3rciful/chartbot/core/logger"
	coretelegram "github.com/m3rciful/chartbot/core/telegram"
)

// Options describe how to load configuration, bootstrap infrastructure and run the bot.
// Nil hooks select the real implementations.
type Options struct {
	// ConfigPath comes from --config and wins over the environment.
	ConfigPath        string
	ConfigEnvVar      string
	DefaultConfigPath string

	LoadConfig     func(path string) (*coreconfig.Config, error)
	Bootstrap      func(ctx context.Context, opts bootstrap.Options) (*bootstrap.Result, error)
	ShutdownLogger func() error
	RunTelegram    func(ctx context.Context, opts coretelegram.RunOptions) error
	Setup          func(ctx context.Context, cfg *coreconfig.Config, domain string) error
}

// ResolveConfigPath picks the flag value, then the environment, then the default.
func ResolveConfigPath(opts Options) (string, error) {
	if opts.ConfigPath != "" {
		return opts.ConfigPath, nil
	}
	env := opts.ConfigEnvVar
	if env == "" {
		env = "CONFIG_PATH"
	}
	if p := os.Getenv(env); p != "" {
		return p, nil
	}
	if opts.DefaultConfigPath != "" {
		return opts.DefaultConfigPath, nil
	}
	return "", fmt.Errorf("cmd: config path not provided via --config, %s or DefaultConfigPath", env)
}

func loadConfig(opts Options) (*coreconfig.Config, error) {
	path, err := ResolveConfigPath(opts)
	if err != nil {
		return nil, err
	}
	load := opts.LoadConfig
	if load == nil {
		load = coreconfig.Load
	}
	log.Printf("loading config: %s", path)
	cfg, err := load(path)
	if err != nil {
		return nil, fmt.Errorf("cmd: failed to load config: %w", err)
	}
	return cfg, nil
}

// Serve loads configuration, bootstraps logging and the optional journal, and runs
// the bot until SIGINT or SIGTERM.
func Serve(opts Options) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return serve(ctx, opts)
}

func serve(ctx context.Context, opts Options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	boot := opts.Bootstrap
	if boot == nil {
		boot = bootstrap.Run
	}
	res, err := boot(ctx, bootstrap.Options{Config: cfg})
	if err != nil {
		return fmt.Errorf("cmd: bootstrap failed: %w", err)
	}

	shutdownLogger := opts.ShutdownLogger
	if shutdownLogger == nil {
		shutdownLogger = logger.Shutdown
	}
	defer func() {
		if err := shutdownLogger(); err != nil {
			log.Printf("logger shutdown error: %v", err)
		}
	}()
	defer func() {
		if err := res.Close(); err != nil {
			logger.DB.Warn("db close failed", slog.String("event", "db.close"), slog.String("err", err.Error()))
		}
	}()

	startedAt := time.Now()
	app := logger.Component("app")
	runOpts := coretelegram.RunOptions{
		Config:   cfg,
		Recorder: res.Recorder,
		OnStart: func(ctx context.Context, _ coretelegram.Runtime) error {
			app.Info("app ready",
				slog.String("event", "ready"),
				slog.Duration("startup_duration", logger.RoundMS(time.Since(startedAt))),
			)
			return nil
		},
		OnStop: func(ctx context.Context, _ coretelegram.Runtime) error {
			app.Info("shutting down...",
				slog.String("event", "shutdown"),
			)
			return nil
		},
	}

	run := opts.RunTelegram
	if run == nil {
		run = coretelegram.RunTelegram
	}
	return run(ctx, runOpts)
}

// Setup registers the webhook for domain and publishes the command menu.
func Setup(opts Options, domain string) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if err := logger.InitLogger(cfg); err != nil {
		return fmt.Errorf("cmd: logger init failed: %w", err)
	}
	defer func() { _ = logger.Shutdown() }()

	setup := opts.Setup
	if setup == nil {
		setup = coretelegram.Setup
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return setup(ctx, cfg, domain)
}
