package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	coreconfig "github.com/m3rciful/chartbot/core/config"
	"github.com/m3rciful/chartbot/core/logger"

	tele "gopkg.in/telebot.v4"
)

// WebhookSetter is the part of *tele.Bot used to register the webhook.
type WebhookSetter interface {
	SetWebhook(w *tele.Webhook) error
}

// WebhookURL returns the public webhook address for domain. A scheme in domain is replaced by https.
func WebhookURL(domain, path string) (string, error) {
	domain = strings.TrimSpace(domain)
	if i := strings.Index(domain, "://"); i >= 0 {
		domain = domain[i+3:]
	}
	domain = strings.TrimRight(domain, "/")
	if domain == "" {
		return "", errors.New("telegram: empty webhook domain")
	}
	if path == "" {
		path = coreconfig.DefaultWebhookPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return "https://" + domain + path, nil
}

// Setup registers the webhook for domain and publishes the command menu.
func Setup(ctx context.Context, cfg *coreconfig.Config, domain string) error {
	if cfg == nil {
		return fmt.Errorf("telegram: nil config provided")
	}
	bot, err := NewBot(cfg)
	if err != nil {
		return err
	}
	return setup(ctx, bot, cfg, domain)
}

type setupAPI interface {
	WebhookSetter
	CommandSetter
}

func setup(ctx context.Context, api setupAPI, cfg *coreconfig.Config, domain string) error {
	url, err := WebhookURL(domain, cfg.Webhook.Path)
	if err != nil {
		return err
	}
	wh := &tele.Webhook{
		SecretToken: cfg.Webhook.SecretToken,
		Endpoint:    &tele.WebhookEndpoint{PublicURL: url},
	}
	if err := api.SetWebhook(wh); err != nil {
		logger.TWire.LogAttrs(ctx, slog.LevelError, "webhook.set_failed",
			slog.String("public_url", url),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("telegram: set webhook: %w", err)
	}
	logger.TWire.LogAttrs(ctx, slog.LevelInfo, "webhook.set",
		slog.String("public_url", url),
	)

	if err := InitBotCommands(ctx, api, NewRegistry(cfg.Commands)); err != nil {
		return fmt.Errorf("telegram: set commands: %w", err)
	}
	return nil
}
