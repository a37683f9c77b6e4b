package telegram

import (
	"context"
	"log/slog"
	"strings"

	coreconfig "github.com/m3rciful/chartbot/core/config"
	"github.com/m3rciful/chartbot/core/logger"

	tele "gopkg.in/telebot.v4"
)

// Registry holds the command menu published through setMyCommands.
type Registry struct {
	commands []tele.Command
	seen     map[string]struct{}
}

// NewRegistry creates a Registry from the configured command list.
func NewRegistry(list []coreconfig.CommandConfig) *Registry {
	r := &Registry{seen: make(map[string]struct{}, len(list))}
	for _, c := range list {
		r.RegisterCommand(c.Command, c.Description)
	}
	return r
}

// RegisterCommand adds a menu entry. The leading slash is optional.
func (r *Registry) RegisterCommand(name, description string) {
	name = strings.TrimPrefix(strings.TrimSpace(name), "/")
	description = strings.TrimSpace(description)
	if name == "" || description == "" {
		logger.TWire.LogAttrs(context.Background(), slog.LevelWarn, "register.command.skip",
			slog.String("name", name),
			slog.String("reason", "invalid"),
		)
		return
	}
	if _, exists := r.seen[name]; exists {
		logger.TWire.LogAttrs(context.Background(), slog.LevelWarn, "register.command.duplicate",
			slog.String("name", name),
		)
		return
	}
	r.seen[name] = struct{}{}
	r.commands = append(r.commands, tele.Command{Text: name, Description: description})
}

// Commands returns the menu in registration order.
func (r *Registry) Commands() []tele.Command {
	out := make([]tele.Command, len(r.commands))
	copy(out, r.commands)
	return out
}

// CommandSetter is the part of *tele.Bot that publishes the command menu.
type CommandSetter interface {
	SetCommands(opts ...interface{}) error
}

// InitBotCommands sets the Telegram bot commands shown in the command menu.
func InitBotCommands(ctx context.Context, bot CommandSetter, reg *Registry) error {
	list := reg.Commands()
	if len(list) == 0 {
		logger.TWire.LogAttrs(ctx, slog.LevelInfo, "register.commands.empty")
		return nil
	}
	if err := bot.SetCommands(list); err != nil {
		logger.TWire.LogAttrs(ctx, slog.LevelError, "register.commands.set_failed",
			slog.String("err", err.Error()),
		)
		return err
	}
	names := make([]string, 0, len(list))
	for _, c := range list {
		names = append(names, c.Text)
	}
	summary, _ := logger.SummarizeStrings(names, 10)
	logger.TWire.LogAttrs(ctx, slog.LevelInfo, "register.commands.set",
		slog.Int("count", len(list)),
		slog.String("commands", summary),
	)
	return nil
}
