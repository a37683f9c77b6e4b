// Package dispatch routes one incoming update to the command, member and
// callback handlers and orchestrates the outbound calls.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/m3rciful/chartbot/chart"
	"github.com/m3rciful/chartbot/chart/reply"
	coreconfig "github.com/m3rciful/chartbot/core/config"
	"github.com/m3rciful/chartbot/core/logger"
	"github.com/m3rciful/chartbot/core/metrics"
	"github.com/m3rciful/chartbot/core/telegram/callbacks"
	"github.com/m3rciful/chartbot/core/telegram/commands"
)

const (
	statusMember        = "member"
	statusAdministrator = "administrator"
)

const defaultRecordTimeout = 2 * time.Second

// Outcome summarizes one dispatch for logs and metrics.
type Outcome string

const (
	OutcomeReplied Outcome = "replied"
	OutcomeIgnored Outcome = "ignored"
	OutcomeFailed  Outcome = "failed"
	OutcomeUnknown Outcome = "unknown"
)

// HandlerFunc handles one update. Middlewares wrap it.
type HandlerFunc func(ctx context.Context, u Update) Outcome

// Messenger performs the outbound Bot API calls.
type Messenger interface {
	SendText(ctx context.Context, r reply.Text) error
	SendPhoto(ctx context.Context, r reply.Photo) error
	EditPhoto(ctx context.Context, r reply.PhotoEdit) error
	NotifyUploadPhoto(ctx context.Context, chatID int64) error
	Answer(ctx context.Context, callbackID string) error
}

// ImageSource returns chart image bytes.
type ImageSource interface {
	Fetch(ctx context.Context, kind chart.Kind, q chart.Query) ([]byte, error)
}

// Request is one chart request handed to the Recorder.
type Request struct {
	ChatID   int64
	Source   string
	Kind     chart.Kind
	Query    chart.Query
	Status   int
	Duration time.Duration
}

// Recorder stores chart requests. Failures are logged only.
type Recorder interface {
	Record(ctx context.Context, r Request) error
}

// statusError is implemented by upstream and delivery errors carrying an HTTP status.
type statusError interface {
	StatusCode() int
	ResponseBody() []byte
}

// Options configures a Dispatcher.
type Options struct {
	Catalog   chart.Catalog
	Messages  coreconfig.MessagesConfig
	Parser    commands.Parser
	Codec     *callbacks.Codec
	Messenger Messenger
	Images    ImageSource
	// Recorder is optional.
	Recorder Recorder
	// RecordTimeout bounds one Record call; zero selects 2s.
	RecordTimeout time.Duration
}

// Dispatcher holds only immutable collaborators and may be shared by concurrent dispatches.
type Dispatcher struct {
	catalog    chart.Catalog
	messages   coreconfig.MessagesConfig
	parser     commands.Parser
	composer   *reply.Composer
	translator *reply.Translator
	messenger  Messenger
	images     ImageSource
	recorder   Recorder
	recordTTL  time.Duration
}

// New builds a dispatcher.
func New(opts Options) *Dispatcher {
	return &Dispatcher{
		catalog:    opts.Catalog,
		messages:   opts.Messages,
		parser:     opts.Parser,
		composer:   reply.NewComposer(opts.Catalog, opts.Codec),
		translator: reply.NewTranslator(opts.Messages),
		messenger:  opts.Messenger,
		images:     opts.Images,
		recorder:   opts.Recorder,
		recordTTL:  recordTimeout(opts.RecordTimeout),
	}
}

func recordTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return defaultRecordTimeout
	}
	return d
}

// Dispatch handles one update. Failures become replies; nothing is returned to the caller.
func (d *Dispatcher) Dispatch(ctx context.Context, u Update) Outcome {
	switch v := u.(type) {
	case Message:
		if v.Chat.Type == ChatPrivate {
			return d.handleCommand(ctx, v.Chat.ID, v.Text, true)
		}
		if v.Chat.Type == ChatGroup && v.Text != "" {
			return d.handleCommand(ctx, v.Chat.ID, v.Text, false)
		}
		return OutcomeIgnored
	case ChannelPost:
		if v.Text != "" {
			return d.handleCommand(ctx, v.Chat.ID, v.Text, false)
		}
		return OutcomeIgnored
	case ChatMemberUpdate:
		return d.handleMember(ctx, v)
	case CallbackQuery:
		return d.handleCallback(ctx, v)
	default:
		logger.Warn(ctx, "dispatch", "update.unknown",
			slog.String("update_kind", kindOf(u)),
		)
		return OutcomeUnknown
	}
}

func kindOf(u Update) string {
	if u == nil {
		return "nil"
	}
	return u.Kind()
}

func (d *Dispatcher) handleMember(ctx context.Context, u ChatMemberUpdate) Outcome {
	joined := (u.Chat.Type == ChatGroup && u.NewStatus == statusMember) ||
		(u.Chat.Type == ChatChannel && u.NewStatus == statusAdministrator)
	if !joined {
		logger.Debug(ctx, "dispatch", "member.skip",
			slog.String("chat_type", u.Chat.Type.String()),
			slog.String("cause", u.NewStatus),
		)
		return OutcomeIgnored
	}
	ctx = logger.WithHandler(ctx, "member.start")
	return d.sendText(ctx, u.Chat.ID, d.messages.Start, reply.ParseModeHTML)
}

func (d *Dispatcher) handleCommand(ctx context.Context, chatID int64, text string, private bool) Outcome {
	cmd := d.parser.Parse(text)
	ctx = logger.WithHandler(ctx, "command."+cmd.Kind.String())

	switch cmd.Kind {
	case commands.Start:
		metrics.CommandProcessed(cmd.Kind.String())
		return d.sendText(ctx, chatID, d.messages.Start, reply.ParseModeHTML)
	case commands.Example:
		metrics.CommandProcessed(cmd.Kind.String())
		return d.sendText(ctx, chatID, d.messages.Example, reply.ParseModeHTML)
	case commands.Price, commands.Chart:
		metrics.CommandProcessed(cmd.Kind.String())
		return d.sendChart(ctx, chatID, cmd.Kind.ChartKind(), cmd.Query, cmd.WithSymbols)
	}

	if !private {
		return OutcomeIgnored
	}
	metrics.CommandProcessed(cmd.Kind.String())
	if err := d.messenger.SendText(ctx, reply.Text{ChatID: chatID, Text: d.translator.Invalid()}); err != nil {
		return OutcomeFailed
	}
	return OutcomeReplied
}

func (d *Dispatcher) sendText(ctx context.Context, chatID int64, text, parseMode string) Outcome {
	err := d.messenger.SendText(ctx, reply.Text{ChatID: chatID, Text: text, ParseMode: parseMode})
	if err != nil {
		d.reportError(ctx, chatID, err)
		return OutcomeFailed
	}
	return OutcomeReplied
}

// sendChart fetches the image while the upload_photo action is shown, then sends the photo.
func (d *Dispatcher) sendChart(ctx context.Context, chatID int64, kind chart.Kind, partial chart.Query, withSymbols bool) Outcome {
	q := d.catalog.Build(kind, partial)
	start := time.Now()

	var img []byte
	var g errgroup.Group
	g.Go(func() (err error) {
		// a panic here would escape the middleware's recover
		defer func() {
			if r := recover(); r != nil {
				metrics.PanicRecovered()
				err = fmt.Errorf("dispatch: image fetch panic: %v", r)
			}
		}()
		img, err = d.images.Fetch(ctx, kind, q)
		return err
	})
	g.Go(func() error {
		// the action is cosmetic; its failure is logged by the messenger
		_ = d.messenger.NotifyUploadPhoto(ctx, chatID)
		return nil
	})
	if err := g.Wait(); err != nil {
		d.reportError(ctx, chatID, err)
		d.record(ctx, Request{ChatID: chatID, Source: "command", Kind: kind, Query: q, Status: statusOf(err), Duration: time.Since(start)})
		return OutcomeFailed
	}
	req := Request{ChatID: chatID, Source: "command", Kind: kind, Query: q, Status: 200, Duration: time.Since(start)}

	photo := reply.Photo{
		ChatID:   chatID,
		Image:    img,
		Caption:  d.composer.Caption(kind, q),
		Keyboard: d.composer.Keyboard(ctx, kind, q, withSymbols),
	}
	if err := d.messenger.SendPhoto(ctx, photo); err != nil {
		d.reportError(ctx, chatID, err)
		d.record(ctx, req)
		return OutcomeFailed
	}
	d.record(ctx, req)
	return OutcomeReplied
}

// handleCallback acknowledges the query after every Bot API call, even on
// panic. The journal entry is written after the acknowledgement.
func (d *Dispatcher) handleCallback(ctx context.Context, cb CallbackQuery) (out Outcome) {
	var req *Request
	defer func() {
		// the acknowledgement outlives the dispatch deadline; failure is logged by the messenger
		_ = d.messenger.Answer(context.WithoutCancel(ctx), cb.ID)
		if req != nil {
			d.record(ctx, *req)
		}
	}()
	out, req = d.processCallback(ctx, cb)
	return out
}

func (d *Dispatcher) processCallback(ctx context.Context, cb CallbackQuery) (Outcome, *Request) {
	tok, err := callbacks.Decode(cb.Data)
	if err != nil {
		logger.Warn(ctx, "dispatch", "callback.unknown",
			slog.String("payload", logger.SanitizeLimit(cb.Data, 64)),
			slog.String("err", err.Error()),
		)
		return OutcomeUnknown, nil
	}
	metrics.CallbackProcessed(string(tok.Kind))
	ctx = logger.WithHandler(ctx, "callback."+tok.Kind.Chart().String())

	if cb.ChatID == 0 || cb.MessageID == 0 {
		logger.Warn(ctx, "dispatch", "callback.no_message",
			slog.String("cb_kind", string(tok.Kind)),
		)
		return OutcomeIgnored, nil
	}

	kind := tok.Kind.Chart()
	q := d.catalog.Build(kind, tok.Query())
	start := time.Now()
	img, err := d.images.Fetch(ctx, kind, q)
	req := &Request{ChatID: cb.ChatID, Source: "callback", Kind: kind, Query: q, Status: 200, Duration: time.Since(start)}
	if err != nil {
		req.Status = statusOf(err)
		d.reportError(ctx, cb.ChatID, err)
		return OutcomeFailed, req
	}

	edit := reply.PhotoEdit{
		ChatID:    cb.ChatID,
		MessageID: cb.MessageID,
		Image:     img,
		Caption:   d.composer.Caption(kind, q),
		Keyboard:  d.composer.Keyboard(ctx, kind, q, tok.Kind.WithSymbols()),
	}
	if err := d.messenger.EditPhoto(ctx, edit); err != nil {
		d.reportError(ctx, cb.ChatID, err)
		return OutcomeFailed, req
	}
	return OutcomeReplied, req
}

// reportError sends the translated failure text once. A failure of this send is only logged.
func (d *Dispatcher) reportError(ctx context.Context, chatID int64, err error) {
	var se statusError
	status, body := 0, []byte(nil)
	if errors.As(err, &se) {
		status, body = se.StatusCode(), se.ResponseBody()
	}
	text := d.translator.Translate(ctx, status, body)
	// an expired dispatch deadline is a common cause of err; the reply is still owed
	_ = d.messenger.SendText(context.WithoutCancel(ctx), reply.Text{ChatID: chatID, Text: text})
}

// record runs after the user-visible calls with its own deadline, so a slow
// journal never delays or cancels a reply.
func (d *Dispatcher) record(ctx context.Context, r Request) {
	if d.recorder == nil {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.recordTTL)
	defer cancel()
	if err := d.recorder.Record(rctx, r); err != nil {
		logger.Warn(ctx, "dispatch", "journal.fail",
			slog.String("symbol", r.Query.Symbol),
			slog.String("err", err.Error()),
		)
	}
}

func statusOf(err error) int {
	var se statusError
	if errors.As(err, &se) {
		return se.StatusCode()
	}
	return 0
}
