package dispatch

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/m3rciful/chartbot/chart"
	"github.com/m3rciful/chartbot/chart/reply"
	coreconfig "github.com/m3rciful/chartbot/core/config"
	"github.com/m3rciful/chartbot/core/telegram/callbacks"
)

type call struct {
	method string
	text   string
	parse  string
	photo  *reply.Photo
	edit   *reply.PhotoEdit
}

type fakeMessenger struct {
	mu       sync.Mutex
	calls    []call
	failText error
	failSend error
	failEdit error
}

func (f *fakeMessenger) add(c call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeMessenger) SendText(_ context.Context, r reply.Text) error {
	f.add(call{method: "sendMessage", text: r.Text, parse: r.ParseMode})
	return f.failText
}

func (f *fakeMessenger) SendPhoto(_ context.Context, r reply.Photo) error {
	f.add(call{method: "sendPhoto", photo: &r})
	return f.failSend
}

func (f *fakeMessenger) EditPhoto(_ context.Context, r reply.PhotoEdit) error {
	f.add(call{method: "editMessageMedia", edit: &r})
	return f.failEdit
}

func (f *fakeMessenger) NotifyUploadPhoto(_ context.Context, _ int64) error {
	f.add(call{method: "sendChatAction"})
	return nil
}

func (f *fakeMessenger) Answer(_ context.Context, id string) error {
	f.add(call{method: "answerCallbackQuery", text: id})
	return nil
}

// methods returns the recorded calls, ignoring chat actions which race with fetches.
func (f *fakeMessenger) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if c.method != "sendChatAction" {
			out = append(out, c.method)
		}
	}
	return out
}

func (f *fakeMessenger) find(method string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

type fakeImages struct {
	mu      sync.Mutex
	queries []chart.Query
	kinds   []chart.Kind
	err     error
	panic   bool
}

func (f *fakeImages) Fetch(_ context.Context, kind chart.Kind, q chart.Query) ([]byte, error) {
	if f.panic {
		panic("imaging exploded")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	f.kinds = append(f.kinds, kind)
	if f.err != nil {
		return nil, f.err
	}
	return []byte("png"), nil
}

type fakeStatusErr struct {
	code int
	body string
}

func (e *fakeStatusErr) Error() string        { return fmt.Sprintf("status %d", e.code) }
func (e *fakeStatusErr) StatusCode() int      { return e.code }
func (e *fakeStatusErr) ResponseBody() []byte { return []byte(e.body) }

type fakeRecorder struct {
	mu      sync.Mutex
	entries []Request
}

func (f *fakeRecorder) Record(_ context.Context, r Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, r)
	return errors.New("journal down")
}

var testMessages = coreconfig.MessagesConfig{
	Start:     "<b>start</b>",
	Example:   "<i>example</i>",
	Invalid:   "invalid command",
	RateLimit: "rate limited",
	Error:     "generic error",
}

func testDispatcher(m *fakeMessenger, img *fakeImages, rec Recorder) *Dispatcher {
	return New(Options{
		Catalog: chart.Catalog{
			Price: chart.Settings{
				Default:   chart.Query{Symbol: "BINANCE:BTCUSDT", Interval: "1D"},
				Intervals: []string{"1h", "1D"},
				Shortcuts: [][]chart.Shortcut{{{Text: "ETH", Symbol: "ETHUSD"}}},
			},
			Chart: chart.Settings{
				Default:   chart.Query{Symbol: "AAPL", Interval: "4h", Studies: []string{"RSI"}, Style: "candle"},
				Intervals: []string{"1h", "4h"},
			},
		},
		Messages:  testMessages,
		Codec:     &callbacks.Codec{Now: func() time.Time { return time.UnixMilli(9999) }},
		Messenger: m,
		Images:    img,
		Recorder:  rec,
	})
}

func private(text string) Message {
	return Message{Chat: Chat{ID: 1, Type: ChatPrivate}, Text: text}
}

func group(text string) Message {
	return Message{Chat: Chat{ID: -2, Type: ChatGroup}, Text: text}
}

func TestUnknownCommandPrivateVsGroup(t *testing.T) {
	m := &fakeMessenger{}
	d := testDispatcher(m, &fakeImages{}, nil)

	if got := d.Dispatch(context.Background(), private("/unknown")); got != OutcomeReplied {
		t.Fatalf("private outcome = %s", got)
	}
	texts := m.find("sendMessage")
	if len(m.calls) != 1 || len(texts) != 1 || texts[0].text != testMessages.Invalid {
		t.Fatalf("private calls = %+v", m.calls)
	}

	m2 := &fakeMessenger{}
	d2 := testDispatcher(m2, &fakeImages{}, nil)
	if got := d2.Dispatch(context.Background(), group("/unknown")); got != OutcomeIgnored {
		t.Fatalf("group outcome = %s", got)
	}
	if len(m2.calls) != 0 {
		t.Fatalf("group calls = %+v", m2.calls)
	}
}

func TestEmptyTextRouting(t *testing.T) {
	m := &fakeMessenger{}
	d := testDispatcher(m, &fakeImages{}, nil)

	if got := d.Dispatch(context.Background(), private("")); got != OutcomeReplied {
		t.Fatalf("empty private outcome = %s", got)
	}
	if got := d.Dispatch(context.Background(), group("")); got != OutcomeIgnored {
		t.Fatalf("empty group outcome = %s", got)
	}
	if got := d.Dispatch(context.Background(), ChannelPost{Chat: Chat{ID: -3, Type: ChatChannel}}); got != OutcomeIgnored {
		t.Fatalf("empty channel post outcome = %s", got)
	}
	if len(m.calls) != 1 {
		t.Fatalf("calls = %+v", m.calls)
	}
}

func TestMemberUpdates(t *testing.T) {
	cases := []struct {
		chat    ChatType
		status  string
		replies int
	}{
		{ChatGroup, "member", 1},
		{ChatGroup, "left", 0},
		{ChatGroup, "administrator", 0},
		{ChatChannel, "administrator", 1},
		{ChatChannel, "member", 0},
		{ChatChannel, "kicked", 0},
		{ChatPrivate, "member", 0},
	}
	for _, tc := range cases {
		m := &fakeMessenger{}
		d := testDispatcher(m, &fakeImages{}, nil)
		d.Dispatch(context.Background(), ChatMemberUpdate{Chat: Chat{ID: -5, Type: tc.chat}, NewStatus: tc.status})
		if len(m.calls) != tc.replies {
			t.Fatalf("%s/%s: calls = %+v", tc.chat, tc.status, m.calls)
		}
		if tc.replies == 1 && (m.calls[0].text != testMessages.Start || m.calls[0].parse != reply.ParseModeHTML) {
			t.Fatalf("start reply = %+v", m.calls[0])
		}
	}
}

func TestStartAndExample(t *testing.T) {
	m := &fakeMessenger{}
	d := testDispatcher(m, &fakeImages{}, nil)
	d.Dispatch(context.Background(), group("/start"))
	d.Dispatch(context.Background(), ChannelPost{Chat: Chat{ID: -3, Type: ChatChannel}, Text: "/example"})
	texts := m.find("sendMessage")
	if len(texts) != 2 || texts[0].text != testMessages.Start || texts[1].text != testMessages.Example {
		t.Fatalf("texts = %+v", texts)
	}
	if texts[1].parse != reply.ParseModeHTML {
		t.Fatalf("example parse mode = %q", texts[1].parse)
	}
}

func TestPriceCommand(t *testing.T) {
	m := &fakeMessenger{}
	img := &fakeImages{}
	d := testDispatcher(m, img, nil)

	if got := d.Dispatch(context.Background(), private("/price btcusd 1h")); got != OutcomeReplied {
		t.Fatalf("outcome = %s", got)
	}
	want := chart.Query{Symbol: "BTCUSD", Interval: "1h"}
	if len(img.queries) != 1 || !reflect.DeepEqual(img.queries[0], want) || img.kinds[0] != chart.KindPrice {
		t.Fatalf("fetched %+v %+v", img.queries, img.kinds)
	}
	if len(m.find("sendChatAction")) != 1 {
		t.Fatalf("expected one upload_photo action, calls = %+v", m.calls)
	}
	photos := m.find("sendPhoto")
	if len(photos) != 1 {
		t.Fatalf("photos = %+v", photos)
	}
	p := photos[0].photo
	if p.Caption != "BTCUSD 1h" || string(p.Image) != "png" || p.ChatID != 1 {
		t.Fatalf("photo = %+v", p)
	}
	if len(p.Keyboard) != 1 || len(p.Keyboard[0]) != 2 {
		t.Fatalf("keyboard = %+v", p.Keyboard)
	}
}

func TestBarePriceUsesDefaultsAndSymbolRows(t *testing.T) {
	m := &fakeMessenger{}
	img := &fakeImages{}
	d := testDispatcher(m, img, nil)

	d.Dispatch(context.Background(), private("/price"))
	if !reflect.DeepEqual(img.queries[0], chart.Query{Symbol: "BINANCE:BTCUSDT", Interval: "1D"}) {
		t.Fatalf("query = %+v", img.queries[0])
	}
	kb := m.find("sendPhoto")[0].photo.Keyboard
	if len(kb) != 2 {
		t.Fatalf("expected interval and symbol rows, got %+v", kb)
	}
	tok, err := callbacks.Decode(kb[1][0].Data)
	if err != nil || tok.Kind != callbacks.KindPriceSymbols || tok.Symbol != "ETHUSD" || tok.Interval != "1D" {
		t.Fatalf("symbol button token = %+v (%v)", tok, err)
	}
}

func TestChartCommandMergesDefaults(t *testing.T) {
	m := &fakeMessenger{}
	img := &fakeImages{}
	d := testDispatcher(m, img, nil)

	d.Dispatch(context.Background(), group("/chart msft"))
	want := chart.Query{Symbol: "MSFT", Interval: "4h", Studies: []string{"RSI"}, Style: "candle"}
	if !reflect.DeepEqual(img.queries[0], want) {
		t.Fatalf("query = %+v", img.queries[0])
	}
	if got := m.find("sendPhoto")[0].photo.Caption; got != "MSFT 4h RSI candle" {
		t.Fatalf("caption = %q", got)
	}
}

func TestRateLimitTranslatedVerbatim(t *testing.T) {
	for _, body := range []string{`{"error":"upgrade your plan"}`, `not json`, ``} {
		m := &fakeMessenger{}
		d := testDispatcher(m, &fakeImages{err: &fakeStatusErr{code: 429, body: body}}, nil)
		if got := d.Dispatch(context.Background(), private("/price BTC")); got != OutcomeFailed {
			t.Fatalf("outcome = %s", got)
		}
		texts := m.find("sendMessage")
		if len(texts) != 1 || texts[0].text != testMessages.RateLimit {
			t.Fatalf("body %q: texts = %+v", body, texts)
		}
		if len(m.find("sendPhoto")) != 0 {
			t.Fatal("no photo expected after fetch failure")
		}
	}
}

func TestInvalidSymbolShowsDetail(t *testing.T) {
	m := &fakeMessenger{}
	d := testDispatcher(m, &fakeImages{err: &fakeStatusErr{code: 422, body: `{"error":"Invalid symbol XYZ"}`}}, nil)
	d.Dispatch(context.Background(), private("/chart XYZ"))
	if texts := m.find("sendMessage"); len(texts) != 1 || texts[0].text != "Invalid symbol XYZ" {
		t.Fatalf("texts = %+v", texts)
	}
}

func TestTransportFailureIsGenericError(t *testing.T) {
	m := &fakeMessenger{}
	d := testDispatcher(m, &fakeImages{err: errors.New("dial tcp: refused")}, nil)
	d.Dispatch(context.Background(), private("/price"))
	if texts := m.find("sendMessage"); len(texts) != 1 || texts[0].text != testMessages.Error {
		t.Fatalf("texts = %+v", texts)
	}
}

func TestDeliveryFailureReported(t *testing.T) {
	m := &fakeMessenger{failSend: &fakeStatusErr{code: 400, body: `{"ok":false}`}}
	d := testDispatcher(m, &fakeImages{}, nil)
	if got := d.Dispatch(context.Background(), private("/price")); got != OutcomeFailed {
		t.Fatalf("outcome = %s", got)
	}
	if got := m.methods(); !reflect.DeepEqual(got, []string{"sendPhoto", "sendMessage"}) {
		t.Fatalf("methods = %v", got)
	}
	if m.find("sendMessage")[0].text != testMessages.Error {
		t.Fatalf("error text = %q", m.find("sendMessage")[0].text)
	}
}

func callbackFor(t *testing.T, kind callbacks.Kind, q chart.Query) CallbackQuery {
	t.Helper()
	data, err := callbacks.NewCodec().Encode(kind, q)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return CallbackQuery{ID: "cb-1", MessageID: 10, ChatID: 1, Data: data}
}

func TestCallbackEditsThenAcknowledges(t *testing.T) {
	m := &fakeMessenger{}
	img := &fakeImages{}
	d := testDispatcher(m, img, nil)

	cb := callbackFor(t, callbacks.KindChartSymbols, chart.Query{Symbol: "ETHUSD", Interval: "1h"})
	if got := d.Dispatch(context.Background(), cb); got != OutcomeReplied {
		t.Fatalf("outcome = %s", got)
	}
	if got := m.methods(); !reflect.DeepEqual(got, []string{"editMessageMedia", "answerCallbackQuery"}) {
		t.Fatalf("methods = %v", got)
	}
	// empty studies and style fall back to the chart defaults
	want := chart.Query{Symbol: "ETHUSD", Interval: "1h", Studies: []string{"RSI"}, Style: "candle"}
	if !reflect.DeepEqual(img.queries[0], want) {
		t.Fatalf("query = %+v", img.queries[0])
	}
	edit := m.find("editMessageMedia")[0].edit
	if edit.MessageID != 10 || edit.ChatID != 1 || edit.Caption != "ETHUSD 1h RSI candle" {
		t.Fatalf("edit = %+v", edit)
	}
	if m.find("answerCallbackQuery")[0].text != "cb-1" {
		t.Fatal("wrong callback acknowledged")
	}
}

func TestCallbackEditFailureStillAcknowledgesLast(t *testing.T) {
	m := &fakeMessenger{failEdit: &fakeStatusErr{code: 400}}
	d := testDispatcher(m, &fakeImages{}, nil)

	cb := callbackFor(t, callbacks.KindPrice, chart.Query{Symbol: "BTC", Interval: "1D"})
	if got := d.Dispatch(context.Background(), cb); got != OutcomeFailed {
		t.Fatalf("outcome = %s", got)
	}
	want := []string{"editMessageMedia", "sendMessage", "answerCallbackQuery"}
	if got := m.methods(); !reflect.DeepEqual(got, want) {
		t.Fatalf("methods = %v, want %v", got, want)
	}
}

func TestCallbackFetchFailureAcknowledgesLast(t *testing.T) {
	m := &fakeMessenger{}
	d := testDispatcher(m, &fakeImages{err: &fakeStatusErr{code: 429}}, nil)

	d.Dispatch(context.Background(), callbackFor(t, callbacks.KindPrice, chart.Query{Symbol: "BTC", Interval: "1D"}))
	want := []string{"sendMessage", "answerCallbackQuery"}
	if got := m.methods(); !reflect.DeepEqual(got, want) {
		t.Fatalf("methods = %v, want %v", got, want)
	}
	if m.find("sendMessage")[0].text != testMessages.RateLimit {
		t.Fatalf("text = %q", m.find("sendMessage")[0].text)
	}
}

func TestCallbackUnknownKindOnlyAcknowledges(t *testing.T) {
	for _, data := range []string{"X|BTC|1h|0001", "P|BTC", "", "\fold|payload"} {
		m := &fakeMessenger{}
		d := testDispatcher(m, &fakeImages{}, nil)
		if got := d.Dispatch(context.Background(), CallbackQuery{ID: "cb", MessageID: 1, ChatID: 1, Data: data}); got != OutcomeUnknown {
			t.Fatalf("%q: outcome = %s", data, got)
		}
		if got := m.methods(); !reflect.DeepEqual(got, []string{"answerCallbackQuery"}) {
			t.Fatalf("%q: methods = %v", data, got)
		}
	}
}

func TestCallbackWithoutMessageOnlyAcknowledges(t *testing.T) {
	m := &fakeMessenger{}
	img := &fakeImages{}
	d := testDispatcher(m, img, nil)
	cb := callbackFor(t, callbacks.KindPrice, chart.Query{Symbol: "BTC", Interval: "1D"})
	cb.ChatID, cb.MessageID = 0, 0
	if got := d.Dispatch(context.Background(), cb); got != OutcomeIgnored {
		t.Fatalf("outcome = %s", got)
	}
	if len(img.queries) != 0 || !reflect.DeepEqual(m.methods(), []string{"answerCallbackQuery"}) {
		t.Fatalf("methods = %v", m.methods())
	}
}

func TestCallbackPanicStillAcknowledges(t *testing.T) {
	m := &fakeMessenger{}
	d := testDispatcher(m, &fakeImages{panic: true}, nil)
	func() {
		defer func() { _ = recover() }()
		d.Dispatch(context.Background(), callbackFor(t, callbacks.KindPrice, chart.Query{Symbol: "BTC", Interval: "1D"}))
	}()
	if got := m.methods(); !reflect.DeepEqual(got, []string{"answerCallbackQuery"}) {
		t.Fatalf("methods = %v", got)
	}
}

func TestCommandFetchPanicBecomesErrorReply(t *testing.T) {
	m := &fakeMessenger{}
	d := testDispatcher(m, &fakeImages{panic: true}, nil)
	if got := d.Dispatch(context.Background(), private("/price BTCUSD 1h")); got != OutcomeFailed {
		t.Fatalf("outcome = %s", got)
	}
	texts := m.find("sendMessage")
	if len(texts) != 1 || texts[0].text != testMessages.Error {
		t.Fatalf("texts = %+v", texts)
	}
	if len(m.find("sendPhoto")) != 0 {
		t.Fatalf("photo sent after failed fetch")
	}
}

func TestUnrecognizedUpdate(t *testing.T) {
	m := &fakeMessenger{}
	d := testDispatcher(m, &fakeImages{}, nil)
	if got := d.Dispatch(context.Background(), Unrecognized{}); got != OutcomeUnknown {
		t.Fatalf("outcome = %s", got)
	}
	if got := d.Dispatch(context.Background(), nil); got != OutcomeUnknown {
		t.Fatalf("nil outcome = %s", got)
	}
	if len(m.calls) != 0 {
		t.Fatalf("calls = %+v", m.calls)
	}
}

func TestRecorderFailureDoesNotAffectReply(t *testing.T) {
	m := &fakeMessenger{}
	rec := &fakeRecorder{}
	d := testDispatcher(m, &fakeImages{}, rec)
	if got := d.Dispatch(context.Background(), private("/chart TSLA 1h")); got != OutcomeReplied {
		t.Fatalf("outcome = %s", got)
	}
	if len(rec.entries) != 1 {
		t.Fatalf("entries = %+v", rec.entries)
	}
	e := rec.entries[0]
	if e.ChatID != 1 || e.Source != "command" || e.Kind != chart.KindChart || e.Query.Symbol != "TSLA" || e.Status != 200 {
		t.Fatalf("entry = %+v", e)
	}
}

func TestDelimiterInSymbolGetsInvalidReply(t *testing.T) {
	m := &fakeMessenger{}
	img := &fakeImages{}
	d := testDispatcher(m, img, nil)
	if got := d.Dispatch(context.Background(), private("/price A|B")); got != OutcomeReplied {
		t.Fatalf("outcome = %s", got)
	}
	texts := m.find("sendMessage")
	if len(texts) != 1 || texts[0].text != testMessages.Invalid || len(img.queries) != 0 {
		t.Fatalf("texts = %+v, fetched = %v", texts, img.queries)
	}
}
