package widget

import (
	"context"
	"fmt"
	"html"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cchalm/chatwidget/internal/ai"
	"github.com/cchalm/chatwidget/internal/attachment"
	"github.com/cchalm/chatwidget/internal/export"
	"github.com/cchalm/chatwidget/internal/persist"
)

// TimestampLayout formats record timestamps as hour and minute
const TimestampLayout = "15:04"

// Option configures a Dispatcher
type Option func(*Dispatcher)

func WithLogger(logger zerolog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

func WithClipboard(c Clipboard) Option {
	return func(d *Dispatcher) { d.clipboard = c }
}

// WithSessionOptions passes options through to the conversation session
func WithSessionOptions(opts ...ai.Option) Option {
	return func(d *Dispatcher) { d.sessionOpts = append(d.sessionOpts, opts...) }
}

// WithClock overrides the time source used for timestamps
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// Dispatcher owns the rendered transcript. It's the session's render sink and settle callback, and every transcript
// change is saved and reported to the view.
type Dispatcher struct {
	session     *ai.Session
	buffer      *attachment.Buffer
	store       *persist.Store
	view        View
	clipboard   Clipboard
	logger      zerolog.Logger
	now         func() time.Time
	sessionOpts []ai.Option

	mu        sync.Mutex
	records   []persist.Record
	pending   int    // Index of the reply placeholder, -1 when none
	pendingID string // Request the placeholder belongs to
	theme     persist.Theme
}

// NewDispatcher creates a dispatcher and the session it drives. A nil sender yields an unconfigured session.
func NewDispatcher(sender ai.Sender, store *persist.Store, view View, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		buffer:  attachment.NewBuffer(),
		store:   store,
		view:    view,
		logger:  zerolog.Nop(),
		now:     time.Now,
		pending: -1,
		theme:   persist.ThemeLight,
	}
	for _, opt := range opts {
		opt(d)
	}
	sessionOpts := append([]ai.Option{ai.WithLogger(d.logger)}, d.sessionOpts...)
	sessionOpts = append(sessionOpts, ai.WithSink(d), ai.WithSettleFunc(d.settled))
	d.session = ai.NewSession(sender, sessionOpts...)

	d.buffer.OnChange(func(a *attachment.Attachment) {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.view.AttachmentChanged(a)
	})
	return d
}

// Session returns the underlying conversation session
func (d *Dispatcher) Session() *ai.Session {
	return d.session
}

// Buffer returns the pending attachment buffer
func (d *Dispatcher) Buffer() *attachment.Buffer {
	return d.buffer
}

// Records returns a copy of the transcript
func (d *Dispatcher) Records() []persist.Record {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.records)
}

// Theme returns the current theme
func (d *Dispatcher) Theme() persist.Theme {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.theme
}

// Restore loads the saved transcript and theme into the view. The API history starts empty: restored records are
// display-only. Placeholders left by an interrupted request are dropped.
func (d *Dispatcher) Restore() {
	records := slices.DeleteFunc(d.store.Load(), func(r persist.Record) bool {
		return r.HasClass(persist.ClassThinking)
	})
	theme := d.store.Theme()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.records = records
	d.pending = -1
	d.theme = theme
	d.view.Reset(slices.Clone(records))
	d.view.ThemeChanged(theme)
	d.logger.Debug().Int("records", len(records)).Str("theme", string(theme)).Msg("Restored transcript")
}

// Dispatch performs one user action
func (d *Dispatcher) Dispatch(ctx context.Context, action Action) error {
	d.logger.Debug().Stringer("action", action.Kind).Msg("Dispatching action")

	var err error
	switch action.Kind {
	case KindSend:
		_, err = d.Send(ctx, action.Text)
	case KindCancel:
		err = d.session.Cancel()
	case KindAttachFile:
		err = d.attach(action.Path, attachment.FilePicker)
	case KindDropFile:
		err = d.attach(action.Path, attachment.Drop)
	case KindRemoveAttachment:
		d.buffer.Clear()
	case KindRemoveMessage:
		err = d.RemoveMessage(action.Index)
	case KindCopyMessage:
		err = d.CopyMessage(action.Index)
	case KindClearChat:
		err = d.ClearChat()
	case KindDownload:
		if action.Out == nil {
			return fmt.Errorf("%s: %w", action.Kind, ErrMissingArguments)
		}
		err = d.Download(action.Format, action.Out)
	case KindToggleTheme:
		d.ToggleTheme()
	default:
		return fmt.Errorf("%w: %d", ErrUnknownAction, action.Kind)
	}
	if err != nil {
		d.logger.Debug().Err(err).Stringer("action", action.Kind).Msg("Action failed")
	}
	return err
}

// Send takes the pending attachment, records the user message and starts a request. While a request is in flight the
// call fails and the pending attachment is left in place.
func (d *Dispatcher) Send(ctx context.Context, text string) (*ai.Request, error) {
	if d.busy() {
		return nil, ai.ErrConcurrentSend
	}
	text = strings.TrimSpace(text)
	if text == "" && !d.buffer.HasAttachment() {
		return nil, ai.ErrInvalidInput
	}

	att := d.buffer.PeekAndClear()

	// Held across Send so stream chunks can't arrive before the placeholder exists
	d.mu.Lock()
	var (
		req *ai.Request
		err = ai.ErrConcurrentSend
	)
	if d.pending < 0 {
		req, err = d.session.Send(ctx, text, att.InlineData())
	}
	if err != nil {
		d.mu.Unlock()
		d.buffer.Restore(att)
		return nil, err
	}

	ts := d.now().Format(TimestampLayout)
	d.appendLocked(userRecord(text, att, ts))
	d.store.Save(d.records)

	d.appendLocked(persist.Record{
		Classes: []string{persist.ClassMessage, persist.ClassBot, persist.ClassThinking},
		TS:      ts,
	})
	d.pending = len(d.records) - 1
	d.pendingID = req.ID()
	d.mu.Unlock()

	return req, nil
}

// busy reports whether a request is in flight or its reply hasn't been recorded yet
func (d *Dispatcher) busy() bool {
	d.mu.Lock()
	waiting := d.pending >= 0
	d.mu.Unlock()
	return waiting || d.session.State() == ai.StateSending
}

// Cancel cancels the in-flight request
func (d *Dispatcher) Cancel() error {
	return d.session.Cancel()
}

func (d *Dispatcher) attach(path string, source attachment.Source) error {
	if path == "" {
		return fmt.Errorf("%s attachment: %w", source, ErrMissingArguments)
	}
	return d.buffer.AttachFile(path, source)
}

// RemoveMessage deletes the record at index
func (d *Dispatcher) RemoveMessage(index int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if index < 0 || index >= len(d.records) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	d.records = slices.Delete(d.records, index, index+1)
	switch {
	case index == d.pending:
		d.pending = -1
	case index < d.pending:
		d.pending--
	}
	d.view.Removed(index)
	d.store.Save(d.records)
	return nil
}

// CopyMessage writes the text of the record at index to the clipboard
func (d *Dispatcher) CopyMessage(index int) error {
	d.mu.Lock()
	if index < 0 || index >= len(d.records) {
		d.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	text := recordText(d.records[index])
	d.mu.Unlock()

	if d.clipboard == nil {
		return ErrNoClipboard
	}
	if err := d.clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("failed to copy message: %w", err)
	}
	return nil
}

// ClearChat empties the transcript and the conversation history. It fails while a request is in flight.
func (d *Dispatcher) ClearChat() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.session.Clear(); err != nil {
		return err
	}
	d.records = nil
	d.pending = -1
	d.view.Reset([]persist.Record{})
	d.store.Clear()
	return nil
}

// Download writes the transcript to w in the given export format
func (d *Dispatcher) Download(format string, w io.Writer) error {
	exporter, err := export.NewExporter(format)
	if err != nil {
		return err
	}
	return exporter.Export(d.Records(), w)
}

// ToggleTheme flips and saves the theme
func (d *Dispatcher) ToggleTheme() persist.Theme {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.theme = d.theme.Toggle()
	d.store.SetTheme(d.theme)
	d.view.ThemeChanged(d.theme)
	return d.theme
}

// TurnRendered implements ai.Sink. Streamed model text replaces the placeholder's content; user turns are recorded by
// Send and final model turns by the settle callback.
func (d *Dispatcher) TurnRendered(turn ai.Turn, final bool) {
	if turn.Role != ai.RoleModel || final {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending < 0 {
		return
	}
	r := d.records[d.pending]
	r.Text = turn.Text()
	r.HTML = html.EscapeString(r.Text)
	d.records[d.pending] = r
	d.view.Updated(d.pending, r, false)
}

func (d *Dispatcher) settled(st ai.Settlement) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending < 0 || d.pendingID != st.RequestID {
		// Placeholder was removed while the request was in flight. The session still settled, so record that.
		d.store.Save(d.records)
		return
	}

	r := d.records[d.pending].WithoutClass(persist.ClassThinking)
	switch st.Outcome {
	case ai.OutcomeCompleted:
		r.Text = st.Text
	case ai.OutcomeCanceled:
		r.Text = st.Message
		r = r.WithClass(persist.ClassCanceled)
	case ai.OutcomeFailed:
		r.Text = st.Message
		r = r.WithClass(persist.ClassError)
	}
	r.HTML = html.EscapeString(r.Text)

	index := d.pending
	d.records[index] = r
	d.pending = -1
	d.view.Updated(index, r, true)
	d.store.Save(d.records)
}

func (d *Dispatcher) appendLocked(r persist.Record) {
	d.records = append(d.records, r)
	d.view.Appended(len(d.records)-1, r)
}

func userRecord(text string, att *attachment.Attachment, ts string) persist.Record {
	var markup strings.Builder
	markup.WriteString(html.EscapeString(text))
	plain := text
	if att != nil {
		if att.IsImage() {
			fmt.Fprintf(&markup, `<img src="%s" class="attachment" />`, html.EscapeString(att.DataURL()))
		} else {
			fmt.Fprintf(&markup, `<span class="attachment">%s</span>`, html.EscapeString(att.Name))
		}
		plain = strings.TrimSpace(plain + "\n[" + att.Name + "]")
	}
	return persist.Record{
		HTML:    markup.String(),
		Text:    plain,
		Classes: []string{persist.ClassMessage, persist.ClassUser},
		TS:      ts,
	}
}

func recordText(r persist.Record) string {
	if r.Text != "" {
		return r.Text
	}
	return persist.PlainText(r.HTML)
}
