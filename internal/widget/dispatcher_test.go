package widget

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cchalm/chatwidget/internal/ai"
	"github.com/cchalm/chatwidget/internal/attachment"
	"github.com/cchalm/chatwidget/internal/persist"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type viewEvent struct {
	kind   string
	index  int
	record persist.Record
	final  bool
}

// recordingView captures every view callback
type recordingView struct {
	mu          sync.Mutex
	events      []viewEvent
	reset       []persist.Record
	attachments []*attachment.Attachment
	themes      []persist.Theme
}

func (v *recordingView) Reset(records []persist.Record) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.reset = records
	v.events = append(v.events, viewEvent{kind: "reset"})
}

func (v *recordingView) Appended(index int, record persist.Record) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.events = append(v.events, viewEvent{kind: "appended", index: index, record: record})
}

func (v *recordingView) Updated(index int, record persist.Record, final bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.events = append(v.events, viewEvent{kind: "updated", index: index, record: record, final: final})
}

func (v *recordingView) Removed(index int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.events = append(v.events, viewEvent{kind: "removed", index: index})
}

func (v *recordingView) AttachmentChanged(a *attachment.Attachment) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.attachments = append(v.attachments, a)
}

func (v *recordingView) ThemeChanged(theme persist.Theme) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.themes = append(v.themes, theme)
}

func (v *recordingView) eventsOf(kind string) []viewEvent {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []viewEvent
	for _, e := range v.events {
		if e.kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// blockingSender streams chunks then waits for release or cancellation
type blockingSender struct {
	mu      sync.Mutex
	history [][]ai.Turn
	started chan struct{}
	release chan struct{}
	chunks  []string
	reply   ai.Reply
	err     error
}

func newBlockingSender(reply string) *blockingSender {
	return &blockingSender{
		started: make(chan struct{}, 8),
		release: make(chan struct{}),
		reply:   ai.Reply{Text: reply, Found: true},
	}
}

func (b *blockingSender) Send(ctx context.Context, history []ai.Turn, onChunk ai.ChunkFunc) (ai.Reply, error) {
	b.mu.Lock()
	b.history = append(b.history, history)
	b.mu.Unlock()
	b.started <- struct{}{}
	for _, c := range b.chunks {
		onChunk(c)
	}
	select {
	case <-b.release:
	case <-ctx.Done():
		return ai.Reply{}, ctx.Err()
	}
	return b.reply, b.err
}

func (b *blockingSender) lastHistory() []ai.Turn {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.history[len(b.history)-1]
}

func immediate(reply string) ai.Sender {
	return ai.SenderFunc(func(context.Context, []ai.Turn, ai.ChunkFunc) (ai.Reply, error) {
		return ai.Reply{Text: reply, Found: true}, nil
	})
}

type fixture struct {
	d     *Dispatcher
	view  *recordingView
	kv    *persist.MemoryKV
	store *persist.Store
}

func newFixture(t *testing.T, sender ai.Sender, opts ...Option) *fixture {
	t.Helper()
	kv := persist.NewMemoryKV()
	store := persist.NewStore(kv, zerolog.Nop())
	view := &recordingView{}
	clock := func() time.Time { return time.Date(2025, 6, 1, 10, 1, 0, 0, time.UTC) }
	opts = append([]Option{WithClock(clock)}, opts...)
	return &fixture{d: NewDispatcher(sender, store, view, opts...), view: view, kv: kv, store: store}
}

func wait(t *testing.T, req *ai.Request) ai.Settlement {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := req.Wait(ctx)
	require.NoError(t, err)
	return st
}

func TestSend_Completed(t *testing.T) {
	f := newFixture(t, immediate("  Hi there  "))

	req, err := f.d.Send(context.Background(), "Hello")
	require.NoError(t, err)
	wait(t, req)

	records := f.d.Records()
	require.Len(t, records, 2)
	assert.Equal(t, persist.Record{
		HTML:    "Hello",
		Text:    "Hello",
		Classes: []string{persist.ClassMessage, persist.ClassUser},
		TS:      "10:01",
	}, records[0])
	assert.Equal(t, "Hi there", records[1].Text)
	assert.Equal(t, []string{persist.ClassMessage, persist.ClassBot}, records[1].Classes)

	assert.Equal(t, records, f.store.Load())

	appended := f.view.eventsOf("appended")
	require.Len(t, appended, 2)
	assert.True(t, appended[1].record.HasClass(persist.ClassThinking))
	updated := f.view.eventsOf("updated")
	require.Len(t, updated, 1)
	assert.True(t, updated[0].final)
	assert.Equal(t, 1, updated[0].index)
}

func TestSend_EscapesMarkup(t *testing.T) {
	f := newFixture(t, immediate("<b>ok</b>"))

	req, err := f.d.Send(context.Background(), "<script>x</script>")
	require.NoError(t, err)
	wait(t, req)

	records := f.d.Records()
	assert.Equal(t, "&lt;script&gt;x&lt;/script&gt;", records[0].HTML)
	assert.Equal(t, "&lt;b&gt;ok&lt;/b&gt;", records[1].HTML)
	assert.Equal(t, "<b>ok</b>", records[1].Text)
}

func TestSend_EmptyRejected(t *testing.T) {
	f := newFixture(t, immediate("x"))

	_, err := f.d.Send(context.Background(), "   ")
	require.ErrorIs(t, err, ai.ErrInvalidInput)
	assert.Empty(t, f.d.Records())
	assert.Empty(t, f.d.Session().History())
}

func TestSend_WithAttachment(t *testing.T) {
	sender := newBlockingSender("Nice cat")
	close(sender.release)
	f := newFixture(t, sender)
	require.NoError(t, f.d.Buffer().Attach("cat.png", pngHeader, "image/png", attachment.FilePicker))

	req, err := f.d.Send(context.Background(), "Look")
	require.NoError(t, err)
	wait(t, req)

	assert.False(t, f.d.Buffer().HasAttachment(), "attachment is consumed by one send")
	records := f.d.Records()
	assert.True(t, strings.HasPrefix(records[0].HTML, `Look<img src="data:image/png;base64,`))
	assert.Contains(t, records[0].HTML, `class="attachment"`)
	assert.Equal(t, "Look\n[cat.png]", records[0].Text)

	history := sender.lastHistory()
	require.Len(t, history, 1)
	require.Len(t, history[0].Parts, 2)
	assert.Equal(t, "image/png", history[0].Parts[1].InlineData.MIMEType)

	f.view.mu.Lock()
	defer f.view.mu.Unlock()
	require.Len(t, f.view.attachments, 2)
	assert.NotNil(t, f.view.attachments[0])
	assert.Nil(t, f.view.attachments[1])
}

func TestSend_AttachmentOnly(t *testing.T) {
	f := newFixture(t, immediate("A cat"))
	require.NoError(t, f.d.Buffer().Attach("cat.png", pngHeader, "", attachment.FilePicker))

	req, err := f.d.Send(context.Background(), "")
	require.NoError(t, err)
	wait(t, req)

	records := f.d.Records()
	assert.Equal(t, "[cat.png]", records[0].Text)
	assert.True(t, strings.HasPrefix(records[0].HTML, "<img "))
}

func TestSend_WhileSendingKeepsAttachment(t *testing.T) {
	sender := newBlockingSender("first")
	f := newFixture(t, sender)

	req, err := f.d.Send(context.Background(), "one")
	require.NoError(t, err)
	<-sender.started

	require.NoError(t, f.d.Buffer().Attach("cat.png", pngHeader, "image/png", attachment.FilePicker))
	_, err = f.d.Send(context.Background(), "two")
	require.ErrorIs(t, err, ai.ErrConcurrentSend)
	assert.True(t, f.d.Buffer().HasAttachment())
	assert.Len(t, f.d.Records(), 2)

	close(sender.release)
	wait(t, req)
}

func TestSend_Streaming(t *testing.T) {
	sender := newBlockingSender("Hi there")
	sender.chunks = []string{"Hi", " there"}
	close(sender.release)
	f := newFixture(t, sender)

	req, err := f.d.Send(context.Background(), "Hello")
	require.NoError(t, err)
	wait(t, req)

	updated := f.view.eventsOf("updated")
	require.Len(t, updated, 3)
	assert.Equal(t, "Hi", updated[0].record.Text)
	assert.False(t, updated[0].final)
	assert.True(t, updated[0].record.HasClass(persist.ClassThinking))
	assert.Equal(t, "Hi there", updated[1].record.Text)
	assert.True(t, updated[2].final)
	assert.False(t, updated[2].record.HasClass(persist.ClassThinking))
}

func TestCancel(t *testing.T) {
	sender := newBlockingSender("late")
	f := newFixture(t, sender)

	req, err := f.d.Send(context.Background(), "Hello")
	require.NoError(t, err)
	<-sender.started

	require.NoError(t, f.d.Dispatch(context.Background(), Action{Kind: KindCancel}))
	st := wait(t, req)
	assert.Equal(t, ai.OutcomeCanceled, st.Outcome)

	records := f.d.Records()
	require.Len(t, records, 2)
	assert.Equal(t, ai.CanceledMessage, records[1].Text)
	assert.True(t, records[1].HasClass(persist.ClassCanceled))
	assert.False(t, records[1].HasClass(persist.ClassThinking))
	assert.Len(t, f.d.Session().History(), 1, "canceled replies never enter the history")

	require.ErrorIs(t, f.d.Cancel(), ai.ErrNoActiveRequest)
}

func TestSend_Failed(t *testing.T) {
	sender := ai.SenderFunc(func(context.Context, []ai.Turn, ai.ChunkFunc) (ai.Reply, error) {
		return ai.Reply{}, &ai.TransportError{StatusCode: 429, Message: "quota exceeded"}
	})
	f := newFixture(t, sender)

	req, err := f.d.Send(context.Background(), "Hello")
	require.NoError(t, err)
	wait(t, req)

	records := f.store.Load()
	require.Len(t, records, 2)
	assert.Equal(t, "quota exceeded", records[1].Text)
	assert.True(t, records[1].HasClass(persist.ClassError))
}

func TestSend_NotConfigured(t *testing.T) {
	f := newFixture(t, nil)

	req, err := f.d.Send(context.Background(), "Hello")
	require.NoError(t, err)
	st := wait(t, req)

	assert.Equal(t, ai.OutcomeFailed, st.Outcome)
	assert.Equal(t, ai.NotConfiguredMessage, f.d.Records()[1].Text)
}

func TestRestore(t *testing.T) {
	f := newFixture(t, nil)
	f.store.Save([]persist.Record{
		{HTML: "Hello", Text: "Hello", Classes: []string{persist.ClassMessage, persist.ClassUser}, TS: "09:00"},
		{HTML: "", Classes: []string{persist.ClassMessage, persist.ClassBot, persist.ClassThinking}, TS: "09:00"},
	})
	f.store.SetTheme(persist.ThemeDark)

	f.d.Restore()

	records := f.d.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "Hello", records[0].Text)
	assert.Equal(t, records, f.view.reset)
	assert.Equal(t, []persist.Theme{persist.ThemeDark}, f.view.themes)
	assert.Empty(t, f.d.Session().History(), "restored records are display-only")
}

func TestRemoveMessage(t *testing.T) {
	f := newFixture(t, immediate("Hi"))
	req, err := f.d.Send(context.Background(), "Hello")
	require.NoError(t, err)
	wait(t, req)

	require.NoError(t, f.d.Dispatch(context.Background(), Action{Kind: KindRemoveMessage, Index: 0}))
	records := f.store.Load()
	require.Len(t, records, 1)
	assert.Equal(t, "Hi", records[0].Text)
	assert.Equal(t, []viewEvent{{kind: "removed", index: 0}}, f.view.eventsOf("removed"))

	require.ErrorIs(t, f.d.RemoveMessage(5), ErrIndexOutOfRange)
	require.ErrorIs(t, f.d.RemoveMessage(-1), ErrIndexOutOfRange)
}

func TestRemoveMessage_WhilePending(t *testing.T) {
	sender := newBlockingSender("reply")
	f := newFixture(t, sender)

	req, err := f.d.Send(context.Background(), "Hello")
	require.NoError(t, err)
	<-sender.started

	require.NoError(t, f.d.RemoveMessage(0))
	close(sender.release)
	wait(t, req)

	records := f.d.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "reply", records[0].Text, "placeholder index follows the removal")
}

// countingKV counts transcript writes
type countingKV struct {
	*persist.MemoryKV
	mu    sync.Mutex
	saves int
}

func (c *countingKV) Set(key string, value []byte) error {
	if key == persist.MessagesKey {
		c.mu.Lock()
		c.saves++
		c.mu.Unlock()
	}
	return c.MemoryKV.Set(key, value)
}

func (c *countingKV) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saves
}

func TestRemoveMessage_PlaceholderThenSettle(t *testing.T) {
	sender := newBlockingSender("reply")
	kv := &countingKV{MemoryKV: persist.NewMemoryKV()}
	store := persist.NewStore(kv, zerolog.Nop())
	d := NewDispatcher(sender, store, &recordingView{})

	req, err := d.Send(context.Background(), "Hello")
	require.NoError(t, err)
	<-sender.started

	require.NoError(t, d.RemoveMessage(1))
	afterRemove := kv.count()
	close(sender.release)
	st := wait(t, req)
	assert.Equal(t, ai.OutcomeCompleted, st.Outcome)

	assert.Equal(t, afterRemove+1, kv.count(), "settling saves even when the placeholder is gone")
	records := d.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "Hello", records[0].Text)
	assert.Len(t, store.Load(), 1)
}

func TestCopyMessage(t *testing.T) {
	var copied string
	f := newFixture(t, immediate("Hi"), WithClipboard(ClipboardFunc(func(text string) error {
		copied = text
		return nil
	})))
	req, err := f.d.Send(context.Background(), "Hello")
	require.NoError(t, err)
	wait(t, req)

	require.NoError(t, f.d.Dispatch(context.Background(), Action{Kind: KindCopyMessage, Index: 1}))
	assert.Equal(t, "Hi", copied)
	require.ErrorIs(t, f.d.CopyMessage(2), ErrIndexOutOfRange)
}

func TestCopyMessage_Errors(t *testing.T) {
	f := newFixture(t, immediate("Hi"))
	req, err := f.d.Send(context.Background(), "Hello")
	require.NoError(t, err)
	wait(t, req)
	require.ErrorIs(t, f.d.CopyMessage(0), ErrNoClipboard)

	boom := errors.New("no display")
	f = newFixture(t, immediate("Hi"), WithClipboard(ClipboardFunc(func(string) error { return boom })))
	req, err = f.d.Send(context.Background(), "Hello")
	require.NoError(t, err)
	wait(t, req)
	require.ErrorIs(t, f.d.CopyMessage(0), boom)
}

func TestClearChat(t *testing.T) {
	sender := newBlockingSender("Hi")
	f := newFixture(t, sender)

	req, err := f.d.Send(context.Background(), "Hello")
	require.NoError(t, err)
	<-sender.started
	require.ErrorIs(t, f.d.ClearChat(), ai.ErrConcurrentSend)

	close(sender.release)
	wait(t, req)

	require.NoError(t, f.d.Dispatch(context.Background(), Action{Kind: KindClearChat}))
	assert.Empty(t, f.d.Records())
	assert.Empty(t, f.d.Session().History())
	b, err := f.kv.Get(persist.MessagesKey)
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestDownload(t *testing.T) {
	f := newFixture(t, immediate("Hi there"))
	req, err := f.d.Send(context.Background(), "Hello")
	require.NoError(t, err)
	wait(t, req)

	var buf bytes.Buffer
	require.NoError(t, f.d.Dispatch(context.Background(), Action{Kind: KindDownload, Format: "txt", Out: &buf}))
	assert.Equal(t, "[10:01] User: Hello\n\n[10:01] Bot: Hi there", buf.String())

	require.ErrorIs(t, f.d.Dispatch(context.Background(), Action{Kind: KindDownload}), ErrMissingArguments)
	require.Error(t, f.d.Download("xml", &buf))
}

func TestToggleTheme(t *testing.T) {
	f := newFixture(t, nil)
	f.d.Restore()

	require.NoError(t, f.d.Dispatch(context.Background(), Action{Kind: KindToggleTheme}))
	assert.Equal(t, persist.ThemeDark, f.d.Theme())
	assert.Equal(t, persist.ThemeDark, f.store.Theme())
	assert.Equal(t, persist.ThemeLight, f.d.ToggleTheme())
}

func TestAttachActions(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "cat.png")
	txt := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(img, pngHeader, 0o644))
	require.NoError(t, os.WriteFile(txt, []byte("plain text"), 0o644))

	f := newFixture(t, nil)
	ctx := context.Background()

	var rejected *attachment.RejectedError
	require.ErrorAs(t, f.d.Dispatch(ctx, Action{Kind: KindDropFile, Path: txt}), &rejected)
	assert.False(t, f.d.Buffer().HasAttachment())

	require.NoError(t, f.d.Dispatch(ctx, Action{Kind: KindAttachFile, Path: txt}))
	assert.Equal(t, "notes.txt", f.d.Buffer().Pending().Name)

	require.NoError(t, f.d.Dispatch(ctx, Action{Kind: KindDropFile, Path: img}))
	assert.Equal(t, "cat.png", f.d.Buffer().Pending().Name)

	require.NoError(t, f.d.Dispatch(ctx, Action{Kind: KindRemoveAttachment}))
	assert.False(t, f.d.Buffer().HasAttachment())

	require.ErrorIs(t, f.d.Dispatch(ctx, Action{Kind: KindAttachFile}), ErrMissingArguments)
}

func TestDispatch_UnknownAction(t *testing.T) {
	f := newFixture(t, nil)
	require.ErrorIs(t, f.d.Dispatch(context.Background(), Action{Kind: Kind(99)}), ErrUnknownAction)
	assert.Equal(t, "unknown", Kind(99).String())
}
