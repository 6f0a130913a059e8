package attachment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestPeekAndClear_DeliversOnce(t *testing.T) {
	b := NewBuffer()
	require.NoError(t, b.Attach("cat.png", pngHeader, "image/png", FilePicker))

	a := b.PeekAndClear()
	require.NotNil(t, a)
	assert.Equal(t, "image/png", a.MIMEType)
	assert.Equal(t, len(pngHeader), a.Size)
	assert.Equal(t, "iVBORw0KGgoAAAANSUhEUg==", a.Data)

	assert.Nil(t, b.PeekAndClear())
	assert.False(t, b.HasAttachment())
}

func TestAttach_RejectsEmpty(t *testing.T) {
	b := NewBuffer()
	err := b.Attach("empty.png", nil, "image/png", FilePicker)
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.False(t, b.HasAttachment())
}

func TestAttach_DropRequiresImage(t *testing.T) {
	b := NewBuffer()

	err := b.Attach("notes.txt", []byte("hello"), "text/plain", Drop)
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.False(t, b.HasAttachment())

	require.NoError(t, b.Attach("notes.txt", []byte("hello"), "text/plain", FilePicker))
	assert.True(t, b.HasAttachment())

	require.NoError(t, b.Attach("cat.png", pngHeader, "image/png", Drop))
	assert.Equal(t, "cat.png", b.Pending().Name)
}

func TestAttach_ReplacesExisting(t *testing.T) {
	b := NewBuffer()
	require.NoError(t, b.Attach("a.png", pngHeader, "image/png", FilePicker))
	require.NoError(t, b.Attach("b.gif", []byte("GIF89a"), "image/gif", FilePicker))

	a := b.PeekAndClear()
	require.NotNil(t, a)
	assert.Equal(t, "b.gif", a.Name)
	assert.Nil(t, b.PeekAndClear())
}

func TestAttach_SniffsMissingType(t *testing.T) {
	b := NewBuffer()
	require.NoError(t, b.Attach("blob", pngHeader, "", Drop))
	assert.Equal(t, "image/png", b.Pending().MIMEType)
}

func TestAttachFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photo.png")
	require.NoError(t, os.WriteFile(path, pngHeader, 0o644))

	b := NewBuffer()
	require.NoError(t, b.AttachFile(path, Drop))
	a := b.Pending()
	require.NotNil(t, a)
	assert.Equal(t, "photo.png", a.Name)
	assert.Equal(t, "image/png", a.MIMEType)
	assert.Equal(t, "data:image/png;base64,iVBORw0KGgoAAAANSUhEUg==", a.DataURL())

	require.Error(t, b.AttachFile(filepath.Join(dir, "missing.png"), FilePicker))
}

func TestOnChange(t *testing.T) {
	b := NewBuffer()
	var seen []*Attachment
	b.OnChange(func(a *Attachment) { seen = append(seen, a) })

	require.NoError(t, b.Attach("a.png", pngHeader, "image/png", FilePicker))
	b.Clear()
	b.Clear() // already empty, no notification

	require.Len(t, seen, 2)
	assert.Equal(t, "a.png", seen[0].Name)
	assert.Nil(t, seen[1])
}

func TestRestore(t *testing.T) {
	b := NewBuffer()
	require.NoError(t, b.Attach("a.png", pngHeader, "image/png", FilePicker))
	a := b.PeekAndClear()

	b.Restore(a)
	assert.Equal(t, a, b.Pending())

	require.NoError(t, b.Attach("b.png", pngHeader, "image/png", FilePicker))
	b.Restore(a)
	assert.Equal(t, "b.png", b.Pending().Name)
}

func TestInlineData(t *testing.T) {
	var none *Attachment
	assert.Nil(t, none.InlineData())

	a := &Attachment{MIMEType: "image/jpeg", Data: "Zm9v"}
	d := a.InlineData()
	assert.Equal(t, "image/jpeg", d.MIMEType)
	assert.Equal(t, "Zm9v", d.Data)
}
