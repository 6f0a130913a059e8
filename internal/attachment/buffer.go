// Package attachment holds the single pending attachment awaiting the next outgoing message.
package attachment

import (
	"encoding/base64"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cchalm/chatwidget/internal/ai"
)

// Source identifies how an attachment entered the buffer
type Source int

const (
	// FilePicker accepts any MIME type
	FilePicker Source = iota
	// Drop accepts image types only
	Drop
)

func (s Source) String() string {
	if s == Drop {
		return "drop"
	}
	return "file-picker"
}

// Attachment is a pending binary attachment. Data is base64 encoded.
type Attachment struct {
	Name     string
	MIMEType string
	Data     string
	Size     int // Size of the decoded content in bytes
}

// InlineData converts the attachment to the content fragment sent to the API
func (a *Attachment) InlineData() *ai.InlineData {
	if a == nil {
		return nil
	}
	return &ai.InlineData{MIMEType: a.MIMEType, Data: a.Data}
}

// DataURL returns the attachment as a data: URL
func (a *Attachment) DataURL() string {
	return fmt.Sprintf("data:%s;base64,%s", a.MIMEType, a.Data)
}

// IsImage reports whether the attachment has an image MIME type
func (a *Attachment) IsImage() bool {
	return isImage(a.MIMEType)
}

// RejectedError is returned when an attachment fails the buffer's constraints
type RejectedError struct {
	Name   string
	Reason string
}

func (e *RejectedError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("attachment rejected: %s", e.Reason)
	}
	return fmt.Sprintf("attachment %q rejected: %s", e.Name, e.Reason)
}

// Buffer is a single slot holding at most one pending attachment
type Buffer struct {
	mu       sync.Mutex
	pending  *Attachment
	onChange func(*Attachment)
}

// NewBuffer creates an empty buffer
func NewBuffer() *Buffer {
	return &Buffer{}
}

// OnChange registers a callback receiving the new slot value (nil when emptied) after every change
func (b *Buffer) OnChange(fn func(*Attachment)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onChange = fn
}

// Attach stores content as the pending attachment, replacing any existing one
func (b *Buffer) Attach(name string, content []byte, mimeType string, source Source) error {
	if len(content) == 0 {
		return &RejectedError{Name: name, Reason: "content is empty"}
	}
	if strings.TrimSpace(mimeType) == "" {
		mimeType = http.DetectContentType(content)
	}
	mimeType = normalizeMIME(mimeType)
	if source == Drop && !isImage(mimeType) {
		return &RejectedError{Name: name, Reason: fmt.Sprintf("dropped files must be images, got %s", mimeType)}
	}

	b.set(&Attachment{
		Name:     name,
		MIMEType: mimeType,
		Data:     base64.StdEncoding.EncodeToString(content),
		Size:     len(content),
	})
	return nil
}

// AttachFile reads the file at path and attaches it. The MIME type is taken from the extension, falling back to
// content sniffing.
func (b *Buffer) AttachFile(path string, source Source) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read attachment: %w", err)
	}
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = http.DetectContentType(content)
	}
	return b.Attach(filepath.Base(path), content, mimeType, source)
}

// Pending returns the pending attachment without clearing it
func (b *Buffer) Pending() *Attachment {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending
}

// HasAttachment reports whether an attachment is pending
func (b *Buffer) HasAttachment() bool {
	return b.Pending() != nil
}

// PeekAndClear returns the pending attachment, or nil, and empties the slot
func (b *Buffer) PeekAndClear() *Attachment {
	b.mu.Lock()
	a := b.pending
	b.pending = nil
	fn := b.onChange
	b.mu.Unlock()

	if a != nil && fn != nil {
		fn(nil)
	}
	return a
}

// Clear discards the pending attachment
func (b *Buffer) Clear() {
	b.PeekAndClear()
}

// Restore puts a previously taken attachment back if the slot is still empty
func (b *Buffer) Restore(a *Attachment) {
	if a == nil {
		return
	}
	b.mu.Lock()
	if b.pending != nil {
		b.mu.Unlock()
		return
	}
	b.pending = a
	fn := b.onChange
	b.mu.Unlock()

	if fn != nil {
		fn(a)
	}
}

func (b *Buffer) set(a *Attachment) {
	b.mu.Lock()
	b.pending = a
	fn := b.onChange
	b.mu.Unlock()

	if fn != nil {
		fn(a)
	}
}

func normalizeMIME(mimeType string) string {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(mimeType))
	}
	return mediaType
}

func isImage(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/")
}
