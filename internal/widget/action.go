// Package widget turns user actions into session, buffer and storage operations and reports the resulting transcript
// changes to a View.
package widget

import (
	"errors"
	"io"

	"github.com/cchalm/chatwidget/internal/attachment"
	"github.com/cchalm/chatwidget/internal/persist"
)

// Kind identifies a user action
type Kind int

const (
	KindSend Kind = iota
	KindCancel
	KindAttachFile
	KindDropFile
	KindRemoveAttachment
	KindRemoveMessage
	KindCopyMessage
	KindClearChat
	KindDownload
	KindToggleTheme
)

func (k Kind) String() string {
	switch k {
	case KindSend:
		return "send"
	case KindCancel:
		return "cancel"
	case KindAttachFile:
		return "attach-file"
	case KindDropFile:
		return "drop-file"
	case KindRemoveAttachment:
		return "remove-attachment"
	case KindRemoveMessage:
		return "remove-message"
	case KindCopyMessage:
		return "copy-message"
	case KindClearChat:
		return "clear-chat"
	case KindDownload:
		return "download"
	case KindToggleTheme:
		return "toggle-theme"
	default:
		return "unknown"
	}
}

// Action is one user interaction. Only the fields relevant to Kind are read.
type Action struct {
	Kind   Kind
	Text   string    // Send
	Path   string    // AttachFile, DropFile
	Index  int       // RemoveMessage, CopyMessage
	Format string    // Download
	Out    io.Writer // Download
}

var (
	ErrUnknownAction    = errors.New("unknown action")
	ErrIndexOutOfRange  = errors.New("message index out of range")
	ErrNoClipboard      = errors.New("clipboard unavailable")
	ErrMissingArguments = errors.New("missing action arguments")
)

// View receives transcript changes. Calls are serialized and must not call back into the Dispatcher.
type View interface {
	Reset(records []persist.Record)
	Appended(index int, record persist.Record)
	Updated(index int, record persist.Record, final bool)
	Removed(index int)
	AttachmentChanged(a *attachment.Attachment)
	ThemeChanged(theme persist.Theme)
}

// Clipboard receives copied message text
type Clipboard interface {
	WriteAll(text string) error
}

// ClipboardFunc adapts a function to the Clipboard interface
type ClipboardFunc func(text string) error

func (f ClipboardFunc) WriteAll(text string) error {
	return f(text)
}
