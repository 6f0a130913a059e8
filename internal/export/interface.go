// Package export renders a saved transcript for download.
package export

import (
	"errors"
	"fmt"
	"io"

	"github.com/cchalm/chatwidget/internal/persist"
)

// Exporter defines the interface for all export formats
type Exporter interface {
	Export(records []persist.Record, w io.Writer) error
	Extension() string
}

// NewExporter creates a new exporter based on format
func NewExporter(format string) (Exporter, error) {
	switch format {
	case "txt", "text", "":
		return &TextExporter{}, nil
	case "md", "markdown":
		return &MarkdownExporter{}, nil
	case "json":
		return &JSONExporter{}, nil
	case "yaml", "yml":
		return &YAMLExporter{}, nil
	default:
		return nil, &Error{Format: format, Err: errors.New("unsupported format (supported: txt, md, json, yaml)")}
	}
}

// Error reports a failed export
type Error struct {
	Format string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("export %q: %v", e.Format, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Entry is the format-neutral view of one record
type Entry struct {
	Timestamp string `json:"timestamp" yaml:"timestamp"`
	Speaker   string `json:"speaker" yaml:"speaker"`
	Text      string `json:"text" yaml:"text"`
	Canceled  bool   `json:"canceled,omitempty" yaml:"canceled,omitempty"`
	Error     bool   `json:"error,omitempty" yaml:"error,omitempty"`
}

// Speaker labels
const (
	SpeakerUser = "User"
	SpeakerBot  = "Bot"
)

// Entries converts records to entries. Records still waiting for a reply are skipped.
func Entries(records []persist.Record) []Entry {
	entries := make([]Entry, 0, len(records))
	for _, r := range records {
		if r.HasClass(persist.ClassThinking) {
			continue
		}
		speaker := SpeakerBot
		if r.IsUser() {
			speaker = SpeakerUser
		}
		entries = append(entries, Entry{
			Timestamp: r.TS,
			Speaker:   speaker,
			Text:      recordText(r),
			Canceled:  r.HasClass(persist.ClassCanceled),
			Error:     r.HasClass(persist.ClassError),
		})
	}
	return entries
}

func recordText(r persist.Record) string {
	if r.Text != "" {
		return r.Text
	}
	return persist.PlainText(r.HTML)
}
