package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/cchalm/chatwidget/internal/persist"
)

// TextExporter writes "[ts] Speaker: text" blocks separated by a blank line
type TextExporter struct{}

func (e *TextExporter) Export(records []persist.Record, w io.Writer) error {
	entries := Entries(records)
	blocks := make([]string, 0, len(entries))
	for _, entry := range entries {
		blocks = append(blocks, fmt.Sprintf("[%s] %s: %s", entry.Timestamp, entry.Speaker, entry.Text))
	}
	if _, err := io.WriteString(w, strings.Join(blocks, "\n\n")); err != nil {
		return &Error{Format: "txt", Err: err}
	}
	return nil
}

func (e *TextExporter) Extension() string {
	return "txt"
}
