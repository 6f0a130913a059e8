package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/cchalm/chatwidget/internal/persist"
)

// MarkdownExporter exports the transcript in Markdown format
type MarkdownExporter struct{}

// Export exports records to Markdown format
func (e *MarkdownExporter) Export(records []persist.Record, w io.Writer) error {
	entries := Entries(records)

	var sb strings.Builder
	sb.WriteString("# Chat transcript\n\n")
	fmt.Fprintf(&sb, "**Messages:** %d\n\n", len(entries))

	for i, entry := range entries {
		timestamp := ""
		if entry.Timestamp != "" {
			timestamp = fmt.Sprintf(" (%s)", entry.Timestamp)
		}
		note := ""
		switch {
		case entry.Canceled:
			note = " _canceled_"
		case entry.Error:
			note = " _error_"
		}
		fmt.Fprintf(&sb, "**%s:**%s%s\n\n%s\n\n", entry.Speaker, timestamp, note, entry.Text)
		if i < len(entries)-1 {
			sb.WriteString("---\n\n")
		}
	}

	if _, err := io.WriteString(w, sb.String()); err != nil {
		return &Error{Format: "md", Err: err}
	}
	return nil
}

// Extension returns the file extension for this format
func (e *MarkdownExporter) Extension() string {
	return "md"
}
