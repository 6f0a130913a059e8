package export

import (
	"encoding/json"
	"io"

	"github.com/cchalm/chatwidget/internal/persist"
)

// JSONExporter exports the transcript as a JSON array of entries
type JSONExporter struct{}

func (e *JSONExporter) Export(records []persist.Record, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(Entries(records)); err != nil {
		return &Error{Format: "json", Err: err}
	}
	return nil
}

func (e *JSONExporter) Extension() string {
	return "json"
}
