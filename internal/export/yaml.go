package export

import (
	"io"

	"gopkg.in/yaml.v3"

	"github.com/cchalm/chatwidget/internal/persist"
)

// YAMLExporter exports the transcript in YAML format
type YAMLExporter struct{}

// Export exports records to YAML format
func (e *YAMLExporter) Export(records []persist.Record, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	defer func() { _ = enc.Close() }()

	if err := enc.Encode(Entries(records)); err != nil {
		return &Error{Format: "yaml", Err: err}
	}
	return nil
}

// Extension returns the file extension for this format
func (e *YAMLExporter) Extension() string {
	return "yaml"
}
