package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/cchalm/chatwidget/internal/export"
)

var exportFlags struct {
	format string
	out    string
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the saved transcript",
	Long: `Writes the saved transcript to stdout or a file. The txt format matches the
widget's download: one "[time] User|Bot: text" block per message.`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportFlags.format, "format", "f", "", "Export format: txt, md, json, yaml (default from --out extension, else txt)")
	exportCmd.Flags().StringVarP(&exportFlags.out, "out", "o", "", "Output file (default stdout)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, _ []string) error {
	format := exportFlags.format
	if format == "" {
		format = formatFromPath(exportFlags.out)
	}
	exporter, err := export.NewExporter(format)
	if err != nil {
		return err
	}

	store, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()
	records := store.Load()

	var w io.Writer = cmd.OutOrStdout()
	if exportFlags.out != "" {
		f, err := os.Create(exportFlags.out)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer func() { _ = f.Close() }()
		w = f
	}

	if err := exporter.Export(records, w); err != nil {
		return err
	}
	logger.Debug().Int("records", len(records)).Str("format", format).Msg("Exported transcript")
	return nil
}
