package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/openhearth/chronicle/internal/export"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export <session>",
		Short: "Export a session transcript",
		Long: "Resolve a session through the content store and write it out as\n" +
			"json, jsonl, yaml, or md.",
		Args: cobra.ExactArgs(1),
		Run:  runExport,
	}

	cmd.Flags().StringP("format", "f", "json", "Export format (json, jsonl, yaml, md)")
	cmd.Flags().StringP("out", "o", "", "Output file or directory (default: stdout)")

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	format, _ := cmd.Flags().GetString("format")
	out, _ := cmd.Flags().GetString("out")

	exporter, err := export.NewExporter(format)
	if err != nil {
		exitErr("export", err)
	}

	a, _ := openArchive()
	defer a.Close()

	t, err := a.Transcript(cmd.Context(), args[0])
	if err != nil {
		exitErr("export", err)
	}

	if out == "" {
		if err := exporter.Export(t, os.Stdout); err != nil {
			exitErr("export", err)
		}
		return
	}

	if info, err := os.Stat(out); err == nil && info.IsDir() {
		out = filepath.Join(out, fmt.Sprintf("%s.%s", t.SessionID, exporter.Extension()))
	}
	f, err := os.Create(out)
	if err != nil {
		exitErr("export", err)
	}
	if err := exporter.Export(t, f); err != nil {
		_ = f.Close()
		exitErr("export", err)
	}
	if err := f.Close(); err != nil {
		exitErr("export", err)
	}
	fmt.Fprintf(os.Stderr, "exported %s to %s\n", t.SessionID, out)
}
