// Package export renders resolved transcripts in interchange formats.
package export

import (
	"fmt"
	"io"

	"github.com/openhearth/chronicle/internal/model"
)

// Exporter writes one transcript to w in a specific format.
type Exporter interface {
	Export(t *model.Transcript, w io.Writer) error
	Extension() string
}

// NewExporter returns the exporter for format.
func NewExporter(format string) (Exporter, error) {
	switch format {
	case "json":
		return &JSONExporter{}, nil
	case "jsonl":
		return &JSONLExporter{}, nil
	case "yaml", "yml":
		return &YAMLExporter{}, nil
	case "md", "markdown":
		return &MarkdownExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format %q (supported: json, jsonl, yaml, md)", format)
	}
}
