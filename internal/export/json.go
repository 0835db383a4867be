package export

import (
	"encoding/json"
	"io"

	"github.com/openhearth/chronicle/internal/model"
)

// JSONExporter writes the whole transcript as pretty-printed JSON.
type JSONExporter struct{}

func (e *JSONExporter) Export(t *model.Transcript, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(t)
}

func (e *JSONExporter) Extension() string {
	return "json"
}
