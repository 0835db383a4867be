package export

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/openhearth/chronicle/internal/model"
)

// JSONLExporter writes one message per line, the shape ingestion
// pipelines and fine-tuning tools expect. Session-level fields are not
// repeated per line; the file name carries the session.
type JSONLExporter struct{}

func (e *JSONLExporter) Export(t *model.Transcript, w io.Writer) error {
	enc := json.NewEncoder(w)
	for i, m := range t.Messages {
		if err := enc.Encode(m); err != nil {
			return fmt.Errorf("encode message %d: %w", i, err)
		}
	}
	return nil
}

func (e *JSONLExporter) Extension() string {
	return "jsonl"
}
