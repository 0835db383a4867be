package export

import (
	"io"

	"gopkg.in/yaml.v3"

	"github.com/openhearth/chronicle/internal/model"
)

// YAMLExporter writes the whole transcript as a YAML document.
type YAMLExporter struct{}

func (e *YAMLExporter) Export(t *model.Transcript, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	defer func() { _ = enc.Close() }()
	return enc.Encode(t)
}

func (e *YAMLExporter) Extension() string {
	return "yaml"
}
