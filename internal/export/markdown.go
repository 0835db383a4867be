package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/openhearth/chronicle/internal/model"
)

// MarkdownExporter writes a human-readable transcript.
type MarkdownExporter struct{}

func (e *MarkdownExporter) Export(t *model.Transcript, w io.Writer) error {
	_, _ = fmt.Fprintf(w, "# Session %s\n\n", t.SessionID)
	if t.LastTime != "" {
		_, _ = fmt.Fprintf(w, "**Last activity:** %s  \n", t.LastTime)
	}
	_, _ = fmt.Fprintf(w, "**Messages:** %d\n\n", len(t.Messages))

	if t.Summary != "" {
		_, _ = fmt.Fprintf(w, "## Summary\n\n%s\n\n", t.Summary)
	}

	_, _ = fmt.Fprintf(w, "---\n\n")

	for i, m := range t.Messages {
		stamp := ""
		if m.Time != "" {
			stamp = fmt.Sprintf(" (%s)", m.Time)
		}
		_, _ = fmt.Fprintf(w, "**%s:**%s\n\n%s\n\n", m.Role, stamp, escapeMarkdown(m.Content))
		if i < len(t.Messages)-1 {
			_, _ = fmt.Fprintf(w, "---\n\n")
		}
	}
	return nil
}

// escapeMarkdown neutralizes emphasis markers outside fenced code
// blocks so message text cannot restyle the surrounding document.
func escapeMarkdown(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	inCode := false

	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "```"):
			inCode = !inCode
		case !inCode:
			line = strings.ReplaceAll(line, "**", `\*\*`)
			line = strings.ReplaceAll(line, "__", `\_\_`)
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func (e *MarkdownExporter) Extension() string {
	return "md"
}
