package cli

import (
	"encoding/json"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/openhearth/chronicle/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "show <session>",
		Short: "Print a session transcript",
		Args:  cobra.ExactArgs(1),
		Run:   runShow,
	}

	cmd.Flags().IntP("last", "n", 0, "Show only the last n messages (0 = all)")
	cmd.Flags().Bool("json", false, "Print JSON instead of a transcript view")

	RootCmd.AddCommand(cmd)
}

func runShow(cmd *cobra.Command, args []string) {
	last, _ := cmd.Flags().GetInt("last")
	asJSON, _ := cmd.Flags().GetBool("json")

	a, _ := openArchive()
	defer a.Close()

	t, err := a.Transcript(cmd.Context(), args[0])
	if err != nil {
		exitErr("show", err)
	}
	if last > 0 && len(t.Messages) > last {
		t.Messages = t.Messages[len(t.Messages)-last:]
	}

	if asJSON {
		b, _ := json.MarshalIndent(t, "", "  ")
		fmt.Println(string(b))
		return
	}
	renderTranscript(t)
}

func renderTranscript(t *model.Transcript) {
	fmt.Println(titleStyle.Render("Session " + t.SessionID))
	line := fmt.Sprintf("%d message(s)", len(t.Messages))
	if t.LastTime != "" {
		if ts, err := model.ParseTime(t.LastTime); err == nil {
			line += ", last activity " + humanize.Time(ts)
		}
	}
	fmt.Println(faintStyle.Render(line))

	if t.Summary != "" {
		fmt.Println()
		fmt.Println(headerStyle.Render("Summary"))
		fmt.Println(t.Summary)
	}
	fmt.Println()

	for _, m := range t.Messages {
		style := userStyle
		if m.Role == model.RoleAssistant {
			style = assistantStyle
		}
		head := style.Render(string(m.Role))
		if m.Time != "" {
			if ts, err := model.ParseTime(m.Time); err == nil {
				head += "  " + dateStyle.Render(humanize.Time(ts))
			}
		}
		fmt.Println(head)
		fmt.Println(m.Content)
		fmt.Println()
	}
}
