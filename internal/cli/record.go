package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openhearth/chronicle/internal/memory"
	"github.com/openhearth/chronicle/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "record <session> [text]",
		Short: "Record a conversational turn",
		Long: "Append a turn to a session and store its body in the content store.\n" +
			"Text can be a positional arg or piped via stdin. The printed hash is\n" +
			"stable: the same text always records to the same object.",
		Args: cobra.MinimumNArgs(1),
		Run:  runRecord,
	}

	cmd.Flags().StringP("role", "r", "user", "Speaker: user or assistant")
	cmd.Flags().String("context", "", "Context snapshot hash this turn was generated against")
	cmd.Flags().String("time", "", "Entry timestamp (RFC3339, default: now)")

	RootCmd.AddCommand(cmd)
}

func runRecord(cmd *cobra.Command, args []string) {
	role, _ := cmd.Flags().GetString("role")
	contextHash, _ := cmd.Flags().GetString("context")
	timeStr, _ := cmd.Flags().GetString("time")
	sessionID := args[0]

	var text string
	if len(args) > 1 {
		text = strings.Join(args[1:], " ")
	} else {
		text = stdinText()
	}
	text = strings.TrimSpace(text)
	if text == "" {
		exitErr("record", fmt.Errorf("message text is required (positional arg or stdin)"))
	}

	a, _ := openArchive()
	defer a.Close()

	hash, err := a.Record(cmd.Context(), memory.RecordParams{
		Session:     sessionID,
		Role:        model.Role(role),
		Text:        text,
		ContextHash: contextHash,
		Time:        timeStr,
	})
	if err != nil {
		exitErr("record", err)
	}

	b, _ := json.Marshal(map[string]string{"hash": hash, "session": sessionID})
	fmt.Println(string(b))
}
