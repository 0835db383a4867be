package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openhearth/chronicle/internal/memory"
)

func init() {
	contextCmd := &cobra.Command{
		Use:   "context",
		Short: "Store and inspect context snapshots",
	}

	snapshotCmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Store a snapshot of a model context window",
		Long: "Record which stored messages (and which system prompt) were in the\n" +
			"model's window for a turn. Pass the returned hash to record --context\n" +
			"on the turn generated from it.",
		Args: cobra.NoArgs,
		Run:  runContextSnapshot,
	}
	snapshotCmd.Flags().StringSliceP("message", "m", nil, "Message hash in the window (repeatable)")
	snapshotCmd.Flags().String("system", "", "System prompt hash")

	showCmd := &cobra.Command{
		Use:   "show <hash>",
		Short: "Expand a snapshot back into its messages",
		Args:  cobra.ExactArgs(1),
		Run:   runContextShow,
	}

	systemCmd := &cobra.Command{
		Use:   "system [text]",
		Short: "Store a system prompt",
		Args:  cobra.ArbitraryArgs,
		Run:   runContextSystem,
	}

	contextCmd.AddCommand(snapshotCmd, showCmd, systemCmd)
	RootCmd.AddCommand(contextCmd)
}

func runContextSnapshot(cmd *cobra.Command, args []string) {
	messages, _ := cmd.Flags().GetStringSlice("message")
	system, _ := cmd.Flags().GetString("system")
	if len(messages) == 0 && system == "" {
		exitErr("context snapshot", fmt.Errorf("nothing to snapshot: pass --message and/or --system"))
	}

	a, _ := openArchive()
	defer a.Close()

	hash, err := a.RecordContext(cmd.Context(), memory.ContextParams{
		Messages: messages,
		System:   system,
	})
	if err != nil {
		exitErr("context snapshot", err)
	}

	b, _ := json.Marshal(map[string]string{"hash": hash})
	fmt.Println(string(b))
}

func runContextShow(cmd *cobra.Command, args []string) {
	a, _ := openArchive()
	defer a.Close()

	msgs, err := a.ReconstructContext(cmd.Context(), args[0])
	if err != nil {
		exitErr("context show", err)
	}

	b, _ := json.MarshalIndent(msgs, "", "  ")
	fmt.Println(string(b))
}

func runContextSystem(cmd *cobra.Command, args []string) {
	text := strings.TrimSpace(strings.Join(args, " "))
	if text == "" {
		text = strings.TrimSpace(stdinText())
	}
	if text == "" {
		exitErr("context system", fmt.Errorf("prompt text is required (positional arg or stdin)"))
	}

	a, _ := openArchive()
	defer a.Close()

	hash, err := a.RecordSystem(cmd.Context(), text)
	if err != nil {
		exitErr("context system", err)
	}

	b, _ := json.Marshal(map[string]string{"hash": hash})
	fmt.Println(string(b))
}
