package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openhearth/chronicle/internal/memory"
)

func init() {
	summaryCmd := &cobra.Command{
		Use:   "summary",
		Short: "Session summaries",
	}

	setCmd := &cobra.Command{
		Use:   "set <session> [text]",
		Short: "Set a session's summary",
		Long: "Replace the session's summary. With --store the text is also kept as\n" +
			"a summary object in the content store, which makes it searchable and\n" +
			"lets other devices deduplicate it.",
		Args: cobra.MinimumNArgs(1),
		Run:  runSummarySet,
	}
	setCmd.Flags().Bool("store", false, "Also store the text as a summary object")

	showCmd := &cobra.Command{
		Use:   "show <session>",
		Short: "Print a session's summary",
		Args:  cobra.ExactArgs(1),
		Run:   runSummaryShow,
	}

	storeCmd := &cobra.Command{
		Use:   "store [text]",
		Short: "Store a summary object without attaching it to a session",
		Long: "Store summary text in the content store, optionally naming the hashes\n" +
			"it condenses. Level 2 and above condense lower-level summaries.",
		Args: cobra.ArbitraryArgs,
		Run:  runSummaryStore,
	}
	storeCmd.Flags().StringSliceP("source", "s", nil, "Hash the summary condenses (repeatable)")
	storeCmd.Flags().IntP("level", "l", 1, "Summary level")

	summaryCmd.AddCommand(setCmd, showCmd, storeCmd)
	RootCmd.AddCommand(summaryCmd)
}

func runSummarySet(cmd *cobra.Command, args []string) {
	store, _ := cmd.Flags().GetBool("store")
	sessionID := args[0]

	var text string
	if len(args) > 1 {
		text = strings.Join(args[1:], " ")
	} else {
		text = stdinText()
	}
	text = strings.TrimSpace(text)
	if text == "" {
		exitErr("summary set", fmt.Errorf("summary text is required (positional arg or stdin)"))
	}

	a, _ := openArchive()
	defer a.Close()

	var hash string
	if store {
		var err error
		hash, err = a.RecordSummary(cmd.Context(), memory.RecordSummaryParams{Text: text})
		if err != nil {
			exitErr("summary set", err)
		}
	}
	if err := a.UpdateSummary(cmd.Context(), sessionID, memory.SummaryUpdate{
		Text: text,
		Hash: hash,
	}); err != nil {
		exitErr("summary set", err)
	}

	out := map[string]string{"session": sessionID}
	if hash != "" {
		out["hash"] = hash
	}
	b, _ := json.Marshal(out)
	fmt.Println(string(b))
}

func runSummaryShow(cmd *cobra.Command, args []string) {
	a, _ := openArchive()
	defer a.Close()

	info, err := a.Session(cmd.Context(), args[0])
	if err != nil {
		exitErr("summary show", err)
	}
	if info.Summary == "" {
		exitErr("summary show", fmt.Errorf("session %s has no summary", args[0]))
	}
	fmt.Println(info.Summary)
}

func runSummaryStore(cmd *cobra.Command, args []string) {
	sources, _ := cmd.Flags().GetStringSlice("source")
	level, _ := cmd.Flags().GetInt("level")

	text := strings.TrimSpace(strings.Join(args, " "))
	if text == "" {
		text = strings.TrimSpace(stdinText())
	}
	if text == "" {
		exitErr("summary store", fmt.Errorf("summary text is required (positional arg or stdin)"))
	}

	a, _ := openArchive()
	defer a.Close()

	hash, err := a.RecordSummary(cmd.Context(), memory.RecordSummaryParams{
		Text:    text,
		Sources: sources,
		Level:   level,
	})
	if err != nil {
		exitErr("summary store", err)
	}

	b, _ := json.Marshal(map[string]string{"hash": hash})
	fmt.Println(string(b))
}
