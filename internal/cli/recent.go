package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openhearth/chronicle/internal/memory"
)

func init() {
	cmd := &cobra.Command{
		Use:   "recent <session>",
		Short: "Print the latest turns of a session",
		Long: "Print the tail of a session resolved through the content store, oldest\n" +
			"first. --max-chars packs from the newest turn backwards, for refilling\n" +
			"a model context window.",
		Args: cobra.ExactArgs(1),
		Run:  runRecent,
	}

	cmd.Flags().IntP("limit", "l", 10, "Max turns (0 = all)")
	cmd.Flags().Int("max-chars", 0, "Char budget across message text (default from config, 0 = unlimited)")

	RootCmd.AddCommand(cmd)
}

func runRecent(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")
	maxChars, _ := cmd.Flags().GetInt("max-chars")

	a, cfg := openArchive()
	defer a.Close()
	if !cmd.Flags().Changed("max-chars") {
		maxChars = cfg.ContextMaxChars
	}

	msgs, err := a.Recent(cmd.Context(), memory.RecentParams{
		Session:  args[0],
		Limit:    limit,
		MaxChars: maxChars,
	})
	if err != nil {
		exitErr("recent", err)
	}

	if len(msgs) == 0 {
		fmt.Println("[]")
		return
	}
	b, _ := json.MarshalIndent(msgs, "", "  ")
	fmt.Println(string(b))
}
