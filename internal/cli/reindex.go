package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the search index from the stores",
		Long: "Drop the index contents and re-derive them from the object store and\n" +
			"session logs. Safe at any time; the index holds no original data.",
		Args: cobra.NoArgs,
		Run:  runReindex,
	}

	RootCmd.AddCommand(cmd)
}

func runReindex(cmd *cobra.Command, args []string) {
	a, _ := openArchive()
	defer a.Close()

	if err := a.Rebuild(cmd.Context()); err != nil {
		exitErr("reindex", err)
	}

	stats, err := a.Stats(cmd.Context())
	if err != nil {
		exitErr("reindex", err)
	}
	out := map[string]any{"indexed_rows": 0, "sessions": stats.Sessions}
	if stats.Index != nil {
		out["indexed_rows"] = stats.Index.TotalRows
	}
	b, _ := json.Marshal(out)
	fmt.Println(string(b))
}
