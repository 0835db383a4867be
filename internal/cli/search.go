package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openhearth/chronicle/internal/index"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search stored conversations",
		Long: "Search message, summary, and prompt text across every session. The\n" +
			"index rebuilds itself from the store when it is missing or stale.",
		Args: cobra.MinimumNArgs(1),
		Run:  runSearch,
	}

	cmd.Flags().StringP("session", "s", "", "Filter by session")
	cmd.Flags().StringP("type", "t", "", "Filter by object type (message, summary, system, context)")
	cmd.Flags().StringP("role", "r", "", "Filter by speaker role")
	cmd.Flags().String("since", "", "Only objects at or after this time (RFC3339)")
	cmd.Flags().String("until", "", "Only objects at or before this time (RFC3339)")
	cmd.Flags().IntP("limit", "l", 0, "Max results (default from config)")
	cmd.Flags().Bool("ranked", false, "Order by relevance instead of recency (ignores filters)")

	RootCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	session, _ := cmd.Flags().GetString("session")
	typ, _ := cmd.Flags().GetString("type")
	role, _ := cmd.Flags().GetString("role")
	since, _ := cmd.Flags().GetString("since")
	until, _ := cmd.Flags().GetString("until")
	limit, _ := cmd.Flags().GetInt("limit")
	ranked, _ := cmd.Flags().GetBool("ranked")
	query := strings.Join(args, " ")

	a, cfg := openArchive()
	defer a.Close()
	if limit <= 0 {
		limit = cfg.SearchLimit
	}

	if ranked {
		res, err := a.SearchRanked(cmd.Context(), query, limit)
		if err != nil {
			exitErr("search", err)
		}
		if len(res) == 0 {
			fmt.Println("[]")
			return
		}
		b, _ := json.MarshalIndent(res, "", "  ")
		fmt.Println(string(b))
		return
	}

	rows, err := a.Search(cmd.Context(), index.QueryParams{
		Query:   query,
		Type:    typ,
		Role:    role,
		Session: session,
		Since:   since,
		Until:   until,
		Limit:   limit,
	})
	if err != nil {
		exitErr("search", err)
	}
	if len(rows) == 0 {
		fmt.Println("[]")
		return
	}
	b, _ := json.MarshalIndent(rows, "", "  ")
	fmt.Println(string(b))
}
