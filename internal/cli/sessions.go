package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/openhearth/chronicle/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List sessions, most recent first",
		Args:  cobra.NoArgs,
		Run:   runSessions,
	}

	cmd.Flags().IntP("limit", "l", 0, "Show at most this many sessions (0 = all)")
	cmd.Flags().Bool("json", false, "Print JSON instead of a table")

	newCmd := &cobra.Command{
		Use:   "new",
		Short: "Mint a fresh session ID",
		Long: "Print a new time-sortable session ID. Nothing is written until the\n" +
			"first turn is recorded in it.",
		Args: cobra.NoArgs,
		Run:  runSessionsNew,
	}

	cmd.AddCommand(newCmd)
	RootCmd.AddCommand(cmd)
}

func runSessionsNew(cmd *cobra.Command, args []string) {
	b, _ := json.Marshal(map[string]string{"session": model.NewSessionID()})
	fmt.Println(string(b))
}

func runSessions(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")
	asJSON, _ := cmd.Flags().GetBool("json")

	a, _ := openArchive()
	defer a.Close()

	infos, err := a.Sessions(cmd.Context(), limit)
	if err != nil {
		exitErr("list sessions", err)
	}

	if asJSON {
		b, _ := json.MarshalIndent(infos, "", "  ")
		fmt.Println(string(b))
		return
	}
	renderSessions(infos)
}

func renderSessions(infos []model.SessionInfo) {
	if len(infos) == 0 {
		fmt.Println(faintStyle.Render("no sessions recorded yet"))
		return
	}

	fmt.Println(headerStyle.Render(fmt.Sprintf("%d session(s)", len(infos))))
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, titleStyle.Render("SESSION")+"\t"+
		titleStyle.Render("MESSAGES")+"\t"+
		titleStyle.Render("LAST ACTIVITY")+"\t"+
		titleStyle.Render("SUMMARY"))
	for _, s := range infos {
		last := "-"
		if s.LastTime != "" {
			last = s.LastTime
			if t, err := model.ParseTime(s.LastTime); err == nil {
				last = humanize.Time(t)
			}
		}
		summary := s.Summary
		if len(summary) > 60 {
			summary = summary[:57] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			idStyle.Render(s.ID),
			countStyle.Render(strconv.Itoa(s.MessageCount)),
			dateStyle.Render(last),
			summary)
	}
	_ = w.Flush()
}
