package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/openhearth/chronicle/internal/memory"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show archive statistics",
		Args:  cobra.NoArgs,
		Run:   runStats,
	}

	cmd.Flags().Bool("json", false, "Print JSON instead of a summary")

	RootCmd.AddCommand(cmd)
}

func runStats(cmd *cobra.Command, args []string) {
	asJSON, _ := cmd.Flags().GetBool("json")

	a, _ := openArchive()
	defer a.Close()

	stats, err := a.Stats(cmd.Context())
	if err != nil {
		exitErr("stats", err)
	}

	if asJSON {
		b, _ := json.MarshalIndent(stats, "", "  ")
		fmt.Println(string(b))
		return
	}
	renderStats(stats)
}

func renderStats(st *memory.ArchiveStats) {
	fmt.Println(titleStyle.Render("Archive " + st.DataRoot))
	fmt.Println(faintStyle.Render("device " + st.Device))
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\n", headerStyle.Render("Objects"), countStyle.Render(strconv.Itoa(st.Objects)))
	fmt.Fprintf(w, "%s\t%s\n", headerStyle.Render("Sessions"), countStyle.Render(strconv.Itoa(st.Sessions)))
	fmt.Fprintf(w, "%s\t%s\n", headerStyle.Render("On disk"), humanize.Bytes(uint64(st.DataBytes)))

	switch {
	case st.IndexStale:
		fmt.Fprintf(w, "%s\t%s\n", headerStyle.Render("Index"), warnStyle.Render("stale, next search rebuilds it"))
	case st.Index != nil:
		fmt.Fprintf(w, "%s\t%s\n", headerStyle.Render("Indexed"), countStyle.Render(strconv.Itoa(st.Index.TotalRows)))
		types := make([]string, 0, len(st.Index.ByType))
		for typ := range st.Index.ByType {
			types = append(types, typ)
		}
		sort.Strings(types)
		for _, typ := range types {
			fmt.Fprintf(w, "%s\t%d\n", faintStyle.Render("  "+typ), st.Index.ByType[typ])
		}
	}

	switch {
	case !st.Sync.IsRepo:
		fmt.Fprintf(w, "%s\t%s\n", headerStyle.Render("Sync"), faintStyle.Render("not initialized (run chronicle init)"))
	case st.Sync.Remote == "":
		fmt.Fprintf(w, "%s\t%s\n", headerStyle.Render("Sync"), "local history only")
	default:
		fmt.Fprintf(w, "%s\t%s\n", headerStyle.Render("Sync"), st.Sync.Remote)
	}
	if st.Sync.Dirty {
		fmt.Fprintf(w, "%s\t%s\n", faintStyle.Render("  pending"), "local changes not yet committed")
	}
	_ = w.Flush()
}
