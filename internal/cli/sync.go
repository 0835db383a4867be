package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/openhearth/chronicle/internal/config"
	"github.com/openhearth/chronicle/internal/memory"
)

func init() {
	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync with the shared remote",
		Long: "Run one sync cycle: commit local changes, reconcile with the remote,\n" +
			"push, and index whatever arrived. With --every the command keeps\n" +
			"running, watching the data root and syncing on the given interval.",
		Args: cobra.NoArgs,
		Run:  runSync,
	}
	syncCmd.Flags().Duration("every", 0, "Keep syncing on this interval until interrupted")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Report repository state without touching the network",
		Args:  cobra.NoArgs,
		Run:   runSyncStatus,
	}

	syncCmd.AddCommand(statusCmd)
	RootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) {
	every, _ := cmd.Flags().GetDuration("every")
	if every > 0 {
		runSyncLoop(every)
		return
	}

	a, _ := openArchive()
	defer a.Close()

	res, err := a.Sync(cmd.Context())
	if err != nil {
		// A cycle can land data and still fail afterwards; show what it
		// did before exiting.
		if res != nil {
			b, _ := json.MarshalIndent(res, "", "  ")
			fmt.Println(string(b))
		}
		exitErr("sync", err)
	}

	b, _ := json.MarshalIndent(res, "", "  ")
	fmt.Println(string(b))
}

func runSyncLoop(every time.Duration) {
	cfg := mustConfig()
	device, err := config.DeviceID(cfg.BaseDir)
	if err != nil {
		exitErr("device identity", err)
	}
	a, err := memory.Open(memory.Options{
		DataRoot:  cfg.DataRoot,
		Device:    device,
		Watch:     true,
		SyncEvery: every,
	})
	if err != nil {
		exitErr("open archive", err)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.StartBackground(ctx); err != nil {
		exitErr("sync loop", err)
	}
	fmt.Fprintf(os.Stderr, "syncing every %s; watching %s (ctrl-c to stop)\n", every, cfg.DataRoot)
	<-ctx.Done()
	fmt.Fprintln(os.Stderr, "stopping")
}

func runSyncStatus(cmd *cobra.Command, args []string) {
	a, _ := openArchive()
	defer a.Close()

	st := a.SyncStatus(cmd.Context())
	b, _ := json.MarshalIndent(st, "", "  ")
	fmt.Println(string(b))
}
