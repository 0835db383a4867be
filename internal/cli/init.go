package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openhearth/chronicle/internal/config"
)

func init() {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Prepare the data root for recording and sync",
		Long: "Create the on-disk layout, mint a device identity, and turn the data\n" +
			"root into a git repository. Safe to run again; pass --remote to point\n" +
			"an existing root at a shared remote.",
		Args: cobra.NoArgs,
		Run:  runInit,
	}

	cmd.Flags().String("remote", "", "Git remote URL to sync with (default: sync.remote from config)")

	RootCmd.AddCommand(cmd)
}

func runInit(cmd *cobra.Command, args []string) {
	remote, _ := cmd.Flags().GetString("remote")

	a, cfg := openArchive()
	defer a.Close()

	if remote == "" {
		remote = cfg.Remote
	}
	if err := a.InitRepo(cmd.Context(), remote); err != nil {
		exitErr("init", err)
	}

	device, err := config.DeviceID(cfg.BaseDir)
	if err != nil {
		exitErr("device identity", err)
	}
	out := map[string]string{
		"data_root": cfg.DataRoot,
		"device":    device,
	}
	if remote != "" {
		out["remote"] = remote
	}
	b, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(b))
}
