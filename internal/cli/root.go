// Package cli implements the chronicle CLI commands.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openhearth/chronicle/internal/config"
	"github.com/openhearth/chronicle/internal/logging"
	"github.com/openhearth/chronicle/internal/memory"
)

var homeFlag string

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "chronicle",
	Short: "Conversation memory that follows you between devices",
	Long: "Chronicle keeps device conversations in a content-addressed local store,\n" +
		"indexes them for search, and syncs them between devices through an\n" +
		"ordinary git remote. Message bodies are stored once no matter how often\n" +
		"they repeat; session logs carry who said what and when.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg := mustConfig()
		logging.Init(logging.Options{
			Level: logging.ParseLevel(cfg.LogLevel),
			JSON:  cfg.LogJSON,
		})
	},
	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().StringVar(&homeFlag, "home", "",
		"Config directory (default: $CHRONICLE_HOME or ~/.chronicle)")
}

// mustConfig resolves configuration or exits. Config problems are fatal
// for every command alike.
func mustConfig() *config.Config {
	cfg, err := config.Load(viper.New(), homeFlag)
	if err != nil {
		exitErr("load config", err)
	}
	return cfg
}

// openArchive wires the archive for one command invocation. Callers
// must Close it; Close drains pending index writes.
func openArchive() (*memory.Archive, *config.Config) {
	cfg := mustConfig()
	device, err := config.DeviceID(cfg.BaseDir)
	if err != nil {
		exitErr("device identity", err)
	}
	a, err := memory.Open(memory.Options{
		DataRoot:  cfg.DataRoot,
		Device:    device,
		SyncEvery: cfg.SyncInterval,
	})
	if err != nil {
		exitErr("open archive", err)
	}
	return a, cfg
}

// stdinText returns piped stdin content, or "" when stdin is a
// terminal.
func stdinText() string {
	stat, _ := os.Stdin.Stat()
	if (stat.Mode() & os.ModeCharDevice) != 0 {
		return ""
	}
	b, err := io.ReadAll(os.Stdin)
	if err != nil {
		exitErr("read stdin", err)
	}
	return string(b)
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
