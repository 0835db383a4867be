package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check archive integrity",
		Long: "Re-hash every stored object, parse every session log, and chase the\n" +
			"references between them. Exits non-zero when anything is damaged or\n" +
			"missing. Nothing is repaired or deleted.",
		Args: cobra.NoArgs,
		Run:  runVerify,
	}

	RootCmd.AddCommand(cmd)
}

func runVerify(cmd *cobra.Command, args []string) {
	a, _ := openArchive()
	defer a.Close()

	rep, err := a.Verify(cmd.Context())
	if err != nil {
		exitErr("verify", err)
	}

	b, _ := json.MarshalIndent(rep, "", "  ")
	fmt.Println(string(b))
	if !rep.Clean {
		_ = a.Close()
		os.Exit(1)
	}
}
