package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "get <hash>",
		Short: "Fetch one stored object by hash",
		Args:  cobra.ExactArgs(1),
		Run:   runGet,
	}

	cmd.Flags().Bool("raw", false, "Print only the content field")

	RootCmd.AddCommand(cmd)
}

func runGet(cmd *cobra.Command, args []string) {
	raw, _ := cmd.Flags().GetBool("raw")

	a, _ := openArchive()
	defer a.Close()

	obj, err := a.Object(cmd.Context(), args[0])
	if err != nil {
		exitErr("get", err)
	}

	if raw {
		fmt.Println(obj.Content)
		return
	}
	b, _ := json.MarshalIndent(obj, "", "  ")
	fmt.Println(string(b))
}
