// rbuild hash [path]
package cmd

import (
	"fmt"

	"github.com/qobs-build/rbuild/internal/msg"
	"github.com/spf13/cobra"
)

func doHash(cmd *cobra.Command, args []string) {
	infos, err := newBuilder(args).Identities()
	if err != nil {
		msg.Fatal("%v", err)
	}
	for _, info := range infos {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%016x\t%s\n", info.Name, info.Hash, info.DirName)
	}
}

var hashCmd = &cobra.Command{
	Use:   "hash [target path]",
	Short: "Print the hash and working directory of every build",
	Long:  `Print the hash and working directory of every build without building anything.`,
	Args:  cobra.MaximumNArgs(1),
	Run:   doHash,
}

func init() {
	// rbuild hash subcommand
	rootCmd.AddCommand(hashCmd)
	addSelectFlags(hashCmd)
}
