// rbuild clean [path]
package cmd

import (
	"github.com/qobs-build/rbuild/internal/msg"
	"github.com/spf13/cobra"
)

var flagCheckouts bool

func doClean(cmd *cobra.Command, args []string) {
	removed, err := newBuilder(args).Clean(flagCheckouts)
	for _, dir := range removed {
		msg.Step("Removed", "%s", dir)
	}
	if err != nil {
		msg.Fatal("%v", err)
	}
	if len(removed) == 0 {
		msg.Info("nothing to clean")
	}
}

var cleanCmd = &cobra.Command{
	Use:   "clean [target path]",
	Short: "Remove working directories",
	Long:  `Remove the working directories of every build, including ones left by older configurations.`,
	Args:  cobra.MaximumNArgs(1),
	Run:   doClean,
}

func init() {
	// rbuild clean subcommand
	rootCmd.AddCommand(cleanCmd)
	addSelectFlags(cleanCmd)
	cleanCmd.Flags().BoolVarP(&flagCheckouts, "checkouts", "c", false, "Also remove git checkouts")
}
