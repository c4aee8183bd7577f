// rbuild [path], rbuild build [path]
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/qobs-build/rbuild/internal/build"
	"github.com/qobs-build/rbuild/internal/builder"
	"github.com/qobs-build/rbuild/internal/msg"
	"github.com/spf13/cobra"
)

var (
	flagBuildDir    string
	flagOnly        []string
	flagKeep        bool
	flagVerbose     bool
	flagLibraryType EnumValue = NewEnumValue("", map[string]string{
		"static": "Build static libraries",
		"shared": "Build shared libraries",
	})
)

func targetDir(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "."
}

func builderOptions() builder.Options {
	opts := builder.Options{
		BuildDir: flagBuildDir,
		Keep:     flagKeep,
		Verbose:  flagVerbose,
		Only:     flagOnly,
	}
	if kind, ok := build.ParseLibraryType(flagLibraryType.Value()); ok {
		opts.LibraryType = kind
	}
	return opts
}

func newBuilder(args []string) *builder.Builder {
	b, err := builder.NewBuilderInDirectory(targetDir(args), builderOptions())
	if err != nil {
		msg.Fatal("%v", err)
	}
	return b
}

func doBuild(cmd *cobra.Command, args []string) {
	b := newBuilder(args)

	result, err := b.Build(cmd.Context())
	if err != nil {
		var buildErr *build.Error
		if errors.As(err, &buildErr) {
			fmt.Fprint(os.Stderr, buildErr.PrettyFormat())
			os.Exit(1)
		}
		msg.Fatal("%v", err)
	}

	if err := result.Emit(os.Stdout); err != nil {
		msg.Fatal("failed to write build output: %v", err)
	}
}

var rootCmd = &cobra.Command{
	Use:   "rbuild [target path]",
	Short: "Build native libraries for cargo build scripts",
	Long: `Build native libraries for cargo build scripts.

Reads rbuild.toml in the target path (default "."), fetches and builds every
configured library in its own working directory and prints the cargo:
directives needed to link them.`,
	Args: cobra.MaximumNArgs(1),
	Run:  doBuild,
}

var buildCmd = &cobra.Command{
	Use:   "build [target path]",
	Short: "Build the configured libraries",
	Long:  `Build the configured libraries. If no target path is given, uses "."`,
	Args:  cobra.MaximumNArgs(1),
	Run:   doBuild,
}

func init() {
	addBuildFlags(rootCmd)

	// rbuild build subcommand
	rootCmd.AddCommand(buildCmd)
	addBuildFlags(buildCmd)
}

// addSelectFlags adds the flags that change which builds run and what
// their hashes are.
func addSelectFlags(cmd *cobra.Command) {
	cmd.Flags().VarP(&flagLibraryType, "library-type", "t", "Library type for every build, one of "+flagLibraryType.HelpString())
	cmd.RegisterFlagCompletionFunc("library-type", flagLibraryType.CompletionFunc())
	cmd.Flags().StringVarP(&flagBuildDir, "build-dir", "d", "", "Directory to create working directories in")
	cmd.Flags().StringSliceVarP(&flagOnly, "only", "o", nil, "Only use the named builds")
}

func addBuildFlags(cmd *cobra.Command) {
	addSelectFlags(cmd)
	cmd.Flags().BoolVarP(&flagKeep, "keep", "k", false, "Keep working directories after building")
	cmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "Show the output of build tools")
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
