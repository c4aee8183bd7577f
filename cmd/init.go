// rbuild init [name]
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/qobs-build/rbuild/internal/builder"
	"github.com/qobs-build/rbuild/internal/index"
	"github.com/qobs-build/rbuild/internal/msg"
	"github.com/qobs-build/rbuild/internal/source"
	"github.com/spf13/cobra"
)

func writefile(content string, elem ...string) {
	path := filepath.Join(elem...)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err = os.WriteFile(path, []byte(content), 0o644); err != nil {
			msg.Fatal("create file %s: %v", path, err)
		}
		fmt.Printf("%s file: %s\n", color.HiGreenString("Created"), filepath.ToSlash(path))
	}
}

func mkdir(elem ...string) {
	path := filepath.Join(elem...)
	if err := os.MkdirAll(path, 0o755); err != nil {
		msg.Fatal("mkdir %s: %v", path, err)
	}
}

func getProgramName() string {
	if len(os.Args) == 0 {
		return "rbuild"
	}
	basename := filepath.Base(os.Args[0])
	return strings.TrimSuffix(basename, filepath.Ext(basename))
}

// configTemplate renders a starting rbuild.toml for one build.
func configTemplate(name, gitURL string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, `[build.%[1]s]
# library_type = "static"   # or "shared", rbuild_%[1]s_library_type overrides it
# install_prefix = "{{ environ.OUT_DIR }}/%[1]s"
# keep_build_dir = true

[build.%[1]s.source]
`, name)
	if gitURL != "" {
		fmt.Fprintf(&sb, "git = %q\n# submodules = true\n", gitURL)
	} else {
		fmt.Fprintf(&sb, "dir = %q\n", "vendor/"+name)
	}
	sb.WriteString(`
[build.` + name + `.meson]
options = {}
# promote = ["subprojects/**/*.wrap"]
`)
	return sb.String()
}

// initIn initializes a project in an existing specified directory
func initIn(dir, name, gitURL string) {
	writefile(configTemplate(name, gitURL), dir, builder.ConfigFilename)

	if gitURL == "" {
		mkdir(dir, "vendor", name)
	}

	// .gitignore
	writefile(index.IndexFilename+"\n", dir, ".gitignore")

	programName := getProgramName()
	fmt.Printf("You can now do %s to build, or %s to see where it will be built.\n", color.HiCyanString(programName+" "+dir), color.HiCyanString(programName+" hash "+dir))
}

var flagGit string

func initName(name string) string {
	if name != "" {
		return name
	}
	if flagGit != "" {
		return strings.TrimSuffix(filepath.Base(source.ParseGitURL(flagGit).URL), ".git")
	}
	msg.Fatal("a build name is required without --git")
	return ""
}

var initCmd = &cobra.Command{
	Use:   "init [name]",
	Short: "Create rbuild.toml in the current directory",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var name string
		if len(args) > 0 {
			name = args[0]
		}
		initIn(".", initName(name), flagGit)
	},
}

var newCmd = &cobra.Command{
	Use:   "new [path]",
	Short: "Create rbuild.toml in a new directory",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		mkdir(args[0])
		initIn(args[0], initName(filepath.Base(args[0])), flagGit)
	},
}

func init() {
	// rbuild init subcommand
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVarP(&flagGit, "git", "g", "", "Build from a git repository, e.g. gh:cisco/libsrtp")

	// rbuild new subcommand
	rootCmd.AddCommand(newCmd)
	newCmd.Flags().StringVarP(&flagGit, "git", "g", "", "Build from a git repository, e.g. gh:cisco/libsrtp")
}
