// Package commands implements majak's command-line surface.
package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/majak-build/majak/internal/app"
	"github.com/majak-build/majak/internal/build"
)

// Application is the CLI's view of the build orchestrator.
type Application interface {
	Run(ctx context.Context, targetNames []string, opts app.RunOptions) error
}

// CLI wraps the root cobra.Command carrying majak's flag-driven surface:
// unlike a subcommand-oriented tool, every flag except "version" applies to
// the one implicit build action.
type CLI struct {
	app     Application
	rootCmd *cobra.Command
}

// New creates a CLI bound to a.
func New(a Application) *CLI {
	rootCmd := &cobra.Command{
		Use:           "majak [options] [targets...]",
		Short:         "A Ninja-compatible incremental build executor",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       build.Version,
		Args:          cobra.ArbitraryArgs,
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"{{.Name}} version {{.Version}} (commit: %s, date: %s)\n",
		build.Commit,
		build.Date,
	))

	c := &CLI{app: a, rootCmd: rootCmd}
	c.addFlags()
	rootCmd.RunE = c.runBuild
	rootCmd.AddCommand(c.newVersionCmd())

	return c
}

func (c *CLI) addFlags() {
	f := c.rootCmd.Flags()
	f.StringP("directory", "C", "", "change to DIR before doing anything else")
	f.IntP("jobs", "j", 0, "run N jobs in parallel (default derived from CPU count)")
	f.IntP("keep-going", "k", 1, "keep going until N failures (0 means never stop)")
	f.Float64P("load-average", "l", 0, "do not start new jobs once the 1-minute load average exceeds N")
	f.BoolP("dry-run", "n", false, "dry run: pretend to build but do not run any command")
	f.BoolP("verbose", "v", false, "print the full command line before running it")
	f.StringArrayP("debug", "d", nil, "enable debugging (keepdepfile, keeprsp)")
	f.StringP("tool", "t", "", "run an introspection TOOL (not supported)")
	f.StringArrayP("warn", "w", nil, "adjust warnings (dupbuild=err|warn, phonycycle=err|warn)")
	f.StringP("file", "f", "", "specify the build manifest (default build.ninja)")
}

// runBuild is the root command's action: parse flags into app.RunOptions
// and hand off to the Application.
func (c *CLI) runBuild(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()

	if tool, _ := f.GetString("tool"); tool != "" {
		return fmt.Errorf("tool %q is not supported", tool)
	}

	dir, _ := f.GetString("directory")
	jobs, _ := f.GetInt("jobs")
	keepGoing, _ := f.GetInt("keep-going")
	loadAvg, _ := f.GetFloat64("load-average")
	dryRun, _ := f.GetBool("dry-run")
	verbose, _ := f.GetBool("verbose")
	manifest, _ := f.GetString("file")
	debug, _ := f.GetStringArray("debug")
	warn, _ := f.GetStringArray("warn")

	opts := app.RunOptions{
		Dir:          dir,
		ManifestFile: manifest,
		Parallelism:  jobs,
		KeepGoing:    keepGoing,
		MaxLoad:      loadAvg,
		DryRun:       dryRun,
		Verbose:      verbose,
	}
	for _, mode := range debug {
		switch strings.TrimSpace(mode) {
		case "keepdepfile":
			opts.KeepDepfile = true
		case "keeprsp":
			opts.KeepRsp = true
		}
	}
	for _, flag := range warn {
		switch strings.TrimSpace(flag) {
		case "dupbuild=err":
			opts.DupeEdgeError = true
		case "phonycycle=err":
			opts.PhonyCycleError = true
		}
	}

	return c.app.Run(cmd.Context(), args, opts)
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// SetOutput sets the output and error streams for the root command. Used
// for testing.
func (c *CLI) SetOutput(out, err io.Writer) {
	c.rootCmd.SetOut(out)
	c.rootCmd.SetErr(err)
}
