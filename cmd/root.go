package cmd

import (
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/mj1618/abivis/internal/config"
	"github.com/mj1618/abivis/internal/logging"
	"github.com/mj1618/abivis/internal/output"
	"github.com/mj1618/abivis/internal/selector"
	"github.com/mj1618/abivis/internal/version"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "abivis",
	Short: "Select shared-library symbol visibility annotations",
	Long: `abivis decides which symbol visibility annotation a library's public
declarations get for a given toolchain and build mode (static, export or
import), and generates the matching C export header.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// projectConfig is loaded once per invocation by the root pre-run hook.
var projectConfig *config.Config

func Execute() {
	err := rootCmd.Execute()
	logging.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if hint := errors.FlattenHints(err); hint != "" {
			fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version.Version, version.Commit, version.BuildDate)
	rootCmd.PersistentFlags().String("format", "yaml", "Output format: yaml, json, text")
	rootCmd.PersistentFlags().Bool("pretty", false, "Indent JSON output")
	rootCmd.PersistentFlags().String("config", "", "Project config file (default: nearest abivis.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug output to stderr")
	rootCmd.PersistentFlags().Bool("log-json", false, "Log as JSON")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		verbose, _ := rootCmd.PersistentFlags().GetBool("verbose")
		logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
		if err := logging.Initialize(verbose, logJSON); err != nil {
			return err
		}

		format, _ := rootCmd.PersistentFlags().GetString("format")
		f, err := output.ParseFormat(format)
		if err != nil {
			return err
		}
		output.OutputFormat = f
		output.PrettyOutput, _ = rootCmd.PersistentFlags().GetBool("pretty")
		output.Writer = cmd.OutOrStdout()

		path, _ := rootCmd.PersistentFlags().GetString("config")
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		projectConfig = cfg
		return nil
	}
}

// newService builds a selector service over the loaded configuration.
func newService() *selector.Service {
	return selector.New(projectConfig, nil)
}

// toolchainFlags registers the flags shared by commands that identify a
// toolchain.
func toolchainFlags(cmd *cobra.Command) {
	cmd.Flags().String("toolchain", "", "Toolchain preset or kind (msvc, clang-cl, mingw, gcc, clang, gcc3, novisibility); default probes the compiler")
	cmd.Flags().String("cc", "", "C compiler command to probe (default: config, $CC, cc)")
	cmd.Flags().String("cflags", "", "Compiler flags; -D/-U options also set library flags")
}

func toolchainRequest(cmd *cobra.Command) selector.ToolchainRequest {
	tc, _ := cmd.Flags().GetString("toolchain")
	cc, _ := cmd.Flags().GetString("cc")
	cflags, _ := cmd.Flags().GetString("cflags")
	return selector.ToolchainRequest{Toolchain: tc, Compiler: cc, CFlags: cflags}
}
