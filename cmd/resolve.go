package cmd

import (
	"github.com/cockroachdb/errors"
	"github.com/mj1618/abivis/internal/abi"
	"github.com/mj1618/abivis/internal/output"
	"github.com/mj1618/abivis/internal/selector"
	"github.com/spf13/cobra"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve [library...]",
	Short: "Resolve the visibility annotation for one or more libraries",
	Long: `Resolve the annotation a library's public declarations get.

The toolchain comes from --toolchain, the config file, or by probing the
C compiler. The build mode comes from --mode, the library's configured mode,
or the library's flags: <PREFIX>_STATIC_<lib> selects static, otherwise
<PREFIX>_<lib> selects export, otherwise import. A flag is set when it is
defined to nothing or to anything but 0.

With no arguments every library in the config file is resolved.

Examples:
  abivis resolve mylib --toolchain msvc -D E_ABI_mylib
  abivis resolve mylib --cflags "-DE_ABI_STATIC_mylib" --format text
  CFLAGS=-DE_ABI_mylib abivis resolve mylib --cc x86_64-w64-mingw32-gcc`,
	RunE: runResolve,
}

func init() {
	rootCmd.AddCommand(resolveCmd)
	toolchainFlags(resolveCmd)
	resolveCmd.Flags().StringArrayP("define", "D", nil, "Define a macro, NAME or NAME=VALUE (repeatable)")
	resolveCmd.Flags().StringArrayP("undefine", "U", nil, "Undefine a macro (repeatable)")
	resolveCmd.Flags().String("mode", "", "Force the build mode: static, export, import")
	resolveCmd.Flags().String("flag-prefix", "", "Prefix of the library flag macros (default: config or E_ABI)")
}

func runResolve(cmd *cobra.Command, args []string) error {
	defs, _ := cmd.Flags().GetStringArray("define")
	undefs, _ := cmd.Flags().GetStringArray("undefine")
	mode, _ := cmd.Flags().GetString("mode")
	prefix, _ := cmd.Flags().GetString("flag-prefix")

	if prefix != "" {
		if err := abi.ValidLibraryName(prefix); err != nil {
			return errors.Wrap(err, "--flag-prefix")
		}
		projectConfig.FlagPrefix = prefix
	}

	results, err := newService().Resolve(cmd.Context(), selector.ResolveRequest{
		ToolchainRequest: toolchainRequest(cmd),
		Libraries:        args,
		Defines:          defs,
		Undefines:        undefs,
		Mode:             mode,
	})
	if err != nil {
		return err
	}
	return output.Print(selector.Results(results))
}
