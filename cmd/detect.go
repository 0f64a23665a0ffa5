package cmd

import (
	"github.com/mj1618/abivis/internal/output"
	"github.com/spf13/cobra"
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Identify the toolchain kind",
	Long: `Identify the toolchain kind from a preset or by running the C compiler's
preprocessor and reading its predefined macros.

Examples:
  abivis detect
  abivis detect --cc clang-cl
  abivis detect --cc gcc --cflags "-m32"
  abivis detect --toolchain mingw`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := newService().Identify(cmd.Context(), toolchainRequest(cmd))
		if err != nil {
			return err
		}
		return output.Print(id)
	},
}

func init() {
	rootCmd.AddCommand(detectCmd)
	toolchainFlags(detectCmd)
}
