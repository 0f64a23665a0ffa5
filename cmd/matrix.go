package cmd

import (
	"github.com/mj1618/abivis/internal/output"
	"github.com/mj1618/abivis/internal/selector"
	"github.com/spf13/cobra"
)

var matrixCmd = &cobra.Command{
	Use:   "matrix",
	Short: "Show the annotation for every toolchain and build mode",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return output.Print(selector.DecisionMatrix())
	},
}

func init() {
	rootCmd.AddCommand(matrixCmd)
}
