package selector

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/mj1618/abivis/internal/abi"
)

// MatrixRow is one printable toolchain × mode combination.
type MatrixRow struct {
	Toolchain  abi.ToolchainKind `yaml:"toolchain"       json:"toolchain"`
	Mode       abi.Mode          `yaml:"mode"            json:"mode"`
	Annotation string            `yaml:"annotation"      json:"annotation"`
	Error      string            `yaml:"error,omitempty" json:"error,omitempty"`
}

// Matrix is the full decision table.
type Matrix []MatrixRow

// DecisionMatrix evaluates every toolchain kind against every mode.
func DecisionMatrix() Matrix {
	cases := abi.Matrix()
	rows := make(Matrix, 0, len(cases))
	for _, c := range cases {
		row := MatrixRow{Toolchain: c.Toolchain, Mode: c.Mode, Annotation: c.Annotation.Text}
		if c.Err != nil {
			row.Error = c.Err.Error()
		}
		rows = append(rows, row)
	}
	return rows
}

// Text renders the matrix as an aligned table.
func (m Matrix) Text() string {
	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TOOLCHAIN\tMODE\tANNOTATION")
	for _, r := range m {
		text := r.Annotation
		switch {
		case r.Error != "":
			text = "error: " + r.Error
		case text == "":
			text = "(none)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Toolchain, r.Mode, text)
	}
	tw.Flush()
	return b.String()
}
