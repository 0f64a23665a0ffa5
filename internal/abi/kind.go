package abi

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// ToolchainKind classifies the compiler/platform combination a translation
// unit is built with. Exactly one kind is selected per build.
type ToolchainKind int

const (
	Unknown ToolchainKind = iota
	MSVC
	GCC
	// MinGW is a GCC-compatible compiler targeting Windows. It spells
	// dllexport/dllimport as GNU attributes.
	MinGW
	// NoVisibility is a recognized GCC-family compiler too old to support
	// the visibility attribute. Annotations are always empty.
	NoVisibility
)

// Kinds lists every ToolchainKind in declaration order.
var Kinds = []ToolchainKind{MSVC, GCC, MinGW, NoVisibility, Unknown}

var kindNames = map[ToolchainKind]string{
	Unknown:      "unknown",
	MSVC:         "msvc",
	GCC:          "gcc",
	MinGW:        "mingw",
	NoVisibility: "novisibility",
}

func (k ToolchainKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("ToolchainKind(%d)", int(k))
}

// Known reports whether k is a recognized toolchain.
func (k ToolchainKind) Known() bool {
	switch k {
	case MSVC, GCC, MinGW, NoVisibility:
		return true
	}
	return false
}

// MarshalText lets kinds serialize as their names in YAML and JSON output.
func (k ToolchainKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *ToolchainKind) UnmarshalText(b []byte) error {
	v, err := ParseToolchainKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// ParseToolchainKind parses a kind name as printed by String.
func ParseToolchainKind(s string) (ToolchainKind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return Unknown, errors.WithHint(errors.Newf("unsupported toolchain kind: %q", s), "use msvc, gcc, mingw or novisibility")
}
