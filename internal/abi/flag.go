package abi

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// Flag is the state of a single build-configuration flag. Undefined and
// explicitly-false are kept apart so a build system can always define the
// export flag and switch it between 0 and 1.
type Flag int

const (
	FlagUndefined Flag = iota
	FlagFalse
	FlagTrue
)

func (f Flag) String() string {
	switch f {
	case FlagUndefined:
		return "undefined"
	case FlagFalse:
		return "false"
	case FlagTrue:
		return "true"
	}
	return fmt.Sprintf("Flag(%d)", int(f))
}

// Asserted reports whether the flag counts as set.
func (f Flag) Asserted() bool {
	return f == FlagTrue
}

// ParseFlag applies the truthiness rule to a flag definition. A flag that is
// not defined is FlagUndefined. A flag defined as the literal 0 is FlagFalse.
// Any other definition, including an empty one, is FlagTrue.
func ParseFlag(value string, defined bool) Flag {
	if !defined {
		return FlagUndefined
	}
	if strings.TrimSpace(value) == "0" {
		return FlagFalse
	}
	return FlagTrue
}

// PortableFlagValue reports whether the generated header's #if test agrees
// with ParseFlag on value: empty, 0 or a non-zero decimal literal.
// Identifiers, octal or hex spellings and expressions are evaluated
// differently by the preprocessor.
func PortableFlagValue(value string) bool {
	v := strings.TrimSpace(value)
	if v == "" || v == "0" {
		return true
	}
	if v[0] == '-' || v[0] == '+' {
		v = strings.TrimSpace(v[1:])
	}
	if v == "" || v[0] == '0' {
		return false
	}
	for _, c := range v {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// Mode is how a library is built for one translation unit.
type Mode int

const (
	// Import is the default: the unit consumes the library.
	Import Mode = iota
	// Export means the unit is part of the library's own implementation.
	Export
	// Static means the library is linked as a static archive.
	Static
)

// Modes lists every Mode in precedence order: static wins over export,
// export over import.
var Modes = []Mode{Static, Export, Import}

func (m Mode) String() string {
	switch m {
	case Import:
		return "import"
	case Export:
		return "export"
	case Static:
		return "static"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// ParseMode parses import, export or static.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "import":
		return Import, nil
	case "export":
		return Export, nil
	case "static":
		return Static, nil
	}
	return Import, errors.WithHint(errors.Newf("unsupported mode: %q", s), "use import, export or static")
}

// ModeFor derives the build mode from a library's static and export flags.
// Static is checked first, so asserting both yields Static.
func ModeFor(static, export Flag) Mode {
	if static.Asserted() {
		return Static
	}
	if export.Asserted() {
		return Export
	}
	return Import
}
