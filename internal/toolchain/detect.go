// Package toolchain identifies the compiler/platform combination from the
// macros a C compiler predefines, and can collect those macros by running a
// real compiler in preprocess-only mode.
package toolchain

import (
	"sort"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/cockroachdb/errors"
	"github.com/mj1618/abivis/internal/abi"
)

// Signals maps predefined macro names to their values. A macro defined to
// nothing has an empty value; an undefined macro is absent.
type Signals map[string]string

// Has reports whether name is defined.
func (s Signals) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Names returns the defined macro names in sorted order.
func (s Signals) Names() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// KnownSignals are the predefined macros the detector looks at.
var KnownSignals = []string{
	"_WIN32",
	"__CYGWIN__",
	"_MSC_VER",
	"__GNUC__",
	"__GNUC_MINOR__",
	"__GNUC_PATCHLEVEL__",
	"__clang__",
	"__MINGW32__",
}

// DefaultMinGCC is the first GCC major version with the visibility attribute.
const DefaultMinGCC = "4"

// Detector turns Signals into a ToolchainKind.
type Detector struct {
	// MinGCC is the minimum GCC version that supports visibility. Older
	// GCC-family compilers get abi.NoVisibility. Nil means DefaultMinGCC.
	MinGCC *semver.Version
}

// NewDetector returns a Detector with the given minimum GCC version.
// An empty string selects DefaultMinGCC.
func NewDetector(minGCC string) (*Detector, error) {
	if minGCC == "" {
		minGCC = DefaultMinGCC
	}
	v, err := semver.NewVersion(minGCC)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid minimum gcc version %q", minGCC)
	}
	return &Detector{MinGCC: v}, nil
}

func (d *Detector) minGCC() *semver.Version {
	if d == nil || d.MinGCC == nil {
		return semver.MustParse(DefaultMinGCC)
	}
	return d.MinGCC
}

// Detect classifies the toolchain. Windows targets are checked first; inside
// Windows a GCC-compatible driver wins over MSVC. An unrecognized
// combination is an error, never a default.
func (d *Detector) Detect(s Signals) (abi.ToolchainKind, error) {
	if s.Has("_WIN32") || s.Has("__CYGWIN__") {
		switch {
		case s.Has("__GNUC__"):
			return abi.MinGW, nil
		case s.Has("_MSC_VER"):
			return abi.MSVC, nil
		}
		return abi.Unknown, unknown("windows target without a gcc-compatible or msvc-compatible compiler")
	}

	if s.Has("__GNUC__") {
		v, err := GCCVersion(s)
		if err != nil {
			return abi.Unknown, err
		}
		if v.LessThan(d.minGCC()) {
			return abi.NoVisibility, nil
		}
		return abi.GCC, nil
	}

	return abi.Unknown, unknown("neither _MSC_VER nor __GNUC__ is defined")
}

func unknown(detail string) error {
	return errors.WithHint(
		errors.Wrap(abi.ErrUnknownToolchain, detail),
		"please implement shared library visibility for this compiler, or pass --toolchain")
}

// GCCVersion builds a semantic version from the __GNUC__ family of macros.
func GCCVersion(s Signals) (*semver.Version, error) {
	parts := []string{s["__GNUC__"], s["__GNUC_MINOR__"], s["__GNUC_PATCHLEVEL__"]}
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			p = "0"
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return nil, errors.Newf("malformed gcc version macro: %q", p)
		}
		parts[i] = strconv.Itoa(n)
	}
	v, err := semver.NewVersion(strings.Join(parts, "."))
	if err != nil {
		return nil, errors.Wrap(err, "parse gcc version")
	}
	return v, nil
}
