package abi

import (
	"regexp"

	"github.com/cockroachdb/errors"
)

var (
	// ErrUnknownToolchain is returned when no supported compiler was
	// recognized. There is no silent default.
	ErrUnknownToolchain = errors.New("unknown compiler, shared library visibility is not implemented for it")

	// ErrInvalidLibrary is returned for library names that cannot be pasted
	// into a macro name.
	ErrInvalidLibrary = errors.New("invalid library name")
)

// AnnotationKind is the role of an emitted annotation.
type AnnotationKind int

const (
	None AnnotationKind = iota
	ExportAttr
	ImportAttr
)

func (k AnnotationKind) String() string {
	switch k {
	case ExportAttr:
		return "export"
	case ImportAttr:
		return "import"
	}
	return "none"
}

func (k AnnotationKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *AnnotationKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "export":
		*k = ExportAttr
	case "import":
		*k = ImportAttr
	default:
		*k = None
	}
	return nil
}

// Annotation is the token sequence placed in front of a declaration.
// Text is empty for None.
type Annotation struct {
	Kind AnnotationKind `yaml:"kind" json:"kind"`
	Text string         `yaml:"text" json:"text"`
}

// IsEmpty reports whether the annotation expands to zero tokens.
func (a Annotation) IsEmpty() bool {
	return a.Text == ""
}

const (
	declspecExport    = "__declspec(dllexport)"
	declspecImport    = "__declspec(dllimport)"
	gnuDLLExport      = "__attribute__((dllexport))"
	gnuDLLImport      = "__attribute__((dllimport))"
	defaultVisibility = `__attribute__((visibility("default")))`
)

type spelling struct {
	export string
	imp    string
}

var spellings = map[ToolchainKind]spelling{
	MSVC:         {export: declspecExport, imp: declspecImport},
	MinGW:        {export: gnuDLLExport, imp: gnuDLLImport},
	GCC:          {export: defaultVisibility, imp: defaultVisibility},
	NoVisibility: {},
}

// Select returns the annotation for a toolchain and build mode. The toolchain
// is checked first: an unrecognized kind fails for every mode.
func Select(kind ToolchainKind, mode Mode) (Annotation, error) {
	sp, ok := spellings[kind]
	if !ok {
		return Annotation{}, errors.WithHint(
			errors.Wrapf(ErrUnknownToolchain, "toolchain %s", kind),
			"supported toolchains are msvc, gcc (>= 4, including clang), and mingw")
	}
	switch mode {
	case Static:
		return Annotation{}, nil
	case Export:
		return annotation(ExportAttr, sp.export), nil
	case Import:
		return annotation(ImportAttr, sp.imp), nil
	}
	return Annotation{}, errors.Newf("unsupported mode: %s", mode)
}

func annotation(kind AnnotationKind, text string) Annotation {
	if text == "" {
		return Annotation{}
	}
	return Annotation{Kind: kind, Text: text}
}

// Resolve derives the mode from the flags and selects the annotation.
func Resolve(kind ToolchainKind, static, export Flag) (Annotation, error) {
	return Select(kind, ModeFor(static, export))
}

// Case is one row of the toolchain × mode table.
type Case struct {
	Toolchain  ToolchainKind `yaml:"toolchain"  json:"toolchain"`
	Mode       Mode          `yaml:"mode"       json:"mode"`
	Annotation Annotation    `yaml:"annotation" json:"annotation"`
	Err        error         `yaml:"-"          json:"-"`
}

// Matrix evaluates every toolchain kind against every mode.
func Matrix() []Case {
	cases := make([]Case, 0, len(Kinds)*len(Modes))
	for _, k := range Kinds {
		for _, m := range Modes {
			a, err := Select(k, m)
			cases = append(cases, Case{Toolchain: k, Mode: m, Annotation: a, Err: err})
		}
	}
	return cases
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidLibraryName returns an error unless name is a C identifier.
func ValidLibraryName(name string) error {
	if !identRe.MatchString(name) {
		return errors.Wrapf(ErrInvalidLibrary, "%q is not a C identifier", name)
	}
	return nil
}

// DefaultFlagPrefix is the macro prefix used when none is configured.
const DefaultFlagPrefix = "E_ABI"

// FlagNames builds the per-library configuration macro names.
type FlagNames struct {
	Prefix string
}

func (n FlagNames) prefix() string {
	if n.Prefix == "" {
		return DefaultFlagPrefix
	}
	return n.Prefix
}

// StaticFlag is the macro asserting that lib is built as a static archive.
func (n FlagNames) StaticFlag(lib string) string {
	return n.prefix() + "_STATIC_" + lib
}

// ExportFlag is the macro asserting that lib's own sources are being built.
func (n FlagNames) ExportFlag(lib string) string {
	return n.prefix() + "_" + lib
}
