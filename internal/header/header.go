// Package header renders a per-library C export header that makes the
// visibility decision with plain preprocessor conditionals.
package header

import (
	"fmt"
	"io"
	"strings"
	"text/template"

	"github.com/Masterminds/semver/v3"
	"github.com/cockroachdb/errors"
	"github.com/mj1618/abivis/internal/abi"
	"github.com/mj1618/abivis/internal/toolchain"
)

// Options describe the header to generate.
type Options struct {
	// Library is the library name token, e.g. "mylib".
	Library string
	// Prefix is the prefix of the macros the header defines. Defaults to
	// the upper-cased library name.
	Prefix string
	// Flags names the static/export configuration macros.
	Flags abi.FlagNames
	// MinGCC is the minimum GCC version with visibility support.
	// Nil means toolchain.DefaultMinGCC.
	MinGCC *semver.Version
	// Mode pins the build mode. Nil derives it from the flags.
	Mode *abi.Mode
}

func (o Options) prefix() string {
	if o.Prefix != "" {
		return o.Prefix
	}
	return strings.ToUpper(o.Library)
}

// Validate checks that every name pasted into the header is a C identifier.
func (o Options) Validate() error {
	if err := abi.ValidLibraryName(o.Library); err != nil {
		return err
	}
	if err := abi.ValidLibraryName(o.prefix()); err != nil {
		return errors.Wrap(err, "macro prefix")
	}
	if o.Flags.Prefix != "" {
		if err := abi.ValidLibraryName(o.Flags.Prefix); err != nil {
			return errors.Wrap(err, "flag prefix")
		}
	}
	return nil
}

// Guard is the include-guard macro.
func (o Options) Guard() string {
	return o.prefix() + "_EXPORT_H"
}

// APIMacro is the annotation macro consumers place before declarations.
func (o Options) APIMacro() string {
	return o.prefix() + "_API"
}

type data struct {
	Library      string
	Prefix       string
	Guard        string
	StaticFlag   string
	ExportFlag   string
	GCCCondition string
	Pinned       bool
	PinnedStatic int
	PinnedExport int
	MSVCExport   string
	MSVCImport   string
	MinGWExport  string
	MinGWImport  string
	GCCExport    string
	GCCImport    string
}

var tmpl = template.Must(template.New("header").Funcs(template.FuncMap{
	"asserted": AssertedCondition,
}).Parse(`/* {{.Guard}}: generated by abivis for {{.Library}}. Do not edit. */
#ifndef {{.Guard}}
#define {{.Guard}}

#if defined(_WIN32) || defined(__CYGWIN__)
#  if defined(__GNUC__)
#    define {{.Prefix}}_ABI_EXPORT {{.MinGWExport}}
#    define {{.Prefix}}_ABI_IMPORT {{.MinGWImport}}
#  elif defined(_MSC_VER)
#    define {{.Prefix}}_ABI_EXPORT {{.MSVCExport}}
#    define {{.Prefix}}_ABI_IMPORT {{.MSVCImport}}
#  else
#    error "Unknown compiler, please implement shared library visibility for {{.Library}}"
#  endif
#elif defined(__GNUC__)
#  if {{.GCCCondition}}
#    define {{.Prefix}}_ABI_EXPORT {{.GCCExport}}
#    define {{.Prefix}}_ABI_IMPORT {{.GCCImport}}
#  else
#    define {{.Prefix}}_ABI_EXPORT
#    define {{.Prefix}}_ABI_IMPORT
#  endif
#else
#  error "Unknown compiler, please implement shared library visibility for {{.Library}}"
#endif
{{if .Pinned}}
#define {{.Prefix}}_IS_STATIC {{.PinnedStatic}}
#define {{.Prefix}}_IS_EXPORT {{.PinnedExport}}
{{else}}
/* A flag is set when defined to nothing or to a non-zero decimal number and
   clear when defined to 0. Identifiers, hex or octal spellings and
   expressions are evaluated by the preprocessor instead; a value of more
   than one token is a preprocessing error. */
#if {{asserted .StaticFlag}}
#  define {{.Prefix}}_IS_STATIC 1
#else
#  define {{.Prefix}}_IS_STATIC 0
#endif

#if {{asserted .ExportFlag}}
#  define {{.Prefix}}_IS_EXPORT 1
#else
#  define {{.Prefix}}_IS_EXPORT 0
#endif
{{end}}
#if {{.Prefix}}_IS_STATIC
#  define {{.Prefix}}_API
#elif {{.Prefix}}_IS_EXPORT
#  define {{.Prefix}}_API {{.Prefix}}_ABI_EXPORT
#else
#  define {{.Prefix}}_API {{.Prefix}}_ABI_IMPORT
#endif

#endif /* {{.Guard}} */
`))

// AssertedCondition is an #if expression that is true when flag is defined
// and either empty or non-zero.
func AssertedCondition(flag string) string {
	return fmt.Sprintf("defined(%[1]s) && ((0 - %[1]s - 1) == 1 || (%[1]s + 0) != 0)", flag)
}

// GCCCondition is an #if expression comparing the __GNUC__ macros against v.
func GCCCondition(v *semver.Version) string {
	major, minor, patch := v.Major(), v.Minor(), v.Patch()
	switch {
	case minor == 0 && patch == 0:
		return fmt.Sprintf("__GNUC__ >= %d", major)
	case patch == 0:
		return fmt.Sprintf("__GNUC__ > %d || (__GNUC__ == %d && __GNUC_MINOR__ >= %d)", major, major, minor)
	}
	return fmt.Sprintf("__GNUC__ > %[1]d || (__GNUC__ == %[1]d && (__GNUC_MINOR__ > %[2]d || (__GNUC_MINOR__ == %[2]d && __GNUC_PATCHLEVEL__ >= %[3]d)))",
		major, minor, patch)
}

// Generate writes the header for opts to w.
func Generate(w io.Writer, opts Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	minGCC := opts.MinGCC
	if minGCC == nil {
		minGCC = semver.MustParse(toolchain.DefaultMinGCC)
	}

	d := data{
		Library:      opts.Library,
		Prefix:       opts.prefix(),
		Guard:        opts.Guard(),
		StaticFlag:   opts.Flags.StaticFlag(opts.Library),
		ExportFlag:   opts.Flags.ExportFlag(opts.Library),
		GCCCondition: GCCCondition(minGCC),
	}
	if err := fillSpellings(&d); err != nil {
		return err
	}
	if opts.Mode != nil {
		d.Pinned = true
		switch *opts.Mode {
		case abi.Static:
			d.PinnedStatic = 1
		case abi.Export:
			d.PinnedExport = 1
		}
	}

	if err := tmpl.Execute(w, d); err != nil {
		return errors.Wrap(err, "render header")
	}
	return nil
}

// fillSpellings takes the attribute spellings from the selector.
func fillSpellings(d *data) error {
	pairs := []struct {
		kind        abi.ToolchainKind
		export, imp *string
	}{
		{abi.MSVC, &d.MSVCExport, &d.MSVCImport},
		{abi.MinGW, &d.MinGWExport, &d.MinGWImport},
		{abi.GCC, &d.GCCExport, &d.GCCImport},
	}
	for _, p := range pairs {
		e, err := abi.Select(p.kind, abi.Export)
		if err != nil {
			return err
		}
		i, err := abi.Select(p.kind, abi.Import)
		if err != nil {
			return err
		}
		*p.export, *p.imp = e.Text, i.Text
	}
	return nil
}
