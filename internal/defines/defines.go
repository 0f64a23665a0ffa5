// Package defines models the preprocessor definitions a build system passes
// to a translation unit (-D and -U options) and maps them onto abi flags.
package defines

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/kballard/go-shellquote"
	"github.com/mj1618/abivis/internal/abi"
)

// Set is an ordered collection of macro definitions. Later definitions of
// the same name replace earlier ones; -U removes a name.
type Set struct {
	order  []string
	values map[string]string
}

// New returns an empty Set.
func New() *Set {
	return &Set{values: make(map[string]string)}
}

// Define sets name to value. An empty value means "defined to nothing".
func (s *Set) Define(name, value string) {
	if _, ok := s.values[name]; !ok {
		s.order = append(s.order, name)
	}
	s.values[name] = value
}

// Undefine removes name.
func (s *Set) Undefine(name string) {
	if _, ok := s.values[name]; !ok {
		return
	}
	delete(s.values, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Lookup returns the value of name and whether it is defined.
func (s *Set) Lookup(name string) (string, bool) {
	v, ok := s.values[name]
	return v, ok
}

// Names returns the defined names in definition order.
func (s *Set) Names() []string {
	return append([]string(nil), s.order...)
}

// Len is the number of defined names.
func (s *Set) Len() int {
	return len(s.order)
}

// Flag reads name as a build-configuration flag.
func (s *Set) Flag(name string) abi.Flag {
	v, ok := s.Lookup(name)
	return abi.ParseFlag(v, ok)
}

// Library returns lib's static and export flags.
func (s *Set) Library(names abi.FlagNames, lib string) (static, export abi.Flag) {
	return s.Flag(names.StaticFlag(lib)), s.Flag(names.ExportFlag(lib))
}

// Map returns a copy of the definitions.
func (s *Set) Map() map[string]string {
	m := make(map[string]string, len(s.values))
	for k, v := range s.values {
		m[k] = v
	}
	return m
}

// Parse reads -D/-U options from compiler arguments. Both the GCC spelling
// (-DNAME, -D NAME) and the MSVC spelling (/DNAME) are accepted. Following
// compiler semantics, -DNAME defines NAME as 1 and -DNAME= defines it empty.
// Arguments that are not definitions are ignored.
func Parse(args []string) (*Set, error) {
	s := New()
	for i := 0; i < len(args); i++ {
		arg := args[i]
		var op byte
		switch {
		case strings.HasPrefix(arg, "-D"), strings.HasPrefix(arg, "/D"):
			op = 'D'
		case strings.HasPrefix(arg, "-U"), strings.HasPrefix(arg, "/U"):
			op = 'U'
		default:
			continue
		}
		body := arg[2:]
		if body == "" {
			if i+1 >= len(args) {
				return nil, errors.Newf("missing macro name after %s", arg)
			}
			i++
			body = args[i]
		} else if arg[0] == '/' {
			// An absolute path such as /Users/x.c is not an MSVC option.
			if name, _, _ := strings.Cut(body, "="); validName(name) != nil {
				continue
			}
		}
		if err := s.apply(op, body); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// ParseCommandLine splits a CFLAGS-style string and parses it.
func ParseCommandLine(line string) (*Set, error) {
	args, err := shellquote.Split(line)
	if err != nil {
		return nil, errors.Wrapf(err, "parse flags %q", line)
	}
	return Parse(args)
}

// ParseDefinitions reads bare NAME or NAME=VALUE entries, as given to the
// --define flag, into s.
func (s *Set) ParseDefinitions(defs []string) error {
	for _, d := range defs {
		if err := s.apply('D', d); err != nil {
			return err
		}
	}
	return nil
}

// ParseUndefinitions removes each named macro from s.
func (s *Set) ParseUndefinitions(names []string) error {
	for _, n := range names {
		if err := s.apply('U', n); err != nil {
			return err
		}
	}
	return nil
}

func (s *Set) apply(op byte, body string) error {
	name, value, hasValue := strings.Cut(body, "=")
	if functionLike(name) {
		// Library flags are object-like; function-like macros never affect them.
		return nil
	}
	if err := validName(name); err != nil {
		return err
	}
	if op == 'U' {
		if hasValue {
			return errors.Newf("-U takes a macro name, got %q", body)
		}
		s.Undefine(name)
		return nil
	}
	if !hasValue {
		value = "1"
	}
	s.Define(name, value)
	return nil
}

// functionLike reports whether name is a function-like macro head such as
// MAX(a,b).
func functionLike(name string) bool {
	i := strings.IndexByte(name, '(')
	if i <= 0 || !strings.HasSuffix(name, ")") {
		return false
	}
	return validName(name[:i]) == nil
}

func validName(name string) error {
	if err := abi.ValidLibraryName(name); err != nil {
		return errors.Newf("invalid macro name %q", name)
	}
	return nil
}
