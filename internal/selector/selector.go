// Package selector evaluates the visibility decision for concrete build
// configurations: it identifies the toolchain, reads each library's flags
// and selects the annotation. The CLI and the MCP server both go through it.
package selector

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/mj1618/abivis/internal/abi"
	"github.com/mj1618/abivis/internal/config"
	"github.com/mj1618/abivis/internal/defines"
	"github.com/mj1618/abivis/internal/header"
	"github.com/mj1618/abivis/internal/logging"
	"github.com/mj1618/abivis/internal/toolchain"
)

// Service evaluates requests against a project configuration.
type Service struct {
	Config *config.Config
	Prober toolchain.Prober
}

// New returns a Service. A nil prober runs the real compiler.
func New(cfg *config.Config, prober toolchain.Prober) *Service {
	if prober == nil {
		prober = toolchain.NewExecProber()
	}
	return &Service{Config: cfg, Prober: prober}
}

// ToolchainRequest selects how the toolchain is identified. Empty fields
// fall back to the configuration.
type ToolchainRequest struct {
	// Toolchain is a preset name (gcc, msvc, ...) or a kind name.
	Toolchain string
	// Compiler is the compiler command to probe.
	Compiler string
	// CFlags are extra compiler flags, also scanned for -D/-U.
	CFlags string
}

// Identity is an identified toolchain.
type Identity struct {
	Kind     abi.ToolchainKind `yaml:"kind"               json:"kind"`
	Source   string            `yaml:"source"             json:"source"`
	Compiler string            `yaml:"compiler,omitempty" json:"compiler,omitempty"`
	Signals  toolchain.Signals `yaml:"signals,omitempty"  json:"signals,omitempty"`
}

func (s *Service) cflags(req ToolchainRequest) string {
	if req.CFlags != "" {
		return req.CFlags
	}
	return s.Config.CFlags
}

// Identify determines the toolchain kind. An unrecognized toolchain is an
// error.
func (s *Service) Identify(ctx context.Context, req ToolchainRequest) (*Identity, error) {
	minGCC, err := s.Config.MinGCC()
	if err != nil {
		return nil, err
	}
	detector := &toolchain.Detector{MinGCC: minGCC}

	// An explicit compiler in the request beats a configured toolchain.
	name := req.Toolchain
	if name == "" && req.Compiler == "" {
		name = s.Config.Toolchain
	}
	if name != "" {
		return identifyNamed(detector, name)
	}

	c, err := s.Compiler(req)
	if err != nil {
		return nil, err
	}

	if s.Config.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Config.ProbeTimeout)
		defer cancel()
	}
	signals, err := s.Prober.Probe(ctx, c)
	if err != nil {
		return nil, err
	}
	kind, err := detector.Detect(signals)
	if err != nil {
		return nil, errors.Wrapf(err, "compiler %s", c)
	}
	logging.Logger.Debugw("identified toolchain", "kind", kind, "compiler", c.String())
	return &Identity{Kind: kind, Source: "probe", Compiler: c.String(), Signals: signals}, nil
}

// Compiler returns the compiler a probe for req would run.
func (s *Service) Compiler(req ToolchainRequest) (toolchain.Compiler, error) {
	command := req.Compiler
	if command == "" {
		command = s.Config.Compiler
	}
	return toolchain.ParseCompiler(command, s.cflags(req))
}

func identifyNamed(detector *toolchain.Detector, name string) (*Identity, error) {
	if signals, err := toolchain.Preset(name); err == nil {
		kind, err := detector.Detect(signals)
		if err != nil {
			return nil, err
		}
		return &Identity{Kind: kind, Source: "preset:" + strings.ToLower(name), Signals: signals}, nil
	}

	kind, err := abi.ParseToolchainKind(name)
	if err != nil {
		return nil, errors.WithHintf(err, "presets: %s", strings.Join(toolchain.PresetNames(), ", "))
	}
	if !kind.Known() {
		return nil, errors.Wrapf(abi.ErrUnknownToolchain, "toolchain %q", name)
	}
	return &Identity{Kind: kind, Source: "kind"}, nil
}

// ResolveRequest asks for the annotation of one or more libraries.
type ResolveRequest struct {
	ToolchainRequest
	// Libraries to resolve. Empty means every configured library.
	Libraries []string
	// Defines are NAME or NAME=VALUE entries applied after CFlags.
	Defines []string
	// Undefines remove names after Defines are applied.
	Undefines []string
	// Mode, if set, overrides both the configured mode and the flags.
	Mode string
}

// FlagState is one configuration flag as seen by the selector.
type FlagState struct {
	Name  string   `yaml:"name"            json:"name"`
	Value *string  `yaml:"value,omitempty" json:"value,omitempty"`
	State abi.Flag `yaml:"-"               json:"-"`
	Set   string   `yaml:"state"           json:"state"`
}

// Result is the resolved annotation for one library.
type Result struct {
	Library    string            `yaml:"library"    json:"library"`
	Toolchain  abi.ToolchainKind `yaml:"toolchain"  json:"toolchain"`
	Mode       abi.Mode          `yaml:"mode"       json:"mode"`
	ModeSource string            `yaml:"mode_from"  json:"mode_from"`
	Static     FlagState         `yaml:"static"     json:"static"`
	Export     FlagState         `yaml:"export"     json:"export"`
	Annotation abi.Annotation    `yaml:"annotation" json:"annotation"`
}

// Definitions builds the define set for a request: CFlags first, then
// Defines, then Undefines.
func (s *Service) Definitions(req ResolveRequest) (*defines.Set, error) {
	set, err := defines.ParseCommandLine(s.cflags(req.ToolchainRequest))
	if err != nil {
		return nil, err
	}
	if err := set.ParseDefinitions(req.Defines); err != nil {
		return nil, err
	}
	if err := set.ParseUndefinitions(req.Undefines); err != nil {
		return nil, err
	}
	return set, nil
}

// Resolve identifies the toolchain once and resolves every requested
// library against it.
func (s *Service) Resolve(ctx context.Context, req ResolveRequest) ([]Result, error) {
	libs := req.Libraries
	if len(libs) == 0 {
		for _, l := range s.Config.Libraries {
			libs = append(libs, l.Name)
		}
	}
	if len(libs) == 0 {
		return nil, errors.WithHint(errors.New("no library given"),
			"pass a library name or list libraries in the abivis config file")
	}
	for _, lib := range libs {
		if err := abi.ValidLibraryName(lib); err != nil {
			return nil, err
		}
	}

	var override *abi.Mode
	if req.Mode != "" {
		m, err := abi.ParseMode(req.Mode)
		if err != nil {
			return nil, err
		}
		override = &m
	}

	set, err := s.Definitions(req)
	if err != nil {
		return nil, err
	}

	id, err := s.Identify(ctx, req.ToolchainRequest)
	if err != nil {
		return nil, err
	}

	names := s.Config.FlagNames()
	results := make([]Result, 0, len(libs))
	for _, lib := range libs {
		r, err := s.resolveLibrary(id.Kind, names, set, lib, override)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, nil
}

func (s *Service) resolveLibrary(kind abi.ToolchainKind, names abi.FlagNames, set *defines.Set, lib string, override *abi.Mode) (Result, error) {
	static, export := set.Library(names, lib)
	r := Result{
		Library:   lib,
		Toolchain: kind,
		Static:    flagState(set, names.StaticFlag(lib), static),
		Export:    flagState(set, names.ExportFlag(lib), export),
	}

	for _, st := range []FlagState{r.Static, r.Export} {
		if st.Value != nil && !abi.PortableFlagValue(*st.Value) {
			logging.Logger.Warnw("flag value is read differently by the generated header; use empty, 0 or a decimal number",
				"library", lib, "flag", st.Name, "value", *st.Value, "state", st.Set)
		}
	}

	switch {
	case override != nil:
		r.Mode, r.ModeSource = *override, "override"
	default:
		r.Mode, r.ModeSource = abi.ModeFor(static, export), "flags"
		if l, ok := s.Config.Library(lib); ok {
			pinned, err := l.PinnedMode()
			if err != nil {
				return Result{}, err
			}
			if pinned != nil {
				r.Mode, r.ModeSource = *pinned, "config"
			}
		}
	}

	a, err := abi.Select(kind, r.Mode)
	if err != nil {
		return Result{}, errors.Wrapf(err, "library %s", lib)
	}
	r.Annotation = a
	logging.Logger.Debugw("resolved", "library", lib, "toolchain", kind, "mode", r.Mode, "annotation", a.Text)
	return r, nil
}

func flagState(set *defines.Set, name string, f abi.Flag) FlagState {
	st := FlagState{Name: name, State: f, Set: f.String()}
	if v, ok := set.Lookup(name); ok {
		st.Value = &v
	}
	return st
}

// HeaderOptions builds header options for lib from the configuration.
func (s *Service) HeaderOptions(lib string) (header.Options, error) {
	minGCC, err := s.Config.MinGCC()
	if err != nil {
		return header.Options{}, err
	}
	opts := header.Options{
		Library: lib,
		Flags:   s.Config.FlagNames(),
		MinGCC:  minGCC,
	}
	if l, ok := s.Config.Library(lib); ok {
		opts.Prefix = l.Prefix
		mode, err := l.PinnedMode()
		if err != nil {
			return header.Options{}, err
		}
		opts.Mode = mode
	}
	return opts, nil
}

// Header writes lib's generated header to w.
func (s *Service) Header(w io.Writer, lib string) error {
	opts, err := s.HeaderOptions(lib)
	if err != nil {
		return err
	}
	return header.Generate(w, opts)
}

// Results is a printable list of resolved libraries.
type Results []Result

// Text renders a single result as its bare annotation text, for use in
// scripts. Several results render as one "library: annotation" line each,
// with (none) for an empty annotation.
func (rs Results) Text() string {
	if len(rs) == 1 {
		return rs[0].Annotation.Text
	}
	var b strings.Builder
	for _, r := range rs {
		text := r.Annotation.Text
		if text == "" {
			text = "(none)"
		}
		fmt.Fprintf(&b, "%s: %s\n", r.Library, text)
	}
	return b.String()
}

// Text renders the toolchain kind.
func (id *Identity) Text() string {
	return id.Kind.String()
}
