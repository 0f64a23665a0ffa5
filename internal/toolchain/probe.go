package toolchain

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/kballard/go-shellquote"
	"github.com/mj1618/abivis/internal/logging"
)

// ErrProbeFailed is returned when the compiler could not be run or its
// output could not be understood.
var ErrProbeFailed = errors.New("toolchain probe failed")

// Compiler is a C compiler invocation: the driver command (which may
// include a wrapper such as ccache) and extra flags for every run.
type Compiler struct {
	Command []string
	Flags   []string
}

// ParseCompiler splits shell-style command and flag strings, e.g. the
// values of $CC and $CFLAGS.
func ParseCompiler(command, flags string) (Compiler, error) {
	cmd, err := shellquote.Split(command)
	if err != nil {
		return Compiler{}, errors.Wrapf(err, "parse compiler command %q", command)
	}
	if len(cmd) == 0 {
		return Compiler{}, errors.New("empty compiler command")
	}
	fl, err := shellquote.Split(flags)
	if err != nil {
		return Compiler{}, errors.Wrapf(err, "parse compiler flags %q", flags)
	}
	return Compiler{Command: cmd, Flags: fl}, nil
}

// String renders the invocation in shell syntax.
func (c Compiler) String() string {
	parts := append(append([]string{}, c.Command...), c.Flags...)
	return shellquote.Join(parts...)
}

// MSVCStyle reports whether the driver takes cl.exe-style options.
func (c Compiler) MSVCStyle() bool {
	if len(c.Command) == 0 {
		return false
	}
	// Windows paths may reach us on any host, so split on both separators.
	driver := c.Command[len(c.Command)-1]
	if i := strings.LastIndexAny(driver, `/\`); i >= 0 {
		driver = driver[i+1:]
	}
	base := strings.TrimSuffix(strings.ToLower(driver), ".exe")
	return base == "cl" || base == "clang-cl"
}

// preprocessArgs returns the full argument list that preprocesses src.
func (c Compiler) preprocessArgs(src string) []string {
	args := append([]string{}, c.Command[1:]...)
	args = append(args, c.Flags...)
	if c.MSVCStyle() {
		return append(args, "/nologo", "/EP", src)
	}
	return append(args, "-E", "-P", src)
}

// Prober collects predefined-macro signals from a compiler.
type Prober interface {
	Probe(ctx context.Context, c Compiler) (Signals, error)
}

// Runner executes a command and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs the command with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return out, errors.Wrapf(err, "%s", msg)
		}
		return out, err
	}
	return out, nil
}

// ExecProber runs the compiler's preprocessor over a generated source file
// that echoes every known signal.
type ExecProber struct {
	Run Runner
}

// NewExecProber returns a prober that runs real processes.
func NewExecProber() *ExecProber {
	return &ExecProber{Run: ExecRunner}
}

const signalMarker = "abivis_signal"

// ProbeSource is the C source fed to the preprocessor. Signal names are
// written as string literals so they are not themselves expanded.
func ProbeSource() string {
	var b strings.Builder
	for _, name := range KnownSignals {
		fmt.Fprintf(&b, "#ifdef %s\n%s \"%s\" = %s ;\n#endif\n", name, signalMarker, name, name)
	}
	return b.String()
}

// Probe implements Prober.
func (p *ExecProber) Probe(ctx context.Context, c Compiler) (Signals, error) {
	if len(c.Command) == 0 {
		return nil, errors.Wrap(ErrProbeFailed, "no compiler command")
	}
	run := p.Run
	if run == nil {
		run = ExecRunner
	}

	dir, err := os.MkdirTemp("", "abivis-probe-")
	if err != nil {
		return nil, errors.Wrap(err, "create probe directory")
	}
	defer os.RemoveAll(dir)

	src := filepath.Join(dir, "probe.c")
	if err := os.WriteFile(src, []byte(ProbeSource()), 0o644); err != nil {
		return nil, errors.Wrap(err, "write probe source")
	}

	args := c.preprocessArgs(src)
	logging.Logger.Debugw("probing compiler", "command", c.Command[0], "args", args)

	out, err := run(ctx, c.Command[0], args...)
	if err != nil {
		return nil, errors.WithHint(
			errors.Wrapf(ErrProbeFailed, "%s: %v", c, err),
			"set CC or the compiler config key, or pass --toolchain with a preset")
	}

	signals, err := ParseProbeOutput(out)
	if err != nil {
		return nil, err
	}
	logging.Logger.Debugw("probe complete", "signals", len(signals))
	return signals, nil
}

// ParseProbeOutput extracts the marker lines from preprocessor output.
func ParseProbeOutput(out []byte) (Signals, error) {
	signals := make(Signals)
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, signalMarker) {
			continue
		}
		rest := strings.TrimSpace(strings.TrimPrefix(line, signalMarker))
		name, value, ok := splitSignal(rest)
		if !ok {
			return nil, errors.Wrapf(ErrProbeFailed, "malformed probe line %q", line)
		}
		signals[name] = value
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "read probe output")
	}
	return signals, nil
}

// splitSignal parses `"NAME" = VALUE ;`.
func splitSignal(s string) (name, value string, ok bool) {
	if !strings.HasPrefix(s, `"`) {
		return "", "", false
	}
	end := strings.Index(s[1:], `"`)
	if end < 0 {
		return "", "", false
	}
	name = s[1 : end+1]
	rest := strings.TrimSpace(s[end+2:])
	if !strings.HasPrefix(rest, "=") || !strings.HasSuffix(rest, ";") {
		return "", "", false
	}
	value = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(rest, "="), ";"))
	return name, value, name != ""
}
