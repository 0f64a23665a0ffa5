package toolchain

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
)

// fakePreprocessor emulates a compiler in preprocess-only mode: it reads the
// probe source and prints a marker line for each defined signal.
func fakePreprocessor(defined Signals, gotArgs *[]string) Runner {
	return func(ctx context.Context, name string, args ...string) ([]byte, error) {
		*gotArgs = append([]string{name}, args...)
		src := args[len(args)-1]
		data, err := os.ReadFile(src)
		if err != nil {
			return nil, err
		}
		var b strings.Builder
		b.WriteString("\n\n")
		for _, line := range strings.Split(string(data), "\n") {
			if !strings.HasPrefix(line, "#ifdef ") {
				continue
			}
			macro := strings.TrimPrefix(line, "#ifdef ")
			if v, ok := defined[macro]; ok {
				fmt.Fprintf(&b, "  %s \"%s\" = %s ;\n", signalMarker, macro, v)
			}
		}
		return []byte(b.String()), nil
	}
}

func TestExecProber_GCCStyle(t *testing.T) {
	var args []string
	p := &ExecProber{Run: fakePreprocessor(Signals{"__GNUC__": "13", "__GNUC_MINOR__": "2", "__clang__": ""}, &args)}

	c, err := ParseCompiler("ccache gcc", "-m32 -DFOO='a b'")
	if err != nil {
		t.Fatal(err)
	}
	s, err := p.Probe(context.Background(), c)
	if err != nil {
		t.Fatal(err)
	}

	if s["__GNUC__"] != "13" || s["__GNUC_MINOR__"] != "2" {
		t.Errorf("signals: got %v", s)
	}
	if v, ok := s["__clang__"]; !ok || v != "" {
		t.Errorf("__clang__ should be defined empty, got %q (defined=%v)", v, ok)
	}
	if s.Has("_WIN32") {
		t.Error("_WIN32 should not be defined")
	}

	if args[0] != "ccache" || args[1] != "gcc" {
		t.Errorf("command: got %v", args)
	}
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "-m32 -DFOO=a b -E -P ") {
		t.Errorf("args: got %q", joined)
	}
}

func TestExecProber_MSVCStyle(t *testing.T) {
	var args []string
	p := &ExecProber{Run: fakePreprocessor(Signals{"_WIN32": "1", "_MSC_VER": "1939"}, &args)}

	c, err := ParseCompiler(`"C:\Program Files\cl.exe"`, "")
	if err != nil {
		t.Fatal(err)
	}
	s, err := p.Probe(context.Background(), c)
	if err != nil {
		t.Fatal(err)
	}
	if s["_MSC_VER"] != "1939" {
		t.Errorf("_MSC_VER: got %q", s["_MSC_VER"])
	}
	if len(args) != 4 || args[1] != "/nologo" || args[2] != "/EP" {
		t.Errorf("args: got %v", args)
	}
}

func TestExecProber_RunFailure(t *testing.T) {
	p := &ExecProber{Run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, errors.Newf("exec: %q: executable file not found in $PATH", name)
	}}
	c, _ := ParseCompiler("nosuchcc", "")
	_, err := p.Probe(context.Background(), c)
	if !errors.Is(err, ErrProbeFailed) {
		t.Fatalf("expected ErrProbeFailed, got %v", err)
	}
	if len(errors.GetAllHints(err)) == 0 {
		t.Error("expected a hint")
	}
}

func TestExecRunner_KeepsExitError(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	_, err := ExecRunner(context.Background(), "sh", "-c", "echo 'cc: bad option' >&2; exit 3")
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected an *exec.ExitError in the chain, got %v", err)
	}
	if exitErr.ExitCode() != 3 {
		t.Errorf("exit code: got %d", exitErr.ExitCode())
	}
	if !strings.Contains(err.Error(), "cc: bad option") {
		t.Errorf("stderr missing from %q", err)
	}
}

func TestExecProber_EmptyCompiler(t *testing.T) {
	p := NewExecProber()
	if _, err := p.Probe(context.Background(), Compiler{}); !errors.Is(err, ErrProbeFailed) {
		t.Fatalf("expected ErrProbeFailed, got %v", err)
	}
}

func TestParseProbeOutput(t *testing.T) {
	out := []byte("# 1 \"probe.c\"\n" +
		"abivis_signal \"__GNUC__\" = 12 ;\n" +
		"abivis_signal \"_WIN32\" = ;\n" +
		"int unrelated;\n")
	s, err := ParseProbeOutput(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(s) != 2 {
		t.Fatalf("expected 2 signals, got %v", s)
	}
	if s["__GNUC__"] != "12" {
		t.Errorf("__GNUC__: got %q", s["__GNUC__"])
	}
	if v, ok := s["_WIN32"]; !ok || v != "" {
		t.Errorf("_WIN32: got %q (defined=%v)", v, ok)
	}
}

func TestParseProbeOutput_Malformed(t *testing.T) {
	for _, line := range []string{
		"abivis_signal __GNUC__ = 12 ;",
		"abivis_signal \"__GNUC__\" 12 ;",
		"abivis_signal \"__GNUC__\" = 12",
		"abivis_signal \"__GNUC__",
	} {
		if _, err := ParseProbeOutput([]byte(line)); err == nil {
			t.Errorf("%q: expected error", line)
		}
	}
}

func TestProbeSource_QuotesNames(t *testing.T) {
	src := ProbeSource()
	for _, name := range KnownSignals {
		if !strings.Contains(src, "#ifdef "+name+"\n") {
			t.Errorf("missing #ifdef for %s", name)
		}
		if !strings.Contains(src, `"`+name+`" = `+name+" ;") {
			t.Errorf("missing marker line for %s", name)
		}
	}
}

func TestParseCompiler(t *testing.T) {
	if _, err := ParseCompiler("", ""); err == nil {
		t.Error("expected error for empty command")
	}
	if _, err := ParseCompiler("gcc", "'unterminated"); err == nil {
		t.Error("expected error for unterminated quote")
	}
	c, err := ParseCompiler("clang-cl.exe", "/W4")
	if err != nil {
		t.Fatal(err)
	}
	if !c.MSVCStyle() {
		t.Error("clang-cl.exe should be MSVC style")
	}
	if c.String() != "clang-cl.exe /W4" {
		t.Errorf("String: got %q", c.String())
	}
}
