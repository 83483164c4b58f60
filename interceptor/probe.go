package interceptor

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// probeScript prints what the launcher needs to know about an interpreter
const probeScript = `import platform, sys
print(platform.python_implementation())
print("%d.%d.%d" % sys.version_info[:3])
print(sys.executable)`

// knownBuilds are the interpreter releases whose import system the bootstrap
// has been verified against
var knownBuilds = map[string]map[int]bool{
	"CPython": {8: true, 9: true, 10: true, 11: true, 12: true, 13: true, 14: true},
}

// Version is an interpreter release
type Version struct {
	Major int
	Minor int
	Micro int
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Micro)
}

// Interpreter describes a probed Python executable
type Interpreter struct {
	Path           string
	Executable     string
	Implementation string
	Version        Version
}

// Supported reports whether the interceptor can attach to the interpreter
func (i *Interpreter) Supported() error {
	minors, ok := knownBuilds[i.Implementation]
	if !ok || i.Version.Major != 3 || !minors[i.Version.Minor] {
		return &InjectionError{
			Reason: fmt.Sprintf("%s %s is not a supported interpreter (CPython 3.8 to 3.14)", i.Implementation, i.Version),
			Err:    ErrUnsupportedInterpreter,
		}
	}

	return nil
}

// Probe runs the interpreter once to learn its implementation and version
func Probe(ctx context.Context, path string) (*Interpreter, error) {
	resolved, err := exec.LookPath(path)
	if err != nil {
		return nil, &InjectionError{Reason: fmt.Sprintf("interpreter %q not found", path), Err: err}
	}

	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, resolved, "-I", "-c", probeScript)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &InjectionError{
			Reason: fmt.Sprintf("failed to query interpreter %s: %s", resolved, strings.TrimSpace(stderr.String())),
			Err:    err,
		}
	}

	interp, err := parseProbeOutput(stdout.String())
	if err != nil {
		return nil, &InjectionError{Reason: fmt.Sprintf("unexpected answer from interpreter %s", resolved), Err: err}
	}

	interp.Path = resolved

	return interp, nil
}

func parseProbeOutput(out string) (*Interpreter, error) {
	lines := strings.Split(strings.TrimSpace(strings.ReplaceAll(out, "\r\n", "\n")), "\n")
	if len(lines) < 3 {
		return nil, fmt.Errorf("%w: expected 3 lines, got %d", ErrUnsupportedInterpreter, len(lines))
	}

	version, err := parseVersion(strings.TrimSpace(lines[1]))
	if err != nil {
		return nil, err
	}

	return &Interpreter{
		Implementation: strings.TrimSpace(lines[0]),
		Version:        version,
		Executable:     strings.TrimSpace(lines[2]),
	}, nil
}

func parseVersion(s string) (Version, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("%w: malformed version %q", ErrUnsupportedInterpreter, s)
	}

	var numbers [3]int

	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return Version{}, fmt.Errorf("%w: malformed version %q", ErrUnsupportedInterpreter, s)
		}

		numbers[i] = n
	}

	return Version{Major: numbers[0], Minor: numbers[1], Micro: numbers[2]}, nil
}
