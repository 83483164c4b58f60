// Package interceptor attaches the rewrite step to a Python interpreter's
// import system.
package interceptor

import (
	_ "embed"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/shibukawa/pyplusplus"
)

//go:embed bootstrap.py
var bootstrapSource []byte

// Environment variables read by the bootstrap
const (
	AddrEnv  = "PYPLUSPLUS_ADDR"
	TokenEnv = "PYPLUSPLUS_TOKEN"
)

// FailExitCode is the status the bootstrap exits with when it cannot attach
const FailExitCode = 70

const (
	bootModule  = "pyplusplus_boot"
	siteModule  = "sitecustomize"
	innerSource = `"""Installs the pyplusplus import hook."""
import os

import pyplusplus_boot

__pyplusplus_internal__ = True

pyplusplus_boot.install()
pyplusplus_boot.chain_sitecustomize(os.path.dirname(os.path.abspath(__file__)))
`
)

// Launch is everything an interceptor needs to build the interpreter command
type Launch struct {
	Interpreter *Interpreter
	Args        *PythonArgs
	Addr        string
	Token       string
	// PycachePrefix keeps bytecode of rewritten sources apart from the
	// project's own __pycache__ directories
	PycachePrefix string
	Env           []string
	Stdin         io.Reader
	Stdout        io.Writer
	Stderr        io.Writer
}

// Interceptor builds an interpreter command whose import system routes
// source through the rewrite service
type Interceptor interface {
	Name() string
	Attach(l *Launch) (*exec.Cmd, error)
	Close() error
}

// Select picks the interceptor for mode. The auto mode prefers preloading
// and falls back to injection where the interpreter ignores PYTHONPATH.
func Select(mode string, goos string, args *PythonArgs) (Interceptor, error) {
	preloadBlocked := args.IgnoreEnvironment || args.Isolated

	switch mode {
	case pyplusplus.InterceptorAuto, "":
		if goos == "windows" || preloadBlocked || (args.NoSite && args.Mode == Interactive) {
			return &Inject{}, nil
		}

		return &Preload{}, nil
	case pyplusplus.InterceptorPreload:
		if preloadBlocked {
			return nil, &InjectionError{Reason: "the preload interceptor needs PYTHONPATH, which -E and -I disable"}
		}

		return &Preload{}, nil
	case pyplusplus.InterceptorInject:
		return &Inject{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownInterceptor, mode)
	}
}

// Preload places a sitecustomize module on PYTHONPATH. Child interpreters
// started by the program inherit the hook.
type Preload struct {
	dir string
}

func (p *Preload) Name() string { return pyplusplus.InterceptorPreload }

func (p *Preload) Attach(l *Launch) (*exec.Cmd, error) {
	dir, err := os.MkdirTemp("", "pyplusplus-boot-")
	if err != nil {
		return nil, &InjectionError{Reason: "cannot create bootstrap directory", Err: err}
	}

	p.dir = dir

	files := map[string][]byte{
		bootModule + ".py": bootstrapSource,
		siteModule + ".py": []byte(innerSource),
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), content, 0o600); err != nil {
			return nil, &InjectionError{Reason: "cannot write bootstrap module", Err: err}
		}
	}

	args := interpreterOptions(l)
	if l.Args.Mode != Interactive {
		args = append(args, "-m", bootModule)
		args = append(args, bootArgs(l.Args)...)
	}

	pairs := []string{"PYTHONPATH=" + joinPath(dir, lookupEnv(l.Env, "PYTHONPATH"))}
	if l.PycachePrefix != "" {
		pairs = append(pairs, "PYTHONPYCACHEPREFIX="+l.PycachePrefix)
	}

	env := withEnv(l.Env, pairs...)

	return command(l, args, env), nil
}

func (p *Preload) Close() error {
	if p.dir == "" {
		return nil
	}

	return os.RemoveAll(p.dir)
}

// Inject passes the bootstrap on the command line. Only the launched
// interpreter is hooked.
type Inject struct{}

func (i *Inject) Name() string { return pyplusplus.InterceptorInject }

func (i *Inject) Attach(l *Launch) (*exec.Cmd, error) {
	args := interpreterOptions(l)
	if l.Args.Mode == Interactive {
		args = append(args, "-i")
	}

	args = append(args, "-c", InjectStub())
	args = append(args, bootArgs(l.Args)...)

	return command(l, args, withEnv(l.Env)), nil
}

func (i *Inject) Close() error { return nil }

// InjectStub is the -c program that runs the bootstrap
func InjectStub() string {
	return fmt.Sprintf("import base64;__pyplusplus_internal__=1;exec(compile(base64.b64decode('%s'),'<pyplusplus>','exec'))",
		base64.StdEncoding.EncodeToString(bootstrapSource))
}

func interpreterOptions(l *Launch) []string {
	args := append([]string{}, l.Args.Options...)
	if l.PycachePrefix != "" {
		args = append(args, "-X", "pycache_prefix="+l.PycachePrefix)
	}

	return args
}

// bootArgs tells the bootstrap what to run
func bootArgs(a *PythonArgs) []string {
	switch a.Mode {
	case Script, Module, Command:
		return append([]string{a.Mode.String(), a.Target}, a.Args...)
	case Stdin:
		return append([]string{a.Mode.String(), "-"}, a.Args...)
	default:
		return []string{Interactive.String()}
	}
}

func command(l *Launch, args []string, env []string) *exec.Cmd {
	cmd := exec.Command(l.Interpreter.Path, args...)
	cmd.Env = append(env, AddrEnv+"="+l.Addr, TokenEnv+"="+l.Token)
	cmd.Stdin = l.Stdin
	cmd.Stdout = l.Stdout
	cmd.Stderr = l.Stderr

	return cmd
}

// withEnv replaces or adds the given KEY=VALUE pairs
func withEnv(base []string, pairs ...string) []string {
	env := make([]string, 0, len(base)+len(pairs))

	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if key == AddrEnv || key == TokenEnv || overridden(key, pairs) {
			continue
		}

		env = append(env, kv)
	}

	return append(env, pairs...)
}

func overridden(key string, pairs []string) bool {
	for _, kv := range pairs {
		if k, _, _ := strings.Cut(kv, "="); k == key {
			return true
		}
	}

	return false
}

func lookupEnv(env []string, key string) string {
	for i := len(env) - 1; i >= 0; i-- {
		if k, v, _ := strings.Cut(env[i], "="); k == key {
			return v
		}
	}

	return ""
}

func joinPath(first, rest string) string {
	if rest == "" {
		return first
	}

	return first + string(os.PathListSeparator) + rest
}
