// Package launcher runs a Python program with the rewrite hook attached.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/shibukawa/pyplusplus"
	"github.com/shibukawa/pyplusplus/cache"
	"github.com/shibukawa/pyplusplus/engine"
	"github.com/shibukawa/pyplusplus/interceptor"
)

// UsageExitCode matches the interpreter's status for a bad command line
const UsageExitCode = 2

// Options configures a run
type Options struct {
	Config *pyplusplus.Config
	// Args is the python command line without the interpreter name
	Args   []string
	Env    []string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger *log.Logger
}

// Run starts the interpreter and waits for it. The returned exit code is the
// program's own; err is set only when the launch itself went wrong.
func Run(ctx context.Context, opts Options) (int, error) {
	opts = withDefaults(opts)
	cfg := opts.Config

	args, err := interceptor.ParseArgs(opts.Args)
	if err != nil {
		return UsageExitCode, err
	}

	python := pythonFor(cfg.Python, args.Version, runtime.GOOS)

	if args.Mode == interceptor.Info {
		return passthrough(ctx, python, args, opts)
	}

	interp, err := interceptor.Probe(ctx, python)
	if err != nil {
		return 1, err
	}

	if err := interp.Supported(); err != nil {
		return 1, err
	}

	opts.Logger.Printf("interpreter %s %s at %s", interp.Implementation, interp.Version, interp.Path)

	c := cache.Open(cfg.Cache, opts.Logger)
	defer c.Close()

	srv, err := interceptor.NewServer(engine.New(c, engine.Options{
		HostCheck:  cfg.Rewrite.HostCheck,
		TempPrefix: cfg.Rewrite.TempPrefix,
	}), opts.Logger)
	if err != nil {
		return 1, err
	}
	defer srv.Close()

	serveCtx, stopServing := context.WithCancel(context.Background())
	defer stopServing()

	go srv.Serve(serveCtx)

	ic, err := interceptor.Select(cfg.Interceptor, runtime.GOOS, args)
	if err != nil {
		return 1, err
	}
	defer ic.Close()

	cmd, err := ic.Attach(&interceptor.Launch{
		Interpreter:   interp,
		Args:          args,
		Addr:          srv.Addr(),
		Token:         srv.Token(),
		PycachePrefix: pycachePrefix(cfg.Cache.Dir),
		Env:           opts.Env,
		Stdin:         opts.Stdin,
		Stdout:        opts.Stdout,
		Stderr:        opts.Stderr,
	})
	if err != nil {
		return 1, err
	}

	opts.Logger.Printf("attaching with the %s interceptor", ic.Name())

	code, err := wait(ctx, cmd)
	if err != nil {
		return 1, err
	}

	if reason, failed := srv.Failure(); failed {
		return code, &interceptor.InjectionError{Reason: reason}
	}

	if !srv.Attached() {
		return code, &interceptor.InjectionError{Reason: fmt.Sprintf("interpreter exited with status %d before the hook was installed", code)}
	}

	opts.Logger.Printf("served %d rewrite requests; %+v", srv.Requests(), c.Stats())

	return code, nil
}

func withDefaults(opts Options) Options {
	if opts.Config == nil {
		opts.Config = pyplusplus.DefaultConfig()
	}

	if opts.Env == nil {
		opts.Env = os.Environ()
	}

	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}

	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}

	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}

	return opts
}

// pythonFor resolves the interpreter command. A "+3.12" selector picks the
// versioned executable.
func pythonFor(configured, version, goos string) string {
	if version == "" {
		return configured
	}

	if goos == "windows" {
		return "python" + version + ".exe"
	}

	return "python" + version
}

func pycachePrefix(cacheDir string) string {
	if cacheDir == "" {
		return ""
	}

	return filepath.Join(cacheDir, cache.FormatVersion, "pycache")
}

// passthrough runs invocations that execute no program code unmodified
func passthrough(ctx context.Context, python string, args *interceptor.PythonArgs, opts Options) (int, error) {
	cmd := exec.Command(python, args.Command()...)
	cmd.Env = opts.Env
	cmd.Stdin = opts.Stdin
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr

	return wait(ctx, cmd)
}

// wait starts cmd and forwards termination requests until it exits.
// Interrupts are not forwarded: the terminal delivers them to the whole
// process group, so the interpreter already receives its own.
func wait(ctx context.Context, cmd *exec.Cmd) (int, error) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

	defer signal.Stop(signals)

	if err := cmd.Start(); err != nil {
		return 1, fmt.Errorf("failed to start interpreter: %w", err)
	}

	done := make(chan error, 1)

	go func() { done <- cmd.Wait() }()

	for {
		select {
		case sig := <-signals:
			if sig != os.Interrupt {
				terminate(cmd.Process)
			}
		case <-ctx.Done():
			terminate(cmd.Process)
			ctx = context.Background()
		case err := <-done:
			return exitCode(err)
		}
	}
}

func terminate(p *os.Process) {
	if runtime.GOOS == "windows" {
		p.Kill()
		return
	}

	p.Signal(syscall.SIGTERM)
}

// exitCode converts a Wait result into a shell-style status
func exitCode(err error) (int, error) {
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return 1, err
	}

	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return 128 + int(status.Signal()), nil
	}

	return exitErr.ExitCode(), nil
}
