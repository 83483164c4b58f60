package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"
)

// Context represents the global context for commands
type Context struct {
	Config  string
	Verbose bool
	Quiet   bool
	Stdout  io.Writer
	Stderr  io.Writer
}

// Logger returns the logger handed to long-lived components
func (c *Context) Logger() *log.Logger {
	if !c.Verbose {
		return log.New(io.Discard, "", 0)
	}

	return log.New(c.Stderr, "pyplusplus: ", 0)
}

// CLI represents the command-line interface
type CLI struct {
	Config  string     `help:"Configuration file path" default:"pyplusplus.yaml"`
	Verbose bool       `help:"Enable verbose output" short:"v"`
	Quiet   bool       `help:"Suppress output" short:"q"`
	Run     RunCmd     `cmd:"" passthrough:"" help:"Run a Python program with ++ and -- enabled"`
	Rewrite RewriteCmd `cmd:"" help:"Print the standard Python a file lowers to"`
	Check   CheckCmd   `cmd:"" help:"Validate files without running them"`
	Cache   CacheCmd   `cmd:"" help:"Inspect or clear the rewrite cache"`
	Version VersionCmd `cmd:"" help:"Show version information"`
}

// Version is the released version of the tool
const Version = "v0.1.0"

// VersionCmd represents the version command
type VersionCmd struct{}

// Run executes the version command
func (cmd *VersionCmd) Run(ctx *Context) error {
	fmt.Fprintf(ctx.Stdout, "pyplusplus %s\n", Version)
	return nil
}

// ExitStatus carries the interpreter's exit status out of the run command
type ExitStatus struct {
	Code int
}

func (e *ExitStatus) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// commandLine treats every argument as a run argument when the binary is
// installed under an interpreter name such as python3
func commandLine(argv0 string, args []string) []string {
	name := strings.TrimSuffix(filepath.Base(argv0), ".exe")
	if strings.HasPrefix(name, "python") {
		return append([]string{"run"}, args...)
	}

	return args
}

func newParser(cli *CLI) (*kong.Kong, error) {
	return kong.New(cli,
		kong.Name("pyplusplus"),
		kong.Description("Python with postfix ++ and -- statements"),
		kong.UsageOnError(),
	)
}

func execute(args []string, stdout, stderr io.Writer) int {
	var cli CLI

	parser, err := newParser(&cli)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	ctx, err := parser.Parse(args)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	appCtx := &Context{
		Config:  cli.Config,
		Verbose: cli.Verbose,
		Quiet:   cli.Quiet,
		Stdout:  stdout,
		Stderr:  stderr,
	}

	err = ctx.Run(appCtx)

	var status *ExitStatus
	if errors.As(err, &status) {
		return status.Code
	}

	if err != nil {
		color.New(color.FgRed).Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	return 0
}

func main() {
	os.Exit(execute(commandLine(os.Args[0], os.Args[1:]), os.Stdout, os.Stderr))
}
