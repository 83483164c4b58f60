package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/shibukawa/pyplusplus"
	"github.com/shibukawa/pyplusplus/cache"
	"github.com/shibukawa/pyplusplus/engine"
	"github.com/shibukawa/pyplusplus/launcher"
	"github.com/shibukawa/pyplusplus/parser"
	"github.com/shibukawa/pyplusplus/rewriter"
)

// Sentinel errors for command operations
var (
	ErrCheckFailed      = errors.New("check failed")
	ErrNoPythonFiles    = errors.New("no Python files found")
	ErrConflictingFlags = errors.New("--map and --diff are mutually exclusive")
)

// skippedDirs are never searched for sources by check
var skippedDirs = map[string]bool{
	"__pycache__":   true,
	"node_modules":  true,
	"site-packages": true,
}

func loadConfig(ctx *Context) (*pyplusplus.Config, error) {
	config, err := pyplusplus.LoadConfig(ctx.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return config, nil
}

// RunCmd represents the run command
type RunCmd struct {
	Args []string `arg:"" optional:"" help:"Interpreter options, then script, -m module or -c command, then program arguments"`
}

// Run executes the run command
func (cmd *RunCmd) Run(ctx *Context) error {
	config, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	code, err := launcher.Run(context.Background(), launcher.Options{
		Config: config,
		Args:   cmd.Args,
		Logger: ctx.Logger(),
	})
	if err != nil {
		return err
	}

	if code != 0 {
		return &ExitStatus{Code: code}
	}

	return nil
}

// RewriteCmd represents the rewrite command
type RewriteCmd struct {
	File string `arg:"" help:"Python source file" type:"existingfile"`
	Map  bool   `help:"Print the position map as YAML instead of the source"`
	Diff bool   `help:"Print only the lines the rewrite changed"`
}

// Run executes the rewrite command
func (cmd *RewriteCmd) Run(ctx *Context) error {
	if cmd.Map && cmd.Diff {
		return ErrConflictingFlags
	}

	config, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	unit, err := pyplusplus.ReadSourceUnit(cmd.File)
	if err != nil {
		return err
	}

	e := engine.New(cache.New(cache.Options{Capacity: 1}), engine.Options{
		HostCheck:  config.Rewrite.HostCheck,
		TempPrefix: config.Rewrite.TempPrefix,
	})

	lowered, err := e.Lower(unit)
	if err != nil {
		fmt.Fprint(ctx.Stderr, parser.FormatDiagnostic(unit.Name, unit.Bytes, err))
		return err
	}

	switch {
	case cmd.Map:
		data, err := yaml.Marshal(lowered)
		if err != nil {
			return fmt.Errorf("failed to encode position map: %w", err)
		}

		_, err = ctx.Stdout.Write(data)

		return err
	case cmd.Diff:
		writeDiff(ctx, unit.Bytes, lowered)
		return nil
	default:
		_, err = ctx.Stdout.Write(lowered.Source)
		return err
	}
}

// writeDiff prints changed lines. Rewriting keeps line numbers, so lines
// pair up one to one.
func writeDiff(ctx *Context, original []byte, lowered *rewriter.Unit) {
	before := strings.Split(string(original), "\n")
	after := strings.Split(string(lowered.Source), "\n")

	removed := color.New(color.FgRed)
	added := color.New(color.FgGreen)
	header := color.New(color.FgCyan)

	for i := 0; i < len(before) && i < len(after); i++ {
		if before[i] == after[i] {
			continue
		}

		header.Fprintf(ctx.Stdout, "@@ line %d @@\n", i+1)
		removed.Fprintf(ctx.Stdout, "-%s\n", before[i])
		added.Fprintf(ctx.Stdout, "+%s\n", after[i])
	}
}

// CheckCmd represents the check command
type CheckCmd struct {
	Paths []string `arg:"" help:"Files or directories to check" type:"path"`
}

type checkResult struct {
	path     string
	rewrites int
	report   string
	err      error
}

// Run executes the check command
func (cmd *CheckCmd) Run(ctx *Context) error {
	config, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	files, err := collectSources(cmd.Paths)
	if err != nil {
		return err
	}

	if len(files) == 0 {
		return ErrNoPythonFiles
	}

	e := engine.New(cache.New(cache.Options{Capacity: 1}), engine.Options{TempPrefix: config.Rewrite.TempPrefix})
	results := make([]checkResult, len(files))

	var g errgroup.Group

	g.SetLimit(runtime.NumCPU())

	for i, file := range files {
		g.Go(func() error {
			results[i] = checkFile(e, file)
			return nil
		})
	}

	g.Wait()

	failed := 0

	for _, result := range results {
		switch {
		case result.err != nil:
			failed++

			color.New(color.FgRed).Fprint(ctx.Stderr, result.report)
		case ctx.Verbose:
			color.New(color.FgBlue).Fprintf(ctx.Stdout, "%s: ok (%d rewrites)\n", result.path, result.rewrites)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d files have errors", ErrCheckFailed, failed, len(files))
	}

	if !ctx.Quiet {
		color.New(color.FgGreen).Fprintf(ctx.Stdout, "Checked %d files\n", len(files))
	}

	return nil
}

func checkFile(e *engine.Engine, path string) checkResult {
	unit, err := pyplusplus.ReadSourceUnit(path)
	if err != nil {
		return checkResult{path: path, report: fmt.Sprintf("%s: %v\n", path, err), err: err}
	}

	lowered, err := e.Check(unit)
	if err != nil {
		return checkResult{path: path, report: parser.FormatDiagnostic(path, unit.Bytes, err), err: err}
	}

	return checkResult{path: path, rewrites: lowered.Rewrites}
}

// collectSources expands directories into the .py files below them
func collectSources(paths []string) ([]string, error) {
	var files []string

	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, err
		}

		if !info.IsDir() {
			files = append(files, root)
			continue
		}

		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}

			if d.IsDir() {
				if path != root && (strings.HasPrefix(d.Name(), ".") || skippedDirs[d.Name()]) {
					return filepath.SkipDir
				}

				return nil
			}

			if strings.HasSuffix(d.Name(), ".py") {
				files = append(files, path)
			}

			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", root, err)
		}
	}

	sort.Strings(files)

	return files, nil
}

// CacheCmd groups the cache subcommands
type CacheCmd struct {
	Path  CachePathCmd  `cmd:"" help:"Print the cache directory"`
	Stats CacheStatsCmd `cmd:"" help:"Show cache size"`
	Clear CacheClearCmd `cmd:"" help:"Remove every cached rewrite"`
}

// CachePathCmd represents the cache path command
type CachePathCmd struct{}

// Run executes the cache path command
func (cmd *CachePathCmd) Run(ctx *Context) error {
	config, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	if config.Cache.Dir == "" {
		return cache.ErrNoCacheDir
	}

	fmt.Fprintln(ctx.Stdout, cache.VersionDir(config.Cache.Dir))

	return nil
}

// CacheStatsCmd represents the cache stats command
type CacheStatsCmd struct{}

// Run executes the cache stats command
func (cmd *CacheStatsCmd) Run(ctx *Context) error {
	config, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	c := cache.Open(config.Cache, ctx.Logger())
	defer c.Close()

	stats, err := c.StoreStats()
	if err != nil {
		return err
	}

	fmt.Fprintf(ctx.Stdout, "backend: %s\n", config.Cache.Backend)
	fmt.Fprintf(ctx.Stdout, "entries: %d\n", stats.Entries)
	fmt.Fprintf(ctx.Stdout, "bytes: %d\n", stats.Bytes)

	if c.Stats().Degraded {
		color.New(color.FgYellow).Fprintln(ctx.Stderr, "cache directory is unavailable; rewrites are kept in memory only")
	}

	return nil
}

// CacheClearCmd represents the cache clear command
type CacheClearCmd struct{}

// Run executes the cache clear command
func (cmd *CacheClearCmd) Run(ctx *Context) error {
	config, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	c := cache.Open(config.Cache, ctx.Logger())
	defer c.Close()

	stats, err := c.StoreStats()
	if err != nil {
		return err
	}

	if err := c.Clear(); err != nil {
		return err
	}

	if !ctx.Quiet {
		color.New(color.FgGreen).Fprintf(ctx.Stdout, "Removed %d cached rewrites\n", stats.Entries)
	}

	return nil
}
