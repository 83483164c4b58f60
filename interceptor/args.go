package interceptor

import (
	"fmt"
	"regexp"
	"strings"
)

// TargetMode says what the interpreter is asked to run
type TargetMode int

const (
	Interactive TargetMode = iota
	Script
	Module
	Command
	Stdin
	// Info covers invocations such as -V or --help that run no code
	Info
)

func (m TargetMode) String() string {
	switch m {
	case Script:
		return "script"
	case Module:
		return "module"
	case Command:
		return "command"
	case Stdin:
		return "stdin"
	case Info:
		return "info"
	default:
		return "interactive"
	}
}

// PythonArgs is a python command line split into its parts
type PythonArgs struct {
	// Version is set by a leading "+3.12" selector
	Version string
	// Options are interpreter options in normalized form, one flag per element
	Options []string
	Mode    TargetMode
	Target  string
	Args    []string

	IgnoreEnvironment bool
	Isolated          bool
	NoSite            bool

	// runs is the target an Info invocation names but never starts
	runs TargetMode
}

var versionSelector = regexp.MustCompile(`^\+3\.\d{1,2}$`)

// short options that take a value
const valueOptions = "XW"

// short options that take no value
const flagOptions = "bBdEhiIOPqsSuvVx?R"

// ParseArgs splits a python command line. Everything after the target
// belongs to the program and is left untouched.
func ParseArgs(args []string) (*PythonArgs, error) {
	result := &PythonArgs{}

	i := 0
	if len(args) > 0 && versionSelector.MatchString(args[0]) {
		result.Version = args[0][1:]
		i++
	}

	info := false

	for i < len(args) {
		arg := args[i]
		i++

		switch {
		case arg == "-":
			result.Mode = Stdin
			result.Target = arg
			result.Args = args[i:]

			return result.finish(info), nil
		case arg == "--":
			if i < len(args) {
				result.setScript(args[i], args[i+1:])
			}

			return result.finish(info), nil
		case !strings.HasPrefix(arg, "-"):
			result.setScript(arg, args[i:])
			return result.finish(info), nil
		case strings.HasPrefix(arg, "--"):
			name, value, hasValue := strings.Cut(arg, "=")

			switch name {
			case "--check-hash-based-pycs":
				if !hasValue {
					if i >= len(args) {
						return nil, fmt.Errorf("%w: %s", ErrMissingOptionValue, name)
					}

					value = args[i]
					i++
				}

				result.Options = append(result.Options, name, value)
			case "--help", "--version", "--help-env", "--help-xoptions", "--help-all":
				info = true

				result.Options = append(result.Options, arg)
			default:
				return nil, fmt.Errorf("%w: %s", ErrUnknownOption, arg)
			}
		default:
			done, next, err := result.parseCluster(arg[1:], args, i, &info)
			if err != nil {
				return nil, err
			}

			if done {
				return result.finish(info), nil
			}

			i = next
		}
	}

	return result.finish(info), nil
}

// parseCluster handles a group of short options such as -Bc. It reports
// done when the cluster ended the interpreter options.
func (p *PythonArgs) parseCluster(cluster string, args []string, next int, info *bool) (bool, int, error) {
	for j := 0; j < len(cluster); j++ {
		ch := cluster[j]

		switch {
		case ch == 'c' || ch == 'm' || strings.IndexByte(valueOptions, ch) >= 0:
			value := cluster[j+1:]
			if value == "" {
				if next >= len(args) {
					return false, next, fmt.Errorf("%w: -%c", ErrMissingOptionValue, ch)
				}

				value = args[next]
				next++
			}

			switch ch {
			case 'c':
				p.Mode = Command
				p.Target = value
				p.Args = args[next:]

				return true, next, nil
			case 'm':
				p.Mode = Module
				p.Target = value
				p.Args = args[next:]

				return true, next, nil
			}

			p.Options = append(p.Options, "-"+string(ch), value)

			return false, next, nil
		case strings.IndexByte(flagOptions, ch) >= 0:
			p.Options = append(p.Options, "-"+string(ch))

			switch ch {
			case 'E':
				p.IgnoreEnvironment = true
			case 'I':
				p.Isolated = true
			case 'S':
				p.NoSite = true
			case 'h', '?', 'V':
				*info = true
			}
		default:
			return false, next, fmt.Errorf("%w: -%c", ErrUnknownOption, ch)
		}
	}

	return false, next, nil
}

func (p *PythonArgs) setScript(target string, rest []string) {
	p.Mode = Script
	p.Target = target
	p.Args = rest
}

// finish turns the invocation into Info when a help or version option
// appeared. The interpreter prints and exits before running any target.
func (p *PythonArgs) finish(info bool) *PythonArgs {
	if info {
		p.runs = p.Mode
		p.Mode = Info
	}

	return p
}

// Command reassembles the invocation without interception
func (p *PythonArgs) Command() []string {
	cmd := append([]string{}, p.Options...)

	mode := p.Mode
	if mode == Info {
		mode = p.runs
	}

	switch mode {
	case Command:
		cmd = append(cmd, "-c", p.Target)
	case Module:
		cmd = append(cmd, "-m", p.Target)
	case Script, Stdin:
		cmd = append(cmd, p.Target)
	default:
		return cmd
	}

	return append(cmd, p.Args...)
}
