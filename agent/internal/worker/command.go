package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
)

// Command is one process invocation on the agent host.
type Command struct {
	Name string
	Args []string
	Dir  string
	Env  map[string]string
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Output is what a finished command printed.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Combined joins stdout and stderr for log upload.
func (o Output) Combined() string {
	switch {
	case o.Stderr == "":
		return o.Stdout
	case o.Stdout == "":
		return o.Stderr
	default:
		return strings.TrimRight(o.Stdout, "\n") + "\n" + o.Stderr
	}
}

// CommandRunner runs commands. A non-zero exit is reported as an error with
// ExitCode populated.
type CommandRunner interface {
	Run(ctx context.Context, cmd Command) (Output, error)
}

// ExecRunner runs commands as local processes.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, c Command) (Output, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), envList(c.Env)...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout, cmd.Stderr = &stdout, &stderr
	err := cmd.Run()

	out := Output{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			out.ExitCode = exitErr.ExitCode()
			return out, fmt.Errorf("%s exited with code %d", c.Name, out.ExitCode)
		}
		out.ExitCode = -1
		return out, err
	}
	return out, nil
}

func envList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}
