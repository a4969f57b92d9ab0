package models

import (
	"regexp"
	"strings"
	"time"
)

// CommandRuntime selects the interpreter an exec template runs under
type CommandRuntime string

const (
	RuntimeShell      CommandRuntime = "shell"
	RuntimePython     CommandRuntime = "python"
	RuntimePowerShell CommandRuntime = "powershell"
)

func (r CommandRuntime) Valid() bool {
	switch r {
	case RuntimeShell, RuntimePython, RuntimePowerShell:
		return true
	}
	return false
}

// DefaultCommandTimeoutSeconds bounds a template run that names no timeout.
const DefaultCommandTimeoutSeconds = 300

// CommandTemplate is a saved command that can be run on any host as an exec
// job. System templates are seeded by the controller and cannot be deleted.
type CommandTemplate struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Command     string         `json:"command"`
	Description string         `json:"description,omitempty"`
	Tags        []string       `json:"tags"`
	IsSystem    bool           `json:"is_system"`
	Runtime     CommandRuntime `json:"runtime"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// CommandCreate is the request body for saving a command template
type CommandCreate struct {
	Name        string         `json:"name" binding:"required"`
	Command     string         `json:"command" binding:"required"`
	Description string         `json:"description,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Runtime     CommandRuntime `json:"runtime,omitempty"`
}

// CommandUpdate carries optional replacements for a command template
type CommandUpdate struct {
	Name        *string         `json:"name,omitempty"`
	Command     *string         `json:"command,omitempty"`
	Description *string         `json:"description,omitempty"`
	Tags        []string        `json:"tags,omitempty"`
	Runtime     *CommandRuntime `json:"runtime,omitempty"`
}

// CommandRunRequest schedules a template on a host
type CommandRunRequest struct {
	Host           string            `json:"host" binding:"required"`
	Arguments      []string          `json:"arguments,omitempty"`
	Environment    map[string]string `json:"environment,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty"`
	WorkingDir     string            `json:"working_dir,omitempty"`
}

// ExecMetadata builds the exec job metadata that runs t with req's
// arguments. Shell arguments are quoted; PowerShell arguments are appended
// verbatim; Python arguments become sys.argv.
func (t CommandTemplate) ExecMetadata(req CommandRunRequest) map[string]any {
	var argv []string
	switch t.Runtime {
	case RuntimeShell, "":
		quoted := make([]string, len(req.Arguments))
		for i, arg := range req.Arguments {
			quoted[i] = ShellQuote(arg)
		}
		argv = []string{"bash", "-lc", joinCommand(t.Command, quoted)}
	case RuntimePowerShell:
		argv = []string{"powershell", "-Command", joinCommand(t.Command, req.Arguments)}
	case RuntimePython:
		argv = append([]string{"python", "-c", t.Command}, req.Arguments...)
	default:
		argv = []string{"bash", "-lc", t.Command}
	}

	env := make(map[string]string, len(req.Environment))
	for k, v := range req.Environment {
		env[k] = v
	}
	timeout := req.TimeoutSeconds
	if timeout <= 0 {
		timeout = DefaultCommandTimeoutSeconds
	}

	runtime := t.Runtime
	if runtime == "" {
		runtime = RuntimeShell
	}
	md := map[string]any{
		"command":               argv,
		"environment":           env,
		"timeout_seconds":       timeout,
		"command_template_id":   t.ID,
		"command_template_name": t.Name,
		"command_runtime":       string(runtime),
	}
	if t.Description != "" {
		md["command_description"] = t.Description
	}
	if len(req.Arguments) > 0 {
		md["command_arguments"] = append([]string(nil), req.Arguments...)
	}
	if req.WorkingDir != "" {
		md["working_dir"] = req.WorkingDir
	}
	return md
}

func joinCommand(command string, args []string) string {
	if len(args) == 0 {
		return command
	}
	return strings.TrimSpace(command + " " + strings.Join(args, " "))
}

var shellSafe = regexp.MustCompile(`^[A-Za-z0-9_@%+=:,./-]+$`)

// ShellQuote makes s a single POSIX shell word.
func ShellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if shellSafe.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
