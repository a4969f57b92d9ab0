package launch

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/doniyusdinar/deploybot/pkg/logger"
)

// Header opens every generated launch script.
const Header = "#!/bin/bash\nset -euo pipefail\n\n"

const defaultCloneTimeout = 2 * time.Minute

// CloneFunc stages repoURL at ref into dir.
type CloneFunc func(ctx context.Context, repoURL, ref, dir string) error

// Planner derives launch scripts for repositories that do not ship one.
type Planner struct {
	// Refiner is optional; its failures never fail planning.
	Refiner      Refiner
	Clone        CloneFunc
	CloneTimeout time.Duration
}

// NewPlanner returns a planner that clones with the git CLI.
func NewPlanner(refiner Refiner) *Planner {
	return &Planner{
		Refiner:      refiner,
		Clone:        GitClone,
		CloneTimeout: defaultCloneTimeout,
	}
}

// GitClone shallow-clones repoURL into dir.
func GitClone(ctx context.Context, repoURL, ref, dir string) error {
	args := []string{"clone", "--depth", "1"}
	if ref != "" {
		args = append(args, "--branch", ref)
	}
	args = append(args, repoURL, dir)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("git clone %s: %w (stderr: %s)", repoURL, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// Heuristic clones the repository into a temporary directory and runs the
// detector chain over it. It returns "" when the clone fails.
func (p *Planner) Heuristic(ctx context.Context, repoURL, ref string) string {
	dir, err := os.MkdirTemp("", "deploybot-launch-")
	if err != nil {
		logger.Log.Warnf("Failed to create launch planning dir: %v", err)
		return ""
	}
	defer os.RemoveAll(dir)

	timeout := p.CloneTimeout
	if timeout <= 0 {
		timeout = defaultCloneTimeout
	}
	cloneCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := p.Clone(cloneCtx, repoURL, ref, dir); err != nil {
		logger.Log.Warnf("Failed to clone %s for launch script: %v", repoURL, err)
		return ""
	}

	body := strings.TrimSpace(Detect(os.DirFS(dir)))
	if body == "" {
		return ""
	}
	return Header + body + "\n"
}

// Plan returns the heuristic script, refined or backfilled by the Refiner
// when one is configured.
func (p *Planner) Plan(ctx context.Context, repoURL, ref string) string {
	script := p.Heuristic(ctx, repoURL, ref)
	if p.Refiner == nil {
		return script
	}

	if script != "" {
		refined, err := p.Refiner.Refine(ctx, repoURL, ref, script)
		if err != nil {
			logger.Log.Warnf("Launch script refinement failed: %v", err)
		} else if strings.TrimSpace(refined) != "" {
			script = refined
		}
	}
	if script == "" {
		generated, err := p.Refiner.Generate(ctx, repoURL, ref)
		if err != nil {
			logger.Log.Warnf("Launch script generation failed: %v", err)
		} else {
			script = generated
		}
	}
	return script
}

// EnsureLaunchScript fills metadata["launch_script"] for a repository deploy
// that allows inference and does not carry a script already.
func (p *Planner) EnsureLaunchScript(ctx context.Context, metadata map[string]any, repoURL, ref string, allowInference bool) {
	if s, _ := metadata["launch_script"].(string); s != "" {
		return
	}
	if !allowInference {
		return
	}

	script := p.Plan(ctx, repoURL, ref)
	if script == "" {
		return
	}
	metadata["launch_script"] = script
	if _, ok := metadata["launch_shell"]; !ok {
		metadata["launch_shell"] = "bash"
	}
	metadata["launch_generated"] = true
}
