package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/doniyusdinar/deploybot/pkg/models"
)

var composeCandidates = []string{"deploy.compose.yml", "deploy.compose.yaml", "docker-compose.yml", "docker-compose.yaml"}

var unsafeNameChars = regexp.MustCompile(`[^a-z0-9_.-]+`)

// deployOptions are the payload fields the controller forwards untouched.
type deployOptions struct {
	Environment   map[string]any  `json:"environment"`
	Ports         []portBinding   `json:"ports"`
	Volumes       []volumeBinding `json:"volumes"`
	RestartPolicy string          `json:"restart_policy"`
	ComposeFile   string          `json:"compose_file"`
	Dockerfile    string          `json:"dockerfile"`
	LaunchScript  string          `json:"launch_script"`
	Workdir       string          `json:"workdir"`
	Command       string          `json:"container_command"`
	Entrypoint    string          `json:"container_entrypoint"`
}

type portBinding struct {
	Key       string `json:"key"`
	Target    int    `json:"target"`
	Published string `json:"published"`
	Protocol  string `json:"protocol"`
}

type volumeBinding struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Mode   string `json:"mode"`
}

func decodeOptions(extra map[string]any) (deployOptions, error) {
	var opts deployOptions
	if len(extra) == 0 {
		return opts, nil
	}
	raw, err := json.Marshal(extra)
	if err != nil {
		return opts, err
	}
	if err := json.Unmarshal(raw, &opts); err != nil {
		return opts, fmt.Errorf("invalid deploy options: %w", err)
	}
	return opts, nil
}

func (o deployOptions) env() map[string]string {
	out := make(map[string]string, len(o.Environment))
	for k, v := range o.Environment {
		out[k] = fmt.Sprint(v)
	}
	return out
}

func (m *Manager) deploy(ctx context.Context, t *transcript, p models.DeployPayload) (map[string]any, error) {
	opts, err := decodeOptions(p.Extra)
	if err != nil {
		return nil, err
	}

	if strings.EqualFold(p.Strategy, "image") || (p.Image != "" && p.RepositoryURL == "") {
		if p.Image == "" {
			return nil, errors.New("image strategy requires image field")
		}
		name := containerName(p.Name, p.Image)
		if err := m.runContainer(ctx, t, name, p.Image, true, opts); err != nil {
			return nil, err
		}
		return map[string]any{"container": name, "image": p.Image, "strategy": "image"}, nil
	}

	if p.RepositoryURL == "" {
		return nil, errors.New("deploy job missing repository_url")
	}
	if p.Ref == "" {
		p.Ref = "main"
	}
	name := containerName(p.Name, models.RepoDirName(p.RepositoryURL))

	workspace, err := m.checkout(ctx, t, p.RepositoryURL, p.Ref)
	if err != nil {
		return nil, err
	}
	detail := map[string]any{"container": name, "workspace": workspace, "ref": p.Ref}

	if opts.LaunchScript != "" {
		detail["strategy"] = "launch_script"
		_, err := t.run(ctx, Command{Name: "bash", Args: []string{"-c", opts.LaunchScript}, Dir: workspace, Env: opts.env()})
		return detail, err
	}

	strategy, target, err := selectStrategy(workspace, p, opts)
	if err != nil {
		return nil, err
	}
	detail["strategy"] = strategy

	switch strategy {
	case "compose":
		_, err = t.run(ctx, Command{
			Name: "docker",
			Args: []string{"compose", "-f", target, "-p", name, "up", "-d", "--build", "--remove-orphans"},
			Dir:  workspace,
			Env:  opts.env(),
		})
	case "dockerfile":
		image := "deploybot/" + name + ":" + sanitizeName(p.Ref)
		detail["image"] = image
		if _, err = t.run(ctx, Command{Name: "docker", Args: []string{"build", "-t", image, "-f", target, "."}, Dir: workspace}); err != nil {
			return detail, err
		}
		err = m.runContainer(ctx, t, name, image, false, opts)
	case "image":
		detail["image"] = target
		err = m.runContainer(ctx, t, name, target, true, opts)
	}
	return detail, err
}

// checkout makes a fresh shallow clone of ref under the work directory.
func (m *Manager) checkout(ctx context.Context, t *transcript, repoURL, ref string) (string, error) {
	workspace := filepath.Join(m.workDir, models.RepoDirName(repoURL)+"-"+sanitizeName(ref))
	if err := os.MkdirAll(m.workDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create work dir: %w", err)
	}
	if err := os.RemoveAll(workspace); err != nil {
		return "", fmt.Errorf("failed to clear workspace: %w", err)
	}

	cloneCtx, cancel := context.WithTimeout(ctx, m.cloneTimeout)
	defer cancel()
	if _, err := t.run(cloneCtx, Command{
		Name: "git",
		Args: []string{"clone", "--depth", "1", "--branch", ref, repoURL, workspace},
	}); err != nil {
		return "", fmt.Errorf("clone failed: %w", err)
	}
	return workspace, nil
}

// selectStrategy picks how a checkout is launched. An explicit strategy wins,
// then compose files, then a Dockerfile, then a prebuilt image.
func selectStrategy(workspace string, p models.DeployPayload, opts deployOptions) (string, string, error) {
	dockerfile := opts.Dockerfile
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}

	switch strings.ToLower(p.Strategy) {
	case "compose":
		if opts.ComposeFile != "" {
			return "compose", opts.ComposeFile, nil
		}
	case "dockerfile":
		return "dockerfile", dockerfile, nil
	case "image":
		if p.Image == "" {
			return "", "", errors.New("strategy image selected but image is empty")
		}
		return "image", p.Image, nil
	}

	if opts.ComposeFile != "" {
		return "compose", opts.ComposeFile, nil
	}
	for _, candidate := range composeCandidates {
		if fileExists(filepath.Join(workspace, candidate)) {
			return "compose", candidate, nil
		}
	}
	if fileExists(filepath.Join(workspace, dockerfile)) {
		return "dockerfile", dockerfile, nil
	}
	if p.Image != "" {
		return "image", p.Image, nil
	}
	return "", "", fmt.Errorf("no deployment artefact found in %s", workspace)
}

// runContainer replaces the container called name with a fresh one from image.
func (m *Manager) runContainer(ctx context.Context, t *transcript, name, image string, pull bool, opts deployOptions) error {
	if pull {
		if _, err := t.run(ctx, Command{Name: "docker", Args: []string{"pull", image}}); err != nil {
			return fmt.Errorf("failed to pull %s: %w", image, err)
		}
	}

	// A missing container is fine here.
	t.runner.Run(ctx, Command{Name: "docker", Args: []string{"rm", "-f", name}})
	t.note("removed previous container %s (if any)", name)

	args, err := runArgs(name, image, opts)
	if err != nil {
		return err
	}
	if _, err := t.run(ctx, Command{Name: "docker", Args: args}); err != nil {
		return fmt.Errorf("failed to start %s: %w", name, err)
	}

	out, err := t.run(ctx, Command{Name: "docker", Args: []string{"inspect", "-f", "{{.State.Running}}", name}})
	if err != nil {
		return err
	}
	if strings.TrimSpace(out.Stdout) != "true" {
		return fmt.Errorf("container %s is not running", name)
	}
	return nil
}

func runArgs(name, image string, opts deployOptions) ([]string, error) {
	restart := opts.RestartPolicy
	if restart == "" {
		restart = "unless-stopped"
	}
	args := []string{"run", "-d", "--name", name, "--restart", restart, "--label", "deploybot.job=" + name}

	for _, p := range opts.Ports {
		if p.Target <= 0 {
			return nil, fmt.Errorf("port mapping %q missing target port", p.Key)
		}
		proto := strings.ToLower(p.Protocol)
		if proto == "" {
			proto = "tcp"
		}
		spec := fmt.Sprintf("%d/%s", p.Target, proto)
		if p.Published != "" && p.Published != "auto" {
			spec = p.Published + ":" + spec
		}
		args = append(args, "-p", spec)
	}

	env := opts.env()
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "-e", k+"="+env[k])
	}

	for _, v := range opts.Volumes {
		if v.Source == "" || v.Target == "" {
			return nil, errors.New("volume mapping requires source and target")
		}
		spec := v.Source + ":" + v.Target
		if v.Mode != "" {
			spec += ":" + v.Mode
		}
		args = append(args, "-v", spec)
	}

	if opts.Workdir != "" {
		args = append(args, "--workdir", opts.Workdir)
	}
	if opts.Entrypoint != "" {
		args = append(args, "--entrypoint", opts.Entrypoint)
	}
	args = append(args, image)
	if opts.Command != "" {
		args = append(args, strings.Fields(opts.Command)...)
	}
	return args, nil
}

// containerName prefers the payload name and falls back to the image or repo.
func containerName(name, fallback string) string {
	if n := sanitizeName(name); n != "" {
		return n
	}
	base := fallback
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	base = strings.SplitN(base, ":", 2)[0]
	if n := sanitizeName(base); n != "" {
		return n
	}
	return "deploy"
}

func sanitizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.Trim(unsafeNameChars.ReplaceAllString(name, "-"), "-.")
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
