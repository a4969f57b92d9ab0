package sshexec

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/doniyusdinar/deploybot/pkg/logger"
	"github.com/doniyusdinar/deploybot/pkg/models"
	"github.com/sirupsen/logrus"
)

const (
	DefaultWorkDir        = "/tmp/deploybot"
	DefaultCommandTimeout = 300 * time.Second

	containerListFormat = "{{.ID}}|{{.Names}}|{{.Status}}|{{.Image}}"
)

// DefaultPorts is the host:container mapping used when a repository deploy
// does not name one.
var DefaultPorts = map[int]int{8080: 8080}

// Connector drives a single host over one Session. Commands on the same
// Connector never overlap.
type Connector struct {
	WorkDir        string
	CommandTimeout time.Duration

	creds models.SSHCredentials
	dial  Dialer
	log   *logrus.Entry

	mu      sync.Mutex
	session Session
}

// NewConnector creates a disconnected Connector. A nil dial uses DialSSH.
func NewConnector(creds models.SSHCredentials, dial Dialer) *Connector {
	if dial == nil {
		dial = DialSSH
	}
	creds = creds.WithDefaults()
	return &Connector{
		WorkDir:        DefaultWorkDir,
		CommandTimeout: DefaultCommandTimeout,
		creds:          creds,
		dial:           dial,
		log:            logger.Log.WithField("host", creds.Hostname),
	}
}

// Hostname returns the target host.
func (c *Connector) Hostname() string {
	return c.creds.Hostname
}

// Connect opens the session. Failures are logged and reported as false.
func (c *Connector) Connect(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		return true
	}

	c.log.Infof("Connecting to %s:%d", c.creds.Hostname, c.creds.Port)
	session, err := c.dial(ctx, c.creds)
	if err != nil {
		c.log.Errorf("Failed to connect to %s: %v", c.creds.Hostname, err)
		return false
	}
	c.session = session
	c.log.Infof("Connected to %s", c.creds.Hostname)
	return true
}

// Connected reports whether a session is open.
func (c *Connector) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil
}

// Disconnect closes the session. It is safe to call when not connected.
func (c *Connector) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropSession()
}

// dropSession must be called with mu held.
func (c *Connector) dropSession() {
	if c.session == nil {
		return
	}
	if err := c.session.Close(); err != nil {
		c.log.Warnf("Error closing connection: %v", err)
	}
	c.session = nil
	c.log.Infof("Disconnected from %s", c.creds.Hostname)
}

// ExecuteCommand runs command remotely. A zero timeout uses CommandTimeout;
// on expiry the command is killed and exit code -1 is reported.
func (c *Connector) ExecuteCommand(ctx context.Context, command string, timeout time.Duration) models.DeploymentResult {
	if timeout <= 0 {
		timeout = c.CommandTimeout
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return models.DeploymentResult{Success: false, Error: "not connected", ExitCode: -1}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c.log.Debugf("Executing: %s", command)
	stdout, stderr, code, err := c.session.Run(ctx, command)
	if errors.Is(err, context.DeadlineExceeded) {
		c.log.Errorf("Command timed out after %s", timeout)
		return models.DeploymentResult{
			Success:  false,
			Output:   stdout,
			Error:    fmt.Sprintf("command timed out after %s", timeout),
			ExitCode: -1,
		}
	}
	if err != nil {
		c.log.Errorf("Command execution failed: %v", err)
		if !errors.Is(err, context.Canceled) {
			// The transport is gone; the next Connect redials.
			c.dropSession()
		}
		return models.DeploymentResult{Success: false, Output: stdout, Error: err.Error(), ExitCode: -1}
	}

	if code != 0 {
		c.log.Warnf("Command failed with exit code %d", code)
	}
	return models.DeploymentResult{
		Success:  code == 0,
		Output:   stdout,
		Error:    stderr,
		ExitCode: code,
	}
}

func (c *Connector) run(ctx context.Context, format string, args ...any) models.DeploymentResult {
	return c.ExecuteCommand(ctx, fmt.Sprintf(format, args...), 0)
}

// CheckDockerInstalled probes for the docker CLI.
func (c *Connector) CheckDockerInstalled(ctx context.Context) bool {
	return c.run(ctx, "docker --version").Success
}

// GetDockerContainers lists running containers. Any failure yields an empty
// list.
func (c *Connector) GetDockerContainers(ctx context.Context) []models.Container {
	result := c.run(ctx, "docker ps --format %s", quote(containerListFormat))
	containers := []models.Container{}
	if !result.Success {
		return containers
	}
	for _, line := range strings.Split(strings.TrimSpace(result.Output), "\n") {
		parts := strings.Split(strings.TrimSpace(line), "|")
		if len(parts) < 4 {
			continue
		}
		containers = append(containers, models.Container{
			ID:     parts[0],
			Name:   parts[1],
			Status: parts[2],
			Image:  parts[3],
		})
	}
	return containers
}

// DeployDockerImage replaces any container called name with a fresh one
// running image.
func (c *Connector) DeployDockerImage(ctx context.Context, image, name string, ports map[int]int, env map[string]string) models.DeploymentResult {
	args := []string{"docker", "run", "-d", "--name", quote(name)}

	hostPorts := make([]int, 0, len(ports))
	for hostPort := range ports {
		hostPorts = append(hostPorts, hostPort)
	}
	sort.Ints(hostPorts)
	for _, hostPort := range hostPorts {
		args = append(args, "-p", fmt.Sprintf("%d:%d", hostPort, ports[hostPort]))
	}

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "-e", quote(k+"="+env[k]))
	}
	args = append(args, quote(image))

	// Absent containers are fine here.
	c.run(ctx, "docker stop %s 2>/dev/null || true", quote(name))
	c.run(ctx, "docker rm %s 2>/dev/null || true", quote(name))

	return c.ExecuteCommand(ctx, strings.Join(args, " "), 0)
}

// RepoPath is where CloneRepository stages repoURL under workDir.
func RepoPath(workDir, repoURL string) string {
	return path.Join(workDir, models.RepoDirName(repoURL))
}

// CloneRepository stages repoURL at ref under workDir, updating an existing
// checkout in place.
func (c *Connector) CloneRepository(ctx context.Context, repoURL, ref, workDir string) models.DeploymentResult {
	if ref == "" {
		ref = "main"
	}
	if workDir == "" {
		workDir = c.WorkDir
	}
	repoPath := RepoPath(workDir, repoURL)

	c.run(ctx, "mkdir -p %s", quote(workDir))

	check := c.run(ctx, "[ -d %s/.git ] && echo exists || echo new", quote(repoPath))
	if strings.Contains(check.Output, "exists") {
		c.log.Infof("Updating existing repository at %s", repoPath)
		c.run(ctx, "cd %s && git fetch --all", quote(repoPath))
		return c.run(ctx, "cd %s && git checkout %s && git pull origin %s", quote(repoPath), quote(ref), quote(ref))
	}

	c.log.Infof("Cloning repository to %s", repoPath)
	result := c.run(ctx, "git clone %s %s", quote(repoURL), quote(repoPath))
	if !result.Success {
		return result
	}
	return c.run(ctx, "cd %s && git checkout %s", quote(repoPath), quote(ref))
}

// GetSystemMetrics collects CPU, memory and disk figures. A field whose
// command or parse fails is left unset.
func (c *Connector) GetSystemMetrics(ctx context.Context) models.SystemMetrics {
	var metrics models.SystemMetrics

	cpu := c.run(ctx, `top -bn1 | grep 'Cpu(s)' | sed 's/.*, *\([0-9.]*\)%%* id.*/\1/' | awk '{print 100 - $1}'`)
	if v, ok := parseFloat(cpu); ok {
		metrics.CPUPercent = &v
	}

	mem := c.run(ctx, `free | grep Mem | awk '{print ($3/$2) * 100.0}'`)
	if v, ok := parseFloat(mem); ok {
		metrics.MemoryPercent = &v
	}

	disk := c.run(ctx, `df -h / | tail -1 | awk '{print $4}'`)
	if disk.Success {
		metrics.DiskFree = strings.TrimSpace(disk.Output)
	}
	return metrics
}

// ExecuteDeployment checks for docker, stages the repository, builds
// {containerName}:latest from its root and runs it with DefaultPorts. The
// first failing step's result is returned and nothing is rolled back.
func (c *Connector) ExecuteDeployment(ctx context.Context, repoURL, ref, containerName string) models.DeploymentResult {
	if !c.CheckDockerInstalled(ctx) {
		return models.DeploymentResult{
			Success:  false,
			Error:    "Docker is not installed on the remote host",
			ExitCode: -1,
		}
	}

	if result := c.CloneRepository(ctx, repoURL, ref, c.WorkDir); !result.Success {
		return result
	}

	image := containerName + ":latest"
	build := c.run(ctx, "cd %s && docker build -t %s .", quote(RepoPath(c.WorkDir, repoURL)), quote(image))
	if !build.Success {
		return build
	}

	return c.DeployDockerImage(ctx, image, containerName, DefaultPorts, nil)
}

func parseFloat(result models.DeploymentResult) (float64, bool) {
	if !result.Success {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(result.Output), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

var shellSafe = regexp.MustCompile(`^[A-Za-z0-9_./:@%+=,-]+$`)

// quote makes s a single shell word.
func quote(s string) string {
	if s != "" && shellSafe.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
