package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SpecKind discriminates the DeploymentSpec variants
type SpecKind string

const (
	SpecImage SpecKind = "image"
	SpecRepo  SpecKind = "repo"
)

// DeploymentSpec describes how to run a deploy job, independent of where.
// The only implementations are ImageSpec and RepoSpec.
type DeploymentSpec interface {
	Kind() SpecKind
	// ToMetadata flattens the spec into the job metadata contract. repo and
	// ref are empty for image specs.
	ToMetadata() (repo, ref string, metadata map[string]any)
	deploymentSpec()
}

// PortMapping publishes a container port
type PortMapping struct {
	Name          string `json:"name,omitempty" yaml:"name,omitempty"`
	ContainerPort int    `json:"container_port" yaml:"container_port"`
	HostPort      *int   `json:"host_port,omitempty" yaml:"host_port,omitempty"`
	Protocol      string `json:"protocol,omitempty" yaml:"protocol,omitempty"`
}

// VolumeMapping mounts a host path or named volume
type VolumeMapping struct {
	Source   string `json:"source" yaml:"source"`
	Target   string `json:"target" yaml:"target"`
	ReadOnly bool   `json:"read_only,omitempty" yaml:"read_only,omitempty"`
}

// HealthCheck configures service verification after launch
type HealthCheck struct {
	Type            string   `json:"type" yaml:"type"`
	Endpoint        string   `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	ExpectedStatus  int      `json:"expected_status,omitempty" yaml:"expected_status,omitempty"`
	Command         []string `json:"command,omitempty" yaml:"command,omitempty"`
	IntervalSeconds int      `json:"interval_seconds,omitempty" yaml:"interval_seconds,omitempty"`
	TimeoutSeconds  int      `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
	Retries         int      `json:"retries,omitempty" yaml:"retries,omitempty"`
}

// ImageSpec deploys a prebuilt container image
type ImageSpec struct {
	Image         string            `json:"image" yaml:"image"`
	Tag           string            `json:"tag,omitempty" yaml:"tag,omitempty"`
	Command       string            `json:"command,omitempty" yaml:"command,omitempty"`
	Entrypoint    string            `json:"entrypoint,omitempty" yaml:"entrypoint,omitempty"`
	Workdir       string            `json:"workdir,omitempty" yaml:"workdir,omitempty"`
	Environment   map[string]string `json:"environment,omitempty" yaml:"environment,omitempty"`
	Ports         []PortMapping     `json:"ports,omitempty" yaml:"ports,omitempty"`
	Volumes       []VolumeMapping   `json:"volumes,omitempty" yaml:"volumes,omitempty"`
	RestartPolicy string            `json:"restart_policy,omitempty" yaml:"restart_policy,omitempty"`
	HealthCheck   *HealthCheck      `json:"health_check,omitempty" yaml:"health_check,omitempty"`
}

// RepoSpec deploys from a git repository
type RepoSpec struct {
	Repository   string            `json:"repository" yaml:"repository"`
	Ref          string            `json:"ref,omitempty" yaml:"ref,omitempty"`
	LaunchScript string            `json:"launch_script,omitempty" yaml:"launch_script,omitempty"`
	UseAILaunch  *bool             `json:"use_ai_launch,omitempty" yaml:"use_ai_launch,omitempty"`
	Environment  map[string]string `json:"environment,omitempty" yaml:"environment,omitempty"`
	Ports        []PortMapping     `json:"ports,omitempty" yaml:"ports,omitempty"`
	Volumes      []VolumeMapping   `json:"volumes,omitempty" yaml:"volumes,omitempty"`
	ComposeFile  string            `json:"compose_file,omitempty" yaml:"compose_file,omitempty"`
	Dockerfile   string            `json:"dockerfile,omitempty" yaml:"dockerfile,omitempty"`
	Strategy     string            `json:"strategy,omitempty" yaml:"strategy,omitempty"`
}

func (ImageSpec) Kind() SpecKind { return SpecImage }
func (RepoSpec) Kind() SpecKind  { return SpecRepo }
func (ImageSpec) deploymentSpec() {}
func (RepoSpec) deploymentSpec()  {}

// AllowsInference reports whether launch-script inference may run. Defaults to true.
func (s RepoSpec) AllowsInference() bool {
	return s.UseAILaunch == nil || *s.UseAILaunch
}

// ImageRef returns the image reference with the tag applied.
func (s ImageSpec) ImageRef() string {
	ref := s.Image
	if s.Tag != "" && !strings.Contains(lastSegment(ref), ":") {
		ref = ref + ":" + s.Tag
	}
	return ref
}

func (s ImageSpec) ToMetadata() (string, string, map[string]any) {
	ref := s.ImageRef()
	md := map[string]any{
		"strategy": "image",
		"image":    ref,
	}
	name := strings.SplitN(lastSegment(ref), ":", 2)[0]
	if name == "" {
		name = "image-deploy"
	}
	md["name"] = name
	if len(s.Environment) > 0 {
		md["environment"] = copyEnv(s.Environment)
	}
	if len(s.Volumes) > 0 {
		md["volumes"] = volumesForAgent(s.Volumes)
	}
	if len(s.Ports) > 0 {
		md["ports"] = portsForAgent(s.Ports)
	}
	if s.RestartPolicy != "" {
		md["restart_policy"] = s.RestartPolicy
	}
	if hc := healthCheckPayload(s.HealthCheck); hc != nil {
		md["health_check"] = hc
	}
	if s.Workdir != "" {
		md["workdir"] = s.Workdir
	}
	if s.Command != "" {
		md["container_command"] = s.Command
	}
	if s.Entrypoint != "" {
		md["container_entrypoint"] = s.Entrypoint
	}
	return "", "", md
}

func (s RepoSpec) ToMetadata() (string, string, map[string]any) {
	strategy := s.Strategy
	if strategy == "" {
		strategy = "auto"
	}
	name := lastSegment(strings.TrimSuffix(strings.Trim(s.Repository, "/"), ".git"))
	if name == "" {
		name = "deploy"
	}
	md := map[string]any{
		"strategy":      strategy,
		"name":          name,
		"use_ai_launch": s.AllowsInference(),
	}
	if len(s.Environment) > 0 {
		md["environment"] = copyEnv(s.Environment)
	}
	if len(s.Volumes) > 0 {
		md["volumes"] = volumesForAgent(s.Volumes)
	}
	if len(s.Ports) > 0 {
		md["ports"] = portsForAgent(s.Ports)
	}
	if s.ComposeFile != "" {
		md["compose_file"] = s.ComposeFile
	}
	if s.Dockerfile != "" {
		md["dockerfile"] = s.Dockerfile
	}
	if s.LaunchScript != "" {
		md["launch_script"] = s.LaunchScript
	}
	ref := s.Ref
	if ref == "" {
		ref = "main"
	}
	return s.Repository, ref, md
}

// ParseDeploymentSpec decodes a JSON document discriminated by its "type" field.
func ParseDeploymentSpec(raw []byte) (DeploymentSpec, error) {
	var head struct {
		Type SpecKind `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("invalid deployment spec: %w", err)
	}
	return decodeSpec(head.Type, raw)
}

// decodeSpec decodes raw as the variant named by kind.
func decodeSpec(kind SpecKind, raw []byte) (DeploymentSpec, error) {
	switch kind {
	case SpecImage:
		var s ImageSpec
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("invalid image spec: %w", err)
		}
		if s.Image == "" {
			return nil, fmt.Errorf("image spec requires an image reference")
		}
		return s, nil
	case SpecRepo:
		var s RepoSpec
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("invalid repo spec: %w", err)
		}
		if s.Repository == "" {
			return nil, fmt.Errorf("repo spec requires a repository")
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported deployment kind %q", kind)
	}
}

// MarshalDeploymentSpec encodes spec with its "type" discriminator.
func MarshalDeploymentSpec(spec DeploymentSpec) (json.RawMessage, error) {
	body, err := json.Marshal(spec)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	fields["type"] = spec.Kind()
	return json.Marshal(fields)
}

// DeploymentRecord is a saved, named deployment spec
type DeploymentRecord struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Kind        SpecKind        `json:"kind"`
	Spec        json.RawMessage `json:"spec"`
	Description string          `json:"description,omitempty"`
	Tags        []string        `json:"tags"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// DeploymentSpec decodes the stored spec document.
func (r *DeploymentRecord) DeploymentSpec() (DeploymentSpec, error) {
	return decodeSpec(r.Kind, r.Spec)
}

// DeploymentCreate is the request body for saving a deployment
type DeploymentCreate struct {
	Name        string          `json:"name" binding:"required"`
	Kind        SpecKind        `json:"kind" binding:"required"`
	Spec        json.RawMessage `json:"spec" binding:"required"`
	Description string          `json:"description,omitempty"`
	Tags        []string        `json:"tags,omitempty"`
}

// DeploymentUpdate carries optional replacements for a saved deployment
type DeploymentUpdate struct {
	Name        *string         `json:"name,omitempty"`
	Description *string         `json:"description,omitempty"`
	Tags        []string        `json:"tags,omitempty"`
	Spec        json.RawMessage `json:"spec,omitempty"`
}

// NormalizeRepositoryURL turns "org/app" shorthand into a cloneable URL.
func NormalizeRepositoryURL(repo string) string {
	repo = strings.TrimSpace(repo)
	if repo == "" {
		return repo
	}
	if strings.Contains(repo, "://") || strings.HasPrefix(repo, "git@") {
		if strings.HasSuffix(repo, ".git") {
			return repo
		}
		return repo + ".git"
	}
	base := strings.Trim(repo, "/")
	if strings.HasSuffix(base, ".git") {
		return "https://github.com/" + base
	}
	return "https://github.com/" + base + ".git"
}

// RepoDirName derives the checkout directory name from a repository URL.
func RepoDirName(repoURL string) string {
	return strings.TrimSuffix(lastSegment(strings.TrimRight(repoURL, "/")), ".git")
}

func lastSegment(s string) string {
	if i := strings.LastIndex(s, "/"); i >= 0 {
		return s[i+1:]
	}
	return s
}

func copyEnv(env map[string]string) map[string]any {
	out := make(map[string]any, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}

func portsForAgent(ports []PortMapping) []any {
	out := make([]any, 0, len(ports))
	for i, p := range ports {
		key := p.Name
		if key == "" {
			key = fmt.Sprintf("port-%d-%d", p.ContainerPort, i)
		}
		published := ""
		if p.HostPort != nil {
			published = fmt.Sprint(*p.HostPort)
		}
		protocol := strings.ToLower(p.Protocol)
		if protocol == "" {
			protocol = "tcp"
		}
		out = append(out, map[string]any{
			"key":       key,
			"target":    p.ContainerPort,
			"published": published,
			"protocol":  protocol,
		})
	}
	return out
}

func volumesForAgent(volumes []VolumeMapping) []any {
	out := make([]any, 0, len(volumes))
	for _, v := range volumes {
		entry := map[string]any{"source": v.Source, "target": v.Target}
		if v.ReadOnly {
			entry["mode"] = "ro"
		}
		out = append(out, entry)
	}
	return out
}

func healthCheckPayload(hc *HealthCheck) map[string]any {
	if hc == nil {
		return nil
	}
	kind := hc.Type
	if kind == "" {
		kind = "http"
	}
	payload := map[string]any{
		"type":             kind,
		"endpoint":         hc.Endpoint,
		"expected_status":  valueOr(hc.ExpectedStatus, 200),
		"interval_seconds": valueOr(hc.IntervalSeconds, 10),
		"timeout_seconds":  valueOr(hc.TimeoutSeconds, 5),
		"retries":          valueOr(hc.Retries, 3),
	}
	if len(hc.Command) > 0 {
		payload["command"] = hc.Command
	}
	return payload
}

func valueOr(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
