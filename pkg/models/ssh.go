package models

// DeploymentResult is produced by every unit of remote command execution
type DeploymentResult struct {
	Success  bool   `json:"success"`
	Output   string `json:"output"`
	Error    string `json:"error,omitempty"`
	ExitCode int    `json:"exit_code"`
}

// SSHCredentials identifies and authenticates a target host
type SSHCredentials struct {
	Hostname             string `json:"hostname" binding:"required"`
	Port                 int    `json:"port"`
	Username             string `json:"username"`
	Password             string `json:"password,omitempty"`
	PrivateKey           string `json:"private_key,omitempty"`
	PrivateKeyPassphrase string `json:"private_key_passphrase,omitempty"`
}

// WithDefaults fills port 22 and user root when unset.
func (c SSHCredentials) WithDefaults() SSHCredentials {
	if c.Port == 0 {
		c.Port = 22
	}
	if c.Username == "" {
		c.Username = "root"
	}
	return c
}

// SSHDeployRequest asks the controller to deploy a repository over SSH
type SSHDeployRequest struct {
	Credentials   SSHCredentials `json:"credentials" binding:"required"`
	RepoURL       string         `json:"repo_url" binding:"required"`
	Ref           string         `json:"ref"`
	ContainerName string         `json:"container_name" binding:"required"`
}

// SSHDeployResponse reports an SSH deployment outcome
type SSHDeployResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
	JobID   string `json:"job_id,omitempty"`
}

// SSHExecRequest runs one command over SSH
type SSHExecRequest struct {
	Credentials    SSHCredentials `json:"credentials" binding:"required"`
	Command        string         `json:"command" binding:"required"`
	TimeoutSeconds int            `json:"timeout_seconds"`
}

// SSHTargetRequest addresses a host for read-only probes
type SSHTargetRequest struct {
	Credentials SSHCredentials `json:"credentials" binding:"required"`
}

// Container is one row of a remote `docker ps`
type Container struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
	Image  string `json:"image"`
}

// SystemMetrics is a best-effort host snapshot; unparsed fields are omitted
type SystemMetrics struct {
	CPUPercent    *float64 `json:"cpu_percent,omitempty"`
	MemoryPercent *float64 `json:"memory_percent,omitempty"`
	DiskFree      string   `json:"disk_free,omitempty"`
}
