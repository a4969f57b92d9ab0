package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// AgentStatus is the liveness reported by an agent
type AgentStatus string

const (
	AgentOnline  AgentStatus = "online"
	AgentOffline AgentStatus = "offline"
)

// Capabilities is the open feature map an agent declares at registration.
// Older agents send a plain list of names, which decodes to {name: true}.
type Capabilities map[string]any

func (c *Capabilities) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*c = Capabilities{}
		return nil
	}

	var asMap map[string]any
	if err := json.Unmarshal(data, &asMap); err == nil {
		*c = asMap
		return nil
	}

	var asList []any
	if err := json.Unmarshal(data, &asList); err != nil {
		return fmt.Errorf("capabilities must be an object or a list")
	}
	out := make(Capabilities, len(asList))
	for _, item := range asList {
		out[fmt.Sprint(item)] = true
	}
	*c = out
	return nil
}

// Agent represents a registered agent, one per managed host
type Agent struct {
	ID            string       `json:"id"`
	Hostname      string       `json:"hostname"`
	Capabilities  Capabilities `json:"capabilities"`
	Status        AgentStatus  `json:"status"`
	RegisteredAt  time.Time    `json:"registered_at"`
	LastHeartbeat time.Time    `json:"last_heartbeat"`
}

// Healthy reports whether the agent heartbeated within window of now.
func (a Agent) Healthy(now time.Time, window time.Duration) bool {
	return a.Status == AgentOnline && now.Sub(a.LastHeartbeat) <= window
}

// RegisterRequest represents the agent registration request
type RegisterRequest struct {
	Hostname     string       `json:"hostname" binding:"required"`
	Capabilities Capabilities `json:"capabilities"`
}

// RegisterResponse represents the response to agent registration
type RegisterResponse struct {
	AgentID    string `json:"agent_id"`
	AgentToken string `json:"agent_token"`
}

// HeartbeatRequest is the periodic agent check-in
type HeartbeatRequest struct {
	Status AgentStatus `json:"status"`
}

// HeartbeatResponse carries at most one job offer
type HeartbeatResponse struct {
	Acknowledged bool      `json:"acknowledged"`
	Job          *AgentJob `json:"job"`
}

// AckRequest is sent by an agent when a job finishes
type AckRequest struct {
	Status string `json:"status" binding:"required"`
	Detail any    `json:"detail,omitempty"`
}

// HostInfo summarizes an agent for host listings
type HostInfo struct {
	Hostname    string      `json:"hostname"`
	AgentID     string      `json:"agent_id"`
	AgentStatus AgentStatus `json:"agent_status"`
	LastSeen    time.Time   `json:"last_seen"`
	Healthy     bool        `json:"healthy"`
}

// HostsResponse wraps the host listing
type HostsResponse struct {
	Hosts []HostInfo `json:"hosts"`
}
