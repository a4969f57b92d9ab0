package models

import "encoding/json"

// AgentJob is the wire envelope an agent receives from a heartbeat
type AgentJob struct {
	ID      string          `json:"id"`
	Type    JobType         `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// DeployPayload is the agent-facing projection of a deploy job. Fields the
// controller does not interpret travel in Extra and are flattened on the wire.
type DeployPayload struct {
	Name          string
	RepositoryURL string
	Image         string
	Ref           string
	Strategy      string
	DeploymentID  string
	Extra         map[string]any
}

var deployPayloadKeys = []string{"name", "repository_url", "image", "ref", "strategy", "deployment_id"}

func (p DeployPayload) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Extra)+len(deployPayloadKeys))
	for k, v := range p.Extra {
		out[k] = v
	}
	for i, v := range []string{p.Name, p.RepositoryURL, p.Image, p.Ref, p.Strategy, p.DeploymentID} {
		if v != "" {
			out[deployPayloadKeys[i]] = v
		}
	}
	return json.Marshal(out)
}

func (p *DeployPayload) UnmarshalJSON(data []byte) error {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	targets := []*string{&p.Name, &p.RepositoryURL, &p.Image, &p.Ref, &p.Strategy, &p.DeploymentID}
	for i, key := range deployPayloadKeys {
		if v, ok := fields[key].(string); ok {
			*targets[i] = v
		}
		delete(fields, key)
	}
	p.Extra = fields
	return nil
}

// String returns a string field from the extension bag.
func (p DeployPayload) String(key string) string {
	s, _ := p.Extra[key].(string)
	return s
}

// ExecPayload is the agent-facing projection of an exec job
type ExecPayload struct {
	Command        []string          `json:"command"`
	Environment    map[string]string `json:"environment"`
	TimeoutSeconds int               `json:"timeout_seconds"`
	WorkingDir     string            `json:"working_dir,omitempty"`
}
