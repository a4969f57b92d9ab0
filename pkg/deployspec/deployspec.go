// Package deployspec validates deployment spec documents written in YAML or
// JSON before they are turned into models.DeploymentSpec values.
package deployspec

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/doniyusdinar/deploybot/pkg/models"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed deployment.schema.json
var schemaSource string

const schemaURL = "deployment.schema.json"

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

func schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, strings.NewReader(schemaSource)); err != nil {
			compileErr = fmt.Errorf("failed to load deployment schema: %w", err)
			return
		}
		compiled, compileErr = compiler.Compile(schemaURL)
	})
	return compiled, compileErr
}

// Validate checks a decoded document against the deployment schema.
func Validate(doc any) error {
	s, err := schema()
	if err != nil {
		return err
	}
	return s.Validate(doc)
}

// Parse validates a YAML or JSON document and decodes it into a spec. It
// also returns the canonical JSON form of the document.
func Parse(data []byte) (models.DeploymentSpec, json.RawMessage, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("failed to parse deployment spec: %w", err)
	}

	// Round-trip through JSON so the validator sees JSON types only.
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to convert deployment spec: %w", err)
	}
	var normalized any
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return nil, nil, err
	}

	if err := Validate(normalized); err != nil {
		return nil, nil, fmt.Errorf("deployment spec is invalid: %w", err)
	}

	spec, err := models.ParseDeploymentSpec(raw)
	if err != nil {
		return nil, nil, err
	}
	return spec, raw, nil
}

// ParseFile reads and parses the spec document at path.
func ParseFile(path string) (models.DeploymentSpec, json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Parse(data)
}

// WithKind returns raw with its "type" field set to kind, for documents
// saved alongside a separate kind.
func WithKind(kind models.SpecKind, raw json.RawMessage) (json.RawMessage, error) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("deployment spec must be an object: %w", err)
	}
	fields["type"] = string(kind)
	return json.Marshal(fields)
}
