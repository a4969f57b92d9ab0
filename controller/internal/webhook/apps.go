package webhook

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// App maps a repository to the hosts it is deployed to on push
type App struct {
	Name         string   `yaml:"name"`
	Repo         string   `yaml:"repo"`
	Branches     []string `yaml:"branches"`
	Hosts        []string `yaml:"hosts"`
	DeployOnPush bool     `yaml:"deploy_on_push"`
}

type appsFile struct {
	Apps []App `yaml:"apps"`
}

// LoadApps reads the apps file at path. A missing file yields no apps.
func LoadApps(path string) ([]App, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read apps config: %w", err)
	}

	var file appsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse apps config %s: %w", path, err)
	}
	return file.Apps, nil
}
