package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type environmentsFile struct {
	Environments []Environment `yaml:"environments"`
}

// LoadEnvironments reads CDN environment definitions from a YAML file.
func LoadEnvironments(path string) ([]Environment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read environments file: %w", err)
	}

	var parsed environmentsFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse environments file: %w", err)
	}

	return parsed.Environments, nil
}
