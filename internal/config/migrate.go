package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// legacyService is a [[jenkins]] entry as the pre-TOML YAML config spelled
// it: a bare top-level list of services.
type legacyService struct {
	Name     string   `yaml:"name"`
	URL      string   `yaml:"url"`
	User     string   `yaml:"user"`
	Token    string   `yaml:"token"`
	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`
}

// MigrateLegacyYAML converts an old ~/.jenkins.yaml to the TOML layout.
// It runs only when the YAML file exists and the TOML file does not; the
// YAML original is kept as a .yaml.bak sibling.
func MigrateLegacyYAML(tomlPath string) error {
	yamlPath := strings.TrimSuffix(tomlPath, ".toml") + ".yaml"

	if _, err := os.Stat(yamlPath); err != nil {
		return nil
	}
	if _, err := os.Stat(tomlPath); err == nil {
		return nil
	}

	data, err := os.ReadFile(yamlPath)
	if err != nil {
		return fmt.Errorf("failed to read legacy config: %w", err)
	}

	var legacy []legacyService
	if err := yaml.Unmarshal(data, &legacy); err != nil {
		return fmt.Errorf("failed to parse legacy config: %w", err)
	}

	services := make([]Service, 0, len(legacy))
	for _, l := range legacy {
		services = append(services, Service{
			Name:     l.Name,
			URL:      l.URL,
			User:     l.User,
			Token:    l.Token,
			Includes: l.Includes,
			Excludes: l.Excludes,
		})
	}

	encoded, err := toml.Marshal(File{Services: services})
	if err != nil {
		return fmt.Errorf("failed to encode migrated config: %w", err)
	}

	content := "[config]\n# locale = \"en-US\"\n\n" + string(encoded)
	if err := os.WriteFile(tomlPath, []byte(content), 0o600); err != nil {
		return fmt.Errorf("failed to write migrated config: %w", err)
	}

	return os.Rename(yamlPath, yamlPath+".bak")
}
