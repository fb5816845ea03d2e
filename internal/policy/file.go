package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// File is the on-disk form of an operator policy.
type File struct {
	Name         string `yaml:"name"`
	Instructions string `yaml:"instructions"`
}

// DefaultPath returns ~/.tributeguard/policy.yaml, or "" when the home
// directory cannot be determined.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".tributeguard", "policy.yaml")
}

// LoadFile loads policy instructions from a YAML file and returns them with
// their hash. Empty path falls back to ~/.tributeguard/policy.yaml.
// Missing file returns the default. Invalid YAML or blank instructions
// return an error.
func LoadFile(path string) (string, string, error) {
	if path == "" {
		path = DefaultPath()
		if path == "" {
			return Default(), Hash(Default()), nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), Hash(Default()), nil
		}
		return "", "", fmt.Errorf("failed to read policy file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return "", "", fmt.Errorf("failed to parse policy file: %w", err)
	}
	if strings.TrimSpace(f.Instructions) == "" {
		return "", "", fmt.Errorf("policy file %s: instructions must not be empty", path)
	}

	return f.Instructions, Hash(f.Instructions), nil
}

// DefaultFileYAML returns a commented policy file holding the built-in
// instructions, for `tributeguard policy init`.
func DefaultFileYAML() (string, error) {
	body, err := yaml.Marshal(File{
		Name:         "keeper-memorials",
		Instructions: Default(),
	})
	if err != nil {
		return "", fmt.Errorf("marshal default policy: %w", err)
	}

	header := `# tributeguard moderation policy
# Generated by: tributeguard policy init
#
# instructions are sent to the model as the system prompt for every
# analysis that does not supply its own policy. The whole text replaces
# the built-in default; nothing is merged.
#
# Keep the FLAG / DO NOT FLAG sections and the worked examples: the model
# relies on them to tell grief from abuse.
`
	return header + string(body), nil
}
