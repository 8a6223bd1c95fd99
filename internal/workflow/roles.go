package workflow

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed roles.yaml
var defaultRoles []byte

var ErrInvalidRoles = errors.New("invalid role definitions")

// Role is one participant of the group chat.
type Role struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Prompt      string   `yaml:"prompt"`
	Tools       []string `yaml:"tools"`
}

// Roles is the participant list in speaking order plus the opening brief.
type Roles struct {
	Kickoff string `yaml:"kickoff"`
	Roles   []Role `yaml:"roles"`
}

// Brief renders the opening message for a target subreddit.
func (r Roles) Brief(subreddit string) string {
	return strings.TrimSpace(strings.ReplaceAll(r.Kickoff, "{subreddit}", subreddit))
}

// LoadRoles reads role definitions from path, or the built-in set when path
// is empty.
func LoadRoles(path string) (Roles, error) {
	if path == "" {
		return ParseRoles(defaultRoles)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Roles{}, fmt.Errorf("read roles file: %w", err)
	}
	return ParseRoles(data)
}

func ParseRoles(data []byte) (Roles, error) {
	var r Roles
	if err := yaml.Unmarshal(data, &r); err != nil {
		return Roles{}, fmt.Errorf("%w: %v", ErrInvalidRoles, err)
	}

	if len(r.Roles) == 0 {
		return Roles{}, fmt.Errorf("%w: no roles defined", ErrInvalidRoles)
	}
	if strings.TrimSpace(r.Kickoff) == "" {
		return Roles{}, fmt.Errorf("%w: kickoff is empty", ErrInvalidRoles)
	}

	seen := make(map[string]struct{}, len(r.Roles))
	for i, role := range r.Roles {
		if role.Name == "" {
			return Roles{}, fmt.Errorf("%w: role %d has no name", ErrInvalidRoles, i)
		}
		if _, dup := seen[role.Name]; dup {
			return Roles{}, fmt.Errorf("%w: duplicate role %q", ErrInvalidRoles, role.Name)
		}
		if strings.TrimSpace(role.Prompt) == "" {
			return Roles{}, fmt.Errorf("%w: role %q has no prompt", ErrInvalidRoles, role.Name)
		}
		seen[role.Name] = struct{}{}
	}
	return r, nil
}
