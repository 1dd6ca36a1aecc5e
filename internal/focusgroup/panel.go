package focusgroup

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/agency-studio/content-pipeline/internal/models"
)

// panelFile models the on-disk personas file.
type panelFile struct {
	Personas []models.Persona `yaml:"personas"`
}

// DefaultPanel is the three persona panel used when no personas file is configured.
func DefaultPanel() []models.Persona {
	return []models.Persona{
		{
			Name:        "Marina, marketing manager",
			Profile:     "34, runs marketing for a mid-sized retailer and scrolls feeds for ideas to borrow",
			Priorities:  []string{"a clear hook in the first line", "consistent brand voice"},
			Skepticisms: []string{"generic stock phrasing", "hashtag stuffing"},
		},
		{
			Name:        "Carlos, small business owner",
			Profile:     "45, owns two shops, decides fast and buys only when the value is obvious",
			Priorities:  []string{"concrete benefits", "a direct call to action"},
			Skepticisms: []string{"vague promises", "jargon"},
		},
		{
			Name:        "Julia, young consumer",
			Profile:     "23, follows creators more than brands and ignores anything that feels like an ad",
			Priorities:  []string{"authenticity", "visual appeal", "humor"},
			Skepticisms: []string{"corporate tone", "long blocks of text"},
		},
	}
}

// ParsePanelYAML decodes a persona panel from YAML bytes.
func ParsePanelYAML(data []byte) ([]models.Persona, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("focusgroup: panel payload is empty")
	}
	var file panelFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("focusgroup: decode panel: %w", err)
	}
	if len(file.Personas) == 0 {
		return nil, fmt.Errorf("focusgroup: panel has no personas")
	}
	for i, p := range file.Personas {
		if strings.TrimSpace(p.Name) == "" {
			return nil, fmt.Errorf("focusgroup: persona %d has no name", i+1)
		}
	}
	return file.Personas, nil
}

// LoadPanel reads the personas file at path, or returns DefaultPanel when path is empty.
func LoadPanel(path string) ([]models.Persona, error) {
	if path == "" {
		return DefaultPanel(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("focusgroup: read %s: %w", path, err)
	}
	personas, err := ParsePanelYAML(data)
	if err != nil {
		return nil, fmt.Errorf("focusgroup: %s: %w", path, err)
	}
	return personas, nil
}
