package catalog

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// MetricHemoglobin is the canonical hemoglobin key; the OCR correction rule
// in Extract is specific to it.
const MetricHemoglobin = "Гемоглобин"

//go:embed metrics.yaml
var seedYAML []byte

// Spec describes one catalog metric: its canonical name, accepted aliases,
// display unit, reference range and chart color.
type Spec struct {
	Name          string   `yaml:"name"`
	Aliases       []string `yaml:"aliases"`
	Unit          string   `yaml:"unit"`
	NormalMin     float64  `yaml:"normal_min"`
	NormalMax     float64  `yaml:"normal_max"`
	CriticalBelow *float64 `yaml:"critical_below"`
	CriticalAbove *float64 `yaml:"critical_above"`
	Color         string   `yaml:"color"`
	Description   string   `yaml:"description"`
}

// Catalog is the static metrics reference data, seeded once at startup and
// read-only afterwards.
type Catalog struct {
	specs   map[string]Spec
	aliases map[string]string
	names   []string
}

// Load parses the embedded seed file and builds the alias index.
func Load() (*Catalog, error) {
	return Parse(seedYAML)
}

// Parse builds a catalog from raw YAML, rejecting duplicate aliases so that
// every raw key resolves to at most one canonical metric.
func Parse(raw []byte) (*Catalog, error) {
	var file struct {
		Metrics []Spec `yaml:"metrics"`
	}
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse metrics seed: %w", err)
	}
	if len(file.Metrics) == 0 {
		return nil, fmt.Errorf("metrics seed is empty")
	}

	c := &Catalog{
		specs:   make(map[string]Spec, len(file.Metrics)),
		aliases: make(map[string]string),
	}
	for _, spec := range file.Metrics {
		name := strings.TrimSpace(spec.Name)
		if name == "" {
			return nil, fmt.Errorf("metric with empty name in seed")
		}
		if _, exists := c.specs[name]; exists {
			return nil, fmt.Errorf("duplicate metric %q in seed", name)
		}
		spec.Name = name
		c.specs[name] = spec
		c.names = append(c.names, name)

		for _, alias := range append([]string{name}, spec.Aliases...) {
			key := strings.ToLower(strings.TrimSpace(alias))
			if key == "" {
				continue
			}
			if owner, exists := c.aliases[key]; exists && owner != name {
				return nil, fmt.Errorf("alias %q claimed by both %q and %q", alias, owner, name)
			}
			c.aliases[key] = name
		}
	}
	return c, nil
}

// Resolve maps a raw key onto its catalog spec: exact canonical match first,
// then case-insensitive alias match.
func (c *Catalog) Resolve(raw string) (Spec, bool) {
	if spec, ok := c.specs[raw]; ok {
		return spec, true
	}
	name, ok := c.aliases[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return Spec{}, false
	}
	return c.specs[name], true
}

// Names lists canonical metric names in seed order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}
