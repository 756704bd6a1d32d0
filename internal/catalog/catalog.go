// Package catalog defines the KPIs the extractor asks the model for.
package catalog

import (
	_ "embed"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// KPI is one tracked metric.
type KPI struct {
	Key         string `yaml:"key" json:"key"`
	Label       string `yaml:"label" json:"label"`
	Description string `yaml:"description" json:"description"`
}

// Catalog is an ordered set of KPIs.
type Catalog struct {
	KPIs []KPI `yaml:"kpis" json:"kpis"`

	byFold map[string]string
}

// Default returns the built-in supplier KPI catalog.
func Default() *Catalog {
	c, err := Parse(defaultYAML)
	if err != nil {
		panic(eris.Wrap(err, "catalog: embedded default"))
	}
	return c
}

// Load reads a catalog from a YAML file. An empty path yields Default.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: read %s", path)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, eris.Wrap(err, "catalog: parse yaml")
	}
	if len(c.KPIs) == 0 {
		return nil, eris.New("catalog: no kpis defined")
	}

	c.byFold = make(map[string]string, len(c.KPIs)*2)
	for i, k := range c.KPIs {
		key := strings.TrimSpace(k.Key)
		if key == "" {
			return nil, eris.Errorf("catalog: kpi %d has no key", i)
		}
		fold := strings.ToLower(key)
		if _, dup := c.byFold[fold]; dup {
			return nil, eris.Errorf("catalog: duplicate kpi key %q", key)
		}
		c.KPIs[i].Key = key
		c.byFold[fold] = key
	}
	for _, k := range c.KPIs {
		if label := strings.ToLower(strings.TrimSpace(k.Label)); label != "" {
			if _, taken := c.byFold[label]; !taken {
				c.byFold[label] = k.Key
			}
		}
	}
	return &c, nil
}

// Keys returns the KPI keys in catalog order.
func (c *Catalog) Keys() []string {
	out := make([]string, len(c.KPIs))
	for i, k := range c.KPIs {
		out[i] = k.Key
	}
	return out
}

// LabelMap maps workbook row labels to KPI keys.
func (c *Catalog) LabelMap() map[string]string {
	out := make(map[string]string, len(c.KPIs))
	for _, k := range c.KPIs {
		if k.Label != "" {
			out[k.Label] = k.Key
		}
	}
	return out
}

// Descriptions maps KPI keys to their descriptions.
func (c *Catalog) Descriptions() map[string]string {
	out := make(map[string]string, len(c.KPIs))
	for _, k := range c.KPIs {
		out[k.Key] = k.Description
	}
	return out
}

// Resolve maps a key or label returned by the model to a catalog key,
// ignoring case and surrounding whitespace.
func (c *Catalog) Resolve(name string) (string, bool) {
	key, ok := c.byFold[strings.ToLower(strings.TrimSpace(name))]
	return key, ok
}
