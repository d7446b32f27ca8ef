// Package nace holds the NACE industry catalog used by the industry filter:
// sections A-T, their two-digit divisions and named presets.
package nace

import (
	_ "embed"
	"sort"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

// Preset names that are not listed in the catalog file.
const (
	PresetAll  = "all"
	PresetNone = "none"
)

// Division is a two-digit NACE division.
type Division struct {
	Code string `yaml:"code" json:"code"`
	Name string `yaml:"name" json:"name"`
}

// Section is a lettered NACE section.
type Section struct {
	Code      string     `yaml:"code" json:"code"`
	Name      string     `yaml:"name" json:"name"`
	Divisions []Division `yaml:"divisions" json:"divisions"`
}

// Preset is a named selection of whole sections.
type Preset struct {
	Name     string   `yaml:"name" json:"name"`
	Label    string   `yaml:"label" json:"label"`
	Sections []string `yaml:"sections" json:"sections"`
}

// Catalog is an immutable set of sections and presets.
type Catalog struct {
	Sections []Section `yaml:"sections" json:"sections"`
	Presets  []Preset  `yaml:"presets" json:"presets"`

	sections  map[string]int
	divisions map[string]Division
}

// Parse reads a catalog in the embedded YAML layout.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, eris.Wrap(err, "nace: parse catalog")
	}

	c.sections = make(map[string]int, len(c.Sections))
	c.divisions = make(map[string]Division)
	for i, s := range c.Sections {
		if _, dup := c.sections[s.Code]; dup {
			return nil, eris.Errorf("nace: duplicate section %q", s.Code)
		}
		c.sections[s.Code] = i
		for _, d := range s.Divisions {
			if _, dup := c.divisions[d.Code]; dup {
				return nil, eris.Errorf("nace: duplicate division %q", d.Code)
			}
			c.divisions[d.Code] = d
		}
	}
	for _, p := range c.Presets {
		for _, s := range p.Sections {
			if _, ok := c.sections[s]; !ok {
				return nil, eris.Errorf("nace: preset %q references unknown section %q", p.Name, s)
			}
		}
	}
	return &c, nil
}

var defaultCatalog = sync.OnceValue(func() *Catalog {
	c, err := Parse(catalogYAML)
	if err != nil {
		panic(err)
	}
	return c
})

// Default returns the embedded catalog.
func Default() *Catalog {
	return defaultCatalog()
}

// Codes returns every division code in catalog order.
func (c *Catalog) Codes() []string {
	var out []string
	for _, s := range c.Sections {
		for _, d := range s.Divisions {
			out = append(out, d.Code)
		}
	}
	return out
}

// SectionCodes returns the division codes of one section.
func (c *Catalog) SectionCodes(section string) []string {
	i, ok := c.sections[strings.ToUpper(section)]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(c.Sections[i].Divisions))
	for _, d := range c.Sections[i].Divisions {
		out = append(out, d.Code)
	}
	return out
}

// Describe returns the division name for an industry code such as
// "41.200", or "" when the division is unknown.
func (c *Catalog) Describe(code string) string {
	code = strings.TrimSpace(code)
	if len(code) < 2 {
		return ""
	}
	return c.divisions[code[:2]].Name
}

// Preset returns the division codes selected by a preset.
func (c *Catalog) Preset(name string) ([]string, error) {
	switch name {
	case PresetAll:
		return c.Codes(), nil
	case PresetNone:
		return []string{}, nil
	}
	for _, p := range c.Presets {
		if p.Name != name {
			continue
		}
		var out []string
		for _, s := range p.Sections {
			out = append(out, c.SectionCodes(s)...)
		}
		return out, nil
	}
	return nil, eris.Errorf("nace: unknown preset %q", name)
}

// PresetNames lists every preset, built-in ones first.
func (c *Catalog) PresetNames() []string {
	names := []string{PresetAll, PresetNone}
	for _, p := range c.Presets {
		names = append(names, p.Name)
	}
	return names
}

// Expand trims, dedupes and sorts selected codes. A section letter is
// replaced by its divisions.
func (c *Catalog) Expand(codes []string) []string {
	set := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		if len(code) == 1 {
			if divs := c.SectionCodes(code); divs != nil {
				for _, d := range divs {
					set[d] = struct{}{}
				}
				continue
			}
		}
		set[code] = struct{}{}
	}

	out := make([]string, 0, len(set))
	for code := range set {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// Expand is shorthand for Default().Expand(codes).
func Expand(codes []string) []string {
	return Default().Expand(codes)
}
