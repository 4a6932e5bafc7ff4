// Package catalog loads the department directory, authority hierarchy,
// policy knowledge base and keyword groups used for routing.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/civic-kit/grievance-service/internal/domain"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// DefaultDepartment is the routing target of last resort.
const DefaultDepartment = "municipal"

// Policy is one statute, circular or charter entry of the knowledge base.
type Policy struct {
	Category      domain.Category `yaml:"category"`
	Name          string          `yaml:"name"`
	Description   string          `yaml:"description"`
	LegalSLAHours float64         `yaml:"legal_sla_hours"`
	Keywords      []string        `yaml:"keywords,omitempty"`
}

type document struct {
	Departments []domain.Department `yaml:"departments"`
	Authorities map[string]string   `yaml:"authorities"`
	Policies    []Policy            `yaml:"policies"`
	Keywords    map[string][]string `yaml:"keywords"`
}

// Catalog is the immutable, validated view of the YAML document.
type Catalog struct {
	departments []domain.Department
	byKey       map[string]domain.Department
	authorities map[domain.EscalationLevel]string
	policies    []Policy
	keywords    map[string][]string
}

// Default parses the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads a catalog file; an empty path yields the embedded default.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes and validates a catalog document.
func Parse(raw []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	c := &Catalog{
		departments: doc.Departments,
		byKey:       make(map[string]domain.Department, len(doc.Departments)),
		authorities: make(map[domain.EscalationLevel]string, len(doc.Authorities)),
		policies:    doc.Policies,
		keywords:    doc.Keywords,
	}
	for _, dept := range doc.Departments {
		if dept.Key == "" || dept.Name == "" {
			return nil, fmt.Errorf("department entry missing key or name")
		}
		if _, dup := c.byKey[dept.Key]; dup {
			return nil, fmt.Errorf("duplicate department %q", dept.Key)
		}
		c.byKey[dept.Key] = dept
	}
	if _, ok := c.byKey[DefaultDepartment]; !ok {
		return nil, fmt.Errorf("catalog must define the %q department", DefaultDepartment)
	}
	for raw, name := range doc.Authorities {
		level, ok := domain.ParseEscalationLevel(raw)
		if !ok || level == domain.EscalationNone {
			return nil, fmt.Errorf("unknown authority level %q", raw)
		}
		c.authorities[level] = name
	}
	for _, p := range doc.Policies {
		if _, ok := domain.ParseCategory(string(p.Category)); !ok {
			return nil, fmt.Errorf("policy %q has unknown category %q", p.Name, p.Category)
		}
	}
	return c, nil
}

// Departments returns every department in catalog order.
func (c *Catalog) Departments() []domain.Department {
	return append([]domain.Department(nil), c.departments...)
}

// Department looks up a department by key.
func (c *Catalog) Department(key string) (domain.Department, bool) {
	dept, ok := c.byKey[strings.ToLower(strings.TrimSpace(key))]
	return dept, ok
}

// DepartmentName returns the display name, falling back to the key itself.
func (c *Catalog) DepartmentName(key string) string {
	if dept, ok := c.Department(key); ok {
		return dept.Name
	}
	return key
}

// Resolve maps a family to its city-specific department. Departments listing
// the city win; otherwise the family member without cities is returned.
func (c *Catalog) Resolve(family, city string) (domain.Department, bool) {
	city = strings.ToLower(strings.TrimSpace(city))
	var fallback *domain.Department
	for i := range c.departments {
		dept := c.departments[i]
		if dept.Family != family {
			continue
		}
		if len(dept.Cities) == 0 {
			if fallback == nil {
				fallback = &c.departments[i]
			}
			continue
		}
		if city == "" {
			continue
		}
		for _, candidate := range dept.Cities {
			if strings.Contains(city, candidate) {
				return dept, true
			}
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return domain.Department{}, false
}

// CityIn returns the first catalog city named in text, if any.
func (c *Catalog) CityIn(text string) string {
	lower := strings.ToLower(text)
	for _, dept := range c.departments {
		for _, city := range dept.Cities {
			if strings.Contains(lower, city) {
				return city
			}
		}
	}
	return ""
}

// Authority names who handles a complaint at the given level.
func (c *Catalog) Authority(level domain.EscalationLevel, departmentKey string) string {
	name, ok := c.authorities[level]
	if !ok {
		return ""
	}
	return strings.ReplaceAll(name, "{department}", c.DepartmentName(departmentKey))
}

// Policies returns the knowledge base entries for a category, keyword matches first.
func (c *Catalog) Policies(category domain.Category, text string) []Policy {
	lower := strings.ToLower(text)
	var matched, rest []Policy
	for _, p := range c.policies {
		if p.Category != category {
			continue
		}
		if p.matches(lower) {
			matched = append(matched, p)
		} else {
			rest = append(rest, p)
		}
	}
	return append(matched, rest...)
}

// KeywordGroups returns a copy of the keyword groups.
func (c *Catalog) KeywordGroups() map[string][]string {
	out := make(map[string][]string, len(c.keywords))
	for k, v := range c.keywords {
		out[k] = append([]string(nil), v...)
	}
	return out
}

func (p Policy) matches(lower string) bool {
	for _, kw := range p.Keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
