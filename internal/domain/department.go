package domain

// Department represents one routing target in the government catalog.
type Department struct {
	Key          string   `yaml:"key" json:"key"`
	Name         string   `yaml:"name" json:"name"`
	Family       string   `yaml:"family" json:"family"`
	Jurisdiction string   `yaml:"jurisdiction" json:"jurisdiction"`
	Cities       []string `yaml:"cities,omitempty" json:"cities,omitempty"`
	Handles      []string `yaml:"handles,omitempty" json:"handles,omitempty"`
}

// Department families group keys that resolve by city.
const (
	FamilyMunicipal = "municipal"
	FamilyPolice    = "police"
	FamilyFire      = "fire"
	FamilyHealth    = "health"
)

// IsMunicipal reports whether the department belongs to the municipal family.
func (d Department) IsMunicipal() bool {
	return d.Family == FamilyMunicipal
}
