// Package schema defines the loadout/v0 definition document: layers, their
// bundles, stub units and test scenarios.
package schema

// APIVersion is the only accepted document version.
const APIVersion = "loadout/v0"

// GenerateKey marks a mapping inside a directive list as a declarative
// generator rather than a version requirement.
const GenerateKey = "$generate"

// Document is the top-level loadout/v0 document.
type Document struct {
	APIVersion string             `yaml:"apiVersion" json:"apiVersion"`
	Meta       Meta               `yaml:"meta"       json:"meta"`
	Layers     []LayerDef         `yaml:"layers"     json:"layers"`
	Units      map[string]UnitDef `yaml:"units,omitempty"     json:"units,omitempty"`
	Scenarios  []Scenario         `yaml:"scenarios,omitempty" json:"scenarios,omitempty"`
}

// Meta contains document metadata.
type Meta struct {
	Name         string `yaml:"name"        json:"name"`
	Description  string `yaml:"description,omitempty"   json:"description,omitempty"`
	DefaultLayer string `yaml:"default_layer,omitempty" json:"default_layer,omitempty"`
}

// LayerDef declares one layer. Directives and bundle lists use the raw
// directive grammar; a {"$generate": {...}} mapping declares a generator.
type LayerDef struct {
	Name        string                   `yaml:"name"        json:"name"`
	Parent      string                   `yaml:"parent,omitempty"      json:"parent,omitempty"`
	Description string                   `yaml:"description,omitempty" json:"description,omitempty"`
	Directives  DirectiveList            `yaml:"directives,omitempty"  json:"directives,omitempty"`
	Bundles     map[string]DirectiveList `yaml:"bundles,omitempty"     json:"bundles,omitempty"`
}

// UnitDef declares a stub unit used by `loadout apply` and scenarios.
type UnitDef struct {
	Version    string `yaml:"version,omitempty"    json:"version,omitempty"`
	Fail       string `yaml:"fail,omitempty"       json:"fail,omitempty"`
	Deactivate bool   `yaml:"deactivate,omitempty" json:"deactivate,omitempty"`
}

// Scenario is one apply with expectations, run by `loadout test`.
type Scenario struct {
	Name    string             `yaml:"name"              json:"name"`
	Layer   string             `yaml:"layer,omitempty"   json:"layer,omitempty"`
	Bundles []string           `yaml:"bundles,omitempty" json:"bundles,omitempty"`
	Exclude []string           `yaml:"exclude,omitempty" json:"exclude,omitempty"` // "Target" or "Target=sym,sym"
	Args    map[string]any     `yaml:"args,omitempty"    json:"args,omitempty"`
	Units   map[string]UnitDef `yaml:"units,omitempty"   json:"units,omitempty"`
	Expect  Expectation        `yaml:"expect"            json:"expect"`
}

// Expectation is what a scenario asserts about its apply.
type Expectation struct {
	Executed []string `yaml:"executed,omitempty" json:"executed,omitempty"` // e.g. "enable B(x)"
	Error    string   `yaml:"error,omitempty"    json:"error,omitempty"`    // failure kind
	Active   []string `yaml:"active,omitempty"   json:"active,omitempty"`   // ledger state after apply
}
