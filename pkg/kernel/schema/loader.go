package schema

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile reads and structurally decodes a loadout/v0 document.
// Returns a structural error if the YAML contains unknown fields.
func LoadFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open definition: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads a loadout/v0 document from a reader.
func Load(r io.Reader) (*Document, error) {
	var doc Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true) // strict: reject unknown fields
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("structural decode: %w", err)
	}
	return &doc, nil
}
