package dsl

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Load parses YAML bytes into a Document and validates it structurally.
// On success the returned Document is ready for agent instantiation; on
// failure it returns a *ValidationErrors (or a parse error) and the
// document must not be used.
func Load(data []byte, registry ToolRegistry) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse process definition: %w", err)
	}
	if err := Validate(&doc, registry); err != nil {
		return nil, err
	}
	return &doc, nil
}
