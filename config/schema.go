package config

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// GenerateSchema generates the JSON Schema for cncctl.yml.
// Top-level extension sections (logging, ...) are allowed but not described.
func GenerateSchema() ([]byte, error) {
	r := &jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		ExpandedStruct:             true,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
		FieldNameTag:               "yaml",
	}

	schema := r.Reflect(&Config{})
	schema.Title = "cncctl Configuration"
	schema.Description = "Schema for cncctl.yml client configuration."
	schema.Version = "http://json-schema.org/draft-07/schema#"
	schema.AdditionalProperties = jsonschema.TrueSchema

	return json.MarshalIndent(schema, "", "  ")
}
