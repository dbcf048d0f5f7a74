package jobqueue

import (
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// envelopeSchemaText is the JSON Schema for the ingress envelope named in
// spec §6: {row, col, value, sheetId}, plus the jobId/submittedAt fields the
// worker and retry machinery add at the transport boundary.
const envelopeSchemaText = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["jobId", "row", "col", "sheetId"],
	"properties": {
		"jobId": {"type": "string", "minLength": 1},
		"row": {"type": "integer", "minimum": 1, "maximum": 10000},
		"col": {"type": "string", "pattern": "^[A-Za-z]$"},
		"value": {"type": "string", "maxLength": 5000},
		"sheetId": {"type": "string", "minLength": 1},
		"submittedAt": {"type": "integer"}
	},
	"additionalProperties": false
}`

var (
	schemaOnce    sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr     error
)

func loadSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		const resourceName = "envelope.json"
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(envelopeSchemaText))
		if err != nil {
			schemaErr = err
			return
		}
		if err := c.AddResource(resourceName, doc); err != nil {
			schemaErr = err
			return
		}
		compiledSchema, schemaErr = c.Compile(resourceName)
	})
	return compiledSchema, schemaErr
}

// validateEnvelope validates raw bytes against the compiled envelope schema.
func validateEnvelope(raw []byte) error {
	schema, err := loadSchema()
	if err != nil {
		return err
	}
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return err
	}
	return schema.Validate(doc)
}
