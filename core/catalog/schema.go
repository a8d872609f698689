package catalog

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

// itemSchema guards the shape of remote catalog records before the rest
// of the pipeline trusts them.
const itemSchema = `{
	"type": "object",
	"properties": {
		"Id": {
			"type": "string",
			"pattern": "^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$"
		},
		"Title": {
			"type": "object",
			"additionalProperties": {"type": "string"}
		},
		"Tags": {
			"type": "array",
			"items": {"type": "string"}
		},
		"Contents": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"Type": {"type": "string"},
					"Url": {"type": "string"}
				}
			}
		}
	},
	"required": ["Id"]
}`

var (
	compileItemSchema sync.Once
	compiledSchema    *jsonschema.Schema
	compileErr        error
)

// ValidateRecord checks a raw catalog record against the item schema.
func ValidateRecord(record json.RawMessage) error {
	compileItemSchema.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("inmemory://catalog_item", strings.NewReader(itemSchema)); err != nil {
			compileErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiledSchema, compileErr = compiler.Compile("inmemory://catalog_item")
	})
	if compileErr != nil {
		return compileErr
	}
	var value any
	if err := json.Unmarshal(record, &value); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	if err := compiledSchema.Validate(value); err != nil {
		return fmt.Errorf("record validation failed: %w", err)
	}
	return nil
}
