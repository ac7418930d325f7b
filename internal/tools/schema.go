package tools

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.json
var schemaFS embed.FS

var schemaCache sync.Map

type schemaDoc struct {
	Actions map[string]json.RawMessage `json:"actions"`
}

// validateParams checks tool params against the embedded schema for the tool
// family. Tools without a schema file validate trivially; a schema file with
// no entry for the action falls back to its "*" entry.
func validateParams(tool string, params map[string]any) error {
	family, action := splitTool(tool)
	actions, err := loadFamilySchema(family)
	if err != nil {
		return nil
	}
	raw, ok := actions[action]
	if !ok {
		raw, ok = actions["*"]
	}
	if !ok {
		return nil
	}
	var schema any
	if err := json.Unmarshal(raw, &schema); err != nil {
		return err
	}
	value := any(params)
	if params == nil {
		value = map[string]any{}
	}
	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(value))
	if err != nil {
		return err
	}
	if result.Valid() {
		return nil
	}
	if len(result.Errors()) == 0 {
		return errors.New("schema validation failed")
	}
	return fmt.Errorf("schema validation failed: %s", result.Errors()[0].String())
}

func splitTool(tool string) (family, action string) {
	if i := strings.Index(tool, "."); i >= 0 {
		return tool[:i], tool[i+1:]
	}
	return tool, ""
}

func loadFamilySchema(family string) (map[string]json.RawMessage, error) {
	if val, ok := schemaCache.Load(family); ok {
		return val.(map[string]json.RawMessage), nil
	}
	data, err := schemaFS.ReadFile("schemas/" + family + ".json")
	if err != nil {
		return nil, err
	}
	var doc schemaDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if len(doc.Actions) == 0 {
		return nil, errors.New("no actions")
	}
	schemaCache.Store(family, doc.Actions)
	return doc.Actions, nil
}
