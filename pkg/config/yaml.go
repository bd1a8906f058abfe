package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	hosterrors "adaptive-mesh/pkg/errors"
)

//go:embed schema.json
var schemaJSON string

const schemaURL = "https://adaptive-mesh.local/config.schema.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString(schemaURL, schemaJSON)
	})
	return schema, schemaErr
}

// SchemaJSON returns the JSON schema YAML configs are validated against.
func SchemaJSON() string {
	return schemaJSON
}

// LoadYAML reads and validates a YAML config file.
func LoadYAML(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: unable to open %s: %w", path, err)
	}
	c, err := ParseYAML(data, path)
	if err != nil {
		return nil, err
	}
	c.source = path
	return c, nil
}

// ParseYAML decodes a YAML document whose top-level keys are section
// names and whose values are option mappings. The document must match
// the embedded schema. name is used in error messages.
func ParseYAML(data []byte, name string) (*Config, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, hosterrors.Wrap(err, hosterrors.ErrConfigValidation, "invalid YAML").SetFile(name)
	}
	if raw == nil {
		return New(), nil
	}

	// The schema validator works on JSON values, so normalize through
	// encoding/json.
	buf, err := json.Marshal(raw)
	if err != nil {
		return nil, hosterrors.Wrap(err, hosterrors.ErrConfigValidation, "unsupported YAML value").SetFile(name)
	}
	var doc any
	if err := json.Unmarshal(buf, &doc); err != nil {
		return nil, hosterrors.Wrap(err, hosterrors.ErrConfigValidation, "unsupported YAML value").SetFile(name)
	}

	s, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("config: compile schema: %w", err)
	}
	if err := s.Validate(doc); err != nil {
		return nil, hosterrors.ConfigValidationError(name, err)
	}

	top, ok := doc.(map[string]any)
	if !ok {
		return nil, hosterrors.New(hosterrors.ErrConfigValidation, "top level must be a mapping").SetFile(name)
	}

	c := New()
	names := make([]string, 0, len(top))
	for k := range top {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, sec := range names {
		opts := make(map[string]string)
		if m, ok := top[sec].(map[string]any); ok {
			for k, v := range m {
				opts[k] = scalarString(v)
			}
		}
		c.addSection(sec, opts)
	}
	return c, nil
}

func scalarString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		b, _ := json.Marshal(x)
		return strings.TrimSpace(string(b))
	}
}
