package registry

import (
	"bytes"
	"encoding/json"
	"io"
)

// toJSONSchemaResource marshals a Go-literal JSON Schema (the form a
// ToolSpec author writes: map[string]any with nested maps/slices) into a
// reader suitable for jsonschema.Compiler.AddResource.
func toJSONSchemaResource(schema map[string]any) (io.Reader, error) {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(data), nil
}

// toValidatable round-trips inputs through JSON so that Go's native int
// becomes the float64/json.Number shape jsonschema.Schema.Validate
// expects from a decoded document, matching how the config layer
// treats user-supplied maps as untyped JSON documents.
func toValidatable(inputs map[string]any) any {
	data, err := json.Marshal(inputs)
	if err != nil {
		return inputs
	}
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return inputs
	}
	return decoded
}
