// Where: internal/llm/extract.go
// What: Decode and schema-validate model extraction output.
// Why: A wrong extraction must cost a follow-up turn, never corrupt state.
package llm

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/opsloom/iacpilot/internal/resource"
)

// Extraction is the rigid output contract of parse and collection calls.
// Resources is always the complete, up-to-date list: a new turn's extraction
// is additive over the conversation, not a replacement protocol.
type Extraction struct {
	InformationComplete bool                `json:"information_complete"`
	Resources           []resource.Resource `json:"resources"`
	MissingFields       map[string][]string `json:"missing_fields,omitempty"`
	Message             string              `json:"message,omitempty"`
}

const extractionSchema = `{
  "type": "object",
  "properties": {
    "information_complete": {"type": "boolean"},
    "resources": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "type": {"type": "string"},
          "resource_type": {"type": "string"},
          "name": {"type": "string"},
          "resource_name": {"type": "string"},
          "cloud_platform": {"type": "string"},
          "properties": {"type": "object"}
        }
      }
    },
    "missing_fields": {
      "anyOf": [
        {"type": "array", "items": {"type": "string"}},
        {"type": "object", "additionalProperties": {"type": "array", "items": {"type": "string"}}}
      ]
    },
    "message": {"type": "string"},
    "user_message_to_display": {"type": "string"}
  },
  "required": ["resources"]
}`

var (
	schemaOnce     sync.Once
	schemaErr      error
	compiledSchema *jsonschema.Schema
)

func extractionJSONSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("extraction.json", strings.NewReader(extractionSchema)); err != nil {
			schemaErr = err
			return
		}
		compiledSchema, schemaErr = compiler.Compile("extraction.json")
	})
	return compiledSchema, schemaErr
}

// DecodeExtraction locates the JSON object in a model response (which may be
// wrapped in prose or a markdown fence), validates it against the extraction
// schema, and decodes it. Errors are reported, never retried here.
func DecodeExtraction(response string) (Extraction, error) {
	raw, err := ExtractJSONObject(response)
	if err != nil {
		return Extraction{}, err
	}

	var document any
	if err := json.Unmarshal([]byte(raw), &document); err != nil {
		return Extraction{}, fmt.Errorf("decode extraction: %w", err)
	}
	schema, err := extractionJSONSchema()
	if err != nil {
		return Extraction{}, fmt.Errorf("compile extraction schema: %w", err)
	}
	if err := schema.Validate(document); err != nil {
		return Extraction{}, fmt.Errorf("extraction schema: %w", err)
	}

	var aux struct {
		InformationComplete bool                `json:"information_complete"`
		Resources           []resource.Resource `json:"resources"`
		MissingFields       json.RawMessage     `json:"missing_fields"`
		Message             string              `json:"message"`
		DisplayMessage      string              `json:"user_message_to_display"`
	}
	if err := json.Unmarshal([]byte(raw), &aux); err != nil {
		return Extraction{}, fmt.Errorf("decode extraction: %w", err)
	}

	out := Extraction{
		InformationComplete: aux.InformationComplete,
		Resources:           aux.Resources,
		Message:             aux.Message,
	}
	if out.Message == "" {
		out.Message = aux.DisplayMessage
	}
	out.MissingFields = decodeMissingFields(aux.MissingFields)
	for i := range out.Resources {
		out.Resources[i].Normalize()
	}
	return out, nil
}

// decodeMissingFields accepts either the grouped mapping or the flat list
// form some models emit; the flat form lands under the "" key.
func decodeMissingFields(raw json.RawMessage) map[string][]string {
	if len(raw) == 0 {
		return nil
	}
	var grouped map[string][]string
	if err := json.Unmarshal(raw, &grouped); err == nil {
		return grouped
	}
	var flat []string
	if err := json.Unmarshal(raw, &flat); err == nil && len(flat) > 0 {
		return map[string][]string{"": flat}
	}
	return nil
}

// ExtractJSONObject returns the substring spanning the first '{' through the
// last '}' of a response.
func ExtractJSONObject(response string) (string, error) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("no JSON object in response")
	}
	return response[start : end+1], nil
}
