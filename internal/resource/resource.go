// Where: internal/resource/resource.go
// What: Canonical resource model shared by every pipeline stage.
// Why: Give parser, collector, policy engine, and generator one representation.
package resource

import (
	"encoding/json"
	"strings"
)

// Platform identifies the cloud a resource belongs to.
type Platform string

const (
	PlatformAWS   Platform = "aws"
	PlatformAzure Platform = "azure"
	// PlatformAll is only meaningful on policies, never on resources.
	PlatformAll Platform = "all"
)

// Resource is the canonical representation of one cloud resource.
// Type is always the normalized <platform>_<kind> form after Normalize.
type Resource struct {
	Type       string         `json:"type"`
	Platform   Platform       `json:"cloud_platform"`
	Name       string         `json:"name"`
	Properties map[string]any `json:"properties"`
}

// resourceAliases tolerates the field spellings the LLM and older payloads
// use (resource_type/resource_name next to type/name).
type resourceAliases struct {
	Type         string         `json:"type"`
	ResourceType string         `json:"resource_type"`
	Platform     Platform       `json:"cloud_platform"`
	Name         string         `json:"name"`
	ResourceName string         `json:"resource_name"`
	Properties   map[string]any `json:"properties"`
}

// UnmarshalJSON accepts both canonical and aliased field names.
func (r *Resource) UnmarshalJSON(data []byte) error {
	var raw resourceAliases
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Type = raw.Type
	if r.Type == "" {
		r.Type = raw.ResourceType
	}
	r.Name = raw.Name
	if r.Name == "" {
		r.Name = raw.ResourceName
	}
	r.Platform = raw.Platform
	r.Properties = raw.Properties
	return nil
}

// Normalize canonicalizes the type, infers the platform when missing, and
// guarantees Properties and Properties["Tags"] are non-nil mappings.
func (r *Resource) Normalize() {
	r.Type = NormalizeType(r.Type, r.Platform)
	if r.Platform == "" {
		r.Platform = PlatformForType(r.Type)
	}
	if r.Properties == nil {
		r.Properties = map[string]any{}
	}
	r.Properties["Tags"] = r.Tags()
}

// Tags returns the Tags mapping, coercing absent or malformed values to an
// empty map. The returned map is the live mapping when one already exists.
func (r *Resource) Tags() map[string]any {
	if r.Properties == nil {
		return map[string]any{}
	}
	if tags, ok := r.Properties["Tags"].(map[string]any); ok {
		return tags
	}
	return map[string]any{}
}

// Identity returns the merge key: normalized type plus case-insensitive name.
func (r *Resource) Identity() string {
	return NormalizeType(r.Type, r.Platform) + "/" + strings.ToLower(strings.TrimSpace(r.Name))
}

// StringProp reads a property as a trimmed string ("" when absent).
func (r *Resource) StringProp(key string) string {
	if r.Properties == nil {
		return ""
	}
	v, ok := r.Properties[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return strings.Trim(string(b), `"`)
	}
}

// BoolProp interprets truthy property spellings (true/"true"/"yes"/"y"/"1").
func (r *Resource) BoolProp(key string) bool {
	if r.Properties == nil {
		return false
	}
	switch v := r.Properties[key].(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "y", "1":
			return true
		}
	}
	return false
}

// Exists reports whether a <Field>Exists flag is set to "y"/"yes"/"true".
// The default for every exists flag is "n" (create the resource).
func (r *Resource) Exists(flag string) bool {
	v := strings.ToLower(r.StringProp(flag))
	return v == "y" || v == "yes" || v == "true"
}
