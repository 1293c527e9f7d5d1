// Where: internal/policy/policy.go
// What: Policy records, compiled rule shapes, and violation reporting.
// Why: Natural-language policies become small typed rules evaluated per resource.
package policy

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/opsloom/iacpilot/internal/resource"
)

// Severity decides whether a violation blocks generation.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Policy is an organization rule owned by the policy store; it outlives any
// session.
type Policy struct {
	ID                  int64             `json:"id"`
	Name                string            `json:"name"`
	Description         string            `json:"description,omitempty"`
	NaturalLanguageRule string            `json:"natural_language_rule"`
	Platform            resource.Platform `json:"cloud_platform"`
	Severity            Severity          `json:"severity"`
	Enabled             bool              `json:"enabled"`
	Compiled            *CompiledRule     `json:"compiled_logic,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

// AppliesTo reports whether the policy's platform filter matches a resource
// platform ("all" matches anything).
func (p Policy) AppliesTo(platform resource.Platform) bool {
	return p.Platform == "" || p.Platform == resource.PlatformAll || p.Platform == platform
}

// CompiledRule is the executable form of a policy. Exactly the rule kinds in
// this struct are supported; adding a kind requires both a compiler clause
// and an evaluator clause.
type CompiledRule struct {
	BlockPorts         *BlockPortsRule         `json:"block_ports,omitempty"`
	RequiredTags       *RequiredTagsRule       `json:"required_tags,omitempty"`
	AllowedRegions     *AllowedRegionsRule     `json:"allowed_regions,omitempty"`
	RequiredEncryption *RequiredEncryptionRule `json:"required_encryption,omitempty"`
}

// Empty reports whether compilation produced no executable clauses.
func (c *CompiledRule) Empty() bool {
	return c == nil ||
		(c.BlockPorts == nil && c.RequiredTags == nil &&
			c.AllowedRegions == nil && c.RequiredEncryption == nil)
}

// BlockPortsRule flags security rules opening listed ports to listed CIDRs.
type BlockPortsRule struct {
	Ports      []int    `json:"ports"`
	Directions []string `json:"directions,omitempty"` // ingress/egress, default ingress
	CIDRs      []string `json:"cidrs,omitempty"`      // default 0.0.0.0/0
}

// RequiredTagsRule flags resources missing any listed tag key
// (case-insensitive comparison).
type RequiredTagsRule struct {
	Tags []string `json:"tags"`
}

// AllowedRegionsRule flags resources placed outside the allow-list.
type AllowedRegionsRule struct {
	Regions []string `json:"regions"`
}

// RequiredEncryptionRule flags storage resources without encryption at rest.
type RequiredEncryptionRule struct{}

// UnmarshalJSON tolerates the legacy flat shapes next to the structured
// ones: {"block_ports": [22]} and {"required_tags": ["Project"]}.
func (c *CompiledRule) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if ports, ok := raw["block_ports"]; ok {
		var flat []int
		if err := json.Unmarshal(ports, &flat); err == nil {
			c.BlockPorts = &BlockPortsRule{Ports: flat}
		} else {
			var rule BlockPortsRule
			if err := json.Unmarshal(ports, &rule); err != nil {
				return fmt.Errorf("block_ports: %w", err)
			}
			c.BlockPorts = &rule
		}
	}

	if tags, ok := raw["required_tags"]; ok {
		var flat []string
		if err := json.Unmarshal(tags, &flat); err == nil {
			c.RequiredTags = &RequiredTagsRule{Tags: flat}
		} else {
			var rule RequiredTagsRule
			if err := json.Unmarshal(tags, &rule); err != nil {
				return fmt.Errorf("required_tags: %w", err)
			}
			c.RequiredTags = &rule
		}
	}

	if regions, ok := raw["allowed_regions"]; ok {
		var flat []string
		if err := json.Unmarshal(regions, &flat); err == nil {
			c.AllowedRegions = &AllowedRegionsRule{Regions: flat}
		} else {
			var rule AllowedRegionsRule
			if err := json.Unmarshal(regions, &rule); err != nil {
				return fmt.Errorf("allowed_regions: %w", err)
			}
			c.AllowedRegions = &rule
		}
	}

	if enc, ok := raw["required_encryption"]; ok {
		var flag bool
		if err := json.Unmarshal(enc, &flag); err == nil {
			if flag {
				c.RequiredEncryption = &RequiredEncryptionRule{}
			}
		} else {
			c.RequiredEncryption = &RequiredEncryptionRule{}
		}
	}

	return nil
}

// Violation records one policy failure against one resource.
type Violation struct {
	PolicyID     int64    `json:"policy_id"`
	PolicyName   string   `json:"policy_name"`
	ResourceName string   `json:"resource_name"`
	Severity     Severity `json:"severity"`
	Detail       string   `json:"detail"`
}
