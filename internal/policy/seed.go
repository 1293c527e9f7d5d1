// Where: internal/policy/seed.go
// What: Policy seed files: a YAML document of natural-language rules.
// Why: Organizations check their rule set into a repo and import it in one go.
package policy

import (
	"context"
	"fmt"
	"os"

	"sigs.k8s.io/yaml"

	"github.com/opsloom/iacpilot/internal/llm"
	"github.com/opsloom/iacpilot/internal/resource"
)

// SeedPolicy is one entry of a seed document. The struct reuses the Policy
// JSON tags, so YAML keys follow the wire names.
type SeedPolicy struct {
	Name                string `json:"name"`
	Description         string `json:"description,omitempty"`
	NaturalLanguageRule string `json:"natural_language_rule"`
	Platform            string `json:"cloud_platform,omitempty"`
	Severity            string `json:"severity,omitempty"`
	Disabled            bool   `json:"disabled,omitempty"`
}

// seedDocument is the top-level seed file shape.
type seedDocument struct {
	Policies []SeedPolicy `json:"policies"`
}

// LoadSeed reads and compiles a seed document. Entries that fail compilation
// abort the load; a partial import would silently weaken the rule set.
func LoadSeed(ctx context.Context, chatter llm.Chatter, path string) ([]Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load policy seed: %w", err)
	}

	var doc seedDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("load policy seed: %w", err)
	}
	if len(doc.Policies) == 0 {
		return nil, fmt.Errorf("load policy seed: %s defines no policies", path)
	}

	out := make([]Policy, 0, len(doc.Policies))
	for i, seed := range doc.Policies {
		if seed.Name == "" || seed.NaturalLanguageRule == "" {
			return nil, fmt.Errorf("load policy seed: entry %d needs name and natural_language_rule", i)
		}
		platform := seed.Platform
		if platform == "" {
			platform = string(resource.PlatformAll)
		}
		severity := seed.Severity
		if severity == "" {
			severity = string(SeverityError)
		}
		switch Severity(severity) {
		case SeverityError, SeverityWarning:
		default:
			return nil, fmt.Errorf("load policy seed: entry %q has unknown severity %q", seed.Name, severity)
		}

		compiled, err := Compile(ctx, chatter, seed.NaturalLanguageRule)
		if err != nil {
			return nil, fmt.Errorf("load policy seed: entry %q: %w", seed.Name, err)
		}
		out = append(out, Policy{
			Name:                seed.Name,
			Description:         seed.Description,
			NaturalLanguageRule: seed.NaturalLanguageRule,
			Platform:            resource.Platform(platform),
			Severity:            Severity(severity),
			Enabled:             !seed.Disabled,
			Compiled:            compiled,
		})
	}
	return out, nil
}
