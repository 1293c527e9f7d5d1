// Where: internal/policy/compile.go
// What: Natural-language rule compilation: pattern table first, model fallback.
// Why: Most organization rules are recognizable without burning a model call.
package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/opsloom/iacpilot/internal/llm"
)

const compileSystemPrompt = `You are a security policy translator.
Convert the user's natural language security rule into a JSON object strictly following this schema:

1. For blocking ports:
   {"block_ports": {"ports": [22, 3389], "directions": ["ingress"], "cidrs": ["0.0.0.0/0"]}}

2. For required tags:
   {"required_tags": {"tags": ["Environment", "Owner"]}}

3. For allowed regions:
   {"allowed_regions": {"regions": ["us-east-1", "eu-west-1"]}}

4. For required encryption at rest:
   {"required_encryption": true}

Output ONLY the JSON object. Do not explain.`

var (
	portNumber = regexp.MustCompile(`\b(\d{1,5})\b`)
	cidrForm   = regexp.MustCompile(`\b(\d{1,3}(?:\.\d{1,3}){3}/\d{1,2})\b`)
	quotedWord = regexp.MustCompile(`["'` + "`" + `]([A-Za-z][A-Za-z0-9_-]*)["'` + "`" + `]`)
	awsRegion  = regexp.MustCompile(`\b([a-z]{2}(?:-[a-z]+)+-\d)\b`)
)

// Compile turns a natural-language rule into its executable form. The
// pattern table handles the recognizable rule families; anything else goes
// through one bounded model call. Callers cache the result with the policy.
func Compile(ctx context.Context, chatter llm.Chatter, naturalRule string) (*CompiledRule, error) {
	if rule, ok := compileFromPatterns(naturalRule); ok {
		return rule, nil
	}
	if chatter == nil {
		return nil, fmt.Errorf("compile policy: rule not recognized and no model configured")
	}

	response, err := chatter.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: compileSystemPrompt},
		{Role: llm.RoleUser, Content: naturalRule},
	}, llm.Options{Temperature: 0.1})
	if err != nil {
		return nil, fmt.Errorf("compile policy: %w", err)
	}

	raw, err := llm.ExtractJSONObject(response)
	if err != nil {
		return nil, fmt.Errorf("compile policy: %w", err)
	}
	var rule CompiledRule
	if err := json.Unmarshal([]byte(raw), &rule); err != nil {
		return nil, fmt.Errorf("compile policy: %w", err)
	}
	if rule.Empty() {
		return nil, fmt.Errorf("compile policy: model produced no supported rule kind")
	}
	return &rule, nil
}

// compileFromPatterns recognizes the common rule families directly from
// keywords. Returns ok=false when the rule needs the model.
func compileFromPatterns(rule string) (*CompiledRule, bool) {
	lower := strings.ToLower(rule)

	if mentionsAny(lower, "port") && mentionsAny(lower, "block", "deny", "forbid", "disallow", "prohibit", "close", "not allow", "must not") {
		ports := extractPorts(rule)
		if len(ports) > 0 {
			compiled := &BlockPortsRule{Ports: ports, CIDRs: cidrForm.FindAllString(rule, -1)}
			if mentionsAny(lower, "egress", "outbound") && !mentionsAny(lower, "ingress", "inbound") {
				compiled.Directions = []string{"egress"}
			}
			return &CompiledRule{BlockPorts: compiled}, true
		}
	}

	if mentionsAny(lower, "tag") && mentionsAny(lower, "require", "must", "mandatory", "missing", "need") {
		tags := extractTagNames(rule)
		if len(tags) > 0 {
			return &CompiledRule{RequiredTags: &RequiredTagsRule{Tags: tags}}, true
		}
	}

	if mentionsAny(lower, "region") && mentionsAny(lower, "only", "allow", "restrict", "limit") {
		regions := awsRegion.FindAllString(lower, -1)
		if len(regions) > 0 {
			return &CompiledRule{AllowedRegions: &AllowedRegionsRule{Regions: regions}}, true
		}
	}

	if mentionsAny(lower, "encrypt") && mentionsAny(lower, "require", "must", "mandatory", "at rest") {
		return &CompiledRule{RequiredEncryption: &RequiredEncryptionRule{}}, true
	}

	return nil, false
}

func mentionsAny(haystack string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func extractPorts(rule string) []int {
	var ports []int
	seen := map[int]bool{}
	for _, m := range portNumber.FindAllString(rule, -1) {
		p, err := strconv.Atoi(m)
		if err != nil || p < 1 || p > 65535 || seen[p] {
			continue
		}
		seen[p] = true
		ports = append(ports, p)
	}
	return ports
}

// extractTagNames prefers quoted tag names; otherwise it takes the
// identifier-looking tokens after the word "tag"/"tags".
func extractTagNames(rule string) []string {
	if quoted := quotedWord.FindAllStringSubmatch(rule, -1); len(quoted) > 0 {
		tags := make([]string, 0, len(quoted))
		for _, m := range quoted {
			tags = append(tags, m[1])
		}
		return tags
	}

	idx := strings.Index(strings.ToLower(rule), "tag")
	if idx < 0 {
		return nil
	}
	rest := rule[idx:]
	if colon := strings.IndexAny(rest, ":："); colon >= 0 {
		rest = rest[colon+1:]
	}
	var tags []string
	for _, token := range strings.FieldsFunc(rest, func(r rune) bool {
		return r == ',' || r == '、' || r == ' ' || r == '\t' || r == '\n' || r == '.' || r == ';'
	}) {
		token = strings.TrimSpace(token)
		if !isTagToken(token) {
			continue
		}
		tags = append(tags, token)
	}
	return tags
}

var tagToken = regexp.MustCompile(`^[A-Z][A-Za-z0-9_-]*$`)

// isTagToken keeps capitalized identifier-shaped words; prose stays out
// because rule text is lowercase-dominant.
func isTagToken(token string) bool {
	switch token {
	case "Tags", "Tag", "All", "Every", "Resources", "Resource":
		return false
	}
	return tagToken.MatchString(token)
}
