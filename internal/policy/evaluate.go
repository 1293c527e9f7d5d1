// Where: internal/policy/evaluate.go
// What: Deterministic evaluation of compiled rules over canonical resources.
// Why: For fixed resources and policies two evaluations must agree exactly.
package policy

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/opsloom/iacpilot/internal/resource"
)

// tagExemptTypes are Terraform resource kinds that cannot carry tags; a
// required-tags rule skips the canonical types that render to them.
var tagExemptTypes = map[string]bool{
	"azure_subnet": true,
}

// openWorldPrefixes are the spellings Azure uses for an any-source prefix.
var openWorldPrefixes = map[string]bool{
	"*":         true,
	"0.0.0.0/0": true,
	"internet":  true,
	"any":       true,
}

// Result is the outcome of one compliance evaluation.
type Result struct {
	Passed         bool
	Violations     []Violation // error severity
	Warnings       []Violation // warning severity
	CheckedPolicies int
}

// Evaluate applies every enabled, platform-matching policy to every
// platform-matching resource. Error-severity violations fail the result;
// warnings are reported without blocking.
func Evaluate(policies []Policy, resources []resource.Resource) Result {
	result := Result{Passed: true}
	for _, p := range policies {
		if !p.Enabled || p.Compiled.Empty() {
			continue
		}
		result.CheckedPolicies++
		for _, r := range resources {
			r.Normalize()
			if !p.AppliesTo(r.Platform) {
				continue
			}
			for _, v := range evaluateOne(p, r) {
				if v.Severity == SeverityWarning {
					result.Warnings = append(result.Warnings, v)
				} else {
					result.Violations = append(result.Violations, v)
				}
			}
		}
	}
	result.Passed = len(result.Violations) == 0
	return result
}

// evaluateOne runs every compiled clause against one resource. Each clause
// is a pure function Resource -> violations.
func evaluateOne(p Policy, r resource.Resource) []Violation {
	var out []Violation
	rule := p.Compiled
	if rule.BlockPorts != nil {
		out = append(out, evalBlockPorts(p, *rule.BlockPorts, r)...)
	}
	if rule.RequiredTags != nil {
		out = append(out, evalRequiredTags(p, *rule.RequiredTags, r)...)
	}
	if rule.AllowedRegions != nil {
		out = append(out, evalAllowedRegions(p, *rule.AllowedRegions, r)...)
	}
	if rule.RequiredEncryption != nil {
		out = append(out, evalRequiredEncryption(p, r)...)
	}
	return out
}

func violation(p Policy, r resource.Resource, detail string) Violation {
	return Violation{
		PolicyID:     p.ID,
		PolicyName:   p.Name,
		ResourceName: r.Name,
		Severity:     p.Severity,
		Detail:       detail,
	}
}

func evalBlockPorts(p Policy, rule BlockPortsRule, r resource.Resource) []Violation {
	blocked := map[int]bool{}
	for _, port := range rule.Ports {
		blocked[port] = true
	}
	cidrs := rule.CIDRs
	if len(cidrs) == 0 {
		cidrs = []string{"0.0.0.0/0"}
	}
	directions := rule.Directions
	if len(directions) == 0 {
		directions = []string{"ingress"}
	}

	var out []Violation
	for _, direction := range directions {
		switch strings.ToLower(direction) {
		case "ingress":
			out = append(out, checkAWSRules(p, r, "IngressRules", blocked, cidrs)...)
			out = append(out, checkAzureRules(p, r, "inbound", blocked, cidrs)...)
		case "egress":
			out = append(out, checkAWSRules(p, r, "EgressRules", blocked, cidrs)...)
			out = append(out, checkAzureRules(p, r, "outbound", blocked, cidrs)...)
		}
	}
	return out
}

// checkAWSRules walks security-group rule entries shaped
// {"to_port": 22, "cidr_blocks": ["0.0.0.0/0"]}.
func checkAWSRules(p Policy, r resource.Resource, key string, blocked map[int]bool, cidrs []string) []Violation {
	rules, ok := r.Properties[key].([]any)
	if !ok {
		return nil
	}
	var out []Violation
	for _, raw := range rules {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		port, ok := asInt(entry["to_port"])
		if !ok || !blocked[port] {
			continue
		}
		for _, open := range toStrings(entry["cidr_blocks"]) {
			if cidrMatches(open, cidrs) {
				out = append(out, violation(p, r, fmt.Sprintf(
					"port %d is blocked by policy but open to %s", port, open)))
				break
			}
		}
	}
	return out
}

// checkAzureRules walks NSG rule entries, honoring allow/deny, direction,
// and single-port or low-high range forms of destination_port_range.
func checkAzureRules(p Policy, r resource.Resource, direction string, blocked map[int]bool, cidrs []string) []Violation {
	rules, ok := r.Properties["SecurityRules"].([]any)
	if !ok {
		return nil
	}
	var out []Violation
	for _, raw := range rules {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if !strings.EqualFold(str(entry["direction"]), direction) {
			continue
		}
		if !strings.EqualFold(str(entry["access"]), "allow") {
			continue
		}
		source := str(entry["source_address_prefix"])
		if !openPrefixMatches(source, cidrs) {
			continue
		}
		for _, port := range portsInRange(str(entry["destination_port_range"])) {
			if blocked[port] {
				out = append(out, violation(p, r, fmt.Sprintf(
					"port %d (rule: %s) is blocked by policy but open to %s",
					port, str(entry["name"]), source)))
				break
			}
		}
	}
	return out
}

func evalRequiredTags(p Policy, rule RequiredTagsRule, r resource.Resource) []Violation {
	if tagExemptTypes[r.Type] {
		return nil
	}
	present := map[string]bool{}
	for k := range r.Tags() {
		present[strings.ToLower(k)] = true
	}
	var missing []string
	for _, tag := range rule.Tags {
		if !present[strings.ToLower(tag)] {
			missing = append(missing, tag)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return []Violation{violation(p, r, "missing required tag(s): "+strings.Join(missing, ", "))}
}

func evalAllowedRegions(p Policy, rule AllowedRegionsRule, r resource.Resource) []Violation {
	region := r.StringProp("Region")
	if region == "" {
		region = r.StringProp("Location")
	}
	if region == "" || len(rule.Regions) == 0 {
		return nil
	}
	for _, allowed := range rule.Regions {
		if strings.EqualFold(normalizeRegion(allowed), normalizeRegion(region)) {
			return nil
		}
	}
	return []Violation{violation(p, r, fmt.Sprintf("region %q is not in the allowed list", region))}
}

func evalRequiredEncryption(p Policy, r resource.Resource) []Violation {
	switch r.Type {
	case "aws_s3":
		if r.StringProp("Encryption") == "" {
			return []Violation{violation(p, r, "S3 bucket has no server-side encryption configured")}
		}
	case "aws_rds":
		if !r.BoolProp("StorageEncrypted") {
			return []Violation{violation(p, r, "RDS instance storage is not encrypted")}
		}
	}
	return nil
}

func normalizeRegion(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "")
}

func cidrMatches(open string, policyCIDRs []string) bool {
	for _, c := range policyCIDRs {
		if strings.EqualFold(strings.TrimSpace(c), strings.TrimSpace(open)) {
			return true
		}
	}
	return false
}

func openPrefixMatches(source string, policyCIDRs []string) bool {
	lower := strings.ToLower(strings.TrimSpace(source))
	if openWorldPrefixes[lower] {
		// An any-source prefix matches whenever the policy targets the
		// open world.
		for _, c := range policyCIDRs {
			if c == "0.0.0.0/0" {
				return true
			}
		}
	}
	return cidrMatches(source, policyCIDRs)
}

// portsInRange expands "443" or "80-443" into individual ports; "*" and
// unparseable values yield nothing.
func portsInRange(spec string) []int {
	spec = strings.TrimSpace(spec)
	if spec == "" || spec == "*" {
		return nil
	}
	if low, high, ok := strings.Cut(spec, "-"); ok {
		lo, err1 := strconv.Atoi(strings.TrimSpace(low))
		hi, err2 := strconv.Atoi(strings.TrimSpace(high))
		if err1 != nil || err2 != nil || lo > hi {
			return nil
		}
		ports := make([]int, 0, hi-lo+1)
		for p := lo; p <= hi; p++ {
			ports = append(ports, p)
		}
		return ports
	}
	p, err := strconv.Atoi(spec)
	if err != nil {
		return nil
	}
	return []int{p}
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	case string:
		p, err := strconv.Atoi(strings.TrimSpace(t))
		return p, err == nil
	}
	return 0, false
}

func toStrings(v any) []string {
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, str(item))
		}
		return out
	case []string:
		return t
	case string:
		return []string{t}
	}
	return nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
