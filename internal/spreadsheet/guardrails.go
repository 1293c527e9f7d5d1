// Where: internal/spreadsheet/guardrails.go
// What: Ingestion guardrails that normalize known-bad property combinations.
// Why: Catching these at ingestion beats failing at terraform apply.
package spreadsheet

import (
	"fmt"
	"strings"
)

func (p *Parser) applyGuardrails(normalizedType, sheet string, row int, name string, props map[string]any) {
	switch normalizedType {
	case "azure_subnet":
		p.sanitizeSubnetServiceEndpoints(sheet, row, name, props)
	case "azure_sql":
		p.normalizeSQLProperties(sheet, row, name, props)
	case "azure_load_balancer":
		p.normalizeLoadBalancerProperties(props)
	}
}

// sanitizeSubnetServiceEndpoints keeps the canonical Microsoft.Sql endpoint
// and maps SQL-suffixed variants (Microsoft.Sql/servers) back to it.
func (p *Parser) sanitizeSubnetServiceEndpoints(sheet string, row int, name string, props map[string]any) {
	raw, ok := props["ServiceEndpoints"]
	if !ok || raw == nil {
		return
	}

	var endpoints []string
	switch t := raw.(type) {
	case string:
		for _, e := range strings.Split(t, ",") {
			if e = strings.TrimSpace(e); e != "" {
				endpoints = append(endpoints, e)
			}
		}
	case []any:
		for _, e := range t {
			if s := strings.TrimSpace(fmt.Sprint(e)); s != "" {
				endpoints = append(endpoints, s)
			}
		}
	default:
		endpoints = []string{strings.TrimSpace(fmt.Sprint(t))}
	}

	var kept []any
	var removed []string
	mapped := false
	hasSQL := false
	for _, endpoint := range endpoints {
		lower := strings.ToLower(endpoint)
		switch {
		case lower == "microsoft.sql":
			kept = append(kept, "Microsoft.Sql")
			hasSQL = true
		case strings.HasPrefix(lower, "microsoft.sql/"):
			removed = append(removed, endpoint)
			mapped = true
		default:
			kept = append(kept, endpoint)
		}
	}

	if len(removed) > 0 {
		p.warnings = append(p.warnings, fmt.Sprintf(
			"sheet %s, row %d, resource %s: removed unsupported SQL ServiceEndpoints values %v",
			sheet, row, name, removed))
	}
	if mapped && !hasSQL {
		kept = append(kept, "Microsoft.Sql")
		p.warnings = append(p.warnings, fmt.Sprintf(
			"sheet %s, row %d, resource %s: mapped invalid SQL ServiceEndpoints values to Microsoft.Sql",
			sheet, row, name))
	}

	if len(kept) > 0 {
		props["ServiceEndpoints"] = kept
	} else {
		delete(props, "ServiceEndpoints")
	}
}

// normalizeSQLProperties drops network rules that conflict with disabled
// public access and disables auditing without a valid blob endpoint.
func (p *Parser) normalizeSQLProperties(sheet string, row int, name string, props map[string]any) {
	access := strings.ToLower(strings.TrimSpace(fmt.Sprint(valueOr(props, "PublicNetworkAccess", "true"))))
	disabled := access == "false" || access == "disabled" || access == "deny" || access == "no" || access == "0"

	if disabled {
		if props["FirewallRules"] != nil {
			delete(props, "FirewallRules")
			p.warnings = append(p.warnings, fmt.Sprintf(
				"sheet %s, row %d, resource %s: removed FirewallRules because PublicNetworkAccess is disabled",
				sheet, row, name))
		}
		if props["VirtualNetworkRules"] != nil {
			delete(props, "VirtualNetworkRules")
			p.warnings = append(p.warnings, fmt.Sprintf(
				"sheet %s, row %d, resource %s: removed VirtualNetworkRules because PublicNetworkAccess is disabled",
				sheet, row, name))
		}
	}

	auditing := strings.ToLower(strings.TrimSpace(fmt.Sprint(valueOr(props, "AuditingEnabled", "false"))))
	if auditing == "true" || auditing == "enabled" || auditing == "yes" || auditing == "1" {
		endpoint := strings.TrimSpace(fmt.Sprint(valueOr(props, "AuditingStorageEndpoint", "")))
		validBlob := strings.HasPrefix(endpoint, "https://") && strings.Contains(endpoint, ".blob.core.windows.net")
		if !validBlob {
			props["AuditingEnabled"] = "false"
			p.warnings = append(p.warnings, fmt.Sprintf(
				"sheet %s, row %d, resource %s: disabled AuditingEnabled because AuditingStorageEndpoint is missing or invalid",
				sheet, row, name))
		}
	}
}

// normalizeLoadBalancerProperties canonicalizes property aliases and the LB
// rule protocol so template rendering stays consistent.
func (p *Parser) normalizeLoadBalancerProperties(props map[string]any) {
	aliases := map[string]string{
		"PrivateIPAllocation":       "PrivateIPAddressAllocation",
		"HealthProbeNumberOfProbes": "HealthProbeThreshold",
		"EnableFloatingIP":          "LBRuleEnableFloatingIP",
		"IdleTimeoutMinutes":        "LBRuleIdleTimeout",
		"DisableOutboundSnat":       "LBRuleDisableOutboundSnat",
	}
	for alias, canonical := range aliases {
		if _, has := props[canonical]; !has {
			if v, ok := props[alias]; ok {
				props[canonical] = v
			}
		}
	}

	protocol, ok := props["LBRuleProtocol"].(string)
	if !ok {
		return
	}
	// Azure LB rules only support L4 protocols; common L7 input maps to Tcp.
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "all":
		props["LBRuleProtocol"] = "All"
	case "tcp":
		props["LBRuleProtocol"] = "Tcp"
	case "udp":
		props["LBRuleProtocol"] = "Udp"
	case "http", "https":
		props["LBRuleProtocol"] = "Tcp"
		p.warnings = append(p.warnings, fmt.Sprintf(
			"Azure LoadBalancer LBRuleProtocol only supports Tcp/Udp/All; mapped %q to Tcp", protocol))
	}
}

func valueOr(props map[string]any, key string, fallback any) any {
	if v, ok := props[key]; ok && v != nil {
		return v
	}
	return fallback
}
