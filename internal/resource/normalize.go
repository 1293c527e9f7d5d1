// Where: internal/resource/normalize.go
// What: Resource type aliasing and safe identifier derivation.
// Why: Collapse every input spelling to one canonical <platform>_<kind> form.
package resource

import (
	"regexp"
	"strings"
)

// typeAliases is the authoritative alias table. Keys are lowercased with
// spaces replaced by underscores before lookup.
var typeAliases = map[string]string{
	// AWS
	"ec2":                  "aws_ec2",
	"aws_ec2":              "aws_ec2",
	"s3":                   "aws_s3",
	"aws_s3":               "aws_s3",
	"vpc":                  "aws_vpc",
	"aws_vpc":              "aws_vpc",
	"rds":                  "aws_rds",
	"aws_rds":              "aws_rds",
	"aws_subnet":           "aws_subnet",
	"security_group":       "aws_security_group",
	"securitygroup":        "aws_security_group",
	"aws_security_group":   "aws_security_group",
	"aws_securitygroup":    "aws_security_group",
	"internet_gateway":     "aws_internet_gateway",
	"internetgateway":      "aws_internet_gateway",
	"igw":                  "aws_internet_gateway",
	"aws_internetgateway":  "aws_internet_gateway",
	"aws_internet_gateway": "aws_internet_gateway",
	"elastic_ip":           "aws_elastic_ip",
	"elasticip":            "aws_elastic_ip",
	"eip":                  "aws_elastic_ip",
	"aws_elasticip":        "aws_elastic_ip",
	"aws_elastic_ip":       "aws_elastic_ip",
	"target_group":         "aws_target_group",
	"targetgroup":          "aws_target_group",
	"aws_targetgroup":      "aws_target_group",
	"aws_target_group":     "aws_target_group",
	"aws_natgateway":       "aws_nat_gateway",
	"aws_nat_gateway":      "aws_nat_gateway",
	"aws_loadbalancer":     "aws_load_balancer",
	"aws_load_balancer":    "aws_load_balancer",
	"alb":                  "aws_load_balancer",
	"nlb":                  "aws_load_balancer",

	// Azure
	"vm":                    "azure_vm",
	"azure_vm":              "azure_vm",
	"virtual_machine":       "azure_vm",
	"vnet":                  "azure_vnet",
	"azure_vnet":            "azure_vnet",
	"virtual_network":       "azure_vnet",
	"azure_subnet":          "azure_subnet",
	"nsg":                   "azure_nsg",
	"azure_nsg":             "azure_nsg",
	"network_security_group": "azure_nsg",
	"storage":                "azure_storage",
	"storage_account":        "azure_storage",
	"azure_storage":          "azure_storage",
	"sql":                    "azure_sql",
	"azure_sql":              "azure_sql",
	"resource_group":         "azure_resource_group",
	"resourcegroup":          "azure_resource_group",
	"azure_resourcegroup":    "azure_resource_group",
	"azure_resource_group":   "azure_resource_group",
	"public_ip":              "azure_public_ip",
	"publicip":               "azure_public_ip",
	"azure_publicip":         "azure_public_ip",
	"azure_public_ip":        "azure_public_ip",
	"azure_natgateway":       "azure_nat_gateway",
	"azure_nat_gateway":      "azure_nat_gateway",
	"azure_loadbalancer":     "azure_load_balancer",
	"azure_load_balancer":    "azure_load_balancer",
}

// ambiguous kinds resolve differently per platform.
var platformScopedAliases = map[Platform]map[string]string{
	PlatformAWS: {
		"subnet":        "aws_subnet",
		"nat_gateway":   "aws_nat_gateway",
		"natgateway":    "aws_nat_gateway",
		"load_balancer": "aws_load_balancer",
		"loadbalancer":  "aws_load_balancer",
		"lb":            "aws_load_balancer",
	},
	PlatformAzure: {
		"subnet":        "azure_subnet",
		"nat_gateway":   "azure_nat_gateway",
		"natgateway":    "azure_nat_gateway",
		"load_balancer": "azure_load_balancer",
		"loadbalancer":  "azure_load_balancer",
		"lb":            "azure_load_balancer",
	},
}

// NormalizeType collapses a raw type spelling to the canonical form. The
// platform hint settles ambiguous kinds (subnet, load balancer); unknown
// types keep their lowercased, underscore-joined input form (prefixed with
// the platform when a platform hint is given) so callers can flag them.
func NormalizeType(raw string, platform Platform) string {
	if raw == "" {
		return ""
	}
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), " ", "_")
	if scoped, ok := platformScopedAliases[platform]; ok {
		if canonical, ok := scoped[key]; ok {
			return canonical
		}
	}
	if canonical, ok := typeAliases[key]; ok {
		return canonical
	}
	// Ambiguous kind with no platform hint: default to the AWS reading,
	// matching how bare "subnet" is treated on ingestion.
	if canonical, ok := platformScopedAliases[PlatformAWS][key]; ok {
		return canonical
	}
	if platform != "" && platform != PlatformAll && !strings.HasPrefix(key, string(platform)+"_") {
		prefixed := string(platform) + "_" + key
		if canonical, ok := typeAliases[prefixed]; ok {
			return canonical
		}
		return prefixed
	}
	return key
}

// Known reports whether a normalized type is covered by the alias table.
func Known(normalized string) bool {
	for _, v := range typeAliases {
		if v == normalized {
			return true
		}
	}
	for _, scoped := range platformScopedAliases {
		for _, v := range scoped {
			if v == normalized {
				return true
			}
		}
	}
	return false
}

// PlatformForType derives the platform from a normalized type prefix.
func PlatformForType(normalized string) Platform {
	switch {
	case strings.HasPrefix(normalized, "aws"):
		return PlatformAWS
	case strings.HasPrefix(normalized, "azure"):
		return PlatformAzure
	}
	return ""
}

var nonIdentifier = regexp.MustCompile(`[^a-z0-9_]+`)

// SafeID derives a Terraform-safe identifier from a logical name: lowercase,
// [a-z0-9_] only, and a res_ prefix when the result does not start with a
// letter. The safe form is derived on read and never stored.
func SafeID(name string) string {
	id := strings.ToLower(strings.TrimSpace(name))
	id = nonIdentifier.ReplaceAllString(id, "_")
	id = strings.Trim(id, "_")
	if id == "" {
		return "res_unnamed"
	}
	if id[0] < 'a' || id[0] > 'z' {
		id = "res_" + id
	}
	return id
}
