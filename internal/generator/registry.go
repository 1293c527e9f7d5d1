// Where: internal/generator/registry.go
// What: The (platform,type) -> template registry.
// Why: Adding a resource kind means adding a template, not engine code.
package generator

import (
	"fmt"
	"sort"
)

// templateRegistry maps normalized resource types to template files under
// templates/. A type missing here is a hard error surfaced with the full
// registry so the gap is obvious.
var templateRegistry = map[string]string{
	// AWS
	"aws_vpc":              "aws/vpc.tf.tmpl",
	"aws_subnet":           "aws/subnet.tf.tmpl",
	"aws_security_group":   "aws/security_group.tf.tmpl",
	"aws_ec2":              "aws/ec2.tf.tmpl",
	"aws_s3":               "aws/s3.tf.tmpl",
	"aws_rds":              "aws/rds.tf.tmpl",
	"aws_internet_gateway": "aws/internet_gateway.tf.tmpl",
	"aws_nat_gateway":      "aws/nat_gateway.tf.tmpl",
	"aws_elastic_ip":       "aws/elastic_ip.tf.tmpl",
	"aws_load_balancer":    "aws/load_balancer.tf.tmpl",
	"aws_target_group":     "aws/target_group.tf.tmpl",

	// Azure
	"azure_resource_group": "azure/resource_group.tf.tmpl",
	"azure_vnet":           "azure/vnet.tf.tmpl",
	"azure_subnet":         "azure/subnet.tf.tmpl",
	"azure_nsg":            "azure/nsg.tf.tmpl",
	"azure_vm":             "azure/vm.tf.tmpl",
	"azure_storage":        "azure/storage.tf.tmpl",
	"azure_sql":            "azure/sql.tf.tmpl",
	"azure_public_ip":      "azure/public_ip.tf.tmpl",
	"azure_nat_gateway":    "azure/nat_gateway.tf.tmpl",
	"azure_load_balancer":  "azure/load_balancer.tf.tmpl",
}

// RegisteredTypes lists the registry keys in sorted order for error reports.
func RegisteredTypes() []string {
	keys := make([]string, 0, len(templateRegistry))
	for k := range templateRegistry {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// TemplateError reports a missing template or a render failure for one
// resource, carrying enough context to fix the input or the registry.
type TemplateError struct {
	ResourceName string
	Platform     string
	Type         string
	Err          error
}

func (e *TemplateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("template for %s %s (resource %q): %v", e.Platform, e.Type, e.ResourceName, e.Err)
	}
	return fmt.Sprintf("no template registered for %s %s (resource %q); available: %v",
		e.Platform, e.Type, e.ResourceName, RegisteredTypes())
}

func (e *TemplateError) Unwrap() error { return e.Err }
