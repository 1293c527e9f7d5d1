// Where: internal/resource/requirements.go
// What: Per-type required-field tables driving the collection stage.
// Why: Missing-field detection has to be deterministic, not model-judged.
package resource

import "sort"

// requiredFields lists the fields each normalized type must carry before
// code generation can proceed. Optional fields get safe defaults downstream.
var requiredFields = map[string][]string{
	"aws_ec2":              {"Region", "InstanceType", "AMI_ID"},
	"aws_vpc":              {"Region", "CIDR_Block"},
	"aws_subnet":           {"VPC", "CIDR_Block"},
	"aws_security_group":   {"VPC", "IngressRules"},
	"aws_s3":               {"Region", "BucketName"},
	"aws_rds":              {"Region", "Engine", "InstanceClass", "AllocatedStorage", "DBName", "MasterUsername"},
	"aws_internet_gateway": {"Region", "VPC"},
	"aws_nat_gateway":      {"Region", "Subnet"},
	"aws_elastic_ip":       {"Region"},
	"aws_load_balancer":    {"Region", "Type", "Scheme", "VPC"},
	"aws_target_group":     {"Region", "Port", "Protocol", "VPC", "TargetType"},

	"azure_resource_group": {"Location"},
	"azure_vm":             {"ResourceGroup", "Location", "VMSize", "OSType", "AdminUsername"},
	"azure_vnet":           {"ResourceGroup", "Location", "AddressSpace"},
	"azure_subnet":         {"ResourceGroup", "VNet", "AddressPrefix"},
	"azure_nsg":            {"ResourceGroup", "Location"},
	"azure_storage":        {"ResourceGroup", "Location", "StorageAccountName"},
	"azure_sql":            {"ResourceGroup", "Location", "ServerName", "ServerAdminLogin"},
	"azure_public_ip":      {"ResourceGroup", "Location", "AllocationMethod", "SKU"},
	"azure_nat_gateway":    {"ResourceGroup", "Location"},
	"azure_load_balancer":  {"ResourceGroup", "Location", "SKU", "FrontendIPName"},
}

// RequiredFields returns the required-field list for a normalized type.
// Unknown types require nothing; the generator reports them instead.
func RequiredFields(normalizedType string) []string {
	return requiredFields[normalizedType]
}

// MissingFields returns the required fields that are absent or empty on the
// resource, in stable order.
func MissingFields(r Resource) []string {
	r.Normalize()
	var missing []string
	for _, field := range RequiredFields(r.Type) {
		if isEmptyValue(r.Properties[field]) {
			missing = append(missing, field)
		}
	}
	sort.Strings(missing)
	return missing
}

func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}
