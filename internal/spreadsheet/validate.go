// Where: internal/spreadsheet/validate.go
// What: Per-type value validation beyond required-field presence.
// Why: Enum and range mistakes in a workbook surface as warnings at upload.
package spreadsheet

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/opsloom/iacpilot/internal/resource"
)

var cidrPattern = regexp.MustCompile(`^([0-9]{1,3}\.){3}[0-9]{1,3}/([0-9]|[1-2][0-9]|3[0-2])$`)

// existsFlags lists the y/n dispatch flags per normalized type.
var existsFlags = map[string][]string{
	"aws_ec2":              {"VPCExists", "SubnetExists", "SecurityGroupsExist"},
	"aws_subnet":           {"VPCExists"},
	"aws_security_group":   {"VPCExists"},
	"aws_rds":              {"VPCExists", "SecurityGroupsExist"},
	"aws_internet_gateway": {"VPCExists"},
	"aws_nat_gateway":      {"SubnetExists", "InternetGatewayExists"},
	"aws_elastic_ip":       {"InstanceExists", "NetworkInterfaceExists"},
	"aws_load_balancer":    {"VPCExists", "SubnetExists", "SecurityGroupsExist", "ListenerTargetGroupExists"},
	"aws_target_group":     {"VPCExists"},
	"azure_vm":             {"ResourceGroupExists", "VNetExists", "SubnetExists", "NSGExists"},
	"azure_vnet":           {"ResourceGroupExists"},
	"azure_subnet":         {"ResourceGroupExists", "VNetExists"},
	"azure_nsg":            {"ResourceGroupExists"},
	"azure_storage":        {"ResourceGroupExists"},
	"azure_sql":            {"ResourceGroupExists", "VNetExists", "SubnetExists"},
	"azure_public_ip":      {"ResourceGroupExists"},
	"azure_nat_gateway":    {"ResourceGroupExists", "PublicIPExists", "SubnetExists"},
	"azure_load_balancer":  {"ResourceGroupExists", "PublicIPExists", "SubnetExists"},
}

type enumCheck struct {
	field   string
	allowed []string
}

var enumChecks = map[string][]enumCheck{
	"aws_load_balancer": {
		{"Type", []string{"application", "network"}},
		{"Scheme", []string{"internet-facing", "internal"}},
		{"IPAddressType", []string{"ipv4", "dualstack"}},
		{"ListenerProtocol", []string{"HTTP", "HTTPS", "TCP", "UDP", "TLS"}},
	},
	"aws_target_group": {
		{"Protocol", []string{"HTTP", "HTTPS", "TCP", "UDP", "TLS", "GENEVE"}},
		{"TargetType", []string{"instance", "ip", "lambda", "alb"}},
		{"HealthCheckProtocol", []string{"HTTP", "HTTPS", "TCP"}},
	},
	"aws_nat_gateway": {
		{"ConnectivityType", []string{"public", "private"}},
	},
	"aws_elastic_ip": {
		{"Domain", []string{"vpc", "standard"}},
	},
	"azure_public_ip": {
		{"AllocationMethod", []string{"Static", "Dynamic"}},
		{"SKU", []string{"Basic", "Standard"}},
	},
	"azure_load_balancer": {
		{"SKU", []string{"Basic", "Standard"}},
		{"HealthProbeProtocol", []string{"Tcp", "Http", "Https"}},
		{"LBRuleProtocol", []string{"Tcp", "Udp", "All"}},
	},
}

type rangeCheck struct {
	field    string
	min, max int
}

var rangeChecks = map[string][]rangeCheck{
	"aws_target_group": {
		{"Port", 1, 65535},
		{"HealthCheckInterval", 5, 300},
		{"HealthyThreshold", 2, 10},
		{"UnhealthyThreshold", 2, 10},
		{"HealthCheckTimeout", 2, 120},
		{"DeregistrationDelay", 0, 3600},
		{"SlowStart", 30, 900},
	},
	"aws_load_balancer": {
		{"IdleTimeout", 1, 4000},
	},
	"azure_nat_gateway": {
		{"IdleTimeoutMinutes", 4, 120},
	},
}

// validateResource checks required fields, exists-flag values, enums,
// ranges, and CIDR syntax for one resource.
func validateResource(r resource.Resource) []string {
	var errs []string

	for _, field := range resource.MissingFields(r) {
		errs = append(errs, "missing required field: "+field)
	}

	for _, flag := range existsFlags[r.Type] {
		v, ok := r.Properties[flag]
		if !ok || v == nil {
			continue
		}
		s := strings.ToLower(strings.TrimSpace(fmt.Sprint(v)))
		if s != "y" && s != "n" && s != "true" && s != "false" {
			errs = append(errs, flag+" must be 'y' or 'n'")
		}
	}

	for _, check := range enumChecks[r.Type] {
		v := r.StringProp(check.field)
		if v == "" {
			continue
		}
		if !containsString(check.allowed, v) {
			errs = append(errs, fmt.Sprintf("%s must be one of %s", check.field, strings.Join(check.allowed, ", ")))
		}
	}

	for _, check := range rangeChecks[r.Type] {
		raw := r.StringProp(check.field)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			errs = append(errs, check.field+" must be a valid integer")
			continue
		}
		if n < check.min || n > check.max {
			errs = append(errs, fmt.Sprintf("%s must be between %d and %d", check.field, check.min, check.max))
		}
	}

	if cidr := r.StringProp("CIDR_Block"); cidr != "" && !cidrPattern.MatchString(cidr) {
		errs = append(errs, "invalid CIDR format: "+cidr)
	}

	return errs
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
