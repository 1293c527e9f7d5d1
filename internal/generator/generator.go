// Where: internal/generator/generator.go
// What: Assemble a complete terraform project from canonical resources.
// Why: One deterministic bundle: provider, variables, main, outputs, README.
package generator

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/opsloom/iacpilot/internal/resource"
)

// ErrEmptyOutput marks a generation that technically succeeded but produced
// an implausibly small main.tf. Treated like a template failure.
var ErrEmptyOutput = errors.New("generated main.tf is empty or suspiciously short")

// minMainTFBytes is the floor below which a populated main.tf is considered
// broken output.
const minMainTFBytes = 50

// Generate renders the full file bundle for the resource list. Output is
// deterministic for a fixed input: resource blocks follow list order and
// every synthesized section sorts its keys.
func Generate(resources []resource.Resource) (map[string]string, error) {
	if len(resources) == 0 {
		return nil, fmt.Errorf("no resources to generate code for")
	}
	normalized := make([]resource.Resource, len(resources))
	copy(normalized, resources)
	for i := range normalized {
		normalized[i].Normalize()
	}

	var mainTF strings.Builder
	mainTF.WriteString("# Auto-generated Terraform configuration\n\n")

	for _, rg := range resourceGroupsToCreate(normalized) {
		mainTF.WriteString(rg)
		mainTF.WriteString("\n")
	}

	for _, r := range normalized {
		block, err := renderResource(r)
		if err != nil {
			return nil, err
		}
		mainTF.WriteString(block)
		mainTF.WriteString("\n")
	}

	files := map[string]string{
		"provider.tf":  generateProvider(normalized),
		"variables.tf": generateVariables(normalized),
		"main.tf":      mainTF.String(),
		"outputs.tf":   generateOutputs(normalized),
		"README.md":    generateReadme(normalized),
	}

	if hasPlatform(normalized, resource.PlatformAzure) {
		files["main.tf"] = FixAzureCompatibility(files["main.tf"])
	}

	if len(strings.TrimSpace(files["main.tf"])) < minMainTFBytes {
		return nil, ErrEmptyOutput
	}
	return files, nil
}

// resourceGroupsToCreate emits one azurerm_resource_group block per distinct
// (name, location) referenced by an Azure resource whose group does not
// already exist. azure_resource_group resources render through their own
// template and are skipped here.
func resourceGroupsToCreate(resources []resource.Resource) []string {
	type group struct{ name, location string }
	seen := map[group]bool{}
	explicit := map[string]bool{}
	for _, r := range resources {
		if r.Type == "azure_resource_group" {
			explicit[resource.SafeID(r.Name)] = true
		}
	}

	var groups []group
	for _, r := range resources {
		if r.Platform != resource.PlatformAzure || r.Type == "azure_resource_group" {
			continue
		}
		name := r.StringProp("ResourceGroup")
		if name == "" || r.Exists("ResourceGroupExists") || explicit[resource.SafeID(name)] {
			continue
		}
		location := r.StringProp("Location")
		if location == "" {
			location = "eastus"
		}
		g := group{name: name, location: location}
		if seen[g] {
			continue
		}
		seen[g] = true
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].name < groups[j].name })

	blocks := make([]string, 0, len(groups))
	for _, g := range groups {
		blocks = append(blocks, fmt.Sprintf(
			"resource \"azurerm_resource_group\" \"%s\" {\n  name     = %q\n  location = %q\n}\n",
			resource.SafeID(g.name), g.name, g.location))
	}
	return blocks
}

// generateProvider declares only the providers for platforms actually
// present in the resource list.
func generateProvider(resources []resource.Resource) string {
	var b strings.Builder
	b.WriteString("# Provider Configuration\n\n")

	var required []string
	if hasPlatform(resources, resource.PlatformAWS) {
		required = append(required, "    aws = {\n      source  = \"hashicorp/aws\"\n      version = \"~> 5.0\"\n    }\n")
	}
	if hasPlatform(resources, resource.PlatformAzure) {
		required = append(required, "    azurerm = {\n      source  = \"hashicorp/azurerm\"\n      version = \"~> 4.0\"\n    }\n")
	}
	if len(required) > 0 {
		b.WriteString("terraform {\n  required_providers {\n")
		for _, block := range required {
			b.WriteString(block)
		}
		b.WriteString("  }\n}\n\n")
	}

	if hasPlatform(resources, resource.PlatformAWS) {
		b.WriteString("provider \"aws\" {\n  region = var.aws_region\n}\n\n")
	}
	if hasPlatform(resources, resource.PlatformAzure) {
		b.WriteString("provider \"azurerm\" {\n  features {}\n  subscription_id = var.azure_subscription_id\n}\n\n")
	}
	return b.String()
}

// generateVariables declares the provider-level variables referenced across
// blocks. Resource attribute values stay literal by design.
func generateVariables(resources []resource.Resource) string {
	var b strings.Builder
	b.WriteString("# Variables\n\n")

	if hasPlatform(resources, resource.PlatformAWS) {
		region := "us-east-1"
		for _, r := range resources {
			if r.Platform == resource.PlatformAWS {
				if v := r.StringProp("Region"); v != "" {
					region = v
					break
				}
			}
		}
		fmt.Fprintf(&b, "variable \"aws_region\" {\n  description = \"AWS region for resources\"\n  type        = string\n  default     = %q\n}\n\n", region)
	}
	if hasPlatform(resources, resource.PlatformAzure) {
		b.WriteString("variable \"azure_subscription_id\" {\n  description = \"Azure Subscription ID\"\n  type        = string\n}\n\n")
	}
	return b.String()
}

// outputSpec describes one exported attribute for a resource type.
type outputSpec struct {
	suffix      string
	description string
	attribute   string
}

// outputRegistry exports the primary identifiers per normalized type.
var outputRegistry = map[string][]outputSpec{
	"aws_vpc": {
		{"vpc_id", "ID of VPC %s", "aws_vpc.%s.id"},
		{"vpc_cidr", "CIDR block of VPC %s", "aws_vpc.%s.cidr_block"},
	},
	"aws_subnet": {
		{"subnet_id", "ID of Subnet %s", "aws_subnet.%s.id"},
	},
	"aws_security_group": {
		{"security_group_id", "ID of Security Group %s", "aws_security_group.%s.id"},
	},
	"aws_ec2": {
		{"instance_id", "Instance ID of EC2 %s", "aws_instance.%s.id"},
		{"private_ip", "Private IP of EC2 %s", "aws_instance.%s.private_ip"},
		{"public_ip", "Public IP of EC2 %s (if assigned)", "aws_instance.%s.public_ip"},
	},
	"aws_s3": {
		{"bucket_name", "Name of S3 bucket %s", "aws_s3_bucket.%s.id"},
		{"bucket_arn", "ARN of S3 bucket %s", "aws_s3_bucket.%s.arn"},
	},
	"aws_rds": {
		{"rds_endpoint", "Endpoint of RDS instance %s", "aws_db_instance.%s.endpoint"},
		{"rds_port", "Port of RDS instance %s", "aws_db_instance.%s.port"},
	},
	"aws_internet_gateway": {
		{"internet_gateway_id", "ID of Internet Gateway %s", "aws_internet_gateway.%s.id"},
	},
	"aws_nat_gateway": {
		{"nat_gateway_id", "ID of NAT Gateway %s", "aws_nat_gateway.%s.id"},
	},
	"aws_elastic_ip": {
		{"eip_address", "Address of Elastic IP %s", "aws_eip.%s.public_ip"},
	},
	"aws_load_balancer": {
		{"lb_arn", "ARN of Load Balancer %s", "aws_lb.%s.arn"},
		{"lb_dns_name", "DNS name of Load Balancer %s", "aws_lb.%s.dns_name"},
	},
	"aws_target_group": {
		{"target_group_arn", "ARN of Target Group %s", "aws_lb_target_group.%s.arn"},
	},
	"azure_resource_group": {
		{"resource_group_id", "ID of Resource Group %s", "azurerm_resource_group.%s.id"},
	},
	"azure_vnet": {
		{"vnet_id", "ID of Azure VNet %s", "azurerm_virtual_network.%s.id"},
		{"address_space", "Address space of Azure VNet %s", "azurerm_virtual_network.%s.address_space"},
	},
	"azure_subnet": {
		{"subnet_id", "ID of Azure Subnet %s", "azurerm_subnet.%s.id"},
	},
	"azure_nsg": {
		{"nsg_id", "ID of Azure NSG %s", "azurerm_network_security_group.%s.id"},
	},
	"azure_storage": {
		{"storage_account_id", "ID of Azure Storage Account %s", "azurerm_storage_account.%s.id"},
		{"primary_blob_endpoint", "Primary blob endpoint of Azure Storage Account %s", "azurerm_storage_account.%s.primary_blob_endpoint"},
	},
	"azure_sql": {
		{"sql_server_fqdn", "FQDN of Azure SQL Server for %s", "azurerm_mssql_server.%s_server.fully_qualified_domain_name"},
		{"sql_database_id", "ID of Azure SQL Database %s", "azurerm_mssql_database.%s.id"},
	},
	"azure_public_ip": {
		{"public_ip_address", "Address of Azure Public IP %s", "azurerm_public_ip.%s.ip_address"},
	},
	"azure_nat_gateway": {
		{"nat_gateway_id", "ID of Azure NAT Gateway %s", "azurerm_nat_gateway.%s.id"},
	},
	"azure_load_balancer": {
		{"lb_id", "ID of Azure Load Balancer %s", "azurerm_lb.%s.id"},
	},
}

func generateOutputs(resources []resource.Resource) string {
	var b strings.Builder
	b.WriteString("# Outputs\n\n")
	wrote := false

	for _, r := range resources {
		id := resource.SafeID(r.Name)
		if r.Type == "azure_vm" {
			// VM outputs depend on the OS flavor rendered for the resource.
			osKind := "linux"
			if strings.EqualFold(r.StringProp("OSType"), "windows") {
				osKind = "windows"
			}
			fmt.Fprintf(&b, "output \"%s_vm_id\" {\n  description = \"ID of Azure VM %s\"\n  value       = azurerm_%s_virtual_machine.%s.id\n}\n\n", id, r.Name, osKind, id)
			fmt.Fprintf(&b, "output \"%s_private_ip\" {\n  description = \"Private IP address of Azure VM %s\"\n  value       = azurerm_network_interface.%s_nic.private_ip_address\n}\n\n", id, r.Name, id)
			if r.BoolProp("AssignPublicIP") {
				fmt.Fprintf(&b, "output \"%s_public_ip\" {\n  description = \"Public IP address of Azure VM %s\"\n  value       = azurerm_public_ip.%s_pip.ip_address\n}\n\n", id, r.Name, id)
			}
			wrote = true
			continue
		}
		for _, spec := range outputRegistry[r.Type] {
			fmt.Fprintf(&b, "output \"%s_%s\" {\n  description = %q\n  value       = %s\n}\n\n",
				id, spec.suffix,
				fmt.Sprintf(spec.description, r.Name),
				fmt.Sprintf(spec.attribute, id))
			wrote = true
		}
	}

	if !wrote {
		return "# No outputs defined\n"
	}
	return b.String()
}

func generateReadme(resources []resource.Resource) string {
	counts := map[string]int{}
	var order []string
	for _, r := range resources {
		if counts[r.Type] == 0 {
			order = append(order, r.Type)
		}
		counts[r.Type]++
	}

	var b strings.Builder
	b.WriteString("# Terraform Infrastructure Configuration\n\n")
	b.WriteString("This configuration was auto-generated by the IaC pipeline.\n\n")
	plural := "s"
	if len(resources) == 1 {
		plural = ""
	}
	fmt.Fprintf(&b, "## Resources\n\nThis configuration will create **%d** resource%s:\n\n", len(resources), plural)
	for _, t := range order {
		fmt.Fprintf(&b, "- %d x %s\n", counts[t], t)
	}
	b.WriteString(`
## Prerequisites

- Terraform >= 1.0
- AWS CLI configured (if using AWS resources)
- Azure CLI configured (if using Azure resources)

## Deployment Steps

1. terraform init
2. terraform plan
3. terraform apply

## Cleanup

terraform destroy

## Generated Files

- provider.tf - Provider configuration
- variables.tf - Input variables
- main.tf - Main resource definitions
- outputs.tf - Output values
`)
	return b.String()
}

func hasPlatform(resources []resource.Resource, platform resource.Platform) bool {
	for _, r := range resources {
		if r.Platform == platform {
			return true
		}
	}
	return false
}
