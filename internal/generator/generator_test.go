// Where: internal/generator/generator_test.go
// What: Tests for project assembly, identifiers, and failure modes.
// Why: Same resources must always produce the same, valid file bundle.
package generator

import (
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/opsloom/iacpilot/internal/resource"
)

func azureVM() resource.Resource {
	return resource.Resource{
		Type: "azure_vm", Name: "app-vm", Platform: resource.PlatformAzure,
		Properties: map[string]any{
			"ResourceGroup": "my-rg",
			"Location":      "East US",
			"VMSize":        "Standard_B2s",
			"OSType":        "Linux",
			"AdminUsername": "azureadmin",
			"SshPublicKey":  "ssh-rsa AAAA test",
			"Subnet":        "app-subnet",
			"SubnetExists":  "y",
			"Tags":          map[string]any{"Project": "X", "Owner": "Y"},
		},
	}
}

func TestGenerateProducesFullBundle(t *testing.T) {
	files, err := Generate([]resource.Resource{azureVM()})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	for _, name := range []string{"provider.tf", "variables.tf", "main.tf", "outputs.tf", "README.md"} {
		if files[name] == "" {
			t.Fatalf("missing file %s", name)
		}
	}
	main := files["main.tf"]
	if !strings.Contains(main, `resource "azurerm_linux_virtual_machine" "app_vm"`) {
		t.Fatalf("expected linux vm block, got:\n%s", main)
	}
	if !strings.Contains(main, "admin_ssh_key") {
		t.Fatalf("linux vm must render SSH key auth:\n%s", main)
	}
	if strings.Contains(main, "admin_password") {
		t.Fatalf("linux vm with SSH key must not render a password:\n%s", main)
	}
	if !strings.Contains(main, `Project = "X"`) || !strings.Contains(main, `Owner   = "Y"`) {
		t.Fatalf("expected tags block with Project and Owner:\n%s", main)
	}
}

func TestGenerateWindowsVMUsesPasswordAuth(t *testing.T) {
	vm := azureVM()
	vm.Properties["OSType"] = "Windows"
	delete(vm.Properties, "SshPublicKey")
	vm.Properties["AdminPassword"] = "S3cret!Pass"

	files, err := Generate([]resource.Resource{vm})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	main := files["main.tf"]
	if !strings.Contains(main, `resource "azurerm_windows_virtual_machine" "app_vm"`) {
		t.Fatalf("expected windows vm block:\n%s", main)
	}
	if strings.Contains(main, "admin_ssh_key") {
		t.Fatalf("windows vm must not render an SSH block:\n%s", main)
	}
	if !strings.Contains(main, `admin_password        = "S3cret!Pass"`) {
		t.Fatalf("windows vm must render password auth:\n%s", main)
	}
}

func TestGenerateSynthesizesResourceGroup(t *testing.T) {
	vm := azureVM()
	vm.Properties["ResourceGroupExists"] = "n"
	files, err := Generate([]resource.Resource{vm})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	main := files["main.tf"]
	if !strings.Contains(main, `resource "azurerm_resource_group" "my_rg"`) {
		t.Fatalf("expected synthesized resource group:\n%s", main)
	}
	if !strings.Contains(main, "azurerm_resource_group.my_rg.name") {
		t.Fatalf("vm must reference the synthesized group:\n%s", main)
	}
}

func TestGenerateExistingResourceGroupIsLiteral(t *testing.T) {
	vm := azureVM()
	vm.Properties["ResourceGroupExists"] = "y"
	files, err := Generate([]resource.Resource{vm})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	main := files["main.tf"]
	if strings.Contains(main, `resource "azurerm_resource_group"`) {
		t.Fatalf("existing group must not be synthesized:\n%s", main)
	}
	if !strings.Contains(main, `resource_group_name   = "my-rg"`) {
		t.Fatalf("vm must reference the group by literal name:\n%s", main)
	}
}

func TestGenerateProviderOnlyForPresentPlatforms(t *testing.T) {
	files, err := Generate([]resource.Resource{azureVM()})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if strings.Contains(files["provider.tf"], `provider "aws"`) {
		t.Fatalf("aws provider must not appear for azure-only projects")
	}
	if !strings.Contains(files["provider.tf"], `provider "azurerm"`) {
		t.Fatalf("azurerm provider missing")
	}
	if !strings.Contains(files["variables.tf"], "azure_subscription_id") {
		t.Fatalf("azure subscription variable missing")
	}
}

var identifierRe = regexp.MustCompile(`resource\s+"[a-z0-9_]+"\s+"([^"]+)"`)
var safeIdentifier = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

func TestGenerateEmitsOnlySafeIdentifiers(t *testing.T) {
	sg := resource.Resource{
		Type: "aws_security_group", Name: "3-Web SG!",
		Properties: map[string]any{
			"VPC": "main-vpc", "VPCExists": "y",
			"IngressRules": []any{map[string]any{"to_port": float64(443), "cidr_blocks": []any{"0.0.0.0/0"}}},
		},
	}
	files, err := Generate([]resource.Resource{sg, azureVM()})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	for _, m := range identifierRe.FindAllStringSubmatch(files["main.tf"], -1) {
		if !safeIdentifier.MatchString(m[1]) {
			t.Fatalf("unsafe terraform identifier %q", m[1])
		}
	}
}

func TestGenerateDeterministic(t *testing.T) {
	resources := []resource.Resource{azureVM(), {
		Type: "aws_s3", Name: "logs",
		Properties: map[string]any{"Region": "us-east-1", "BucketName": "logs-bucket", "Versioning": "Enabled", "Encryption": "AES256"},
	}}
	first, err := Generate(resources)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	second, err := Generate(resources)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	for name := range first {
		if first[name] != second[name] {
			t.Fatalf("file %s differs between identical runs", name)
		}
	}
}

func TestGenerateMissingTemplateFails(t *testing.T) {
	r := resource.Resource{Type: "aws_quantum_bucket", Platform: resource.PlatformAWS, Name: "q", Properties: map[string]any{}}
	_, err := Generate([]resource.Resource{r})
	if err == nil {
		t.Fatalf("expected template error")
	}
	var terr *TemplateError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TemplateError, got %T: %v", err, err)
	}
	if terr.Type != "aws_quantum_bucket" {
		t.Fatalf("error must name the offending type: %+v", terr)
	}
	if !strings.Contains(err.Error(), "aws_ec2") {
		t.Fatalf("error must list the available registry: %v", err)
	}
}

func TestGenerateS3SafeDefaultsAndOutputs(t *testing.T) {
	bucket := resource.Resource{
		Type: "aws_s3", Name: "assets",
		Properties: map[string]any{"Region": "eu-west-1", "BucketName": "my-assets", "PublicAccess": false},
	}
	files, err := Generate([]resource.Resource{bucket})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if !strings.Contains(files["main.tf"], "aws_s3_bucket_public_access_block") {
		t.Fatalf("public access block missing:\n%s", files["main.tf"])
	}
	if !strings.Contains(files["outputs.tf"], `output "assets_bucket_name"`) {
		t.Fatalf("bucket output missing:\n%s", files["outputs.tf"])
	}
	if !strings.Contains(files["variables.tf"], `default     = "eu-west-1"`) {
		t.Fatalf("aws region default not propagated:\n%s", files["variables.tf"])
	}
}

func TestGenerateReadmeGroupsByNormalizedType(t *testing.T) {
	files, err := Generate([]resource.Resource{
		azureVM(),
		{Type: "VM", Name: "second-vm", Properties: map[string]any{
			"ResourceGroup": "my-rg", "ResourceGroupExists": "y", "Location": "East US",
			"VMSize": "Standard_B1s", "OSType": "Linux", "AdminUsername": "admin",
			"Subnet": "s", "SubnetExists": "y",
		}},
	})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if !strings.Contains(files["README.md"], "- 2 x azure_vm") {
		t.Fatalf("README must count by normalized type:\n%s", files["README.md"])
	}
	if !strings.Contains(files["README.md"], "**2** resources") {
		t.Fatalf("README must state resource count:\n%s", files["README.md"])
	}
}

func TestFixAzureCompatibility(t *testing.T) {
	in := `resource "azurerm_storage_account" "st" {
  enable_https_traffic_only = true
  minimum_tls_version       = "TLS1_2"
}

resource "azurerm_subnet" "sn" {
  name = "sn"
  tags = {
    Project = "X"
  }
}
`
	out := FixAzureCompatibility(in)
	if strings.Contains(out, "enable_https_traffic_only") {
		t.Fatalf("deprecated attribute survived:\n%s", out)
	}
	if !strings.Contains(out, "https_traffic_only_enabled") {
		t.Fatalf("v4 attribute missing:\n%s", out)
	}
	if !strings.Contains(out, "min_tls_version") {
		t.Fatalf("tls attribute not renamed:\n%s", out)
	}
	if strings.Contains(out, "tags") && strings.Contains(out[strings.Index(out, "azurerm_subnet"):], "tags") {
		t.Fatalf("subnet tags block survived:\n%s", out)
	}
	if FixAzureCompatibility(out) != out {
		t.Fatalf("fixer must be idempotent")
	}
}

func TestNSGRendersSecurityRules(t *testing.T) {
	nsg := resource.Resource{
		Type: "azure_nsg", Name: "app-nsg",
		Properties: map[string]any{
			"ResourceGroup": "my-rg", "ResourceGroupExists": "y", "Location": "eastus",
			"SecurityRules": []any{map[string]any{
				"name": "allow-https", "priority": float64(110), "direction": "Inbound",
				"access": "Allow", "protocol": "Tcp", "destination_port_range": "443",
				"source_address_prefix": "*",
			}},
		},
	}
	files, err := Generate([]resource.Resource{nsg})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	main := files["main.tf"]
	if !strings.Contains(main, `name                       = "allow-https"`) {
		t.Fatalf("security rule not rendered:\n%s", main)
	}
	if !strings.Contains(main, "priority                   = 110") {
		t.Fatalf("numeric priority not rendered:\n%s", main)
	}
}

func TestVNetAddressSpaceIsNativeList(t *testing.T) {
	vnet := resource.Resource{
		Type: "azure_vnet", Name: "core-net",
		Properties: map[string]any{
			"ResourceGroup": "my-rg", "ResourceGroupExists": "y", "Location": "eastus",
			"AddressSpace": "10.0.0.0/16, 10.1.0.0/16",
		},
	}
	files, err := Generate([]resource.Resource{vnet})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if !strings.Contains(files["main.tf"], `address_space       = ["10.0.0.0/16", "10.1.0.0/16"]`) {
		t.Fatalf("address space must materialize as a native list:\n%s", files["main.tf"])
	}
}
