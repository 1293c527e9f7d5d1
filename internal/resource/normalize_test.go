// Where: internal/resource/normalize_test.go
// What: Tests for type aliasing and safe identifiers.
// Why: Every alias spelling must collapse to one canonical form.
package resource

import "testing"

func TestNormalizeTypeAliases(t *testing.T) {
	cases := []struct {
		raw      string
		platform Platform
		want     string
	}{
		{"EC2", "", "aws_ec2"},
		{"ec2", "", "aws_ec2"},
		{"aws_ec2", "", "aws_ec2"},
		{"Security Group", "", "aws_security_group"},
		{"VM", "", "azure_vm"},
		{"virtual_network", "", "azure_vnet"},
		{"storage_account", "", "azure_storage"},
		{"subnet", PlatformAzure, "azure_subnet"},
		{"subnet", PlatformAWS, "aws_subnet"},
		{"subnet", "", "aws_subnet"},
		{"load_balancer", PlatformAzure, "azure_load_balancer"},
		{"NSG", "", "azure_nsg"},
		{"resourcegroup", "", "azure_resource_group"},
		{"igw", "", "aws_internet_gateway"},
		{"eip", "", "aws_elastic_ip"},
	}
	for _, tc := range cases {
		if got := NormalizeType(tc.raw, tc.platform); got != tc.want {
			t.Fatalf("NormalizeType(%q, %q) = %q, want %q", tc.raw, tc.platform, got, tc.want)
		}
	}
}

func TestNormalizeTypeUnknownKeepsInputForm(t *testing.T) {
	if got := NormalizeType("QuantumBucket", ""); got != "quantumbucket" {
		t.Fatalf("unexpected unknown normalization: %q", got)
	}
	if Known("quantumbucket") {
		t.Fatalf("quantumbucket must not be a known type")
	}
	if !Known("aws_ec2") {
		t.Fatalf("aws_ec2 must be known")
	}
}

func TestNormalizeTypePlatformPrefixing(t *testing.T) {
	if got := NormalizeType("web_app", PlatformAzure); got != "azure_web_app" {
		t.Fatalf("expected platform-prefixed type, got %q", got)
	}
}

func TestSafeID(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"web-server", "web_server"},
		{"Web Server 01", "web_server_01"},
		{"01-db", "res_01_db"},
		{"my.storage", "my_storage"},
		{"", "res_unnamed"},
		{"---", "res_unnamed"},
		{"already_safe", "already_safe"},
	}
	for _, tc := range cases {
		if got := SafeID(tc.in); got != tc.want {
			t.Fatalf("SafeID(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestPlatformForType(t *testing.T) {
	if PlatformForType("aws_ec2") != PlatformAWS {
		t.Fatalf("expected aws platform")
	}
	if PlatformForType("azure_vm") != PlatformAzure {
		t.Fatalf("expected azure platform")
	}
	if PlatformForType("mystery") != "" {
		t.Fatalf("expected empty platform for unknown type")
	}
}
