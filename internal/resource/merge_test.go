// Where: internal/resource/merge_test.go
// What: Tests for identity merge and tag union semantics.
// Why: Follow-up turns must repair resources, never duplicate them.
package resource

import "testing"

func TestMergeByTypeAndCaseInsensitiveName(t *testing.T) {
	existing := []Resource{{
		Type: "aws_ec2", Name: "web",
		Properties: map[string]any{"Region": "us-east-1", "Tags": map[string]any{"App": "Web"}},
	}}
	incoming := []Resource{{
		Type: "EC2", Name: "Web",
		Properties: map[string]any{"InstanceType": "t2.micro", "Tags": map[string]any{"Project": "Demo"}},
	}}

	merged := Merge(existing, incoming)
	if len(merged) != 1 {
		t.Fatalf("expected 1 resource after merge, got %d", len(merged))
	}
	r := merged[0]
	if r.Type != "aws_ec2" {
		t.Fatalf("expected normalized type aws_ec2, got %q", r.Type)
	}
	if r.Name != "web" {
		t.Fatalf("expected first-mention name spelling, got %q", r.Name)
	}
	if r.StringProp("Region") != "us-east-1" {
		t.Fatalf("expected prior property preserved")
	}
	if r.StringProp("InstanceType") != "t2.micro" {
		t.Fatalf("expected incoming property merged")
	}
	tags := r.Tags()
	if tags["App"] != "Web" || tags["Project"] != "Demo" {
		t.Fatalf("expected union-merged tags, got %v", tags)
	}
}

func TestMergeAppendsNewResourcesInOrder(t *testing.T) {
	existing := []Resource{{Type: "aws_vpc", Name: "net", Properties: map[string]any{}}}
	incoming := []Resource{
		{Type: "aws_ec2", Name: "web", Properties: map[string]any{}},
		{Type: "aws_s3", Name: "logs", Properties: map[string]any{}},
	}
	merged := Merge(existing, incoming)
	if len(merged) != 3 {
		t.Fatalf("expected 3 resources, got %d", len(merged))
	}
	if merged[0].Type != "aws_vpc" || merged[1].Type != "aws_ec2" || merged[2].Type != "aws_s3" {
		t.Fatalf("order of first mention not preserved: %v", merged)
	}
}

func TestMergeSameNameDifferentTypeStaysSeparate(t *testing.T) {
	existing := []Resource{{Type: "aws_ec2", Name: "web", Properties: map[string]any{}}}
	incoming := []Resource{{Type: "aws_s3", Name: "web", Properties: map[string]any{}}}
	if got := Merge(existing, incoming); len(got) != 2 {
		t.Fatalf("distinct types must not merge, got %d resources", len(got))
	}
}

func TestMergeTagsOverridePriorOnCollision(t *testing.T) {
	out := MergeTags(
		map[string]any{"project": "old", "Owner": "a"},
		map[string]any{"Project": "new"},
	)
	if len(out) != 2 {
		t.Fatalf("case-colliding keys must collapse, got %v", out)
	}
	if out["Project"] != "new" {
		t.Fatalf("new key spelling wins: %v", out)
	}
	if out["Owner"] != "a" {
		t.Fatalf("unrelated keys preserved: %v", out)
	}
}

func TestMergeCoercesNonMapTags(t *testing.T) {
	existing := []Resource{{
		Type: "azure_vm", Name: "vm1",
		Properties: map[string]any{"Tags": "broken"},
	}}
	incoming := []Resource{{
		Type: "azure_vm", Name: "vm1",
		Properties: map[string]any{"Tags": map[string]any{"Project": "X"}},
	}}
	merged := Merge(existing, incoming)
	tags := merged[0].Tags()
	if tags["Project"] != "X" {
		t.Fatalf("expected tags map rebuilt from incoming, got %v", tags)
	}
}

func TestMirrorMetadataTags(t *testing.T) {
	props := map[string]any{
		"Project":     "abc",
		"Environment": "Production",
		"Tags":        map[string]any{"App": "Web", "environment": "staging"},
	}
	MirrorMetadataTags(props)
	tags := props["Tags"].(map[string]any)
	if tags["App"] != "Web" {
		t.Fatalf("existing tags preserved: %v", tags)
	}
	if tags["Project"] != "abc" {
		t.Fatalf("metadata mirrored into tags: %v", tags)
	}
	// environment already present case-insensitively; user value wins.
	if _, dup := tags["Environment"]; dup {
		t.Fatalf("case-insensitive dedup failed: %v", tags)
	}
	if tags["environment"] != "staging" {
		t.Fatalf("user tag must not be overwritten: %v", tags)
	}
}

func TestMissingFields(t *testing.T) {
	r := Resource{Type: "azure_vm", Name: "vm1", Properties: map[string]any{
		"ResourceGroup": "my-rg",
		"Location":      "East US",
		"VMSize":        "Standard_B2s",
	}}
	missing := MissingFields(r)
	if len(missing) != 2 {
		t.Fatalf("expected 2 missing fields, got %v", missing)
	}
	if missing[0] != "AdminUsername" || missing[1] != "OSType" {
		t.Fatalf("unexpected missing set: %v", missing)
	}

	r.Properties["AdminUsername"] = "azureadmin"
	r.Properties["OSType"] = "Linux"
	if missing := MissingFields(r); len(missing) != 0 {
		t.Fatalf("expected complete resource, got missing %v", missing)
	}
}
