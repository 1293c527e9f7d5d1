// Where: internal/generator/azurefix.go
// What: Post-render fixups for AzureRM provider v4 constraints.
// Why: Deprecated v3 attribute names and illegal blocks fail terraform plan.
package generator

import (
	"regexp"
	"strings"
)

// noTagsResources cannot carry a tags argument; terraform rejects it.
var noTagsResources = []string{
	"azurerm_subnet",
	"azurerm_subnet_network_security_group_association",
	"azurerm_subnet_route_table_association",
	"azurerm_network_interface_security_group_association",
	"azurerm_virtual_network_peering",
}

// noInlineDataDiskResources require data disks as separate
// azurerm_managed_disk resources.
var noInlineDataDiskResources = []string{
	"azurerm_linux_virtual_machine",
	"azurerm_windows_virtual_machine",
}

// deprecatedAttributes maps AzureRM v3 attribute names to their v4 forms.
var deprecatedAttributes = map[string]string{
	"enable_https_traffic_only": "https_traffic_only_enabled",
	"minimum_tls_version":       "min_tls_version",
	"allow_blob_public_access":  "allow_nested_items_to_be_public",
}

// FixAzureCompatibility rewrites deprecated attribute names and strips
// arguments Azure resources cannot carry. It is idempotent.
func FixAzureCompatibility(mainTF string) string {
	out := mainTF
	for old, replacement := range deprecatedAttributes {
		out = regexp.MustCompile(`\b`+old+`\b`).ReplaceAllString(out, replacement)
	}
	for _, kind := range noTagsResources {
		out = removeBlockFromResources(out, kind, "tags")
	}
	for _, kind := range noInlineDataDiskResources {
		out = removeBlockFromResources(out, kind, "data_disk")
	}
	return out
}

// removeBlockFromResources deletes `name = { ... }` / `name { ... }` blocks
// inside every resource of the given kind.
func removeBlockFromResources(content, resourceKind, blockName string) string {
	header := regexp.MustCompile(`resource\s+"` + resourceKind + `"\s+"\w+"\s*\{`)
	var b strings.Builder
	rest := content
	for {
		loc := header.FindStringIndex(rest)
		if loc == nil {
			b.WriteString(rest)
			break
		}
		braceStart := loc[1] - 1
		braceEnd := matchingBrace(rest, braceStart)
		if braceEnd < 0 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:loc[0]])
		b.WriteString(removeInnerBlock(rest[loc[0]:braceEnd+1], blockName))
		rest = rest[braceEnd+1:]
	}
	return b.String()
}

func removeInnerBlock(block, name string) string {
	patterns := []*regexp.Regexp{
		regexp.MustCompile(`\n\s*` + name + `\s*=\s*\{`),
		regexp.MustCompile(`\n\s*` + name + `\s*\{`),
	}
	for _, pattern := range patterns {
		for {
			loc := pattern.FindStringIndex(block)
			if loc == nil {
				break
			}
			braceStart := loc[1] - 1
			braceEnd := matchingBrace(block, braceStart)
			if braceEnd < 0 {
				break
			}
			block = block[:loc[0]] + block[braceEnd+1:]
		}
	}
	return block
}

// matchingBrace returns the index of the brace closing the one at start.
func matchingBrace(s string, start int) int {
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
