// Where: internal/spreadsheet/convert.go
// What: Cell value conversion to typed property values.
// Why: Spreadsheet cells are strings; the canonical model is typed.
package spreadsheet

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// jsonFields hold embedded JSON documents in a single cell.
var jsonFields = map[string]bool{
	"Tags": true, "IngressRules": true, "EgressRules": true, "SecurityRules": true,
	"DataDisks": true, "LifecycleRules": true, "NetworkRules": true,
	"FirewallRules": true, "VirtualNetworkRules": true, "LongTermRetention": true,
}

// convertCell turns a raw cell string into the most specific value: embedded
// JSON for the known JSON fields, then bool, then number, else the string.
func (p *Parser) convertCell(header, value string) any {
	if jsonFields[header] {
		var parsed any
		if err := json.Unmarshal([]byte(value), &parsed); err != nil {
			preview := value
			if len(preview) > 50 {
				preview = preview[:50] + "..."
			}
			p.warnings = append(p.warnings, fmt.Sprintf("invalid JSON in field %s: %s", header, preview))
			return value
		}
		return parsed
	}

	switch strings.ToLower(value) {
	case "true", "yes":
		return true
	case "false", "no":
		return false
	}

	if i, err := strconv.Atoi(value); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return value
}
