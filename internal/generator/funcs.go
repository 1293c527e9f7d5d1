// Where: internal/generator/funcs.go
// What: Template filters available to terraform templates.
// Why: Templates stay declarative; identifier and reference logic lives here.
package generator

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"github.com/opsloom/iacpilot/internal/resource"
)

// templateFuncs extends the sprig function map with the terraform-specific
// filters templates rely on.
func templateFuncs() template.FuncMap {
	funcs := sprig.TxtFuncMap()
	funcs["safe_id"] = resource.SafeID
	funcs["azure_rg_ref"] = azureRGRef
	funcs["ref"] = terraformRef
	funcs["fromjson"] = fromJSON
	funcs["hcl_map"] = hclMap
	funcs["hcl_list"] = hclList
	funcs["tolist"] = toList
	return funcs
}

// azureRGRef dispatches a resource-group reference: a quoted literal when
// the group already exists in the cloud, otherwise a reference to the
// azurerm_resource_group block synthesized in this project.
func azureRGRef(props map[string]any) string {
	name := stringValue(props["ResourceGroup"])
	exists := strings.ToLower(stringValue(props["ResourceGroupExists"]))
	if exists == "y" || exists == "yes" || exists == "true" {
		return fmt.Sprintf("%q", name)
	}
	return "azurerm_resource_group." + resource.SafeID(name) + ".name"
}

// terraformRef renders either a literal (existing cloud resource) or an
// attribute reference on a block generated in this project.
func terraformRef(kind, name string, exists any, attr string) string {
	switch strings.ToLower(stringValue(exists)) {
	case "y", "yes", "true":
		return fmt.Sprintf("%q", name)
	}
	return kind + "." + resource.SafeID(name) + "." + attr
}

// fromJSON parses embedded JSON strings (complex nested configs arriving as
// spreadsheet cells). Already-structured values pass through.
func fromJSON(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		var out any
		if err := json.Unmarshal([]byte(t), &out); err != nil {
			return nil, fmt.Errorf("fromjson: %w", err)
		}
		return out, nil
	default:
		return v, nil
	}
}

// hclMap renders a mapping as an aligned HCL map literal, indented for an
// attribute at two-space depth:
//
//	{
//	    Owner   = "Team"
//	    Project = "Demo"
//	  }
func hclMap(v any) string {
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(m))
	width := 0
	for k := range m {
		keys = append(keys, k)
		if len(k) > width {
			width = len(k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("{\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "    %-*s = %s\n", width, k, hclScalar(m[k]))
	}
	b.WriteString("  }")
	return b.String()
}

// hclList renders a native HCL list of strings. Scalar and comma-joined
// inputs are materialized into lists first so templates can iterate.
func hclList(v any) string {
	items := toList(v)
	if len(items) == 0 {
		return "[]"
	}
	quoted := make([]string, 0, len(items))
	for _, item := range items {
		quoted = append(quoted, hclScalar(item))
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// toList coerces scalars, []any, and comma-joined strings to []any.
func toList(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case string:
		if t == "" {
			return nil
		}
		if strings.Contains(t, ",") {
			parts := strings.Split(t, ",")
			out := make([]any, 0, len(parts))
			for _, p := range parts {
				if p = strings.TrimSpace(p); p != "" {
					out = append(out, p)
				}
			}
			return out
		}
		return []any{strings.TrimSpace(t)}
	default:
		return []any{t}
	}
}

func hclScalar(v any) string {
	switch t := v.(type) {
	case bool:
		return fmt.Sprintf("%t", t)
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	case int:
		return fmt.Sprintf("%d", t)
	case int64:
		return fmt.Sprintf("%d", t)
	default:
		return fmt.Sprintf("%q", stringValue(v))
	}
}

func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
