// Where: internal/generator/renderer.go
// What: Template loading, caching, and per-resource rendering.
// Why: One template execution path with a warm cache shared across sessions.
package generator

import (
	"bytes"
	"embed"
	"strings"
	"sync"
	"text/template"

	"github.com/opsloom/iacpilot/internal/resource"
)

//go:embed templates/aws/*.tmpl templates/azure/*.tmpl
var templateFS embed.FS

var templateCache sync.Map

// renderContext is the data every terraform template receives.
type renderContext struct {
	// Name is the safe identifier derived from the logical name.
	Name string
	// RawName is the logical name as the user provided it.
	RawName string
	// Props is the property mapping, Tags included.
	Props map[string]any
	// Tags is the Tags mapping for convenience.
	Tags map[string]any
}

// renderResource renders the registered template for one canonical resource.
func renderResource(r resource.Resource) (string, error) {
	r.Normalize()
	name, ok := templateRegistry[r.Type]
	if !ok {
		return "", &TemplateError{ResourceName: r.Name, Platform: string(r.Platform), Type: r.Type}
	}
	tmpl, err := loadTemplate(name)
	if err != nil {
		return "", &TemplateError{ResourceName: r.Name, Platform: string(r.Platform), Type: r.Type, Err: err}
	}

	ctx := renderContext{
		Name:    resource.SafeID(r.Name),
		RawName: r.Name,
		Props:   r.Properties,
		Tags:    r.Tags(),
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ctx); err != nil {
		return "", &TemplateError{ResourceName: r.Name, Platform: string(r.Platform), Type: r.Type, Err: err}
	}
	return strings.TrimRight(buf.String(), "\n") + "\n", nil
}

func loadTemplate(name string) (*template.Template, error) {
	if cached, ok := templateCache.Load(name); ok {
		return cached.(*template.Template), nil
	}
	base := name[strings.LastIndex(name, "/")+1:]
	tmpl, err := template.New(base).Funcs(templateFuncs()).ParseFS(templateFS, "templates/"+name)
	if err != nil {
		return nil, err
	}
	templateCache.Store(name, tmpl)
	return tmpl, nil
}
