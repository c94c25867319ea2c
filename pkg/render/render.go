// Package render evaluates templated configuration strings.
package render

import (
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/pkg/errors"
)

// Renderer renders Go templates with the sprig function library. Referencing
// a variable that is not set is an error.
type Renderer struct {
	funcs template.FuncMap
}

func New() *Renderer {
	return &Renderer{funcs: sprig.TxtFuncMap()}
}

// Render evaluates text against vars. Text without template actions is
// returned unchanged.
func (r *Renderer) Render(text string, vars map[string]interface{}) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}
	tmpl, err := template.New("").Option("missingkey=error").Funcs(r.funcs).Parse(text)
	if err != nil {
		return "", errors.Wrap(err, "parsing template")
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, vars); err != nil {
		return "", errors.Wrap(err, "rendering template")
	}
	return sb.String(), nil
}
