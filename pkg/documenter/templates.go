package documenter

import (
	"bytes"
	"embed"
	"text/template"

	"github.com/hashicorp-forge/schemadoc/pkg/agenterr"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Prompt template names.
const (
	TemplateColumnDescription = "column-description"
	TemplateTableDescription  = "table-description"
)

// renderTemplate executes an embedded prompt template. A name with no
// embedded file is DOC_TEMPLATE_NOT_FOUND.
func renderTemplate(name string, data interface{}) (string, error) {
	raw, err := templateFS.ReadFile("templates/" + name + ".tmpl")
	if err != nil {
		return "", agenterr.New(agenterr.CodeTemplateNotFound, agenterr.SeverityError, false,
			"prompt template %q not found", name).Wrap(err)
	}

	tmpl, err := template.New(name).Parse(string(raw))
	if err != nil {
		return "", agenterr.New(agenterr.CodeTemplateNotFound, agenterr.SeverityError, false,
			"prompt template %q failed to parse", name).Wrap(err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", agenterr.New(agenterr.CodeTemplateNotFound, agenterr.SeverityError, false,
			"prompt template %q failed to render", name).Wrap(err)
	}
	return buf.String(), nil
}
