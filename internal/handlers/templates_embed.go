package handlers

import (
	"embed"
	"html/template"
)

// TemplatesFS embeds the HTML templates for the public and dashboard pages
//
//go:embed templates/*.html
var TemplatesFS embed.FS

// LoadTemplates parses the embedded templates for use with Gin's HTML renderer.
func LoadTemplates() *template.Template {
	return template.Must(template.ParseFS(TemplatesFS, "templates/*.html"))
}
