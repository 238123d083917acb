// Package prompts renders the fixed, role-specific agent instructions
// described in spec.md §4.7: one template per role, parameterized by
// bead id, base branch, stage, and labels, using embed.FS +
// text/template (one *.md.tmpl per role, a thin Renderer wrapping
// ParseFS/ExecuteTemplate).
package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/tsturo/debussy/internal/model"
)

//go:embed templates/*.md.tmpl
var templateFS embed.FS

// Data parameterizes every role template.
type Data struct {
	BeadID string
	Base   string
	Stage  model.Stage
	Labels []string
}

// Renderer parses the embedded templates once and renders them per call.
type Renderer struct {
	tmpl *template.Template
}

// New parses the embedded role templates.
func New() (*Renderer, error) {
	t, err := template.ParseFS(templateFS, "templates/*.md.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parsing prompt templates: %w", err)
	}
	return &Renderer{tmpl: t}, nil
}

// templateNameForRole maps a role (and, for the investigator, the
// stage) to the template that should render its prompt. The
// investigator uses a different template when working the
// consolidating stage versus the investigating stage. Template file
// names use underscores where role names use hyphens
// (security-reviewer -> security_reviewer.md.tmpl).
func templateNameForRole(role model.Role, stage model.Stage) string {
	if role == model.RoleInvestigator && stage == model.StageConsolidating {
		return "consolidating.md.tmpl"
	}
	return strings.ReplaceAll(string(role), "-", "_") + ".md.tmpl"
}

// Render produces the prompt text for an agent about to work bead at
// stage in the given role.
func (r *Renderer) Render(role model.Role, data Data) (string, error) {
	name := templateNameForRole(role, data.Stage)
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("rendering prompt template %s: %w", name, err)
	}
	return buf.String(), nil
}
