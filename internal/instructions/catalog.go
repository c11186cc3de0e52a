// Package instructions holds the agent instruction template catalog and
// renders a selected template with runtime values.
package instructions

import (
	"embed"
	"errors"
	"fmt"
	"strings"
)

//go:embed templates/*.txt
var templates embed.FS

// TemplateID selects one instruction template from the catalog. The active
// template is chosen once at configuration time.
type TemplateID string

const (
	TemplateFunctionCalling             TemplateID = "function-calling"
	TemplateFileSearch                  TemplateID = "file-search"
	TemplateCodeInterpreter             TemplateID = "code-interpreter"
	TemplateCodeInterpreterMultilingual TemplateID = "code-interpreter-multilingual"
)

// catalog maps template ids to their embedded files.
var catalog = map[TemplateID]string{
	TemplateFunctionCalling:             "templates/function_calling.txt",
	TemplateFileSearch:                  "templates/file_search.txt",
	TemplateCodeInterpreter:             "templates/code_interpreter.txt",
	TemplateCodeInterpreterMultilingual: "templates/code_interpreter_multilingual.txt",
}

// Placeholder tokens substituted at render time.
const (
	schemaPlaceholder = "{database_schema_string}"
	assetPlaceholder  = "{font_file_id}"
)

// ErrNoTemplate indicates no instruction template has been selected.
var ErrNoTemplate = errors.New("no instruction template selected")

// Renderer renders the one template selected for the session. The selection
// is fixed at construction; a Renderer is never re-pointed at another
// template.
type Renderer struct {
	id TemplateID
}

// NewRenderer validates the selection and returns a Renderer for it.
// An empty id returns ErrNoTemplate.
func NewRenderer(id TemplateID) (*Renderer, error) {
	if id == "" {
		return nil, ErrNoTemplate
	}
	if _, ok := catalog[id]; !ok {
		return nil, fmt.Errorf("unknown instruction template %q", id)
	}
	return &Renderer{id: id}, nil
}

// ID returns the selected template id.
func (r *Renderer) ID() TemplateID { return r.id }

// Render loads the selected template and substitutes the schema description
// and, when non-empty, the asset file id. Substitution is literal and single
// pass: placeholder tokens appearing inside substituted values are inserted
// verbatim and never re-expanded.
func (r *Renderer) Render(schemaDescription, assetFileID string) (string, error) {
	data, err := templates.ReadFile(catalog[r.id])
	if err != nil {
		return "", fmt.Errorf("load instruction template %q: %w", r.id, err)
	}

	pairs := []string{schemaPlaceholder, schemaDescription}
	if assetFileID != "" {
		pairs = append(pairs, assetPlaceholder, assetFileID)
	}
	return strings.NewReplacer(pairs...).Replace(string(data)), nil
}
