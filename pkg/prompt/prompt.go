package prompt

import (
	"bytes"
	"fmt"
	"text/template"
)

// Effective returns the text sent to a backend for a question with optional
// context: "context\n\nquestion" when context is non-empty, otherwise the
// question unchanged.
func Effective(question, context string) string {
	if context == "" {
		return question
	}
	return context + "\n\n" + question
}

// Template is a provider's custom prompt override. It is rendered with the
// effective role and prompt and its output replaces the text sent to the
// backend.
//
// Template variables use {{.Role}} and {{.Prompt}}. Referencing any other
// variable is an error.
type Template struct {
	name string
	tmpl *template.Template
}

// ParseTemplate parses text as a custom prompt template. An empty text
// yields a nil Template, which renders the prompt unchanged.
func ParseTemplate(name, text string) (*Template, error) {
	if text == "" {
		return nil, nil
	}

	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parsing template: %w", err)
	}
	return &Template{name: name, tmpl: tmpl}, nil
}

// Render executes the template for one call. A nil Template returns prompt
// as-is.
func (t *Template) Render(role, prompt string) (string, error) {
	if t == nil {
		return prompt, nil
	}

	vars := map[string]interface{}{
		"Role":   role,
		"Prompt": prompt,
	}

	var buf bytes.Buffer
	if err := t.tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("executing template %s: %w", t.name, err)
	}
	return buf.String(), nil
}

// Check parses text and renders it once with placeholder values, so both
// syntax errors and references to unknown variables surface at load time.
func Check(name, text string) error {
	tmpl, err := ParseTemplate(name, text)
	if err != nil {
		return err
	}
	_, err = tmpl.Render("role", "prompt")
	return err
}
