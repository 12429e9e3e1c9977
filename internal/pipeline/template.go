package pipeline

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{\{([a-z_]+)\}\}`)

// PromptTemplate is a prompt with named {{field}} placeholders. The
// placeholder set is validated at construction so a misspelled field fails
// at startup instead of silently rendering a no-op substitution.
type PromptTemplate struct {
	name   string
	text   string
	fields map[string]bool
}

// NewPromptTemplate validates that the declared fields and the placeholders
// found in the text match exactly.
func NewPromptTemplate(name, text string, fields ...string) (*PromptTemplate, error) {
	declared := make(map[string]bool, len(fields))
	for _, f := range fields {
		declared[f] = true
	}

	found := make(map[string]bool)
	for _, match := range placeholderPattern.FindAllStringSubmatch(text, -1) {
		found[match[1]] = true
	}

	for f := range found {
		if !declared[f] {
			return nil, fmt.Errorf("template %s: undeclared placeholder {{%s}}", name, f)
		}
	}
	for f := range declared {
		if !found[f] {
			return nil, fmt.Errorf("template %s: declared field %q has no placeholder", name, f)
		}
	}

	return &PromptTemplate{name: name, text: text, fields: declared}, nil
}

// MustPromptTemplate panics on an invalid template; used for the package's
// startup-time templates.
func MustPromptTemplate(name, text string, fields ...string) *PromptTemplate {
	t, err := NewPromptTemplate(name, text, fields...)
	if err != nil {
		panic(err)
	}
	return t
}

// Render substitutes every placeholder. All declared fields must be given.
func (t *PromptTemplate) Render(values map[string]string) (string, error) {
	pairs := make([]string, 0, len(values)*2)
	for field, value := range values {
		if !t.fields[field] {
			return "", fmt.Errorf("template %s: unknown field %q", t.name, field)
		}
		pairs = append(pairs, "{{"+field+"}}", value)
	}
	for field := range t.fields {
		if _, ok := values[field]; !ok {
			return "", fmt.Errorf("template %s: missing value for field %q", t.name, field)
		}
	}
	return strings.NewReplacer(pairs...).Replace(t.text), nil
}
