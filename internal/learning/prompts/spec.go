package prompts

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

type Validator func(Input) error

// Spec is the declaration format for a prompt. System and User are Go
// templates over Input.
type Spec struct {
	Name       PromptName
	Version    int
	SchemaName func(Input) string
	Schema     func(Input) (map[string]any, error)
	System     string
	User       string
	Validators []Validator
}

type Template struct {
	Name       PromptName
	Version    int
	SchemaName func(Input) string
	Schema     func(Input) (map[string]any, error)
	System     func(Input) string
	User       func(Input) string
	Validate   Validator
}

// MakeTemplate compiles a Spec.
func MakeTemplate(s Spec) (Template, error) {
	if strings.TrimSpace(string(s.Name)) == "" {
		return Template{}, fmt.Errorf("missing prompt name")
	}
	if s.Version <= 0 {
		return Template{}, fmt.Errorf("invalid version for %s", s.Name)
	}
	if s.SchemaName == nil || s.Schema == nil {
		return Template{}, fmt.Errorf("missing schema for %s", s.Name)
	}
	sysT, err := template.New("system").Option("missingkey=zero").Parse(s.System)
	if err != nil {
		return Template{}, fmt.Errorf("%s system template parse: %w", s.Name, err)
	}
	userT, err := template.New("user").Option("missingkey=zero").Parse(s.User)
	if err != nil {
		return Template{}, fmt.Errorf("%s user template parse: %w", s.Name, err)
	}
	render := func(t *template.Template, in Input) string {
		var b bytes.Buffer
		_ = t.Execute(&b, in)
		return strings.TrimSpace(b.String())
	}
	validators := s.Validators
	return Template{
		Name:       s.Name,
		Version:    s.Version,
		SchemaName: s.SchemaName,
		Schema:     s.Schema,
		System:     func(in Input) string { return render(sysT, in) },
		User:       func(in Input) string { return render(userT, in) },
		Validate: func(in Input) error {
			for _, v := range validators {
				if v == nil {
					continue
				}
				if err := v(in); err != nil {
					return err
				}
			}
			return nil
		},
	}, nil
}

func requireField(name string, get func(Input) string) Validator {
	return func(in Input) error {
		if strings.TrimSpace(get(in)) == "" {
			return fmt.Errorf("missing %s", name)
		}
		return nil
	}
}
