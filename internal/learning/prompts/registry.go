package prompts

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Prompt is a rendered prompt ready for a structured-output generation call.
type Prompt struct {
	Name       string
	Version    int
	System     string
	User       string
	SchemaName string
	Schema     map[string]any
}

// Fingerprint identifies the exact rendered prompt, for audit metadata.
func (p Prompt) Fingerprint() string {
	h := sha256.Sum256([]byte(
		strings.TrimSpace(p.Name) + "|" +
			strconv.Itoa(p.Version) + "|" +
			strings.TrimSpace(p.System) + "|" +
			strings.TrimSpace(p.User),
	))
	return hex.EncodeToString(h[:])
}

var (
	registryOnce sync.Once
	registryErr  error
	registry     = map[PromptName]Template{}
)

func register(s Spec) error {
	t, err := MakeTemplate(s)
	if err != nil {
		return err
	}
	if _, exists := registry[t.Name]; exists {
		return fmt.Errorf("prompt %s registered twice", t.Name)
	}
	registry[t.Name] = t
	return nil
}

func ensureRegistered() error {
	registryOnce.Do(func() {
		for _, s := range specs() {
			if err := register(s); err != nil {
				registryErr = err
				return
			}
		}
	})
	return registryErr
}

// Build renders the named prompt for in.
func Build(name PromptName, in Input) (Prompt, error) {
	if err := ensureRegistered(); err != nil {
		return Prompt{}, err
	}
	t, ok := registry[name]
	if !ok {
		return Prompt{}, fmt.Errorf("unknown prompt: %s", name)
	}
	if err := t.Validate(in); err != nil {
		return Prompt{}, fmt.Errorf("%s: %w", name, err)
	}
	schema, err := t.Schema(in)
	if err != nil {
		return Prompt{}, fmt.Errorf("%s schema: %w", name, err)
	}
	return Prompt{
		Name:       string(t.Name),
		Version:    t.Version,
		SchemaName: strings.TrimSpace(t.SchemaName(in)),
		Schema:     schema,
		System:     applyStyle(t.System(in)),
		User:       t.User(in),
	}, nil
}
