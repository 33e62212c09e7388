package schema

import (
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/yungbote/neurobridge-hydration/internal/domain/jobs"
)

//go:embed *.json
var FS embed.FS

var (
	cacheMu sync.Mutex
	cache   = map[jobs.JobKind]map[string]any{}
)

// Name is the structured-output schema name sent with a generation request.
func Name(kind jobs.JobKind) string { return "hydrate_" + string(kind) + "_v1" }

// ForKind returns the linted JSON schema for kind's generation output.
// Callers must not mutate the returned map.
func ForKind(kind jobs.JobKind) (map[string]any, error) {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	if s, ok := cache[kind]; ok {
		return s, nil
	}
	s, err := loadJSONSchema(string(kind) + "_v1.json")
	if err != nil {
		return nil, err
	}
	cache[kind] = s
	return s, nil
}

func loadJSONSchema(name string) (map[string]any, error) {
	b, err := FS.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", name, err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("parse schema %s: %w", name, err)
	}
	if err := Lint(name, m); err != nil {
		return nil, fmt.Errorf("lint schema %s: %w", name, err)
	}
	return m, nil
}
