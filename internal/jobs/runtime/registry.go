package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/yungbote/neurobridge-hydration/internal/domain/jobs"
)

// Generator produces raw structured content for one job kind.
// Output is validated by the caller before anything is persisted.
type Generator interface {
	Kind() jobs.JobKind
	Generate(ctx context.Context, req Request) (json.RawMessage, error)
}

type Registry struct {
	mu         sync.RWMutex
	generators map[jobs.JobKind]Generator
}

func NewRegistry() *Registry {
	return &Registry{generators: make(map[jobs.JobKind]Generator)}
}

func (r *Registry) Register(g Generator) error {
	if g == nil {
		return fmt.Errorf("nil generator")
	}
	k := g.Kind()
	if k == "" {
		return fmt.Errorf("generator Kind() is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.generators[k]; exists {
		return fmt.Errorf("generator already registered for job_kind=%s", k)
	}
	r.generators[k] = g
	return nil
}

func (r *Registry) Get(kind jobs.JobKind) (Generator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.generators[kind]
	return g, ok
}

// Kinds lists registered kinds in canonical order.
func (r *Registry) Kinds() []jobs.JobKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]jobs.JobKind, 0, len(r.generators))
	for _, k := range jobs.AllKinds() {
		if _, ok := r.generators[k]; ok {
			out = append(out, k)
		}
	}
	return out
}
