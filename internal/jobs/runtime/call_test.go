package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/yungbote/neurobridge-hydration/internal/domain/jobs"
	perrors "github.com/yungbote/neurobridge-hydration/internal/pkg/errors"
)

type blockingGen struct{ release chan struct{} }

func (g blockingGen) Kind() jobs.JobKind { return jobs.KindNotes }

func (g blockingGen) Generate(context.Context, Request) (json.RawMessage, error) {
	<-g.release
	return json.RawMessage(`{}`), nil
}

type panicGen struct{}

func (panicGen) Kind() jobs.JobKind { return jobs.KindNotes }

func (panicGen) Generate(context.Context, Request) (json.RawMessage, error) { panic("boom") }

func TestCallReturnsResult(t *testing.T) {
	out, err := Call(context.Background(), fakeGen{kind: jobs.KindNotes}, Request{})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if string(out) != `{}` {
		t.Fatalf("unexpected output %s", out)
	}
}

func TestCallAbandonsGeneratorIgnoringContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := Call(ctx, blockingGen{release: release}, Request{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("call returned after %s", elapsed)
	}
}

func TestCallRecoversPanic(t *testing.T) {
	_, err := Call(context.Background(), panicGen{}, Request{})
	var pe *PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PanicError, got %v", err)
	}
	if pe.Stack == "" {
		t.Fatalf("expected stack")
	}
	if perrors.KindOf(err) != perrors.KindValidation {
		t.Fatalf("unexpected kind %s", perrors.KindOf(err))
	}
}
