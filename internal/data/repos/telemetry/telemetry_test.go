package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/yungbote/neurobridge-hydration/internal/data/repos/testutil"
	types "github.com/yungbote/neurobridge-hydration/internal/domain"
	"github.com/yungbote/neurobridge-hydration/internal/domain/telemetry"
	"github.com/yungbote/neurobridge-hydration/internal/platform/dbctx"
)

func TestAlertRepoOneActivePerType(t *testing.T) {
	db := testutil.DB(t)
	ctx := dbctx.Context{Ctx: context.Background()}
	repo := NewAlertRepo(db, testutil.Logger(t))
	now := time.Now().UTC()

	first := &types.SystemAlert{Type: telemetry.AlertQueueBacklog, Severity: telemetry.SeverityWarning, Active: true, FirstSeen: now, LastSeen: now}
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("Create: %v", err)
	}
	second := &types.SystemAlert{Type: telemetry.AlertQueueBacklog, Severity: telemetry.SeverityCritical, Active: true, FirstSeen: now, LastSeen: now}
	if err := repo.Create(ctx, second); err == nil {
		t.Fatalf("Create second active: expected partial unique index violation")
	}

	if ok, err := repo.Resolve(ctx, first.ID, now); err != nil || !ok {
		t.Fatalf("Resolve: ok=%v err=%v", ok, err)
	}
	again := &types.SystemAlert{Type: telemetry.AlertQueueBacklog, Severity: telemetry.SeverityWarning, Active: true, FirstSeen: now, LastSeen: now}
	if err := repo.Create(ctx, again); err != nil {
		t.Fatalf("Create after resolve: %v", err)
	}
	n, err := repo.CountActive(ctx, telemetry.AlertQueueBacklog)
	if err != nil || n != 1 {
		t.Fatalf("CountActive: err=%v n=%d", err, n)
	}
	all, err := repo.List(ctx, false, 10)
	if err != nil || len(all) != 2 {
		t.Fatalf("List: err=%v len=%d", err, len(all))
	}
}

func TestSampleRepoRanges(t *testing.T) {
	db := testutil.DB(t)
	ctx := dbctx.Context{Ctx: context.Background()}
	repo := NewSampleRepo(db, testutil.Logger(t))
	base := time.Now().UTC().Truncate(time.Minute).Add(-10 * time.Minute)

	for i := 0; i < 10; i++ {
		s := &types.TelemetrySample{Key: telemetry.KeyQueueDepth, DimensionHash: "h", Timestamp: base.Add(time.Duration(i) * time.Minute), Value: float64(i)}
		if err := repo.Create(ctx, s); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	latest, err := repo.ListLatest(ctx, telemetry.KeyQueueDepth, "h", 5)
	if err != nil || len(latest) != 5 || latest[0].Value != 9 {
		t.Fatalf("ListLatest: err=%v len=%d", err, len(latest))
	}
	window, err := repo.ListRange(ctx, telemetry.KeyQueueDepth, "h", base, base.Add(3*time.Minute))
	if err != nil || len(window) != 3 || window[0].Value != 0 {
		t.Fatalf("ListRange: err=%v len=%d", err, len(window))
	}
	n, err := repo.DeleteBefore(ctx, base.Add(5*time.Minute))
	if err != nil || n != 5 {
		t.Fatalf("DeleteBefore: err=%v n=%d", err, n)
	}
}
