package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-hydration/internal/data/repos"
	types "github.com/yungbote/neurobridge-hydration/internal/domain"
	tdomain "github.com/yungbote/neurobridge-hydration/internal/domain/telemetry"
	"github.com/yungbote/neurobridge-hydration/internal/observability"
	"github.com/yungbote/neurobridge-hydration/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-hydration/internal/platform/logger"
)

// Decision is the outcome of one rule for one evaluation.
type Decision struct {
	Type     types.AlertType `json:"type"`
	Severity types.Severity  `json:"severity"`
	Message  string          `json:"message"`
	Payload  map[string]any  `json:"payload,omitempty"`
	// Transition is raised, refreshed, resolved or empty when nothing changed.
	Transition string `json:"transition,omitempty"`
}

func (d Decision) Triggered() bool { return d.Severity != tdomain.SeverityOK }

/*
Evaluator turns recent samples into alert decisions and applies them.

Each rule yields OK, WARNING or CRITICAL. A triggered rule creates the active
row for its type, or refreshes it in place. An OK rule resolves the active row
if there is one. Rows are never duplicated: the per-type upsert runs in one
transaction and the store holds a partial unique index on active rows.
*/
type Evaluator struct {
	db      *gorm.DB
	log     *logger.Logger
	repos   repos.Set
	metrics *observability.Metrics
}

func NewEvaluator(db *gorm.DB, baseLog *logger.Logger, set repos.Set, metrics *observability.Metrics) *Evaluator {
	return &Evaluator{db: db, log: baseLog.With("component", "AlertEvaluator"), repos: set, metrics: metrics}
}

func (e *Evaluator) EvaluateAlerts(ctx context.Context, now time.Time, th Thresholds) ([]Decision, error) {
	dbc := dbctx.Context{Ctx: ctx}
	backlog, err := e.queueBacklog(dbc, th.QueueBacklog)
	if err != nil {
		return nil, err
	}
	spike, err := e.failureSpike(dbc, now, th.FailureSpike)
	if err != nil {
		return nil, err
	}
	timeouts, err := e.timeouts(dbc, now, th.Timeouts)
	if err != nil {
		return nil, err
	}
	decisions := []Decision{backlog, spike, timeouts}
	for i := range decisions {
		transition, err := e.apply(ctx, now, decisions[i])
		if err != nil {
			return decisions, fmt.Errorf("apply %s: %w", decisions[i].Type, err)
		}
		decisions[i].Transition = transition
		if transition != "" {
			e.metrics.IncAlert(string(decisions[i].Type), transition)
			e.log.Info("Alert transition", "alert_type", decisions[i].Type, "severity", decisions[i].Severity, "transition", transition, "message", decisions[i].Message)
		}
	}
	return decisions, nil
}

func (e *Evaluator) queueBacklog(dbc dbctx.Context, rule QueueBacklogRule) (Decision, error) {
	d := Decision{Type: tdomain.AlertQueueBacklog, Severity: tdomain.SeverityOK}
	samples, err := e.repos.Sample.ListLatest(dbc, tdomain.KeyQueueDepth, GlobalDimension, rule.Window)
	if err != nil {
		return d, fmt.Errorf("load queue depth samples: %w", err)
	}
	critical := rule.Threshold * rule.CriticalFactor
	warnBreaches, critBreaches := 0, 0
	values := make([]float64, 0, len(samples))
	for _, s := range samples {
		values = append(values, s.Value)
		if s.Value > rule.Threshold {
			warnBreaches++
		}
		if s.Value > critical {
			critBreaches++
		}
	}
	switch {
	case critBreaches >= rule.MinBreach:
		d.Severity = tdomain.SeverityCritical
	case warnBreaches >= rule.MinBreach:
		d.Severity = tdomain.SeverityWarning
	}
	d.Payload = map[string]any{"samples": values, "threshold": rule.Threshold, "breaches": warnBreaches}
	if d.Triggered() {
		d.Message = fmt.Sprintf("queue depth above %.0f in %d of the last %d samples", rule.Threshold, warnBreaches, len(samples))
	}
	return d, nil
}

func (e *Evaluator) failureSpike(dbc dbctx.Context, now time.Time, rule FailureSpikeRule) (Decision, error) {
	d := Decision{Type: tdomain.AlertJobFailureSpike, Severity: tdomain.SeverityOK}
	recentFrom := now.UTC().Truncate(time.Minute)
	recent, err := e.repos.Sample.ListRange(dbc, tdomain.KeyJobsFailed, GlobalDimension, recentFrom, recentFrom.Add(time.Minute))
	if err != nil {
		return d, fmt.Errorf("load recent failure samples: %w", err)
	}
	baseline, err := e.repos.Sample.ListRange(dbc, tdomain.KeyJobsFailed, GlobalDimension, recentFrom.Add(-rule.Baseline), recentFrom)
	if err != nil {
		return d, fmt.Errorf("load baseline failure samples: %w", err)
	}
	current := sum(recent)
	avg := 0.0
	if len(baseline) > 0 {
		avg = sum(baseline) / float64(len(baseline))
	}
	limit := math.Max(rule.MinAbsolute, rule.SpikeMultiplier*avg)
	switch {
	case current > limit*rule.CriticalFactor:
		d.Severity = tdomain.SeverityCritical
	case current > limit:
		d.Severity = tdomain.SeverityWarning
	}
	d.Payload = map[string]any{"current": current, "baseline_avg": avg, "limit": limit}
	if d.Triggered() {
		d.Message = fmt.Sprintf("%.0f job failures in the last minute, limit %.1f", current, limit)
	}
	return d, nil
}

func (e *Evaluator) timeouts(dbc dbctx.Context, now time.Time, rule TimeoutRule) (Decision, error) {
	d := Decision{Type: tdomain.AlertJobTimeouts, Severity: tdomain.SeverityOK}
	to := now.UTC().Truncate(time.Minute).Add(time.Minute)
	samples, err := e.repos.Sample.ListRange(dbc, tdomain.KeyJobsTimeout, GlobalDimension, to.Add(-rule.Window), to)
	if err != nil {
		return d, fmt.Errorf("load timeout samples: %w", err)
	}
	total := sum(samples)
	// Any timeout at or above the floor is critical; there is no warning level.
	if total >= rule.MinCount && total > 0 {
		d.Severity = tdomain.SeverityCritical
		d.Message = fmt.Sprintf("%.0f job timeouts in the last %s", total, rule.Window)
	}
	d.Payload = map[string]any{"timeouts": total, "window": rule.Window.String()}
	return d, nil
}

func (e *Evaluator) apply(ctx context.Context, now time.Time, d Decision) (string, error) {
	transition := ""
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		active, err := e.repos.Alert.GetActive(dbc, d.Type)
		if err != nil {
			return err
		}
		if !d.Triggered() {
			if active == nil {
				return nil
			}
			ok, err := e.repos.Alert.Resolve(dbc, active.ID, now)
			if ok {
				transition = "resolved"
			}
			return err
		}
		payload, err := json.Marshal(d.Payload)
		if err != nil {
			return err
		}
		if active != nil {
			transition = "refreshed"
			return e.repos.Alert.Refresh(dbc, active.ID, map[string]interface{}{
				"severity":  d.Severity,
				"message":   d.Message,
				"payload":   datatypes.JSON(payload),
				"last_seen": now,
			})
		}
		transition = "raised"
		return e.repos.Alert.Create(dbc, &types.SystemAlert{
			Type:      d.Type,
			Severity:  d.Severity,
			Active:    true,
			Message:   d.Message,
			Payload:   datatypes.JSON(payload),
			FirstSeen: now,
			LastSeen:  now,
		})
	})
	if err != nil {
		return "", err
	}
	return transition, nil
}

// ListAlerts returns alerts ordered by last_seen, newest first.
func (e *Evaluator) ListAlerts(ctx context.Context, activeOnly bool, limit int) ([]*types.SystemAlert, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return e.repos.Alert.List(dbctx.Context{Ctx: ctx}, activeOnly, limit)
}

func sum(samples []*types.TelemetrySample) float64 {
	total := 0.0
	for _, s := range samples {
		total += s.Value
	}
	return total
}
