package services

import (
	"context"
	"encoding/json"
	"strings"

	"gorm.io/datatypes"

	"github.com/yungbote/neurobridge-hydration/internal/data/repos"
	types "github.com/yungbote/neurobridge-hydration/internal/domain"
	"github.com/yungbote/neurobridge-hydration/internal/platform/ctxutil"
	"github.com/yungbote/neurobridge-hydration/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-hydration/internal/platform/logger"
)

// AuditEntry is one audit record. ActorID falls back to the actor on the context.
type AuditEntry struct {
	Action     types.AuditAction
	ActorID    string
	EntityType string
	EntityID   string
	Meta       map[string]any
}

type AuditService interface {
	// Record writes inside dbc.Tx when set, so audit rows commit or roll back with the change.
	Record(dbc dbctx.Context, e AuditEntry) error
	List(ctx context.Context, f repos.AuditFilter) ([]*types.AuditEvent, error)
}

type auditService struct {
	log  *logger.Logger
	repo repos.AuditRepo
}

func NewAuditService(baseLog *logger.Logger, repo repos.AuditRepo) AuditService {
	return &auditService{log: baseLog.With("service", "AuditService"), repo: repo}
}

func (s *auditService) Record(dbc dbctx.Context, e AuditEntry) error {
	actor := strings.TrimSpace(e.ActorID)
	if actor == "" {
		actor = ctxutil.ActorID(dbc.Ctx)
	}
	if actor == "" {
		actor = "system"
	}
	ev := &types.AuditEvent{
		Action:     e.Action,
		ActorID:    actor,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
	}
	meta := e.Meta
	if td := ctxutil.GetTraceData(dbc.Ctx); td != nil && td.TraceID != "" {
		if meta == nil {
			meta = map[string]any{}
		}
		if _, ok := meta["trace_id"]; !ok {
			meta["trace_id"] = td.TraceID
		}
	}
	if len(meta) > 0 {
		b, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		ev.Meta = datatypes.JSON(b)
	}
	if err := s.repo.Create(dbc, ev); err != nil {
		s.log.Error("Audit write failed", "action", e.Action, "entity_id", e.EntityID, "error", err)
		return err
	}
	return nil
}

func (s *auditService) List(ctx context.Context, f repos.AuditFilter) ([]*types.AuditEvent, error) {
	return s.repo.List(dbctx.Context{Ctx: ctx}, f)
}
