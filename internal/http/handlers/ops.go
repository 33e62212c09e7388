package handlers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/neurobridge-hydration/internal/data/repos"
	types "github.com/yungbote/neurobridge-hydration/internal/domain"
	"github.com/yungbote/neurobridge-hydration/internal/http/response"
	perrors "github.com/yungbote/neurobridge-hydration/internal/pkg/errors"
	"github.com/yungbote/neurobridge-hydration/internal/services"
)

type AlertLister interface {
	ListAlerts(ctx context.Context, activeOnly bool, limit int) ([]*types.SystemAlert, error)
}

// OpsHandler serves the read-only dashboards: alerts and the audit trail.
type OpsHandler struct {
	alerts AlertLister
	audit  services.AuditService
}

func NewOpsHandler(alerts AlertLister, audit services.AuditService) *OpsHandler {
	return &OpsHandler{alerts: alerts, audit: audit}
}

// GET /api/alerts?active=true
func (h *OpsHandler) ListAlerts(c *gin.Context) {
	activeOnly := !strings.EqualFold(strings.TrimSpace(c.Query("active")), "false")
	alerts, err := h.alerts.ListAlerts(c.Request.Context(), activeOnly, queryInt(c, "limit", 100))
	if err != nil {
		response.RespondErr(c, perrors.Infra("alerts.list", err))
		return
	}
	response.RespondOK(c, gin.H{"alerts": alerts})
}

// GET /api/audit?action=&entityType=&entityId=&limit=
func (h *OpsHandler) ListAudit(c *gin.Context) {
	events, err := h.audit.List(c.Request.Context(), repos.AuditFilter{
		Action:     types.AuditAction(strings.ToUpper(strings.TrimSpace(c.Query("action")))),
		EntityType: strings.TrimSpace(c.Query("entityType")),
		EntityID:   strings.TrimSpace(c.Query("entityId")),
		Limit:      queryInt(c, "limit", 100),
	})
	if err != nil {
		response.RespondErr(c, perrors.Infra("audit.list", err))
		return
	}
	response.RespondOK(c, gin.H{"events": events})
}
