package handlers

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	types "github.com/yungbote/neurobridge-hydration/internal/domain"
	"github.com/yungbote/neurobridge-hydration/internal/http/middleware"
	"github.com/yungbote/neurobridge-hydration/internal/http/response"
	"github.com/yungbote/neurobridge-hydration/internal/services"
)

type PromotionHandler struct {
	promo services.PromotionService
}

func NewPromotionHandler(promo services.PromotionService) *PromotionHandler {
	return &PromotionHandler{promo: promo}
}

type reviewRequest struct {
	Notes string `json:"notes"`
}

// GET /api/candidates?status=PENDING&limit=50
func (h *PromotionHandler) ListCandidates(c *gin.Context) {
	status := types.CandidateStatus(strings.ToUpper(strings.TrimSpace(c.Query("status"))))
	cands, err := h.promo.ListCandidates(c.Request.Context(), status, queryInt(c, "limit", 50))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"candidates": cands})
}

// POST /api/candidates/:id/approve
func (h *PromotionHandler) Approve(c *gin.Context) {
	id, ok := parseID(c, "invalid_candidate_id")
	if !ok {
		return
	}
	var req reviewRequest
	_ = c.ShouldBindJSON(&req)
	pub, err := h.promo.ApproveCandidate(c.Request.Context(), id, middleware.Actor(c), req.Notes)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"published": pub})
}

// POST /api/candidates/:id/reject
func (h *PromotionHandler) Reject(c *gin.Context) {
	id, ok := parseID(c, "invalid_candidate_id")
	if !ok {
		return
	}
	var req reviewRequest
	_ = c.ShouldBindJSON(&req)
	cand, err := h.promo.RejectCandidate(c.Request.Context(), id, middleware.Actor(c), req.Notes)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"candidate": cand})
}

// GET /api/published/:scope/:ref
func (h *PromotionHandler) GetPublished(c *gin.Context) {
	pub, err := h.promo.GetPublished(c.Request.Context(), scopeParam(c), c.Param("ref"))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"published": pub})
}

// POST /api/published/:scope/:ref/revert
func (h *PromotionHandler) Revert(c *gin.Context) {
	var req reviewRequest
	_ = c.ShouldBindJSON(&req)
	pub, err := h.promo.RevertPublished(c.Request.Context(), scopeParam(c), c.Param("ref"), middleware.Actor(c), req.Notes)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"published": pub})
}

func scopeParam(c *gin.Context) types.Scope {
	return types.Scope(strings.ToUpper(strings.TrimSpace(c.Param("scope"))))
}

func queryInt(c *gin.Context, key string, def int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
