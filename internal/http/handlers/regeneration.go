package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	types "github.com/yungbote/neurobridge-hydration/internal/domain"
	"github.com/yungbote/neurobridge-hydration/internal/http/middleware"
	"github.com/yungbote/neurobridge-hydration/internal/http/response"
	"github.com/yungbote/neurobridge-hydration/internal/services"
)

type RegenerationHandler struct {
	regen services.RegenerationService
	retry services.RetryIntentService
}

func NewRegenerationHandler(regen services.RegenerationService, retry services.RetryIntentService) *RegenerationHandler {
	return &RegenerationHandler{regen: regen, retry: retry}
}

// POST /api/regeneration/suggestions
func (h *RegenerationHandler) CreateFromSuggestion(c *gin.Context) {
	var in services.SuggestionInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	job, err := h.regen.RequestFromSuggestion(c.Request.Context(), in, middleware.Actor(c))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"job": job})
}

type retryIntentRequest struct {
	ReasonCode string `json:"reasonCode"`
	Reason     string `json:"reason"`
}

// POST /api/regeneration/jobs/:id/retry-intents
func (h *RegenerationHandler) CreateRetryIntent(c *gin.Context) {
	jobID, ok := parseID(c, "invalid_regeneration_job_id")
	if !ok {
		return
	}
	var req retryIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	intent, err := h.retry.CreateIntent(c.Request.Context(), services.CreateIntentInput{
		SourceJobID: jobID,
		ReasonCode:  types.ReasonCode(strings.ToUpper(strings.TrimSpace(req.ReasonCode))),
		Reason:      req.Reason,
		RequestedBy: middleware.Actor(c),
	})
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"intent": intent})
}

// POST /api/retry-intents/:id/execute
func (h *RegenerationHandler) ExecuteRetryIntent(c *gin.Context) {
	intentID, ok := parseID(c, "invalid_intent_id")
	if !ok {
		return
	}
	job, err := h.retry.CreateRetryJobFromIntent(c.Request.Context(), intentID, middleware.Actor(c))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"job": job})
}
