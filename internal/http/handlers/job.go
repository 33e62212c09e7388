package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/yungbote/neurobridge-hydration/internal/domain"
	"github.com/yungbote/neurobridge-hydration/internal/domain/jobs"
	"github.com/yungbote/neurobridge-hydration/internal/http/middleware"
	"github.com/yungbote/neurobridge-hydration/internal/http/response"
	"github.com/yungbote/neurobridge-hydration/internal/services"
)

type JobHandler struct {
	jobs services.JobService
}

func NewJobHandler(jobs services.JobService) *JobHandler {
	return &JobHandler{jobs: jobs}
}

type submitJobRequest struct {
	JobKind      string             `json:"jobKind"`
	TargetEntity types.TargetEntity `json:"targetEntity"`
	Payload      json.RawMessage    `json:"payload"`
	MaxAttempts  int                `json:"maxAttempts"`
}

// POST /api/jobs
func (h *JobHandler) SubmitJob(c *gin.Context) {
	var req submitJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	kind, err := jobs.ParseJobKind(req.JobKind)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_job_kind", err)
		return
	}
	res, err := h.jobs.Submit(c.Request.Context(), services.SubmitInput{
		Kind:        kind,
		Target:      req.TargetEntity,
		Payload:     req.Payload,
		MaxAttempts: req.MaxAttempts,
	})
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	if res.Existing {
		response.RespondOK(c, res)
		return
	}
	response.RespondCreated(c, res)
}

// GET /api/jobs/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID, ok := parseID(c, "invalid_job_id")
	if !ok {
		return
	}
	job, err := h.jobs.Get(c.Request.Context(), jobID)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"job": job})
}

// GET /api/jobs/:id/timeline
func (h *JobHandler) GetTimeline(c *gin.Context) {
	jobID, ok := parseID(c, "invalid_job_id")
	if !ok {
		return
	}
	entries, err := h.jobs.Timeline(c.Request.Context(), jobID)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"timeline": entries})
}

// POST /api/jobs/:id/cancel
func (h *JobHandler) CancelJob(c *gin.Context) {
	jobID, ok := parseID(c, "invalid_job_id")
	if !ok {
		return
	}
	job, err := h.jobs.Cancel(c.Request.Context(), jobID, middleware.Actor(c))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"job": job})
}

func parseID(c *gin.Context, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, code, err)
		return uuid.Nil, false
	}
	return id, true
}
