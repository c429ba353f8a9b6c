package handler

import (
	"context"
	"encoding/json"

	"recruit-go/internal/service"
	"recruit-go/internal/types"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// MatchHandler 岗位匹配接口
type MatchHandler struct {
	svc *service.JobMatchService
}

// NewMatchHandler 创建匹配接口
func NewMatchHandler(svc *service.JobMatchService) *MatchHandler {
	return &MatchHandler{svc: svc}
}

type updateMatchStatusRequest struct {
	Status types.MatchStatus `json:"status"`
}

type calculateMatchRequest struct {
	JobID       string `json:"job_id"`
	CandidateID string `json:"candidate_id"`
}

type bulkMatchRequest struct {
	JobID        string   `json:"job_id"`
	CandidateIDs []string `json:"candidate_ids"`
}

// List GET /matches?job_id=&candidate_id=
func (h *MatchHandler) List(ctx context.Context, c *app.RequestContext) {
	var (
		matches []types.JobMatch
		err     error
	)
	jobID, candidateID := c.Query("job_id"), c.Query("candidate_id")
	switch {
	case jobID != "":
		matches, err = h.svc.GetMatchesForJob(ctx, jobID)
		if err == nil && candidateID != "" {
			matches = filterByCandidate(matches, candidateID)
		}
	case candidateID != "":
		matches, err = h.svc.GetMatchesForCandidate(ctx, candidateID)
	default:
		matches, err = h.svc.GetAll(ctx)
	}
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, matches)
}

func filterByCandidate(matches []types.JobMatch, candidateID string) []types.JobMatch {
	out := make([]types.JobMatch, 0, len(matches))
	for _, m := range matches {
		if m.CandidateID == candidateID {
			out = append(out, m)
		}
	}
	return out
}

// Get GET /matches/:id
func (h *MatchHandler) Get(ctx context.Context, c *app.RequestContext) {
	m, err := h.svc.GetByID(ctx, c.Param("id"))
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, m)
}

// UpdateStatus PUT /matches/:id/status
func (h *MatchHandler) UpdateStatus(ctx context.Context, c *app.RequestContext) {
	var req updateMatchStatusRequest
	if err := json.Unmarshal(c.Request.Body(), &req); err != nil || req.Status == "" {
		badRequest(c, "缺少 status 字段")
		return
	}
	m, err := h.svc.UpdateMatchStatus(ctx, c.Param("id"), req.Status)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, m)
}

// Calculate POST /matches/calculate
func (h *MatchHandler) Calculate(ctx context.Context, c *app.RequestContext) {
	var req calculateMatchRequest
	if err := json.Unmarshal(c.Request.Body(), &req); err != nil || req.JobID == "" || req.CandidateID == "" {
		badRequest(c, "需要 job_id 和 candidate_id")
		return
	}
	m, err := h.svc.CalculateMatchScore(ctx, req.JobID, req.CandidateID)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusCreated, m)
}

// Bulk POST /matches/bulk
func (h *MatchHandler) Bulk(ctx context.Context, c *app.RequestContext) {
	var req bulkMatchRequest
	if err := json.Unmarshal(c.Request.Body(), &req); err != nil || req.JobID == "" || len(req.CandidateIDs) == 0 {
		badRequest(c, "需要 job_id 和非空的 candidate_ids")
		return
	}
	matches, err := h.svc.BulkCreateMatches(ctx, req.JobID, req.CandidateIDs)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusCreated, matches)
}

// Delete DELETE /matches/:id
func (h *MatchHandler) Delete(ctx context.Context, c *app.RequestContext) {
	if err := h.svc.Delete(ctx, c.Param("id")); err != nil {
		writeError(ctx, c, err)
		return
	}
	c.Status(consts.StatusNoContent)
}
