package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"

	admindomain "github.com/craftbase/meridian/internal/adminops/domain"
	auditdomain "github.com/craftbase/meridian/internal/audit/domain"
	settlementdomain "github.com/craftbase/meridian/internal/settlement/domain"
	"github.com/craftbase/meridian/internal/settlement/runner"
	"github.com/craftbase/meridian/pkg/db/pagination"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type assignRequest struct {
	AdminID    string `json:"admin_id"`
	AssigneeID string `json:"assignee_id"`
}

type decisionRequest struct {
	AdminID string `json:"admin_id"`
	Note    string `json:"note"`
}

type runSettlementsRequest struct {
	OwnerType   string `json:"owner_type"`
	OwnerID     string `json:"owner_id"`
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`
}

func (s *Server) AssignVerifier(c *gin.Context) {
	verificationID, ok := parseID(c, c.Param("id"), "id")
	if !ok {
		return
	}

	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	adminID, ok := parseID(c, req.AdminID, "admin_id")
	if !ok {
		return
	}
	assigneeID, ok := parseID(c, req.AssigneeID, "assignee_id")
	if !ok {
		return
	}

	verification, err := s.adminSvc.AssignVerifier(c.Request.Context(), admindomain.AssignVerifierInput{
		VerificationID: verificationID,
		AdminID:        adminID,
		AssigneeID:     assigneeID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, verification)
}

func (s *Server) AssignExpert(c *gin.Context) {
	reviewID, ok := parseID(c, c.Param("id"), "id")
	if !ok {
		return
	}

	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	adminID, ok := parseID(c, req.AdminID, "admin_id")
	if !ok {
		return
	}
	assigneeID, ok := parseID(c, req.AssigneeID, "assignee_id")
	if !ok {
		return
	}

	review, err := s.adminSvc.AssignExpert(c.Request.Context(), admindomain.AssignExpertInput{
		ExpertReviewID: reviewID,
		AdminID:        adminID,
		AssigneeID:     assigneeID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, review)
}

func (s *Server) ApproveVerification(c *gin.Context) {
	s.decide(c, s.adminSvc.ApproveVerification)
}

func (s *Server) RejectVerification(c *gin.Context) {
	s.decide(c, s.adminSvc.RejectVerification)
}

func (s *Server) decide(c *gin.Context, decision func(ctx context.Context, in admindomain.DecisionInput) (*admindomain.DecisionResult, error)) {
	verificationID, ok := parseID(c, c.Param("id"), "id")
	if !ok {
		return
	}

	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	adminID, ok := parseID(c, req.AdminID, "admin_id")
	if !ok {
		return
	}

	result, err := decision(c.Request.Context(), admindomain.DecisionInput{
		VerificationID: verificationID,
		AdminID:        adminID,
		Note:           req.Note,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) RunSettlements(c *gin.Context) {
	// The body is optional: a bare trigger settles the previous month for
	// every owner.
	var req runSettlementsRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	periodStart, periodEnd := runner.PreviousMonth(time.Now())
	if strings.TrimSpace(req.PeriodStart) != "" || strings.TrimSpace(req.PeriodEnd) != "" {
		parsedStart, err := time.Parse(time.RFC3339, strings.TrimSpace(req.PeriodStart))
		if err != nil {
			AbortWithError(c, newValidationError("period_start", "invalid_time", "period_start must be RFC3339"))
			return
		}
		parsedEnd, err := time.Parse(time.RFC3339, strings.TrimSpace(req.PeriodEnd))
		if err != nil {
			AbortWithError(c, newValidationError("period_end", "invalid_time", "period_end must be RFC3339"))
			return
		}
		periodStart, periodEnd = parsedStart.UTC(), parsedEnd.UTC()
	}

	if strings.TrimSpace(req.OwnerID) == "" {
		report, err := s.settlementRun.Run(c.Request.Context(), periodStart, periodEnd)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		s.auditSettlementRun(c, report, nil)
		c.JSON(http.StatusOK, report)
		return
	}

	ownerID, ok := parseID(c, req.OwnerID, "owner_id")
	if !ok {
		return
	}
	ownerType := settlementdomain.OwnerType(strings.ToUpper(strings.TrimSpace(req.OwnerType)))

	report, err := s.settlementRun.RunOwner(c.Request.Context(), ownerType, ownerID, periodStart, periodEnd)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.auditSettlementRun(c, report, &ownerID)
	c.JSON(http.StatusOK, report)
}

// auditSettlementRun records a manual trigger; best-effort, the run itself
// already succeeded.
func (s *Server) auditSettlementRun(c *gin.Context, report *runner.RunReport, ownerID *snowflake.ID) {
	metadata := map[string]any{
		"period_start": report.PeriodStart.Format(time.RFC3339),
		"period_end":   report.PeriodEnd.Format(time.RFC3339),
		"created":      report.Sellers.Created + report.Reviewers.Created + report.Experts.Created,
		"failed":       len(report.Errors()),
	}
	var targetID *string
	if ownerID != nil {
		target := ownerID.String()
		targetID = &target
	}
	if err := s.auditSvc.Record(c.Request.Context(), string(auditdomain.ActorTypeAdmin), nil,
		"settlement.run", "settlement_run", targetID, metadata); err != nil {
		s.log.Warn("audit record failed", zap.String("action", "settlement.run"), zap.Error(err))
	}
}

func (s *Server) MarkSettlementProcessing(c *gin.Context) {
	s.transitionSettlement(c, s.settlementSvc.MarkProcessing)
}

func (s *Server) MarkSettlementPaid(c *gin.Context) {
	s.transitionSettlement(c, s.settlementSvc.MarkPaid)
}

func (s *Server) MarkSettlementFailed(c *gin.Context) {
	s.transitionSettlement(c, s.settlementSvc.MarkFailed)
}

func (s *Server) ListAuditLogs(c *gin.Context) {
	req := auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{
			PageToken: c.Query("page_token"),
		},
		Action:     c.Query("action"),
		TargetType: c.Query("target_type"),
		TargetID:   c.Query("target_id"),
		ActorType:  c.Query("actor_type"),
	}
	if raw := strings.TrimSpace(c.Query("page_size")); raw != "" {
		size, err := parsePageSize(raw)
		if err != nil {
			AbortWithError(c, newValidationError("page_size", "invalid_page_size", "page_size must be a positive integer"))
			return
		}
		req.PageSize = size
	}
	if raw := strings.TrimSpace(c.Query("start_at")); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			AbortWithError(c, newValidationError("start_at", "invalid_time", "start_at must be RFC3339"))
			return
		}
		startAt := parsed.UTC()
		req.StartAt = &startAt
	}
	if raw := strings.TrimSpace(c.Query("end_at")); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			AbortWithError(c, newValidationError("end_at", "invalid_time", "end_at must be RFC3339"))
			return
		}
		endAt := parsed.UTC()
		req.EndAt = &endAt
	}

	resp, err := s.auditSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) transitionSettlement(c *gin.Context, transition func(ctx context.Context, settlementID snowflake.ID) (*settlementdomain.Settlement, error)) {
	settlementID, ok := parseID(c, c.Param("id"), "id")
	if !ok {
		return
	}

	settlement, err := transition(c.Request.Context(), settlementID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, settlement)
}

func parsePageSize(raw string) (int, error) {
	size, err := strconv.Atoi(raw)
	if err != nil || size <= 0 {
		return 0, ErrInvalidRequest
	}
	return size, nil
}
