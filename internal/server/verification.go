package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	verificationdomain "github.com/craftbase/meridian/internal/verification/domain"
	"github.com/gin-gonic/gin"
)

type requestVerificationRequest struct {
	ProductID   string `json:"product_id"`
	RequesterID string `json:"requester_id"`
	Level       int    `json:"level"`
}

type actorRequest struct {
	ActorID string `json:"actor_id"`
}

type submitReviewRequest struct {
	ReviewerID     string `json:"reviewer_id"`
	Score          int    `json:"score"`
	Comments       string `json:"comments"`
	Recommendation string `json:"recommendation"`
}

func (s *Server) RequestVerification(c *gin.Context) {
	var req requestVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	productID, ok := parseID(c, req.ProductID, "product_id")
	if !ok {
		return
	}
	requesterID, ok := parseID(c, req.RequesterID, "requester_id")
	if !ok {
		return
	}

	verification, err := s.verificationSvc.Request(c.Request.Context(), verificationdomain.RequestVerificationInput{
		ProductID:   productID,
		RequesterID: requesterID,
		Level:       req.Level,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, verification)
}

func (s *Server) GetVerification(c *gin.Context) {
	verificationID, ok := parseID(c, c.Param("id"), "id")
	if !ok {
		return
	}

	verification, err := s.verificationSvc.Get(c.Request.Context(), verificationID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, verification)
}

func (s *Server) CancelVerification(c *gin.Context) {
	verificationID, actorID, ok := s.idAndActor(c)
	if !ok {
		return
	}

	verification, err := s.verificationSvc.Cancel(c.Request.Context(), verificationID, actorID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, verification)
}

func (s *Server) ClaimVerification(c *gin.Context) {
	verificationID, actorID, ok := s.idAndActor(c)
	if !ok {
		return
	}

	verification, err := s.verificationSvc.Claim(c.Request.Context(), verificationID, actorID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, verification)
}

func (s *Server) StartVerification(c *gin.Context) {
	verificationID, actorID, ok := s.idAndActor(c)
	if !ok {
		return
	}

	verification, err := s.verificationSvc.Start(c.Request.Context(), verificationID, actorID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, verification)
}

func (s *Server) SubmitReview(c *gin.Context) {
	verificationID, ok := parseID(c, c.Param("id"), "id")
	if !ok {
		return
	}

	var req submitReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	reviewerID, ok := parseID(c, req.ReviewerID, "reviewer_id")
	if !ok {
		return
	}

	verification, err := s.verificationSvc.Submit(c.Request.Context(), verificationdomain.SubmitReviewInput{
		VerificationID: verificationID,
		ReviewerID:     reviewerID,
		Score:          req.Score,
		Comments:       req.Comments,
		Recommendation: verificationdomain.Recommendation(strings.ToUpper(strings.TrimSpace(req.Recommendation))),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, verification)
}

func (s *Server) ListExpertReviews(c *gin.Context) {
	verificationID, ok := parseID(c, c.Param("id"), "id")
	if !ok {
		return
	}

	reviews, err := s.verificationSvc.ExpertReviews(c.Request.Context(), verificationID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"expert_reviews": reviews})
}

func (s *Server) ClaimExpertReview(c *gin.Context) {
	reviewID, actorID, ok := s.idAndActor(c)
	if !ok {
		return
	}

	review, err := s.verificationSvc.ClaimExpert(c.Request.Context(), reviewID, actorID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, review)
}

func (s *Server) StartExpertReview(c *gin.Context) {
	reviewID, actorID, ok := s.idAndActor(c)
	if !ok {
		return
	}

	review, err := s.verificationSvc.StartExpert(c.Request.Context(), reviewID, actorID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, review)
}

func (s *Server) SubmitExpertReview(c *gin.Context) {
	reviewID, ok := parseID(c, c.Param("id"), "id")
	if !ok {
		return
	}

	var req submitReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	expertID, ok := parseID(c, req.ReviewerID, "reviewer_id")
	if !ok {
		return
	}

	review, err := s.verificationSvc.SubmitExpert(c.Request.Context(), verificationdomain.SubmitExpertReviewInput{
		ExpertReviewID: reviewID,
		ExpertID:       expertID,
		Score:          req.Score,
		Comments:       req.Comments,
		Recommendation: verificationdomain.Recommendation(strings.ToUpper(strings.TrimSpace(req.Recommendation))),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, review)
}

func (s *Server) idAndActor(c *gin.Context) (snowflake.ID, snowflake.ID, bool) {
	targetID, ok := parseID(c, c.Param("id"), "id")
	if !ok {
		return 0, 0, false
	}

	var req actorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return 0, 0, false
	}
	actorID, ok := parseID(c, req.ActorID, "actor_id")
	if !ok {
		return 0, 0, false
	}
	return targetID, actorID, true
}

func parseID(c *gin.Context, raw, field string) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id == 0 {
		AbortWithError(c, newValidationError(field, "invalid_id", field+" must be a valid id"))
		return 0, false
	}
	return id, true
}
