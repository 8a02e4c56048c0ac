package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type RequestVerificationInput struct {
	ProductID   snowflake.ID
	RequesterID snowflake.ID
	Level       int
}

type SubmitReviewInput struct {
	VerificationID snowflake.ID
	ReviewerID     snowflake.ID
	Score          int
	Comments       string
	Recommendation Recommendation
}

type SubmitExpertReviewInput struct {
	ExpertReviewID snowflake.ID
	ExpertID       snowflake.ID
	Score          int
	Comments       string
	Recommendation Recommendation
}

type Service interface {
	Request(ctx context.Context, in RequestVerificationInput) (*Verification, error)
	Cancel(ctx context.Context, verificationID, requesterID snowflake.ID) (*Verification, error)
	Claim(ctx context.Context, verificationID, reviewerID snowflake.ID) (*Verification, error)
	Start(ctx context.Context, verificationID, reviewerID snowflake.ID) (*Verification, error)
	Submit(ctx context.Context, in SubmitReviewInput) (*Verification, error)

	ClaimExpert(ctx context.Context, expertReviewID, expertID snowflake.ID) (*ExpertReview, error)
	StartExpert(ctx context.Context, expertReviewID, expertID snowflake.ID) (*ExpertReview, error)
	SubmitExpert(ctx context.Context, in SubmitExpertReviewInput) (*ExpertReview, error)

	Get(ctx context.Context, verificationID snowflake.ID) (*Verification, error)
	ExpertReviews(ctx context.Context, verificationID snowflake.ID) ([]*ExpertReview, error)
}

// Validation errors.
var (
	ErrInvalidLevel           = errors.New("invalid_verification_level")
	ErrLevelNotEnabled        = errors.New("verification_level_not_enabled")
	ErrInvalidScore           = errors.New("invalid_score")
	ErrMissingComments        = errors.New("missing_comments")
	ErrMissingRecommendation  = errors.New("missing_recommendation")
	ErrRejectRequiresComments = errors.New("reject_requires_comments")
)

// Conflict errors: a current-status precondition did not hold.
var (
	ErrAlreadyClaimed    = errors.New("verification_already_claimed")
	ErrNotPending        = errors.New("verification_not_pending")
	ErrNotAssigned       = errors.New("verification_not_assigned")
	ErrNotInProgress     = errors.New("verification_not_in_progress")
	ErrNotCompleted      = errors.New("verification_not_completed")
	ErrNotAssignee       = errors.New("verification_not_assignee")
	ErrNotRequester      = errors.New("verification_not_requester")
	ErrAlreadySubmitted  = errors.New("review_already_submitted")
	ErrExpertNotAssignee = errors.New("expert_review_not_assignee")

	// ErrExpertPanelRequired is returned when the single-reviewer path is
	// attempted on a Level-3 verification: panel verifications complete
	// only through their four expert sub-reviews.
	ErrExpertPanelRequired = errors.New("expert_panel_required")
)

// Not-found errors.
var (
	ErrVerificationNotFound = errors.New("verification_not_found")
	ErrExpertReviewNotFound = errors.New("expert_review_not_found")
	ErrProductNotFound      = errors.New("product_not_found")
)
