package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/craftbase/meridian/internal/catalog/domain"
	earningsdomain "github.com/craftbase/meridian/internal/earnings/domain"
	verificationdomain "github.com/craftbase/meridian/internal/verification/domain"
)

type AssignVerifierInput struct {
	VerificationID snowflake.ID
	AdminID        snowflake.ID
	AssigneeID     snowflake.ID
}

type AssignExpertInput struct {
	ExpertReviewID snowflake.ID
	AdminID        snowflake.ID
	AssigneeID     snowflake.ID
}

type DecisionInput struct {
	VerificationID snowflake.ID
	AdminID        snowflake.ID
	Note           string
}

// DecisionResult is everything a final decision touched in its transaction.
// Payout is nil for zero-share verifications and rejections; ExpertPayouts
// is populated only for Level-3 approvals.
type DecisionResult struct {
	Verification  *verificationdomain.Verification `json:"verification"`
	Product       *catalogdomain.Product           `json:"product"`
	Payout        *earningsdomain.ReviewerPayout   `json:"payout,omitempty"`
	ExpertPayouts []*earningsdomain.ExpertPayout   `json:"expert_payouts,omitempty"`
}

type Service interface {
	AssignVerifier(ctx context.Context, in AssignVerifierInput) (*verificationdomain.Verification, error)
	AssignExpert(ctx context.Context, in AssignExpertInput) (*verificationdomain.ExpertReview, error)

	ApproveVerification(ctx context.Context, in DecisionInput) (*DecisionResult, error)
	RejectVerification(ctx context.Context, in DecisionInput) (*DecisionResult, error)
}

var (
	ErrNotAdmin           = errors.New("actor_not_admin")
	ErrUserNotFound       = errors.New("user_not_found")
	ErrCannotReview       = errors.New("assignee_cannot_review")
	ErrCannotExpertReview = errors.New("assignee_cannot_expert_review")
	ErrNotAssignable      = errors.New("verification_not_assignable")
	ErrRejectRequiresNote = errors.New("reject_requires_note")
)
