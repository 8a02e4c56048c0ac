package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type PayoutStatus string

const (
	PayoutStatusPending  PayoutStatus = "PENDING"
	PayoutStatusIncluded PayoutStatus = "INCLUDED_IN_SETTLEMENT"
	PayoutStatusPaid     PayoutStatus = "PAID"
)

// ReviewerPayout is one ledger row per approved verification. The unique
// verification index is what makes RecordEarning safe under retry. Once a
// settlement id is bound the row is immutable and never picked up again.
type ReviewerPayout struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	VerificationID snowflake.ID `json:"verification_id" gorm:"not null;uniqueIndex:ux_reviewer_payout_verification"`
	ReviewerID     snowflake.ID `json:"reviewer_id" gorm:"not null;index"`
	Amount         int64        `json:"amount" gorm:"not null"`
	Level          int          `json:"level" gorm:"not null;default:0"`

	Status       PayoutStatus  `json:"status" gorm:"type:text;not null;index"`
	SettlementID *snowflake.ID `json:"settlement_id" gorm:"index"`

	EarnedAt  time.Time `json:"earned_at" gorm:"not null;index"`
	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (ReviewerPayout) TableName() string { return "reviewer_payouts" }

// ExpertPayout is the panel counterpart, one row per approved expert
// sub-review.
type ExpertPayout struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	ExpertReviewID snowflake.ID `json:"expert_review_id" gorm:"not null;uniqueIndex:ux_expert_payout_review"`
	VerificationID snowflake.ID `json:"verification_id" gorm:"not null;index"`
	ExpertID       snowflake.ID `json:"expert_id" gorm:"not null;index"`
	Amount         int64        `json:"amount" gorm:"not null"`

	Status       PayoutStatus  `json:"status" gorm:"type:text;not null;index"`
	SettlementID *snowflake.ID `json:"settlement_id" gorm:"index"`

	EarnedAt  time.Time `json:"earned_at" gorm:"not null;index"`
	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (ExpertPayout) TableName() string { return "expert_payouts" }

// ReviewerStats is the per-reviewer aggregate record, recomputed from
// verification and payout history rather than incremented in place.
type ReviewerStats struct {
	ReviewerID             snowflake.ID `json:"reviewer_id" gorm:"primaryKey"`
	TotalVerifications     int          `json:"total_verifications" gorm:"not null;default:0"`
	TotalEarnings          int64        `json:"total_earnings" gorm:"not null;default:0"`
	ApprovalRate           float64      `json:"approval_rate" gorm:"not null;default:0"`
	AverageScoreGiven      float64      `json:"average_score_given" gorm:"not null;default:0"`
	AverageReviewTimeHours float64      `json:"average_review_time_hours" gorm:"not null;default:0"`

	UpdatedAt time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (ReviewerStats) TableName() string { return "reviewer_stats" }
