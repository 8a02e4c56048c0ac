package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type EarningsSummary struct {
	ReviewerID  snowflake.ID      `json:"reviewer_id"`
	PeriodStart time.Time         `json:"period_start"`
	PeriodEnd   time.Time         `json:"period_end"`
	Total       int64             `json:"total"`
	Payouts     []*ReviewerPayout `json:"payouts"`
}

// LevelEarnings is one row of the per-level breakdown.
type LevelEarnings struct {
	Level  int   `json:"level"`
	Count  int   `json:"count"`
	Amount int64 `json:"amount"`
}

type Service interface {
	// RecordEarning creates the PENDING payout row for an approved
	// verification. Idempotent: a second call for the same verification
	// returns the existing row.
	RecordEarning(ctx context.Context, verificationID, reviewerID snowflake.ID, amount int64, level int) (*ReviewerPayout, error)
	RecordExpertEarning(ctx context.Context, expertReviewID, verificationID, expertID snowflake.ID, amount int64) (*ExpertPayout, error)

	Earnings(ctx context.Context, reviewerID snowflake.ID, periodStart, periodEnd time.Time) (*EarningsSummary, error)
	EarningsBreakdown(ctx context.Context, reviewerID snowflake.ID, periodStart, periodEnd time.Time) ([]LevelEarnings, error)

	UpdateStats(ctx context.Context, reviewerID snowflake.ID) (*ReviewerStats, error)
}

var (
	ErrInvalidAmount = errors.New("invalid_payout_amount")
	ErrInvalidPeriod = errors.New("invalid_earnings_period")
)
