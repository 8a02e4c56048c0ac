package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// CalculationSummary reports what went into one settlement calculation.
// Refund totals are informational: refunded orders never appear in the paid
// aggregation, and they are not subtracted from PayoutAmount. Whether
// upstream should also net refunds out of payouts is an open product
// question; this engine reports them for visibility only.
type CalculationSummary struct {
	OrderCount   int   `json:"order_count"`
	TotalAmount  int64 `json:"total_amount"`
	PlatformFee  int64 `json:"platform_fee"`
	PayoutAmount int64 `json:"payout_amount"`

	RefundCount  int   `json:"refund_count"`
	RefundAmount int64 `json:"refund_amount"`
}

// CalculationResult carries the persisted settlement plus the summary.
// Created is false when the (owner, period) was already settled and the
// existing settlement is returned untouched.
type CalculationResult struct {
	Settlement *Settlement        `json:"settlement"`
	Summary    CalculationSummary `json:"summary"`
	Created    bool               `json:"created"`
}

// MonthEstimate is the read-only month-to-date dashboard projection.
// Nothing is persisted while computing it.
type MonthEstimate struct {
	OwnerID     snowflake.ID `json:"owner_id"`
	PeriodStart time.Time    `json:"period_start"`
	AsOf        time.Time    `json:"as_of"`

	SalesAmount       int64 `json:"sales_amount"`
	SalesPlatformFee  int64 `json:"sales_platform_fee"`
	SalesPayout       int64 `json:"sales_payout"`
	PendingEarnings   int64 `json:"pending_earnings"`
	PendingPayoutRows int   `json:"pending_payout_rows"`
	EstimatedTotal    int64 `json:"estimated_total"`
}

type Service interface {
	CalculateSellerSettlement(ctx context.Context, sellerID snowflake.ID, periodStart, periodEnd time.Time) (*CalculationResult, error)
	CalculateReviewerSettlement(ctx context.Context, ownerType OwnerType, ownerID snowflake.ID, periodStart, periodEnd time.Time) (*CalculationResult, error)

	CurrentMonthEstimate(ctx context.Context, ownerID snowflake.ID) (*MonthEstimate, error)

	MarkProcessing(ctx context.Context, settlementID snowflake.ID) (*Settlement, error)
	MarkPaid(ctx context.Context, settlementID snowflake.ID) (*Settlement, error)
	MarkFailed(ctx context.Context, settlementID snowflake.ID) (*Settlement, error)

	Get(ctx context.Context, settlementID snowflake.ID) (*Settlement, error)
	Items(ctx context.Context, settlementID snowflake.ID) ([]*SettlementItem, error)
}

var (
	ErrInvalidPeriod       = errors.New("invalid_settlement_period")
	ErrPeriodOverlap       = errors.New("settlement_period_overlap")
	ErrInvalidOwnerType    = errors.New("invalid_settlement_owner_type")
	ErrSettlementNotFound  = errors.New("settlement_not_found")
	ErrNotPendingStatus    = errors.New("settlement_not_pending")
	ErrNotProcessingStatus = errors.New("settlement_not_processing")
	ErrPayoutBindConflict  = errors.New("payout_bind_conflict")
)
