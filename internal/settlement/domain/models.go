package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type SettlementStatus string

const (
	SettlementStatusPending    SettlementStatus = "PENDING"
	SettlementStatusProcessing SettlementStatus = "PROCESSING"
	SettlementStatusPaid       SettlementStatus = "PAID"
	SettlementStatusFailed     SettlementStatus = "FAILED"
	SettlementStatusCancelled  SettlementStatus = "CANCELLED"
)

// OwnerType discriminates who a settlement belongs to instead of letting a
// single seller_id column carry two meanings.
type OwnerType string

const (
	OwnerSeller   OwnerType = "SELLER"
	OwnerReviewer OwnerType = "REVIEWER"
	OwnerExpert   OwnerType = "EXPERT"
)

// Settlement is the periodic financial summary for one owner over a
// half-open, per-owner non-overlapping window. The unique period index is
// the exclusion mechanism against duplicate batch creation.
type Settlement struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	OwnerType OwnerType    `json:"owner_type" gorm:"type:text;not null;uniqueIndex:ux_settlement_owner_period,priority:1"`
	OwnerID   snowflake.ID `json:"owner_id" gorm:"not null;uniqueIndex:ux_settlement_owner_period,priority:2"`

	PeriodStart time.Time `json:"period_start" gorm:"not null;uniqueIndex:ux_settlement_owner_period,priority:3"`
	PeriodEnd   time.Time `json:"period_end" gorm:"not null;uniqueIndex:ux_settlement_owner_period,priority:4"`

	TotalAmount  int64 `json:"total_amount" gorm:"not null;default:0"`
	PlatformFee  int64 `json:"platform_fee" gorm:"not null;default:0"`
	PayoutAmount int64 `json:"payout_amount" gorm:"not null;default:0"`

	VerificationEarnings int64 `json:"verification_earnings" gorm:"not null;default:0"`
	VerificationCount    int   `json:"verification_count" gorm:"not null;default:0"`

	Status SettlementStatus `json:"status" gorm:"type:text;not null;index"`

	ProcessedAt *time.Time `json:"processed_at"`
	PaidAt      *time.Time `json:"paid_at"`

	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Settlement) TableName() string { return "settlements" }

// SettlementItem links a settlement to one originating paid order with that
// order's own split. Items' payout amounts sum to the settlement's
// sales-derived payout component.
type SettlementItem struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	SettlementID snowflake.ID `json:"settlement_id" gorm:"not null;index"`
	OrderID      snowflake.ID `json:"order_id" gorm:"not null;index"`
	ProductID    snowflake.ID `json:"product_id" gorm:"not null"`

	Amount       int64 `json:"amount" gorm:"not null"`
	PlatformFee  int64 `json:"platform_fee" gorm:"not null"`
	PayoutAmount int64 `json:"payout_amount" gorm:"not null"`

	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (SettlementItem) TableName() string { return "settlement_items" }
