package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type OrderStatus string

const (
	OrderStatusPaid     OrderStatus = "PAID"
	OrderStatusRefunded OrderStatus = "REFUNDED"
)

// Order is the paid-order record supplied by the payment collaborator.
// Amount, PlatformFee and SellerAmount are computed upstream at capture
// time; settlement math trusts them verbatim.
type Order struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	BuyerID   snowflake.ID `json:"buyer_id" gorm:"not null;index"`
	ProductID snowflake.ID `json:"product_id" gorm:"not null;index"`
	SellerID  snowflake.ID `json:"seller_id" gorm:"not null;index"`

	Amount       int64  `json:"amount" gorm:"not null"`
	PlatformFee  int64  `json:"platform_fee" gorm:"not null;default:0"`
	SellerAmount int64  `json:"seller_amount" gorm:"not null"`
	Currency     string `json:"currency" gorm:"type:text;not null;default:'KRW'"`

	Status     OrderStatus `json:"status" gorm:"type:text;not null;index"`
	PaidAt     *time.Time  `json:"paid_at" gorm:"index"`
	RefundedAt *time.Time  `json:"refunded_at"`

	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Order) TableName() string { return "orders" }
