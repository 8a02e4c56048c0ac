package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Product carries the catalog fields this engine is allowed to touch. The
// wider catalog (pricing, media, listing state) belongs to the catalog
// service; approval and rejection mutate only the verification fields.
type Product struct {
	ID       snowflake.ID `json:"id" gorm:"primaryKey"`
	SellerID snowflake.ID `json:"seller_id" gorm:"not null;index"`
	Title    string       `json:"title" gorm:"type:text;not null"`

	VerificationLevel  int                         `json:"verification_level" gorm:"not null;default:0"`
	VerificationScore  *int                        `json:"verification_score"`
	VerificationBadges datatypes.JSONSlice[string] `json:"verification_badges" gorm:"type:jsonb"`
	VerifiedAt         *time.Time                  `json:"verified_at"`

	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Product) TableName() string { return "products" }

// ResetVerification returns the product's verification fields to the
// unverified baseline. Used on rejection.
func (p *Product) ResetVerification() {
	p.VerificationLevel = 0
	p.VerificationScore = nil
	p.VerificationBadges = nil
	p.VerifiedAt = nil
}
