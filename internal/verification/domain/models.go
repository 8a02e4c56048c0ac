package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type VerificationStatus string

const (
	StatusPending    VerificationStatus = "PENDING"
	StatusAssigned   VerificationStatus = "ASSIGNED"
	StatusInProgress VerificationStatus = "IN_PROGRESS"
	StatusCompleted  VerificationStatus = "COMPLETED"
	StatusApproved   VerificationStatus = "APPROVED"
	StatusRejected   VerificationStatus = "REJECTED"
	StatusCancelled  VerificationStatus = "CANCELLED"
)

// Terminal reports whether no further transition may leave the status.
func (s VerificationStatus) Terminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusCancelled:
		return true
	default:
		return false
	}
}

type Recommendation string

const (
	RecommendApprove Recommendation = "APPROVE"
	RecommendReject  Recommendation = "REJECT"
)

type ExpertSpecialty string

const (
	SpecialtyDesign      ExpertSpecialty = "DESIGN"
	SpecialtyPlanning    ExpertSpecialty = "PLANNING"
	SpecialtyDevelopment ExpertSpecialty = "DEVELOPMENT"
	SpecialtyDomain      ExpertSpecialty = "DOMAIN"
)

// Specialties lists the Level-3 panel in creation order. The fee remainder
// policy depends on this order staying stable.
var Specialties = [4]ExpertSpecialty{
	SpecialtyDesign,
	SpecialtyPlanning,
	SpecialtyDevelopment,
	SpecialtyDomain,
}

// Verification is a paid request to review a product at a given rigor level.
// Fee == PlatformShare + ReviewerShare at creation and never changes.
type Verification struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	ProductID   snowflake.ID `json:"product_id" gorm:"not null;index"`
	RequesterID snowflake.ID `json:"requester_id" gorm:"not null;index"`
	Level       int          `json:"level" gorm:"not null"`

	Status VerificationStatus `json:"status" gorm:"type:text;not null;index"`

	Fee           int64 `json:"fee" gorm:"not null"`
	PlatformShare int64 `json:"platform_share" gorm:"not null"`
	ReviewerShare int64 `json:"reviewer_share" gorm:"not null"`

	ReviewerID *snowflake.ID               `json:"reviewer_id" gorm:"index"`
	Score      *int                        `json:"score"`
	Badges     datatypes.JSONSlice[string] `json:"badges" gorm:"type:jsonb"`

	Report datatypes.JSONType[Report] `json:"report" gorm:"type:jsonb"`

	RequestedAt time.Time  `json:"requested_at" gorm:"not null"`
	AssignedAt  *time.Time `json:"assigned_at"`
	ReviewedAt  *time.Time `json:"reviewed_at"`
	CompletedAt *time.Time `json:"completed_at"`

	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Verification) TableName() string { return "verifications" }

// ExpertReview is one of the four Level-3 panel rows. Each carries its own
// fee split and walks the same four-state shape independently.
type ExpertReview struct {
	ID             snowflake.ID    `json:"id" gorm:"primaryKey"`
	VerificationID snowflake.ID    `json:"verification_id" gorm:"not null;uniqueIndex:ux_expert_review_specialty,priority:1"`
	Specialty      ExpertSpecialty `json:"specialty" gorm:"type:text;not null;uniqueIndex:ux_expert_review_specialty,priority:2"`

	Status VerificationStatus `json:"status" gorm:"type:text;not null;index"`

	Fee           int64 `json:"fee" gorm:"not null"`
	PlatformShare int64 `json:"platform_share" gorm:"not null"`
	ExpertShare   int64 `json:"expert_share" gorm:"not null"`

	ExpertID       *snowflake.ID  `json:"expert_id" gorm:"index"`
	Score          *int           `json:"score"`
	Comments       string         `json:"comments" gorm:"type:text"`
	Recommendation Recommendation `json:"recommendation" gorm:"type:text"`

	AssignedAt  *time.Time `json:"assigned_at"`
	ReviewedAt  *time.Time `json:"reviewed_at"`
	CompletedAt *time.Time `json:"completed_at"`

	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (ExpertReview) TableName() string { return "expert_reviews" }
