package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Role is a closed enum. Capability checks go through the predicates below
// rather than matching substrings on a free-text field.
type Role string

const (
	RoleBuyer    Role = "BUYER"
	RoleSeller   Role = "SELLER"
	RoleReviewer Role = "REVIEWER"
	RoleExpert   Role = "EXPERT"
	RoleAdmin    Role = "ADMIN"
)

// User is the slice of the identity directory this engine reads: who exists
// and what they are allowed to do.
type User struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	DisplayName string       `json:"display_name" gorm:"type:text;not null"`
	Role        Role         `json:"role" gorm:"type:text;not null"`
	CreatedAt   time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (User) TableName() string { return "users" }

// CanReview reports whether the user may claim and perform verifications.
func (u *User) CanReview() bool {
	return u.Role == RoleReviewer || u.Role == RoleExpert || u.Role == RoleAdmin
}

// CanExpertReview reports whether the user may sit on a Level-3 panel.
func (u *User) CanExpertReview() bool {
	return u.Role == RoleExpert || u.Role == RoleAdmin
}

// CanAdministrate reports whether the user may assign reviewers and issue
// final approve/reject decisions.
func (u *User) CanAdministrate() bool {
	return u.Role == RoleAdmin
}

func ValidRole(r Role) bool {
	switch r {
	case RoleBuyer, RoleSeller, RoleReviewer, RoleExpert, RoleAdmin:
		return true
	default:
		return false
	}
}
