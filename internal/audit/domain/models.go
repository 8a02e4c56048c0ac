package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type ActorType string

const (
	ActorTypeAdmin  ActorType = "admin"
	ActorTypeSystem ActorType = "system"
)

// AuditLog records one administrative or system action against a target
// entity. Rows are append-only.
type AuditLog struct {
	ID         snowflake.ID      `json:"id,string" gorm:"primaryKey"`
	ActorType  string            `json:"actor_type" gorm:"index"`
	ActorID    *string           `json:"actor_id,omitempty"`
	Action     string            `json:"action" gorm:"index"`
	TargetType string            `json:"target_type" gorm:"index:idx_audit_target"`
	TargetID   *string           `json:"target_id,omitempty" gorm:"index:idx_audit_target"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at" gorm:"index"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}

type AuditCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	Action     string
	TargetType string
	TargetID   string
	ActorType  string
	StartAt    *time.Time
	EndAt      *time.Time
	Cursor     *AuditCursor
	Limit      int
}
