package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// ReportKind tags which variant of the report is populated. Exactly one of
// the phase sections is set per kind; the admin decision is attached on
// final disposition regardless of kind.
type ReportKind string

const (
	ReportAutomated   ReportKind = "AUTOMATED"
	ReportManual      ReportKind = "MANUAL"
	ReportExpertPanel ReportKind = "EXPERT_PANEL"
)

// Report is the typed verification report. Earlier systems stuffed the
// automated output, manual review, panel detail and admin decision into a
// single loose JSON blob; here each phase has its own shape.
type Report struct {
	Kind ReportKind `json:"kind"`

	Automated *AutomatedCheck    `json:"automated,omitempty"`
	Manual    *ManualReview      `json:"manual,omitempty"`
	Panel     []ExpertPanelEntry `json:"panel,omitempty"`

	Decision *AdminDecision `json:"decision,omitempty"`
}

// AutomatedCheck is the Level-0 machine pass.
type AutomatedCheck struct {
	Passed    bool      `json:"passed"`
	Checks    []string  `json:"checks"`
	CheckedAt time.Time `json:"checked_at"`
}

// ManualReview is the single-reviewer submission (Levels 1 and 2).
type ManualReview struct {
	ReviewerID     snowflake.ID   `json:"reviewer_id"`
	Score          int            `json:"score"`
	Comments       string         `json:"comments"`
	Recommendation Recommendation `json:"recommendation"`
	SubmittedAt    time.Time      `json:"submitted_at"`
}

// ExpertPanelEntry is one specialist's completed sub-review.
type ExpertPanelEntry struct {
	Specialty      ExpertSpecialty `json:"specialty"`
	ExpertID       snowflake.ID    `json:"expert_id"`
	Score          *int            `json:"score,omitempty"`
	Comments       string          `json:"comments"`
	Recommendation Recommendation  `json:"recommendation"`
	SubmittedAt    time.Time       `json:"submitted_at"`
}

type DecisionOutcome string

const (
	DecisionApproved DecisionOutcome = "APPROVED"
	DecisionRejected DecisionOutcome = "REJECTED"
)

// AdminDecision is the final admin disposition, recorded alongside the
// report rather than mixed into it.
type AdminDecision struct {
	AdminID   snowflake.ID    `json:"admin_id"`
	Outcome   DecisionOutcome `json:"outcome"`
	Note      string          `json:"note,omitempty"`
	DecidedAt time.Time       `json:"decided_at"`
}
