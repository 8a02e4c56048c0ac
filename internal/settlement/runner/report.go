package runner

import (
	"time"

	"github.com/bwmarrin/snowflake"
	settlementdomain "github.com/craftbase/meridian/internal/settlement/domain"
)

type UnitOutcome string

const (
	UnitCreated UnitOutcome = "CREATED"
	UnitSkipped UnitOutcome = "SKIPPED"
	UnitFailed  UnitOutcome = "FAILED"
)

// UnitResult is the outcome of one owner's settlement pass. Failures live
// here instead of escaping the batch loop.
type UnitResult struct {
	OwnerType    settlementdomain.OwnerType `json:"owner_type"`
	OwnerID      snowflake.ID               `json:"owner_id"`
	Outcome      UnitOutcome                `json:"outcome"`
	SettlementID *snowflake.ID              `json:"settlement_id,omitempty"`
	Error        string                     `json:"error,omitempty"`
}

func (r UnitResult) Failed() bool { return r.Outcome == UnitFailed }

// CohortStats counts outcomes per cohort (sellers, reviewers, experts).
type CohortStats struct {
	Owners  int `json:"owners"`
	Created int `json:"created"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// RunReport is the terminal output of a batch pass, intended for
// operational inspection.
type RunReport struct {
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`

	Sellers   CohortStats `json:"sellers"`
	Reviewers CohortStats `json:"reviewers"`
	Experts   CohortStats `json:"experts"`

	Units []UnitResult `json:"units"`
}

func (r *RunReport) record(cohort *CohortStats, unit UnitResult) {
	cohort.Owners++
	switch unit.Outcome {
	case UnitCreated:
		cohort.Created++
	case UnitSkipped:
		cohort.Skipped++
	case UnitFailed:
		cohort.Failed++
	}
	r.Units = append(r.Units, unit)
}

// Errors returns the failed units only.
func (r *RunReport) Errors() []UnitResult {
	var failed []UnitResult
	for _, unit := range r.Units {
		if unit.Failed() {
			failed = append(failed, unit)
		}
	}
	return failed
}
