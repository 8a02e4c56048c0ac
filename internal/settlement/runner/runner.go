package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/craftbase/meridian/internal/clock"
	earningsdomain "github.com/craftbase/meridian/internal/earnings/domain"
	"github.com/craftbase/meridian/internal/metrics"
	orderdomain "github.com/craftbase/meridian/internal/order/domain"
	"github.com/craftbase/meridian/internal/providers/notification"
	settlementdomain "github.com/craftbase/meridian/internal/settlement/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultUnitTimeout = 30 * time.Second
	defaultEnumBatch   = 100
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	Clock         clock.Clock
	SettlementSvc settlementdomain.Service
	Notifier      notification.Provider
}

// Runner drives the periodic settlement pass across all eligible owners.
// It keeps no state of its own beyond the persisted settlements, so it can
// run inside the monolith scheduler or as a standalone scheduled process.
type Runner struct {
	db            *gorm.DB
	log           *zap.Logger
	clock         clock.Clock
	settlementSvc settlementdomain.Service
	notifier      notification.Provider

	unitTimeout time.Duration
	enumBatch   int
}

func New(p Params) *Runner {
	return &Runner{
		db:            p.DB,
		log:           p.Log.Named("settlement.runner"),
		clock:         p.Clock,
		settlementSvc: p.SettlementSvc,
		notifier:      p.Notifier,
		unitTimeout:   defaultUnitTimeout,
		enumBatch:     defaultEnumBatch,
	}
}

// SetUnitTimeout overrides the per-owner timeout.
func (r *Runner) SetUnitTimeout(d time.Duration) {
	if d > 0 {
		r.unitTimeout = d
	}
}

// SetEnumerationBatch overrides the page size used when enumerating
// owners eligible for the pass.
func (r *Runner) SetEnumerationBatch(n int) {
	if n > 0 {
		r.enumBatch = n
	}
}

// PreviousMonth returns the half-open window of the calendar month before
// now, in UTC.
func PreviousMonth(now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	periodEnd := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	periodStart := periodEnd.AddDate(0, -1, 0)
	return periodStart, periodEnd
}

// RunMonthly settles the previous calendar month for every eligible owner.
func (r *Runner) RunMonthly(ctx context.Context) (*RunReport, error) {
	periodStart, periodEnd := PreviousMonth(r.clock.Now())
	return r.Run(ctx, periodStart, periodEnd)
}

// Run executes one batch pass over the given window. Individual owner
// failures are collected in the report; only setup failures (enumeration
// queries) are returned as errors.
func (r *Runner) Run(ctx context.Context, periodStart, periodEnd time.Time) (*RunReport, error) {
	if !periodEnd.After(periodStart) {
		return nil, settlementdomain.ErrInvalidPeriod
	}

	start := r.clock.Now()
	runnerMetrics := metrics.Runner()
	runnerMetrics.IncRun("batch")

	report := &RunReport{
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		StartedAt:   start,
	}

	sellers, err := r.sellersWithPaidOrders(ctx, periodStart, periodEnd)
	if err != nil {
		return nil, fmt.Errorf("enumerate sellers: %w", err)
	}
	reviewers, err := r.ownersWithPendingPayouts(ctx, "reviewer_payouts", "reviewer_id", periodStart, periodEnd)
	if err != nil {
		return nil, fmt.Errorf("enumerate reviewers: %w", err)
	}
	experts, err := r.ownersWithPendingPayouts(ctx, "expert_payouts", "expert_id", periodStart, periodEnd)
	if err != nil {
		return nil, fmt.Errorf("enumerate experts: %w", err)
	}

	for _, sellerID := range sellers {
		unit := r.settleOwner(ctx, settlementdomain.OwnerSeller, sellerID, periodStart, periodEnd)
		report.record(&report.Sellers, unit)
	}
	for _, reviewerID := range reviewers {
		unit := r.settleOwner(ctx, settlementdomain.OwnerReviewer, reviewerID, periodStart, periodEnd)
		report.record(&report.Reviewers, unit)
	}
	for _, expertID := range experts {
		unit := r.settleOwner(ctx, settlementdomain.OwnerExpert, expertID, periodStart, periodEnd)
		report.record(&report.Experts, unit)
	}

	report.FinishedAt = r.clock.Now()
	runnerMetrics.ObserveRunDuration("batch", time.Since(start))

	r.log.Info("settlement run finished",
		zap.Time("period_start", periodStart),
		zap.Time("period_end", periodEnd),
		zap.Int("sellers_created", report.Sellers.Created),
		zap.Int("reviewers_created", report.Reviewers.Created),
		zap.Int("experts_created", report.Experts.Created),
		zap.Int("failed", len(report.Errors())),
	)
	return report, nil
}

// RunOwner settles one explicit owner over the window, reusing the same
// calculator the full pass uses.
func (r *Runner) RunOwner(ctx context.Context, ownerType settlementdomain.OwnerType, ownerID snowflake.ID, periodStart, periodEnd time.Time) (*RunReport, error) {
	if !periodEnd.After(periodStart) {
		return nil, settlementdomain.ErrInvalidPeriod
	}

	metrics.Runner().IncRun("manual")
	report := &RunReport{
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		StartedAt:   r.clock.Now(),
	}

	unit := r.settleOwner(ctx, ownerType, ownerID, periodStart, periodEnd)
	switch ownerType {
	case settlementdomain.OwnerSeller:
		report.record(&report.Sellers, unit)
	case settlementdomain.OwnerReviewer:
		report.record(&report.Reviewers, unit)
	case settlementdomain.OwnerExpert:
		report.record(&report.Experts, unit)
	default:
		return nil, settlementdomain.ErrInvalidOwnerType
	}

	report.FinishedAt = r.clock.Now()
	return report, nil
}

// settleOwner is the per-unit body. Any error, including a per-unit
// timeout, lands in the result; the remaining units always run.
func (r *Runner) settleOwner(parent context.Context, ownerType settlementdomain.OwnerType, ownerID snowflake.ID, periodStart, periodEnd time.Time) UnitResult {
	ctx, cancel := context.WithTimeout(parent, r.unitTimeout)
	defer cancel()

	cohort := cohortLabel(ownerType)
	runnerMetrics := metrics.Runner()
	runnerMetrics.AddUnitsProcessed(cohort, 1)

	unit := UnitResult{OwnerType: ownerType, OwnerID: ownerID}

	var result *settlementdomain.CalculationResult
	var err error
	if ownerType == settlementdomain.OwnerSeller {
		result, err = r.settlementSvc.CalculateSellerSettlement(ctx, ownerID, periodStart, periodEnd)
	} else {
		result, err = r.settlementSvc.CalculateReviewerSettlement(ctx, ownerType, ownerID, periodStart, periodEnd)
	}
	if err != nil {
		runnerMetrics.IncUnitError(cohort)
		unit.Outcome = UnitFailed
		unit.Error = err.Error()
		r.log.Warn("settlement unit failed",
			zap.String("owner_type", string(ownerType)),
			zap.String("owner_id", ownerID.String()),
			zap.Error(err),
		)
		return unit
	}

	if result.Settlement != nil {
		id := result.Settlement.ID
		unit.SettlementID = &id
	}
	if !result.Created {
		runnerMetrics.IncSettlementSkipped(cohort)
		unit.Outcome = UnitSkipped
		return unit
	}

	runnerMetrics.IncSettlementCreated(cohort)
	unit.Outcome = UnitCreated
	r.notify(ctx, ownerID, result.Settlement.ID)
	return unit
}

func (r *Runner) notify(ctx context.Context, ownerID, settlementID snowflake.ID) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.Notify(ctx, ownerID, settlementID); err != nil {
		r.log.Warn("settlement notification failed",
			zap.String("owner_id", ownerID.String()),
			zap.String("settlement_id", settlementID.String()),
			zap.Error(err),
		)
	}
}

// Enumeration pages by owner ID so large cohorts never load in one
// query. Each page continues after the last ID of the previous one.
func (r *Runner) sellersWithPaidOrders(ctx context.Context, periodStart, periodEnd time.Time) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	var last snowflake.ID
	for {
		var page []snowflake.ID
		err := r.db.WithContext(ctx).Raw(
			`SELECT DISTINCT seller_id FROM orders
			 WHERE status = ? AND paid_at >= ? AND paid_at < ? AND seller_id > ?
			 ORDER BY seller_id LIMIT ?`,
			orderdomain.OrderStatusPaid, periodStart, periodEnd, last, r.enumBatch,
		).Scan(&page).Error
		if err != nil {
			return nil, err
		}
		ids = append(ids, page...)
		if len(page) < r.enumBatch {
			return ids, nil
		}
		last = page[len(page)-1]
	}
}

func (r *Runner) ownersWithPendingPayouts(ctx context.Context, table, ownerColumn string, periodStart, periodEnd time.Time) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	var last snowflake.ID
	for {
		var page []snowflake.ID
		err := r.db.WithContext(ctx).Raw(
			`SELECT DISTINCT `+ownerColumn+` FROM `+table+`
			 WHERE status = ? AND earned_at >= ? AND earned_at < ? AND `+ownerColumn+` > ?
			 ORDER BY `+ownerColumn+` LIMIT ?`,
			earningsdomain.PayoutStatusPending, periodStart, periodEnd, last, r.enumBatch,
		).Scan(&page).Error
		if err != nil {
			return nil, err
		}
		ids = append(ids, page...)
		if len(page) < r.enumBatch {
			return ids, nil
		}
		last = page[len(page)-1]
	}
}

func cohortLabel(ownerType settlementdomain.OwnerType) string {
	switch ownerType {
	case settlementdomain.OwnerSeller:
		return "sellers"
	case settlementdomain.OwnerReviewer:
		return "reviewers"
	default:
		return "experts"
	}
}
