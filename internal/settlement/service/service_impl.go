package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/craftbase/meridian/internal/clock"
	earningsdomain "github.com/craftbase/meridian/internal/earnings/domain"
	orderdomain "github.com/craftbase/meridian/internal/order/domain"
	settlementdomain "github.com/craftbase/meridian/internal/settlement/domain"
	"github.com/craftbase/meridian/pkg/db"
	"github.com/craftbase/meridian/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock

	settlementrepo repository.Repository[settlementdomain.Settlement]
	itemrepo       repository.Repository[settlementdomain.SettlementItem]
}

func NewService(p ServiceParam) settlementdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("settlement.service"),
		genID: p.GenID,
		clock: p.Clock,

		settlementrepo: repository.ProvideStore[settlementdomain.Settlement](p.DB),
		itemrepo:       repository.ProvideStore[settlementdomain.SettlementItem](p.DB),
	}
}

func (s *Service) CalculateSellerSettlement(ctx context.Context, sellerID snowflake.ID, periodStart, periodEnd time.Time) (*settlementdomain.CalculationResult, error) {
	if !periodEnd.After(periodStart) {
		return nil, settlementdomain.ErrInvalidPeriod
	}

	orders, err := s.paidOrders(ctx, sellerID, periodStart, periodEnd)
	if err != nil {
		return nil, err
	}
	refundCount, refundAmount, err := s.refundTotals(ctx, sellerID, periodStart, periodEnd)
	if err != nil {
		return nil, err
	}

	summary := settlementdomain.CalculationSummary{
		OrderCount:   len(orders),
		RefundCount:  refundCount,
		RefundAmount: refundAmount,
	}
	for _, order := range orders {
		summary.TotalAmount += order.Amount
		summary.PlatformFee += order.PlatformFee
	}
	summary.PayoutAmount = summary.TotalAmount - summary.PlatformFee

	existing, err := s.findForPeriod(ctx, settlementdomain.OwnerSeller, sellerID, periodStart, periodEnd)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &settlementdomain.CalculationResult{Settlement: existing, Summary: summary, Created: false}, nil
	}

	now := s.clock.Now()
	settlement := &settlementdomain.Settlement{
		ID:           s.genID.Generate(),
		OwnerType:    settlementdomain.OwnerSeller,
		OwnerID:      sellerID,
		PeriodStart:  periodStart,
		PeriodEnd:    periodEnd,
		TotalAmount:  summary.TotalAmount,
		PlatformFee:  summary.PlatformFee,
		PayoutAmount: summary.PayoutAmount,
		Status:       settlementdomain.SettlementStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	items := make([]*settlementdomain.SettlementItem, 0, len(orders))
	for _, order := range orders {
		items = append(items, &settlementdomain.SettlementItem{
			ID:           s.genID.Generate(),
			SettlementID: settlement.ID,
			OrderID:      order.ID,
			ProductID:    order.ProductID,
			Amount:       order.Amount,
			PlatformFee:  order.PlatformFee,
			PayoutAmount: order.Amount - order.PlatformFee,
			CreatedAt:    now,
		})
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.settlementrepo.WithTrx(tx).Create(ctx, settlement); err != nil {
			return err
		}
		return s.itemrepo.WithTrx(tx).BatchCreate(ctx, items)
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			// Lost a concurrent creation race; the period is settled.
			existing, findErr := s.findForPeriod(ctx, settlementdomain.OwnerSeller, sellerID, periodStart, periodEnd)
			if findErr != nil {
				return nil, findErr
			}
			if existing != nil {
				return &settlementdomain.CalculationResult{Settlement: existing, Summary: summary, Created: false}, nil
			}
		}
		return nil, err
	}

	s.log.Info("seller settlement created",
		zap.String("settlement_id", settlement.ID.String()),
		zap.String("seller_id", sellerID.String()),
		zap.Int64("total_amount", settlement.TotalAmount),
		zap.Int64("payout_amount", settlement.PayoutAmount),
		zap.Int("items", len(items)),
	)
	return &settlementdomain.CalculationResult{Settlement: settlement, Summary: summary, Created: true}, nil
}

// CalculateReviewerSettlement builds the reviewer/expert path: sales fields
// stay zero, verification earnings come from PENDING payouts in the window,
// and those payouts are bound to the new settlement in the same transaction.
func (s *Service) CalculateReviewerSettlement(ctx context.Context, ownerType settlementdomain.OwnerType, ownerID snowflake.ID, periodStart, periodEnd time.Time) (*settlementdomain.CalculationResult, error) {
	if !periodEnd.After(periodStart) {
		return nil, settlementdomain.ErrInvalidPeriod
	}
	if ownerType != settlementdomain.OwnerReviewer && ownerType != settlementdomain.OwnerExpert {
		return nil, settlementdomain.ErrInvalidOwnerType
	}

	existing, err := s.findForPeriod(ctx, ownerType, ownerID, periodStart, periodEnd)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &settlementdomain.CalculationResult{Settlement: existing, Created: false}, nil
	}

	payoutIDs, earnings, count, err := s.pendingPayouts(ctx, ownerType, ownerID, periodStart, periodEnd)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return &settlementdomain.CalculationResult{Created: false}, nil
	}

	now := s.clock.Now()
	settlement := &settlementdomain.Settlement{
		ID:                   s.genID.Generate(),
		OwnerType:            ownerType,
		OwnerID:              ownerID,
		PeriodStart:          periodStart,
		PeriodEnd:            periodEnd,
		PayoutAmount:         earnings,
		VerificationEarnings: earnings,
		VerificationCount:    count,
		Status:               settlementdomain.SettlementStatusPending,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.settlementrepo.WithTrx(tx).Create(ctx, settlement); err != nil {
			return err
		}
		return s.bindPayouts(ctx, tx, ownerType, settlement.ID, payoutIDs, now)
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			existing, findErr := s.findForPeriod(ctx, ownerType, ownerID, periodStart, periodEnd)
			if findErr != nil {
				return nil, findErr
			}
			if existing != nil {
				return &settlementdomain.CalculationResult{Settlement: existing, Created: false}, nil
			}
		}
		return nil, err
	}

	s.log.Info("reviewer settlement created",
		zap.String("settlement_id", settlement.ID.String()),
		zap.String("owner_type", string(ownerType)),
		zap.String("owner_id", ownerID.String()),
		zap.Int64("verification_earnings", earnings),
		zap.Int("verification_count", count),
	)
	return &settlementdomain.CalculationResult{Settlement: settlement, Created: true}, nil
}

func (s *Service) CurrentMonthEstimate(ctx context.Context, ownerID snowflake.ID) (*settlementdomain.MonthEstimate, error) {
	now := s.clock.Now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	estimate := &settlementdomain.MonthEstimate{
		OwnerID:     ownerID,
		PeriodStart: monthStart,
		AsOf:        now,
	}

	orders, err := s.paidOrders(ctx, ownerID, monthStart, now)
	if err != nil {
		return nil, err
	}
	for _, order := range orders {
		estimate.SalesAmount += order.Amount
		estimate.SalesPlatformFee += order.PlatformFee
	}
	estimate.SalesPayout = estimate.SalesAmount - estimate.SalesPlatformFee

	var pending struct {
		Amount int64
		Count  int
	}
	err = s.db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0) AS amount, COUNT(1) AS count FROM (
			SELECT amount FROM reviewer_payouts WHERE reviewer_id = ? AND status = ?
			UNION ALL
			SELECT amount FROM expert_payouts WHERE expert_id = ? AND status = ?
		 ) pending`,
		ownerID, earningsdomain.PayoutStatusPending,
		ownerID, earningsdomain.PayoutStatusPending,
	).Scan(&pending).Error
	if err != nil {
		return nil, err
	}
	estimate.PendingEarnings = pending.Amount
	estimate.PendingPayoutRows = pending.Count
	estimate.EstimatedTotal = estimate.SalesPayout + estimate.PendingEarnings
	return estimate, nil
}

func (s *Service) paidOrders(ctx context.Context, sellerID snowflake.ID, periodStart, periodEnd time.Time) ([]*orderdomain.Order, error) {
	var orders []*orderdomain.Order
	err := s.db.WithContext(ctx).
		Where("seller_id = ? AND status = ? AND paid_at >= ? AND paid_at < ?",
			sellerID, orderdomain.OrderStatusPaid, periodStart, periodEnd).
		Order("paid_at").
		Find(&orders).Error
	return orders, err
}

func (s *Service) refundTotals(ctx context.Context, sellerID snowflake.ID, periodStart, periodEnd time.Time) (int, int64, error) {
	var row struct {
		Count  int
		Amount int64
	}
	err := s.db.WithContext(ctx).Raw(
		`SELECT COUNT(1) AS count, COALESCE(SUM(amount), 0) AS amount
		 FROM orders
		 WHERE seller_id = ? AND status = ? AND refunded_at >= ? AND refunded_at < ?`,
		sellerID, orderdomain.OrderStatusRefunded, periodStart, periodEnd,
	).Scan(&row).Error
	return row.Count, row.Amount, err
}

func (s *Service) pendingPayouts(ctx context.Context, ownerType settlementdomain.OwnerType, ownerID snowflake.ID, periodStart, periodEnd time.Time) ([]snowflake.ID, int64, int, error) {
	table, ownerColumn := payoutTable(ownerType)
	var rows []struct {
		ID     snowflake.ID
		Amount int64
	}
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, amount FROM `+table+`
		 WHERE `+ownerColumn+` = ? AND status = ? AND earned_at >= ? AND earned_at < ?
		 ORDER BY id`,
		ownerID, earningsdomain.PayoutStatusPending, periodStart, periodEnd,
	).Scan(&rows).Error
	if err != nil {
		return nil, 0, 0, err
	}

	ids := make([]snowflake.ID, 0, len(rows))
	var total int64
	for _, row := range rows {
		ids = append(ids, row.ID)
		total += row.Amount
	}
	return ids, total, len(rows), nil
}

// bindPayouts moves the listed PENDING payouts into the settlement. The
// status condition guards against a concurrent pass having taken any of
// them; a shortfall rolls the whole settlement back.
func (s *Service) bindPayouts(ctx context.Context, tx *gorm.DB, ownerType settlementdomain.OwnerType, settlementID snowflake.ID, payoutIDs []snowflake.ID, now time.Time) error {
	if len(payoutIDs) == 0 {
		return nil
	}
	table, _ := payoutTable(ownerType)
	res := tx.WithContext(ctx).Exec(
		`UPDATE `+table+`
		 SET status = ?, settlement_id = ?, updated_at = ?
		 WHERE id IN ? AND status = ?`,
		earningsdomain.PayoutStatusIncluded, settlementID, now,
		payoutIDs, earningsdomain.PayoutStatusPending,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != int64(len(payoutIDs)) {
		return settlementdomain.ErrPayoutBindConflict
	}
	return nil
}

func payoutTable(ownerType settlementdomain.OwnerType) (table, ownerColumn string) {
	if ownerType == settlementdomain.OwnerExpert {
		return "expert_payouts", "expert_id"
	}
	return "reviewer_payouts", "reviewer_id"
}

// findForPeriod looks for any settlement of the owner whose half-open
// window intersects [periodStart, periodEnd). An exact window match is
// the idempotent replay case and is handed back to the caller; any other
// intersection would settle the same rows twice and is a conflict.
func (s *Service) findForPeriod(ctx context.Context, ownerType settlementdomain.OwnerType, ownerID snowflake.ID, periodStart, periodEnd time.Time) (*settlementdomain.Settlement, error) {
	var settlement settlementdomain.Settlement
	err := s.db.WithContext(ctx).
		Where("owner_type = ? AND owner_id = ? AND period_start < ? AND period_end > ?",
			ownerType, ownerID, periodEnd, periodStart).
		First(&settlement).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	if !settlement.PeriodStart.Equal(periodStart) || !settlement.PeriodEnd.Equal(periodEnd) {
		return nil, settlementdomain.ErrPeriodOverlap
	}
	return &settlement, nil
}

func (s *Service) Get(ctx context.Context, settlementID snowflake.ID) (*settlementdomain.Settlement, error) {
	settlement, err := s.settlementrepo.FindOne(ctx, &settlementdomain.Settlement{ID: settlementID})
	if err != nil {
		return nil, err
	}
	if settlement == nil {
		return nil, settlementdomain.ErrSettlementNotFound
	}
	return settlement, nil
}

func (s *Service) Items(ctx context.Context, settlementID snowflake.ID) ([]*settlementdomain.SettlementItem, error) {
	return s.itemrepo.Find(ctx, &settlementdomain.SettlementItem{SettlementID: settlementID})
}

func (s *Service) MarkProcessing(ctx context.Context, settlementID snowflake.ID) (*settlementdomain.Settlement, error) {
	now := s.clock.Now()
	return s.transition(ctx, settlementID,
		settlementdomain.SettlementStatusPending,
		settlementdomain.SettlementStatusProcessing,
		map[string]any{"processed_at": now},
		settlementdomain.ErrNotPendingStatus,
	)
}

func (s *Service) MarkPaid(ctx context.Context, settlementID snowflake.ID) (*settlementdomain.Settlement, error) {
	now := s.clock.Now()
	return s.transition(ctx, settlementID,
		settlementdomain.SettlementStatusProcessing,
		settlementdomain.SettlementStatusPaid,
		map[string]any{"paid_at": now},
		settlementdomain.ErrNotProcessingStatus,
	)
}

func (s *Service) MarkFailed(ctx context.Context, settlementID snowflake.ID) (*settlementdomain.Settlement, error) {
	return s.transition(ctx, settlementID,
		settlementdomain.SettlementStatusProcessing,
		settlementdomain.SettlementStatusFailed,
		nil,
		settlementdomain.ErrNotProcessingStatus,
	)
}

func (s *Service) transition(ctx context.Context, settlementID snowflake.ID, from, to settlementdomain.SettlementStatus, extra map[string]any, conflictErr error) (*settlementdomain.Settlement, error) {
	settlement, err := s.Get(ctx, settlementID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	updates := map[string]any{
		"status":     to,
		"updated_at": now,
	}
	for k, v := range extra {
		updates[k] = v
	}

	res := s.db.WithContext(ctx).Model(&settlementdomain.Settlement{}).
		Where("id = ? AND status = ?", settlementID, from).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, conflictErr
	}

	settlement.Status = to
	settlement.UpdatedAt = now
	if t, ok := extra["processed_at"].(time.Time); ok {
		settlement.ProcessedAt = &t
	}
	if t, ok := extra["paid_at"].(time.Time); ok {
		settlement.PaidAt = &t
	}
	return settlement, nil
}
