package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/craftbase/meridian/internal/clock"
	earningsdomain "github.com/craftbase/meridian/internal/earnings/domain"
	orderdomain "github.com/craftbase/meridian/internal/order/domain"
	settlementdomain "github.com/craftbase/meridian/internal/settlement/domain"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testDBSeq int

func setupTest(t *testing.T) (*gorm.DB, *Service, *snowflake.Node, *clock.FakeClock) {
	t.Helper()

	testDBSeq++
	dsn := fmt.Sprintf("file:settlement_%d?mode=memory&cache=shared", testDBSeq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&orderdomain.Order{},
		&earningsdomain.ReviewerPayout{},
		&earningsdomain.ExpertPayout{},
		&settlementdomain.Settlement{},
		&settlementdomain.SettlementItem{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2026, 4, 2, 3, 0, 0, 0, time.UTC))
	svc := NewService(ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
	}).(*Service)

	return db, svc, node, fake
}

var (
	periodStart = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	periodEnd   = time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
)

func seedPaidOrder(t *testing.T, db *gorm.DB, node *snowflake.Node, sellerID snowflake.ID, amount, fee int64, paidAt time.Time) *orderdomain.Order {
	t.Helper()
	order := &orderdomain.Order{
		ID:           node.Generate(),
		BuyerID:      node.Generate(),
		ProductID:    node.Generate(),
		SellerID:     sellerID,
		Amount:       amount,
		PlatformFee:  fee,
		SellerAmount: amount - fee,
		Status:       orderdomain.OrderStatusPaid,
		PaidAt:       &paidAt,
		CreatedAt:    paidAt,
	}
	require.NoError(t, db.Create(order).Error)
	return order
}

func seedPendingPayout(t *testing.T, db *gorm.DB, node *snowflake.Node, reviewerID snowflake.ID, amount int64, earnedAt time.Time) *earningsdomain.ReviewerPayout {
	t.Helper()
	payout := &earningsdomain.ReviewerPayout{
		ID:             node.Generate(),
		VerificationID: node.Generate(),
		ReviewerID:     reviewerID,
		Amount:         amount,
		Level:          1,
		Status:         earningsdomain.PayoutStatusPending,
		EarnedAt:       earnedAt,
		CreatedAt:      earnedAt,
		UpdatedAt:      earnedAt,
	}
	require.NoError(t, db.Create(payout).Error)
	return payout
}

func TestCalculateSellerSettlement(t *testing.T) {
	db, svc, node, _ := setupTest(t)
	ctx := context.Background()
	sellerID := node.Generate()

	inWindow := periodStart.AddDate(0, 0, 5)
	seedPaidOrder(t, db, node, sellerID, 100000, 10000, inWindow)
	seedPaidOrder(t, db, node, sellerID, 120000, 12000, inWindow.AddDate(0, 0, 3))
	seedPaidOrder(t, db, node, sellerID, 80000, 8000, inWindow.AddDate(0, 0, 9))

	// Outside the window and other sellers must not count.
	seedPaidOrder(t, db, node, sellerID, 50000, 5000, periodEnd)
	seedPaidOrder(t, db, node, node.Generate(), 70000, 7000, inWindow)

	result, err := svc.CalculateSellerSettlement(ctx, sellerID, periodStart, periodEnd)
	require.NoError(t, err)
	require.True(t, result.Created)

	settlement := result.Settlement
	require.Equal(t, settlementdomain.OwnerSeller, settlement.OwnerType)
	require.Equal(t, sellerID, settlement.OwnerID)
	require.Equal(t, int64(300000), settlement.TotalAmount)
	require.Equal(t, int64(30000), settlement.PlatformFee)
	require.Equal(t, int64(270000), settlement.PayoutAmount)
	require.Equal(t, settlementdomain.SettlementStatusPending, settlement.Status)
	require.Equal(t, 3, result.Summary.OrderCount)

	items, err := svc.Items(ctx, settlement.ID)
	require.NoError(t, err)
	require.Len(t, items, 3)
	var itemPayout int64
	for _, item := range items {
		require.Equal(t, item.Amount-item.PlatformFee, item.PayoutAmount)
		itemPayout += item.PayoutAmount
	}
	require.Equal(t, settlement.PayoutAmount, itemPayout)
}

func TestCalculateSellerSettlementIsIdempotent(t *testing.T) {
	db, svc, node, _ := setupTest(t)
	ctx := context.Background()
	sellerID := node.Generate()
	seedPaidOrder(t, db, node, sellerID, 100000, 10000, periodStart.AddDate(0, 0, 1))

	first, err := svc.CalculateSellerSettlement(ctx, sellerID, periodStart, periodEnd)
	require.NoError(t, err)
	require.True(t, first.Created)

	// A paid order landing after the first pass must not change the settled
	// period.
	seedPaidOrder(t, db, node, sellerID, 999999, 99999, periodStart.AddDate(0, 0, 2))

	second, err := svc.CalculateSellerSettlement(ctx, sellerID, periodStart, periodEnd)
	require.NoError(t, err)
	require.False(t, second.Created)
	require.Equal(t, first.Settlement.ID, second.Settlement.ID)
	require.Equal(t, int64(100000), second.Settlement.TotalAmount)

	var count int64
	require.NoError(t, db.Model(&settlementdomain.Settlement{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestCalculateSellerSettlementRejectsOverlappingPeriod(t *testing.T) {
	db, svc, node, _ := setupTest(t)
	ctx := context.Background()
	sellerID := node.Generate()
	seedPaidOrder(t, db, node, sellerID, 100000, 10000, periodStart.AddDate(0, 0, 20))

	first, err := svc.CalculateSellerSettlement(ctx, sellerID, periodStart, periodEnd)
	require.NoError(t, err)
	require.True(t, first.Created)

	// A shifted window covering some of the same paid orders would settle
	// them twice.
	_, err = svc.CalculateSellerSettlement(ctx, sellerID,
		periodStart.AddDate(0, 0, 14), periodEnd.AddDate(0, 0, 14))
	require.ErrorIs(t, err, settlementdomain.ErrPeriodOverlap)

	// The exact window is still the idempotent replay.
	replay, err := svc.CalculateSellerSettlement(ctx, sellerID, periodStart, periodEnd)
	require.NoError(t, err)
	require.False(t, replay.Created)
	require.Equal(t, first.Settlement.ID, replay.Settlement.ID)

	var count int64
	require.NoError(t, db.Model(&settlementdomain.Settlement{}).Count(&count).Error)
	require.EqualValues(t, 1, count)

	// An adjacent window is fine: the periods are half-open.
	seedPaidOrder(t, db, node, sellerID, 40000, 4000, periodEnd.AddDate(0, 0, 2))
	next, err := svc.CalculateSellerSettlement(ctx, sellerID, periodEnd, periodEnd.AddDate(0, 1, 0))
	require.NoError(t, err)
	require.True(t, next.Created)
}

func TestCalculateReviewerSettlementRejectsOverlappingPeriod(t *testing.T) {
	db, svc, node, _ := setupTest(t)
	ctx := context.Background()
	reviewerID := node.Generate()
	seedPendingPayout(t, db, node, reviewerID, 3500, periodStart.AddDate(0, 0, 20))

	first, err := svc.CalculateReviewerSettlement(ctx, settlementdomain.OwnerReviewer, reviewerID, periodStart, periodEnd)
	require.NoError(t, err)
	require.True(t, first.Created)

	seedPendingPayout(t, db, node, reviewerID, 7000, periodEnd.AddDate(0, 0, 1))
	_, err = svc.CalculateReviewerSettlement(ctx, settlementdomain.OwnerReviewer, reviewerID,
		periodStart.AddDate(0, 0, 14), periodEnd.AddDate(0, 0, 14))
	require.ErrorIs(t, err, settlementdomain.ErrPeriodOverlap)

	var count int64
	require.NoError(t, db.Model(&settlementdomain.Settlement{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestCalculateSellerSettlementRejectsBadPeriod(t *testing.T) {
	_, svc, node, _ := setupTest(t)

	_, err := svc.CalculateSellerSettlement(context.Background(), node.Generate(), periodEnd, periodStart)
	require.ErrorIs(t, err, settlementdomain.ErrInvalidPeriod)

	_, err = svc.CalculateSellerSettlement(context.Background(), node.Generate(), periodStart, periodStart)
	require.ErrorIs(t, err, settlementdomain.ErrInvalidPeriod)
}

func TestCalculateSellerSettlementIgnoresRefunded(t *testing.T) {
	db, svc, node, _ := setupTest(t)
	ctx := context.Background()
	sellerID := node.Generate()

	seedPaidOrder(t, db, node, sellerID, 100000, 10000, periodStart.AddDate(0, 0, 1))

	refundedAt := periodStart.AddDate(0, 0, 4)
	require.NoError(t, db.Create(&orderdomain.Order{
		ID:           node.Generate(),
		BuyerID:      node.Generate(),
		ProductID:    node.Generate(),
		SellerID:     sellerID,
		Amount:       60000,
		PlatformFee:  6000,
		SellerAmount: 54000,
		Status:       orderdomain.OrderStatusRefunded,
		RefundedAt:   &refundedAt,
		CreatedAt:    refundedAt,
	}).Error)

	result, err := svc.CalculateSellerSettlement(ctx, sellerID, periodStart, periodEnd)
	require.NoError(t, err)
	require.Equal(t, int64(100000), result.Settlement.TotalAmount)
	require.Equal(t, int64(90000), result.Settlement.PayoutAmount)
	require.Equal(t, 1, result.Summary.RefundCount)
	require.Equal(t, int64(60000), result.Summary.RefundAmount)
}

func TestCalculateReviewerSettlementBindsPayouts(t *testing.T) {
	db, svc, node, _ := setupTest(t)
	ctx := context.Background()
	reviewerID := node.Generate()

	earned := periodStart.AddDate(0, 0, 3)
	one := seedPendingPayout(t, db, node, reviewerID, 3500, earned)
	two := seedPendingPayout(t, db, node, reviewerID, 10500, earned.AddDate(0, 0, 2))

	// Outside the window, and already settled rows, stay untouched.
	outside := seedPendingPayout(t, db, node, reviewerID, 2000, periodEnd)

	result, err := svc.CalculateReviewerSettlement(ctx, settlementdomain.OwnerReviewer, reviewerID, periodStart, periodEnd)
	require.NoError(t, err)
	require.True(t, result.Created)

	settlement := result.Settlement
	require.Equal(t, settlementdomain.OwnerReviewer, settlement.OwnerType)
	require.Zero(t, settlement.TotalAmount)
	require.Zero(t, settlement.PlatformFee)
	require.Equal(t, int64(14000), settlement.VerificationEarnings)
	require.Equal(t, int64(14000), settlement.PayoutAmount)
	require.Equal(t, 2, settlement.VerificationCount)

	for _, id := range []snowflake.ID{one.ID, two.ID} {
		var bound earningsdomain.ReviewerPayout
		require.NoError(t, db.First(&bound, "id = ?", id).Error)
		require.Equal(t, earningsdomain.PayoutStatusIncluded, bound.Status)
		require.NotNil(t, bound.SettlementID)
		require.Equal(t, settlement.ID, *bound.SettlementID)
	}

	var untouched earningsdomain.ReviewerPayout
	require.NoError(t, db.First(&untouched, "id = ?", outside.ID).Error)
	require.Equal(t, earningsdomain.PayoutStatusPending, untouched.Status)
	require.Nil(t, untouched.SettlementID)
}

func TestCalculateReviewerSettlementSkipsEmptyPeriod(t *testing.T) {
	db, svc, node, _ := setupTest(t)

	result, err := svc.CalculateReviewerSettlement(context.Background(), settlementdomain.OwnerReviewer, node.Generate(), periodStart, periodEnd)
	require.NoError(t, err)
	require.False(t, result.Created)
	require.Nil(t, result.Settlement)

	var count int64
	require.NoError(t, db.Model(&settlementdomain.Settlement{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestCalculateReviewerSettlementRejectsSellerOwner(t *testing.T) {
	_, svc, node, _ := setupTest(t)

	_, err := svc.CalculateReviewerSettlement(context.Background(), settlementdomain.OwnerSeller, node.Generate(), periodStart, periodEnd)
	require.ErrorIs(t, err, settlementdomain.ErrInvalidOwnerType)
}

func TestCalculateReviewerSettlementIsIdempotent(t *testing.T) {
	db, svc, node, _ := setupTest(t)
	ctx := context.Background()
	reviewerID := node.Generate()
	seedPendingPayout(t, db, node, reviewerID, 3500, periodStart.AddDate(0, 0, 3))

	first, err := svc.CalculateReviewerSettlement(ctx, settlementdomain.OwnerReviewer, reviewerID, periodStart, periodEnd)
	require.NoError(t, err)
	require.True(t, first.Created)

	second, err := svc.CalculateReviewerSettlement(ctx, settlementdomain.OwnerReviewer, reviewerID, periodStart, periodEnd)
	require.NoError(t, err)
	require.False(t, second.Created)
	require.Equal(t, first.Settlement.ID, second.Settlement.ID)
}

func TestSettlementTransitions(t *testing.T) {
	db, svc, node, fake := setupTest(t)
	ctx := context.Background()
	sellerID := node.Generate()
	seedPaidOrder(t, db, node, sellerID, 100000, 10000, periodStart.AddDate(0, 0, 1))

	result, err := svc.CalculateSellerSettlement(ctx, sellerID, periodStart, periodEnd)
	require.NoError(t, err)
	settlementID := result.Settlement.ID

	// PAID is only reachable through PROCESSING.
	_, err = svc.MarkPaid(ctx, settlementID)
	require.ErrorIs(t, err, settlementdomain.ErrNotProcessingStatus)

	processing, err := svc.MarkProcessing(ctx, settlementID)
	require.NoError(t, err)
	require.Equal(t, settlementdomain.SettlementStatusProcessing, processing.Status)
	require.NotNil(t, processing.ProcessedAt)

	_, err = svc.MarkProcessing(ctx, settlementID)
	require.ErrorIs(t, err, settlementdomain.ErrNotPendingStatus)

	fake.Advance(2 * time.Hour)
	paid, err := svc.MarkPaid(ctx, settlementID)
	require.NoError(t, err)
	require.Equal(t, settlementdomain.SettlementStatusPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)

	_, err = svc.MarkFailed(ctx, settlementID)
	require.ErrorIs(t, err, settlementdomain.ErrNotProcessingStatus)

	_, err = svc.MarkProcessing(ctx, node.Generate())
	require.ErrorIs(t, err, settlementdomain.ErrSettlementNotFound)
}

func TestCurrentMonthEstimate(t *testing.T) {
	db, svc, node, fake := setupTest(t)
	ctx := context.Background()
	ownerID := node.Generate()

	fake.Set(time.Date(2026, 3, 20, 10, 0, 0, 0, time.UTC))
	seedPaidOrder(t, db, node, ownerID, 100000, 10000, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))
	seedPendingPayout(t, db, node, ownerID, 3500, time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC))

	estimate, err := svc.CurrentMonthEstimate(ctx, ownerID)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), estimate.PeriodStart)
	require.Equal(t, int64(100000), estimate.SalesAmount)
	require.Equal(t, int64(90000), estimate.SalesPayout)
	require.Equal(t, int64(3500), estimate.PendingEarnings)
	require.Equal(t, 1, estimate.PendingPayoutRows)
	require.Equal(t, int64(93500), estimate.EstimatedTotal)

	// Nothing is persisted by an estimate.
	var count int64
	require.NoError(t, db.Model(&settlementdomain.Settlement{}).Count(&count).Error)
	require.Zero(t, count)
}
