package runner

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/craftbase/meridian/internal/clock"
	earningsdomain "github.com/craftbase/meridian/internal/earnings/domain"
	orderdomain "github.com/craftbase/meridian/internal/order/domain"
	"github.com/craftbase/meridian/internal/providers/notification"
	settlementdomain "github.com/craftbase/meridian/internal/settlement/domain"
	settlementservice "github.com/craftbase/meridian/internal/settlement/service"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testDBSeq int

var (
	periodStart = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	periodEnd   = time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
)

func setupTest(t *testing.T) (*gorm.DB, *Runner, *snowflake.Node) {
	t.Helper()

	testDBSeq++
	dsn := fmt.Sprintf("file:runner_%d?mode=memory&cache=shared", testDBSeq)
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

	fake := clock.NewFakeClock(time.Date(2026, 4, 1, 2, 0, 0, 0, time.UTC))
	svc := settlementservice.NewService(settlementservice.ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
	})

	r := New(Params{
		DB:            db,
		Log:           zap.NewNop(),
		Clock:         fake,
		SettlementSvc: svc,
		Notifier:      &notification.NoOpProvider{},
	})
	return db, r, node
}

func seedPaidOrder(t *testing.T, db *gorm.DB, node *snowflake.Node, sellerID snowflake.ID, amount, fee int64) {
	t.Helper()
	paidAt := periodStart.AddDate(0, 0, 5)
	require.NoError(t, db.Create(&orderdomain.Order{
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
	}).Error)
}

func seedReviewerPayout(t *testing.T, db *gorm.DB, node *snowflake.Node, reviewerID snowflake.ID, amount int64) {
	t.Helper()
	earnedAt := periodStart.AddDate(0, 0, 10)
	require.NoError(t, db.Create(&earningsdomain.ReviewerPayout{
		ID:             node.Generate(),
		VerificationID: node.Generate(),
		ReviewerID:     reviewerID,
		Amount:         amount,
		Level:          1,
		Status:         earningsdomain.PayoutStatusPending,
		EarnedAt:       earnedAt,
		CreatedAt:      earnedAt,
		UpdatedAt:      earnedAt,
	}).Error)
}

func seedExpertPayout(t *testing.T, db *gorm.DB, node *snowflake.Node, expertID snowflake.ID, amount int64) {
	t.Helper()
	earnedAt := periodStart.AddDate(0, 0, 12)
	require.NoError(t, db.Create(&earningsdomain.ExpertPayout{
		ID:             node.Generate(),
		ExpertReviewID: node.Generate(),
		VerificationID: node.Generate(),
		ExpertID:       expertID,
		Amount:         amount,
		Status:         earningsdomain.PayoutStatusPending,
		EarnedAt:       earnedAt,
		CreatedAt:      earnedAt,
		UpdatedAt:      earnedAt,
	}).Error)
}

func TestPreviousMonth(t *testing.T) {
	start, end := PreviousMonth(time.Date(2026, 4, 1, 2, 0, 0, 0, time.UTC))
	require.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), start)
	require.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), end)

	start, end = PreviousMonth(time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC))
	require.Equal(t, time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), start)
	require.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), end)
}

func TestRunSettlesAllCohorts(t *testing.T) {
	db, r, node := setupTest(t)

	sellerA, sellerB := node.Generate(), node.Generate()
	seedPaidOrder(t, db, node, sellerA, 100000, 10000)
	seedPaidOrder(t, db, node, sellerA, 50000, 5000)
	seedPaidOrder(t, db, node, sellerB, 80000, 8000)
	seedReviewerPayout(t, db, node, node.Generate(), 3500)
	seedExpertPayout(t, db, node, node.Generate(), 8750)

	report, err := r.Run(context.Background(), periodStart, periodEnd)
	require.NoError(t, err)

	require.Equal(t, 2, report.Sellers.Owners)
	require.Equal(t, 2, report.Sellers.Created)
	require.Equal(t, 1, report.Reviewers.Created)
	require.Equal(t, 1, report.Experts.Created)
	require.Empty(t, report.Errors())
	require.Len(t, report.Units, 4)
	for _, unit := range report.Units {
		require.Equal(t, UnitCreated, unit.Outcome)
		require.NotNil(t, unit.SettlementID)
	}

	var count int64
	require.NoError(t, db.Model(&settlementdomain.Settlement{}).Count(&count).Error)
	require.EqualValues(t, 4, count)
}

func TestRunPagesThroughOwners(t *testing.T) {
	db, r, node := setupTest(t)
	r.SetEnumerationBatch(1)

	sellers := []snowflake.ID{node.Generate(), node.Generate(), node.Generate()}
	for _, sellerID := range sellers {
		seedPaidOrder(t, db, node, sellerID, 100000, 10000)
	}
	reviewerA, reviewerB := node.Generate(), node.Generate()
	seedReviewerPayout(t, db, node, reviewerA, 3500)
	seedReviewerPayout(t, db, node, reviewerB, 10500)

	report, err := r.Run(context.Background(), periodStart, periodEnd)
	require.NoError(t, err)

	require.Equal(t, 3, report.Sellers.Owners)
	require.Equal(t, 3, report.Sellers.Created)
	require.Equal(t, 2, report.Reviewers.Owners)
	require.Equal(t, 2, report.Reviewers.Created)
	require.Empty(t, report.Errors())

	var count int64
	require.NoError(t, db.Model(&settlementdomain.Settlement{}).Count(&count).Error)
	require.EqualValues(t, 5, count)
}

func TestRunIsIdempotent(t *testing.T) {
	db, r, node := setupTest(t)

	seedPaidOrder(t, db, node, node.Generate(), 100000, 10000)
	reviewerID := node.Generate()
	seedReviewerPayout(t, db, node, reviewerID, 3500)

	first, err := r.Run(context.Background(), periodStart, periodEnd)
	require.NoError(t, err)
	require.Equal(t, 1, first.Sellers.Created)
	require.Equal(t, 1, first.Reviewers.Created)

	second, err := r.Run(context.Background(), periodStart, periodEnd)
	require.NoError(t, err)
	require.Equal(t, 1, second.Sellers.Skipped)
	require.Zero(t, second.Sellers.Created)
	// The reviewer's payouts are already bound, so the second pass does not
	// even enumerate the reviewer.
	require.Zero(t, second.Reviewers.Owners)

	var count int64
	require.NoError(t, db.Model(&settlementdomain.Settlement{}).Count(&count).Error)
	require.EqualValues(t, 2, count)
}

func TestRunRejectsBadPeriod(t *testing.T) {
	_, r, _ := setupTest(t)

	_, err := r.Run(context.Background(), periodEnd, periodStart)
	require.ErrorIs(t, err, settlementdomain.ErrInvalidPeriod)
}

// failingCalculator wraps the real service and fails one chosen seller to
// exercise the continue-on-error path.
type failingCalculator struct {
	settlementdomain.Service
	failSeller snowflake.ID
}

func (f *failingCalculator) CalculateSellerSettlement(ctx context.Context, sellerID snowflake.ID, periodStart, periodEnd time.Time) (*settlementdomain.CalculationResult, error) {
	if sellerID == f.failSeller {
		return nil, errors.New("calculator exploded")
	}
	return f.Service.CalculateSellerSettlement(ctx, sellerID, periodStart, periodEnd)
}

func TestRunContinuesPastUnitFailures(t *testing.T) {
	db, r, node := setupTest(t)

	sellerA, sellerB, sellerC := node.Generate(), node.Generate(), node.Generate()
	seedPaidOrder(t, db, node, sellerA, 100000, 10000)
	seedPaidOrder(t, db, node, sellerB, 50000, 5000)
	seedPaidOrder(t, db, node, sellerC, 80000, 8000)

	r.settlementSvc = &failingCalculator{Service: r.settlementSvc, failSeller: sellerB}

	report, err := r.Run(context.Background(), periodStart, periodEnd)
	require.NoError(t, err)

	require.Equal(t, 3, report.Sellers.Owners)
	require.Equal(t, 2, report.Sellers.Created)
	require.Equal(t, 1, report.Sellers.Failed)

	failed := report.Errors()
	require.Len(t, failed, 1)
	require.Equal(t, sellerB, failed[0].OwnerID)
	require.Contains(t, failed[0].Error, "calculator exploded")

	var count int64
	require.NoError(t, db.Model(&settlementdomain.Settlement{}).Count(&count).Error)
	require.EqualValues(t, 2, count)
}

func TestRunOwner(t *testing.T) {
	db, r, node := setupTest(t)

	reviewerID := node.Generate()
	seedReviewerPayout(t, db, node, reviewerID, 3500)

	report, err := r.RunOwner(context.Background(), settlementdomain.OwnerReviewer, reviewerID, periodStart, periodEnd)
	require.NoError(t, err)
	require.Equal(t, 1, report.Reviewers.Created)
	require.Len(t, report.Units, 1)
	require.Equal(t, UnitCreated, report.Units[0].Outcome)

	_, err = r.RunOwner(context.Background(), settlementdomain.OwnerType("BROKER"), reviewerID, periodStart, periodEnd)
	require.ErrorIs(t, err, settlementdomain.ErrInvalidOwnerType)

	var count int64
	require.NoError(t, db.Model(&settlementdomain.Settlement{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}
