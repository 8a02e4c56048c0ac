package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/craftbase/meridian/internal/clock"
	earningsdomain "github.com/craftbase/meridian/internal/earnings/domain"
	verificationdomain "github.com/craftbase/meridian/internal/verification/domain"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testDBSeq int

func setupTest(t *testing.T) (*gorm.DB, *Service, *snowflake.Node, *clock.FakeClock) {
	t.Helper()

	testDBSeq++
	dsn := fmt.Sprintf("file:earnings_%d?mode=memory&cache=shared", testDBSeq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&verificationdomain.Verification{},
		&earningsdomain.ReviewerPayout{},
		&earningsdomain.ExpertPayout{},
		&earningsdomain.ReviewerStats{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	svc := NewService(ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
	}).(*Service)

	return db, svc, node, fake
}

func TestRecordEarningIsIdempotent(t *testing.T) {
	db, svc, node, _ := setupTest(t)
	ctx := context.Background()

	verificationID := node.Generate()
	reviewerID := node.Generate()

	first, err := svc.RecordEarning(ctx, verificationID, reviewerID, 3500, 1)
	require.NoError(t, err)
	require.Equal(t, earningsdomain.PayoutStatusPending, first.Status)

	second, err := svc.RecordEarning(ctx, verificationID, reviewerID, 3500, 1)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, db.Model(&earningsdomain.ReviewerPayout{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestRecordEarningRejectsNonPositiveAmount(t *testing.T) {
	_, svc, node, _ := setupTest(t)

	_, err := svc.RecordEarning(context.Background(), node.Generate(), node.Generate(), 0, 1)
	require.ErrorIs(t, err, earningsdomain.ErrInvalidAmount)

	_, err = svc.RecordEarning(context.Background(), node.Generate(), node.Generate(), -100, 1)
	require.ErrorIs(t, err, earningsdomain.ErrInvalidAmount)
}

func TestRecordExpertEarningIsIdempotent(t *testing.T) {
	db, svc, node, _ := setupTest(t)
	ctx := context.Background()

	expertReviewID := node.Generate()

	first, err := svc.RecordExpertEarning(ctx, expertReviewID, node.Generate(), node.Generate(), 8750)
	require.NoError(t, err)

	second, err := svc.RecordExpertEarning(ctx, expertReviewID, node.Generate(), node.Generate(), 8750)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, db.Model(&earningsdomain.ExpertPayout{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestEarningsWindowIsHalfOpen(t *testing.T) {
	_, svc, node, fake := setupTest(t)
	ctx := context.Background()
	reviewerID := node.Generate()

	periodStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	// One row before the window, two inside, one exactly at the end bound.
	fake.Set(periodStart.Add(-time.Hour))
	_, err := svc.RecordEarning(ctx, node.Generate(), reviewerID, 1000, 1)
	require.NoError(t, err)

	fake.Set(periodStart)
	_, err = svc.RecordEarning(ctx, node.Generate(), reviewerID, 3500, 1)
	require.NoError(t, err)

	fake.Set(periodStart.AddDate(0, 0, 15))
	_, err = svc.RecordEarning(ctx, node.Generate(), reviewerID, 10500, 2)
	require.NoError(t, err)

	fake.Set(periodEnd)
	_, err = svc.RecordEarning(ctx, node.Generate(), reviewerID, 2000, 1)
	require.NoError(t, err)

	summary, err := svc.Earnings(ctx, reviewerID, periodStart, periodEnd)
	require.NoError(t, err)
	require.Len(t, summary.Payouts, 2)
	require.Equal(t, int64(14000), summary.Total)

	_, err = svc.Earnings(ctx, reviewerID, periodEnd, periodStart)
	require.ErrorIs(t, err, earningsdomain.ErrInvalidPeriod)
}

func TestEarningsBreakdownGroupsByLevel(t *testing.T) {
	_, svc, node, fake := setupTest(t)
	ctx := context.Background()
	reviewerID := node.Generate()

	fake.Set(time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC))
	for i := 0; i < 3; i++ {
		_, err := svc.RecordEarning(ctx, node.Generate(), reviewerID, 3500, 1)
		require.NoError(t, err)
	}
	_, err := svc.RecordEarning(ctx, node.Generate(), reviewerID, 10500, 2)
	require.NoError(t, err)

	rows, err := svc.EarningsBreakdown(ctx, reviewerID,
		time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	require.Equal(t, 1, rows[0].Level)
	require.Equal(t, 3, rows[0].Count)
	require.Equal(t, int64(10500), rows[0].Amount)
	require.Equal(t, 2, rows[1].Level)
	require.Equal(t, 1, rows[1].Count)
	require.Equal(t, int64(10500), rows[1].Amount)
}

func TestUpdateStatsIsDeterministic(t *testing.T) {
	db, svc, node, _ := setupTest(t)
	ctx := context.Background()
	reviewerID := node.Generate()

	assigned := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	seed := func(status verificationdomain.VerificationStatus, score int, hours float64) {
		completed := assigned.Add(time.Duration(hours * float64(time.Hour)))
		require.NoError(t, db.Create(&verificationdomain.Verification{
			ID:          node.Generate(),
			ProductID:   node.Generate(),
			RequesterID: node.Generate(),
			Level:       1,
			Status:      status,
			ReviewerID:  &reviewerID,
			Score:       &score,
			RequestedAt: assigned,
			AssignedAt:  &assigned,
			CompletedAt: &completed,
			CreatedAt:   assigned,
			UpdatedAt:   completed,
		}).Error)
	}
	seed(verificationdomain.StatusApproved, 90, 2)
	seed(verificationdomain.StatusApproved, 80, 4)
	seed(verificationdomain.StatusRejected, 40, 6)

	_, err := svc.RecordEarning(ctx, node.Generate(), reviewerID, 3500, 1)
	require.NoError(t, err)
	_, err = svc.RecordEarning(ctx, node.Generate(), reviewerID, 3500, 1)
	require.NoError(t, err)

	stats, err := svc.UpdateStats(ctx, reviewerID)
	require.NoError(t, err)
	require.Equal(t, 3, stats.TotalVerifications)
	require.Equal(t, int64(7000), stats.TotalEarnings)
	require.InDelta(t, 2.0/3.0, stats.ApprovalRate, 1e-9)
	require.InDelta(t, 70.0, stats.AverageScoreGiven, 1e-9)
	require.InDelta(t, 4.0, stats.AverageReviewTimeHours, 1e-9)

	// Recomputing over the same history lands on the same aggregate and
	// keeps a single row per reviewer.
	again, err := svc.UpdateStats(ctx, reviewerID)
	require.NoError(t, err)
	require.Equal(t, stats.TotalVerifications, again.TotalVerifications)
	require.Equal(t, stats.TotalEarnings, again.TotalEarnings)

	var count int64
	require.NoError(t, db.Model(&earningsdomain.ReviewerStats{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}
