package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/craftbase/meridian/internal/clock"
	earningsdomain "github.com/craftbase/meridian/internal/earnings/domain"
	verificationdomain "github.com/craftbase/meridian/internal/verification/domain"
	"github.com/craftbase/meridian/pkg/db"
	"github.com/craftbase/meridian/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
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

	payoutrepo       repository.Repository[earningsdomain.ReviewerPayout]
	expertpayoutrepo repository.Repository[earningsdomain.ExpertPayout]
}

func NewService(p ServiceParam) earningsdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("earnings.service"),
		genID: p.GenID,
		clock: p.Clock,

		payoutrepo:       repository.ProvideStore[earningsdomain.ReviewerPayout](p.DB),
		expertpayoutrepo: repository.ProvideStore[earningsdomain.ExpertPayout](p.DB),
	}
}

func (s *Service) RecordEarning(ctx context.Context, verificationID, reviewerID snowflake.ID, amount int64, level int) (*earningsdomain.ReviewerPayout, error) {
	if amount <= 0 {
		return nil, earningsdomain.ErrInvalidAmount
	}

	now := s.clock.Now()
	payout := &earningsdomain.ReviewerPayout{
		ID:             s.genID.Generate(),
		VerificationID: verificationID,
		ReviewerID:     reviewerID,
		Amount:         amount,
		Level:          level,
		Status:         earningsdomain.PayoutStatusPending,
		EarnedAt:       now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.payoutrepo.Create(ctx, payout); err != nil {
		if !db.IsDuplicateKeyErr(err) {
			return nil, err
		}
		// Retried approval: the row already exists, hand it back.
		existing, findErr := s.payoutrepo.FindOne(ctx, &earningsdomain.ReviewerPayout{VerificationID: verificationID})
		if findErr != nil {
			return nil, findErr
		}
		if existing == nil {
			return nil, err
		}
		return existing, nil
	}

	s.log.Info("reviewer earning recorded",
		zap.String("verification_id", verificationID.String()),
		zap.String("reviewer_id", reviewerID.String()),
		zap.Int64("amount", amount),
	)
	return payout, nil
}

func (s *Service) RecordExpertEarning(ctx context.Context, expertReviewID, verificationID, expertID snowflake.ID, amount int64) (*earningsdomain.ExpertPayout, error) {
	if amount <= 0 {
		return nil, earningsdomain.ErrInvalidAmount
	}

	now := s.clock.Now()
	payout := &earningsdomain.ExpertPayout{
		ID:             s.genID.Generate(),
		ExpertReviewID: expertReviewID,
		VerificationID: verificationID,
		ExpertID:       expertID,
		Amount:         amount,
		Status:         earningsdomain.PayoutStatusPending,
		EarnedAt:       now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.expertpayoutrepo.Create(ctx, payout); err != nil {
		if !db.IsDuplicateKeyErr(err) {
			return nil, err
		}
		existing, findErr := s.expertpayoutrepo.FindOne(ctx, &earningsdomain.ExpertPayout{ExpertReviewID: expertReviewID})
		if findErr != nil {
			return nil, findErr
		}
		if existing == nil {
			return nil, err
		}
		return existing, nil
	}
	return payout, nil
}

func (s *Service) Earnings(ctx context.Context, reviewerID snowflake.ID, periodStart, periodEnd time.Time) (*earningsdomain.EarningsSummary, error) {
	if !periodEnd.After(periodStart) {
		return nil, earningsdomain.ErrInvalidPeriod
	}

	var payouts []*earningsdomain.ReviewerPayout
	err := s.db.WithContext(ctx).
		Where("reviewer_id = ? AND earned_at >= ? AND earned_at < ?", reviewerID, periodStart, periodEnd).
		Order("earned_at").
		Find(&payouts).Error
	if err != nil {
		return nil, err
	}

	summary := &earningsdomain.EarningsSummary{
		ReviewerID:  reviewerID,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		Payouts:     payouts,
	}
	for _, payout := range payouts {
		summary.Total += payout.Amount
	}
	return summary, nil
}

func (s *Service) EarningsBreakdown(ctx context.Context, reviewerID snowflake.ID, periodStart, periodEnd time.Time) ([]earningsdomain.LevelEarnings, error) {
	if !periodEnd.After(periodStart) {
		return nil, earningsdomain.ErrInvalidPeriod
	}

	var rows []earningsdomain.LevelEarnings
	err := s.db.WithContext(ctx).Raw(
		`SELECT level, COUNT(1) AS count, COALESCE(SUM(amount), 0) AS amount
		 FROM reviewer_payouts
		 WHERE reviewer_id = ? AND earned_at >= ? AND earned_at < ?
		 GROUP BY level
		 ORDER BY level`,
		reviewerID,
		periodStart,
		periodEnd,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

type reviewerHistoryRow struct {
	Status      verificationdomain.VerificationStatus
	Score       *int
	AssignedAt  *time.Time
	CompletedAt *time.Time
}

// UpdateStats recomputes the aggregate record purely from historical rows,
// so two recomputations over the same snapshot always agree.
func (s *Service) UpdateStats(ctx context.Context, reviewerID snowflake.ID) (*earningsdomain.ReviewerStats, error) {
	var history []reviewerHistoryRow
	err := s.db.WithContext(ctx).Raw(
		`SELECT status, score, assigned_at, completed_at
		 FROM verifications
		 WHERE reviewer_id = ? AND completed_at IS NOT NULL
		 ORDER BY id`,
		reviewerID,
	).Scan(&history).Error
	if err != nil {
		return nil, err
	}

	var totalEarnings int64
	err = s.db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0) FROM reviewer_payouts WHERE reviewer_id = ?`,
		reviewerID,
	).Scan(&totalEarnings).Error
	if err != nil {
		return nil, err
	}

	stats := &earningsdomain.ReviewerStats{
		ReviewerID:    reviewerID,
		TotalEarnings: totalEarnings,
		UpdatedAt:     s.clock.Now(),
	}

	var approved, scored, timed int
	var scoreSum int
	var hoursSum float64
	for _, row := range history {
		stats.TotalVerifications++
		if row.Status == verificationdomain.StatusApproved {
			approved++
		}
		if row.Score != nil {
			scored++
			scoreSum += *row.Score
		}
		if row.AssignedAt != nil && row.CompletedAt != nil {
			timed++
			hoursSum += row.CompletedAt.Sub(*row.AssignedAt).Hours()
		}
	}
	if stats.TotalVerifications > 0 {
		stats.ApprovalRate = float64(approved) / float64(stats.TotalVerifications)
	}
	if scored > 0 {
		stats.AverageScoreGiven = float64(scoreSum) / float64(scored)
	}
	if timed > 0 {
		stats.AverageReviewTimeHours = hoursSum / float64(timed)
	}

	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "reviewer_id"}},
		UpdateAll: true,
	}).Create(stats).Error
	if err != nil {
		return nil, err
	}
	return stats, nil
}
