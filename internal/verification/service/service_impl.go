package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/craftbase/meridian/internal/catalog/domain"
	"github.com/craftbase/meridian/internal/clock"
	"github.com/craftbase/meridian/internal/feepolicy"
	verificationdomain "github.com/craftbase/meridian/internal/verification/domain"
	"github.com/craftbase/meridian/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
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

	verificationrepo repository.Repository[verificationdomain.Verification]
	expertreviewrepo repository.Repository[verificationdomain.ExpertReview]
	productrepo      repository.Repository[catalogdomain.Product]
}

func NewService(p ServiceParam) verificationdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("verification.service"),
		genID: p.GenID,
		clock: p.Clock,

		verificationrepo: repository.ProvideStore[verificationdomain.Verification](p.DB),
		expertreviewrepo: repository.ProvideStore[verificationdomain.ExpertReview](p.DB),
		productrepo:      repository.ProvideStore[catalogdomain.Product](p.DB),
	}
}

func (s *Service) Request(ctx context.Context, in verificationdomain.RequestVerificationInput) (*verificationdomain.Verification, error) {
	fee, ok := feepolicy.FeeForLevel(in.Level)
	if !ok {
		return nil, verificationdomain.ErrInvalidLevel
	}
	if !feepolicy.LevelEnabled(in.Level) {
		return nil, verificationdomain.ErrLevelNotEnabled
	}

	product, err := s.productrepo.FindOne(ctx, &catalogdomain.Product{ID: in.ProductID})
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, verificationdomain.ErrProductNotFound
	}

	now := s.clock.Now()
	platformShare, reviewerShare := feepolicy.Split(fee)

	verification := &verificationdomain.Verification{
		ID:            s.genID.Generate(),
		ProductID:     in.ProductID,
		RequesterID:   in.RequesterID,
		Level:         in.Level,
		Status:        verificationdomain.StatusPending,
		Fee:           fee,
		PlatformShare: platformShare,
		ReviewerShare: reviewerShare,
		RequestedAt:   now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if in.Level == 0 {
		return s.autoApprove(ctx, verification, product, now)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.verificationrepo.WithTrx(tx).Create(ctx, verification); err != nil {
			return err
		}
		if in.Level == feepolicy.MaxLevel {
			return s.createExpertPanel(ctx, tx, verification, now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("verification requested",
		zap.String("verification_id", verification.ID.String()),
		zap.Int("level", in.Level),
		zap.Int64("fee", fee),
	)
	return verification, nil
}

// autoApprove handles the fee-free Level-0 pass: the automated checks run,
// the verification is born APPROVED and the product is stamped in the same
// transaction. No payout row is ever created for a zero-fee verification.
func (s *Service) autoApprove(ctx context.Context, verification *verificationdomain.Verification, product *catalogdomain.Product, now time.Time) (*verificationdomain.Verification, error) {
	score := 100
	completedAt := now

	verification.Status = verificationdomain.StatusApproved
	verification.Score = &score
	verification.Badges = datatypes.NewJSONSlice([]string{"basic-checks"})
	verification.CompletedAt = &completedAt
	verification.Report = datatypes.NewJSONType(verificationdomain.Report{
		Kind: verificationdomain.ReportAutomated,
		Automated: &verificationdomain.AutomatedCheck{
			Passed:    true,
			Checks:    []string{"listing-complete", "media-present", "seller-active"},
			CheckedAt: now,
		},
	})

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.verificationrepo.WithTrx(tx).Create(ctx, verification); err != nil {
			return err
		}
		product.VerificationLevel = 0
		product.VerificationScore = &score
		product.VerificationBadges = verification.Badges
		product.VerifiedAt = &completedAt
		product.UpdatedAt = now
		return s.productrepo.WithTrx(tx).BatchUpdate(ctx, []*catalogdomain.Product{product})
	})
	if err != nil {
		return nil, err
	}
	return verification, nil
}

func (s *Service) createExpertPanel(ctx context.Context, tx *gorm.DB, verification *verificationdomain.Verification, now time.Time) error {
	fees := feepolicy.ExpertFees(verification.Fee)
	reviews := make([]*verificationdomain.ExpertReview, 0, len(verificationdomain.Specialties))
	for i, specialty := range verificationdomain.Specialties {
		platformShare, expertShare := feepolicy.Split(fees[i])
		reviews = append(reviews, &verificationdomain.ExpertReview{
			ID:             s.genID.Generate(),
			VerificationID: verification.ID,
			Specialty:      specialty,
			Status:         verificationdomain.StatusPending,
			Fee:            fees[i],
			PlatformShare:  platformShare,
			ExpertShare:    expertShare,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}
	return s.expertreviewrepo.WithTrx(tx).BatchCreate(ctx, reviews)
}

func (s *Service) Cancel(ctx context.Context, verificationID, requesterID snowflake.ID) (*verificationdomain.Verification, error) {
	verification, err := s.verificationrepo.FindOne(ctx, &verificationdomain.Verification{ID: verificationID})
	if err != nil {
		return nil, err
	}
	if verification == nil {
		return nil, verificationdomain.ErrVerificationNotFound
	}
	if verification.RequesterID != requesterID {
		return nil, verificationdomain.ErrNotRequester
	}

	now := s.clock.Now()
	res := s.db.WithContext(ctx).Model(&verificationdomain.Verification{}).
		Where("id = ? AND status = ?", verificationID, verificationdomain.StatusPending).
		Updates(map[string]any{
			"status":     verificationdomain.StatusCancelled,
			"updated_at": now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, verificationdomain.ErrNotPending
	}

	verification.Status = verificationdomain.StatusCancelled
	verification.UpdatedAt = now
	return verification, nil
}

// Claim takes an unassigned PENDING verification for a reviewer. The claim
// is a conditional update, so of two concurrent claimers exactly one wins
// and the other sees a conflict. Level-3 verifications have no single
// reviewer: they complete only through their expert panel.
func (s *Service) Claim(ctx context.Context, verificationID, reviewerID snowflake.ID) (*verificationdomain.Verification, error) {
	verification, err := s.verificationrepo.FindOne(ctx, &verificationdomain.Verification{ID: verificationID})
	if err != nil {
		return nil, err
	}
	if verification == nil {
		return nil, verificationdomain.ErrVerificationNotFound
	}
	if verification.Level == feepolicy.MaxLevel {
		return nil, verificationdomain.ErrExpertPanelRequired
	}

	now := s.clock.Now()
	res := s.db.WithContext(ctx).Model(&verificationdomain.Verification{}).
		Where("id = ? AND status = ? AND reviewer_id IS NULL", verificationID, verificationdomain.StatusPending).
		Updates(map[string]any{
			"status":      verificationdomain.StatusAssigned,
			"reviewer_id": reviewerID,
			"assigned_at": now,
			"updated_at":  now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		if verification.Status == verificationdomain.StatusPending && verification.ReviewerID == nil {
			// Lost the race between our read and the update.
			return nil, verificationdomain.ErrAlreadyClaimed
		}
		if verification.ReviewerID != nil {
			return nil, verificationdomain.ErrAlreadyClaimed
		}
		return nil, verificationdomain.ErrNotPending
	}

	verification.Status = verificationdomain.StatusAssigned
	verification.ReviewerID = &reviewerID
	verification.AssignedAt = &now
	verification.UpdatedAt = now

	s.log.Info("verification claimed",
		zap.String("verification_id", verificationID.String()),
		zap.String("reviewer_id", reviewerID.String()),
	)
	return verification, nil
}

func (s *Service) Start(ctx context.Context, verificationID, reviewerID snowflake.ID) (*verificationdomain.Verification, error) {
	verification, err := s.verificationrepo.FindOne(ctx, &verificationdomain.Verification{ID: verificationID})
	if err != nil {
		return nil, err
	}
	if verification == nil {
		return nil, verificationdomain.ErrVerificationNotFound
	}
	if verification.Level == feepolicy.MaxLevel {
		return nil, verificationdomain.ErrExpertPanelRequired
	}
	if verification.ReviewerID == nil || *verification.ReviewerID != reviewerID {
		return nil, verificationdomain.ErrNotAssignee
	}

	now := s.clock.Now()
	res := s.db.WithContext(ctx).Model(&verificationdomain.Verification{}).
		Where("id = ? AND status = ?", verificationID, verificationdomain.StatusAssigned).
		Updates(map[string]any{
			"status":     verificationdomain.StatusInProgress,
			"updated_at": now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, verificationdomain.ErrNotAssigned
	}

	verification.Status = verificationdomain.StatusInProgress
	verification.UpdatedAt = now
	return verification, nil
}

func (s *Service) Submit(ctx context.Context, in verificationdomain.SubmitReviewInput) (*verificationdomain.Verification, error) {
	if err := validateSubmission(in.Score, in.Comments, in.Recommendation); err != nil {
		return nil, err
	}

	verification, err := s.verificationrepo.FindOne(ctx, &verificationdomain.Verification{ID: in.VerificationID})
	if err != nil {
		return nil, err
	}
	if verification == nil {
		return nil, verificationdomain.ErrVerificationNotFound
	}
	if verification.Level == feepolicy.MaxLevel {
		return nil, verificationdomain.ErrExpertPanelRequired
	}
	if verification.ReviewerID == nil || *verification.ReviewerID != in.ReviewerID {
		return nil, verificationdomain.ErrNotAssignee
	}
	if verification.Status == verificationdomain.StatusCompleted || verification.Status.Terminal() {
		return nil, verificationdomain.ErrAlreadySubmitted
	}

	now := s.clock.Now()
	report := datatypes.NewJSONType(verificationdomain.Report{
		Kind: verificationdomain.ReportManual,
		Manual: &verificationdomain.ManualReview{
			ReviewerID:     in.ReviewerID,
			Score:          in.Score,
			Comments:       in.Comments,
			Recommendation: in.Recommendation,
			SubmittedAt:    now,
		},
	})

	res := s.db.WithContext(ctx).Model(&verificationdomain.Verification{}).
		Where("id = ? AND status = ?", in.VerificationID, verificationdomain.StatusInProgress).
		Updates(map[string]any{
			"status":       verificationdomain.StatusCompleted,
			"score":        in.Score,
			"report":       report,
			"reviewed_at":  now,
			"completed_at": now,
			"updated_at":   now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, verificationdomain.ErrNotInProgress
	}

	score := in.Score
	verification.Status = verificationdomain.StatusCompleted
	verification.Score = &score
	verification.Report = report
	verification.ReviewedAt = &now
	verification.CompletedAt = &now
	verification.UpdatedAt = now

	s.log.Info("review submitted",
		zap.String("verification_id", in.VerificationID.String()),
		zap.Int("score", in.Score),
		zap.String("recommendation", string(in.Recommendation)),
	)
	return verification, nil
}

func (s *Service) Get(ctx context.Context, verificationID snowflake.ID) (*verificationdomain.Verification, error) {
	verification, err := s.verificationrepo.FindOne(ctx, &verificationdomain.Verification{ID: verificationID})
	if err != nil {
		return nil, err
	}
	if verification == nil {
		return nil, verificationdomain.ErrVerificationNotFound
	}
	return verification, nil
}

// validateSubmission runs before any mutation; an invalid submission must
// leave the row untouched.
func validateSubmission(score int, comments string, recommendation verificationdomain.Recommendation) error {
	if score < 0 || score > 100 {
		return verificationdomain.ErrInvalidScore
	}
	if strings.TrimSpace(comments) == "" {
		return verificationdomain.ErrMissingComments
	}
	switch recommendation {
	case verificationdomain.RecommendApprove:
	case verificationdomain.RecommendReject:
		if strings.TrimSpace(comments) == "" {
			return verificationdomain.ErrRejectRequiresComments
		}
	default:
		return verificationdomain.ErrMissingRecommendation
	}
	return nil
}
