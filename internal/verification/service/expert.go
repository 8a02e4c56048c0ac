package service

import (
	"context"
	"math"

	"github.com/bwmarrin/snowflake"
	verificationdomain "github.com/craftbase/meridian/internal/verification/domain"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func (s *Service) ExpertReviews(ctx context.Context, verificationID snowflake.ID) ([]*verificationdomain.ExpertReview, error) {
	return s.expertreviewrepo.Find(ctx, &verificationdomain.ExpertReview{VerificationID: verificationID})
}

func (s *Service) ClaimExpert(ctx context.Context, expertReviewID, expertID snowflake.ID) (*verificationdomain.ExpertReview, error) {
	review, err := s.expertreviewrepo.FindOne(ctx, &verificationdomain.ExpertReview{ID: expertReviewID})
	if err != nil {
		return nil, err
	}
	if review == nil {
		return nil, verificationdomain.ErrExpertReviewNotFound
	}

	now := s.clock.Now()
	res := s.db.WithContext(ctx).Model(&verificationdomain.ExpertReview{}).
		Where("id = ? AND status = ? AND expert_id IS NULL", expertReviewID, verificationdomain.StatusPending).
		Updates(map[string]any{
			"status":      verificationdomain.StatusAssigned,
			"expert_id":   expertID,
			"assigned_at": now,
			"updated_at":  now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		if review.ExpertID != nil || review.Status == verificationdomain.StatusPending {
			return nil, verificationdomain.ErrAlreadyClaimed
		}
		return nil, verificationdomain.ErrNotPending
	}

	review.Status = verificationdomain.StatusAssigned
	review.ExpertID = &expertID
	review.AssignedAt = &now
	review.UpdatedAt = now
	return review, nil
}

func (s *Service) StartExpert(ctx context.Context, expertReviewID, expertID snowflake.ID) (*verificationdomain.ExpertReview, error) {
	review, err := s.expertreviewrepo.FindOne(ctx, &verificationdomain.ExpertReview{ID: expertReviewID})
	if err != nil {
		return nil, err
	}
	if review == nil {
		return nil, verificationdomain.ErrExpertReviewNotFound
	}
	if review.ExpertID == nil || *review.ExpertID != expertID {
		return nil, verificationdomain.ErrExpertNotAssignee
	}

	now := s.clock.Now()
	res := s.db.WithContext(ctx).Model(&verificationdomain.ExpertReview{}).
		Where("id = ? AND status = ?", expertReviewID, verificationdomain.StatusAssigned).
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

	review.Status = verificationdomain.StatusInProgress
	review.UpdatedAt = now
	return review, nil
}

// SubmitExpert completes one panel sub-review. A REJECT recommendation still
// completes the row; it feeds the admin's final disposition instead of
// blocking the other specialists. When the fourth sub-review completes, the
// parent verification is completed in the same transaction with the panel
// mean as its aggregate score.
func (s *Service) SubmitExpert(ctx context.Context, in verificationdomain.SubmitExpertReviewInput) (*verificationdomain.ExpertReview, error) {
	if err := validateSubmission(in.Score, in.Comments, in.Recommendation); err != nil {
		return nil, err
	}

	review, err := s.expertreviewrepo.FindOne(ctx, &verificationdomain.ExpertReview{ID: in.ExpertReviewID})
	if err != nil {
		return nil, err
	}
	if review == nil {
		return nil, verificationdomain.ErrExpertReviewNotFound
	}
	if review.ExpertID == nil || *review.ExpertID != in.ExpertID {
		return nil, verificationdomain.ErrExpertNotAssignee
	}
	if review.Status == verificationdomain.StatusCompleted || review.Status.Terminal() {
		return nil, verificationdomain.ErrAlreadySubmitted
	}

	now := s.clock.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&verificationdomain.ExpertReview{}).
			Where("id = ? AND status = ?", in.ExpertReviewID, verificationdomain.StatusInProgress).
			Updates(map[string]any{
				"status":         verificationdomain.StatusCompleted,
				"score":          in.Score,
				"comments":       in.Comments,
				"recommendation": in.Recommendation,
				"reviewed_at":    now,
				"completed_at":   now,
				"updated_at":     now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return verificationdomain.ErrNotInProgress
		}
		return s.completeParentIfPanelDone(ctx, tx, review.VerificationID)
	})
	if err != nil {
		return nil, err
	}

	score := in.Score
	review.Status = verificationdomain.StatusCompleted
	review.Score = &score
	review.Comments = in.Comments
	review.Recommendation = in.Recommendation
	review.ReviewedAt = &now
	review.CompletedAt = &now
	review.UpdatedAt = now

	s.log.Info("expert review submitted",
		zap.String("expert_review_id", in.ExpertReviewID.String()),
		zap.String("specialty", string(review.Specialty)),
		zap.String("recommendation", string(in.Recommendation)),
	)
	return review, nil
}

// completeParentIfPanelDone transitions the parent verification to COMPLETED
// once every panel row is COMPLETED. The parent can never complete earlier.
func (s *Service) completeParentIfPanelDone(ctx context.Context, tx *gorm.DB, verificationID snowflake.ID) error {
	reviews, err := s.expertreviewrepo.WithTrx(tx).Find(ctx, &verificationdomain.ExpertReview{VerificationID: verificationID})
	if err != nil {
		return err
	}
	if len(reviews) < len(verificationdomain.Specialties) {
		return nil
	}
	for _, review := range reviews {
		if review.Status != verificationdomain.StatusCompleted {
			return nil
		}
	}

	var sum, counted int
	entries := make([]verificationdomain.ExpertPanelEntry, 0, len(reviews))
	for _, review := range reviews {
		entry := verificationdomain.ExpertPanelEntry{
			Specialty:      review.Specialty,
			Comments:       review.Comments,
			Recommendation: review.Recommendation,
		}
		if review.ExpertID != nil {
			entry.ExpertID = *review.ExpertID
		}
		if review.ReviewedAt != nil {
			entry.SubmittedAt = *review.ReviewedAt
		}
		if review.Score != nil {
			entry.Score = review.Score
			sum += *review.Score
			counted++
		}
		entries = append(entries, entry)
	}

	var aggregate *int
	if counted > 0 {
		mean := int(math.Round(float64(sum) / float64(counted)))
		aggregate = &mean
	}

	now := s.clock.Now()
	report := datatypes.NewJSONType(verificationdomain.Report{
		Kind:  verificationdomain.ReportExpertPanel,
		Panel: entries,
	})

	res := tx.Model(&verificationdomain.Verification{}).
		Where("id = ? AND status IN ?", verificationID, []verificationdomain.VerificationStatus{
			verificationdomain.StatusPending,
			verificationdomain.StatusAssigned,
			verificationdomain.StatusInProgress,
		}).
		Updates(map[string]any{
			"status":       verificationdomain.StatusCompleted,
			"score":        aggregate,
			"report":       report,
			"reviewed_at":  now,
			"completed_at": now,
			"updated_at":   now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Parent already terminal; leave it alone.
		return nil
	}

	s.log.Info("expert panel completed",
		zap.String("verification_id", verificationID.String()),
		zap.Intp("aggregate_score", aggregate),
	)
	return nil
}
