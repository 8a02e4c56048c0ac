package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	admindomain "github.com/craftbase/meridian/internal/adminops/domain"
	auditdomain "github.com/craftbase/meridian/internal/audit/domain"
	catalogdomain "github.com/craftbase/meridian/internal/catalog/domain"
	"github.com/craftbase/meridian/internal/clock"
	earningsdomain "github.com/craftbase/meridian/internal/earnings/domain"
	"github.com/craftbase/meridian/internal/feepolicy"
	identitydomain "github.com/craftbase/meridian/internal/identity/domain"
	verificationdomain "github.com/craftbase/meridian/internal/verification/domain"
	"github.com/craftbase/meridian/pkg/db"
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
	Audit auditdomain.Service
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	audit auditdomain.Service

	userrepo         repository.Repository[identitydomain.User]
	productrepo      repository.Repository[catalogdomain.Product]
	verificationrepo repository.Repository[verificationdomain.Verification]
	expertreviewrepo repository.Repository[verificationdomain.ExpertReview]
}

func NewService(p ServiceParam) admindomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("adminops.service"),
		genID: p.GenID,
		clock: p.Clock,
		audit: p.Audit,

		userrepo:         repository.ProvideStore[identitydomain.User](p.DB),
		productrepo:      repository.ProvideStore[catalogdomain.Product](p.DB),
		verificationrepo: repository.ProvideStore[verificationdomain.Verification](p.DB),
		expertreviewrepo: repository.ProvideStore[verificationdomain.ExpertReview](p.DB),
	}
}

// AssignVerifier puts a reviewer on a verification. A PENDING row moves to
// ASSIGNED; a row that already has an assignee gets the new assignee with
// its status left alone. Terminal and COMPLETED rows cannot be reassigned.
func (s *Service) AssignVerifier(ctx context.Context, in admindomain.AssignVerifierInput) (*verificationdomain.Verification, error) {
	if err := s.requireAdmin(ctx, in.AdminID); err != nil {
		return nil, err
	}
	assignee, err := s.loadUser(ctx, in.AssigneeID)
	if err != nil {
		return nil, err
	}
	if !assignee.CanReview() {
		return nil, admindomain.ErrCannotReview
	}

	verification, err := s.verificationrepo.FindOne(ctx, &verificationdomain.Verification{ID: in.VerificationID})
	if err != nil {
		return nil, err
	}
	if verification == nil {
		return nil, verificationdomain.ErrVerificationNotFound
	}
	if verification.Level == feepolicy.MaxLevel {
		// Panel verifications have no single reviewer to assign; experts
		// are assigned per sub-review.
		return nil, verificationdomain.ErrExpertPanelRequired
	}
	if verification.Status.Terminal() || verification.Status == verificationdomain.StatusCompleted {
		return nil, admindomain.ErrNotAssignable
	}

	now := s.clock.Now()
	updates := map[string]any{
		"reviewer_id": in.AssigneeID,
		"updated_at":  now,
	}
	if verification.Status == verificationdomain.StatusPending {
		updates["status"] = verificationdomain.StatusAssigned
		updates["assigned_at"] = now
	}

	res := s.db.WithContext(ctx).Model(&verificationdomain.Verification{}).
		Where("id = ? AND status = ?", in.VerificationID, verification.Status).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, admindomain.ErrNotAssignable
	}

	verification.ReviewerID = &in.AssigneeID
	verification.UpdatedAt = now
	if verification.Status == verificationdomain.StatusPending {
		verification.Status = verificationdomain.StatusAssigned
		verification.AssignedAt = &now
	}

	s.recordAudit(ctx, in.AdminID, "verification.assign", "verification", in.VerificationID, map[string]any{
		"assignee_id": in.AssigneeID.String(),
	})
	return verification, nil
}

// AssignExpert is the panel-row counterpart of AssignVerifier.
func (s *Service) AssignExpert(ctx context.Context, in admindomain.AssignExpertInput) (*verificationdomain.ExpertReview, error) {
	if err := s.requireAdmin(ctx, in.AdminID); err != nil {
		return nil, err
	}
	assignee, err := s.loadUser(ctx, in.AssigneeID)
	if err != nil {
		return nil, err
	}
	if !assignee.CanExpertReview() {
		return nil, admindomain.ErrCannotExpertReview
	}

	review, err := s.expertreviewrepo.FindOne(ctx, &verificationdomain.ExpertReview{ID: in.ExpertReviewID})
	if err != nil {
		return nil, err
	}
	if review == nil {
		return nil, verificationdomain.ErrExpertReviewNotFound
	}
	if review.Status.Terminal() || review.Status == verificationdomain.StatusCompleted {
		return nil, admindomain.ErrNotAssignable
	}

	now := s.clock.Now()
	updates := map[string]any{
		"expert_id":  in.AssigneeID,
		"updated_at": now,
	}
	if review.Status == verificationdomain.StatusPending {
		updates["status"] = verificationdomain.StatusAssigned
		updates["assigned_at"] = now
	}

	res := s.db.WithContext(ctx).Model(&verificationdomain.ExpertReview{}).
		Where("id = ? AND status = ?", in.ExpertReviewID, review.Status).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, admindomain.ErrNotAssignable
	}

	review.ExpertID = &in.AssigneeID
	review.UpdatedAt = now
	if review.Status == verificationdomain.StatusPending {
		review.Status = verificationdomain.StatusAssigned
		review.AssignedAt = &now
	}

	s.recordAudit(ctx, in.AdminID, "expert_review.assign", "expert_review", in.ExpertReviewID, map[string]any{
		"assignee_id": in.AssigneeID.String(),
		"specialty":   string(review.Specialty),
	})
	return review, nil
}

// ApproveVerification is the final positive disposition. The status flip,
// the decision record, the product stamp and any payout rows commit in one
// transaction; a failure in any of them rolls back all of them.
func (s *Service) ApproveVerification(ctx context.Context, in admindomain.DecisionInput) (*admindomain.DecisionResult, error) {
	if err := s.requireAdmin(ctx, in.AdminID); err != nil {
		return nil, err
	}

	verification, product, err := s.loadDecisionTarget(ctx, in.VerificationID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	badges := badgesForLevel(verification.Level)
	report := verification.Report.Data()
	report.Decision = &verificationdomain.AdminDecision{
		AdminID:   in.AdminID,
		Outcome:   verificationdomain.DecisionApproved,
		Note:      strings.TrimSpace(in.Note),
		DecidedAt: now,
	}

	result := &admindomain.DecisionResult{Verification: verification, Product: product}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&verificationdomain.Verification{}).
			Where("id = ? AND status = ?", in.VerificationID, verificationdomain.StatusCompleted).
			Updates(map[string]any{
				"status":     verificationdomain.StatusApproved,
				"report":     datatypes.NewJSONType(report),
				"badges":     datatypes.NewJSONSlice(badges),
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return verificationdomain.ErrNotCompleted
		}

		product.VerificationLevel = verification.Level
		product.VerificationScore = verification.Score
		product.VerificationBadges = datatypes.NewJSONSlice(badges)
		product.VerifiedAt = &now
		product.UpdatedAt = now
		if err := s.productrepo.WithTrx(tx).BatchUpdate(ctx, []*catalogdomain.Product{product}); err != nil {
			return err
		}

		payouts, err := s.createPayouts(ctx, tx, verification, now)
		if err != nil {
			return err
		}
		result.Payout = payouts.reviewer
		result.ExpertPayouts = payouts.experts
		return nil
	})
	if err != nil {
		return nil, err
	}

	verification.Status = verificationdomain.StatusApproved
	verification.Report = datatypes.NewJSONType(report)
	verification.Badges = datatypes.NewJSONSlice(badges)
	verification.UpdatedAt = now

	s.log.Info("verification approved",
		zap.String("verification_id", in.VerificationID.String()),
		zap.String("admin_id", in.AdminID.String()),
		zap.Int("level", verification.Level),
	)
	s.recordAudit(ctx, in.AdminID, "verification.approve", "verification", in.VerificationID, map[string]any{
		"level": verification.Level,
		"note":  strings.TrimSpace(in.Note),
	})
	return result, nil
}

// RejectVerification is the final negative disposition: the product's
// verification fields go back to the unverified baseline and no payout is
// ever created. A rejection must say why.
func (s *Service) RejectVerification(ctx context.Context, in admindomain.DecisionInput) (*admindomain.DecisionResult, error) {
	if err := s.requireAdmin(ctx, in.AdminID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Note) == "" {
		return nil, admindomain.ErrRejectRequiresNote
	}

	verification, product, err := s.loadDecisionTarget(ctx, in.VerificationID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	report := verification.Report.Data()
	report.Decision = &verificationdomain.AdminDecision{
		AdminID:   in.AdminID,
		Outcome:   verificationdomain.DecisionRejected,
		Note:      strings.TrimSpace(in.Note),
		DecidedAt: now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&verificationdomain.Verification{}).
			Where("id = ? AND status = ?", in.VerificationID, verificationdomain.StatusCompleted).
			Updates(map[string]any{
				"status":     verificationdomain.StatusRejected,
				"report":     datatypes.NewJSONType(report),
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return verificationdomain.ErrNotCompleted
		}

		product.ResetVerification()
		product.UpdatedAt = now
		return s.productrepo.WithTrx(tx).BatchUpdate(ctx, []*catalogdomain.Product{product})
	})
	if err != nil {
		return nil, err
	}

	verification.Status = verificationdomain.StatusRejected
	verification.Report = datatypes.NewJSONType(report)
	verification.UpdatedAt = now

	s.log.Info("verification rejected",
		zap.String("verification_id", in.VerificationID.String()),
		zap.String("admin_id", in.AdminID.String()),
	)
	s.recordAudit(ctx, in.AdminID, "verification.reject", "verification", in.VerificationID, map[string]any{
		"note": strings.TrimSpace(in.Note),
	})
	return &admindomain.DecisionResult{Verification: verification, Product: product}, nil
}

type decisionPayouts struct {
	reviewer *earningsdomain.ReviewerPayout
	experts  []*earningsdomain.ExpertPayout
}

// createPayouts writes the earning rows an approval owes. Zero-share rows
// produce nothing; a duplicate insert from a retried approval is treated as
// already recorded.
func (s *Service) createPayouts(ctx context.Context, tx *gorm.DB, verification *verificationdomain.Verification, now time.Time) (decisionPayouts, error) {
	var out decisionPayouts

	if verification.ReviewerShare > 0 && verification.ReviewerID != nil {
		payout := &earningsdomain.ReviewerPayout{
			ID:             s.genID.Generate(),
			VerificationID: verification.ID,
			ReviewerID:     *verification.ReviewerID,
			Amount:         verification.ReviewerShare,
			Level:          verification.Level,
			Status:         earningsdomain.PayoutStatusPending,
			EarnedAt:       now,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.WithContext(ctx).Create(payout).Error; err != nil {
			if !db.IsDuplicateKeyErr(err) {
				return out, err
			}
		} else {
			out.reviewer = payout
		}
	}

	if verification.Level != 3 {
		return out, nil
	}

	reviews, err := s.expertreviewrepo.WithTrx(tx).Find(ctx, &verificationdomain.ExpertReview{VerificationID: verification.ID})
	if err != nil {
		return out, err
	}
	for _, review := range reviews {
		if review.ExpertID == nil || review.ExpertShare <= 0 {
			continue
		}
		if review.Status != verificationdomain.StatusCompleted {
			continue
		}
		payout := &earningsdomain.ExpertPayout{
			ID:             s.genID.Generate(),
			ExpertReviewID: review.ID,
			VerificationID: verification.ID,
			ExpertID:       *review.ExpertID,
			Amount:         review.ExpertShare,
			Status:         earningsdomain.PayoutStatusPending,
			EarnedAt:       now,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.WithContext(ctx).Create(payout).Error; err != nil {
			if !db.IsDuplicateKeyErr(err) {
				return out, err
			}
			continue
		}
		out.experts = append(out.experts, payout)
	}
	return out, nil
}

func (s *Service) loadDecisionTarget(ctx context.Context, verificationID snowflake.ID) (*verificationdomain.Verification, *catalogdomain.Product, error) {
	verification, err := s.verificationrepo.FindOne(ctx, &verificationdomain.Verification{ID: verificationID})
	if err != nil {
		return nil, nil, err
	}
	if verification == nil {
		return nil, nil, verificationdomain.ErrVerificationNotFound
	}
	if verification.Status != verificationdomain.StatusCompleted {
		return nil, nil, verificationdomain.ErrNotCompleted
	}

	product, err := s.productrepo.FindOne(ctx, &catalogdomain.Product{ID: verification.ProductID})
	if err != nil {
		return nil, nil, err
	}
	if product == nil {
		return nil, nil, verificationdomain.ErrProductNotFound
	}
	return verification, product, nil
}

func (s *Service) requireAdmin(ctx context.Context, adminID snowflake.ID) error {
	admin, err := s.loadUser(ctx, adminID)
	if err != nil {
		return err
	}
	if !admin.CanAdministrate() {
		return admindomain.ErrNotAdmin
	}
	return nil
}

func (s *Service) loadUser(ctx context.Context, userID snowflake.ID) (*identitydomain.User, error) {
	user, err := s.userrepo.FindOne(ctx, &identitydomain.User{ID: userID})
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, admindomain.ErrUserNotFound
	}
	return user, nil
}

// recordAudit is best-effort; a failed audit write never fails the action.
func (s *Service) recordAudit(ctx context.Context, adminID snowflake.ID, action, targetType string, targetID snowflake.ID, metadata map[string]any) {
	actorID := adminID.String()
	target := targetID.String()
	if err := s.audit.Record(ctx, string(auditdomain.ActorTypeAdmin), &actorID, action, targetType, &target, metadata); err != nil {
		s.log.Warn("audit record failed", zap.String("action", action), zap.Error(err))
	}
}

func badgesForLevel(level int) []string {
	switch level {
	case 1:
		return []string{"verified"}
	case 2:
		return []string{"quality-reviewed"}
	case 3:
		return []string{"expert-verified"}
	default:
		return []string{"basic-checks"}
	}
}
