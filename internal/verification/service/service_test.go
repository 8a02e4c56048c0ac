package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/craftbase/meridian/internal/catalog/domain"
	"github.com/craftbase/meridian/internal/clock"
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
	dsn := fmt.Sprintf("file:verification_%d?mode=memory&cache=shared", testDBSeq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&catalogdomain.Product{},
		&verificationdomain.Verification{},
		&verificationdomain.ExpertReview{},
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

func seedProduct(t *testing.T, db *gorm.DB, node *snowflake.Node) *catalogdomain.Product {
	t.Helper()
	product := &catalogdomain.Product{
		ID:       node.Generate(),
		SellerID: node.Generate(),
		Title:    "handmade desk organizer",
	}
	require.NoError(t, db.Create(product).Error)
	return product
}

func TestRequestLevelZeroAutoApproves(t *testing.T) {
	db, svc, node, _ := setupTest(t)
	product := seedProduct(t, db, node)
	ctx := context.Background()

	verification, err := svc.Request(ctx, verificationdomain.RequestVerificationInput{
		ProductID:   product.ID,
		RequesterID: product.SellerID,
		Level:       0,
	})
	require.NoError(t, err)
	require.Equal(t, verificationdomain.StatusApproved, verification.Status)
	require.Zero(t, verification.Fee)
	require.Zero(t, verification.PlatformShare)
	require.Zero(t, verification.ReviewerShare)
	require.NotNil(t, verification.CompletedAt)
	require.Equal(t, verificationdomain.ReportAutomated, verification.Report.Data().Kind)

	var stored catalogdomain.Product
	require.NoError(t, db.First(&stored, "id = ?", product.ID).Error)
	require.NotNil(t, stored.VerifiedAt)
	require.NotNil(t, stored.VerificationScore)
	require.Equal(t, 100, *stored.VerificationScore)
}

func TestRequestSplitReconciles(t *testing.T) {
	db, svc, node, _ := setupTest(t)
	product := seedProduct(t, db, node)

	verification, err := svc.Request(context.Background(), verificationdomain.RequestVerificationInput{
		ProductID:   product.ID,
		RequesterID: product.SellerID,
		Level:       1,
	})
	require.NoError(t, err)
	require.Equal(t, verificationdomain.StatusPending, verification.Status)
	require.Equal(t, int64(5000), verification.Fee)
	require.Equal(t, int64(1500), verification.PlatformShare)
	require.Equal(t, int64(3500), verification.ReviewerShare)
	require.Equal(t, verification.Fee, verification.PlatformShare+verification.ReviewerShare)
}

func TestRequestRejectsBadLevels(t *testing.T) {
	db, svc, node, _ := setupTest(t)
	product := seedProduct(t, db, node)
	ctx := context.Background()

	_, err := svc.Request(ctx, verificationdomain.RequestVerificationInput{
		ProductID: product.ID, RequesterID: product.SellerID, Level: 4,
	})
	require.ErrorIs(t, err, verificationdomain.ErrInvalidLevel)

	_, err = svc.Request(ctx, verificationdomain.RequestVerificationInput{
		ProductID: product.ID, RequesterID: product.SellerID, Level: 2,
	})
	require.ErrorIs(t, err, verificationdomain.ErrLevelNotEnabled)

	_, err = svc.Request(ctx, verificationdomain.RequestVerificationInput{
		ProductID: node.Generate(), RequesterID: product.SellerID, Level: 1,
	})
	require.ErrorIs(t, err, verificationdomain.ErrProductNotFound)
}

func TestClaimIsExclusive(t *testing.T) {
	db, svc, node, _ := setupTest(t)
	product := seedProduct(t, db, node)
	ctx := context.Background()

	verification, err := svc.Request(ctx, verificationdomain.RequestVerificationInput{
		ProductID: product.ID, RequesterID: product.SellerID, Level: 1,
	})
	require.NoError(t, err)

	first := node.Generate()
	second := node.Generate()

	claimed, err := svc.Claim(ctx, verification.ID, first)
	require.NoError(t, err)
	require.Equal(t, verificationdomain.StatusAssigned, claimed.Status)
	require.NotNil(t, claimed.AssignedAt)
	require.Equal(t, first, *claimed.ReviewerID)

	_, err = svc.Claim(ctx, verification.ID, second)
	require.ErrorIs(t, err, verificationdomain.ErrAlreadyClaimed)

	var stored verificationdomain.Verification
	require.NoError(t, db.First(&stored, "id = ?", verification.ID).Error)
	require.Equal(t, first, *stored.ReviewerID)
}

func TestSubmitValidatesBeforeMutating(t *testing.T) {
	db, svc, node, _ := setupTest(t)
	product := seedProduct(t, db, node)
	ctx := context.Background()

	verification, err := svc.Request(ctx, verificationdomain.RequestVerificationInput{
		ProductID: product.ID, RequesterID: product.SellerID, Level: 1,
	})
	require.NoError(t, err)

	reviewer := node.Generate()
	_, err = svc.Claim(ctx, verification.ID, reviewer)
	require.NoError(t, err)
	_, err = svc.Start(ctx, verification.ID, reviewer)
	require.NoError(t, err)

	cases := []struct {
		name string
		in   verificationdomain.SubmitReviewInput
		want error
	}{
		{"score out of range", verificationdomain.SubmitReviewInput{
			VerificationID: verification.ID, ReviewerID: reviewer,
			Score: 150, Comments: "good", Recommendation: verificationdomain.RecommendApprove,
		}, verificationdomain.ErrInvalidScore},
		{"empty comments", verificationdomain.SubmitReviewInput{
			VerificationID: verification.ID, ReviewerID: reviewer,
			Score: 40, Comments: "   ", Recommendation: verificationdomain.RecommendReject,
		}, verificationdomain.ErrMissingComments},
		{"missing recommendation", verificationdomain.SubmitReviewInput{
			VerificationID: verification.ID, ReviewerID: reviewer,
			Score: 40, Comments: "needs work",
		}, verificationdomain.ErrMissingRecommendation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Submit(ctx, tc.in)
			require.ErrorIs(t, err, tc.want)

			var stored verificationdomain.Verification
			require.NoError(t, db.First(&stored, "id = ?", verification.ID).Error)
			require.Equal(t, verificationdomain.StatusInProgress, stored.Status)
			require.Nil(t, stored.Score)
		})
	}
}

func TestSubmitCompletes(t *testing.T) {
	db, svc, node, _ := setupTest(t)
	product := seedProduct(t, db, node)
	ctx := context.Background()

	verification, err := svc.Request(ctx, verificationdomain.RequestVerificationInput{
		ProductID: product.ID, RequesterID: product.SellerID, Level: 1,
	})
	require.NoError(t, err)

	reviewer := node.Generate()
	_, err = svc.Claim(ctx, verification.ID, reviewer)
	require.NoError(t, err)
	_, err = svc.Start(ctx, verification.ID, reviewer)
	require.NoError(t, err)

	submitted, err := svc.Submit(ctx, verificationdomain.SubmitReviewInput{
		VerificationID: verification.ID,
		ReviewerID:     reviewer,
		Score:          88,
		Comments:       "solid listing, accurate photos",
		Recommendation: verificationdomain.RecommendApprove,
	})
	require.NoError(t, err)
	require.Equal(t, verificationdomain.StatusCompleted, submitted.Status)
	require.Equal(t, 88, *submitted.Score)
	require.Equal(t, verificationdomain.ReportManual, submitted.Report.Data().Kind)
	require.Equal(t, reviewer, submitted.Report.Data().Manual.ReviewerID)

	_, err = svc.Submit(ctx, verificationdomain.SubmitReviewInput{
		VerificationID: verification.ID,
		ReviewerID:     reviewer,
		Score:          90,
		Comments:       "again",
		Recommendation: verificationdomain.RecommendApprove,
	})
	require.ErrorIs(t, err, verificationdomain.ErrAlreadySubmitted)
}

func TestCancelOnlyPending(t *testing.T) {
	db, svc, node, _ := setupTest(t)
	product := seedProduct(t, db, node)
	ctx := context.Background()

	verification, err := svc.Request(ctx, verificationdomain.RequestVerificationInput{
		ProductID: product.ID, RequesterID: product.SellerID, Level: 1,
	})
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, verification.ID, node.Generate())
	require.ErrorIs(t, err, verificationdomain.ErrNotRequester)

	_, err = svc.Claim(ctx, verification.ID, node.Generate())
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, verification.ID, product.SellerID)
	require.ErrorIs(t, err, verificationdomain.ErrNotPending)

	fresh, err := svc.Request(ctx, verificationdomain.RequestVerificationInput{
		ProductID: product.ID, RequesterID: product.SellerID, Level: 1,
	})
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, fresh.ID, product.SellerID)
	require.NoError(t, err)
	require.Equal(t, verificationdomain.StatusCancelled, cancelled.Status)
}

func TestStartRequiresAssignee(t *testing.T) {
	db, svc, node, _ := setupTest(t)
	product := seedProduct(t, db, node)
	ctx := context.Background()

	verification, err := svc.Request(ctx, verificationdomain.RequestVerificationInput{
		ProductID: product.ID, RequesterID: product.SellerID, Level: 1,
	})
	require.NoError(t, err)

	reviewer := node.Generate()
	_, err = svc.Claim(ctx, verification.ID, reviewer)
	require.NoError(t, err)

	_, err = svc.Start(ctx, verification.ID, node.Generate())
	require.ErrorIs(t, err, verificationdomain.ErrNotAssignee)

	started, err := svc.Start(ctx, verification.ID, reviewer)
	require.NoError(t, err)
	require.Equal(t, verificationdomain.StatusInProgress, started.Status)
}
