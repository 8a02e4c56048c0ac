package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/craftbase/meridian/internal/adminops"
	admindomain "github.com/craftbase/meridian/internal/adminops/domain"
	"github.com/craftbase/meridian/internal/audit"
	auditdomain "github.com/craftbase/meridian/internal/audit/domain"
	"github.com/craftbase/meridian/internal/config"
	"github.com/craftbase/meridian/internal/earnings"
	earningsdomain "github.com/craftbase/meridian/internal/earnings/domain"
	"github.com/craftbase/meridian/internal/providers/notification"
	"github.com/craftbase/meridian/internal/settlement"
	settlementdomain "github.com/craftbase/meridian/internal/settlement/domain"
	"github.com/craftbase/meridian/internal/settlement/runner"
	"github.com/craftbase/meridian/internal/verification"
	verificationdomain "github.com/craftbase/meridian/internal/verification/domain"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	audit.Module,
	notification.Module,
	verification.Module,
	earnings.Module,
	settlement.Module,
	adminops.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger) *gin.Engine {
	return NewEngine(log)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server starting", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine *gin.Engine
	cfg    config.Config
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node

	verificationSvc verificationdomain.Service
	earningsSvc     earningsdomain.Service
	settlementSvc   settlementdomain.Service
	adminSvc        admindomain.Service
	auditSvc        auditdomain.Service
	settlementRun   *runner.Runner
}

type ServerParam struct {
	fx.In

	Engine *gin.Engine
	Config config.Config
	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node

	VerificationSvc verificationdomain.Service
	EarningsSvc     earningsdomain.Service
	SettlementSvc   settlementdomain.Service
	AdminSvc        admindomain.Service
	AuditSvc        auditdomain.Service
	SettlementRun   *runner.Runner
}

func NewServer(p ServerParam) *Server {
	s := &Server{
		engine: p.Engine,
		cfg:    p.Config,
		db:     p.DB,
		log:    p.Log.Named("http.server"),
		genID:  p.GenID,

		verificationSvc: p.VerificationSvc,
		earningsSvc:     p.EarningsSvc,
		settlementSvc:   p.SettlementSvc,
		adminSvc:        p.AdminSvc,
		auditSvc:        p.AuditSvc,
		settlementRun:   p.SettlementRun,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	v1 := s.engine.Group("/v1")

	verifications := v1.Group("/verifications")
	verifications.POST("", s.RequestVerification)
	verifications.GET("/:id", s.GetVerification)
	verifications.POST("/:id/cancel", s.CancelVerification)
	verifications.POST("/:id/claim", s.ClaimVerification)
	verifications.POST("/:id/start", s.StartVerification)
	verifications.POST("/:id/submit", s.SubmitReview)
	verifications.GET("/:id/expert-reviews", s.ListExpertReviews)

	expertReviews := v1.Group("/expert-reviews")
	expertReviews.POST("/:id/claim", s.ClaimExpertReview)
	expertReviews.POST("/:id/start", s.StartExpertReview)
	expertReviews.POST("/:id/submit", s.SubmitExpertReview)

	reviewers := v1.Group("/reviewers")
	reviewers.GET("/:id/earnings", s.GetEarnings)
	reviewers.GET("/:id/earnings/breakdown", s.GetEarningsBreakdown)
	reviewers.POST("/:id/stats/refresh", s.RefreshReviewerStats)

	settlements := v1.Group("/settlements")
	settlements.GET("/:id", s.GetSettlement)
	settlements.GET("/:id/items", s.GetSettlementItems)

	owners := v1.Group("/owners")
	owners.GET("/:id/settlements/estimate", s.GetMonthEstimate)

	admin := v1.Group("/admin")
	admin.POST("/verifications/:id/assign", s.AssignVerifier)
	admin.POST("/verifications/:id/approve", s.ApproveVerification)
	admin.POST("/verifications/:id/reject", s.RejectVerification)
	admin.POST("/expert-reviews/:id/assign", s.AssignExpert)
	admin.POST("/settlements/run", s.RunSettlements)
	admin.POST("/settlements/:id/processing", s.MarkSettlementProcessing)
	admin.POST("/settlements/:id/paid", s.MarkSettlementPaid)
	admin.POST("/settlements/:id/failed", s.MarkSettlementFailed)
	admin.GET("/audit-logs", s.ListAuditLogs)
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	access := log.Named("http.access")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		access.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
