package migration

import (
	auditdomain "github.com/craftbase/meridian/internal/audit/domain"
	catalogdomain "github.com/craftbase/meridian/internal/catalog/domain"
	earningsdomain "github.com/craftbase/meridian/internal/earnings/domain"
	identitydomain "github.com/craftbase/meridian/internal/identity/domain"
	orderdomain "github.com/craftbase/meridian/internal/order/domain"
	settlementdomain "github.com/craftbase/meridian/internal/settlement/domain"
	verificationdomain "github.com/craftbase/meridian/internal/verification/domain"
	"gorm.io/gorm"
)

// Models lists every persisted type, in dependency order.
func Models() []any {
	return []any{
		&identitydomain.User{},
		&catalogdomain.Product{},
		&orderdomain.Order{},
		&verificationdomain.Verification{},
		&verificationdomain.ExpertReview{},
		&earningsdomain.ReviewerPayout{},
		&earningsdomain.ExpertPayout{},
		&earningsdomain.ReviewerStats{},
		&settlementdomain.Settlement{},
		&settlementdomain.SettlementItem{},
		&auditdomain.AuditLog{},
	}
}

// RunMigrations creates or updates the schema so the engine is usable out
// of the box for local and self-hosted environments.
func RunMigrations(conn *gorm.DB) error {
	return conn.AutoMigrate(Models()...)
}
