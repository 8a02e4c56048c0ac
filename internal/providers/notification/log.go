package notification

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
)

// LogProvider writes notifications to the application log. Useful for
// development and as the default until a real channel is configured.
type LogProvider struct {
	log *zap.Logger
}

func NewLogProvider(log *zap.Logger) *LogProvider {
	return &LogProvider{log: log.Named("notification")}
}

func (p *LogProvider) Notify(ctx context.Context, ownerID, settlementID snowflake.ID) error {
	p.log.Info("settlement notification",
		zap.String("owner_id", ownerID.String()),
		zap.String("settlement_id", settlementID.String()),
	)
	return nil
}
