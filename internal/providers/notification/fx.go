package notification

import (
	"github.com/craftbase/meridian/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func NewFromConfig(cfg config.Config, log *zap.Logger) Provider {
	switch cfg.Notify.Provider {
	case "log":
		return NewLogProvider(log)
	case "smtp":
		return NewSMTP(cfg.Notify)
	default:
		return &NoOpProvider{}
	}
}

var Module = fx.Module("providers.notification",
	fx.Provide(NewFromConfig),
)
