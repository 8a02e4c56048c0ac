package earnings

import (
	"github.com/craftbase/meridian/internal/earnings/service"
	"go.uber.org/fx"
)

var Module = fx.Module("earnings.service",
	fx.Provide(service.NewService),
)
