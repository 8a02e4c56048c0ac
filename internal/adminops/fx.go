package adminops

import (
	"github.com/craftbase/meridian/internal/adminops/service"
	"go.uber.org/fx"
)

var Module = fx.Module("adminops.service",
	fx.Provide(service.NewService),
)
