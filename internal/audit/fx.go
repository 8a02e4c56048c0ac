package audit

import (
	"github.com/craftbase/meridian/internal/audit/repository"
	"github.com/craftbase/meridian/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
