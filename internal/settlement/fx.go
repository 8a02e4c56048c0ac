package settlement

import (
	"time"

	"github.com/craftbase/meridian/internal/config"
	"github.com/craftbase/meridian/internal/settlement/runner"
	"github.com/craftbase/meridian/internal/settlement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("settlement",
	fx.Provide(service.NewService),
	fx.Provide(newRunner),
)

func newRunner(p runner.Params, cfg config.Config) *runner.Runner {
	r := runner.New(p)
	r.SetUnitTimeout(time.Duration(cfg.Scheduler.UnitTimeout) * time.Second)
	r.SetEnumerationBatch(cfg.Scheduler.BatchSize)
	return r
}
