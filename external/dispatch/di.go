package dispatch

import (
	"github.com/foxseedlab/dictado/internal/config"
	"github.com/foxseedlab/dictado/internal/dispatch"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*WorkerPool, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return NewWorkerPool(PoolConfig{Workers: cfg.WorkerCount}), nil
	})
	do.Provide(injector, func(i do.Injector) (dispatch.Dispatcher, error) {
		return do.MustInvoke[*WorkerPool](i), nil
	})
}
