package httpapi

import (
	"github.com/foxseedlab/dictado/internal/config"
	"github.com/foxseedlab/dictado/internal/dictation"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Server, error) {
		cfg := do.MustInvoke[*config.Config](i)
		svc := do.MustInvoke[*dictation.Service](i)
		return NewServer(cfg, svc), nil
	})
}
