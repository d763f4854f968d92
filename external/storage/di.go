package storage

import (
	"github.com/foxseedlab/dictado/internal/config"
	"github.com/foxseedlab/dictado/internal/storage"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (storage.BlobStore, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return NewLocalBlobStore(cfg.AudioStoragePath)
	})
}
