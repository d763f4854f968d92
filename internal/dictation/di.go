package dictation

import (
	"github.com/foxseedlab/dictado/internal/config"
	"github.com/foxseedlab/dictado/internal/dispatch"
	"github.com/foxseedlab/dictado/internal/polisher"
	"github.com/foxseedlab/dictado/internal/repository"
	"github.com/foxseedlab/dictado/internal/storage"
	"github.com/foxseedlab/dictado/internal/transcriber"
	"github.com/foxseedlab/dictado/internal/webhook"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Service, error) {
		return NewService(
			do.MustInvoke[*config.Config](i),
			do.MustInvoke[repository.Repository](i),
			do.MustInvoke[storage.BlobStore](i),
			do.MustInvoke[transcriber.Transcriber](i),
			do.MustInvoke[polisher.Polisher](i),
			do.MustInvoke[dispatch.Dispatcher](i),
			do.MustInvoke[webhook.Sender](i),
		), nil
	})
}
