package webhook

import (
	"github.com/foxseedlab/dictado/internal/config"
	"github.com/foxseedlab/dictado/internal/webhook"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (webhook.Sender, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return NewHTTPSender(cfg.TranscriptWebhookURL), nil
	})
}
