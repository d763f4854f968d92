package polisher

import (
	"github.com/foxseedlab/dictado/internal/config"
	"github.com/foxseedlab/dictado/internal/polisher"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (polisher.Polisher, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewClaudePolisher(ClaudeConfig{
			BaseURL: c.AnthropicBaseURL,
			APIKey:  c.AnthropicAPIKey,
			Model:   c.AnthropicModel,
		}), nil
	})
}
