package transcriber

import (
	"fmt"

	"github.com/foxseedlab/dictado/internal/config"
	"github.com/foxseedlab/dictado/internal/storage"
	"github.com/foxseedlab/dictado/internal/transcriber"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (transcriber.Transcriber, error) {
		c := do.MustInvoke[*config.Config](i)
		blobs := do.MustInvoke[storage.BlobStore](i)
		switch c.TranscribeBackend {
		case config.TranscribeBackendCloudSpeech:
			return NewCloudSpeechTranscriber(CloudSpeechConfig{
				ProjectID:       c.GoogleCloudProjectID,
				CredentialsJSON: c.GoogleCloudCredentialsJSON,
				Location:        c.GoogleCloudSpeechLocation,
				Model:           c.GoogleCloudSpeechModel,
			}, blobs), nil
		case config.TranscribeBackendWhisper:
			return NewWhisperTranscriber(WhisperConfig{
				BaseURL: c.OpenAIBaseURL,
				APIKey:  c.OpenAIAPIKey,
			}, blobs), nil
		default:
			return nil, fmt.Errorf("unknown transcribe backend %q", c.TranscribeBackend)
		}
	})
}
