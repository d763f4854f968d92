package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	internalconfig "github.com/foxseedlab/dictado/internal/config"
)

type envConfig struct {
	Env                        string `env:"ENV" envDefault:"production"`
	ListenAddr                 string `env:"LISTEN_ADDR" envDefault:":8080"`
	DatabaseURL                string `env:"DATABASE_URL,required"`
	AudioStoragePath           string `env:"AUDIO_STORAGE_PATH,required"`
	MaxChunkUploadBytes        int64  `env:"MAX_CHUNK_UPLOAD_BYTES" envDefault:"10485760"`
	DefaultTranscribeLanguage  string `env:"DEFAULT_TRANSCRIBE_LANGUAGE" envDefault:"es"`
	TranscribeBackend          string `env:"TRANSCRIBE_BACKEND" envDefault:"whisper"`
	FinalizeOrder              string `env:"FINALIZE_ORDER" envDefault:"created_at"`
	WorkerCount                int    `env:"WORKER_COUNT" envDefault:"4"`
	OpenAIAPIKey               string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL              string `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	AnthropicAPIKey            string `env:"ANTHROPIC_API_KEY,required"`
	AnthropicBaseURL           string `env:"ANTHROPIC_BASE_URL" envDefault:"https://api.anthropic.com/v1"`
	AnthropicModel             string `env:"ANTHROPIC_MODEL" envDefault:"claude-3-5-sonnet-20241022"`
	GoogleCloudProjectID       string `env:"GOOGLE_CLOUD_PROJECT_ID"`
	GoogleCloudCredentialsJSON string `env:"GOOGLE_CLOUD_CREDENTIALS_JSON"`
	GoogleCloudSpeechLocation  string `env:"GOOGLE_CLOUD_SPEECH_LOCATION" envDefault:"global"`
	GoogleCloudSpeechModel     string `env:"GOOGLE_CLOUD_SPEECH_MODEL" envDefault:"chirp_3"`
	TranscriptWebhookURL       string `env:"TRANSCRIPT_WEBHOOK_URL"`
}

func Load() (*internalconfig.Config, error) {
	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}

	cfg := &internalconfig.Config{
		Env:                        raw.Env,
		ListenAddr:                 raw.ListenAddr,
		DatabaseURL:                raw.DatabaseURL,
		AudioStoragePath:           raw.AudioStoragePath,
		MaxChunkUploadBytes:        raw.MaxChunkUploadBytes,
		DefaultTranscribeLanguage:  raw.DefaultTranscribeLanguage,
		TranscribeBackend:          raw.TranscribeBackend,
		FinalizeOrder:              raw.FinalizeOrder,
		WorkerCount:                raw.WorkerCount,
		OpenAIAPIKey:               raw.OpenAIAPIKey,
		OpenAIBaseURL:              raw.OpenAIBaseURL,
		AnthropicAPIKey:            raw.AnthropicAPIKey,
		AnthropicBaseURL:           raw.AnthropicBaseURL,
		AnthropicModel:             raw.AnthropicModel,
		GoogleCloudProjectID:       raw.GoogleCloudProjectID,
		GoogleCloudCredentialsJSON: raw.GoogleCloudCredentialsJSON,
		GoogleCloudSpeechLocation:  raw.GoogleCloudSpeechLocation,
		GoogleCloudSpeechModel:     raw.GoogleCloudSpeechModel,
		TranscriptWebhookURL:       raw.TranscriptWebhookURL,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
