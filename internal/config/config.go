package config

import "fmt"

const (
	TranscribeBackendWhisper     = "whisper"
	TranscribeBackendCloudSpeech = "cloud_speech"

	FinalizeOrderCreatedAt  = "created_at"
	FinalizeOrderChunkStart = "chunk_start"
)

type Config struct {
	Env                        string
	ListenAddr                 string
	DatabaseURL                string
	AudioStoragePath           string
	MaxChunkUploadBytes        int64
	DefaultTranscribeLanguage  string
	TranscribeBackend          string
	FinalizeOrder              string
	WorkerCount                int
	OpenAIAPIKey               string
	OpenAIBaseURL              string
	AnthropicAPIKey            string
	AnthropicBaseURL           string
	AnthropicModel             string
	GoogleCloudProjectID       string
	GoogleCloudCredentialsJSON string
	GoogleCloudSpeechLocation  string
	GoogleCloudSpeechModel     string
	TranscriptWebhookURL       string
}

func (c *Config) Validate() error {
	for _, req := range c.requiredFieldChecks() {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	switch c.TranscribeBackend {
	case TranscribeBackendWhisper:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when TRANSCRIBE_BACKEND=%s", TranscribeBackendWhisper)
		}
	case TranscribeBackendCloudSpeech:
		if c.GoogleCloudProjectID == "" || c.GoogleCloudCredentialsJSON == "" {
			return fmt.Errorf("GOOGLE_CLOUD_PROJECT_ID and GOOGLE_CLOUD_CREDENTIALS_JSON are required when TRANSCRIBE_BACKEND=%s", TranscribeBackendCloudSpeech)
		}
	default:
		return fmt.Errorf("TRANSCRIBE_BACKEND must be %q or %q, got %q", TranscribeBackendWhisper, TranscribeBackendCloudSpeech, c.TranscribeBackend)
	}
	if c.FinalizeOrder != FinalizeOrderCreatedAt && c.FinalizeOrder != FinalizeOrderChunkStart {
		return fmt.Errorf("FINALIZE_ORDER must be %q or %q, got %q", FinalizeOrderCreatedAt, FinalizeOrderChunkStart, c.FinalizeOrder)
	}
	if c.WorkerCount <= 0 {
		return fmt.Errorf("WORKER_COUNT must be positive, got %d", c.WorkerCount)
	}
	if c.MaxChunkUploadBytes <= 0 {
		return fmt.Errorf("MAX_CHUNK_UPLOAD_BYTES must be positive, got %d", c.MaxChunkUploadBytes)
	}
	return nil
}

type requiredEnvField struct {
	name  string
	value string
}

func (c *Config) requiredFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "DATABASE_URL", value: c.DatabaseURL},
		{name: "AUDIO_STORAGE_PATH", value: c.AudioStoragePath},
		{name: "DEFAULT_TRANSCRIBE_LANGUAGE", value: c.DefaultTranscribeLanguage},
		{name: "ANTHROPIC_API_KEY", value: c.AnthropicAPIKey},
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
