package transcriber

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/foxseedlab/dictado/internal/adapter"
	"github.com/foxseedlab/dictado/internal/repository"
	"github.com/foxseedlab/dictado/internal/storage"
	"github.com/foxseedlab/dictado/internal/transcriber"
)

const (
	whisperServiceName    = "whisper"
	whisperModel          = "whisper-1"
	whisperRequestTimeout = 120 * time.Second
	errorBodyLimit        = 2048
)

type WhisperConfig struct {
	BaseURL string
	APIKey  string
}

// WhisperTranscriber calls the OpenAI audio transcription endpoint with
// verbose_json output and word-level timestamp granularity.
type WhisperTranscriber struct {
	baseURL string
	apiKey  string
	blobs   storage.BlobStore
	client  *http.Client
}

func NewWhisperTranscriber(cfg WhisperConfig, blobs storage.BlobStore) transcriber.Transcriber {
	return &WhisperTranscriber{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		blobs:   blobs,
		client:  &http.Client{Timeout: whisperRequestTimeout},
	}
}

// whisperResponse mirrors the verbose_json shape of the transcription API.
type whisperResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Words    []struct {
		Word  string  `json:"word"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
	} `json:"words"`
}

func (t *WhisperTranscriber) Transcribe(ctx context.Context, filename, language string) (*transcriber.Result, error) {
	audio, err := t.blobs.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open audio blob %s: %w", filename, err)
	}
	defer func() {
		_ = audio.Close()
	}()

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	writeErrCh := make(chan error, 1)
	go func() {
		defer func() {
			_ = pw.Close()
		}()
		part, err := writer.CreateFormFile("file", filename)
		if err != nil {
			writeErrCh <- fmt.Errorf("create form file: %w", err)
			return
		}
		if _, err := io.Copy(part, audio); err != nil {
			writeErrCh <- fmt.Errorf("copy audio data: %w", err)
			return
		}
		_ = writer.WriteField("model", whisperModel)
		if language != "" {
			_ = writer.WriteField("language", language)
		}
		_ = writer.WriteField("response_format", "verbose_json")
		_ = writer.WriteField("timestamp_granularities[]", "word")
		writeErrCh <- writer.Close()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/audio/transcriptions", pr)
	if err != nil {
		return nil, fmt.Errorf("create transcription request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &adapter.Error{Service: whisperServiceName, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if writeErr := <-writeErrCh; writeErr != nil {
		return nil, fmt.Errorf("multipart write: %w", writeErr)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &adapter.Error{Service: whisperServiceName, Err: fmt.Errorf("read response body: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Error("whisper api error", "status", resp.StatusCode, "body", truncate(body, errorBodyLimit))
		return nil, &adapter.Error{Service: whisperServiceName, Status: resp.StatusCode, Body: truncate(body, errorBodyLimit)}
	}

	var parsed whisperResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode transcription response: %w", err)
	}
	return formatResult(&parsed, language), nil
}

// formatResult shapes the API response into the pipeline's result form.
// Whisper supplies no per-word confidence, so the fixed default applies.
func formatResult(parsed *whisperResponse, fallbackLanguage string) *transcriber.Result {
	words := make([]repository.Word, 0, len(parsed.Words))
	for _, w := range parsed.Words {
		words = append(words, repository.Word{
			Text:       w.Word,
			Start:      w.Start,
			End:        w.End,
			Confidence: transcriber.DefaultConfidence,
		})
	}
	language := parsed.Language
	if language == "" {
		language = fallbackLanguage
	}
	return &transcriber.Result{
		Text:     parsed.Text,
		Language: language,
		Duration: parsed.Duration,
		Words:    words,
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
