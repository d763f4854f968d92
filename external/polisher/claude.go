package polisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/foxseedlab/dictado/internal/adapter"
	"github.com/foxseedlab/dictado/internal/polisher"
	"github.com/foxseedlab/dictado/internal/repository"
)

const (
	claudeServiceName    = "claude"
	anthropicVersion     = "2023-06-01"
	claudeMaxTokens      = 4096
	claudeRequestTimeout = 120 * time.Second
	errorBodyLimit       = 2048
)

// systemPrompt instructs the model as a Spanish (Mexico) transcription
// editor: restore punctuation and diacritics, keep the spoken register,
// drop or flag disfluencies only under low confidence, reorder lightly
// for self-corrected speech without inventing content, and flag words
// below 0.7 confidence or carrying alternatives.
const systemPrompt = `Eres un editor de transcripciones en español (español de México).

Entrada: transcripción automática con datos por palabra (confianza, alternativas cuando existan).

Tarea:
- Añadir puntuación y tildes correctamente
- Mantener el registro de voz hablado (no reescribir a estilo formal)
- Quitar o marcar muletillas si la confianza es baja (ej: "eh", "este", "pues")
- Si el hablante empezó una frase y se cortó por cambio de idea, reordena ligeramente para que el texto fluya, pero NO inventes información
- Para palabras con baja confianza (<0.7) o con alternativas, márcalas en tu respuesta

Salida: JSON con campos:
- text: texto final editado
- segments: array de segmentos con start, end, text
- uncertain_words: array de palabras inciertas con sus alternativas

Ejemplo de salida:
{
  "text": "Hola, yo quería decirte que mañana vamos a la reunión.",
  "segments": [
    {"start": 0.0, "end": 5.3, "text": "Hola, yo quería decirte que mañana vamos a la reunión."}
  ],
  "uncertain_words": [
    {"word": "decirte", "position": 3, "alternatives": ["decirle"], "confidence": 0.6}
  ]
}`

// jsonObjectPattern extracts the first brace-delimited JSON object found
// anywhere in the model's reply; the model is not forced into structured
// output, so surrounding prose is tolerated.
var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

type ClaudeConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

type ClaudePolisher struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func NewClaudePolisher(cfg ClaudeConfig) polisher.Polisher {
	return &ClaudePolisher{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		client:  &http.Client{Timeout: claudeRequestTimeout},
	}
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeMessageRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	System    string          `json:"system"`
	Messages  []claudeMessage `json:"messages"`
}

type claudeMessageResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

type polishedPayload struct {
	Text           string                     `json:"text"`
	Segments       []repository.Segment       `json:"segments"`
	UncertainWords []repository.UncertainWord `json:"uncertain_words"`
}

func (p *ClaudePolisher) Polish(ctx context.Context, text string, meta polisher.Metadata) (*polisher.Result, error) {
	reqBody, err := json.Marshal(claudeMessageRequest{
		Model:     p.model,
		MaxTokens: claudeMaxTokens,
		System:    systemPrompt,
		Messages: []claudeMessage{
			{Role: "user", Content: formatUserMessage(text, meta)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal polish request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/messages", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create polish request: %w", err)
	}
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	req.Header.Set("content-type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &adapter.Error{Service: claudeServiceName, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &adapter.Error{Service: claudeServiceName, Err: fmt.Errorf("read response body: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Error("claude api error", "status", resp.StatusCode, "body", truncate(body, errorBodyLimit))
		return nil, &adapter.Error{Service: claudeServiceName, Status: resp.StatusCode, Body: truncate(body, errorBodyLimit)}
	}

	var parsed claudeMessageResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode polish response: %w", err)
	}
	var content string
	if len(parsed.Content) > 0 {
		content = parsed.Content[0].Text
	}
	return parsePolishedContent(content), nil
}

// formatUserMessage embeds the raw transcript and pretty-printed word
// metadata into a single user turn.
func formatUserMessage(text string, meta polisher.Metadata) string {
	msg := "Transcripción automática:\n\n" + text + "\n\n"
	if len(meta.Words) > 0 {
		wordsJSON, err := json.MarshalIndent(meta.Words, "", "    ")
		if err == nil {
			msg += "Metadatos de palabras:\n" + string(wordsJSON)
		}
	}
	return msg
}

// parsePolishedContent decodes the first JSON object in the reply. A
// reply with no decodable object degrades to the raw text with empty
// segments and uncertain words, never a failure.
func parsePolishedContent(content string) *polisher.Result {
	if match := jsonObjectPattern.FindString(content); match != "" {
		var payload polishedPayload
		if err := json.Unmarshal([]byte(match), &payload); err == nil {
			result := &polisher.Result{
				Text:           payload.Text,
				Segments:       payload.Segments,
				UncertainWords: payload.UncertainWords,
			}
			if result.Segments == nil {
				result.Segments = []repository.Segment{}
			}
			if result.UncertainWords == nil {
				result.UncertainWords = []repository.UncertainWord{}
			}
			return result
		}
		slog.Warn("failed to parse polished json response", "content_length", len(content))
	}
	return &polisher.Result{
		Text:           content,
		Segments:       []repository.Segment{},
		UncertainWords: []repository.UncertainWord{},
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
