package transcriber

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"cloud.google.com/go/auth/credentials"
	speech "cloud.google.com/go/speech/apiv2"
	speechpb "cloud.google.com/go/speech/apiv2/speechpb"
	"github.com/foxseedlab/dictado/internal/adapter"
	"github.com/foxseedlab/dictado/internal/repository"
	"github.com/foxseedlab/dictado/internal/storage"
	"github.com/foxseedlab/dictado/internal/transcriber"
	"google.golang.org/api/option"
)

const (
	cloudSpeechServiceName = "cloud_speech"
	speechAPIEndpointPort  = 443
)

type CloudSpeechConfig struct {
	ProjectID       string
	CredentialsJSON string
	Location        string
	Model           string
}

// CloudSpeechTranscriber recognizes one stored chunk with the synchronous
// Speech v2 API. Chunks are short enough (about 10s) to stay inside the
// sync recognize limit.
type CloudSpeechTranscriber struct {
	projectID       string
	credentialsJSON string
	location        string
	model           string
	blobs           storage.BlobStore
}

func NewCloudSpeechTranscriber(cfg CloudSpeechConfig, blobs storage.BlobStore) transcriber.Transcriber {
	return &CloudSpeechTranscriber{
		projectID:       cfg.ProjectID,
		credentialsJSON: cfg.CredentialsJSON,
		location:        strings.TrimSpace(cfg.Location),
		model:           strings.TrimSpace(cfg.Model),
		blobs:           blobs,
	}
}

func (t *CloudSpeechTranscriber) Transcribe(ctx context.Context, filename, language string) (*transcriber.Result, error) {
	audio, err := t.blobs.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open audio blob %s: %w", filename, err)
	}
	content, err := io.ReadAll(audio)
	_ = audio.Close()
	if err != nil {
		return nil, fmt.Errorf("read audio blob %s: %w", filename, err)
	}

	creds, err := credentials.DetectDefault(&credentials.DetectOptions{
		CredentialsJSON: []byte(t.credentialsJSON),
		Scopes:          []string{"https://www.googleapis.com/auth/cloud-platform"},
	})
	if err != nil {
		return nil, fmt.Errorf("detect credentials: %w", err)
	}
	opts := []option.ClientOption{option.WithAuthCredentials(creds)}
	if t.location != "global" {
		opts = append(opts, option.WithEndpoint(fmt.Sprintf("%s-speech.googleapis.com:%d", t.location, speechAPIEndpointPort)))
	}

	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, &adapter.Error{Service: cloudSpeechServiceName, Err: err}
	}
	defer func() {
		_ = client.Close()
	}()

	languages := []string{language}
	if language == "" {
		languages = []string{"auto"}
	}
	resp, err := client.Recognize(ctx, &speechpb.RecognizeRequest{
		Recognizer: fmt.Sprintf("projects/%s/locations/%s/recognizers/_", t.projectID, t.location),
		Config: &speechpb.RecognitionConfig{
			Model:         t.model,
			LanguageCodes: languages,
			DecodingConfig: &speechpb.RecognitionConfig_AutoDecodingConfig{
				AutoDecodingConfig: &speechpb.AutoDetectDecodingConfig{},
			},
			Features: &speechpb.RecognitionFeatures{
				EnableWordTimeOffsets: true,
				EnableWordConfidence:  true,
			},
		},
		AudioSource: &speechpb.RecognizeRequest_Content{Content: content},
	})
	if err != nil {
		slog.Error("cloud speech recognize failed", "error", err, "filename", filename)
		return nil, &adapter.Error{Service: cloudSpeechServiceName, Err: err}
	}

	return formatRecognizeResponse(resp, language), nil
}

func formatRecognizeResponse(resp *speechpb.RecognizeResponse, fallbackLanguage string) *transcriber.Result {
	var texts []string
	words := make([]repository.Word, 0)
	language := fallbackLanguage
	var duration float64
	for _, result := range resp.GetResults() {
		if len(result.GetAlternatives()) == 0 {
			continue
		}
		alt := result.GetAlternatives()[0]
		texts = append(texts, alt.GetTranscript())
		if result.GetLanguageCode() != "" {
			language = result.GetLanguageCode()
		}
		for _, w := range alt.GetWords() {
			confidence := float64(w.GetConfidence())
			if confidence == 0 {
				confidence = transcriber.DefaultConfidence
			}
			word := repository.Word{
				Text:       w.GetWord(),
				Start:      w.GetStartOffset().AsDuration().Seconds(),
				End:        w.GetEndOffset().AsDuration().Seconds(),
				Confidence: confidence,
			}
			if word.End > duration {
				duration = word.End
			}
			words = append(words, word)
		}
	}
	return &transcriber.Result{
		Text:     strings.Join(texts, " "),
		Language: language,
		Duration: duration,
		Words:    words,
	}
}
