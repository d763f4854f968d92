package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/foxseedlab/dictado/internal/config"
	"github.com/foxseedlab/dictado/internal/dictation"
	"github.com/foxseedlab/dictado/internal/dispatch"
	"github.com/foxseedlab/dictado/internal/polisher"
	"github.com/foxseedlab/dictado/internal/repository"
	"github.com/foxseedlab/dictado/internal/transcriber"
	"github.com/foxseedlab/dictado/internal/webhook"
)

type fakeRepo struct {
	sessions    map[string]*repository.Session
	chunks      map[string]*repository.AudioChunk
	transcripts map[string]*repository.Transcript
	seq         int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		sessions:    map[string]*repository.Session{},
		chunks:      map[string]*repository.AudioChunk{},
		transcripts: map[string]*repository.Transcript{},
	}
}

func (f *fakeRepo) next(prefix string) (string, time.Time) {
	f.seq++
	return fmt.Sprintf("%s-%d", prefix, f.seq), time.Now().Add(time.Duration(f.seq) * time.Millisecond)
}

func (f *fakeRepo) CreateSession(_ context.Context, input repository.CreateSessionInput) (*repository.Session, error) {
	id, at := f.next("session")
	title := input.Title
	if title == "" {
		title = "Untitled Session"
	}
	s := &repository.Session{ID: id, UserID: input.UserID, Title: title, Status: repository.SessionStatusRecording, CreatedAt: at, UpdatedAt: at}
	f.sessions[id] = s
	return s, nil
}

func (f *fakeRepo) GetSession(_ context.Context, id string) (*repository.Session, error) {
	return f.sessions[id], nil
}

func (f *fakeRepo) ListSessionsByUser(_ context.Context, userID string) ([]repository.Session, error) {
	var out []repository.Session
	for _, s := range f.sessions {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeRepo) UpdateSessionStatus(_ context.Context, id string, status repository.SessionStatus) error {
	if s, ok := f.sessions[id]; ok {
		s.Status = status
	}
	return nil
}

func (f *fakeRepo) MarkSessionProcessing(_ context.Context, id string) (bool, error) {
	s, ok := f.sessions[id]
	if !ok || s.Status == repository.SessionStatusProcessing {
		return false, nil
	}
	s.Status = repository.SessionStatusProcessing
	return true, nil
}

func (f *fakeRepo) DeleteSession(_ context.Context, id string) error {
	delete(f.sessions, id)
	return nil
}

func (f *fakeRepo) InsertChunk(_ context.Context, input repository.InsertChunkInput) (*repository.AudioChunk, error) {
	id, at := f.next("chunk")
	c := &repository.AudioChunk{ID: id, SessionID: input.SessionID, Filename: input.Filename, StartTime: input.StartTime, EndTime: input.EndTime, UploadedAt: input.UploadedAt, CreatedAt: at}
	f.chunks[id] = c
	return c, nil
}

func (f *fakeRepo) GetChunk(_ context.Context, id string) (*repository.AudioChunk, error) {
	return f.chunks[id], nil
}

func (f *fakeRepo) ListChunksBySessionID(_ context.Context, sessionID string) ([]repository.AudioChunk, error) {
	var out []repository.AudioChunk
	for _, c := range f.chunks {
		if c.SessionID == sessionID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeRepo) InsertTranscript(_ context.Context, input repository.InsertTranscriptInput) (*repository.Transcript, error) {
	id, at := f.next("transcript")
	t := &repository.Transcript{ID: id, SessionID: input.SessionID, Kind: input.Kind, Text: input.Text, Meta: input.Meta, CreatedAt: at}
	f.transcripts[id] = t
	return t, nil
}

func (f *fakeRepo) GetTranscript(_ context.Context, id string) (*repository.Transcript, error) {
	return f.transcripts[id], nil
}

func (f *fakeRepo) ListPartialsBySessionID(_ context.Context, sessionID string, _ repository.PartialOrder) ([]repository.Transcript, error) {
	var out []repository.Transcript
	for _, t := range f.transcripts {
		if t.SessionID == sessionID && t.Kind == repository.TranscriptKindPartial {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeRepo) LatestFinalBySessionID(_ context.Context, sessionID string) (*repository.Transcript, error) {
	var latest *repository.Transcript
	for _, t := range f.transcripts {
		if t.SessionID == sessionID && t.Kind == repository.TranscriptKindFinal {
			if latest == nil || t.CreatedAt.After(latest.CreatedAt) {
				latest = t
			}
		}
	}
	return latest, nil
}

func (f *fakeRepo) LatestBySessionID(_ context.Context, sessionID string) (*repository.Transcript, error) {
	var latest *repository.Transcript
	for _, t := range f.transcripts {
		if t.SessionID == sessionID {
			if latest == nil || t.CreatedAt.After(latest.CreatedAt) {
				latest = t
			}
		}
	}
	return latest, nil
}

func (f *fakeRepo) UpdateTranscriptWords(_ context.Context, id, text string, words []repository.Word) error {
	t, ok := f.transcripts[id]
	if !ok {
		return errors.New("not found")
	}
	t.Text = text
	t.Meta.Words = words
	return nil
}

type fakeBlobs struct{ files map[string][]byte }

func (f *fakeBlobs) Save(name string, r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.files[name] = b
	return nil
}
func (f *fakeBlobs) Exists(name string) (bool, error) { _, ok := f.files[name]; return ok, nil }
func (f *fakeBlobs) Open(name string) (io.ReadCloser, error) {
	b, ok := f.files[name]
	if !ok {
		return nil, errors.New("not found")
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}
func (f *fakeBlobs) Delete(name string) error { delete(f.files, name); return nil }

type fakeTranscriber struct{}

func (fakeTranscriber) Transcribe(_ context.Context, _, language string) (*transcriber.Result, error) {
	return &transcriber.Result{Text: "hola mundo", Language: language, Words: []repository.Word{
		{Text: "hola", Confidence: 0.9}, {Text: "mundo", Confidence: 0.9},
	}}, nil
}

type fakePolisher struct{}

func (fakePolisher) Polish(_ context.Context, text string, _ polisher.Metadata) (*polisher.Result, error) {
	return &polisher.Result{Text: text, Segments: []repository.Segment{}, UncertainWords: []repository.UncertainWord{}}, nil
}

type queuedDispatcher struct{ tasks []dispatch.Task }

func (q *queuedDispatcher) Enqueue(task dispatch.Task) error {
	q.tasks = append(q.tasks, task)
	return nil
}

type noopWebhook struct{}

func (noopWebhook) SendFinalTranscript(context.Context, webhook.FinalTranscriptPayload) error {
	return nil
}

type apiEnv struct {
	repo       *fakeRepo
	dispatcher *queuedDispatcher
	handler    http.Handler
}

func newTestHandler() *apiEnv {
	repo := newFakeRepo()
	dispatcher := &queuedDispatcher{}
	cfg := &config.Config{
		Env:                       "test",
		MaxChunkUploadBytes:       10 << 20,
		DefaultTranscribeLanguage: "es",
		FinalizeOrder:             config.FinalizeOrderCreatedAt,
	}
	svc := dictation.NewService(cfg, repo, &fakeBlobs{files: map[string][]byte{}}, fakeTranscriber{}, fakePolisher{}, dispatcher, noopWebhook{})
	return &apiEnv{repo: repo, dispatcher: dispatcher, handler: NewServer(cfg, svc).Handler()}
}

func doRequest(t *testing.T, handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, target, userID string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	return req
}

func createSession(t *testing.T, env *apiEnv, userID, title string) string {
	t.Helper()
	rec := doRequest(t, env.handler, jsonRequest(http.MethodPost, "/api/transcribe/sessions", userID, map[string]string{"title": title}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create session: unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	return resp.ID
}

func multipartChunk(t *testing.T, target, userID, filename, startTime, endTime string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		_, _ = fw.Write([]byte("audio-bytes"))
	}
	_ = mw.WriteField("start_time", startTime)
	_ = mw.WriteField("end_time", endTime)
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-User-ID", userID)
	return req
}

func TestCreateSession(t *testing.T) {
	env := newTestHandler()
	rec := doRequest(t, env.handler, jsonRequest(http.MethodPost, "/api/transcribe/sessions", "user-1", map[string]string{"title": "Nota"}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		ID     string `json:"id"`
		Title  string `json:"title"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if resp.ID == "" || resp.Title != "Nota" || resp.Status != "recording" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestCreateSession_RequiresUser(t *testing.T) {
	env := newTestHandler()
	rec := doRequest(t, env.handler, jsonRequest(http.MethodPost, "/api/transcribe/sessions", "", map[string]string{}))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestListSessions_ScopedToUser(t *testing.T) {
	env := newTestHandler()
	createSession(t, env, "user-1", "Mia")
	createSession(t, env, "user-2", "Ajena")

	rec := doRequest(t, env.handler, jsonRequest(http.MethodGet, "/api/transcribe/sessions", "user-1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	var resp struct {
		Sessions []struct {
			Title string `json:"title"`
		} `json:"sessions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(resp.Sessions) != 1 || resp.Sessions[0].Title != "Mia" {
		t.Fatalf("unexpected sessions: %+v", resp.Sessions)
	}
}

func TestGetSession_ForeignSessionIsNotFound(t *testing.T) {
	env := newTestHandler()
	id := createSession(t, env, "user-1", "Mia")

	rec := doRequest(t, env.handler, jsonRequest(http.MethodGet, "/api/transcribe/sessions/"+id, "user-2", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign session, got %d", rec.Code)
	}
}

func TestUploadChunk_AcceptsAndQueues(t *testing.T) {
	env := newTestHandler()
	id := createSession(t, env, "user-1", "")

	rec := doRequest(t, env.handler, multipartChunk(t, "/api/transcribe/sessions/"+id+"/chunks", "user-1", "chunk.webm", "0", "9.8"))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		ChunkID string `json:"chunk_id"`
		Status  string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if resp.ChunkID == "" || resp.Status != "processing" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(env.dispatcher.tasks) != 1 {
		t.Fatalf("expected one queued task, got %d", len(env.dispatcher.tasks))
	}
}

func TestUploadChunk_RejectsUnsupportedFormat(t *testing.T) {
	env := newTestHandler()
	id := createSession(t, env, "user-1", "")

	rec := doRequest(t, env.handler, multipartChunk(t, "/api/transcribe/sessions/"+id+"/chunks", "user-1", "chunk.exe", "0", "9.8"))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	if len(env.dispatcher.tasks) != 0 {
		t.Fatal("rejected upload must not queue work")
	}
}

func TestUploadChunk_RejectsBadOffsets(t *testing.T) {
	env := newTestHandler()
	id := createSession(t, env, "user-1", "")

	for _, tc := range []struct {
		name       string
		start, end string
	}{
		{"non-numeric start", "abc", "5"},
		{"negative start", "-1", "5"},
		{"end before start", "5", "2"},
		{"missing end", "0", ""},
	} {
		rec := doRequest(t, env.handler, multipartChunk(t, "/api/transcribe/sessions/"+id+"/chunks", "user-1", "chunk.webm", tc.start, tc.end))
		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("%s: expected 422, got %d", tc.name, rec.Code)
		}
	}
}

func TestUploadChunk_MissingFile(t *testing.T) {
	env := newTestHandler()
	id := createSession(t, env, "user-1", "")

	rec := doRequest(t, env.handler, multipartChunk(t, "/api/transcribe/sessions/"+id+"/chunks", "user-1", "", "0", "5"))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestFinalize_QueuedThenConflict(t *testing.T) {
	env := newTestHandler()
	id := createSession(t, env, "user-1", "")

	rec := doRequest(t, env.handler, jsonRequest(http.MethodPost, "/api/transcribe/sessions/"+id+"/finalize", "user-1", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, env.handler, jsonRequest(http.MethodPost, "/api/transcribe/sessions/"+id+"/finalize", "user-1", nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 while processing, got %d", rec.Code)
	}
}

func TestGetTranscript_ReturnsPartialsAndFinal(t *testing.T) {
	env := newTestHandler()
	id := createSession(t, env, "user-1", "")
	ctx := context.Background()
	_, _ = env.repo.InsertTranscript(ctx, repository.InsertTranscriptInput{
		SessionID: id, Kind: repository.TranscriptKindPartial, Text: "hola mundo",
		Meta: repository.TranscriptMeta{Words: []repository.Word{
			{Text: "hola", Confidence: 0.9},
			{Text: "mundo", Confidence: 0.5, Alternatives: []string{"lindo"}},
		}},
	})
	_, _ = env.repo.InsertTranscript(ctx, repository.InsertTranscriptInput{
		SessionID: id, Kind: repository.TranscriptKindFinal, Text: "Hola, mundo.",
	})

	rec := doRequest(t, env.handler, jsonRequest(http.MethodGet, "/api/transcribe/sessions/"+id+"/transcript", "user-1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	var resp struct {
		Status   string `json:"status"`
		Partials []struct {
			Text           string `json:"text"`
			UncertainWords []struct {
				Text string `json:"text"`
			} `json:"uncertain_words"`
		} `json:"partials"`
		Final *struct {
			Text string `json:"text"`
		} `json:"final"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(resp.Partials) != 1 || resp.Partials[0].Text != "hola mundo" {
		t.Fatalf("unexpected partials: %+v", resp.Partials)
	}
	if len(resp.Partials[0].UncertainWords) != 1 || resp.Partials[0].UncertainWords[0].Text != "mundo" {
		t.Fatalf("unexpected uncertain words: %+v", resp.Partials[0].UncertainWords)
	}
	if resp.Final == nil || resp.Final.Text != "Hola, mundo." {
		t.Fatalf("unexpected final: %+v", resp.Final)
	}
}

func TestAcceptWord_UpdatesTranscript(t *testing.T) {
	env := newTestHandler()
	id := createSession(t, env, "user-1", "")
	inserted, _ := env.repo.InsertTranscript(context.Background(), repository.InsertTranscriptInput{
		SessionID: id, Kind: repository.TranscriptKindPartial, Text: "hola mundo",
		Meta: repository.TranscriptMeta{Words: []repository.Word{
			{Text: "hola", Confidence: 0.9},
			{Text: "mundo", Confidence: 0.5, Alternatives: []string{"lindo"}},
		}},
	})

	idx := 1
	rec := doRequest(t, env.handler, jsonRequest(http.MethodPost, "/api/transcribe/sessions/"+id+"/accept-word", "user-1", map[string]any{
		"transcript_id": inserted.ID,
		"word_index":    idx,
		"accepted_text": "lindo",
	}))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Status     string `json:"status"`
		Transcript struct {
			Text string `json:"text"`
		} `json:"transcript"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if resp.Status != "updated" || resp.Transcript.Text != "hola lindo" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestAcceptWord_ValidatesBody(t *testing.T) {
	env := newTestHandler()
	id := createSession(t, env, "user-1", "")

	rec := doRequest(t, env.handler, jsonRequest(http.MethodPost, "/api/transcribe/sessions/"+id+"/accept-word", "user-1", map[string]any{
		"transcript_id": "t-1",
	}))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/transcribe/sessions/"+id+"/accept-word", strings.NewReader("{not json"))
	req.Header.Set("X-User-ID", "user-1")
	rec = doRequest(t, env.handler, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed JSON, got %d", rec.Code)
	}
}

func TestAcceptWord_OutOfRangeIndex(t *testing.T) {
	env := newTestHandler()
	id := createSession(t, env, "user-1", "")
	inserted, _ := env.repo.InsertTranscript(context.Background(), repository.InsertTranscriptInput{
		SessionID: id, Kind: repository.TranscriptKindPartial, Text: "hola",
		Meta: repository.TranscriptMeta{Words: []repository.Word{{Text: "hola"}}},
	})

	rec := doRequest(t, env.handler, jsonRequest(http.MethodPost, "/api/transcribe/sessions/"+id+"/accept-word", "user-1", map[string]any{
		"transcript_id": inserted.ID,
		"word_index":    5,
		"accepted_text": "x",
	}))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestDeleteSession(t *testing.T) {
	env := newTestHandler()
	id := createSession(t, env, "user-1", "")

	rec := doRequest(t, env.handler, jsonRequest(http.MethodDelete, "/api/transcribe/sessions/"+id, "user-1", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	rec = doRequest(t, env.handler, jsonRequest(http.MethodGet, "/api/transcribe/sessions/"+id, "user-1", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	env := newTestHandler()
	rec := doRequest(t, env.handler, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
}
