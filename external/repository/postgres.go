package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/foxseedlab/dictado/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) repository.Repository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) CreateSession(ctx context.Context, input repository.CreateSessionInput) (*repository.Session, error) {
	title := input.Title
	if title == "" {
		title = "Untitled Session"
	}
	row := r.pool.QueryRow(ctx,
		`INSERT INTO dictation_sessions (user_id, title, status)
		 VALUES ($1, $2, 'recording')
		 RETURNING id, user_id, title, status, created_at, updated_at`,
		input.UserID, title)
	return scanSession(row)
}

func (r *PostgresRepository) GetSession(ctx context.Context, sessionID string) (*repository.Session, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, user_id, title, status, created_at, updated_at
		 FROM dictation_sessions WHERE id = $1`,
		sessionID)
	s, err := scanSession(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

func (r *PostgresRepository) ListSessionsByUser(ctx context.Context, userID string) ([]repository.Session, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, title, status, created_at, updated_at
		 FROM dictation_sessions WHERE user_id = $1 ORDER BY created_at DESC`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []repository.Session
	for rows.Next() {
		var s repository.Session
		if err := rows.Scan(&s.ID, &s.UserID, &s.Title, &s.Status, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

func (r *PostgresRepository) UpdateSessionStatus(ctx context.Context, sessionID string, status repository.SessionStatus) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE dictation_sessions SET status = $2, updated_at = NOW() WHERE id = $1`,
		sessionID, status)
	return err
}

func (r *PostgresRepository) MarkSessionProcessing(ctx context.Context, sessionID string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE dictation_sessions SET status = 'processing', updated_at = NOW()
		 WHERE id = $1 AND status <> 'processing'`,
		sessionID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresRepository) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM dictation_sessions WHERE id = $1`, sessionID)
	return err
}

func (r *PostgresRepository) InsertChunk(ctx context.Context, input repository.InsertChunkInput) (*repository.AudioChunk, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO audio_chunks (session_id, filename, start_time, end_time, uploaded_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, session_id, filename, start_time, end_time, uploaded_at, created_at`,
		input.SessionID, input.Filename, input.StartTime, input.EndTime, input.UploadedAt)
	return scanChunk(row)
}

func (r *PostgresRepository) GetChunk(ctx context.Context, chunkID string) (*repository.AudioChunk, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, session_id, filename, start_time, end_time, uploaded_at, created_at
		 FROM audio_chunks WHERE id = $1`,
		chunkID)
	c, err := scanChunk(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

func (r *PostgresRepository) ListChunksBySessionID(ctx context.Context, sessionID string) ([]repository.AudioChunk, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, filename, start_time, end_time, uploaded_at, created_at
		 FROM audio_chunks WHERE session_id = $1 ORDER BY created_at ASC`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []repository.AudioChunk
	for rows.Next() {
		var c repository.AudioChunk
		if err := rows.Scan(&c.ID, &c.SessionID, &c.Filename, &c.StartTime, &c.EndTime, &c.UploadedAt, &c.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

func (r *PostgresRepository) InsertTranscript(ctx context.Context, input repository.InsertTranscriptInput) (*repository.Transcript, error) {
	meta, err := json.Marshal(input.Meta)
	if err != nil {
		return nil, fmt.Errorf("marshal transcript meta: %w", err)
	}
	row := r.pool.QueryRow(ctx,
		`INSERT INTO transcripts (session_id, kind, text, meta)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, session_id, kind, text, meta, created_at`,
		input.SessionID, input.Kind, input.Text, meta)
	return scanTranscript(row)
}

func (r *PostgresRepository) GetTranscript(ctx context.Context, transcriptID string) (*repository.Transcript, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, session_id, kind, text, meta, created_at
		 FROM transcripts WHERE id = $1`,
		transcriptID)
	t, err := scanTranscript(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

func (r *PostgresRepository) ListPartialsBySessionID(ctx context.Context, sessionID string, order repository.PartialOrder) ([]repository.Transcript, error) {
	orderClause := `created_at ASC, id ASC`
	if order == repository.PartialOrderChunkStart {
		orderClause = `(meta->>'chunk_start')::DOUBLE PRECISION ASC, created_at ASC`
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, kind, text, meta, created_at
		 FROM transcripts WHERE session_id = $1 AND kind = 'partial'
		 ORDER BY `+orderClause,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []repository.Transcript
	for rows.Next() {
		t, err := scanTranscript(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *t)
	}
	return list, rows.Err()
}

func (r *PostgresRepository) LatestFinalBySessionID(ctx context.Context, sessionID string) (*repository.Transcript, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, session_id, kind, text, meta, created_at
		 FROM transcripts WHERE session_id = $1 AND kind = 'final'
		 ORDER BY created_at DESC, id DESC LIMIT 1`,
		sessionID)
	t, err := scanTranscript(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

func (r *PostgresRepository) LatestBySessionID(ctx context.Context, sessionID string) (*repository.Transcript, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, session_id, kind, text, meta, created_at
		 FROM transcripts WHERE session_id = $1
		 ORDER BY created_at DESC, id DESC LIMIT 1`,
		sessionID)
	t, err := scanTranscript(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

func (r *PostgresRepository) UpdateTranscriptWords(ctx context.Context, transcriptID, text string, words []repository.Word) error {
	wordsJSON, err := json.Marshal(words)
	if err != nil {
		return fmt.Errorf("marshal transcript words: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`UPDATE transcripts SET text = $2, meta = jsonb_set(meta, '{words}', $3::jsonb) WHERE id = $1`,
		transcriptID, text, wordsJSON)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*repository.Session, error) {
	var s repository.Session
	if err := row.Scan(&s.ID, &s.UserID, &s.Title, &s.Status, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func scanChunk(row rowScanner) (*repository.AudioChunk, error) {
	var c repository.AudioChunk
	if err := row.Scan(&c.ID, &c.SessionID, &c.Filename, &c.StartTime, &c.EndTime, &c.UploadedAt, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func scanTranscript(row rowScanner) (*repository.Transcript, error) {
	var t repository.Transcript
	var meta []byte
	if err := row.Scan(&t.ID, &t.SessionID, &t.Kind, &t.Text, &meta, &t.CreatedAt); err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &t.Meta); err != nil {
			return nil, fmt.Errorf("unmarshal transcript meta: %w", err)
		}
	}
	return &t, nil
}
