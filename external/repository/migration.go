package repository

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrationStatements = []string{
	`DO $$ BEGIN CREATE TYPE session_status AS ENUM ('recording', 'processing', 'ready'); EXCEPTION WHEN duplicate_object THEN NULL; END $$`,
	`DO $$ BEGIN CREATE TYPE transcript_kind AS ENUM ('partial', 'final'); EXCEPTION WHEN duplicate_object THEN NULL; END $$`,
	`CREATE TABLE IF NOT EXISTS dictation_sessions (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT 'Untitled Session',
		status session_status NOT NULL DEFAULT 'recording',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_dictation_sessions_user ON dictation_sessions (user_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS audio_chunks (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		session_id UUID NOT NULL REFERENCES dictation_sessions(id) ON DELETE CASCADE,
		filename TEXT NOT NULL,
		start_time DOUBLE PRECISION NOT NULL,
		end_time DOUBLE PRECISION NOT NULL,
		uploaded_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audio_chunks_session ON audio_chunks (session_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS transcripts (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		session_id UUID NOT NULL REFERENCES dictation_sessions(id) ON DELETE CASCADE,
		kind transcript_kind NOT NULL,
		text TEXT NOT NULL,
		meta JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transcripts_session_kind ON transcripts (session_id, kind, created_at)`,
}

func RunMigration(ctx context.Context, pool *pgxpool.Pool) error {
	for _, s := range migrationStatements {
		stmt := strings.TrimSpace(s)
		if stmt == "" {
			continue
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
