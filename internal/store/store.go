// File: internal/store/store.go

// Package store persists the agent transcript: one row per resolved computer
// call, keyed by conversation. Persistence is optional; with no DSN
// configured the loop simply runs without a recorder.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hexlane/operant/internal/loop"
)

// DBPool abstracts the pgxpool.Pool so tests can substitute pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// Store is the PostgreSQL transcript recorder.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

var _ loop.Recorder = (*Store)(nil)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS agent_transcript (
	id              BIGSERIAL PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	call_id         TEXT NOT NULL,
	action_type     TEXT NOT NULL,
	output          TEXT,
	current_url     TEXT,
	response_id     TEXT,
	acked_checks    INT NOT NULL DEFAULT 0,
	created_at      TIMESTAMPTZ NOT NULL
)`

const insertIterationSQL = `
INSERT INTO agent_transcript
	(conversation_id, call_id, action_type, output, current_url, response_id, acked_checks, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

// New verifies connectivity and ensures the transcript table exists.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	s := &Store{
		pool: pool,
		log:  logger.Named("store"),
	}
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		return nil, fmt.Errorf("failed to ensure transcript table: %w", err)
	}
	return s, nil
}

// Connect opens a pgx pool for the DSN and builds a Store on it.
func Connect(ctx context.Context, dsn string, logger *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	s, err := New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// RecordIteration inserts one transcript row. Implements loop.Recorder.
func (s *Store) RecordIteration(ctx context.Context, rec loop.IterationRecord) error {
	_, err := s.pool.Exec(ctx, insertIterationSQL,
		rec.ConversationID,
		rec.CallID,
		rec.ActionType,
		rec.Output,
		rec.CurrentURL,
		rec.ResponseID,
		rec.AcknowledgedChecks,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert transcript row: %w", err)
	}
	return nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
	s.log.Debug("Transcript store closed.")
}
