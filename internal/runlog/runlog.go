// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package runlog provides a Postgres-backed history of processing runs:
// one row per batch with its tallies. Recording is best effort — a run
// that cannot be logged still counts as a successful run.
package runlog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Run summarises one processing batch.
type Run struct {
	ID          string
	Mode        string // "poll" or "backfill"
	StartedAt   time.Time
	FinishedAt  time.Time
	TotalEmails int
	JobRelated  int
	Created     int
	Updated     int
	Skipped     int
	Errors      int
}

// Store persists run history in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a run-history store backed by the given Postgres pool.
// It ensures the runs table exists on creation.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure runs schema: %w", err)
	}
	slog.Info("run log store initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			id           TEXT PRIMARY KEY,
			mode         TEXT NOT NULL,
			started_at   TIMESTAMPTZ NOT NULL,
			finished_at  TIMESTAMPTZ NOT NULL,
			total_emails INT NOT NULL DEFAULT 0,
			job_related  INT NOT NULL DEFAULT 0,
			created      INT NOT NULL DEFAULT 0,
			updated      INT NOT NULL DEFAULT 0,
			skipped      INT NOT NULL DEFAULT 0,
			errors       INT NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`)
	return err
}

// Record inserts a completed run. A missing ID is assigned.
func (s *Store) Record(ctx context.Context, r Run) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO runs
			(id, mode, started_at, finished_at, total_emails, job_related, created, updated, skipped, errors)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, r.ID, r.Mode, r.StartedAt, r.FinishedAt, r.TotalEmails, r.JobRelated, r.Created, r.Updated, r.Skipped, r.Errors)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// Recent returns the latest runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, mode, started_at, finished_at, total_emails, job_related, created, updated, skipped, errors
		FROM runs
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRuns(rows)
}

func collectRuns(rows pgx.Rows) ([]Run, error) {
	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(
			&r.ID, &r.Mode, &r.StartedAt, &r.FinishedAt,
			&r.TotalEmails, &r.JobRelated, &r.Created, &r.Updated, &r.Skipped, &r.Errors,
		); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
