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

// JobTrack — Application Tracker
//
// Entry point for the tracker daemon. It:
//  1. Loads configuration from config.yaml and the environment
//  2. Authenticates against Google (Gmail read-only + Sheets)
//  3. Optionally connects to Redis (poll checkpoint) and Postgres (run log)
//  4. Polls Gmail on an interval, classifies new mail, and reconciles
//     the results into the tracking spreadsheet
//  5. Serves a /health endpoint
//  6. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/hireline/jobtrack/internal/auth"
	"github.com/hireline/jobtrack/internal/classify"
	"github.com/hireline/jobtrack/internal/config"
	"github.com/hireline/jobtrack/internal/cursor"
	"github.com/hireline/jobtrack/internal/gmail"
	"github.com/hireline/jobtrack/internal/normalize"
	"github.com/hireline/jobtrack/internal/pipeline"
	"github.com/hireline/jobtrack/internal/runlog"
	"github.com/hireline/jobtrack/internal/sheets"
)

func main() {
	mode := flag.String("mode", "run", "run (poll continuously) or check (single pass)")
	hoursBack := flag.Int("hours-back", 24, "lookback window when no checkpoint exists")
	flag.Parse()

	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("starting jobtrack tracker", "mode", *mode)

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"check_interval", cfg.CheckInterval,
		"max_emails", cfg.MaxEmailsPerCheck,
		"worksheet", cfg.Worksheet,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Optional Redis Checkpoint ---
	var checkpoint *cursor.Checkpoint
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb = redis.NewClient(opt)
		checkpoint = cursor.New(rdb)
		if err := checkpoint.Ping(ctx); err != nil {
			slog.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		slog.Info("connected to Redis")
	}

	// --- Optional Postgres Run Log ---
	var runs *runlog.Store
	var pgPool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pgPool, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to create Postgres pool", "error", err)
			os.Exit(1)
		}
		defer pgPool.Close()

		runs, err = runlog.NewStore(ctx, pgPool)
		if err != nil {
			slog.Error("failed to initialise run log", "error", err)
			os.Exit(1)
		}
		slog.Info("connected to PostgreSQL")
	}

	// --- Google Auth ---
	httpClient, err := auth.Client(ctx, cfg.CredentialsFile, cfg.TokenFile)
	if err != nil {
		slog.Error("google authentication failed", "error", err)
		os.Exit(1)
	}

	// --- Gmail Source ---
	source, err := gmail.NewSource(ctx, httpClient, gmail.Filters{
		JobKeywords:       cfg.JobKeywords,
		RecruitingDomains: cfg.RecruitingDomains,
		SocialDomains:     cfg.SocialDomains,
	})
	if err != nil {
		slog.Error("failed to create gmail source", "error", err)
		os.Exit(1)
	}

	// --- Sheets Store ---
	store, err := sheets.NewStore(ctx, httpClient, cfg.SpreadsheetID, cfg.Worksheet)
	if err != nil {
		slog.Error("failed to create sheets store", "error", err)
		os.Exit(1)
	}

	// --- Classifier ---
	classifier := classify.New(classify.Config{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.OpenAIModel,
	})

	rules := normalize.Rules{
		Statuses:            cfg.JobStatuses,
		JobKeywords:         cfg.JobKeywords,
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		OfferPhrases:        cfg.OfferPhrases,
		InterviewPhrases:    cfg.InterviewPhrases,
	}

	proc := pipeline.New(classifier, store, rules, cfg.RecruitingDomains).
		WithPrefilter(source.IsJobRelated)

	tracker := &tracker{
		source:     source,
		proc:       proc,
		checkpoint: checkpoint,
		runs:       runs,
		maxEmails:  cfg.MaxEmailsPerCheck,
		lookback:   time.Duration(*hoursBack) * time.Hour,
	}

	if *mode == "check" {
		tracker.check(ctx)
		slog.Info("single check complete")
		return
	}

	// --- Poll Loop ---
	go tracker.run(ctx, cfg.CheckInterval)

	// --- Health Check Server ---
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if checkpoint != nil {
			if err := checkpoint.Ping(r.Context()); err != nil {
				http.Error(w, "redis unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		if pgPool != nil {
			if err := pgPool.Ping(r.Context()); err != nil {
				http.Error(w, "postgres unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy"}`))
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// --- Graceful Shutdown ---
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh

		slog.Info("received shutdown signal", "signal", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}

		if rdb != nil {
			rdb.Close()
		}
		if pgPool != nil {
			pgPool.Close()
		}
	}()

	slog.Info("tracker listening", "addr", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("tracker stopped")
}

type tracker struct {
	source     *gmail.Source
	proc       *pipeline.Processor
	checkpoint *cursor.Checkpoint
	runs       *runlog.Store
	maxEmails  int
	lookback   time.Duration
}

// run polls immediately, then on every tick until the context ends.
func (t *tracker) run(ctx context.Context, interval time.Duration) {
	t.check(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.check(ctx)
		}
	}
}

// check runs one poll cycle: resolve the lookback window, fetch, process,
// record the run, and advance the checkpoint.
func (t *tracker) check(ctx context.Context) {
	started := time.Now()
	since := started.Add(-t.lookback)

	if t.checkpoint != nil {
		last, ok, err := t.checkpoint.Load(ctx)
		if err != nil {
			slog.Warn("checkpoint load failed, using default window", "error", err)
		} else if ok {
			since = last
		}
	}

	msgs, err := t.source.FetchRecent(ctx, since, t.maxEmails)
	if err != nil {
		slog.Error("fetch failed", "error", err)
		return
	}
	slog.Info("fetched messages", "count", len(msgs), "since", since.Format(time.RFC3339))

	res := t.proc.ProcessMessages(ctx, msgs)

	t.record(ctx, "poll", started, res)

	if t.checkpoint != nil && ctx.Err() == nil {
		if err := t.checkpoint.Save(ctx, started); err != nil {
			slog.Warn("checkpoint save failed", "error", err)
		}
	}
}

func (t *tracker) record(ctx context.Context, mode string, started time.Time, res pipeline.Result) {
	if t.runs == nil {
		return
	}
	err := t.runs.Record(ctx, runlog.Run{
		Mode:        mode,
		StartedAt:   started,
		FinishedAt:  time.Now(),
		TotalEmails: res.TotalEmails,
		JobRelated:  res.JobRelated,
		Created:     res.Created,
		Updated:     res.Updated,
		Skipped:     res.Skipped,
		Errors:      res.Errors,
	})
	if err != nil {
		slog.Warn("run log write failed", "error", err)
	}
}
