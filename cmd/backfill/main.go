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

// JobTrack — Historical Backfill Command
//
// Standalone CLI tool that scans historical Gmail for job-application
// mail within a configurable date range and reconciles it into the
// tracking spreadsheet. Intended for seeding the sheet on first setup.
//
// Usage:
//
//	go run ./cmd/backfill/ [--days-back 30] [--limit 100] [--summary]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hireline/jobtrack/internal/auth"
	"github.com/hireline/jobtrack/internal/classify"
	"github.com/hireline/jobtrack/internal/config"
	"github.com/hireline/jobtrack/internal/gmail"
	"github.com/hireline/jobtrack/internal/models"
	"github.com/hireline/jobtrack/internal/normalize"
	"github.com/hireline/jobtrack/internal/pipeline"
	"github.com/hireline/jobtrack/internal/runlog"
	"github.com/hireline/jobtrack/internal/sheets"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// --- CLI Flags ---
	daysBack := flag.Int("days-back", 30, "How many days of mail to scan")
	limit := flag.Int("limit", 100, "Maximum number of messages to process")
	summary := flag.Bool("summary", false, "Print an application summary instead of scanning mail")
	flag.Parse()

	if *daysBack <= 0 {
		fmt.Fprintf(os.Stderr, "Error: --days-back must be positive\n\n")
		flag.Usage()
		os.Exit(1)
	}

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Optional Postgres Run Log ---
	var runs *runlog.Store
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to create Postgres pool", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		runs, err = runlog.NewStore(ctx, pool)
		if err != nil {
			slog.Error("failed to initialise run log", "error", err)
			os.Exit(1)
		}
	}

	// --- Google Auth ---
	httpClient, err := auth.Client(ctx, cfg.CredentialsFile, cfg.TokenFile)
	if err != nil {
		slog.Error("google authentication failed", "error", err)
		os.Exit(1)
	}

	// --- Sheets Store ---
	store, err := sheets.NewStore(ctx, httpClient, cfg.SpreadsheetID, cfg.Worksheet)
	if err != nil {
		slog.Error("failed to create sheets store", "error", err)
		os.Exit(1)
	}

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

	// Keyword-searched backfill skips the prefilter: the Gmail query
	// already restricts results to job-related terms.
	proc := pipeline.New(classifier, store, rules, cfg.RecruitingDomains)

	if *summary {
		printSummary(ctx, proc, runs)
		return
	}

	// --- Fetch and Process ---
	source, err := gmail.NewSource(ctx, httpClient, gmail.Filters{
		JobKeywords:       cfg.JobKeywords,
		RecruitingDomains: cfg.RecruitingDomains,
		SocialDomains:     cfg.SocialDomains,
	})
	if err != nil {
		slog.Error("failed to create gmail source", "error", err)
		os.Exit(1)
	}

	started := time.Now()
	since := started.AddDate(0, 0, -*daysBack)

	slog.Info("starting backfill", "days_back", *daysBack, "limit", *limit)

	msgs, err := source.FetchByKeywords(ctx, cfg.JobKeywords, since, *limit)
	if err != nil {
		slog.Error("gmail search failed", "error", err)
		os.Exit(1)
	}
	slog.Info("fetched messages", "count", len(msgs))

	res := proc.ProcessMessages(ctx, msgs)

	if runs != nil {
		err := runs.Record(ctx, runlog.Run{
			Mode:        "backfill",
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

	// --- Summary ---
	fmt.Printf("\nBackfill complete in %s\n", time.Since(started).Round(time.Second))
	fmt.Printf("  Emails scanned:  %d\n", res.TotalEmails)
	fmt.Printf("  Job related:     %d\n", res.JobRelated)
	fmt.Printf("  Rows created:    %d\n", res.Created)
	fmt.Printf("  Rows updated:    %d\n", res.Updated)
	fmt.Printf("  Skipped:         %d\n", res.Skipped)
	fmt.Printf("  Errors:          %d\n", res.Errors)
}

func printSummary(ctx context.Context, proc *pipeline.Processor, runs *runlog.Store) {
	s, err := proc.Summarize(ctx)
	if err != nil {
		slog.Error("summary failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Applications tracked: %d\n", s.TotalApplications)
	if len(s.StatusBreakdown) > 0 {
		fmt.Println("\nBy status:")
		for _, status := range statusOrder(s) {
			fmt.Printf("  %-22s %d\n", status, s.StatusBreakdown[status])
		}
	}
	if len(s.Companies) > 0 {
		fmt.Println("\nCompanies:")
		for _, c := range s.Companies {
			fmt.Printf("  %s\n", c)
		}
	}

	if runs == nil {
		return
	}
	recent, err := runs.Recent(ctx, 5)
	if err != nil {
		slog.Warn("run history unavailable", "error", err)
		return
	}
	if len(recent) > 0 {
		fmt.Println("\nRecent runs:")
		for _, r := range recent {
			fmt.Printf("  %s  %-9s emails=%d created=%d updated=%d skipped=%d errors=%d\n",
				r.StartedAt.Format("2006-01-02 15:04"), r.Mode,
				r.TotalEmails, r.Created, r.Updated, r.Skipped, r.Errors)
		}
	}
}

// statusOrder returns the breakdown keys in pipeline order, with any
// statuses outside the known set appended at the end.
func statusOrder(s pipeline.Summary) []models.JobStatus {
	var out []models.JobStatus
	known := make(map[models.JobStatus]bool)
	for _, status := range models.JobStatuses {
		known[status] = true
		if s.StatusBreakdown[status] > 0 {
			out = append(out, status)
		}
	}
	for status := range s.StatusBreakdown {
		if !known[status] {
			out = append(out, status)
		}
	}
	return out
}
