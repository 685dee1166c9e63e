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

// Package pipeline runs the classify → normalize → reconcile → persist
// flow over a batch of messages. Processing is strictly sequential: each
// message is fully reconciled and written before the next one is looked
// at, so two emails about the same application can never race — the
// record store has no transactional isolation of its own. One message's
// failure is tallied and never aborts the batch.
package pipeline

import (
	"context"
	"log/slog"
	"sort"

	"github.com/hireline/jobtrack/internal/models"
	"github.com/hireline/jobtrack/internal/normalize"
	"github.com/hireline/jobtrack/internal/reconcile"
)

// Classifier produces a candidate analysis for a message, or an error
// meaning "use the fallback path".
type Classifier interface {
	Classify(ctx context.Context, msg models.EmailMessage) (normalize.Candidate, error)
}

// Store is the full record-store surface the pipeline needs: the engine's
// lookups plus execution of its instructions.
type Store interface {
	reconcile.RecordStore
	ListAll(ctx context.Context) ([]reconcile.StoredApplication, error)
	Append(ctx context.Context, app models.Application) error
	Update(ctx context.Context, ref reconcile.RecordRef, updates models.Updates) error
}

// Result tallies one processing batch.
type Result struct {
	TotalEmails int
	JobRelated  int
	Created     int
	Updated     int
	Skipped     int
	Errors      int
}

// Processor wires the pipeline stages together.
type Processor struct {
	classifier Classifier
	engine     *reconcile.Engine
	store      Store
	rules      normalize.Rules

	// prefilter, when set, drops obviously unrelated messages before the
	// model is consulted. Keyword-searched batches skip it: the search
	// query already filtered.
	prefilter func(models.EmailMessage) bool
}

// New creates a processor.
func New(classifier Classifier, store Store, rules normalize.Rules, recruitingDomains []string) *Processor {
	return &Processor{
		classifier: classifier,
		engine:     reconcile.NewEngine(store, recruitingDomains),
		store:      store,
		rules:      rules,
	}
}

// WithPrefilter installs the cheap relevance prefilter.
func (p *Processor) WithPrefilter(f func(models.EmailMessage) bool) *Processor {
	p.prefilter = f
	return p
}

// ProcessMessages runs the pipeline over a batch, oldest message first.
// The caller provides messages already sorted by date.
func (p *Processor) ProcessMessages(ctx context.Context, msgs []models.EmailMessage) Result {
	var res Result

	for _, msg := range msgs {
		if ctx.Err() != nil {
			slog.Warn("batch interrupted", "remaining", len(msgs)-res.TotalEmails)
			return res
		}
		res.TotalEmails++

		if p.prefilter != nil && !p.prefilter(msg) {
			continue
		}

		p.processOne(ctx, msg, &res)
	}

	slog.Info("batch complete",
		"total", res.TotalEmails,
		"job_related", res.JobRelated,
		"created", res.Created,
		"updated", res.Updated,
		"skipped", res.Skipped,
		"errors", res.Errors,
	)
	return res
}

func (p *Processor) processOne(ctx context.Context, msg models.EmailMessage, res *Result) {
	cand, err := p.classifier.Classify(ctx, msg)
	if err != nil {
		// Classifier failure routes to the keyword fallback, not an error.
		cand = nil
	}

	analysis := normalize.Normalize(cand, msg, p.rules)
	if !analysis.IsJobRelated {
		return
	}
	res.JobRelated++

	instr, err := p.engine.Reconcile(ctx, analysis, msg)
	if err != nil {
		slog.Error("reconcile failed", "message_id", msg.ID, "error", err)
		res.Errors++
		return
	}

	switch instr.Action {
	case reconcile.ActionCreate:
		if err := p.store.Append(ctx, instr.Record); err != nil {
			slog.Error("create failed", "message_id", msg.ID, "company", instr.Record.Company, "error", err)
			res.Errors++
			return
		}
		res.Created++

	case reconcile.ActionMerge:
		if err := p.store.Update(ctx, instr.Ref, instr.Updates); err != nil {
			slog.Error("merge failed", "message_id", msg.ID, "error", err)
			res.Errors++
			return
		}
		res.Updated++

	case reconcile.ActionSkip:
		slog.Info("message skipped", "message_id", msg.ID, "reason", instr.Reason)
		res.Skipped++
	}
}

// Summary aggregates the current record store contents.
type Summary struct {
	TotalApplications int
	StatusBreakdown   map[models.JobStatus]int
	Companies         []string
}

// Summarize builds an application summary from the full store listing.
func (p *Processor) Summarize(ctx context.Context) (Summary, error) {
	apps, err := p.store.ListAll(ctx)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{
		TotalApplications: len(apps),
		StatusBreakdown:   make(map[models.JobStatus]int),
	}

	seen := make(map[string]bool)
	for _, app := range apps {
		summary.StatusBreakdown[app.Status]++
		if app.Company != "" && !seen[app.Company] {
			seen[app.Company] = true
			summary.Companies = append(summary.Companies, app.Company)
		}
	}
	sort.Strings(summary.Companies)

	return summary, nil
}
