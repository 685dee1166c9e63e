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

// Package reconcile decides whether an analyzed email refers to an
// application already on record. It produces a create instruction for
// unseen applications and a minimal, non-destructive merge delta for
// matched ones. The engine is a pure function of (analysis, message,
// store snapshot); it holds no mutable state.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/hireline/jobtrack/internal/models"
	"github.com/hireline/jobtrack/internal/normalize"
)

// RecordRef opaquely addresses a stored record for updates. Its contents
// are meaningful only to the store that produced it; the engine carries
// it back unchanged and never inspects it.
type RecordRef string

// StoredApplication pairs a record with the store's addressing ref.
type StoredApplication struct {
	models.Application
	Ref RecordRef
}

// RecordStore is the lookup surface the engine depends on. Lookups must
// reflect the latest committed state at call time. A nil result with a
// nil error means "no match".
type RecordStore interface {
	FindByJobID(ctx context.Context, jobID string) (*StoredApplication, error)
	FindByThreadID(ctx context.Context, threadID string) (*StoredApplication, error)
	FindByCompanyPosition(ctx context.Context, company, position string) (*StoredApplication, error)
}

// Action tags a reconciliation instruction.
type Action string

const (
	ActionCreate Action = "create"
	ActionMerge  Action = "merge"
	ActionSkip   Action = "skip"
)

// Skip reasons.
const (
	SkipNoCompany = "no company"
	SkipNoChanges = "no changes"
)

// Instruction is the engine's verdict for one analyzed email: create a
// new record, merge a delta into a matched one, or skip.
type Instruction struct {
	Action  Action
	Record  models.Application // set for ActionCreate
	Ref     RecordRef          // set for ActionMerge
	Updates models.Updates     // set for ActionMerge
	Reason  string             // set for ActionSkip
}

// UnknownPosition is recorded when an email names a company but no role.
const UnknownPosition = "Unknown Position"

// Engine matches analyses against the record store.
type Engine struct {
	store             RecordStore
	recruitingDomains []string
	now               func() time.Time
}

// NewEngine creates a reconciliation engine. recruitingDomains lists
// applicant-tracking platforms whose sender domains never name the
// employer (greenhouse.io, lever.co, ...).
func NewEngine(store RecordStore, recruitingDomains []string) *Engine {
	return &Engine{
		store:             store,
		recruitingDomains: recruitingDomains,
		now:               time.Now,
	}
}

// Reconcile looks the analysis up by its prioritized keys and builds the
// resulting instruction. The first matching key wins; once a key matches
// there is no fallback to weaker keys. Store lookup failures are returned
// to the caller so the message can be tallied and retried later rather
// than duplicated.
func (e *Engine) Reconcile(ctx context.Context, a models.Analysis, msg models.EmailMessage) (Instruction, error) {
	match, err := e.findExisting(ctx, a, msg)
	if err != nil {
		return Instruction{}, fmt.Errorf("lookup application: %w", err)
	}

	if match == nil {
		return e.create(a, msg), nil
	}
	return e.merge(*match, a, msg), nil
}

// findExisting runs the prioritized key lookup: employer-assigned job ID
// first (stable across a whole campaign), then conversation thread, then
// company+position as the weakest, collision-prone key.
func (e *Engine) findExisting(ctx context.Context, a models.Analysis, msg models.EmailMessage) (*StoredApplication, error) {
	if jobID := strings.TrimSpace(a.JobID); jobID != "" {
		return e.store.FindByJobID(ctx, jobID)
	}

	if msg.ThreadID != "" {
		return e.store.FindByThreadID(ctx, msg.ThreadID)
	}

	if a.CompanyName != "" && a.PositionTitle != "" {
		return e.store.FindByCompanyPosition(ctx, a.CompanyName, a.PositionTitle)
	}

	return nil, nil
}

// create builds a new application record, resolving the company from the
// message when the analysis lacks one. Without a resolvable company the
// record would be unmatchable forever, so the email is skipped instead.
func (e *Engine) create(a models.Analysis, msg models.EmailMessage) Instruction {
	company := a.CompanyName
	if company == "" {
		company = e.ExtractCompany(msg)
	}
	if company == "" {
		return Instruction{Action: ActionSkip, Reason: SkipNoCompany}
	}

	position := a.PositionTitle
	if position == "" {
		position = UnknownPosition
	}

	status := a.JobStatus
	if status == "" {
		status = models.StatusApplied
	}

	contactEmail := a.ContactEmail
	if contactEmail == "" {
		contactEmail = msg.Sender
	}

	return Instruction{
		Action: ActionCreate,
		Record: models.Application{
			Company:       company,
			Position:      position,
			JobID:         strings.TrimSpace(a.JobID),
			Status:        status,
			DateApplied:   e.now().Format("2006-01-02"),
			ContactPerson: a.ContactPerson,
			ContactEmail:  contactEmail,
			JobURL:        a.JobURL,
			SalaryRange:   a.SalaryRange,
			Location:      a.Location,
			Notes:         BuildNote(a, msg),
			ThreadID:      msg.ThreadID,
		},
	}
}

// merge computes the minimal delta against a matched record. Scalar
// fields are copied only into empty slots; status is the one exception
// and always progresses on a new, different signal. When nothing would
// change, the merge is skipped — the routine note alone does not justify
// a write.
func (e *Engine) merge(existing StoredApplication, a models.Analysis, msg models.EmailMessage) Instruction {
	updates := models.Updates{}

	if a.JobStatus != "" && a.JobStatus != existing.Status {
		updates[models.FieldStatus] = string(a.JobStatus)
	}
	fillIfEmpty(updates, models.FieldContactPerson, existing.ContactPerson, a.ContactPerson)
	fillIfEmpty(updates, models.FieldContactEmail, existing.ContactEmail, a.ContactEmail)
	fillIfEmpty(updates, models.FieldSalaryRange, existing.SalaryRange, a.SalaryRange)
	fillIfEmpty(updates, models.FieldLocation, existing.Location, a.Location)
	fillIfEmpty(updates, models.FieldThreadID, existing.ThreadID, msg.ThreadID)

	if len(updates) == 0 {
		return Instruction{Action: ActionSkip, Reason: SkipNoChanges}
	}

	// Notes are append-only: prior text is never removed.
	updates[models.FieldNotes] = appendNote(existing.Notes, BuildNote(a, msg))

	return Instruction{
		Action:  ActionMerge,
		Ref:     existing.Ref,
		Updates: updates,
	}
}

func fillIfEmpty(updates models.Updates, field models.Field, existing, candidate string) {
	if existing == "" && candidate != "" {
		updates[field] = candidate
	}
}

// noteSeparator joins note segments and successive note entries.
const noteSeparator = " | "

// BuildNote formats one note entry for an email: the message date and
// email type, then the analysis highlights that are present.
func BuildNote(a models.Analysis, msg models.EmailMessage) string {
	date := msg.Date.Format("2006-01-02")
	if msg.Date.IsZero() {
		date = time.Now().Format("2006-01-02")
	}
	typeLabel := normalize.TitleCase(strings.ReplaceAll(string(a.EmailType), "_", " "))

	parts := []string{fmt.Sprintf("[%s] %s", date, typeLabel)}
	if a.KeyInformation != "" {
		parts = append(parts, a.KeyInformation)
	}
	if a.NextSteps != "" {
		parts = append(parts, "Next steps: "+a.NextSteps)
	}
	if a.InterviewDate != "" {
		entry := "Interview: " + a.InterviewDate
		if a.InterviewType != "" {
			entry += fmt.Sprintf(" (%s)", a.InterviewType)
		}
		parts = append(parts, entry)
	}

	return strings.Join(parts, noteSeparator)
}

func appendNote(existing, note string) string {
	if existing == "" {
		return note
	}
	return existing + noteSeparator + note
}

// Subject-line patterns that name an employer ("from Acme", "at Acme",
// "Acme team", "Acme hiring").
var subjectPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)from\s+([A-Za-z\s]+)`),
	regexp.MustCompile(`(?i)at\s+([A-Za-z\s]+)`),
	regexp.MustCompile(`(?i)(\w+)\s+team`),
	regexp.MustCompile(`(?i)(\w+)\s+hiring`),
}

// ExtractCompany derives a company name from the message itself: the
// sender's domain label, unless the sender is a recruiting platform, then
// subject-line patterns. Returns "" when nothing resolves.
func (e *Engine) ExtractCompany(msg models.EmailMessage) string {
	if strings.Contains(msg.Sender, "@") {
		domain := senderDomain(msg.Sender)
		if domain != "" && !e.isRecruitingPlatform(domain) {
			if name := normalize.CompanyFromDomain(domain); name != "" {
				return name
			}
		}
	}

	for _, pat := range subjectPatterns {
		if m := pat.FindStringSubmatch(msg.Subject); m != nil {
			if name := normalize.TitleCase(strings.TrimSpace(m[1])); name != "" {
				slog.Debug("company resolved from subject", "company", name, "message_id", msg.ID)
				return name
			}
		}
	}

	return ""
}

func (e *Engine) isRecruitingPlatform(domain string) bool {
	for _, platform := range e.recruitingDomains {
		if strings.Contains(domain, platform) {
			return true
		}
	}
	return false
}

func senderDomain(sender string) string {
	_, after, ok := strings.Cut(sender, "@")
	if !ok {
		return ""
	}
	domain, _, _ := strings.Cut(after, ">")
	domain, _, _ = strings.Cut(domain, "/")
	return strings.ToLower(strings.TrimSpace(domain))
}
