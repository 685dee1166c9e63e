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

package pipeline

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/hireline/jobtrack/internal/models"
	"github.com/hireline/jobtrack/internal/normalize"
	"github.com/hireline/jobtrack/internal/reconcile"
)

// --- Fake classifier ---

// fakeClassifier returns a canned candidate per message ID; missing IDs
// fail like a model outage.
type fakeClassifier struct {
	responses map[string]normalize.Candidate
}

func (f *fakeClassifier) Classify(_ context.Context, msg models.EmailMessage) (normalize.Candidate, error) {
	if cand, ok := f.responses[msg.ID]; ok {
		return cand, nil
	}
	return nil, errors.New("model unavailable")
}

// --- Fake store ---

type fakeStore struct {
	records []reconcile.StoredApplication
	nextRef int

	appendErr error
	updateErr error
}

func (f *fakeStore) ListAll(_ context.Context) ([]reconcile.StoredApplication, error) {
	return f.records, nil
}

func (f *fakeStore) FindByJobID(_ context.Context, jobID string) (*reconcile.StoredApplication, error) {
	for i := range f.records {
		if f.records[i].JobID == jobID {
			return &f.records[i], nil
		}
	}
	return nil, nil
}

func (f *fakeStore) FindByThreadID(_ context.Context, threadID string) (*reconcile.StoredApplication, error) {
	for i := range f.records {
		if f.records[i].ThreadID == threadID {
			return &f.records[i], nil
		}
	}
	return nil, nil
}

func (f *fakeStore) FindByCompanyPosition(_ context.Context, company, position string) (*reconcile.StoredApplication, error) {
	for i := range f.records {
		if strings.EqualFold(f.records[i].Company, company) && strings.EqualFold(f.records[i].Position, position) {
			return &f.records[i], nil
		}
	}
	return nil, nil
}

func (f *fakeStore) Append(_ context.Context, app models.Application) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.nextRef++
	f.records = append(f.records, reconcile.StoredApplication{
		Application: app,
		Ref:         reconcile.RecordRef(strconv.Itoa(f.nextRef)),
	})
	return nil
}

func (f *fakeStore) Update(_ context.Context, ref reconcile.RecordRef, updates models.Updates) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	for i := range f.records {
		if f.records[i].Ref != ref {
			continue
		}
		rec := &f.records[i].Application
		for field, value := range updates {
			switch field {
			case models.FieldStatus:
				rec.Status = models.JobStatus(value)
			case models.FieldContactPerson:
				rec.ContactPerson = value
			case models.FieldContactEmail:
				rec.ContactEmail = value
			case models.FieldSalaryRange:
				rec.SalaryRange = value
			case models.FieldLocation:
				rec.Location = value
			case models.FieldNotes:
				rec.Notes = value
			case models.FieldThreadID:
				rec.ThreadID = value
			}
		}
		return nil
	}
	return errors.New("unknown ref")
}

func testRules() normalize.Rules {
	return normalize.Rules{
		Statuses:            models.JobStatuses,
		JobKeywords:         []string{"application", "interview"},
		ConfidenceThreshold: 0.6,
		OfferPhrases:        []string{"pleased to offer"},
		InterviewPhrases:    []string{"schedule an interview"},
	}
}

var recruitingDomains = []string{"greenhouse.io"}

// TestProcessMessages_CreateAndMerge runs two emails about the same
// application through the pipeline and checks the tallies and the final
// store state.
func TestProcessMessages_CreateAndMerge(t *testing.T) {
	store := &fakeStore{}
	classifier := &fakeClassifier{responses: map[string]normalize.Candidate{
		"m1": {
			"is_job_related":   true,
			"email_type":       "application_confirmation",
			"company_name":     "Acme",
			"position_title":   "Engineer",
			"job_id":           "REQ-42",
			"job_status":       "Applied",
			"confidence_score": 0.9,
		},
		"m2": {
			"is_job_related":   true,
			"email_type":       "interview_invitation",
			"company_name":     "Acme",
			"position_title":   "Engineer",
			"job_id":           "REQ-42",
			"job_status":       "Phone Screen",
			"confidence_score": 0.9,
		},
	}}

	proc := New(classifier, store, testRules(), recruitingDomains)
	res := proc.ProcessMessages(context.Background(), []models.EmailMessage{
		{ID: "m1", Sender: "careers@acme.com", ThreadID: "t1", Subject: "Application received",
			Date: time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)},
		{ID: "m2", Sender: "careers@acme.com", ThreadID: "t2", Subject: "Phone screen",
			Date: time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)},
	})

	if res.TotalEmails != 2 || res.JobRelated != 2 {
		t.Errorf("tallies = %+v, want 2 total / 2 related", res)
	}
	if res.Created != 1 || res.Updated != 1 {
		t.Errorf("tallies = %+v, want 1 created / 1 updated", res)
	}
	if len(store.records) != 1 {
		t.Fatalf("records = %d, want a single merged application", len(store.records))
	}
	if store.records[0].Status != models.StatusPhoneScreen {
		t.Errorf("final status = %q, want Phone Screen", store.records[0].Status)
	}
}

// TestProcessMessages_ClassifierFailureFallsBack verifies a model outage
// degrades to the keyword fallback rather than erroring: a keyworded
// message is still skipped or created by fallback rules, and the batch
// tally counts no errors.
func TestProcessMessages_ClassifierFailureFallsBack(t *testing.T) {
	store := &fakeStore{}
	classifier := &fakeClassifier{} // every call fails

	proc := New(classifier, store, testRules(), recruitingDomains)
	res := proc.ProcessMessages(context.Background(), []models.EmailMessage{
		{ID: "m1", Sender: "careers@acme.com", Subject: "Your application", ThreadID: "t1"},
	})

	if res.Errors != 0 {
		t.Errorf("errors = %d, want classifier failure handled silently", res.Errors)
	}
	if res.JobRelated != 1 {
		t.Errorf("job related = %d, want fallback keyword hit", res.JobRelated)
	}
	if res.Created != 1 {
		t.Errorf("created = %d, want fallback-derived record", res.Created)
	}
	if len(store.records) == 1 && store.records[0].Company != "Acme" {
		t.Errorf("company = %q, want Acme from sender domain", store.records[0].Company)
	}
}

// TestProcessMessages_NotJobRelatedDropped verifies unrelated mail is
// counted in the total but produces no store traffic.
func TestProcessMessages_NotJobRelatedDropped(t *testing.T) {
	store := &fakeStore{}
	classifier := &fakeClassifier{responses: map[string]normalize.Candidate{
		"m1": {"is_job_related": false, "confidence_score": 0.95},
	}}

	proc := New(classifier, store, testRules(), recruitingDomains)
	res := proc.ProcessMessages(context.Background(), []models.EmailMessage{
		{ID: "m1", Sender: "news@blog.com", Subject: "Weekly digest"},
	})

	if res.TotalEmails != 1 || res.JobRelated != 0 {
		t.Errorf("tallies = %+v, want 1 total / 0 related", res)
	}
	if len(store.records) != 0 {
		t.Errorf("store has %d records, want none", len(store.records))
	}
}

// TestProcessMessages_StoreErrorIsolated verifies one failing write is
// tallied as an error while the rest of the batch continues.
func TestProcessMessages_StoreErrorIsolated(t *testing.T) {
	store := &fakeStore{appendErr: errors.New("quota exceeded")}
	classifier := &fakeClassifier{responses: map[string]normalize.Candidate{
		"m1": {
			"is_job_related":   true,
			"company_name":     "Acme",
			"position_title":   "Engineer",
			"confidence_score": 0.9,
		},
		"m2": {"is_job_related": false, "confidence_score": 0.9},
	}}

	proc := New(classifier, store, testRules(), recruitingDomains)
	res := proc.ProcessMessages(context.Background(), []models.EmailMessage{
		{ID: "m1", Sender: "careers@acme.com", ThreadID: "t1"},
		{ID: "m2", Sender: "news@blog.com"},
	})

	if res.Errors != 1 {
		t.Errorf("errors = %d, want 1", res.Errors)
	}
	if res.TotalEmails != 2 {
		t.Errorf("total = %d, want the batch to continue past the failure", res.TotalEmails)
	}
}

// TestProcessMessages_Prefilter verifies prefiltered messages never reach
// the classifier.
func TestProcessMessages_Prefilter(t *testing.T) {
	store := &fakeStore{}
	calls := 0
	classifier := &countingClassifier{inner: &fakeClassifier{}, calls: &calls}

	proc := New(classifier, store, testRules(), recruitingDomains).
		WithPrefilter(func(msg models.EmailMessage) bool { return false })

	res := proc.ProcessMessages(context.Background(), []models.EmailMessage{
		{ID: "m1", Subject: "anything"},
		{ID: "m2", Subject: "anything else"},
	})

	if calls != 0 {
		t.Errorf("classifier called %d times, want 0", calls)
	}
	if res.TotalEmails != 2 {
		t.Errorf("total = %d, want prefiltered mail still counted", res.TotalEmails)
	}
}

type countingClassifier struct {
	inner Classifier
	calls *int
}

func (c *countingClassifier) Classify(ctx context.Context, msg models.EmailMessage) (normalize.Candidate, error) {
	*c.calls++
	return c.inner.Classify(ctx, msg)
}

// TestProcessMessages_ContextCancelled verifies a cancelled context stops
// the batch without touching remaining messages.
func TestProcessMessages_ContextCancelled(t *testing.T) {
	store := &fakeStore{}
	classifier := &fakeClassifier{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	proc := New(classifier, store, testRules(), recruitingDomains)
	res := proc.ProcessMessages(ctx, []models.EmailMessage{
		{ID: "m1"}, {ID: "m2"},
	})

	if res.TotalEmails != 0 {
		t.Errorf("total = %d, want 0 after cancellation", res.TotalEmails)
	}
}

// TestSummarize verifies totals, status counts, and sorted distinct
// companies.
func TestSummarize(t *testing.T) {
	store := &fakeStore{records: []reconcile.StoredApplication{
		{Application: models.Application{Company: "Zeta", Status: models.StatusApplied}},
		{Application: models.Application{Company: "Acme", Status: models.StatusOffer}},
		{Application: models.Application{Company: "Acme", Status: models.StatusApplied}},
	}}

	proc := New(&fakeClassifier{}, store, testRules(), recruitingDomains)
	s, err := proc.Summarize(context.Background())
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}

	if s.TotalApplications != 3 {
		t.Errorf("total = %d, want 3", s.TotalApplications)
	}
	if s.StatusBreakdown[models.StatusApplied] != 2 || s.StatusBreakdown[models.StatusOffer] != 1 {
		t.Errorf("breakdown = %v", s.StatusBreakdown)
	}
	if len(s.Companies) != 2 || s.Companies[0] != "Acme" || s.Companies[1] != "Zeta" {
		t.Errorf("companies = %v, want sorted distinct [Acme Zeta]", s.Companies)
	}
}
