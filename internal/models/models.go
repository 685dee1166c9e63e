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

// Package models defines the data structures shared across the tracker.
package models

import "time"

// EmailMessage represents one retrieved email, immutable once fetched.
type EmailMessage struct {
	ID       string
	Subject  string
	Sender   string
	Body     string
	Date     time.Time
	ThreadID string
	Labels   []string
}

// EmailType classifies what kind of job-related email a message is.
// The empty string is never a valid value after normalization; unknown
// input maps to EmailTypeOther.
type EmailType string

const (
	EmailTypeApplicationConfirmation EmailType = "application_confirmation"
	EmailTypeInterviewInvitation     EmailType = "interview_invitation"
	EmailTypeInterviewReminder       EmailType = "interview_reminder"
	EmailTypeStatusUpdate            EmailType = "status_update"
	EmailTypeRejection               EmailType = "rejection"
	EmailTypeOffer                   EmailType = "offer"
	EmailTypeAssessment              EmailType = "assessment"
	EmailTypeOther                   EmailType = "other"
)

// EmailTypes is the closed vocabulary of email types.
var EmailTypes = []EmailType{
	EmailTypeApplicationConfirmation,
	EmailTypeInterviewInvitation,
	EmailTypeInterviewReminder,
	EmailTypeStatusUpdate,
	EmailTypeRejection,
	EmailTypeOffer,
	EmailTypeAssessment,
	EmailTypeOther,
}

// JobStatus is an application lifecycle status drawn from the canonical
// vocabulary. The empty string means "unknown / not stated".
type JobStatus string

const (
	StatusApplied            JobStatus = "Applied"
	StatusUnderReview        JobStatus = "Under Review"
	StatusPhoneScreen        JobStatus = "Phone Screen"
	StatusTechnicalInterview JobStatus = "Technical Interview"
	StatusFinalInterview     JobStatus = "Final Interview"
	StatusOffer              JobStatus = "Offer"
	StatusRejected           JobStatus = "Rejected"
	StatusWithdrawn          JobStatus = "Withdrawn"
)

// JobStatuses is the canonical status vocabulary in iteration order.
// Substring canonicalization depends on this order.
var JobStatuses = []JobStatus{
	StatusApplied,
	StatusUnderReview,
	StatusPhoneScreen,
	StatusTechnicalInterview,
	StatusFinalInterview,
	StatusOffer,
	StatusRejected,
	StatusWithdrawn,
}

// InterviewType describes the format of a scheduled interview.
// Empty string means "not stated".
type InterviewType string

const (
	InterviewPhone      InterviewType = "phone"
	InterviewVideo      InterviewType = "video"
	InterviewInPerson   InterviewType = "in_person"
	InterviewTechnical  InterviewType = "technical"
	InterviewBehavioral InterviewType = "behavioral"
)

// InterviewTypes is the closed vocabulary of interview formats.
var InterviewTypes = []InterviewType{
	InterviewPhone,
	InterviewVideo,
	InterviewInPerson,
	InterviewTechnical,
	InterviewBehavioral,
}

// Analysis is the validated, canonical result of analyzing one email.
// Every field is always present: string fields hold "" for "not stated",
// enum fields hold only canonical values or their empty zero value, and
// ConfidenceScore is always within [0, 1].
type Analysis struct {
	IsJobRelated    bool
	EmailType       EmailType
	CompanyName     string
	PositionTitle   string
	JobStatus       JobStatus
	ContactPerson   string
	ContactEmail    string
	InterviewDate   string
	InterviewType   InterviewType
	SalaryRange     string
	Location        string
	JobURL          string
	NextSteps       string
	JobID           string
	KeyInformation  string
	ConfidenceScore float64
}

// Application is one row in the record store, representing a single job
// application's lifecycle. Rows are created and merged by the
// reconciliation engine, never deleted. The store does not enforce
// uniqueness; the engine is the only guard against duplicates.
type Application struct {
	Company       string
	Position      string
	JobID         string
	Status        JobStatus
	DateApplied   string
	LastUpdated   string
	ContactPerson string
	ContactEmail  string
	JobURL        string
	SalaryRange   string
	Location      string
	Notes         string
	ThreadID      string
}

// Field names an Application attribute in an update delta.
type Field string

const (
	FieldCompany       Field = "company"
	FieldPosition      Field = "position"
	FieldJobID         Field = "job_id"
	FieldStatus        Field = "status"
	FieldDateApplied   Field = "date_applied"
	FieldContactPerson Field = "contact_person"
	FieldContactEmail  Field = "contact_email"
	FieldJobURL        Field = "job_url"
	FieldSalaryRange   Field = "salary_range"
	FieldLocation      Field = "location"
	FieldNotes         Field = "notes"
	FieldThreadID      Field = "thread_id"
)

// Updates is the minimal non-destructive delta a merge applies to a
// matched application.
type Updates map[Field]string
