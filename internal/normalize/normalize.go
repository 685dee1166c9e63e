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

// Package normalize turns a loosely-structured classifier response into a
// validated, canonical analysis. Every step is a pure function that
// degrades to a safe default instead of failing; Normalize never returns
// an error and its result always satisfies the Analysis invariants (all
// fields present, enums canonical, confidence within [0, 1]).
package normalize

import (
	"strconv"
	"strings"

	"github.com/hireline/jobtrack/internal/models"
)

// Candidate is the semi-structured output of the classifier: field names
// mapped to possibly-missing, possibly-mistyped values. A nil Candidate
// signals classifier failure and routes through the fallback path.
type Candidate map[string]any

// Rules carries the immutable vocabulary and heuristic configuration the
// normalizer needs. Built once at startup from config.
type Rules struct {
	Statuses            []models.JobStatus
	JobKeywords         []string
	ConfidenceThreshold float64
	OfferPhrases        []string
	InterviewPhrases    []string
}

// fallbackConfidence marks an analysis synthesized without the model.
const fallbackConfidence = 0.3

// Normalize validates, repairs, and canonicalizes a candidate analysis.
// The steps run in a fixed order: field extraction with defaulting,
// confidence clamping, status and email-type canonicalization, string
// trimming, the confidence gate, and finally the content overrides (which
// may re-enable is_job_related after the gate downgraded it).
func Normalize(cand Candidate, msg models.EmailMessage, rules Rules) models.Analysis {
	if cand == nil {
		return Fallback(msg, rules)
	}

	a := models.Analysis{
		IsJobRelated:    boolValue(cand["is_job_related"]),
		EmailType:       CanonicalEmailType(stringValue(cand["email_type"])),
		CompanyName:     stringValue(cand["company_name"]),
		PositionTitle:   stringValue(cand["position_title"]),
		JobStatus:       CanonicalStatus(stringValue(cand["job_status"]), rules.Statuses),
		ContactPerson:   stringValue(cand["contact_person"]),
		ContactEmail:    stringValue(cand["contact_email"]),
		InterviewDate:   stringValue(cand["interview_date"]),
		InterviewType:   CanonicalInterviewType(stringValue(cand["interview_type"])),
		SalaryRange:     stringValue(cand["salary_range"]),
		Location:        stringValue(cand["location"]),
		JobURL:          stringValue(cand["job_url"]),
		NextSteps:       stringValue(cand["next_steps"]),
		JobID:           stringValue(cand["job_id"]),
		KeyInformation:  stringValue(cand["key_information"]),
		ConfidenceScore: ClampConfidence(cand["confidence_score"]),
	}

	a = ApplyConfidenceGate(a, rules.ConfidenceThreshold)
	a = ApplyContentOverrides(a, msg, rules)

	return a
}

// Fallback synthesizes a degraded-but-valid analysis from keyword
// matching when the classifier failed or returned unusable output.
func Fallback(msg models.EmailMessage, rules Rules) models.Analysis {
	subject := strings.ToLower(msg.Subject)
	body := strings.ToLower(msg.Body)

	jobRelated := false
	for _, kw := range rules.JobKeywords {
		if strings.Contains(subject, kw) || strings.Contains(body, kw) {
			jobRelated = true
			break
		}
	}

	var company, contactEmail string
	if strings.Contains(msg.Sender, "@") {
		company = CompanyFromDomain(senderDomain(msg.Sender))
		contactEmail = msg.Sender
	}

	return models.Analysis{
		IsJobRelated:    jobRelated,
		EmailType:       models.EmailTypeOther,
		CompanyName:     company,
		ContactEmail:    contactEmail,
		KeyInformation:  "Email from " + msg.Sender + " with subject: " + msg.Subject,
		ConfidenceScore: fallbackConfidence,
	}
}

// ClampConfidence coerces a raw confidence value into [0, 1]. Non-numeric
// input defaults to 0.5.
func ClampConfidence(v any) float64 {
	f, ok := floatValue(v)
	if !ok {
		return 0.5
	}
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// CanonicalStatus maps raw model text onto the canonical status
// vocabulary. An exact case-insensitive match wins; otherwise the first
// canonical name contained in the raw value (vocabulary order) wins.
// Anything else maps to the empty status. Canonical input is a fixed
// point: CanonicalStatus(CanonicalStatus(x)) == CanonicalStatus(x).
func CanonicalStatus(raw string, vocab []models.JobStatus) models.JobStatus {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	if lowered == "" {
		return ""
	}

	for _, s := range vocab {
		if lowered == strings.ToLower(string(s)) {
			return s
		}
	}

	// Verbose output like "Offer Received" still names a canonical status.
	for _, s := range vocab {
		if strings.Contains(lowered, strings.ToLower(string(s))) {
			return s
		}
	}

	return ""
}

// CanonicalEmailType maps raw model text onto the closed email-type
// vocabulary, falling back to substring heuristics for common variants
// ("Offer Letter", "Interview Reminder - tomorrow", ...).
func CanonicalEmailType(raw string) models.EmailType {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	if lowered == "" {
		return models.EmailTypeOther
	}

	for _, t := range models.EmailTypes {
		if lowered == string(t) {
			return t
		}
	}

	switch {
	case strings.Contains(lowered, "offer"):
		return models.EmailTypeOffer
	case strings.Contains(lowered, "interview") && strings.Contains(lowered, "reminder"):
		return models.EmailTypeInterviewReminder
	case strings.Contains(lowered, "interview"):
		return models.EmailTypeInterviewInvitation
	case strings.Contains(lowered, "reject"):
		return models.EmailTypeRejection
	default:
		return models.EmailTypeOther
	}
}

// CanonicalInterviewType maps raw model text onto the closed interview
// format vocabulary, tolerating spaces and hyphens ("in person",
// "In-Person"). Unknown input maps to the empty value.
func CanonicalInterviewType(raw string) models.InterviewType {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	lowered = strings.NewReplacer(" ", "_", "-", "_").Replace(lowered)
	for _, t := range models.InterviewTypes {
		if lowered == string(t) {
			return t
		}
	}
	return ""
}

// ApplyConfidenceGate downgrades a job-related verdict whose confidence
// is below the threshold. The classifier is prone to false positives on
// social and notification email; precision wins over recall here.
func ApplyConfidenceGate(a models.Analysis, threshold float64) models.Analysis {
	if a.IsJobRelated && a.ConfidenceScore < threshold {
		a.IsJobRelated = false
	}
	return a
}

// ApplyContentOverrides scans subject and body for unambiguous textual
// evidence the model may have missed. Offer phrases force the offer
// state and short-circuit; otherwise interview phrases nudge an "other"
// or interview-typed analysis to an invitation. Both may re-enable
// is_job_related after the gate.
func ApplyContentOverrides(a models.Analysis, msg models.EmailMessage, rules Rules) models.Analysis {
	subject := strings.ToLower(msg.Subject)
	body := strings.ToLower(msg.Body)

	containsAny := func(phrases []string) bool {
		for _, p := range phrases {
			if strings.Contains(subject, p) || strings.Contains(body, p) {
				return true
			}
		}
		return false
	}

	if containsAny(rules.OfferPhrases) {
		a.JobStatus = models.StatusOffer
		a.EmailType = models.EmailTypeOffer
		if a.ConfidenceScore < 0.9 {
			a.ConfidenceScore = 0.9
		}
		a.IsJobRelated = true
		return a
	}

	if containsAny(rules.InterviewPhrases) && isOverridableType(a.EmailType) {
		a.EmailType = models.EmailTypeInterviewInvitation
		if a.ConfidenceScore < 0.7 {
			a.ConfidenceScore = 0.7
		}
		a.IsJobRelated = true
	}

	return a
}

// isOverridableType reports whether the interview override may retag the
// analysis. Offers, rejections, and other specific types are left alone:
// interview keywords like "schedule" are too weak to overturn them.
func isOverridableType(t models.EmailType) bool {
	switch t {
	case models.EmailTypeOther, models.EmailTypeInterviewInvitation, models.EmailTypeInterviewReminder:
		return true
	default:
		return false
	}
}

// CompanyFromDomain derives a company name from an email domain by
// title-casing the label before the first dot ("acme.com" -> "Acme").
func CompanyFromDomain(domain string) string {
	label, _, _ := strings.Cut(domain, ".")
	return TitleCase(label)
}

// TitleCase upper-cases the first letter of each space-separated word.
func TitleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// senderDomain extracts the domain from a From header value like
// "Name <user@domain.com>".
func senderDomain(sender string) string {
	_, after, ok := strings.Cut(sender, "@")
	if !ok {
		return ""
	}
	domain, _, _ := strings.Cut(after, ">")
	domain, _, _ = strings.Cut(domain, "/")
	return strings.ToLower(strings.TrimSpace(domain))
}

// stringValue coerces a candidate field into a trimmed string. Missing
// values and empty-after-trim become "". Mistyped scalars are rendered
// the way the model meant them (numbers as digits, not Go syntax).
func stringValue(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strings.TrimSpace(strconv.FormatFloat(s, 'f', -1, 64))
	case bool:
		return strconv.FormatBool(s)
	default:
		return ""
	}
}

// boolValue coerces a candidate field into a bool, accepting the string
// forms some models emit. Anything unrecognized is false.
func boolValue(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		return err == nil && parsed
	default:
		return false
	}
}

// floatValue reports a candidate field as a float64 when it is numeric
// or a numeric string.
func floatValue(v any) (float64, bool) {
	switch f := v.(type) {
	case float64:
		return f, true
	case int:
		return float64(f), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}
