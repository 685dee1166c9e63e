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

// Package gmail retrieves messages from the Gmail API and maps them into
// the tracker's message model. Results are sorted oldest-first so batch
// processing is chronological, which keeps per-application note ordering
// and merge sequencing deterministic.
package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"sort"
	"strings"
	"time"

	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/hireline/jobtrack/internal/models"
)

// Source fetches messages from a single Gmail account ("me").
type Source struct {
	svc *gmailv1.Service

	jobKeywords       []string
	recruitingDomains []string
	socialDomains     []string
}

// Filters configures the cheap keyword prefilter applied before the
// model is consulted.
type Filters struct {
	JobKeywords       []string
	RecruitingDomains []string
	SocialDomains     []string
}

// NewSource creates a Gmail source over an authenticated HTTP client.
func NewSource(ctx context.Context, httpClient *http.Client, filters Filters, opts ...option.ClientOption) (*Source, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	svc, err := gmailv1.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return &Source{
		svc:               svc,
		jobKeywords:       filters.JobKeywords,
		recruitingDomains: filters.RecruitingDomains,
		socialDomains:     filters.SocialDomains,
	}, nil
}

// FetchRecent returns messages received since the given time, oldest
// first, at most limit of them.
func (s *Source) FetchRecent(ctx context.Context, since time.Time, limit int) ([]models.EmailMessage, error) {
	query := fmt.Sprintf("after:%s", since.Format("2006/01/02"))
	return s.fetchByQuery(ctx, query, limit)
}

// FetchByKeywords returns messages matching any of the keywords since the
// given time, oldest first.
func (s *Source) FetchByKeywords(ctx context.Context, keywords []string, since time.Time, limit int) ([]models.EmailMessage, error) {
	quoted := make([]string, len(keywords))
	for i, kw := range keywords {
		quoted[i] = fmt.Sprintf("%q", kw)
	}
	query := fmt.Sprintf("(%s) after:%s", strings.Join(quoted, " OR "), since.Format("2006/01/02"))
	return s.fetchByQuery(ctx, query, limit)
}

func (s *Source) fetchByQuery(ctx context.Context, query string, limit int) ([]models.EmailMessage, error) {
	list, err := s.svc.Users.Messages.List("me").
		Q(query).
		MaxResults(int64(limit)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	msgs := make([]models.EmailMessage, 0, len(list.Messages))
	for _, stub := range list.Messages {
		full, err := s.svc.Users.Messages.Get("me", stub.Id).
			Format("full").
			Context(ctx).
			Do()
		if err != nil {
			// One unreadable message must not sink the batch.
			slog.Warn("fetch message failed", "message_id", stub.Id, "error", err)
			continue
		}
		msgs = append(msgs, parseMessage(full))
	}

	sortByDateAsc(msgs)

	slog.Debug("messages fetched", "query", query, "count", len(msgs))
	return msgs, nil
}

// IsJobRelated is the cheap prefilter run before the model call. Senders
// on known social/notification domains get conservative treatment: they
// count only on an explicit keyword or recruiting-platform hit.
func (s *Source) IsJobRelated(msg models.EmailMessage) bool {
	subject := strings.ToLower(msg.Subject)
	sender := strings.ToLower(msg.Sender)
	body := strings.ToLower(msg.Body)

	keywordHit := func() bool {
		for _, kw := range s.jobKeywords {
			if strings.Contains(subject, kw) || strings.Contains(body, kw) {
				return true
			}
		}
		return false
	}

	if s.isSocialSender(sender) {
		if keywordHit() {
			return true
		}
		for _, domain := range s.recruitingDomains {
			if strings.Contains(subject, domain) || strings.Contains(body, domain) {
				return true
			}
		}
		return false
	}

	if keywordHit() {
		return true
	}
	for _, domain := range s.recruitingDomains {
		if strings.Contains(sender, domain) {
			return true
		}
	}
	return false
}

func (s *Source) isSocialSender(sender string) bool {
	domain := senderDomain(sender)
	for _, social := range s.socialDomains {
		if domain == social {
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

// parseMessage maps a full-format Gmail message into the tracker model.
func parseMessage(m *gmailv1.Message) models.EmailMessage {
	var subject, sender, date string
	if m.Payload != nil {
		for _, h := range m.Payload.Headers {
			switch h.Name {
			case "Subject":
				subject = h.Value
			case "From":
				sender = h.Value
			case "Date":
				date = h.Value
			}
		}
	}

	return models.EmailMessage{
		ID:       m.Id,
		Subject:  subject,
		Sender:   sender,
		Body:     extractBody(m.Payload),
		Date:     parseDate(date),
		ThreadID: m.ThreadId,
		Labels:   m.LabelIds,
	}
}

// extractBody decodes the message body, preferring a text/plain part and
// falling back to text/html.
func extractBody(payload *gmailv1.MessagePart) string {
	if payload == nil {
		return ""
	}

	if len(payload.Parts) > 0 {
		var html string
		for _, part := range payload.Parts {
			switch part.MimeType {
			case "text/plain":
				if text := decodePart(part); text != "" {
					return text
				}
			case "text/html":
				if html == "" {
					html = decodePart(part)
				}
			}
		}
		return html
	}

	switch payload.MimeType {
	case "text/plain", "text/html":
		return decodePart(payload)
	}
	return ""
}

func decodePart(part *gmailv1.MessagePart) string {
	if part.Body == nil || part.Body.Data == "" {
		return ""
	}
	data, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(part.Body.Data, "="))
	if err != nil {
		slog.Debug("decode message part failed", "error", err)
		return ""
	}
	return string(data)
}

// parseDate parses an RFC 2822 Date header, falling back to ISO 8601 and
// finally the epoch so undated messages sort first rather than breaking
// the batch order.
func parseDate(raw string) time.Time {
	if raw == "" {
		return time.Unix(0, 0).UTC()
	}
	if t, err := mail.ParseDate(raw); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}
	return time.Unix(0, 0).UTC()
}

func sortByDateAsc(msgs []models.EmailMessage) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Date.Before(msgs[j].Date)
	})
}
