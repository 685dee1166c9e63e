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

// Package classify wraps the external language model behind a thin
// boundary: one message in, one semi-structured candidate analysis out.
// It performs no domain validation; the normalizer owns that. Every
// failure mode — transport, timeout, open breaker, unparseable response —
// surfaces as ErrClassifier so the caller can route to the fallback path.
package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"

	"github.com/hireline/jobtrack/internal/models"
	"github.com/hireline/jobtrack/internal/normalize"
)

// ErrClassifier signals that no usable candidate could be produced. The
// normalizer synthesizes a degraded analysis in that case.
var ErrClassifier = errors.New("classifier failure")

const (
	// DefaultModel is used when config names none.
	DefaultModel = "gpt-4"

	// bodyExcerptLimit bounds the body excerpt sent to the model, keeping
	// token cost and latency predictable.
	bodyExcerptLimit = 2000

	// defaultTimeout bounds a single model call.
	defaultTimeout = 60 * time.Second
)

// Config holds classifier settings.
type Config struct {
	APIKey  string
	BaseURL string // empty = api.openai.com; tests point this at a fake
	Model   string
	Timeout time.Duration
}

// Classifier sends message excerpts to the model and parses the strict
// JSON response into a candidate analysis.
type Classifier struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker
}

// New creates a classifier. The circuit breaker trips after a run of
// consecutive transport failures so a model outage degrades the whole
// batch to the keyword fallback instead of stalling on every message.
func New(cfg Config) *Classifier {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "classifier",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Classifier{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   model,
		timeout: timeout,
		breaker: breaker,
	}
}

const systemPrompt = `You are an AI assistant specialized in analyzing job-related emails.
Your task is to extract structured information from emails about job applications,
interviews, rejections, offers, and other job-related communications.

Always respond with valid JSON format. Be precise and extract only information
that is clearly stated in the email.`

const promptTemplate = `Analyze the following job-related email and extract structured information:

EMAIL DETAILS:
Subject: %s
From: %s
Date: %s

EMAIL BODY:
%s

Please extract the following information and return it as a JSON object:

{
    "is_job_related": boolean,
    "email_type": "application_confirmation|interview_invitation|interview_reminder|status_update|rejection|offer|assessment|other",
    "company_name": "string or null",
    "position_title": "string or null",
    "job_status": "Applied|Under Review|Phone Screen|Technical Interview|Final Interview|Offer|Rejected|Withdrawn|null",
    "contact_person": "string or null",
    "contact_email": "string or null",
    "interview_date": "YYYY-MM-DD HH:MM or null",
    "interview_type": "phone|video|in_person|technical|behavioral|null",
    "salary_range": "string or null",
    "location": "string or null",
    "job_url": "string or null",
    "next_steps": "string or null",
    "job_id": "string or null",
    "key_information": "string summary of important details",
    "confidence_score": float between 0 and 1
}

Guidelines:
- Set is_job_related to true only if this is clearly about a job application or career opportunity
- Extract company name from sender domain or email content
- Identify position title from subject line or email body
- Determine current status based on email content
- Extract any mentioned dates, deadlines, or next steps
- Provide a confidence score based on how certain you are about the extracted information
- If information is not clearly stated, use null`

// Classify sends a bounded excerpt of the message to the model and parses
// the response. On any failure it returns a nil candidate wrapped in
// ErrClassifier; it never panics or propagates transport errors as-is.
func (c *Classifier) Classify(ctx context.Context, msg models.EmailMessage) (normalize.Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt := fmt.Sprintf(promptTemplate,
		msg.Subject,
		msg.Sender,
		msg.Date.Format("2006-01-02"),
		excerpt(msg.Body, bodyExcerptLimit),
	)

	result, err := c.breaker.Execute(func() (any, error) {
		return c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       c.model,
			Temperature: 0.1,
			MaxTokens:   1000,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
		})
	})
	if err != nil {
		slog.Warn("model call failed", "message_id", msg.ID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrClassifier, err)
	}

	resp := result.(openai.ChatCompletionResponse)
	if len(resp.Choices) == 0 {
		slog.Warn("model returned no choices", "message_id", msg.ID)
		return nil, fmt.Errorf("%w: empty response", ErrClassifier)
	}

	cand, err := parseCandidate(resp.Choices[0].Message.Content)
	if err != nil {
		slog.Warn("model response was not valid JSON", "message_id", msg.ID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrClassifier, err)
	}

	return cand, nil
}

// parseCandidate extracts the JSON object from the model output. Models
// occasionally wrap the object in prose or code fences, so everything
// outside the outermost braces is discarded.
func parseCandidate(raw string) (normalize.Candidate, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end <= start {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var cand normalize.Candidate
	if err := json.Unmarshal([]byte(raw[start:end+1]), &cand); err != nil {
		return nil, fmt.Errorf("decode candidate: %w", err)
	}
	return cand, nil
}

// excerpt truncates text to at most limit bytes.
func excerpt(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	return text[:limit]
}
