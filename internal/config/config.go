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

// Package config loads configuration from config.yaml, a .env file, and
// environment variables. The vocabulary and phrase lists are built once
// here and passed explicitly to the normalizer and the reconciliation
// engine; nothing reads them ambiently.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/hireline/jobtrack/internal/models"
)

// Config holds all configuration for the tracker.
type Config struct {
	// OpenAI
	OpenAIAPIKey  string
	OpenAIBaseURL string // empty = api.openai.com
	OpenAIModel   string

	// Google (Gmail + Sheets share one OAuth client)
	CredentialsFile string
	TokenFile       string
	SpreadsheetID   string
	Worksheet       string

	// Processing
	CheckInterval       time.Duration
	MaxEmailsPerCheck   int
	ConfidenceThreshold float64

	// Redis (poll checkpoint) and Postgres (run history); both optional.
	RedisURL    string
	DatabaseURL string

	// Health server
	Port int

	// Vocabularies and heuristics
	JobStatuses       []models.JobStatus
	JobKeywords       []string
	RecruitingDomains []string
	SocialDomains     []string
	OfferPhrases      []string
	InterviewPhrases  []string
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	OpenAI struct {
		APIKey  string `yaml:"api_key"`
		BaseURL string `yaml:"base_url"`
		Model   string `yaml:"model"`
	} `yaml:"openai"`
	Google struct {
		CredentialsFile string `yaml:"credentials_file"`
		TokenFile       string `yaml:"token_file"`
		SpreadsheetID   string `yaml:"spreadsheet_id"`
		Worksheet       string `yaml:"worksheet"`
	} `yaml:"google"`
	Redis struct {
		URL string `yaml:"url"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Keywords          []string `yaml:"job_keywords"`
	RecruitingDomains []string `yaml:"recruiting_domains"`
	SocialDomains     []string `yaml:"social_domains"`
}

// Built-in vocabulary defaults. YAML may override the keyword and domain
// lists; the status vocabulary and phrase lists are fixed.
var (
	defaultKeywords = []string{
		"application", "interview", "position", "role", "job", "career",
		"hiring", "recruitment", "recruiter", "hr", "human resources",
		"offer", "rejection", "declined", "accepted", "screening",
		"assessment", "technical", "coding challenge", "next steps",
	}

	defaultRecruitingDomains = []string{
		"greenhouse.io", "lever.co", "workday.com", "smartrecruiters.com",
		"bamboohr.com", "jobvite.com", "icims.com", "taleo.net",
	}

	defaultSocialDomains = []string{
		"linkedin.com", "linkedinmail.com", "bounce.linkedin.com",
		"facebookmail.com", "twitter.com", "meetup.com",
	}

	offerPhrases = []string{
		"we are pleased to offer", "congratulations", "offer of employment",
		"offer letter", "you have been offered", "official offer",
		"job offer", "we would like to offer you",
	}

	interviewPhrases = []string{
		"interview", "schedule", "availability", "time to chat",
		"invite you to interview",
	}
)

// Load reads configuration from .env, config.yaml (with env var expansion)
// and environment variables. A missing config file is not an error; the
// environment alone can configure everything.
func Load() (*Config, error) {
	// Best effort: a missing .env file is fine in production.
	_ = godotenv.Load()

	var raw rawConfig
	configPath := envOrDefault("CONFIG_PATH", "config.yaml")
	if data, err := os.ReadFile(configPath); err == nil {
		// Expand ${VAR} references in the YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config YAML %s: %w", configPath, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	cfg := &Config{
		OpenAIAPIKey:  firstNonEmpty(raw.OpenAI.APIKey, os.Getenv("OPENAI_API_KEY")),
		OpenAIBaseURL: firstNonEmpty(raw.OpenAI.BaseURL, os.Getenv("OPENAI_BASE_URL")),
		OpenAIModel:   firstNonEmpty(raw.OpenAI.Model, envOrDefault("OPENAI_MODEL", "gpt-4")),

		CredentialsFile: firstNonEmpty(raw.Google.CredentialsFile, envOrDefault("GOOGLE_CREDENTIALS_FILE", "credentials.json")),
		TokenFile:       firstNonEmpty(raw.Google.TokenFile, envOrDefault("GOOGLE_TOKEN_FILE", "token.json")),
		SpreadsheetID:   firstNonEmpty(raw.Google.SpreadsheetID, os.Getenv("GOOGLE_SPREADSHEET_ID")),
		Worksheet:       firstNonEmpty(os.Getenv("WORKSHEET_NAME"), raw.Google.Worksheet, "Job Applications"),

		CheckInterval:       checkInterval(),
		MaxEmailsPerCheck:   envOrDefaultInt("MAX_EMAILS_PER_CHECK", 50),
		ConfidenceThreshold: envOrDefaultFloat("JOB_CONFIDENCE_THRESHOLD", 0.6),

		RedisURL:    firstNonEmpty(raw.Redis.URL, os.Getenv("REDIS_URL")),
		DatabaseURL: firstNonEmpty(raw.Postgres.URL, os.Getenv("DATABASE_URL")),

		Port: envOrDefaultInt("PORT", 8080),

		JobStatuses:       models.JobStatuses,
		JobKeywords:       defaultList(raw.Keywords, defaultKeywords),
		RecruitingDomains: defaultList(raw.RecruitingDomains, defaultRecruitingDomains),
		SocialDomains:     defaultList(raw.SocialDomains, defaultSocialDomains),
		OfferPhrases:      offerPhrases,
		InterviewPhrases:  interviewPhrases,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	if c.OpenAIAPIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if c.SpreadsheetID == "" {
		missing = append(missing, "GOOGLE_SPREADSHEET_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// checkInterval prefers CHECK_INTERVAL_SECONDS when set, falling back to
// CHECK_INTERVAL_MINUTES (default 30).
func checkInterval() time.Duration {
	if secs := envOrDefaultInt("CHECK_INTERVAL_SECONDS", 0); secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return time.Duration(envOrDefaultInt("CHECK_INTERVAL_MINUTES", 30)) * time.Minute
}

func defaultList(values, fallback []string) []string {
	if len(values) > 0 {
		return values
	}
	return fallback
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
