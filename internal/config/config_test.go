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

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// withEnv sets the minimum required environment for Load and points
// CONFIG_PATH at a throwaway location so the developer's own config.yaml
// never leaks into a test.
func withEnv(t *testing.T, extra map[string]string) {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("GOOGLE_SPREADSHEET_ID", "sheet-123")
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yaml"))
	for k, v := range extra {
		t.Setenv(k, v)
	}
}

// TestLoad_EnvOnly verifies the environment alone configures everything,
// with defaults filled in.
func TestLoad_EnvOnly(t *testing.T) {
	withEnv(t, nil)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.OpenAIAPIKey != "test-key" {
		t.Errorf("api key = %q", cfg.OpenAIAPIKey)
	}
	if cfg.OpenAIModel != "gpt-4" {
		t.Errorf("model = %q, want gpt-4 default", cfg.OpenAIModel)
	}
	if cfg.Worksheet != "Job Applications" {
		t.Errorf("worksheet = %q, want default", cfg.Worksheet)
	}
	if cfg.CheckInterval != 30*time.Minute {
		t.Errorf("check interval = %v, want 30m default", cfg.CheckInterval)
	}
	if cfg.MaxEmailsPerCheck != 50 {
		t.Errorf("max emails = %d, want 50 default", cfg.MaxEmailsPerCheck)
	}
	if cfg.ConfidenceThreshold != 0.6 {
		t.Errorf("threshold = %v, want 0.6 default", cfg.ConfidenceThreshold)
	}
	if len(cfg.JobKeywords) == 0 || len(cfg.RecruitingDomains) == 0 {
		t.Error("vocabulary defaults missing")
	}
	if len(cfg.OfferPhrases) == 0 || len(cfg.InterviewPhrases) == 0 {
		t.Error("phrase defaults missing")
	}
}

// TestLoad_YAMLWithExpansion verifies YAML values, ${VAR} expansion, and
// YAML-over-env precedence.
func TestLoad_YAMLWithExpansion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
openai:
  api_key: ${TEST_OPENAI_KEY}
  model: gpt-4o-mini
google:
  spreadsheet_id: yaml-sheet
  worksheet: Tracker
job_keywords:
  - internship
recruiting_domains:
  - ashbyhq.com
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("CONFIG_PATH", path)
	t.Setenv("TEST_OPENAI_KEY", "expanded-key")
	t.Setenv("OPENAI_API_KEY", "env-key")
	t.Setenv("GOOGLE_SPREADSHEET_ID", "env-sheet")
	t.Setenv("WORKSHEET_NAME", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.OpenAIAPIKey != "expanded-key" {
		t.Errorf("api key = %q, want expanded YAML value", cfg.OpenAIAPIKey)
	}
	if cfg.OpenAIModel != "gpt-4o-mini" {
		t.Errorf("model = %q", cfg.OpenAIModel)
	}
	if cfg.SpreadsheetID != "yaml-sheet" {
		t.Errorf("spreadsheet = %q, want YAML over env", cfg.SpreadsheetID)
	}
	if cfg.Worksheet != "Tracker" {
		t.Errorf("worksheet = %q", cfg.Worksheet)
	}
	if len(cfg.JobKeywords) != 1 || cfg.JobKeywords[0] != "internship" {
		t.Errorf("keywords = %v, want YAML override", cfg.JobKeywords)
	}
	if len(cfg.RecruitingDomains) != 1 || cfg.RecruitingDomains[0] != "ashbyhq.com" {
		t.Errorf("recruiting domains = %v, want YAML override", cfg.RecruitingDomains)
	}
}

// TestLoad_MissingRequired verifies validation names every missing key.
func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GOOGLE_SPREADSHEET_ID", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "OPENAI_API_KEY") || !strings.Contains(err.Error(), "GOOGLE_SPREADSHEET_ID") {
		t.Errorf("error should name both missing keys: %v", err)
	}
}

// TestLoad_BadYAML verifies a malformed config file is an error rather
// than silently ignored.
func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(":\n\t- nope"), 0o600); err != nil {
		t.Fatal(err)
	}
	withEnv(t, map[string]string{"CONFIG_PATH": path})

	if _, err := Load(); err == nil {
		t.Fatal("expected YAML parse error")
	}
}

// TestCheckInterval verifies the seconds override beats the minutes
// setting.
func TestCheckInterval(t *testing.T) {
	withEnv(t, map[string]string{
		"CHECK_INTERVAL_SECONDS": "90",
		"CHECK_INTERVAL_MINUTES": "5",
	})
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.CheckInterval != 90*time.Second {
		t.Errorf("interval = %v, want 90s", cfg.CheckInterval)
	}

	t.Setenv("CHECK_INTERVAL_SECONDS", "")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.CheckInterval != 5*time.Minute {
		t.Errorf("interval = %v, want 5m", cfg.CheckInterval)
	}
}
