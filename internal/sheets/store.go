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

// Package sheets implements the application record store over a Google
// Sheets worksheet. One application per row, columns A through M. The
// positional row number is the update key; it never leaves this package
// except wrapped in an opaque reconcile.RecordRef. Lookups re-read the
// full table on every call so they always reflect the latest committed
// state; the engine does all filtering client-side.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	sheetsv4 "google.golang.org/api/sheets/v4"

	"github.com/hireline/jobtrack/internal/models"
	"github.com/hireline/jobtrack/internal/reconcile"
)

// headers is the fixed column layout, A through M.
var headers = []string{
	"Company",
	"Position",
	"Job ID",
	"Status",
	"Date Applied",
	"Last Updated",
	"Contact Person",
	"Contact Email",
	"Job URL",
	"Salary Range",
	"Location",
	"Notes",
	"Email Thread ID",
}

// columnIndex maps update fields to their column position.
var columnIndex = map[models.Field]int{
	models.FieldCompany:       0,
	models.FieldPosition:      1,
	models.FieldJobID:         2,
	models.FieldStatus:        3,
	models.FieldDateApplied:   4,
	models.FieldContactPerson: 6,
	models.FieldContactEmail:  7,
	models.FieldJobURL:        8,
	models.FieldSalaryRange:   9,
	models.FieldLocation:      10,
	models.FieldNotes:         11,
	models.FieldThreadID:      12,
}

const lastUpdatedColumn = 5

// Store is a Google-Sheets-backed application record store.
type Store struct {
	svc           *sheetsv4.Service
	spreadsheetID string
	worksheet     string
	now           func() time.Time
}

// NewStore creates the store and ensures the worksheet tab and header row
// exist, the way the rest of the system ensures its schemas on startup.
func NewStore(ctx context.Context, httpClient *http.Client, spreadsheetID, worksheet string, opts ...option.ClientOption) (*Store, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	svc, err := sheetsv4.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	s := &Store{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		worksheet:     worksheet,
		now:           time.Now,
	}

	if err := s.ensureHeaders(ctx); err != nil {
		return nil, fmt.Errorf("ensure sheet headers: %w", err)
	}

	slog.Info("application store initialised", "worksheet", worksheet)
	return s, nil
}

// ensureHeaders writes the header row when the sheet is empty, creating
// the worksheet tab first if it is missing.
func (s *Store) ensureHeaders(ctx context.Context) error {
	rng := s.rangeFor("A1:M1")

	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		if !isMissingSheet(err) {
			return fmt.Errorf("read header row: %w", err)
		}
		if err := s.createWorksheet(ctx); err != nil {
			return err
		}
		return s.writeHeaders(ctx)
	}

	if len(resp.Values) == 0 {
		return s.writeHeaders(ctx)
	}
	return nil
}

func (s *Store) writeHeaders(ctx context.Context) error {
	row := make([]interface{}, len(headers))
	for i, h := range headers {
		row[i] = h
	}
	_, err := s.svc.Spreadsheets.Values.
		Update(s.spreadsheetID, s.rangeFor("A1:M1"), &sheetsv4.ValueRange{Values: [][]interface{}{row}}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("write header row: %w", err)
	}
	slog.Info("header row created", "worksheet", s.worksheet)
	return nil
}

func (s *Store) createWorksheet(ctx context.Context) error {
	_, err := s.svc.Spreadsheets.BatchUpdate(s.spreadsheetID, &sheetsv4.BatchUpdateSpreadsheetRequest{
		Requests: []*sheetsv4.Request{{
			AddSheet: &sheetsv4.AddSheetRequest{
				Properties: &sheetsv4.SheetProperties{Title: s.worksheet},
			},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("create worksheet %q: %w", s.worksheet, err)
	}
	slog.Info("worksheet created", "worksheet", s.worksheet)
	return nil
}

// ListAll returns every application row. Short rows are padded so every
// record has all thirteen columns.
func (s *Store) ListAll(ctx context.Context) ([]reconcile.StoredApplication, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, s.rangeFor("A:M")).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}

	if len(resp.Values) <= 1 {
		return nil, nil
	}

	apps := make([]reconcile.StoredApplication, 0, len(resp.Values)-1)
	for i, row := range resp.Values[1:] {
		apps = append(apps, reconcile.StoredApplication{
			Application: rowToApplication(row),
			// Row 1 is the header; data starts at row 2.
			Ref: rowRef(i + 2),
		})
	}
	return apps, nil
}

// FindByJobID returns the first application whose Job ID matches, using
// trimmed string equality.
func (s *Store) FindByJobID(ctx context.Context, jobID string) (*reconcile.StoredApplication, error) {
	want := strings.TrimSpace(jobID)
	if want == "" {
		return nil, nil
	}
	return s.findFirst(ctx, func(app reconcile.StoredApplication) bool {
		return strings.TrimSpace(app.JobID) == want
	})
}

// FindByThreadID returns the first application with the given
// conversation thread ID.
func (s *Store) FindByThreadID(ctx context.Context, threadID string) (*reconcile.StoredApplication, error) {
	return s.findFirst(ctx, func(app reconcile.StoredApplication) bool {
		return app.ThreadID == threadID
	})
}

// FindByCompanyPosition returns the first application matching both
// fields case-insensitively. Duplicate rows are possible since the sheet
// enforces no uniqueness; the first row wins and the rest are logged.
func (s *Store) FindByCompanyPosition(ctx context.Context, company, position string) (*reconcile.StoredApplication, error) {
	apps, err := s.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	var match *reconcile.StoredApplication
	extra := 0
	for i := range apps {
		if strings.EqualFold(apps[i].Company, company) && strings.EqualFold(apps[i].Position, position) {
			if match == nil {
				match = &apps[i]
			} else {
				extra++
			}
		}
	}
	if extra > 0 {
		slog.Warn("duplicate rows for company+position, using first",
			"company", company,
			"position", position,
			"duplicates", extra,
		)
	}
	return match, nil
}

func (s *Store) findFirst(ctx context.Context, pred func(reconcile.StoredApplication) bool) (*reconcile.StoredApplication, error) {
	apps, err := s.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	for i := range apps {
		if pred(apps[i]) {
			return &apps[i], nil
		}
	}
	return nil, nil
}

// Append writes a new application into the next free row.
func (s *Store) Append(ctx context.Context, app models.Application) error {
	existing, err := s.ListAll(ctx)
	if err != nil {
		return err
	}
	rowNum := len(existing) + 2 // header row + 1-based indexing

	app.LastUpdated = s.now().Format("2006-01-02 15:04")
	rng := s.rangeFor(fmt.Sprintf("A%d:M%d", rowNum, rowNum))
	_, err = s.svc.Spreadsheets.Values.
		Update(s.spreadsheetID, rng, &sheetsv4.ValueRange{Values: [][]interface{}{applicationToRow(app)}}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append application: %w", err)
	}

	slog.Info("application created", "company", app.Company, "position", app.Position, "row", rowNum)
	return nil
}

// Update applies a field delta to the referenced row. The current row is
// re-read, the delta applied, Last Updated stamped, and the whole row
// written back in one call — a reader never observes a partially-updated
// row.
func (s *Store) Update(ctx context.Context, ref reconcile.RecordRef, updates models.Updates) error {
	rowNum, err := parseRef(ref)
	if err != nil {
		return err
	}

	rng := s.rangeFor(fmt.Sprintf("A%d:M%d", rowNum, rowNum))
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read row %d: %w", rowNum, err)
	}

	var current []interface{}
	if len(resp.Values) > 0 {
		current = resp.Values[0]
	}
	row := padRow(current)

	for field, value := range updates {
		if idx, ok := columnIndex[field]; ok {
			row[idx] = value
		}
	}
	row[lastUpdatedColumn] = s.now().Format("2006-01-02 15:04")

	_, err = s.svc.Spreadsheets.Values.
		Update(s.spreadsheetID, rng, &sheetsv4.ValueRange{Values: [][]interface{}{row}}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("update row %d: %w", rowNum, err)
	}

	slog.Info("application updated", "row", rowNum, "fields", len(updates))
	return nil
}

// rangeFor builds an A1 range with the worksheet name safely quoted.
func (s *Store) rangeFor(cells string) string {
	return quoteSheetName(s.worksheet) + "!" + cells
}

// quoteSheetName quotes a worksheet name for use in A1 ranges. Sheet
// names containing spaces or quotes must be single-quoted, with embedded
// quotes doubled (O'Neil -> 'O''Neil').
func quoteSheetName(name string) string {
	if name == "" {
		return "'Sheet1'"
	}
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// rowToApplication converts a sheet row into an application, tolerating
// rows shorter than the header.
func rowToApplication(row []interface{}) models.Application {
	return models.Application{
		Company:       cell(row, 0),
		Position:      cell(row, 1),
		JobID:         cell(row, 2),
		Status:        models.JobStatus(cell(row, 3)),
		DateApplied:   cell(row, 4),
		LastUpdated:   cell(row, lastUpdatedColumn),
		ContactPerson: cell(row, 6),
		ContactEmail:  cell(row, 7),
		JobURL:        cell(row, 8),
		SalaryRange:   cell(row, 9),
		Location:      cell(row, 10),
		Notes:         cell(row, 11),
		ThreadID:      cell(row, 12),
	}
}

// applicationToRow converts an application into a full A:M row.
func applicationToRow(app models.Application) []interface{} {
	return []interface{}{
		app.Company,
		app.Position,
		app.JobID,
		string(app.Status),
		app.DateApplied,
		app.LastUpdated,
		app.ContactPerson,
		app.ContactEmail,
		app.JobURL,
		app.SalaryRange,
		app.Location,
		app.Notes,
		app.ThreadID,
	}
}

func padRow(row []interface{}) []interface{} {
	padded := make([]interface{}, len(headers))
	for i := range padded {
		padded[i] = ""
	}
	for i, v := range row {
		if i < len(padded) {
			padded[i] = v
		}
	}
	return padded
}

func cell(row []interface{}, i int) string {
	if i >= len(row) {
		return ""
	}
	s, _ := row[i].(string)
	return s
}

func rowRef(rowNum int) reconcile.RecordRef {
	return reconcile.RecordRef(strconv.Itoa(rowNum))
}

func parseRef(ref reconcile.RecordRef) (int, error) {
	rowNum, err := strconv.Atoi(string(ref))
	if err != nil || rowNum < 2 {
		return 0, fmt.Errorf("invalid record ref %q", ref)
	}
	return rowNum, nil
}

// isMissingSheet reports whether the API rejected a range because the
// worksheet tab does not exist.
func isMissingSheet(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Code == http.StatusNotFound {
		return true
	}
	return apiErr.Code == http.StatusBadRequest && strings.Contains(apiErr.Message, "Unable to parse range")
}
