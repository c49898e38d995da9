package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"feeledger/internal/core"
	ports "feeledger/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Sheet names used by the school spreadsheet.
const (
	DefaultStudentsSheet   = "Students"
	DefaultStructureSheet  = "Fee_Structure"
	DefaultRecordsSheet    = "Fee_Record"
	DefaultCategoriesSheet = "Fee_Categories"
)

type Client struct {
	svc             *gsheet.Service
	spreadsheetID   string
	studentsSheet   string
	structureSheet  string
	recordsSheet    string
	categoriesSheet string
}

// Ensure interface conformance
var (
	_ ports.StudentReader   = (*Client)(nil)
	_ ports.StructureReader = (*Client)(nil)
	_ ports.PaymentLister   = (*Client)(nil)
	_ ports.PaymentWriter   = (*Client)(nil)
	_ ports.CategoryReader  = (*Client)(nil)
	_ ports.ReferenceWriter = (*Client)(nil)
)

// NewFromEnv creates a Sheets client using environment variables.
// Required: GOOGLE_SPREADSHEET_ID and service account credentials.
// Optional sheet names: GOOGLE_STUDENTS_SHEET_NAME, GOOGLE_STRUCTURE_SHEET_NAME,
// GOOGLE_RECORDS_SHEET_NAME, GOOGLE_CATEGORIES_SHEET_NAME.
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	c := NewWithService(svc, spreadsheetID)
	c.studentsSheet = envOr("GOOGLE_STUDENTS_SHEET_NAME", DefaultStudentsSheet)
	c.structureSheet = envOr("GOOGLE_STRUCTURE_SHEET_NAME", DefaultStructureSheet)
	c.recordsSheet = envOr("GOOGLE_RECORDS_SHEET_NAME", DefaultRecordsSheet)
	c.categoriesSheet = envOr("GOOGLE_CATEGORIES_SHEET_NAME", DefaultCategoriesSheet)
	return c, nil
}

// NewWithService wraps an existing Sheets service using the default sheet names.
func NewWithService(svc *gsheet.Service, spreadsheetID string) *Client {
	return &Client{
		svc:             svc,
		spreadsheetID:   spreadsheetID,
		studentsSheet:   DefaultStudentsSheet,
		structureSheet:  DefaultStructureSheet,
		recordsSheet:    DefaultRecordsSheet,
		categoriesSheet: DefaultCategoriesSheet,
	}
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// newSheetsService initializes a Sheets Service. Service Account credentials
// come from GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS; without them a user token from
// GOOGLE_OAUTH_TOKEN_FILE is used.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	tokenFile := strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_TOKEN_FILE"))

	var auth goption.ClientOption
	switch {
	case serviceAccountJSON != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		auth = goption.WithCredentialsJSON([]byte(serviceAccountJSON))
	case serviceAccountFile != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", serviceAccountFile)
		credentialsJSON, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		auth = goption.WithCredentialsJSON(credentialsJSON)
	case tokenFile != "":
		slog.InfoContext(ctx, "Using OAuth user token", "path", tokenFile)
		var err error
		if auth, err = oauthOption(ctx, tokenFile); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_OAUTH_TOKEN_FILE)")
	}

	service, err := gsheet.NewService(ctx, auth, goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets service created successfully")
	return service, nil
}

func (c *Client) readRows(ctx context.Context, sheetName, cols string) ([][]interface{}, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!%s", sheetName, cols)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).
		ValueRenderOption("UNFORMATTED_VALUE").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return resp.Values, nil
}

func (c *Client) ListStudents(ctx context.Context) ([]core.Student, error) {
	rows, err := c.readRows(ctx, c.studentsSheet, "A2:M")
	if err != nil {
		return nil, err
	}
	return parseStudents(rows), nil
}

func (c *Client) ListStructures(ctx context.Context) ([]core.FeeStructureEntry, error) {
	rows, err := c.readRows(ctx, c.structureSheet, "A2:C")
	if err != nil {
		return nil, err
	}
	return parseStructures(rows), nil
}

func (c *Client) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := c.readRows(ctx, c.categoriesSheet, "A2:C")
	if err != nil {
		return nil, err
	}
	cats := parseCategories(rows)
	if len(cats) == 0 {
		slog.WarnContext(ctx, "Fee category sheet is empty, using default catalog", "sheet", c.categoriesSheet)
		return core.DefaultCatalog().All(), nil
	}
	return core.NewCatalog(cats).All(), nil
}

func (c *Client) ListPayments(ctx context.Context) ([]core.FeePaymentRecord, error) {
	rows, err := c.readRows(ctx, c.recordsSheet, "A2:M")
	if err != nil {
		return nil, err
	}
	return parseRecords(rows), nil
}

// AppendPayments appends one Fee_Record row per record in a single request.
// Values are written RAW so BS dates are not reinterpreted as Gregorian ones.
func (c *Client) AppendPayments(ctx context.Context, records []core.FeePaymentRecord) error {
	if len(records) == 0 {
		return nil
	}
	for i, r := range records {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("validation failed for record %d: %w", i, err)
		}
	}
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	values := make([][]interface{}, 0, len(records))
	for _, r := range records {
		values = append(values, recordRow(r))
	}
	rng := fmt.Sprintf("%s!A:M", c.recordsSheet)
	_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, &gsheet.ValueRange{Values: values}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append to %s: %w", c.recordsSheet, err)
	}
	slog.InfoContext(ctx, "Fee records appended to sheet",
		"sheet", c.recordsSheet,
		"receipt_no", records[0].ReceiptNo,
		"rows", len(values))
	return nil
}

// SaveStudent rewrites the row holding the student's ID, or appends one.
// Columns the roster does not model are left untouched.
func (c *Client) SaveStudent(ctx context.Context, st core.Student) error {
	if err := st.Validate(); err != nil {
		return err
	}
	return c.upsertRow(ctx, c.studentsSheet, "M", studentRow(st), func(row []string) bool {
		return safeGet(row, colStudentID) == st.ID
	})
}

// SaveStructure reprices the first row for the class and fee type, the one
// lookups read, or appends one.
func (c *Client) SaveStructure(ctx context.Context, e core.FeeStructureEntry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	row := []interface{}{e.Class, e.FeeType, e.Amount.RupeesFloat()}
	return c.upsertRow(ctx, c.structureSheet, "C", row, func(row []string) bool {
		return safeGet(row, 0) == e.Class && safeGet(row, 1) == e.FeeType
	})
}

func (c *Client) SaveCategory(ctx context.Context, cat core.Category) error {
	if err := cat.Validate(); err != nil {
		return err
	}
	row := []interface{}{cat.Name, cat.Description, string(cat.Kind)}
	return c.upsertRow(ctx, c.categoriesSheet, "C", row, func(row []string) bool {
		return safeGet(row, 0) == cat.Name
	})
}

// upsertRow overwrites the first data row match accepts, or appends row
// after the last one. Nil cells are skipped by the API and keep whatever
// the sheet holds.
func (c *Client) upsertRow(ctx context.Context, sheetName, lastCol string, row []interface{}, match func([]string) bool) error {
	rows, err := c.readRows(ctx, sheetName, "A2:"+lastCol)
	if err != nil {
		return err
	}
	body := &gsheet.ValueRange{Values: [][]interface{}{row}}
	for i, raw := range rows {
		if !match(toStrings(raw)) {
			continue
		}
		line := i + 2
		rng := fmt.Sprintf("%s!A%d:%s%d", sheetName, line, lastCol, line)
		_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, body).
			ValueInputOption("RAW").
			Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("update %s: %w", rng, err)
		}
		slog.InfoContext(ctx, "Sheet row updated", "sheet", sheetName, "row", line)
		return nil
	}
	rng := fmt.Sprintf("%s!A:%s", sheetName, lastCol)
	_, err = c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, body).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append to %s: %w", sheetName, err)
	}
	slog.InfoContext(ctx, "Sheet row appended", "sheet", sheetName)
	return nil
}
