package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"feeledger/internal/core"

	_ "modernc.org/sqlite"
)

// Sync states of a stored fee record.
const (
	SyncPending = "pending"
	SyncSynced  = "synced"
	SyncError   = "error"
)

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time keeps SQLite from returning SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) ListStudents(ctx context.Context) ([]core.Student, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, roll_no, name, class, section, status FROM students ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	defer rows.Close()

	var out []core.Student
	for rows.Next() {
		var s core.Student
		var status string
		if err := rows.Scan(&s.ID, &s.RollNo, &s.Name, &s.Class, &s.Section, &status); err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		s.Status = core.StudentStatus(status)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) ListStructures(ctx context.Context) ([]core.FeeStructureEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT class, fee_type, amount_paisa FROM fee_structures ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list fee structures: %w", err)
	}
	defer rows.Close()

	var out []core.FeeStructureEntry
	for rows.Next() {
		var e core.FeeStructureEntry
		if err := rows.Scan(&e.Class, &e.FeeType, &e.Amount.Paisa); err != nil {
			return nil, fmt.Errorf("scan fee structure: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListCategories returns the mirrored catalog, or the default catalog when
// nothing has been mirrored yet.
func (r *SQLiteRepository) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT name, kind, description FROM fee_categories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list fee categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var c core.Category
		var kind string
		if err := rows.Scan(&c.Name, &kind, &c.Description); err != nil {
			return nil, fmt.Errorf("scan fee category: %w", err)
		}
		c.Kind = core.FeeKind(kind)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return core.DefaultCatalog().All(), nil
	}
	return out, nil
}

const recordColumns = `receipt_no, student_id, student_name, class, month, fee_type,
	amount_paisa, discount_paisa, total_paisa, paid_date, payment_mode, collected_by, status`

func scanRecords(rows *sql.Rows) ([]core.FeePaymentRecord, error) {
	defer rows.Close()
	var out []core.FeePaymentRecord
	for rows.Next() {
		var rec core.FeePaymentRecord
		var paidDate, status string
		if err := rows.Scan(&rec.ReceiptNo, &rec.StudentID, &rec.StudentName, &rec.Class, &rec.Month, &rec.FeeType,
			&rec.Amount.Paisa, &rec.Discount.Paisa, &rec.Total.Paisa, &paidDate, &rec.PaymentMode, &rec.CollectedBy, &status); err != nil {
			return nil, fmt.Errorf("scan fee record: %w", err)
		}
		rec.Status = core.PaymentStatus(status)
		if paidDate != "" {
			rec.PaidDate, _ = core.ParseBSDate(paidDate)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListPayments returns the whole local ledger in insertion order.
func (r *SQLiteRepository) ListPayments(ctx context.Context) ([]core.FeePaymentRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM fee_records ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list fee records: %w", err)
	}
	return scanRecords(rows)
}

// UnsyncedReceiptRecords returns the lines of one receipt that have not
// reached the sheet. Lines imported from the sheet under the same number are
// already synced and left out.
func (r *SQLiteRepository) UnsyncedReceiptRecords(ctx context.Context, receiptNo string) ([]core.FeePaymentRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM fee_records WHERE receipt_no = ? AND sync_status != 'synced' ORDER BY id`, receiptNo)
	if err != nil {
		return nil, fmt.Errorf("get receipt %s: %w", receiptNo, err)
	}
	return scanRecords(rows)
}

// AppendPayments validates every record, then stores them as pending in one
// transaction. A receipt number already in the ledger, local or imported,
// fails with core.ErrDuplicateReceipt.
func (r *SQLiteRepository) AppendPayments(ctx context.Context, records []core.FeePaymentRecord) error {
	for i, rec := range records {
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}
	return r.insertRecords(ctx, records, SyncPending, true)
}

func (r *SQLiteRepository) insertRecords(ctx context.Context, records []core.FeePaymentRecord, syncStatus string, uniqueReceipt bool) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if uniqueReceipt {
		checked := make(map[string]struct{}, 1)
		for _, rec := range records {
			if _, ok := checked[rec.ReceiptNo]; ok {
				continue
			}
			checked[rec.ReceiptNo] = struct{}{}
			var n int
			if err := tx.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM fee_records WHERE receipt_no = ?`, rec.ReceiptNo).Scan(&n); err != nil {
				return fmt.Errorf("check receipt %s: %w", rec.ReceiptNo, err)
			}
			if n > 0 {
				return fmt.Errorf("%s: %w", rec.ReceiptNo, core.ErrDuplicateReceipt)
			}
		}
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO fee_records (`+recordColumns+`, sync_status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	created := r.now().Unix()
	for _, rec := range records {
		paid := ""
		if !rec.PaidDate.IsZero() {
			paid = rec.PaidDate.String()
		}
		if _, err := stmt.ExecContext(ctx, rec.ReceiptNo, rec.StudentID, rec.StudentName, rec.Class, rec.Month, rec.FeeType,
			rec.Amount.Paisa, rec.Discount.Paisa, rec.Total.Paisa, paid, rec.PaymentMode, rec.CollectedBy, string(rec.Status),
			syncStatus, created); err != nil {
			return fmt.Errorf("insert fee record %s: %w", rec.ReceiptNo, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	if len(records) > 0 {
		slog.InfoContext(ctx, "Fee records saved to SQLite",
			"receipt_no", records[0].ReceiptNo,
			"rows", len(records),
			"sync_status", syncStatus)
	}
	return nil
}

// PendingReceipt identifies a receipt whose lines still need to reach the sheet.
type PendingReceipt struct {
	ReceiptNo string
	CreatedAt time.Time
}

// GetPendingReceipts returns receipts with pending or failed lines, oldest first.
func (r *SQLiteRepository) GetPendingReceipts(ctx context.Context, limit int) ([]PendingReceipt, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT receipt_no, MIN(created_at) FROM fee_records
		WHERE sync_status IN ('pending', 'error')
		GROUP BY receipt_no
		ORDER BY MIN(id)
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending receipts: %w", err)
	}
	defer rows.Close()

	var out []PendingReceipt
	for rows.Next() {
		var p PendingReceipt
		var created int64
		if err := rows.Scan(&p.ReceiptNo, &created); err != nil {
			return nil, fmt.Errorf("scan pending receipt: %w", err)
		}
		p.CreatedAt = time.Unix(created, 0)
		out = append(out, p)
	}
	return out, rows.Err()
}

// ReceiptSyncStatus returns the sync state of a receipt; mixed states report
// the least advanced one.
func (r *SQLiteRepository) ReceiptSyncStatus(ctx context.Context, receiptNo string) (string, error) {
	var pending, failed, total int
	err := r.db.QueryRowContext(ctx, `SELECT
		COALESCE(SUM(sync_status = 'pending'), 0),
		COALESCE(SUM(sync_status = 'error'), 0),
		COUNT(*)
		FROM fee_records WHERE receipt_no = ?`, receiptNo).Scan(&pending, &failed, &total)
	if err != nil {
		return "", fmt.Errorf("get receipt sync status: %w", err)
	}
	switch {
	case total == 0:
		return "", sql.ErrNoRows
	case failed > 0:
		return SyncError, nil
	case pending > 0:
		return SyncPending, nil
	default:
		return SyncSynced, nil
	}
}

// MarkReceiptSynced marks every line of a receipt as synced.
func (r *SQLiteRepository) MarkReceiptSynced(ctx context.Context, receiptNo string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE fee_records SET sync_status = 'synced', synced_at = ? WHERE receipt_no = ?`,
		r.now().Unix(), receiptNo)
	if err != nil {
		return fmt.Errorf("mark receipt synced: %w", err)
	}
	slog.InfoContext(ctx, "Receipt marked as synced", "receipt_no", receiptNo)
	return nil
}

// MarkReceiptSyncError marks the unsynced lines of a receipt as failed.
func (r *SQLiteRepository) MarkReceiptSyncError(ctx context.Context, receiptNo string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE fee_records SET sync_status = 'error' WHERE receipt_no = ? AND sync_status != 'synced'`,
		receiptNo)
	if err != nil {
		return fmt.Errorf("mark receipt sync error: %w", err)
	}
	slog.WarnContext(ctx, "Receipt marked with sync error", "receipt_no", receiptNo)
	return nil
}

// ReplaceStudents swaps the mirrored roster for students, keeping their order.
// Students saved locally and not yet pushed win over the sheet's copy.
func (r *SQLiteRepository) ReplaceStudents(ctx context.Context, students []core.Student) error {
	return r.replace(ctx, "students", len(students), func(tx *sql.Tx) error {
		for _, s := range students {
			status := s.Status
			if status == "" {
				status = core.StudentActive
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO students (id, roll_no, name, class, section, status) VALUES (?, ?, ?, ?, ?, ?)
				 ON CONFLICT(id) DO NOTHING`,
				s.ID, s.RollNo, s.Name, s.Class, s.Section, string(status)); err != nil {
				return fmt.Errorf("insert student %s: %w", s.ID, err)
			}
		}
		return nil
	})
}

// ReplaceStructures swaps the mirrored fee structure table, keeping its order.
// A class and fee type repriced locally keeps only the local row.
func (r *SQLiteRepository) ReplaceStructures(ctx context.Context, entries []core.FeeStructureEntry) error {
	return r.replace(ctx, "fee_structures", len(entries), func(tx *sql.Tx) error {
		for _, e := range entries {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO fee_structures (class, fee_type, amount_paisa)
				 SELECT ?, ?, ? WHERE NOT EXISTS (
				   SELECT 1 FROM fee_structures WHERE class = ? AND fee_type = ? AND dirty = 1)`,
				e.Class, e.FeeType, e.Amount.Paisa, e.Class, e.FeeType); err != nil {
				return fmt.Errorf("insert fee structure %s/%s: %w", e.Class, e.FeeType, err)
			}
		}
		return nil
	})
}

// ReplaceCategories swaps the mirrored catalog. Kinds must already be resolved.
func (r *SQLiteRepository) ReplaceCategories(ctx context.Context, cats []core.Category) error {
	return r.replace(ctx, "fee_categories", len(cats), func(tx *sql.Tx) error {
		for _, c := range cats {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO fee_categories (name, kind, description) VALUES (?, ?, ?)
				 ON CONFLICT(name) DO NOTHING`,
				c.Name, string(c.Kind), c.Description); err != nil {
				return fmt.Errorf("insert fee category %s: %w", c.Name, err)
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) replace(ctx context.Context, table string, n int, insert func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE dirty = 0`); err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}
	if err := insert(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	slog.InfoContext(ctx, "Mirrored table replaced", "table", table, "rows", n)
	return nil
}

// SaveStudent stores a student edited locally. It stays dirty until pushed
// to the sheet.
func (r *SQLiteRepository) SaveStudent(ctx context.Context, s core.Student) error {
	if err := s.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO students (id, roll_no, name, class, section, status, dirty) VALUES (?, ?, ?, ?, ?, ?, 1)
		 ON CONFLICT(id) DO UPDATE SET roll_no = excluded.roll_no, name = excluded.name, class = excluded.class,
		   section = excluded.section, status = excluded.status, dirty = 1`,
		s.ID, s.RollNo, s.Name, s.Class, s.Section, string(s.Status))
	if err != nil {
		return fmt.Errorf("save student %s: %w", s.ID, err)
	}
	return nil
}

// SaveStructure reprices the first row for the class and fee type, the one
// lookups read, or adds a row.
func (r *SQLiteRepository) SaveStructure(ctx context.Context, e core.FeeStructureEntry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE fee_structures SET amount_paisa = ?, dirty = 1
		 WHERE id = (SELECT MIN(id) FROM fee_structures WHERE class = ? AND fee_type = ?)`,
		e.Amount.Paisa, e.Class, e.FeeType)
	if err != nil {
		return fmt.Errorf("update fee structure %s/%s: %w", e.Class, e.FeeType, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO fee_structures (class, fee_type, amount_paisa, dirty) VALUES (?, ?, ?, 1)`,
			e.Class, e.FeeType, e.Amount.Paisa); err != nil {
			return fmt.Errorf("insert fee structure %s/%s: %w", e.Class, e.FeeType, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// SaveCategory stores a category edited locally. The first save replaces
// the default catalog the empty table falls back to.
func (r *SQLiteRepository) SaveCategory(ctx context.Context, c core.Category) error {
	if err := c.Validate(); err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM fee_categories`).Scan(&n); err != nil {
		return fmt.Errorf("count fee categories: %w", err)
	}
	if n == 0 {
		for _, d := range core.DefaultCatalog().All() {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO fee_categories (name, kind, description) VALUES (?, ?, ?)`,
				d.Name, string(d.Kind), d.Description); err != nil {
				return fmt.Errorf("seed fee category %s: %w", d.Name, err)
			}
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO fee_categories (name, kind, description, dirty) VALUES (?, ?, ?, 1)
		 ON CONFLICT(name) DO UPDATE SET kind = excluded.kind, description = excluded.description, dirty = 1`,
		c.Name, string(c.Kind), c.Description); err != nil {
		return fmt.Errorf("save fee category %s: %w", c.Name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ReferenceEdits holds reference rows saved locally and not yet on the sheet.
type ReferenceEdits struct {
	Students   []core.Student
	Structures []core.FeeStructureEntry
	Categories []core.Category
}

func (e ReferenceEdits) Len() int {
	return len(e.Students) + len(e.Structures) + len(e.Categories)
}

func (r *SQLiteRepository) PendingReferenceEdits(ctx context.Context) (ReferenceEdits, error) {
	var out ReferenceEdits

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, roll_no, name, class, section, status FROM students WHERE dirty = 1 ORDER BY position`)
	if err != nil {
		return out, fmt.Errorf("list edited students: %w", err)
	}
	for rows.Next() {
		var s core.Student
		var status string
		if err := rows.Scan(&s.ID, &s.RollNo, &s.Name, &s.Class, &s.Section, &status); err != nil {
			rows.Close()
			return out, fmt.Errorf("scan student: %w", err)
		}
		s.Status = core.StudentStatus(status)
		out.Students = append(out.Students, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return out, err
	}

	rows, err = r.db.QueryContext(ctx,
		`SELECT class, fee_type, amount_paisa FROM fee_structures WHERE dirty = 1 ORDER BY id`)
	if err != nil {
		return out, fmt.Errorf("list edited fee structures: %w", err)
	}
	for rows.Next() {
		var e core.FeeStructureEntry
		if err := rows.Scan(&e.Class, &e.FeeType, &e.Amount.Paisa); err != nil {
			rows.Close()
			return out, fmt.Errorf("scan fee structure: %w", err)
		}
		out.Structures = append(out.Structures, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return out, err
	}

	rows, err = r.db.QueryContext(ctx,
		`SELECT name, kind, description FROM fee_categories WHERE dirty = 1 ORDER BY id`)
	if err != nil {
		return out, fmt.Errorf("list edited fee categories: %w", err)
	}
	for rows.Next() {
		var c core.Category
		var kind string
		if err := rows.Scan(&c.Name, &kind, &c.Description); err != nil {
			rows.Close()
			return out, fmt.Errorf("scan fee category: %w", err)
		}
		c.Kind = core.FeeKind(kind)
		out.Categories = append(out.Categories, c)
	}
	rows.Close()
	return out, rows.Err()
}

// MarkReferenceClean clears the dirty flag of rows still equal to the pushed
// edits. A row saved again since then stays dirty.
func (r *SQLiteRepository) MarkReferenceClean(ctx context.Context, e ReferenceEdits) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, s := range e.Students {
		if _, err := tx.ExecContext(ctx,
			`UPDATE students SET dirty = 0 WHERE id = ? AND roll_no = ? AND name = ? AND class = ? AND section = ? AND status = ?`,
			s.ID, s.RollNo, s.Name, s.Class, s.Section, string(s.Status)); err != nil {
			return fmt.Errorf("clean student %s: %w", s.ID, err)
		}
	}
	for _, st := range e.Structures {
		if _, err := tx.ExecContext(ctx,
			`UPDATE fee_structures SET dirty = 0 WHERE class = ? AND fee_type = ? AND amount_paisa = ?`,
			st.Class, st.FeeType, st.Amount.Paisa); err != nil {
			return fmt.Errorf("clean fee structure %s/%s: %w", st.Class, st.FeeType, err)
		}
	}
	for _, c := range e.Categories {
		if _, err := tx.ExecContext(ctx,
			`UPDATE fee_categories SET dirty = 0 WHERE name = ? AND kind = ? AND description = ?`,
			c.Name, string(c.Kind), c.Description); err != nil {
			return fmt.Errorf("clean fee category %s: %w", c.Name, err)
		}
	}
	return tx.Commit()
}

// rowKey identifies a ledger line. Receipt numbers alone are not unique
// across devices writing the same sheet.
type rowKey struct {
	receiptNo, studentID, feeType, month string
}

func keyOf(rec core.FeePaymentRecord) rowKey {
	return rowKey{rec.ReceiptNo, rec.StudentID, rec.FeeType, rec.Month}
}

// ImportPayments stores sheet records whose line is not known locally,
// matching on receipt number, student, fee type and month. They are already
// on the sheet, so they are stored as synced. Returns the number of records
// imported.
func (r *SQLiteRepository) ImportPayments(ctx context.Context, records []core.FeePaymentRecord) (int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT receipt_no, student_id, fee_type, month FROM fee_records`)
	if err != nil {
		return 0, fmt.Errorf("list ledger lines: %w", err)
	}
	known := map[rowKey]struct{}{}
	for rows.Next() {
		var k rowKey
		if err := rows.Scan(&k.receiptNo, &k.studentID, &k.feeType, &k.month); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan ledger line: %w", err)
		}
		known[k] = struct{}{}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	var fresh []core.FeePaymentRecord
	for _, rec := range records {
		k := keyOf(rec)
		if _, ok := known[k]; ok {
			continue
		}
		if !rec.Status.Valid() || rec.Amount.Paisa < 0 || rec.Discount.Paisa < 0 {
			slog.WarnContext(ctx, "Skipping malformed sheet record", "receipt_no", rec.ReceiptNo, "student_id", rec.StudentID)
			continue
		}
		known[k] = struct{}{}
		fresh = append(fresh, rec)
	}
	if len(fresh) == 0 {
		return 0, nil
	}
	if err := r.insertRecords(ctx, fresh, SyncSynced, false); err != nil {
		return 0, err
	}
	return len(fresh), nil
}
