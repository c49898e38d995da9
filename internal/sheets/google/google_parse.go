package google

import (
	"fmt"
	"strconv"
	"strings"

	"feeledger/internal/core"
)

// Column layout of the Students sheet (A..M).
const (
	colStudentID = 0
	colRollNo    = 1
	colName      = 2
	colClass     = 5
	colSection   = 6
	colStatus    = 12
)

// parseStudents skips rows without an ID. A blank status means Active.
func parseStudents(values [][]interface{}) []core.Student {
	var out []core.Student
	for _, raw := range values {
		row := toStrings(raw)
		id := safeGet(row, colStudentID)
		if id == "" || id == "Student_ID" {
			continue
		}
		st := core.Student{
			ID:      id,
			RollNo:  safeGet(row, colRollNo),
			Name:    safeGet(row, colName),
			Class:   safeGet(row, colClass),
			Section: safeGet(row, colSection),
			Status:  core.StudentStatus(safeGet(row, colStatus)),
		}
		if st.Status == "" {
			st.Status = core.StudentActive
		}
		out = append(out, st)
	}
	return out
}

// parseStructures reads Class | Fee_Type | Amount rows, dropping rows whose
// amount cannot be parsed.
func parseStructures(values [][]interface{}) []core.FeeStructureEntry {
	var out []core.FeeStructureEntry
	for _, raw := range values {
		row := toStrings(raw)
		class, feeType := safeGet(row, 0), safeGet(row, 1)
		if class == "" || feeType == "" || class == "Class" {
			continue
		}
		amount, err := core.ParseAmount(safeGet(row, 2))
		if err != nil {
			continue
		}
		out = append(out, core.FeeStructureEntry{Class: class, FeeType: feeType, Amount: amount})
	}
	return out
}

// parseCategories reads Category_Name | Description | Kind. An unknown or
// missing kind is left empty for the catalog to resolve.
func parseCategories(values [][]interface{}) []core.Category {
	var out []core.Category
	for _, raw := range values {
		row := toStrings(raw)
		name := safeGet(row, 0)
		if name == "" || name == "Category_Name" {
			continue
		}
		c := core.Category{Name: name, Description: safeGet(row, 1)}
		if k, ok := core.ParseFeeKind(safeGet(row, 2)); ok {
			c.Kind = k
		}
		out = append(out, c)
	}
	return out
}

// parseRecords reads Fee_Record rows best-effort: cells that fail to parse
// become zero values and the aggregator treats them as non-matching.
func parseRecords(values [][]interface{}) []core.FeePaymentRecord {
	var out []core.FeePaymentRecord
	for _, raw := range values {
		row := toStrings(raw)
		studentID := safeGet(row, 1)
		if studentID == "" || studentID == "Student_ID" {
			continue
		}
		r := core.FeePaymentRecord{
			ReceiptNo:   safeGet(row, 0),
			StudentID:   studentID,
			StudentName: safeGet(row, 2),
			Class:       safeGet(row, 3),
			Month:       safeGet(row, 4),
			FeeType:     safeGet(row, 5),
			PaymentMode: safeGet(row, 10),
			CollectedBy: safeGet(row, 11),
			Status:      core.PaymentStatus(safeGet(row, 12)),
		}
		r.Amount, _ = core.ParseAmount(safeGet(row, 6))
		r.Discount, _ = core.ParseAmount(safeGet(row, 7))
		if total, err := core.ParseAmount(safeGet(row, 8)); err == nil {
			r.Total = total
		} else {
			r.Total = r.Amount.Sub(r.Discount)
		}
		r.PaidDate, _ = core.ParseBSDate(safeGet(row, 9))
		out = append(out, r)
	}
	return out
}

// studentRow is the inverse of parseStudents. Unmodelled columns are nil.
func studentRow(st core.Student) []interface{} {
	row := make([]interface{}, colStatus+1)
	row[colStudentID] = st.ID
	row[colRollNo] = st.RollNo
	row[colName] = st.Name
	row[colClass] = st.Class
	row[colSection] = st.Section
	row[colStatus] = string(st.Status)
	return row
}

// recordRow is the inverse of parseRecords for one record.
func recordRow(r core.FeePaymentRecord) []interface{} {
	paid := ""
	if !r.PaidDate.IsZero() {
		paid = r.PaidDate.String()
	}
	return []interface{}{
		r.ReceiptNo,
		r.StudentID,
		r.StudentName,
		r.Class,
		r.Month,
		r.FeeType,
		r.Amount.RupeesFloat(),
		r.Discount.RupeesFloat(),
		r.Total.RupeesFloat(),
		paid,
		r.PaymentMode,
		r.CollectedBy,
		string(r.Status),
	}
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		switch n := v.(type) {
		case float64:
			out[i] = strconv.FormatFloat(n, 'f', -1, 64)
		default:
			out[i] = strings.TrimSpace(fmt.Sprint(v))
		}
	}
	return out
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}
