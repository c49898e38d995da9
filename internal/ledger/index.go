package ledger

import "feeledger/internal/core"

type structureKey struct {
	class   string
	feeType string
}

// StructureTable resolves the billable amount for a class and fee type.
// When the input repeats a pair, the first entry wins.
type StructureTable struct {
	amounts map[structureKey]core.Money
}

func NewStructureTable(entries []core.FeeStructureEntry) StructureTable {
	t := StructureTable{amounts: make(map[structureKey]core.Money, len(entries))}
	for _, e := range entries {
		k := structureKey{class: e.Class, feeType: e.FeeType}
		if _, ok := t.amounts[k]; ok {
			continue
		}
		t.amounts[k] = e.Amount
	}
	return t
}

// Amount returns zero when no entry exists.
func (t StructureTable) Amount(class, feeType string) core.Money {
	return t.amounts[structureKey{class: class, feeType: feeType}]
}

type paidKey struct {
	studentID string
	feeType   string
	month     string
}

// PaidIndex holds the first Paid record per (student, fee type, month) and
// per (student, fee type). Records with any other status are ignored.
type PaidIndex struct {
	monthly map[paidKey]core.FeePaymentRecord
	oneTime map[paidKey]core.FeePaymentRecord
}

func NewPaidIndex(records []core.FeePaymentRecord) PaidIndex {
	idx := PaidIndex{
		monthly: make(map[paidKey]core.FeePaymentRecord),
		oneTime: make(map[paidKey]core.FeePaymentRecord),
	}
	for _, r := range records {
		if r.Status != core.StatusPaid {
			continue
		}
		mk := paidKey{studentID: r.StudentID, feeType: r.FeeType, month: r.Month}
		if _, ok := idx.monthly[mk]; !ok {
			idx.monthly[mk] = r
		}
		ak := paidKey{studentID: r.StudentID, feeType: r.FeeType}
		if _, ok := idx.oneTime[ak]; !ok {
			idx.oneTime[ak] = r
		}
	}
	return idx
}

// Monthly finds the Paid record for an exact (student, fee type, month) match.
func (i PaidIndex) Monthly(studentID, feeType, month string) (core.FeePaymentRecord, bool) {
	r, ok := i.monthly[paidKey{studentID: studentID, feeType: feeType, month: month}]
	return r, ok
}

// OneTime finds a Paid record for the student and fee type in any month.
func (i PaidIndex) OneTime(studentID, feeType string) (core.FeePaymentRecord, bool) {
	r, ok := i.oneTime[paidKey{studentID: studentID, feeType: feeType}]
	return r, ok
}
