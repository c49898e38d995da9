package core

// Month is a Nepali (Bikram Sambat) calendar month, 1 = Baishakh.
type Month int

const (
	Baishakh Month = iota + 1
	Jestha
	Ashadh
	Shrawan
	Bhadra
	Ashwin
	Kartik
	Mangsir
	Poush
	Magh
	Falgun
	Chaitra
)

var monthNames = [...]string{
	"Baishakh", "Jestha", "Ashadh", "Shrawan", "Bhadra", "Ashwin",
	"Kartik", "Mangsir", "Poush", "Magh", "Falgun", "Chaitra",
}

// Months returns all twelve months in calendar order.
func Months() []Month {
	out := make([]Month, 0, len(monthNames))
	for i := range monthNames {
		out = append(out, Month(i+1))
	}
	return out
}

func (m Month) Valid() bool {
	return m >= Baishakh && m <= Chaitra
}

func (m Month) String() string {
	if !m.Valid() {
		return ""
	}
	return monthNames[m-1]
}

// ParseMonth resolves an exact, case-sensitive month name. Ledger rows are
// matched on the literal string, so a lenient parser here would let a
// selection match rows the aggregator never sees.
func ParseMonth(name string) (Month, error) {
	for i, n := range monthNames {
		if n == name {
			return Month(i + 1), nil
		}
	}
	return 0, ErrInvalidMonth
}
