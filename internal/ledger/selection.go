package ledger

import (
	"fmt"
	"sort"

	"feeledger/internal/core"
)

// MonthlySelection is one selected monthly category and its chosen months,
// kept unique and in calendar order.
type MonthlySelection struct {
	Category string
	Months   []core.Month
}

// Selection is the set of obligations a report evaluates. It is a value:
// every operation returns a new Selection and never mutates the receiver.
type Selection struct {
	monthly []MonthlySelection
	oneTime []string
}

// NewSelection returns an empty selection. An empty selection evaluates no
// obligation at all.
func NewSelection() Selection {
	return Selection{}
}

// Monthly returns a copy of the monthly part in selection order.
func (s Selection) Monthly() []MonthlySelection {
	out := make([]MonthlySelection, len(s.monthly))
	for i, m := range s.monthly {
		out[i] = MonthlySelection{Category: m.Category, Months: append([]core.Month(nil), m.Months...)}
	}
	return out
}

// OneTime returns a copy of the selected one-time categories in selection order.
func (s Selection) OneTime() []string {
	return append([]string(nil), s.oneTime...)
}

func (s Selection) IsEmpty() bool {
	return len(s.monthly) == 0 && len(s.oneTime) == 0
}

func (s Selection) clone() Selection {
	return Selection{monthly: s.Monthly(), oneTime: s.OneTime()}
}

func (s Selection) monthlyIndex(category string) int {
	for i, m := range s.monthly {
		if m.Category == category {
			return i
		}
	}
	return -1
}

// HasMonthly reports whether category is selected as a monthly fee.
func (s Selection) HasMonthly(category string) bool {
	return s.monthlyIndex(category) >= 0
}

// HasOneTime reports whether category is selected as a one-time fee.
func (s Selection) HasOneTime(category string) bool {
	for _, c := range s.oneTime {
		if c == category {
			return true
		}
	}
	return false
}

// ToggleMonthly adds the category with no months, or removes it.
func (s Selection) ToggleMonthly(category string) Selection {
	out := s.clone()
	if i := out.monthlyIndex(category); i >= 0 {
		out.monthly = append(out.monthly[:i], out.monthly[i+1:]...)
		return out
	}
	out.monthly = append(out.monthly, MonthlySelection{Category: category})
	return out
}

// SetMonths selects category as monthly with exactly the given months.
// Invalid months are dropped.
func (s Selection) SetMonths(category string, months ...core.Month) Selection {
	out := s.clone()
	i := out.monthlyIndex(category)
	if i < 0 {
		out.monthly = append(out.monthly, MonthlySelection{Category: category})
		i = len(out.monthly) - 1
	}
	out.monthly[i].Months = normalizeMonths(months)
	return out
}

// ToggleMonth flips one month of a monthly category, selecting the category
// first if needed.
func (s Selection) ToggleMonth(category string, month core.Month) Selection {
	if !month.Valid() {
		return s.clone()
	}
	i := s.monthlyIndex(category)
	if i < 0 {
		return s.SetMonths(category, month)
	}
	current := s.monthly[i].Months
	next := make([]core.Month, 0, len(current)+1)
	found := false
	for _, m := range current {
		if m == month {
			found = true
			continue
		}
		next = append(next, m)
	}
	if !found {
		next = append(next, month)
	}
	return s.SetMonths(category, next...)
}

// WithUniformMonths applies the same month set to every selected monthly
// category, which is how the report screen's single month picker behaves.
func (s Selection) WithUniformMonths(months ...core.Month) Selection {
	out := s.clone()
	norm := normalizeMonths(months)
	for i := range out.monthly {
		out.monthly[i].Months = append([]core.Month(nil), norm...)
	}
	return out
}

// ToggleOneTime adds or removes a one-time category.
func (s Selection) ToggleOneTime(category string) Selection {
	out := s.clone()
	for i, c := range out.oneTime {
		if c == category {
			out.oneTime = append(out.oneTime[:i], out.oneTime[i+1:]...)
			return out
		}
	}
	out.oneTime = append(out.oneTime, category)
	return out
}

// Validate checks every selected category against the catalog: it must be
// known and its tag must match the side it was selected on.
func (s Selection) Validate(catalog *core.Catalog) error {
	for _, m := range s.monthly {
		kind, ok := catalog.Kind(m.Category)
		if !ok {
			return fmt.Errorf("unknown fee category %q", m.Category)
		}
		if kind != core.Monthly {
			return fmt.Errorf("fee category %q is %s, not monthly", m.Category, kind)
		}
	}
	for _, c := range s.oneTime {
		kind, ok := catalog.Kind(c)
		if !ok {
			return fmt.Errorf("unknown fee category %q", c)
		}
		if kind != core.OneTime {
			return fmt.Errorf("fee category %q is %s, not one-time", c, kind)
		}
	}
	return nil
}

// MonthlyPair is one (category, month) obligation.
type MonthlyPair struct {
	Category string
	Month    core.Month
}

// Pairs enumerates the monthly obligations, months in calendar order and
// categories in selection order within a month.
func (s Selection) Pairs() []MonthlyPair {
	var out []MonthlyPair
	for _, month := range core.Months() {
		for _, m := range s.monthly {
			for _, mm := range m.Months {
				if mm == month {
					out = append(out, MonthlyPair{Category: m.Category, Month: month})
					break
				}
			}
		}
	}
	return out
}

func normalizeMonths(months []core.Month) []core.Month {
	seen := make(map[core.Month]struct{}, len(months))
	out := make([]core.Month, 0, len(months))
	for _, m := range months {
		if !m.Valid() {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
