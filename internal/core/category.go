package core

import (
	"errors"
	"fmt"
	"strings"
)

const (
	OneTime FeeKind = "one-time"
	Monthly FeeKind = "monthly"
)

type (
	// FeeKind tags a fee category as billed per month or once.
	FeeKind string

	Category struct {
		Name        string
		Kind        FeeKind
		Description string
	}

	// Catalog is the ordered set of known fee categories.
	Catalog struct {
		list  []Category
		index map[string]int
	}
)

// ParseFeeKind accepts the tag as written in the categories sheet. An empty
// or unknown value yields ok=false so the caller can fall back.
func ParseFeeKind(s string) (FeeKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "monthly":
		return Monthly, true
	case "one-time", "onetime", "one time", "fixed":
		return OneTime, true
	}
	return "", false
}

func (k FeeKind) Valid() bool {
	return k == Monthly || k == OneTime
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyFeeType
	}
	if !c.Kind.Valid() {
		return fmt.Errorf("fee kind %q: %w", c.Kind, ErrInvalidFeeKind)
	}
	return nil
}

var ErrInvalidFeeKind = errors.New("fee kind must be monthly or one-time")

var defaultCategories = []Category{
	{Name: "Monthly Tuition Fee", Kind: Monthly, Description: "Regular monthly study fee"},
	{Name: "Bus/Transportation Fee", Kind: Monthly, Description: "School vehicle service"},
	{Name: "Hostel/Boarding Fee", Kind: Monthly, Description: "Accommodation charges"},
	{Name: "Computer & IT Fee", Kind: Monthly, Description: "Lab and technology usage"},
	{Name: "Late Payment Fine", Kind: Monthly, Description: "Penalty for delayed fees"},
	{Name: "Admission Fee", Kind: OneTime, Description: "One-time admission charge"},
	{Name: "Annual Fee", Kind: OneTime, Description: "Yearly administrative fee"},
	{Name: "Terminal Exam Fee", Kind: OneTime, Description: "Fee per examination term"},
	{Name: "Library Fee", Kind: OneTime, Description: "Book access and maintenance"},
	{Name: "Laboratory Fee", Kind: OneTime, Description: "Science lab materials"},
	{Name: "Sports & EC Fee", Kind: OneTime, Description: "Extracurricular activities"},
	{Name: "ID Card & Belt/Tie Fee", Kind: OneTime, Description: "Accessories and identification"},
	{Name: "Diary & Calendar Fee", Kind: OneTime, Description: "Annual school publications"},
	{Name: "Building Fund", Kind: OneTime, Description: "Infrastructure development"},
	{Name: "Maintenance Fee", Kind: OneTime, Description: "Facility upkeep"},
	{Name: "Uniform Fee", Kind: OneTime, Description: "School dress set charges"},
	{Name: "Field Trip Fee", Kind: OneTime, Description: "Educational tours"},
	{Name: "Stationery & Books Fee", Kind: OneTime, Description: "Curriculum materials"},
	{Name: "Insurance/Health Fee", Kind: OneTime, Description: "Student safety fund"},
	{Name: "Miscellaneous Fee", Kind: OneTime, Description: "Other small expenses"},
}

// DefaultCatalog returns the categories a fresh school database is seeded with.
func DefaultCatalog() *Catalog {
	return NewCatalog(defaultCategories)
}

// NewCatalog builds a catalog, keeping the first category of any repeated
// name and dropping entries without a name. Entries without a valid kind are
// tagged from the default catalog, else OneTime.
func NewCatalog(cats []Category) *Catalog {
	c := &Catalog{index: make(map[string]int, len(cats))}
	for _, cat := range cats {
		cat.Name = strings.TrimSpace(cat.Name)
		if cat.Name == "" {
			continue
		}
		if _, dup := c.index[cat.Name]; dup {
			continue
		}
		if !cat.Kind.Valid() {
			cat.Kind = defaultKind(cat.Name)
		}
		c.index[cat.Name] = len(c.list)
		c.list = append(c.list, cat)
	}
	return c
}

func defaultKind(name string) FeeKind {
	for _, d := range defaultCategories {
		if d.Name == name {
			return d.Kind
		}
	}
	return OneTime
}

// All returns a copy of the categories in catalog order.
func (c *Catalog) All() []Category {
	return append([]Category(nil), c.list...)
}

// Lookup returns the category with the exact name.
func (c *Catalog) Lookup(name string) (Category, bool) {
	i, ok := c.index[name]
	if !ok {
		return Category{}, false
	}
	return c.list[i], true
}

// Kind returns the tag of a known category.
func (c *Catalog) Kind(name string) (FeeKind, bool) {
	cat, ok := c.Lookup(name)
	return cat.Kind, ok
}

// Names returns the names of every category of the given kind.
func (c *Catalog) Names(kind FeeKind) []string {
	var out []string
	for _, cat := range c.list {
		if cat.Kind == kind {
			out = append(out, cat.Name)
		}
	}
	return out
}

func (c *Catalog) Len() int {
	return len(c.list)
}
