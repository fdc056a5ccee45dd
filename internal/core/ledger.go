package core

import (
	"fmt"
	"maps"
	"slices"
	"sort"
)

// Record holds one unit's figures for one month.
type Record struct {
	Revenue          float64 `json:"revenue"`
	Expense          float64 `json:"expense"`
	FinancialRevenue float64 `json:"financialRevenue"`
}

// Field names one figure of a Record.
type Field string

const (
	FieldRevenue          Field = "revenue"
	FieldExpense          Field = "expense"
	FieldFinancialRevenue Field = "financialRevenue"
)

// Fields lists the editable figures in data-entry order.
var Fields = []Field{FieldRevenue, FieldFinancialRevenue, FieldExpense}

// ParseField validates a field name.
func ParseField(s string) (Field, error) {
	f := Field(s)
	if !slices.Contains(Fields, f) {
		return "", fmt.Errorf("%w: %q", ErrUnknownField, s)
	}
	return f, nil
}

// With returns a copy of r with field f set to v.
func (r Record) With(f Field, v float64) Record {
	switch f {
	case FieldRevenue:
		r.Revenue = v
	case FieldExpense:
		r.Expense = v
	case FieldFinancialRevenue:
		r.FinancialRevenue = v
	}
	return r
}

// Get returns the value of field f.
func (r Record) Get(f Field) float64 {
	switch f {
	case FieldRevenue:
		return r.Revenue
	case FieldExpense:
		return r.Expense
	case FieldFinancialRevenue:
		return r.FinancialRevenue
	}
	return 0
}

type (
	// UnitRecords maps a unit name to its record.
	UnitRecords map[string]Record

	// MonthData holds the records of every pillar for one month.
	MonthData map[Pillar]UnitRecords

	// YearData holds the twelve months of one year.
	YearData map[Month]MonthData

	// Ledger is the whole financial database: year → month → pillar → unit → record.
	// It serialises to the same nested JSON object the dashboard has always stored.
	Ledger map[int]YearData
)

// NewMonthSkeleton returns zero-valued records for every unit of every pillar.
func NewMonthSkeleton() MonthData {
	md := make(MonthData, len(Pillars))
	for _, p := range Pillars {
		units := make(UnitRecords, len(pillarCatalog[p].units))
		for _, u := range pillarCatalog[p].units {
			units[u] = Record{}
		}
		md[p] = units
	}
	return md
}

// NewYearSkeleton returns twelve zero-filled months.
func NewYearSkeleton() YearData {
	yd := make(YearData, len(Months))
	for _, m := range Months {
		yd[m] = NewMonthSkeleton()
	}
	return yd
}

// NewLedger returns the ledger a fresh installation starts with: zero-filled
// skeletons for InitialYears.
func NewLedger() Ledger {
	l := make(Ledger, len(InitialYears))
	for _, y := range InitialYears {
		l[y] = NewYearSkeleton()
	}
	return l
}

// MaterializeYear creates the skeleton for year if it is absent or nil. It
// reports whether anything was created; an existing year is left untouched.
func (l Ledger) MaterializeYear(year int) bool {
	if l[year] != nil {
		return false
	}
	l[year] = NewYearSkeleton()
	return true
}

// SetField parses raw and writes it into a single field of the addressed
// record, materialising the year and month first when needed. Unparsable
// input is stored as 0. The stored value is returned.
func (l Ledger) SetField(year int, month Month, pillar Pillar, unit string, field Field, raw string) (float64, error) {
	if err := validateSlot(month, pillar, unit); err != nil {
		return 0, err
	}
	if _, err := ParseField(string(field)); err != nil {
		return 0, err
	}
	v := ParseNumber(raw)
	units := l.ensureUnits(year, month, pillar)
	units[unit] = units[unit].With(field, v)
	return v, nil
}

// Has reports whether the addressed slot already exists in the ledger.
func (l Ledger) Has(year int, month Month, pillar Pillar, unit string) bool {
	_, ok := l[year][month][pillar][unit]
	return ok
}

// Put replaces the addressed record wholesale. The slot must be valid in the catalog.
func (l Ledger) Put(year int, month Month, pillar Pillar, unit string, r Record) error {
	if err := validateSlot(month, pillar, unit); err != nil {
		return err
	}
	l.ensureUnits(year, month, pillar)[unit] = r
	return nil
}

// Record returns the addressed record, zero when it was never materialised.
func (l Ledger) Record(year int, month Month, pillar Pillar, unit string) Record {
	return l[year][month][pillar][unit]
}

func (l Ledger) ensureUnits(year int, month Month, pillar Pillar) UnitRecords {
	l.MaterializeYear(year)
	yd := l[year]
	if yd[month] == nil {
		yd[month] = NewMonthSkeleton()
	}
	md := yd[month]
	if md[pillar] == nil {
		md[pillar] = NewMonthSkeleton()[pillar]
	}
	return md[pillar]
}

func validateSlot(month Month, pillar Pillar, unit string) error {
	if _, err := ParseMonth(string(month)); err != nil {
		return err
	}
	if !pillar.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownPillar, pillar)
	}
	if !pillar.HasUnit(unit) {
		return fmt.Errorf("%w: %q in %s", ErrUnknownUnit, unit, pillar.Label())
	}
	return nil
}

// Years returns the materialised years in ascending order.
func (l Ledger) Years() []int {
	years := slices.Collect(maps.Keys(l))
	sort.Ints(years)
	return years
}

// Clone returns a deep copy of the ledger.
func (l Ledger) Clone() Ledger {
	if l == nil {
		return nil
	}
	out := make(Ledger, len(l))
	for y, yd := range l {
		out[y] = yd.Clone()
	}
	return out
}

// Clone returns a deep copy of the year.
func (yd YearData) Clone() YearData {
	if yd == nil {
		return nil
	}
	out := make(YearData, len(yd))
	for m, md := range yd {
		cm := make(MonthData, len(md))
		for p, units := range md {
			cm[p] = maps.Clone(units)
		}
		out[m] = cm
	}
	return out
}
