package core

import (
	"maps"
	"slices"
	"sort"

	"github.com/shopspring/decimal"
)

// Totals are the accumulated figures of a unit, a pillar or the whole system.
// Balance is always Revenue - Expense; financial revenue only enters the
// displayed figures through DisplayRevenue and Result.
type Totals struct {
	Revenue          float64 `json:"revenue"`
	Expense          float64 `json:"expense"`
	FinancialRevenue float64 `json:"financialRevenue"`
	Balance          float64 `json:"balance"`
}

// DisplayRevenue is the revenue shown to the operator under the inclusion toggle.
func (t Totals) DisplayRevenue(includeFinancial bool) float64 {
	if includeFinancial {
		return t.Revenue + t.FinancialRevenue
	}
	return t.Revenue
}

// Result is the displayed revenue minus expense.
func (t Totals) Result(includeFinancial bool) float64 {
	return t.DisplayRevenue(includeFinancial) - t.Expense
}

// UnitTotals are the totals of one unit.
type UnitTotals struct {
	Name string `json:"name"`
	Totals
}

// PillarTotals are the totals of one pillar with its per-unit breakdown.
type PillarTotals struct {
	Pillar Pillar       `json:"pillar"`
	Name   string       `json:"name"`
	Color  string       `json:"color"`
	Units  []UnitTotals `json:"units"`
	Totals
}

// Unit looks up the breakdown of a single unit.
func (p PillarTotals) Unit(name string) (UnitTotals, bool) {
	for _, u := range p.Units {
		if u.Name == name {
			return u, true
		}
	}
	return UnitTotals{}, false
}

// SumUnits totals the named units of the pillar. Names the pillar does not
// carry contribute nothing.
func (p PillarTotals) SumUnits(names []string) Totals {
	var acc accumulator
	for _, u := range p.Units {
		if slices.Contains(names, u.Name) {
			acc.addTotals(u.Totals)
		}
	}
	return acc.totals()
}

// Query selects what Aggregate computes. An empty Month means the whole year.
type Query struct {
	Year             int
	Month            Month
	IncludeFinancial bool
}

// Summary is the result of Aggregate.
type Summary struct {
	Query
	Pillars []PillarTotals `json:"pillars"`
	Totals  Totals         `json:"totals"`
}

// Result is the overall displayed result under the query's toggle.
func (s Summary) Result() float64 {
	return s.Totals.Result(s.IncludeFinancial)
}

// Pillar returns the totals of p, if the year had any data.
func (s Summary) Pillar(p Pillar) (PillarTotals, bool) {
	for _, pt := range s.Pillars {
		if pt.Pillar == p {
			return pt, true
		}
	}
	return PillarTotals{}, false
}

// Subtotal sums the totals of the given pillars.
func (s Summary) Subtotal(pillars ...Pillar) Totals {
	var acc accumulator
	for _, pt := range s.Pillars {
		if slices.Contains(pillars, pt.Pillar) {
			acc.addTotals(pt.Totals)
		}
	}
	return acc.totals()
}

// Aggregate rolls the records of q.Year up into unit, pillar and system
// totals. It only reads the ledger.
func Aggregate(l Ledger, q Query) Summary {
	s := Summary{Query: q}
	yd := l[q.Year]
	if len(yd) == 0 {
		return s
	}
	months := Months
	if q.Month != "" {
		months = []Month{q.Month}
	}

	var system accumulator
	for _, p := range Pillars {
		var pillar accumulator
		units := map[string]*accumulator{}
		var order []string
		for _, m := range months {
			records := yd[m][p]
			for _, name := range unitOrder(p, records) {
				acc, ok := units[name]
				if !ok {
					acc = &accumulator{}
					units[name] = acc
					order = append(order, name)
				}
				r := records[name]
				acc.add(r)
				pillar.add(r)
				system.add(r)
			}
		}
		pt := PillarTotals{
			Pillar: p,
			Name:   p.Label(),
			Color:  p.Color(),
			Totals: pillar.totals(),
			Units:  make([]UnitTotals, 0, len(order)),
		}
		for _, name := range order {
			pt.Units = append(pt.Units, UnitTotals{Name: name, Totals: units[name].totals()})
		}
		s.Pillars = append(s.Pillars, pt)
	}
	s.Totals = system.totals()
	return s
}

// MonthPoint is one month of a pillar's evolution series.
type MonthPoint struct {
	Month   Month   `json:"month"`
	Revenue float64 `json:"revenue"`
	Expense float64 `json:"expense"`
	Result  float64 `json:"result"`
}

// MonthlySeries returns, for every month of year, the revenue, expense and
// result of the given units of pillar p. Units without data count as zero.
func MonthlySeries(l Ledger, year int, p Pillar, units []string, includeFinancial bool) []MonthPoint {
	yd := l[year]
	points := make([]MonthPoint, 0, len(Months))
	for _, m := range Months {
		rev, exp := decimal.Zero, decimal.Zero
		for _, u := range units {
			r := yd[m][p][u]
			rev = rev.Add(decimal.NewFromFloat(r.Revenue))
			if includeFinancial {
				rev = rev.Add(decimal.NewFromFloat(r.FinancialRevenue))
			}
			exp = exp.Add(decimal.NewFromFloat(r.Expense))
		}
		points = append(points, MonthPoint{
			Month:   m,
			Revenue: rev.InexactFloat64(),
			Expense: exp.InexactFloat64(),
			Result:  rev.Sub(exp).InexactFloat64(),
		})
	}
	return points
}

// Share is a unit's participation in its pillar's revenue and expense.
type Share struct {
	Name       string  `json:"name"`
	Revenue    float64 `json:"revenue"`
	Expense    float64 `json:"expense"`
	RevenuePct float64 `json:"revenuePct"`
	ExpensePct float64 `json:"expensePct"`
}

// Shares computes the participation of the visible units of a pillar.
// Revenue always includes financial revenue here; units with no revenue and
// no expense are left out.
func Shares(p PillarTotals, visible []string) []Share {
	var out []Share
	totalRev, totalExp := decimal.Zero, decimal.Zero
	for _, u := range p.Units {
		if !slices.Contains(visible, u.Name) {
			continue
		}
		rev := decimal.NewFromFloat(u.Revenue).Add(decimal.NewFromFloat(u.FinancialRevenue))
		if !rev.IsPositive() && u.Expense <= 0 {
			continue
		}
		totalRev = totalRev.Add(rev)
		totalExp = totalExp.Add(decimal.NewFromFloat(u.Expense))
		out = append(out, Share{Name: u.Name, Revenue: rev.InexactFloat64(), Expense: u.Expense})
	}
	for i := range out {
		if totalRev.IsPositive() {
			out[i].RevenuePct = percent(out[i].Revenue, totalRev)
		}
		if totalExp.IsPositive() {
			out[i].ExpensePct = percent(out[i].Expense, totalExp)
		}
	}
	return out
}

func percent(v float64, total decimal.Decimal) float64 {
	return decimal.NewFromFloat(v).Mul(decimal.NewFromInt(100)).Div(total).Round(1).InexactFloat64()
}

// unitOrder lists the units present in records: catalog units first, then
// any others in lexical order.
func unitOrder(p Pillar, records UnitRecords) []string {
	if len(records) == 0 {
		return nil
	}
	out := make([]string, 0, len(records))
	for _, u := range pillarCatalog[p].units {
		if _, ok := records[u]; ok {
			out = append(out, u)
		}
	}
	if len(out) == len(records) {
		return out
	}
	var extra []string
	for _, u := range slices.Collect(maps.Keys(records)) {
		if !p.HasUnit(u) {
			extra = append(extra, u)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}

type accumulator struct {
	revenue, expense, financial decimal.Decimal
}

func (a *accumulator) add(r Record) {
	a.revenue = a.revenue.Add(decimal.NewFromFloat(r.Revenue))
	a.expense = a.expense.Add(decimal.NewFromFloat(r.Expense))
	a.financial = a.financial.Add(decimal.NewFromFloat(r.FinancialRevenue))
}

func (a *accumulator) addTotals(t Totals) {
	a.add(Record{Revenue: t.Revenue, Expense: t.Expense, FinancialRevenue: t.FinancialRevenue})
}

func (a accumulator) totals() Totals {
	return Totals{
		Revenue:          a.revenue.InexactFloat64(),
		Expense:          a.expense.InexactFloat64(),
		FinancialRevenue: a.financial.InexactFloat64(),
		Balance:          a.revenue.Sub(a.expense).InexactFloat64(),
	}
}
