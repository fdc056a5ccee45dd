package core

import (
	"reflect"
	"testing"
)

func sampleLedger(t *testing.T) Ledger {
	t.Helper()
	l := Ledger{}
	set := func(m Month, p Pillar, u string, f Field, v string) {
		if _, err := l.SetField(2025, m, p, u, f, v); err != nil {
			t.Fatalf("set %s/%s/%s/%s: %v", m, p, u, f, err)
		}
	}
	set(Jan, Secovi, "Sede", FieldRevenue, "1000.5")
	set(Jan, Secovi, "Sede", FieldExpense, "200.25")
	set(Fev, Secovi, "Curitiba", FieldRevenue, "300")
	set(Fev, Secovi, "Curitiba", FieldFinancialRevenue, "50.5")
	set(Mar, Agentes, "UNIHAB", FieldRevenue, "800")
	set(Mar, Agentes, "UNIHAB", FieldExpense, "900.75")
	set(Dez, Med, "Maringá", FieldExpense, "64")
	set(Dez, Med, "Maringá", FieldFinancialRevenue, "16.25")
	return l
}

func TestAggregateSingleMonthExample(t *testing.T) {
	l := Ledger{}
	if _, err := l.SetField(2025, Jan, Secovi, "Sede", FieldRevenue, "1500.5"); err != nil {
		t.Fatalf("set field: %v", err)
	}
	s := Aggregate(l, Query{Year: 2025, Month: Jan})
	p, ok := s.Pillar(Secovi)
	if !ok {
		t.Fatalf("missing Secovi pillar")
	}
	if p.Name != "Secovi-PR" || p.Revenue != 1500.5 || p.Balance != 1500.5 || p.Expense != 0 {
		t.Fatalf("unexpected pillar totals: %+v", p)
	}
	if s.Totals.Revenue != 1500.5 || s.Totals.Balance != 1500.5 {
		t.Fatalf("unexpected system totals: %+v", s.Totals)
	}
}

func TestAggregateAccumulatedEqualsSumOfMonths(t *testing.T) {
	l := sampleLedger(t)
	acc := Aggregate(l, Query{Year: 2025})

	var sum Totals
	pillarSums := map[Pillar]Totals{}
	for _, m := range Months {
		s := Aggregate(l, Query{Year: 2025, Month: m})
		sum = addTotals(sum, s.Totals)
		for _, p := range s.Pillars {
			pillarSums[p.Pillar] = addTotals(pillarSums[p.Pillar], p.Totals)
		}
	}
	if acc.Totals != sum {
		t.Fatalf("system totals: accumulated %+v, sum of months %+v", acc.Totals, sum)
	}
	for _, p := range acc.Pillars {
		if p.Totals != pillarSums[p.Pillar] {
			t.Fatalf("%s: accumulated %+v, sum of months %+v", p.Pillar, p.Totals, pillarSums[p.Pillar])
		}
	}
}

func addTotals(a, b Totals) Totals {
	return Totals{
		Revenue:          a.Revenue + b.Revenue,
		Expense:          a.Expense + b.Expense,
		FinancialRevenue: a.FinancialRevenue + b.FinancialRevenue,
		Balance:          a.Balance + b.Balance,
	}
}

func TestAggregateIsPure(t *testing.T) {
	l := sampleLedger(t)
	before := l.Clone()
	q := Query{Year: 2025, Month: Fev, IncludeFinancial: true}
	first := Aggregate(l, q)
	second := Aggregate(l, q)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("aggregate is not deterministic")
	}
	if !reflect.DeepEqual(before, l) {
		t.Fatalf("aggregate mutated the ledger")
	}
}

func TestAggregateMissingYear(t *testing.T) {
	s := Aggregate(sampleLedger(t), Query{Year: 1999})
	if len(s.Pillars) != 0 {
		t.Fatalf("expected no pillars, got %d", len(s.Pillars))
	}
	if s.Totals != (Totals{}) {
		t.Fatalf("expected zero totals, got %+v", s.Totals)
	}
}

func TestAggregateFinancialToggle(t *testing.T) {
	l := sampleLedger(t)
	with := Aggregate(l, Query{Year: 2025, IncludeFinancial: true})
	without := Aggregate(l, Query{Year: 2025})

	if with.Totals != without.Totals {
		t.Fatalf("toggle must not change the raw totals")
	}
	if with.Totals.FinancialRevenue != 66.75 {
		t.Fatalf("unexpected financial revenue %v", with.Totals.FinancialRevenue)
	}
	if got, want := with.Result()-without.Result(), 66.75; got != want {
		t.Fatalf("expected toggle to add %v to the result, got %v", want, got)
	}
}

func TestAggregateUnitBreakdown(t *testing.T) {
	s := Aggregate(sampleLedger(t), Query{Year: 2025})
	p, _ := s.Pillar(Secovi)
	if len(p.Units) != len(Secovi.Units()) {
		t.Fatalf("expected every unit in breakdown, got %d", len(p.Units))
	}
	if p.Units[0].Name != "Sede" {
		t.Fatalf("expected catalog order, got %s first", p.Units[0].Name)
	}
	sede, ok := p.Unit("Sede")
	if !ok || sede.Revenue != 1000.5 || sede.Expense != 200.25 || sede.Balance != 800.25 {
		t.Fatalf("unexpected Sede totals: %+v", sede)
	}
	sub := s.Subtotal(Secovi, Agentes)
	if sub.Revenue != 2100.5 || sub.Expense != 1101 {
		t.Fatalf("unexpected subtotal: %+v", sub)
	}
}

func TestPillarSumUnits(t *testing.T) {
	l := Ledger{}
	_, _ = l.SetField(2025, Jan, Secovi, "Sede", FieldRevenue, "0.1")
	_, _ = l.SetField(2025, Jan, Secovi, "Curitiba", FieldRevenue, "0.2")
	_, _ = l.SetField(2025, Jan, Secovi, "Londrina", FieldExpense, "99")

	p, _ := Aggregate(l, Query{Year: 2025}).Pillar(Secovi)
	got := p.SumUnits([]string{"Sede", "Curitiba", "Atlantis"})
	want := Totals{Revenue: 0.3, Balance: 0.3}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
	if got := p.SumUnits(nil); got != (Totals{}) {
		t.Fatalf("expected zero totals for no units, got %+v", got)
	}
}

func TestMonthlySeries(t *testing.T) {
	l := sampleLedger(t)
	series := MonthlySeries(l, 2025, Secovi, []string{"Curitiba"}, true)
	if len(series) != 12 {
		t.Fatalf("expected 12 points, got %d", len(series))
	}
	feb := series[1]
	if feb.Month != Fev || feb.Revenue != 350.5 || feb.Result != 350.5 {
		t.Fatalf("unexpected February point: %+v", feb)
	}
	if series[0].Revenue != 0 {
		t.Fatalf("Sede is not selected, expected zero in January, got %v", series[0].Revenue)
	}

	without := MonthlySeries(l, 2025, Secovi, []string{"Curitiba"}, false)
	if without[1].Revenue != 300 {
		t.Fatalf("expected financial revenue excluded, got %v", without[1].Revenue)
	}
}

func TestShares(t *testing.T) {
	l := Ledger{}
	_, _ = l.SetField(2025, Jan, Med, "Curitiba", FieldRevenue, "300")
	_, _ = l.SetField(2025, Jan, Med, "Londrina", FieldRevenue, "50")
	_, _ = l.SetField(2025, Jan, Med, "Londrina", FieldFinancialRevenue, "50")
	_, _ = l.SetField(2025, Jan, Med, "Londrina", FieldExpense, "10")
	p, _ := Aggregate(l, Query{Year: 2025}).Pillar(Med)

	shares := Shares(p, Med.Units())
	if len(shares) != 2 {
		t.Fatalf("expected units without figures to be dropped, got %+v", shares)
	}
	if shares[0].Name != "Curitiba" || shares[0].RevenuePct != 75 || shares[0].ExpensePct != 0 {
		t.Fatalf("unexpected Curitiba share: %+v", shares[0])
	}
	if shares[1].Revenue != 100 || shares[1].RevenuePct != 25 || shares[1].ExpensePct != 100 {
		t.Fatalf("unexpected Londrina share: %+v", shares[1])
	}

	hidden := Shares(p, []string{"Londrina"})
	if len(hidden) != 1 || hidden[0].RevenuePct != 100 {
		t.Fatalf("expected only visible units, got %+v", hidden)
	}
}
