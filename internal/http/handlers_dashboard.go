package http

import (
	"net/http"
	"slices"

	"secovi/internal/core"
	"secovi/internal/log"
)

// navigateYear materialises the selected year the first time it is viewed.
func (s *Server) navigateYear(r *http.Request, year int) {
	if s.ledger.MaterializeYear(year) {
		log.FromContext(r.Context()).WithComponent(log.ComponentLedger).InfoContext(r.Context(), "Year materialised",
			log.FieldOperation, log.OpMaterialize,
			log.FieldYear, year)
	}
}

type totalsRow struct {
	Name      string
	Color     string
	Link      string
	Revenue   float64
	Financial float64
	Expense   float64
	Result    float64
	Units     []totalsRow
}

func newTotalsRow(name string, t core.Totals, includeFinancial bool) totalsRow {
	return totalsRow{
		Name:      name,
		Revenue:   t.DisplayRevenue(includeFinancial),
		Financial: t.FinancialRevenue,
		Expense:   t.Expense,
		Result:    t.Result(includeFinancial),
	}
}

type bar struct {
	Label        string
	Color        string
	Revenue      float64
	Expense      float64
	Result       float64
	RevenueWidth int
	ExpenseWidth int
}

type dashboardData struct {
	page
	Months []monthLink

	Revenue         float64
	RevenueGross    float64
	Financial       float64
	Expense         float64
	Result          float64
	OperationalRslt float64
	PillarFinancial []totalsRow

	Rows     []totalsRow
	Subtotal totalsRow
	Total    totalsRow
	Bars     []bar

	ToggleFinancialURL string
	ToggleExpandURL    string
}

type monthLink struct {
	Label  string
	URL    string
	Active bool
}

func monthLinks(sel Selection, path string) []monthLink {
	links := []monthLink{{Label: "Acumulado", URL: sel.WithMonth("").URL(path), Active: sel.Month == ""}}
	for _, m := range core.Months {
		links = append(links, monthLink{Label: string(m), URL: sel.WithMonth(m).URL(path), Active: sel.Month == m})
	}
	return links
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	sel := ParseSelection(r.URL.Query(), s.defaultYear)
	s.navigateYear(r, sel.Year)

	sum := s.ledger.Summary(sel.Query())
	fin := sel.IncludeFinancial

	data := dashboardData{
		page:               s.newPage(r, "Consolidado", "dashboard", sel),
		Months:             monthLinks(sel, "/"),
		Revenue:            sum.Totals.DisplayRevenue(fin),
		RevenueGross:       sum.Totals.Revenue,
		Financial:          sum.Totals.FinancialRevenue,
		Expense:            sum.Totals.Expense,
		Result:             sum.Result(),
		OperationalRslt:    sum.Totals.Balance,
		Subtotal:           newTotalsRow("Subtotal (Secovi + Agentes)", sum.Subtotal(core.Secovi, core.Agentes), fin),
		Total:              newTotalsRow("Total Geral", sum.Totals, fin),
		ToggleFinancialURL: sel.ToggleFinancial().URL("/"),
		ToggleExpandURL:    sel.ToggleExpand().URL("/"),
	}

	var max float64
	for _, p := range sum.Pillars {
		row := newTotalsRow(p.Name, p.Totals, fin)
		row.Color = p.Color
		row.Link = sel.URL("/pillar/" + p.Pillar.Slug())
		if sel.Expand {
			for _, u := range p.Units {
				row.Units = append(row.Units, newTotalsRow(u.Name, u.Totals, fin))
			}
		}
		data.Rows = append(data.Rows, row)
		data.PillarFinancial = append(data.PillarFinancial, totalsRow{Name: p.Name, Color: p.Color, Financial: p.FinancialRevenue})
		max = maxOf(max, row.Revenue, row.Expense)
	}
	for _, row := range data.Rows {
		data.Bars = append(data.Bars, bar{
			Label:        row.Name,
			Color:        row.Color,
			Revenue:      row.Revenue,
			Expense:      row.Expense,
			Result:       row.Result,
			RevenueWidth: barWidth(row.Revenue, max),
			ExpenseWidth: barWidth(row.Expense, max),
		})
	}

	s.render(w, r, http.StatusOK, "dashboard.html", data)
}

type unitToggle struct {
	Name    string
	Visible bool
	URL     string
}

type shareRow struct {
	core.Share
	RevenueWidth int
	ExpenseWidth int
}

type pillarData struct {
	page
	Pillar  core.Pillar
	Label   string
	Color   string
	Months  []monthLink
	Toggles []unitToggle
	Series  []bar
	Cards   []totalsRow
	Shares  []shareRow
	Total   totalsRow

	ToggleFinancialURL string
}

func (s *Server) handlePillar(w http.ResponseWriter, r *http.Request) {
	p, err := core.ParsePillar(r.PathValue("key"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	sel := ParseSelection(r.URL.Query(), s.defaultYear)
	s.navigateYear(r, sel.Year)
	path := "/pillar/" + p.Slug()
	visible := sel.VisibleUnits(p)
	fin := sel.IncludeFinancial

	data := pillarData{
		page:               s.newPage(r, p.Label(), string(p), sel),
		Pillar:             p,
		Label:              p.Label(),
		Color:              p.Color(),
		Months:             monthLinks(sel, path),
		ToggleFinancialURL: sel.ToggleFinancial().URL(path),
	}
	for _, u := range p.Units() {
		data.Toggles = append(data.Toggles, unitToggle{
			Name:    u,
			Visible: slices.Contains(visible, u),
			URL:     sel.ToggleUnit(p, u).URL(path),
		})
	}

	points := s.ledger.Series(sel.Year, p, visible, fin)
	var max float64
	for _, pt := range points {
		max = maxOf(max, pt.Revenue, pt.Expense)
	}
	for _, pt := range points {
		data.Series = append(data.Series, bar{
			Label:        string(pt.Month),
			Revenue:      pt.Revenue,
			Expense:      pt.Expense,
			Result:       pt.Result,
			RevenueWidth: barWidth(pt.Revenue, max),
			ExpenseWidth: barWidth(pt.Expense, max),
		})
	}

	sum := s.ledger.Summary(sel.Query())
	pt, _ := sum.Pillar(p)
	for _, name := range visible {
		u, _ := pt.Unit(name)
		data.Cards = append(data.Cards, newTotalsRow(name, u.Totals, fin))
	}
	data.Total = newTotalsRow("Total visível", pt.SumUnits(visible), fin)

	for _, sh := range core.Shares(pt, visible) {
		data.Shares = append(data.Shares, shareRow{
			Share:        sh,
			RevenueWidth: barWidth(sh.RevenuePct, 100),
			ExpenseWidth: barWidth(sh.ExpensePct, 100),
		})
	}

	s.render(w, r, http.StatusOK, "pillar.html", data)
}

// handleStatus renders the saving indicator polled by the layout.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "status", struct {
		Saving   bool
		Revision int64
	}{s.ledger.Saving(), s.ledger.Revision()})
}

func maxOf(cur float64, vals ...float64) float64 {
	for _, v := range vals {
		if v > cur {
			cur = v
		}
	}
	return cur
}
