package core

import (
	"fmt"
	"slices"
)

// Month is one of the twelve fixed month labels used as ledger keys.
type Month string

const (
	Jan Month = "Jan"
	Fev Month = "Fev"
	Mar Month = "Mar"
	Abr Month = "Abr"
	Mai Month = "Mai"
	Jun Month = "Jun"
	Jul Month = "Jul"
	Ago Month = "Ago"
	Set Month = "Set"
	Out Month = "Out"
	Nov Month = "Nov"
	Dez Month = "Dez"
)

// Months lists the month labels in calendar order.
var Months = []Month{Jan, Fev, Mar, Abr, Mai, Jun, Jul, Ago, Set, Out, Nov, Dez}

// ParseMonth matches s against the fixed labels. Matching is exact.
func ParseMonth(s string) (Month, error) {
	m := Month(s)
	if !slices.Contains(Months, m) {
		return "", fmt.Errorf("%w: %q", ErrUnknownMonth, s)
	}
	return m, nil
}

// Pillar is one of the three top-level groupings of the federation.
type Pillar string

const (
	Secovi  Pillar = "secovi"
	Agentes Pillar = "agentes"
	Med     Pillar = "med"
)

// Pillars lists the pillars in display order.
var Pillars = []Pillar{Secovi, Agentes, Med}

var (
	secoviUnits  = []string{"Sede", "Curitiba", "Londrina", "Maringá", "Cascavel", "Ponta Grossa", "Foz do Iguaçu", "Litoral"}
	agentesUnits = []string{"UNIHAB", "INPESPAR", "C.M.A. PR"}
	medUnits     = []string{"Curitiba", "Londrina", "Maringá"}
)

type pillarInfo struct {
	label    string
	csvLabel string
	slug     string
	color    string
	units    []string
}

var pillarCatalog = map[Pillar]pillarInfo{
	Secovi:  {label: "Secovi-PR", csvLabel: "Secovi-PR", slug: "secovipr", color: "#C2410C", units: secoviUnits},
	Agentes: {label: "Agentes de Serviço", csvLabel: "Agentes", slug: "agentes", color: "#1C1917", units: agentesUnits},
	Med:     {label: "Secovimed", csvLabel: "Secovimed", slug: "secovimed", color: "#2563eb", units: medUnits},
}

// Valid reports whether p is one of the known pillars.
func (p Pillar) Valid() bool {
	_, ok := pillarCatalog[p]
	return ok
}

// Label is the display name of the pillar.
func (p Pillar) Label() string { return pillarCatalog[p].label }

// CSVLabel is the label written to the import template.
func (p Pillar) CSVLabel() string { return pillarCatalog[p].csvLabel }

// Slug is the URL segment of the pillar drill-down view.
func (p Pillar) Slug() string { return pillarCatalog[p].slug }

// Color is the chart color of the pillar.
func (p Pillar) Color() string { return pillarCatalog[p].color }

// Units returns a copy of the fixed unit list of the pillar.
func (p Pillar) Units() []string {
	return slices.Clone(pillarCatalog[p].units)
}

// HasUnit reports whether unit belongs to the fixed unit list of p.
func (p Pillar) HasUnit(unit string) bool {
	return slices.Contains(pillarCatalog[p].units, unit)
}

// ParsePillar accepts either the storage key ("secovi") or the view slug ("secovipr").
func ParsePillar(s string) (Pillar, error) {
	for _, p := range Pillars {
		if string(p) == s || p.Slug() == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPillar, s)
}

// PillarFromCSVLabel maps a pillar label from the tabular import format.
//
// Unrecognised labels fall into Med; the second return value is false in
// that case so callers can report it.
func PillarFromCSVLabel(label string) (Pillar, bool) {
	switch label {
	case "Secovi-PR":
		return Secovi, true
	case "Agentes", "Agentes de Serviço":
		return Agentes, true
	case "Secovimed":
		return Med, true
	default:
		return Med, false
	}
}

// UnitCount is the number of units across all pillars.
func UnitCount() int {
	n := 0
	for _, p := range Pillars {
		n += len(pillarCatalog[p].units)
	}
	return n
}

// InitialYears are the years materialised in a fresh ledger.
var InitialYears = []int{2028, 2027, 2026, 2025, 2024, 2023, 2022, 2021, 2020}
