package http

import (
	"html/template"
	"math"
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"secovi/internal/core"
)

var ptBR = message.NewPrinter(language.BrazilianPortuguese)

// formatBRL renders v as Brazilian currency, e.g. "R$ 1.500,50".
func formatBRL(v float64) string {
	if v < 0 {
		return "-R$ " + ptBR.Sprintf("%.2f", -v)
	}
	return "R$ " + ptBR.Sprintf("%.2f", v)
}

func formatPercent(v float64) string {
	return ptBR.Sprintf("%.1f", v) + "%"
}

// formatInput renders a stored figure for an input box. Inputs take a dot
// as decimal separator.
func formatInput(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// barWidth scales v against max into a 0-100 percent bar, with a visible
// minimum for tiny non-zero values.
func barWidth(v, max float64) int {
	if max <= 0 || v <= 0 {
		return 0
	}
	w := int(math.Round(v * 100 / max))
	if w < 2 {
		w = 2
	}
	if w > 100 {
		w = 100
	}
	return w
}

var templateFuncs = template.FuncMap{
	"brl":     formatBRL,
	"percent": formatPercent,
	"input":   formatInput,
	"months":  func() []core.Month { return core.Months },
	"pillars": func() []core.Pillar { return core.Pillars },
	"fields":  func() []core.Field { return core.Fields },
	"fieldLabel": func(f core.Field) string {
		switch f {
		case core.FieldRevenue:
			return "Receita Bruta"
		case core.FieldFinancialRevenue:
			return "Receita Financeira"
		case core.FieldExpense:
			return "Despesa"
		}
		return string(f)
	},
	"negative": func(v float64) bool { return v < 0 },
}
