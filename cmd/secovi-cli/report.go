package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"secovi/internal/core"
)

var ptBR = message.NewPrinter(language.BrazilianPortuguese)

func brl(v float64) string {
	if v < 0 {
		return "-R$ " + ptBR.Sprintf("%.2f", -v)
	}
	return "R$ " + ptBR.Sprintf("%.2f", v)
}

// summaryMarkdown renders an aggregation as a markdown report.
func summaryMarkdown(sum core.Summary, expand bool) string {
	var b strings.Builder
	period := "Acumulado"
	if sum.Month != "" {
		period = string(sum.Month)
	}
	fmt.Fprintf(&b, "# Consolidado %d (%s)\n\n", sum.Year, period)
	if sum.IncludeFinancial {
		b.WriteString("Receitas incluem a receita financeira.\n\n")
	} else {
		b.WriteString("Receitas sem a receita financeira.\n\n")
	}

	fin := sum.IncludeFinancial
	fmt.Fprintf(&b, "- **Receita:** %s\n", brl(sum.Totals.DisplayRevenue(fin)))
	fmt.Fprintf(&b, "- **Receita financeira:** %s\n", brl(sum.Totals.FinancialRevenue))
	fmt.Fprintf(&b, "- **Despesa:** %s\n", brl(sum.Totals.Expense))
	fmt.Fprintf(&b, "- **Resultado:** %s\n", brl(sum.Result()))
	fmt.Fprintf(&b, "- **Resultado operacional:** %s\n\n", brl(sum.Totals.Balance))

	b.WriteString("| Pilar | Receita | Despesa | Resultado |\n|---|---:|---:|---:|\n")
	row := func(name string, t core.Totals) {
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", name, brl(t.DisplayRevenue(fin)), brl(t.Expense), brl(t.Result(fin)))
	}
	for _, p := range sum.Pillars {
		row("**"+p.Name+"**", p.Totals)
		if expand {
			for _, u := range p.Units {
				row("  "+u.Name, u.Totals)
			}
		}
	}
	row("Subtotal (Secovi + Agentes)", sum.Subtotal(core.Secovi, core.Agentes))
	row("**Total Geral**", sum.Totals)
	return b.String()
}

func usersMarkdown(users []core.User, current core.User, signedIn bool) string {
	var b strings.Builder
	b.WriteString("# Usuários\n\n| ID | Nome | Login | |\n|---:|---|---|---|\n")
	for _, u := range users {
		mark := ""
		if signedIn && u.ID == current.ID {
			mark = "sessão ativa"
		}
		fmt.Fprintf(&b, "| %d | %s | %s | %s |\n", u.ID, u.Name, u.Login, mark)
	}
	return b.String()
}

// printMarkdown renders md for the terminal, or prints it as is when raw
// is set or rendering fails.
func printMarkdown(md string, raw bool) {
	if raw {
		fmt.Print(md)
		return
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(120))
	if err == nil {
		var out string
		if out, err = r.Render(md); err == nil {
			fmt.Fprint(os.Stdout, out)
			return
		}
	}
	fmt.Print(md)
}
