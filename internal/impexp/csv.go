package impexp

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"secovi/internal/core"
)

// TemplateFilename is the download name of the bulk-entry template.
const TemplateFilename = "modelo_importacao_secovi.csv"

// TemplateHeader lists the columns of the bulk-entry format.
var TemplateHeader = []string{"Ano", "Mes", "Pilar", "Unidade", "Receita Bruta", "Receita Financeira", "Despesa"}

var utf8BOM = []byte("\uFEFF")

// WriteTemplate writes a UTF-8 (with BOM) template for year holding one
// zero row per month and unit, months in calendar order and units in catalog
// order. Rows are separated by "\n" and the last row has no line break.
func WriteTemplate(w io.Writer, year int) error {
	var buf bytes.Buffer
	buf.Write(utf8BOM)

	cw := csv.NewWriter(&buf)
	cw.Comma = ';'
	if err := cw.Write(TemplateHeader); err != nil {
		return fmt.Errorf("write template header: %w", err)
	}
	y := strconv.Itoa(year)
	for _, m := range core.Months {
		for _, p := range core.Pillars {
			for _, u := range p.Units() {
				if err := cw.Write([]string{y, string(m), p.CSVLabel(), u, "0", "0", "0"}); err != nil {
					return fmt.Errorf("write template row: %w", err)
				}
			}
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("write template: %w", err)
	}

	out := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
	if _, err := w.Write(out); err != nil {
		return fmt.Errorf("write template: %w", err)
	}
	return nil
}

// ImportResult summarises a bulk import.
type ImportResult struct {
	// Applied counts rows written to the ledger.
	Applied int
	// Skipped counts data rows that addressed no existing slot.
	Skipped int
	// UnknownPillarLabels counts rows whose pillar label was not recognised
	// and was read as Secovimed.
	UnknownPillarLabels int
	// Years lists the years touched by the file, in order of first appearance.
	Years []int
}

// ImportCSV applies a bulk-entry file to l.
//
// The first line is a header and is ignored. Each following non-blank line
// is year;month;pillar;unit;revenue;financialRevenue;expense. The year of
// every row with a numeric year is materialised. A row replaces the whole
// addressed record, and only when that record already exists; other rows are
// skipped. Figures accept a comma as decimal separator and default to 0.
func ImportCSV(r io.Reader, l core.Ledger) (ImportResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return ImportResult{}, fmt.Errorf("read csv: %w", err)
	}

	var res ImportResult
	seen := map[int]bool{}
	lines := strings.Split(string(data), "\n")
	for i := 1; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		cols := strings.Split(line, ";")
		col := func(n int) string {
			if n < len(cols) {
				return cols[n]
			}
			return ""
		}

		year, ok := core.ParseIntPrefix(col(0))
		if !ok {
			res.Skipped++
			continue
		}
		l.MaterializeYear(year)
		if !seen[year] {
			seen[year] = true
			res.Years = append(res.Years, year)
		}

		pillar, known := core.PillarFromCSVLabel(col(2))
		if !known {
			res.UnknownPillarLabels++
		}
		month, unit := core.Month(col(1)), col(3)
		if !l.Has(year, month, pillar, unit) {
			res.Skipped++
			continue
		}
		rec := core.Record{
			Revenue:          core.ParseCommaNumber(col(4)),
			FinancialRevenue: core.ParseCommaNumber(col(5)),
			Expense:          core.ParseCommaNumber(col(6)),
		}
		if err := l.Put(year, month, pillar, unit, rec); err != nil {
			res.Skipped++
			continue
		}
		res.Applied++
	}
	return res, nil
}
