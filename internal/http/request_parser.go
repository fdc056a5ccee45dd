package http

import (
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"secovi/internal/core"
)

const (
	minYear = 1900
	maxYear = 9999
)

// Selection is the view state carried in the query string: year, optional
// month (empty means accumulated), financial revenue toggle, visible units
// of a pillar and the unit breakdown flag.
type Selection struct {
	Year             int
	Month            core.Month
	IncludeFinancial bool
	Expand           bool

	units    []string
	hasUnits bool
}

// ParseSelection reads the selection from query, falling back to
// defaultYear, the accumulated view and the toggle switched on.
func ParseSelection(query url.Values, defaultYear int) Selection {
	sel := Selection{Year: defaultYear, IncludeFinancial: true}
	if y, ok := parseYear(query.Get("year")); ok {
		sel.Year = y
	}
	if m, err := core.ParseMonth(strings.TrimSpace(query.Get("month"))); err == nil {
		sel.Month = m
	}
	if query.Get("fin") == "0" {
		sel.IncludeFinancial = false
	}
	sel.Expand = query.Get("expand") == "1"
	if vals, ok := query["units"]; ok {
		sel.hasUnits = true
		for _, u := range vals {
			if u != "" && !slices.Contains(sel.units, u) {
				sel.units = append(sel.units, u)
			}
		}
	}
	return sel
}

func parseYear(s string) (int, bool) {
	y, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || y < minYear || y > maxYear {
		return 0, false
	}
	return y, true
}

// Query is the aggregation query of the selection.
func (s Selection) Query() core.Query {
	return core.Query{Year: s.Year, Month: s.Month, IncludeFinancial: s.IncludeFinancial}
}

// VisibleUnits returns the selected units of p in catalog order. Without
// a units parameter every unit is visible.
func (s Selection) VisibleUnits(p core.Pillar) []string {
	all := p.Units()
	if !s.hasUnits {
		return all
	}
	return slices.DeleteFunc(all, func(u string) bool { return !slices.Contains(s.units, u) })
}

// Values encodes the selection back into query parameters.
func (s Selection) Values() url.Values {
	v := url.Values{}
	v.Set("year", strconv.Itoa(s.Year))
	if s.Month != "" {
		v.Set("month", string(s.Month))
	}
	if !s.IncludeFinancial {
		v.Set("fin", "0")
	}
	if s.Expand {
		v.Set("expand", "1")
	}
	if s.hasUnits {
		if len(s.units) == 0 {
			v.Set("units", "")
		}
		for _, u := range s.units {
			v.Add("units", u)
		}
	}
	return v
}

// URL renders the selection as a link to path.
func (s Selection) URL(path string) string {
	return path + "?" + s.Values().Encode()
}

func (s Selection) WithYear(y int) Selection {
	s.Year = y
	return s
}

func (s Selection) WithMonth(m core.Month) Selection {
	s.Month = m
	return s
}

func (s Selection) ToggleFinancial() Selection {
	s.IncludeFinancial = !s.IncludeFinancial
	return s
}

func (s Selection) ToggleExpand() Selection {
	s.Expand = !s.Expand
	return s
}

// ToggleUnit flips the visibility of unit within pillar p.
func (s Selection) ToggleUnit(p core.Pillar, unit string) Selection {
	visible := s.VisibleUnits(p)
	if i := slices.Index(visible, unit); i >= 0 {
		visible = slices.Delete(visible, i, i+1)
	} else {
		visible = append(visible, unit)
	}
	s.units = visible
	s.hasUnits = true
	return s
}

// EntryForm is one figure posted from the data entry screen.
type EntryForm struct {
	Year   int
	Month  core.Month
	Pillar core.Pillar
	Unit   string
	Field  core.Field
	Value  string
}

// ParseEntryForm validates the slot of a data entry post. The value itself
// is left raw; the ledger coerces it.
func ParseEntryForm(form url.Values) (EntryForm, error) {
	var f EntryForm
	y, ok := parseYear(form.Get("year"))
	if !ok {
		return f, errInvalidYear
	}
	m, err := core.ParseMonth(form.Get("month"))
	if err != nil {
		return f, err
	}
	p, err := core.ParsePillar(form.Get("pillar"))
	if err != nil {
		return f, err
	}
	field, err := core.ParseField(form.Get("field"))
	if err != nil {
		return f, err
	}
	return EntryForm{
		Year:   y,
		Month:  m,
		Pillar: p,
		Unit:   sanitizeInput(form.Get("unit")),
		Field:  field,
		Value:  sanitizeInput(form.Get("value")),
	}, nil
}

// sanitizeInput trims and drops control characters other than tab and newlines.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}

// isHTMX reports whether the request came from an htmx attribute.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

func confirmed(r *http.Request) bool {
	return r.FormValue("confirm") == "yes"
}
