package http

import (
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"secovi/internal/amqp"
	"secovi/internal/core"
	"secovi/internal/impexp"
	"secovi/internal/log"
)

// maxUploadBytes bounds restore and import uploads.
const maxUploadBytes = 32 << 20

var errInvalidYear = errors.New("ano inválido")

type entryCell struct {
	Field core.Field
	Value string
}

type entryRow struct {
	Unit  string
	Cells []entryCell
}

type entrySection struct {
	Pillar core.Pillar
	Label  string
	Color  string
	Rows   []entryRow
}

type adminData struct {
	page
	Month    core.Month
	Months   []monthLink
	Sections []entrySection
}

// adminTarget is the admin page for the selection, used after form posts.
func adminTarget(year int, month core.Month) string {
	v := url.Values{}
	v.Set("year", strconv.Itoa(year))
	if month != "" {
		v.Set("month", string(month))
	}
	return "/admin?" + v.Encode()
}

func (s *Server) handleAdmin(w http.ResponseWriter, r *http.Request) {
	sel := ParseSelection(r.URL.Query(), s.defaultYear)
	if sel.Month == "" {
		sel.Month = core.Jan
	}
	s.navigateYear(r, sel.Year)

	data := adminData{
		page:  s.newPage(r, "Lançamentos", "admin", sel),
		Month: sel.Month,
	}
	for _, m := range core.Months {
		data.Months = append(data.Months, monthLink{Label: string(m), URL: adminTarget(sel.Year, m), Active: m == sel.Month})
	}

	md := s.ledger.YearData(sel.Year)[sel.Month]
	for _, p := range core.Pillars {
		sec := entrySection{Pillar: p, Label: p.Label(), Color: p.Color()}
		for _, u := range p.Units() {
			rec := md[p][u]
			row := entryRow{Unit: u}
			for _, f := range core.Fields {
				row.Cells = append(row.Cells, entryCell{Field: f, Value: formatInput(rec.Get(f))})
			}
			sec.Rows = append(sec.Rows, row)
		}
		data.Sections = append(data.Sections, sec)
	}

	s.render(w, r, http.StatusOK, "admin.html", data)
}

// handleEntry stores one figure typed into the data entry table.
func (s *Server) handleEntry(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		BadRequestError("Formato de requisição inválido").Write(w)
		return
	}
	entry, err := ParseEntryForm(r.PostForm)
	if err != nil {
		UnprocessableEntityError("Lançamento inválido: " + err.Error()).Write(w)
		return
	}

	v, err := s.ledger.SetField(entry.Year, entry.Month, entry.Pillar, entry.Unit, entry.Field, entry.Value)
	if err != nil {
		UnprocessableEntityError("Lançamento inválido: " + err.Error()).Write(w)
		return
	}
	rev := s.ledger.Revision()
	s.structured.LogLedgerChange(r.Context(), log.OpSetField, rev,
		log.NewFields().WithSlot(entry.Year, string(entry.Month), string(entry.Pillar), entry.Unit))

	if !isHTMX(r) {
		redirectFlash(w, r, adminTarget(entry.Year, entry.Month), NotificationSuccess, "Valor salvo.")
		return
	}
	NewHTMXResponse().
		TriggerLedgerChanged(entry.Year, rev).
		BodyHTML(`<span class="saved">` + template.HTMLEscapeString(formatBRL(v)) + `</span>`).
		Write(w)
}

func (s *Server) handleBackup(w http.ResponseWriter, r *http.Request) {
	snapshot := s.ledger.Snapshot()
	name := impexp.BackupFilename(s.now())
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	if err := impexp.ExportBackup(w, snapshot); err != nil {
		s.structured.LogError(r.Context(), "Backup export failed", err, log.ComponentImpExp, log.OpExport, nil)
		return
	}
	log.FromContext(r.Context()).WithComponent(log.ComponentImpExp).InfoContext(r.Context(), "Backup exported",
		log.FieldOperation, log.OpExport, "filename", name, "years", len(snapshot))
}

// uploadedFile returns the multipart file field named "file".
func uploadedFile(r *http.Request) (io.ReadCloser, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, fmt.Errorf("formulário inválido: %w", err)
	}
	f, _, err := r.FormFile("file")
	if err != nil {
		return nil, errors.New("nenhum arquivo enviado")
	}
	return f, nil
}

// handleRestore replaces the whole ledger with an uploaded backup.
func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	f, err := uploadedFile(r)
	if err != nil {
		redirectFlash(w, r, "/admin", NotificationError, err.Error())
		return
	}
	defer f.Close()
	if !confirmed(r) {
		redirectFlash(w, r, "/admin", NotificationWarning, "Confirme a substituição de todos os dados para restaurar o backup.")
		return
	}

	l, err := impexp.ParseBackup(f)
	if err != nil {
		s.structured.LogError(r.Context(), "Backup restore rejected", err, log.ComponentImpExp, log.OpRestore, nil)
		redirectFlash(w, r, "/admin", NotificationError, "Arquivo de backup inválido. Nenhum dado foi alterado.")
		return
	}
	s.ledger.ReplaceAll(l)
	s.structured.LogLedgerChange(r.Context(), log.OpRestore, s.ledger.Revision(), nil)
	redirectFlash(w, r, "/admin", NotificationSuccess, fmt.Sprintf("Backup restaurado (%d anos).", len(l)))
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil || !confirmed(r) {
		redirectFlash(w, r, "/admin", NotificationWarning, "Confirme para apagar todos os dados.")
		return
	}
	if err := s.ledger.Clear(r.Context()); err != nil {
		s.structured.LogError(r.Context(), "Ledger clear failed", err, log.ComponentLedger, log.OpClear, nil)
		redirectFlash(w, r, "/admin", NotificationError, "Não foi possível apagar os dados.")
		return
	}
	s.structured.LogLedgerChange(r.Context(), log.OpClear, s.ledger.Revision(), nil)
	redirectFlash(w, r, "/", NotificationSuccess, "Banco de dados apagado.")
}

func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	year, ok := parseYear(r.URL.Query().Get("year"))
	if !ok {
		year = s.defaultYear
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+impexp.TemplateFilename+`"`)
	if err := impexp.WriteTemplate(w, year); err != nil {
		s.structured.LogError(r.Context(), "Template export failed", err, log.ComponentImpExp, log.OpExport, nil)
	}
}

// handleImport applies an uploaded bulk-entry sheet. The file is parsed
// and applied against a copy, so a read failure changes nothing.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	f, err := uploadedFile(r)
	if err != nil {
		redirectFlash(w, r, "/admin", NotificationError, err.Error())
		return
	}
	defer f.Close()

	var res impexp.ImportResult
	err = s.ledger.Apply(amqp.EventImported, func(l core.Ledger) error {
		var ierr error
		res, ierr = impexp.ImportCSV(f, l)
		return ierr
	})
	if err != nil {
		s.structured.LogError(r.Context(), "CSV import failed", err, log.ComponentImpExp, log.OpImport, nil)
		redirectFlash(w, r, "/admin", NotificationError, "Não foi possível ler o arquivo CSV.")
		return
	}

	fields := log.NewFields()
	fields[log.FieldApplied] = res.Applied
	fields[log.FieldSkipped] = res.Skipped
	if res.UnknownPillarLabels > 0 {
		fields["unknown_pillar_labels"] = res.UnknownPillarLabels
	}
	s.structured.LogLedgerChange(r.Context(), log.OpImport, s.ledger.Revision(), fields)

	msg := fmt.Sprintf("%d linhas importadas.", res.Applied)
	kind := NotificationSuccess
	if res.UnknownPillarLabels > 0 {
		msg += fmt.Sprintf(" %d linhas com pilar desconhecido foram lidas como Secovimed.", res.UnknownPillarLabels)
		kind = NotificationWarning
	}
	target := "/admin"
	if len(res.Years) > 0 {
		target = adminTarget(res.Years[0], "")
	}
	redirectFlash(w, r, target, kind, msg)
}
