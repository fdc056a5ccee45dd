package http

import (
	"bytes"
	"context"
	"encoding/json"
	"html/template"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"secovi/internal/core"
	"secovi/internal/kv/memory"
	"secovi/internal/log"
	"secovi/internal/services"
)

type testEnv struct {
	srv    *Server
	ledger *services.LedgerService
	users  *services.UserService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	logger := log.New(log.Config{Output: io.Discard})

	cfg := services.DefaultLedgerServiceConfig()
	cfg.FlushDelay = time.Hour
	ledger, err := services.NewLedgerService(ctx, store, nil, logger.Slog(), cfg)
	if err != nil {
		t.Fatalf("ledger service: %v", err)
	}
	t.Cleanup(func() { _ = ledger.Close(ctx, false) })

	users, err := services.NewUserService(ctx, store, logger.Slog())
	if err != nil {
		t.Fatalf("user service: %v", err)
	}

	srv, err := NewServer(ServerConfig{Addr: ":0", DefaultYear: 2025, Ready: store}, ledger, users, logger)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return &testEnv{srv: srv, ledger: ledger, users: users}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) login(t *testing.T) {
	t.Helper()
	if _, err := e.users.Login(context.Background(), "admin", "admin"); err != nil {
		t.Fatalf("login: %v", err)
	}
}

func postForm(path string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func postFile(t *testing.T, path, name string, content []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	_, _ = fw.Write(content)
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func flashOf(t *testing.T, rr *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	loc, err := url.Parse(rr.Header().Get("Location"))
	if err != nil {
		t.Fatalf("bad location: %v", err)
	}
	return loc.Query().Get("kind"), loc.Query().Get("flash")
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		rr := env.do(httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
		var body map[string]any
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s: invalid json: %v", path, err)
		}
	}
}

func TestSecurityHeadersAndRequestID(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(httptest.NewRequest(http.MethodGet, "/login", nil))
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("missing nosniff header")
	}
	if rr.Header().Get("Content-Security-Policy") == "" {
		t.Fatalf("missing CSP header")
	}
	if !strings.HasPrefix(rr.Header().Get("X-Request-ID"), "req_") {
		t.Fatalf("missing request id, got %q", rr.Header().Get("X-Request-ID"))
	}
}

func TestAuthGate(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/", "/pillar/secovipr", "/admin", "/users", "/admin/backup"} {
		rr := env.do(httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/login" {
			t.Fatalf("%s: expected redirect to login, got %d %q", path, rr.Code, rr.Header().Get("Location"))
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/ui/status", nil)
	req.Header.Set("HX-Request", "true")
	rr := env.do(req)
	if rr.Code != http.StatusUnauthorized || rr.Header().Get("HX-Redirect") != "/login" {
		t.Fatalf("expected htmx redirect, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), core.ErrNotAuthenticated.Error()) {
		t.Fatalf("expected not authenticated message, got %q", rr.Body.String())
	}
}

func TestLoginLogout(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(postForm("/login", url.Values{"login": {"admin"}, "password": {"wrong"}}))
	if rr.Code != http.StatusUnauthorized || !strings.Contains(rr.Body.String(), "inválidos") {
		t.Fatalf("expected login error page, got %d", rr.Code)
	}

	rr = env.do(postForm("/login", url.Values{"login": {"admin"}, "password": {"admin"}}))
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/" {
		t.Fatalf("expected redirect to dashboard, got %d", rr.Code)
	}
	rr = env.do(httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Consolidado") {
		t.Fatalf("dashboard status=%d", rr.Code)
	}

	rr = env.do(postForm("/logout", nil))
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("logout status=%d", rr.Code)
	}
	if _, ok := env.users.Current(); ok {
		t.Fatalf("expected session to be cleared")
	}
}

func TestDashboardShowsTotals(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	if _, err := env.ledger.SetField(2025, core.Jan, core.Secovi, "Sede", core.FieldRevenue, "1500.5"); err != nil {
		t.Fatalf("set field: %v", err)
	}

	rr := env.do(httptest.NewRequest(http.MethodGet, "/?year=2025&month=Jan&expand=1", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	body := rr.Body.String()
	for _, want := range []string{"Secovi-PR", template.HTMLEscapeString("Subtotal (Secovi + Agentes)"), "Total Geral", "Sede", "500,50"} {
		if !strings.Contains(body, want) {
			t.Fatalf("dashboard missing %q", want)
		}
	}
}

func TestDashboardMaterialisesYear(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	rr := env.do(httptest.NewRequest(http.MethodGet, "/?year=2031", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if len(env.ledger.YearData(2031)) != len(core.Months) {
		t.Fatalf("expected 2031 to be materialised")
	}
}

func TestPillarView(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	_, _ = env.ledger.SetField(2025, core.Fev, core.Med, "Londrina", core.FieldRevenue, "300")

	rr := env.do(httptest.NewRequest(http.MethodGet, "/pillar/secovimed?year=2025", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Participação por unidade") || !strings.Contains(rr.Body.String(), "100,0%") {
		t.Fatalf("pillar view missing share table")
	}

	rr = env.do(httptest.NewRequest(http.MethodGet, "/pillar/unknown", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown pillar, got %d", rr.Code)
	}
}

func TestEntry(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	form := url.Values{
		"year": {"2025"}, "month": {"Jan"}, "pillar": {"secovi"},
		"unit": {"Sede"}, "field": {"revenue"}, "value": {"1500.5"},
	}
	req := postForm("/admin/entry", form)
	req.Header.Set("HX-Request", "true")
	rr := env.do(req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Header().Get("HX-Trigger"), "ledger:changed") {
		t.Fatalf("missing ledger:changed trigger")
	}
	if got := env.ledger.Snapshot().Record(2025, core.Jan, core.Secovi, "Sede").Revenue; got != 1500.5 {
		t.Fatalf("expected 1500.5 stored, got %v", got)
	}
	if !env.ledger.Saving() {
		t.Fatalf("expected a pending save")
	}

	form.Set("unit", "Nowhere")
	rr = env.do(postForm("/admin/entry", form))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for unknown unit, got %d", rr.Code)
	}

	form.Set("unit", "Sede")
	form.Set("month", "January")
	rr = env.do(postForm("/admin/entry", form))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for unknown month, got %d", rr.Code)
	}
}

func TestBackupDownloadAndRestore(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	_, _ = env.ledger.SetField(2025, core.Mar, core.Agentes, "UNIHAB", core.FieldExpense, "250")

	rr := env.do(httptest.NewRequest(http.MethodGet, "/admin/backup", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("backup status=%d", rr.Code)
	}
	if !strings.Contains(rr.Header().Get("Content-Disposition"), "database_secovi_backup_") {
		t.Fatalf("unexpected disposition %q", rr.Header().Get("Content-Disposition"))
	}
	backup := rr.Body.Bytes()

	_, _ = env.ledger.SetField(2025, core.Mar, core.Agentes, "UNIHAB", core.FieldExpense, "999")

	// Missing confirmation leaves the ledger alone.
	rr = env.do(postFile(t, "/admin/restore", "b.json", backup, nil))
	if kind, _ := flashOf(t, rr); kind != string(NotificationWarning) {
		t.Fatalf("expected warning flash, got %q", kind)
	}
	if env.ledger.Snapshot().Record(2025, core.Mar, core.Agentes, "UNIHAB").Expense != 999 {
		t.Fatalf("restore without confirmation changed the ledger")
	}

	rr = env.do(postFile(t, "/admin/restore", "b.json", []byte("[1,2]"), map[string]string{"confirm": "yes"}))
	if kind, _ := flashOf(t, rr); kind != string(NotificationError) {
		t.Fatalf("expected error flash, got %q", kind)
	}

	rr = env.do(postFile(t, "/admin/restore", "b.json", backup, map[string]string{"confirm": "yes"}))
	if kind, msg := flashOf(t, rr); kind != string(NotificationSuccess) {
		t.Fatalf("expected success flash, got %q %q", kind, msg)
	}
	if got := env.ledger.Snapshot().Record(2025, core.Mar, core.Agentes, "UNIHAB").Expense; got != 250 {
		t.Fatalf("expected restored expense 250, got %v", got)
	}
}

func TestTemplateAndImport(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	rr := env.do(httptest.NewRequest(http.MethodGet, "/admin/template?year=2026", nil))
	if rr.Code != http.StatusOK || !bytes.HasPrefix(rr.Body.Bytes(), []byte("\uFEFFAno;Mes;Pilar")) {
		t.Fatalf("unexpected template response %d", rr.Code)
	}

	csv := "Ano;Mes;Pilar;Unidade;Receita Bruta;Receita Financeira;Despesa\n2025;Jan;Agentes;UNIHAB;1000;0;250\n2025;Jan;Agentes;Nowhere;1;1;1\n"
	rr = env.do(postFile(t, "/admin/import", "dados.csv", []byte(csv), nil))
	kind, msg := flashOf(t, rr)
	if kind != string(NotificationSuccess) || !strings.HasPrefix(msg, "1 linhas importadas") {
		t.Fatalf("unexpected flash %q %q", kind, msg)
	}
	want := core.Record{Revenue: 1000, Expense: 250}
	if got := env.ledger.Snapshot().Record(2025, core.Jan, core.Agentes, "UNIHAB"); got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestClearRequiresConfirmation(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	_, _ = env.ledger.SetField(2025, core.Jan, core.Secovi, "Sede", core.FieldRevenue, "10")

	rr := env.do(postForm("/admin/clear", nil))
	if kind, _ := flashOf(t, rr); kind != string(NotificationWarning) {
		t.Fatalf("expected warning, got %q", kind)
	}
	if env.ledger.Snapshot().Record(2025, core.Jan, core.Secovi, "Sede").Revenue != 10 {
		t.Fatalf("clear without confirmation erased data")
	}

	rr = env.do(postForm("/admin/clear", url.Values{"confirm": {"yes"}}))
	if kind, _ := flashOf(t, rr); kind != string(NotificationSuccess) {
		t.Fatalf("expected success, got %q", kind)
	}
	if env.ledger.Snapshot().Record(2025, core.Jan, core.Secovi, "Sede").Revenue != 0 {
		t.Fatalf("expected ledger to be reset")
	}
}

func TestUserManagement(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	rr := env.do(postForm("/users", url.Values{"name": {"Maria"}, "login": {"maria"}}))
	if kind, _ := flashOf(t, rr); kind != string(NotificationError) {
		t.Fatalf("expected missing fields error, got %q", kind)
	}

	rr = env.do(postForm("/users", url.Values{"name": {"Maria"}, "login": {"maria"}, "password": {"x"}}))
	if kind, _ := flashOf(t, rr); kind != string(NotificationSuccess) {
		t.Fatalf("expected success, got %q", kind)
	}
	users := env.users.List()
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}

	rr = env.do(postForm("/users/1/delete", url.Values{"confirm": {"yes"}}))
	if _, msg := flashOf(t, rr); !strings.Contains(msg, "próprio") {
		t.Fatalf("expected self delete refusal, got %q", msg)
	}

	path := "/users/" + strconv.FormatInt(users[1].ID, 10) + "/delete"
	rr = env.do(postForm(path, url.Values{"confirm": {"yes"}}))
	if kind, _ := flashOf(t, rr); kind != string(NotificationSuccess) {
		t.Fatalf("expected removal, got %q", kind)
	}
	if len(env.users.List()) != 1 {
		t.Fatalf("expected 1 user left")
	}

	rr = env.do(httptest.NewRequest(http.MethodGet, "/users", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Administrador") {
		t.Fatalf("users page status=%d", rr.Code)
	}
}

func TestRateLimitOnPosts(t *testing.T) {
	env := newTestEnv(t)
	env.srv.limiter = newRateLimiter(2)
	for i := 0; i < 2; i++ {
		env.do(postForm("/login", url.Values{"login": {"x"}, "password": {"y"}}))
	}
	rr := env.do(postForm("/login", url.Values{"login": {"x"}, "password": {"y"}}))
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	rr = env.do(httptest.NewRequest(http.MethodGet, "/login", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("GET must not be limited, got %d", rr.Code)
	}
}
