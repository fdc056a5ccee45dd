package http

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"secovi/internal/cache"
	"secovi/internal/core"
	"secovi/internal/kv"
	"secovi/internal/log"
	appweb "secovi/web"
)

// LedgerStore is the ledger the views read and the admin screen edits.
type LedgerStore interface {
	MaterializeYear(year int) bool
	SetField(year int, month core.Month, pillar core.Pillar, unit string, field core.Field, raw string) (float64, error)
	ReplaceAll(l core.Ledger)
	Apply(event string, fn func(core.Ledger) error) error
	Clear(ctx context.Context) error
	Saving() bool
	Revision() int64
	Snapshot() core.Ledger
	Years() []int
	YearData(year int) core.YearData
	Summary(q core.Query) core.Summary
	Series(year int, p core.Pillar, units []string, includeFinancial bool) []core.MonthPoint
	CacheStats() cache.Stats
}

// UserDirectory holds the operators and the session.
type UserDirectory interface {
	Login(ctx context.Context, login, password string) (core.User, error)
	Logout(ctx context.Context) error
	Current() (core.User, bool)
	List() []core.User
	AddUser(ctx context.Context, name, login, password string) (core.User, error)
	RemoveUser(ctx context.Context, id int64) error
}

// ServerConfig configures NewServer.
type ServerConfig struct {
	Addr        string
	DefaultYear int
	// PostsPerMinute limits POST requests per client.
	PostsPerMinute int
	// Ready is checked by /readyz when set.
	Ready kv.Pinger
}

// Server is the dashboard HTTP server.
type Server struct {
	http.Server
	templates   *template.Template
	ledger      LedgerStore
	users       UserDirectory
	ready       kv.Pinger
	defaultYear int

	logger     *log.Logger
	structured *log.StructuredLogger
	limiter    *rateLimiter
	metrics    *securityMetrics
	started    time.Time
	now        func() time.Time

	shutdownOnce sync.Once
}

// NewServer parses the embedded templates and wires the routes.
func NewServer(cfg ServerConfig, ledger LedgerStore, users UserDirectory, logger *log.Logger) (*Server, error) {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	if cfg.DefaultYear == 0 {
		cfg.DefaultYear = time.Now().Year()
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	s := &Server{
		templates:   t,
		ledger:      ledger,
		users:       users,
		ready:       cfg.Ready,
		defaultYear: cfg.DefaultYear,
		logger:      logger,
		structured:  log.NewStructuredLogger(logger),
		limiter:     newRateLimiter(cfg.PostsPerMinute),
		metrics:     &securityMetrics{},
		started:     time.Now(),
		now:         time.Now,
	}

	mux := http.NewServeMux()
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "public, max-age=3600")
			static.ServeHTTP(w, r)
		}))
	} else {
		logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /login", s.handleLoginPage)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("POST /logout", s.handleLogout)

	mux.HandleFunc("GET /{$}", s.requireAuth(s.handleDashboard))
	mux.HandleFunc("GET /pillar/{key}", s.requireAuth(s.handlePillar))
	mux.HandleFunc("GET /ui/status", s.requireAuth(s.handleStatus))

	mux.HandleFunc("GET /admin", s.requireAuth(s.handleAdmin))
	mux.HandleFunc("POST /admin/entry", s.requireAuth(s.handleEntry))
	mux.HandleFunc("GET /admin/backup", s.requireAuth(s.handleBackup))
	mux.HandleFunc("POST /admin/restore", s.requireAuth(s.handleRestore))
	mux.HandleFunc("POST /admin/clear", s.requireAuth(s.handleClear))
	mux.HandleFunc("GET /admin/template", s.requireAuth(s.handleTemplate))
	mux.HandleFunc("POST /admin/import", s.requireAuth(s.handleImport))

	mux.HandleFunc("GET /users", s.requireAuth(s.handleUsers))
	mux.HandleFunc("POST /users", s.requireAuth(s.handleAddUser))
	mux.HandleFunc("POST /users/{id}/delete", s.requireAuth(s.handleDeleteUser))

	var handler http.Handler = mux
	handler = s.withRateLimit(handler)
	handler = log.Middleware(logger, func(r *http.Request) string { return requestIDFrom(r.Context()) })(handler)
	handler = s.withTrace(handler)
	handler = withSecurityHeaders(defaultHeadersConfig())(handler)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// StartBackground runs the limiter cleanup until Shutdown.
func (s *Server) StartBackground() {
	go s.limiter.startCleanup(5 * time.Minute)
}

// Shutdown stops background work and the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

type requestIDKey struct{}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func generateRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(b)
}

// statusRecorder captures the status code for the request log.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// withTrace assigns a request id and logs the completed request.
func (s *Server) withTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := extractClientIP(r)
		id := r.Header.Get("X-Request-ID")
		if id == "" || len(id) > 64 {
			id = generateRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		r = r.WithContext(ctx)
		w.Header().Set("X-Request-ID", id)

		if detectSuspiciousRequest(r, s.metrics) {
			s.logger.WithComponent(log.ComponentSecurity).WarnContext(ctx, "Suspicious request",
				log.FieldRequestID, id,
				log.FieldClientIP, clientIP,
				log.FieldPath, r.URL.Path)
		}

		rw := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		s.structured.LogHTTPEnd(ctx, r, rw.statusCode, time.Since(start).Milliseconds(), clientIP)
	})
}

func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			ip := extractClientIP(r)
			if !s.limiter.allow(ip, s.metrics) {
				log.FromContext(r.Context()).WithComponent(log.ComponentSecurity).Warn("Rate limit exceeded",
					log.FieldClientIP, ip)
				w.Header().Set("Retry-After", "60")
				http.Error(w, "Muitas requisições. Tente novamente em instantes.", http.StatusTooManyRequests)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// requireAuth sends anonymous visitors to the login form.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := s.users.Current(); !ok {
			if isHTMX(r) {
				ErrorResponse(http.StatusUnauthorized, core.ErrNotAuthenticated.Error()).
					Header("HX-Redirect", "/login").
					Write(w)
				return
			}
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next(w, r)
	}
}

// Flash is a one-shot message carried in the redirect target.
type Flash struct {
	Kind    NotificationType
	Message string
}

func flashFrom(q url.Values) *Flash {
	msg := q.Get("flash")
	if msg == "" {
		return nil
	}
	kind := NotificationType(q.Get("kind"))
	if kind != NotificationError && kind != NotificationWarning {
		kind = NotificationSuccess
	}
	return &Flash{Kind: kind, Message: msg}
}

// redirectFlash redirects to target with a flash message appended.
func redirectFlash(w http.ResponseWriter, r *http.Request, target string, kind NotificationType, msg string) {
	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	v := url.Values{}
	v.Set("flash", msg)
	v.Set("kind", string(kind))
	http.Redirect(w, r, target+sep+v.Encode(), http.StatusSeeOther)
}

// page is the data shared by every full page.
type page struct {
	Title  string
	Active string
	User   core.User
	Flash  *Flash
	Saving bool
	Sel    Selection
	Years  []int
}

func (s *Server) newPage(r *http.Request, title, active string, sel Selection) page {
	u, _ := s.users.Current()
	return page{
		Title:  title,
		Active: active,
		User:   u,
		Flash:  flashFrom(r.URL.Query()),
		Saving: s.ledger.Saving(),
		Sel:    sel,
		Years:  s.ledger.Years(),
	}
}

// render executes a template into a buffer so a failing template never
// sends a half-written page.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.structured.LogError(r.Context(), "Template execution failed", err, log.ComponentTemplate, log.OpRender,
			log.NewFields().WithHTTPRequest(r.Method, r.URL.Path, "", "", ""))
		http.Error(w, "erro ao renderizar a página", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
