package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"secovi/internal/amqp"
	"secovi/internal/cache"
	"secovi/internal/core"
	"secovi/internal/kv"
)

// LedgerPublisher announces persisted ledger revisions.
type LedgerPublisher interface {
	PublishLedgerSaved(ctx context.Context, msg *amqp.LedgerSavedMessage) error
}

// LedgerServiceConfig tunes persistence and memoisation.
type LedgerServiceConfig struct {
	FlushDelay   time.Duration
	FlushTimeout time.Duration
	CacheSize    int
	CacheTTL     time.Duration
}

func DefaultLedgerServiceConfig() LedgerServiceConfig {
	return LedgerServiceConfig{
		FlushDelay:   800 * time.Millisecond,
		FlushTimeout: 10 * time.Second,
		CacheSize:    64,
		CacheTTL:     10 * time.Minute,
	}
}

type summaryKey struct {
	revision int64
	query    core.Query
}

// LedgerService owns the process-wide ledger. Every mutation bumps the
// revision and schedules a debounced write of the whole ledger to the store.
type LedgerService struct {
	store     kv.Store
	publisher LedgerPublisher
	logger    *slog.Logger
	config    LedgerServiceConfig
	boot      string

	mu       sync.RWMutex
	ledger   core.Ledger
	revision int64
	saved    int64
	event    string
	timer    *time.Timer
	closed   bool

	flushMu   sync.Mutex
	summaries *cache.LRUCache[summaryKey, core.Summary]
}

// NewLedgerService loads the stored ledger. A missing or unreadable blob
// starts from the initial skeleton; a failing store is an error.
func NewLedgerService(ctx context.Context, store kv.Store, publisher LedgerPublisher, logger *slog.Logger, config LedgerServiceConfig) (*LedgerService, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if config.FlushDelay <= 0 {
		config.FlushDelay = DefaultLedgerServiceConfig().FlushDelay
	}
	if config.FlushTimeout <= 0 {
		config.FlushTimeout = DefaultLedgerServiceConfig().FlushTimeout
	}
	if config.CacheSize <= 0 {
		config.CacheSize = DefaultLedgerServiceConfig().CacheSize
	}

	ledger, err := loadLedger(ctx, store, logger)
	if err != nil {
		return nil, err
	}

	return &LedgerService{
		store:     store,
		publisher: publisher,
		logger:    logger,
		config:    config,
		boot:      strconv.FormatInt(time.Now().UnixNano(), 36),
		ledger:    ledger,
		summaries: cache.NewLRUCache[summaryKey, core.Summary](config.CacheSize, config.CacheTTL),
	}, nil
}

func loadLedger(ctx context.Context, store kv.Store, logger *slog.Logger) (core.Ledger, error) {
	data, ok, err := store.Get(ctx, kv.LedgerKey)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	if !ok {
		logger.InfoContext(ctx, "No stored ledger, starting from skeleton", "years", len(core.InitialYears))
		return core.NewLedger(), nil
	}
	var l core.Ledger
	if err := json.Unmarshal(data, &l); err != nil || l == nil {
		logger.ErrorContext(ctx, "Stored ledger is unreadable, starting from skeleton", "error", err, "bytes", len(data))
		return core.NewLedger(), nil
	}
	logger.InfoContext(ctx, "Ledger loaded", "years", len(l), "bytes", len(data))
	return l, nil
}

// MaterializeYear creates the skeleton for year when absent.
func (s *LedgerService) MaterializeYear(year int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ledger.MaterializeYear(year) {
		return false
	}
	s.changedLocked(amqp.EventSaved)
	s.logger.Info("Year materialised", "year", year, "revision", s.revision)
	return true
}

// SetField writes one figure of one record and returns the stored value.
func (s *LedgerService) SetField(year int, month core.Month, pillar core.Pillar, unit string, field core.Field, raw string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.ledger.SetField(year, month, pillar, unit, field, raw)
	if err != nil {
		return 0, err
	}
	s.changedLocked(amqp.EventSaved)
	s.logger.Debug("Field set",
		"year", year, "month", month, "pillar", pillar, "unit", unit,
		"field", field, "value", v, "revision", s.revision)
	return v, nil
}

// ReplaceAll swaps in a whole ledger, as a backup restore does.
func (s *LedgerService) ReplaceAll(l core.Ledger) {
	if l == nil {
		l = core.Ledger{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger = l.Clone()
	s.changedLocked(amqp.EventRestored)
	s.logger.Info("Ledger replaced", "years", len(l), "revision", s.revision)
}

// Apply runs fn against a copy of the ledger and keeps the copy only when
// fn succeeds, so a failing bulk operation leaves no partial changes.
func (s *LedgerService) Apply(event string, fn func(core.Ledger) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.ledger.Clone()
	if err := fn(next); err != nil {
		return err
	}
	s.ledger = next
	s.changedLocked(event)
	return nil
}

// Clear erases the stored ledger and resets to the initial skeleton.
func (s *LedgerService) Clear(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	if err := s.store.Delete(ctx, kv.LedgerKey); err != nil {
		return fmt.Errorf("clear ledger: %w", err)
	}

	s.mu.Lock()
	s.stopTimerLocked()
	s.ledger = core.NewLedger()
	s.revision++
	s.saved = s.revision
	s.event = ""
	rev := s.revision
	s.mu.Unlock()

	s.summaries.Purge()
	s.logger.WarnContext(ctx, "Ledger cleared", "revision", rev)
	s.publish(ctx, amqp.NewLedgerSavedMessage(rev, amqp.EventCleared, 0))
	return nil
}

// changedLocked records a mutation and restarts the debounce timer.
func (s *LedgerService) changedLocked(event string) {
	s.revision++
	if s.event == "" || s.event == amqp.EventSaved {
		s.event = event
	}
	if s.closed {
		return
	}
	s.stopTimerLocked()
	s.timer = time.AfterFunc(s.config.FlushDelay, s.flushFromTimer)
}

func (s *LedgerService) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *LedgerService) flushFromTimer() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.FlushTimeout)
	defer cancel()
	if err := s.Flush(ctx); err != nil {
		s.logger.ErrorContext(ctx, "Debounced ledger flush failed", "error", err)
	}
}

// Flush writes the current ledger if it has unsaved changes.
func (s *LedgerService) Flush(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	if s.revision == s.saved {
		s.mu.Unlock()
		return nil
	}
	s.stopTimerLocked()
	data, err := json.Marshal(s.ledger)
	rev, event := s.revision, s.event
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}

	if err := s.store.Set(ctx, kv.LedgerKey, data); err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}

	s.mu.Lock()
	s.saved = rev
	if s.revision == rev {
		s.event = ""
	}
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Ledger flushed", "revision", rev, "event", event, "bytes", len(data))
	s.publish(ctx, amqp.NewLedgerSavedMessage(rev, event, len(data)))
	return nil
}

func (s *LedgerService) publish(ctx context.Context, msg *amqp.LedgerSavedMessage) {
	if s.publisher == nil {
		return
	}
	msg.Boot = s.boot
	if err := s.publisher.PublishLedgerSaved(ctx, msg); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish ledger message", "revision", msg.Revision, "error", err)
	}
}

// Close stops the debounce timer. With flush set, pending changes are
// written first; otherwise they are discarded.
func (s *LedgerService) Close(ctx context.Context, flush bool) error {
	s.mu.Lock()
	s.closed = true
	s.stopTimerLocked()
	pending := s.revision != s.saved
	s.mu.Unlock()

	if !pending {
		return nil
	}
	if !flush {
		s.logger.WarnContext(ctx, "Discarding unsaved ledger changes on shutdown")
		return nil
	}
	return s.Flush(ctx)
}

// Saving reports whether a write is pending.
func (s *LedgerService) Saving() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision != s.saved
}

func (s *LedgerService) Revision() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// Snapshot returns a deep copy of the ledger.
func (s *LedgerService) Snapshot() core.Ledger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.Clone()
}

// Years lists the materialised years.
func (s *LedgerService) Years() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.Years()
}

// YearData returns a copy of one year, nil when not materialised.
func (s *LedgerService) YearData(year int) core.YearData {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger[year].Clone()
}

func (s *LedgerService) Record(year int, month core.Month, pillar core.Pillar, unit string) core.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.Record(year, month, pillar, unit)
}

// Summary aggregates the ledger, memoised per revision.
func (s *LedgerService) Summary(q core.Query) core.Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := summaryKey{revision: s.revision, query: q}
	if sum, ok := s.summaries.Get(key); ok {
		return sum
	}
	sum := core.Aggregate(s.ledger, q)
	s.summaries.Set(key, sum)
	return sum
}

// Series returns the monthly evolution of the given units of a pillar.
func (s *LedgerService) Series(year int, p core.Pillar, units []string, includeFinancial bool) []core.MonthPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return core.MonthlySeries(s.ledger, year, p, units, includeFinancial)
}

// SummaryCache exposes the summary memo for periodic expiry.
func (s *LedgerService) SummaryCache() cache.Cleaner {
	return s.summaries
}

// CacheStats exposes hit/miss counters of the summary cache.
func (s *LedgerService) CacheStats() cache.Stats {
	return s.summaries.Stats()
}
