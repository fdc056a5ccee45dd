package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"testing"
	"time"

	"secovi/internal/amqp"
	"secovi/internal/core"
	"secovi/internal/kv"
	"secovi/internal/kv/memory"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []*amqp.LedgerSavedMessage
}

func (p *recordingPublisher) PublishLedgerSaved(_ context.Context, msg *amqp.LedgerSavedMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *recordingPublisher) events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, m := range p.msgs {
		out = append(out, m.Event)
	}
	return out
}

// countingStore counts writes and can be told to fail.
type countingStore struct {
	*memory.Store
	mu   sync.Mutex
	sets int
	fail error
}

func (s *countingStore) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	s.sets++
	fail := s.fail
	s.mu.Unlock()
	if fail != nil {
		return fail
	}
	return s.Store.Set(ctx, key, value)
}

func (s *countingStore) Sets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sets
}

func newLedgerService(t *testing.T, store kv.Store, pub LedgerPublisher, delay time.Duration) *LedgerService {
	t.Helper()
	cfg := DefaultLedgerServiceConfig()
	cfg.FlushDelay = delay
	svc, err := NewLedgerService(context.Background(), store, pub, quietLogger(), cfg)
	if err != nil {
		t.Fatalf("new ledger service: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close(context.Background(), false) })
	return svc
}

func storedLedger(t *testing.T, store kv.Store) core.Ledger {
	t.Helper()
	data, ok, err := store.Get(context.Background(), kv.LedgerKey)
	if err != nil || !ok {
		t.Fatalf("expected stored ledger, ok=%v err=%v", ok, err)
	}
	var l core.Ledger
	if err := json.Unmarshal(data, &l); err != nil {
		t.Fatalf("decode stored ledger: %v", err)
	}
	return l
}

func TestNewLedgerServiceStartsFromSkeleton(t *testing.T) {
	svc := newLedgerService(t, memory.New(), nil, time.Hour)
	if got := svc.Years(); len(got) != len(core.InitialYears) || got[0] != 2020 || got[len(got)-1] != 2028 {
		t.Fatalf("unexpected initial years %v", got)
	}
	if svc.Saving() {
		t.Fatalf("fresh service should have nothing to save")
	}
}

func TestNewLedgerServiceIgnoresCorruptBlob(t *testing.T) {
	store := memory.New()
	_ = store.Set(context.Background(), kv.LedgerKey, []byte("{not json"))
	svc := newLedgerService(t, store, nil, time.Hour)
	if len(svc.Years()) != len(core.InitialYears) {
		t.Fatalf("expected skeleton after corrupt blob")
	}
}

func TestLedgerServiceDebouncesWrites(t *testing.T) {
	store := &countingStore{Store: memory.New()}
	pub := &recordingPublisher{}
	svc := newLedgerService(t, store, pub, 50*time.Millisecond)

	for _, v := range []string{"1", "12", "120", "1200"} {
		if _, err := svc.SetField(2025, core.Jan, core.Secovi, "Sede", core.FieldRevenue, v); err != nil {
			t.Fatalf("set field: %v", err)
		}
	}
	if !svc.Saving() {
		t.Fatalf("expected a pending write")
	}

	deadline := time.Now().Add(2 * time.Second)
	for svc.Saving() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if svc.Saving() {
		t.Fatalf("debounced flush never happened")
	}
	if n := store.Sets(); n != 1 {
		t.Fatalf("expected one coalesced write, got %d", n)
	}
	if got := storedLedger(t, store).Record(2025, core.Jan, core.Secovi, "Sede").Revenue; got != 1200 {
		t.Fatalf("expected last value persisted, got %v", got)
	}
	if ev := pub.events(); !reflect.DeepEqual(ev, []string{amqp.EventSaved}) {
		t.Fatalf("unexpected published events %v", ev)
	}
}

func TestLedgerServiceFlushAndClose(t *testing.T) {
	store := &countingStore{Store: memory.New()}
	svc := newLedgerService(t, store, nil, time.Hour)
	ctx := context.Background()

	if err := svc.Flush(ctx); err != nil || store.Sets() != 0 {
		t.Fatalf("flush without changes should not write, sets=%d err=%v", store.Sets(), err)
	}

	_, _ = svc.SetField(2025, core.Fev, core.Med, "Londrina", core.FieldExpense, "9")
	if err := svc.Close(ctx, true); err != nil {
		t.Fatalf("close: %v", err)
	}
	if store.Sets() != 1 {
		t.Fatalf("expected final flush on close, got %d writes", store.Sets())
	}
	if got := storedLedger(t, store).Record(2025, core.Fev, core.Med, "Londrina").Expense; got != 9 {
		t.Fatalf("expected expense 9 persisted, got %v", got)
	}
}

func TestLedgerServiceCloseWithoutFlushDiscards(t *testing.T) {
	store := &countingStore{Store: memory.New()}
	svc := newLedgerService(t, store, nil, time.Hour)
	_, _ = svc.SetField(2025, core.Jan, core.Secovi, "Sede", core.FieldRevenue, "1")
	if err := svc.Close(context.Background(), false); err != nil {
		t.Fatalf("close: %v", err)
	}
	if store.Sets() != 0 {
		t.Fatalf("expected pending change to be discarded")
	}
}

func TestLedgerServiceFlushFailureKeepsPending(t *testing.T) {
	store := &countingStore{Store: memory.New(), fail: errors.New("disk full")}
	svc := newLedgerService(t, store, nil, time.Hour)
	_, _ = svc.SetField(2025, core.Jan, core.Secovi, "Sede", core.FieldRevenue, "1")

	if err := svc.Flush(context.Background()); err == nil {
		t.Fatalf("expected flush error")
	}
	if !svc.Saving() {
		t.Fatalf("failed flush must leave the change pending")
	}

	store.mu.Lock()
	store.fail = nil
	store.mu.Unlock()
	if err := svc.Flush(context.Background()); err != nil || svc.Saving() {
		t.Fatalf("retry should succeed, err=%v saving=%v", err, svc.Saving())
	}
}

func TestLedgerServiceReplaceAllRoundTrip(t *testing.T) {
	svc := newLedgerService(t, memory.New(), nil, time.Hour)
	_, _ = svc.SetField(2024, core.Dez, core.Agentes, "INPESPAR", core.FieldFinancialRevenue, "33.5")
	exported := svc.Snapshot()

	other := newLedgerService(t, memory.New(), nil, time.Hour)
	other.ReplaceAll(exported)
	if !reflect.DeepEqual(other.Snapshot(), exported) {
		t.Fatalf("restored ledger differs from export")
	}

	exported[2024][core.Dez][core.Agentes]["INPESPAR"] = core.Record{}
	if other.Record(2024, core.Dez, core.Agentes, "INPESPAR").FinancialRevenue != 33.5 {
		t.Fatalf("ReplaceAll must not alias the caller's ledger")
	}
}

func TestLedgerServiceApplyIsAtomic(t *testing.T) {
	svc := newLedgerService(t, memory.New(), nil, time.Hour)
	rev := svc.Revision()

	err := svc.Apply(amqp.EventImported, func(l core.Ledger) error {
		_, _ = l.SetField(2025, core.Jan, core.Secovi, "Sede", core.FieldRevenue, "5")
		return errors.New("halfway")
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if svc.Record(2025, core.Jan, core.Secovi, "Sede").Revenue != 0 || svc.Revision() != rev {
		t.Fatalf("failed Apply must leave the ledger untouched")
	}

	if err := svc.Apply(amqp.EventImported, func(l core.Ledger) error {
		return l.Put(2025, core.Jan, core.Secovi, "Sede", core.Record{Revenue: 5})
	}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if svc.Record(2025, core.Jan, core.Secovi, "Sede").Revenue != 5 {
		t.Fatalf("expected applied change")
	}
}

func TestLedgerServiceClear(t *testing.T) {
	store := memory.New()
	pub := &recordingPublisher{}
	svc := newLedgerService(t, store, pub, time.Hour)
	ctx := context.Background()

	svc.MaterializeYear(2031)
	_, _ = svc.SetField(2025, core.Jan, core.Secovi, "Sede", core.FieldRevenue, "10")
	if err := svc.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	if err := svc.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok, _ := store.Get(ctx, kv.LedgerKey); ok {
		t.Fatalf("expected stored ledger to be erased")
	}
	if !reflect.DeepEqual(svc.Snapshot(), core.NewLedger()) {
		t.Fatalf("expected initial skeleton after clear")
	}
	if svc.Saving() {
		t.Fatalf("clear should not leave a pending write")
	}
	if ev := pub.events(); len(ev) != 2 || ev[1] != amqp.EventCleared {
		t.Fatalf("unexpected events %v", ev)
	}
	if boot := pub.msgs[0].Boot; boot == "" || pub.msgs[1].Boot != boot {
		t.Fatalf("expected one non-empty boot id across messages, got %q and %q", boot, pub.msgs[1].Boot)
	}

	other := newLedgerService(t, memory.New(), nil, time.Hour)
	if other.boot == svc.boot {
		t.Fatalf("expected a fresh boot id per service")
	}
}

func TestLedgerServiceSummaryMemoised(t *testing.T) {
	svc := newLedgerService(t, memory.New(), nil, time.Hour)
	q := core.Query{Year: 2025, Month: core.Jan}

	_ = svc.Summary(q)
	_ = svc.Summary(q)
	if st := svc.CacheStats(); st.Hits != 1 || st.Misses != 1 {
		t.Fatalf("expected one hit and one miss, got %+v", st)
	}

	_, _ = svc.SetField(2025, core.Jan, core.Secovi, "Sede", core.FieldRevenue, "1500.5")
	p, _ := svc.Summary(q).Pillar(core.Secovi)
	if p.Revenue != 1500.5 || p.Balance != 1500.5 {
		t.Fatalf("summary not recomputed after edit: %+v", p.Totals)
	}
}

func TestLedgerServiceMaterializeYear(t *testing.T) {
	svc := newLedgerService(t, memory.New(), nil, time.Hour)
	if svc.MaterializeYear(2025) {
		t.Fatalf("2025 is part of the initial skeleton")
	}
	if svc.Saving() {
		t.Fatalf("no-op materialisation must not schedule a write")
	}
	if !svc.MaterializeYear(2035) || svc.YearData(2035) == nil {
		t.Fatalf("expected 2035 to be created")
	}
	if !svc.Saving() {
		t.Fatalf("new year should be persisted")
	}
}
