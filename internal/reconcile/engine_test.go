package reconcile

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cyberbuild/cb-trade-data-service/internal/exchange"
	"github.com/cyberbuild/cb-trade-data-service/internal/model"
	"github.com/cyberbuild/cb-trade-data-service/internal/store"
)

var (
	base     = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	interval = 5 * time.Minute
)

func entryAt(ts time.Time, close float64) model.Entry {
	return model.Entry{
		Exchange:  "testex",
		Coin:      "BTC_USDT",
		Timestamp: ts,
		Candle: model.Candle{
			Open:   decimal.NewFromFloat(close),
			High:   decimal.NewFromFloat(close),
			Low:    decimal.NewFromFloat(close),
			Close:  decimal.NewFromFloat(close),
			Volume: decimal.NewFromInt(1),
		},
	}
}

// fakeConnector serves canned entries and counts fetch calls.
type fakeConnector struct {
	entries    []model.Entry
	err        error
	fetchCalls atomic.Int32
	available  bool
}

func (f *fakeConnector) Name() string { return "testex" }

func (f *fakeConnector) CheckAvailability(ctx context.Context, coin string) (bool, error) {
	return f.available, nil
}

func (f *fakeConnector) FetchRange(ctx context.Context, coin string, start, end time.Time) ([]model.Entry, error) {
	f.fetchCalls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	var out []model.Entry
	for _, e := range f.entries {
		if !e.Timestamp.Before(start) && e.Timestamp.Before(end) {
			out = append(out, e)
		}
	}
	return out, nil
}

// failingStore wraps a memory store and injects failures.
type failingStore struct {
	store.Store
	failRead  bool
	failWrite bool
	saveCalls atomic.Int32
}

func (f *failingStore) GetRange(ctx context.Context, exchange, coin string, start, end time.Time) ([]model.Entry, error) {
	if f.failRead {
		return nil, &store.StorageError{Op: "get_range", Err: errors.New("disk gone")}
	}
	return f.Store.GetRange(ctx, exchange, coin, start, end)
}

func (f *failingStore) SaveBulk(ctx context.Context, exchange, coin string, entries []model.Entry) error {
	f.saveCalls.Add(1)
	if f.failWrite {
		return &store.StorageError{Op: "save_bulk", Err: errors.New("disk full")}
	}
	return f.Store.SaveBulk(ctx, exchange, coin, entries)
}

func newEngine(st store.Store, conn exchange.Connector) *Engine {
	return New(Config{Interval: interval}, st, conn, nil)
}

func TestReconcile_FullyCached(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	// All 12 grid points for [00:00, 01:00) at 5-minute interval.
	var entries []model.Entry
	for i := 0; i < 12; i++ {
		entries = append(entries, entryAt(base.Add(time.Duration(i)*interval), float64(i)))
	}
	st.SaveBulk(ctx, "testex", "BTC/USDT", entries)

	conn := &fakeConnector{}
	res, err := newEngine(st, conn).Reconcile(ctx, "BTC/USDT", base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("Reconcile() error: %v", err)
	}
	if len(res.Entries) != 12 {
		t.Errorf("len(Entries) = %d, want 12", len(res.Entries))
	}
	if got := conn.fetchCalls.Load(); got != 0 {
		t.Errorf("fetch calls = %d, want 0 (fully cached)", got)
	}
	if len(res.Unfilled) != 0 {
		t.Errorf("Unfilled = %v, want none", res.Unfilled)
	}
	if res.Reported != nil {
		t.Errorf("Reported = %v, want nil", res.Reported)
	}
}

func TestReconcile_FullyMissing(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	st := &failingStore{Store: mem}

	conn := &fakeConnector{entries: []model.Entry{
		entryAt(base, 1),
		entryAt(base.Add(interval), 2),
		entryAt(base.Add(2*interval), 3),
	}}

	res, err := newEngine(st, conn).Reconcile(ctx, "BTC/USDT", base, base.Add(15*time.Minute))
	if err != nil {
		t.Fatalf("Reconcile() error: %v", err)
	}
	if len(res.Entries) != 3 {
		t.Errorf("len(Entries) = %d, want 3", len(res.Entries))
	}
	if got := st.saveCalls.Load(); got != 1 {
		t.Errorf("SaveBulk calls = %d, want 1", got)
	}
	if got := conn.fetchCalls.Load(); got != 1 {
		t.Errorf("fetch calls = %d, want 1 (single gap)", got)
	}

	// The write-back must have persisted: re-read covers the range.
	stored, _ := mem.GetRange(ctx, "testex", "BTC/USDT", base, base.Add(15*time.Minute))
	if len(stored) != 3 {
		t.Errorf("persisted entries = %d, want 3", len(stored))
	}
}

func TestReconcile_PartialGap(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	// Stored: 00:00 and 00:10; missing 00:05.
	st.SaveBulk(ctx, "testex", "BTC/USDT", []model.Entry{
		entryAt(base, 1),
		entryAt(base.Add(2*interval), 3),
	})

	conn := &fakeConnector{entries: []model.Entry{entryAt(base.Add(interval), 2)}}

	res, err := newEngine(st, conn).Reconcile(ctx, "BTC/USDT", base, base.Add(15*time.Minute))
	if err != nil {
		t.Fatalf("Reconcile() error: %v", err)
	}
	if len(res.Entries) != 3 {
		t.Fatalf("len(Entries) = %d, want 3", len(res.Entries))
	}
	for i, want := range []time.Time{base, base.Add(interval), base.Add(2 * interval)} {
		if !res.Entries[i].Timestamp.Equal(want) {
			t.Errorf("Entries[%d].Timestamp = %v, want %v", i, res.Entries[i].Timestamp, want)
		}
	}
	if len(res.Unfilled) != 0 {
		t.Errorf("Unfilled = %v, want none", res.Unfilled)
	}
}

func TestReconcile_FreshlyFetchedWins(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	// Stored t1, t3; gap covers t2; upstream also returns a revised t3.
	t1, t2, t3 := base, base.Add(interval), base.Add(2*interval)
	st.SaveBulk(ctx, "testex", "BTC/USDT", []model.Entry{
		entryAt(t1, 1),
		entryAt(t3, 300),
	})

	conn := &fakeConnector{entries: []model.Entry{
		entryAt(t2, 2),
		entryAt(t3, 333), // revised value overlapping a stored point
	}}

	res, err := newEngine(st, conn).Reconcile(ctx, "BTC/USDT", base, base.Add(15*time.Minute))
	if err != nil {
		t.Fatalf("Reconcile() error: %v", err)
	}
	if len(res.Entries) != 3 {
		t.Fatalf("len(Entries) = %d, want 3", len(res.Entries))
	}
	got := res.Entries[2].Candle.Close
	if !got.Equal(decimal.NewFromFloat(333)) {
		t.Errorf("t3 Close = %s, want 333 (freshly fetched wins)", got)
	}
}

func TestReconcile_UnfilledGapPropagated(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	// Upstream has nothing at all for the gap.
	conn := &fakeConnector{}

	gStart, gEnd := base, base.Add(15*time.Minute)
	res, err := newEngine(st, conn).Reconcile(ctx, "BTC/USDT", gStart, gEnd)
	if err != nil {
		t.Fatalf("Reconcile() error: %v", err)
	}
	if len(res.Entries) != 0 {
		t.Errorf("len(Entries) = %d, want 0 (nothing invented)", len(res.Entries))
	}
	if len(res.Unfilled) != 1 {
		t.Fatalf("len(Unfilled) = %d, want 1", len(res.Unfilled))
	}
	if !res.Unfilled[0].Start.Equal(gStart) || !res.Unfilled[0].End.Equal(gEnd) {
		t.Errorf("Unfilled[0] = %v, want [%v, %v)", res.Unfilled[0], gStart, gEnd)
	}
}

func TestReconcile_PartiallyFilledGap(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	// Gap of 3 points; upstream only has the middle one.
	conn := &fakeConnector{entries: []model.Entry{entryAt(base.Add(interval), 2)}}

	res, err := newEngine(st, conn).Reconcile(ctx, "BTC/USDT", base, base.Add(15*time.Minute))
	if err != nil {
		t.Fatalf("Reconcile() error: %v", err)
	}
	if len(res.Entries) != 1 {
		t.Errorf("len(Entries) = %d, want 1", len(res.Entries))
	}
	want := []model.GapRange{
		{Start: base, End: base.Add(interval)},
		{Start: base.Add(2 * interval), End: base.Add(15 * time.Minute)},
	}
	if len(res.Unfilled) != 2 {
		t.Fatalf("Unfilled = %v, want %v", res.Unfilled, want)
	}
	for i := range want {
		if !res.Unfilled[i].Start.Equal(want[i].Start) || !res.Unfilled[i].End.Equal(want[i].End) {
			t.Errorf("Unfilled[%d] = %v, want %v", i, res.Unfilled[i], want[i])
		}
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	conn := &fakeConnector{entries: []model.Entry{
		entryAt(base, 1),
		entryAt(base.Add(interval), 2),
		entryAt(base.Add(2*interval), 3),
	}}
	engine := newEngine(st, conn)

	first, err := engine.Reconcile(ctx, "BTC/USDT", base, base.Add(15*time.Minute))
	if err != nil {
		t.Fatalf("first Reconcile() error: %v", err)
	}
	callsAfterFirst := conn.fetchCalls.Load()

	second, err := engine.Reconcile(ctx, "BTC/USDT", base, base.Add(15*time.Minute))
	if err != nil {
		t.Fatalf("second Reconcile() error: %v", err)
	}

	if got := conn.fetchCalls.Load(); got != callsAfterFirst {
		t.Errorf("second call issued %d extra fetches, want 0", got-callsAfterFirst)
	}
	if len(first.Entries) != len(second.Entries) {
		t.Fatalf("entry counts differ: %d vs %d", len(first.Entries), len(second.Entries))
	}
	for i := range first.Entries {
		if !first.Entries[i].Timestamp.Equal(second.Entries[i].Timestamp) ||
			!first.Entries[i].Candle.Close.Equal(second.Entries[i].Candle.Close) {
			t.Errorf("entry %d differs between calls", i)
		}
	}
}

func TestReconcile_PerGapFailureContinues(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	// Stored point in the middle creates two gaps; the upstream fails
	// every fetch. Both gaps must be attempted and reported, not just the
	// first.
	st.SaveBulk(ctx, "testex", "BTC/USDT", []model.Entry{entryAt(base.Add(interval), 2)})

	conn := &fakeConnector{err: &exchange.UpstreamError{
		Exchange: "testex", Op: "fetch_range", Retryable: true, Err: errors.New("rate limited"),
	}}

	res, err := newEngine(st, conn).Reconcile(ctx, "BTC/USDT", base, base.Add(15*time.Minute))
	if err != nil {
		t.Fatalf("Reconcile() error: %v (per-gap failure must not be fatal)", err)
	}
	if got := conn.fetchCalls.Load(); got != 2 {
		t.Errorf("fetch calls = %d, want 2 (both gaps attempted)", got)
	}
	if len(res.Unfilled) != 2 {
		t.Errorf("len(Unfilled) = %d, want 2", len(res.Unfilled))
	}
	if res.Reported == nil {
		t.Fatal("Reported = nil, want the upstream failures")
	}
	var ue *exchange.UpstreamError
	if !errors.As(res.Reported, &ue) {
		t.Errorf("Reported does not wrap UpstreamError: %v", res.Reported)
	}
	if len(res.Entries) != 1 {
		t.Errorf("len(Entries) = %d, want 1 (stored data still returned)", len(res.Entries))
	}
}

func TestReconcile_StoreReadFailureIsFatal(t *testing.T) {
	ctx := context.Background()
	st := &failingStore{Store: store.NewMemory(), failRead: true}
	conn := &fakeConnector{}

	_, err := newEngine(st, conn).Reconcile(ctx, "BTC/USDT", base, base.Add(time.Hour))
	var se *store.StorageError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want StorageError", err)
	}
	if got := conn.fetchCalls.Load(); got != 0 {
		t.Errorf("fetch calls = %d, want 0 after fatal read failure", got)
	}
}

func TestReconcile_WriteBackFailureKeepsData(t *testing.T) {
	ctx := context.Background()
	st := &failingStore{Store: store.NewMemory(), failWrite: true}

	conn := &fakeConnector{entries: []model.Entry{
		entryAt(base, 1),
		entryAt(base.Add(interval), 2),
	}}

	res, err := newEngine(st, conn).Reconcile(ctx, "BTC/USDT", base, base.Add(10*time.Minute))
	if err != nil {
		t.Fatalf("Reconcile() error: %v (write-back failure must not be fatal)", err)
	}
	if len(res.Entries) != 2 {
		t.Errorf("len(Entries) = %d, want 2 (fetched data kept despite write failure)", len(res.Entries))
	}
	var se *store.StorageError
	if !errors.As(res.Reported, &se) {
		t.Errorf("Reported does not wrap StorageError: %v", res.Reported)
	}
}

func TestReconcile_CancelledBetweenGaps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	st := store.NewMemory()

	// Cancel as soon as the first fetch happens; the second gap must not
	// be fetched.
	conn := &cancellingConnector{cancel: cancel}
	st.SaveBulk(context.Background(), "testex", "BTC/USDT", []model.Entry{entryAt(base.Add(interval), 2)})

	_, err := New(Config{Interval: interval}, st, conn, nil).
		Reconcile(ctx, "BTC/USDT", base, base.Add(15*time.Minute))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if got := conn.fetchCalls.Load(); got != 1 {
		t.Errorf("fetch calls = %d, want 1 (cancellation checked between gaps)", got)
	}
}

type cancellingConnector struct {
	cancel     context.CancelFunc
	fetchCalls atomic.Int32
}

func (c *cancellingConnector) Name() string { return "testex" }

func (c *cancellingConnector) CheckAvailability(ctx context.Context, coin string) (bool, error) {
	return true, nil
}

func (c *cancellingConnector) FetchRange(ctx context.Context, coin string, start, end time.Time) ([]model.Entry, error) {
	c.fetchCalls.Add(1)
	c.cancel()
	return nil, nil
}
