package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/davebekker/signal-budget-bot/internal/models"
	"github.com/davebekker/signal-budget-bot/internal/storage/memory"
	"github.com/shopspring/decimal"
)

// flakyStore fails Save while fail is set.
type flakyStore struct {
	*memory.MemoryStateStore
	mu   sync.Mutex
	fail bool
}

func (f *flakyStore) setFail(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = v
}

func (f *flakyStore) Save(ctx context.Context, state models.LedgerState) error {
	f.mu.Lock()
	fail := f.fail
	f.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return f.MemoryStateStore.Save(ctx, state)
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	keys   []string
}

func (p *recordingPublisher) Publish(_ context.Context, topic, key string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.keys = append(p.keys, key)
	return nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var t0 = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestLedger(t *testing.T, store *flakyStore, opts ...Option) *Ledger {
	t.Helper()
	l, err := NewLedger(context.Background(), store, dec("1.00"), opts...)
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	return l
}

func newFlakyStore() *flakyStore {
	return &flakyStore{MemoryStateStore: memory.NewMemoryStateStore()}
}

func TestNewLedgerInitialisesAndPersistsZeroState(t *testing.T) {
	store := newFlakyStore()
	clock := &fakeClock{now: t0}
	l := newTestLedger(t, store, WithClock(clock.Now))

	snap := l.Snapshot()
	if !snap.Balance.IsZero() {
		t.Fatalf("balance = %s, want 0", snap.Balance)
	}
	if !snap.AllowanceAmount.Equal(dec("1.00")) {
		t.Fatalf("allowance = %s, want 1.00", snap.AllowanceAmount)
	}
	if !snap.LastAccrual.Equal(t0) {
		t.Fatalf("last accrual = %v, want %v", snap.LastAccrual, t0)
	}
	if len(snap.Transactions) != 0 {
		t.Fatalf("transactions = %d, want 0", len(snap.Transactions))
	}
	if store.Saves() != 1 {
		t.Fatalf("saves = %d, want 1", store.Saves())
	}
}

func TestApplyIsExact(t *testing.T) {
	l := newTestLedger(t, newFlakyStore())
	ctx := context.Background()

	deltas := []string{"0.10", "0.20", "0.10", "-0.05", "19.99", "-3.33", "0.01"}
	want := decimal.Zero
	for _, d := range deltas {
		if _, err := l.Apply(ctx, dec(d), "", models.SourceUserCommand); err != nil {
			t.Fatalf("apply %s: %v", d, err)
		}
		want = want.Add(dec(d))
	}

	if !l.Balance().Equal(want) {
		t.Fatalf("balance = %s, want %s", l.Balance(), want)
	}
	if !l.Balance().Equal(dec("17.02")) {
		t.Fatalf("balance = %s, want 17.02", l.Balance())
	}
	if snap := l.Snapshot(); !snap.Sum().Equal(snap.Balance) {
		t.Fatalf("sum of deltas %s != balance %s", snap.Sum(), snap.Balance)
	}
}

func TestApplyRecordsTransaction(t *testing.T) {
	clock := &fakeClock{now: t0}
	l := newTestLedger(t, newFlakyStore(), WithClock(clock.Now))

	balance, err := l.Apply(context.Background(), dec("20"), "groceries", models.SourceUserCommand)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !balance.Equal(dec("20")) {
		t.Fatalf("balance = %s, want 20", balance)
	}

	txs := l.Snapshot().Transactions
	if len(txs) != 1 {
		t.Fatalf("transactions = %d, want 1", len(txs))
	}
	tx := txs[0]
	if !tx.Delta.Equal(dec("20.00")) || tx.Comment != "groceries" || tx.Source != models.SourceUserCommand {
		t.Fatalf("unexpected transaction %+v", tx)
	}
	if tx.Seq != 1 || tx.ID == "" || !tx.Timestamp.Equal(t0) {
		t.Fatalf("unexpected transaction metadata %+v", tx)
	}
}

func TestApplyAllowsNegativeBalance(t *testing.T) {
	l := newTestLedger(t, newFlakyStore())
	balance, err := l.Apply(context.Background(), dec("-3"), "overdraft", models.SourceUserCommand)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !balance.Equal(dec("-3")) {
		t.Fatalf("balance = %s, want -3", balance)
	}
}

func TestApplyRollsBackOnPersistenceFailure(t *testing.T) {
	store := newFlakyStore()
	l := newTestLedger(t, store)
	ctx := context.Background()

	if _, err := l.Apply(ctx, dec("5"), "", models.SourceUserCommand); err != nil {
		t.Fatalf("apply: %v", err)
	}

	store.setFail(true)
	_, err := l.Apply(ctx, dec("7"), "lost", models.SourceUserCommand)
	if !IsPersistence(err) {
		t.Fatalf("err = %v, want persistence error", err)
	}

	snap := l.Snapshot()
	if !snap.Balance.Equal(dec("5")) || len(snap.Transactions) != 1 || snap.NextSeq != 2 {
		t.Fatalf("memory changed after failed save: %+v", snap)
	}

	store.setFail(false)
	persisted, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !persisted.Balance.Equal(snap.Balance) || len(persisted.Transactions) != len(snap.Transactions) {
		t.Fatalf("memory and disk diverged: disk=%+v memory=%+v", persisted, snap)
	}
}

func TestApplyRejectsUnknownSource(t *testing.T) {
	l := newTestLedger(t, newFlakyStore())
	if _, err := l.Apply(context.Background(), dec("1"), "", models.Source("manual")); !errors.Is(err, ErrInvalidSource) {
		t.Fatalf("err = %v, want ErrInvalidSource", err)
	}
}

func TestSetAllowanceAmount(t *testing.T) {
	store := newFlakyStore()
	l := newTestLedger(t, store)
	ctx := context.Background()

	err := l.SetAllowanceAmount(ctx, dec("-3"))
	if !IsValidation(err) {
		t.Fatalf("err = %v, want validation error", err)
	}
	if !l.Snapshot().AllowanceAmount.Equal(dec("1.00")) {
		t.Fatalf("allowance changed after rejected set")
	}

	if err := l.SetAllowanceAmount(ctx, dec("2.50")); err != nil {
		t.Fatalf("set allowance: %v", err)
	}
	if !l.Snapshot().AllowanceAmount.Equal(dec("2.50")) {
		t.Fatalf("allowance = %s, want 2.50", l.Snapshot().AllowanceAmount)
	}

	store.setFail(true)
	if err := l.SetAllowanceAmount(ctx, dec("9")); !IsPersistence(err) {
		t.Fatalf("err = %v, want persistence error", err)
	}
	if !l.Snapshot().AllowanceAmount.Equal(dec("2.50")) {
		t.Fatalf("allowance changed after failed save")
	}
}

func TestRecentHistoryNewestFirst(t *testing.T) {
	l := newTestLedger(t, newFlakyStore())
	ctx := context.Background()

	if got := l.RecentHistory(10); len(got) != 0 {
		t.Fatalf("history of empty ledger = %d entries", len(got))
	}

	for i := 1; i <= 12; i++ {
		if _, err := l.Apply(ctx, decimal.NewFromInt(int64(i)), "", models.SourceUserCommand); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}

	got := l.RecentHistory(10)
	if len(got) != 10 {
		t.Fatalf("history = %d entries, want 10", len(got))
	}
	for i, tx := range got {
		wantSeq := int64(12 - i)
		if tx.Seq != wantSeq {
			t.Fatalf("history[%d].Seq = %d, want %d", i, tx.Seq, wantSeq)
		}
	}

	if got := l.RecentHistory(3); len(got) != 3 || got[0].Seq != 12 {
		t.Fatalf("RecentHistory(3) = %+v", got)
	}
}

func TestRetentionFoldsTrimmedDeltas(t *testing.T) {
	l := newTestLedger(t, newFlakyStore(), WithRetention(3))
	ctx := context.Background()

	for _, d := range []string{"1", "2", "3", "4", "5"} {
		if _, err := l.Apply(ctx, dec(d), "", models.SourceUserCommand); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}

	snap := l.Snapshot()
	if len(snap.Transactions) != 3 {
		t.Fatalf("retained = %d, want 3", len(snap.Transactions))
	}
	if snap.Transactions[0].Seq != 3 {
		t.Fatalf("oldest retained seq = %d, want 3", snap.Transactions[0].Seq)
	}
	if !snap.ArchivedTotal.Equal(dec("3")) {
		t.Fatalf("archived total = %s, want 3", snap.ArchivedTotal)
	}
	if !snap.Balance.Equal(dec("15")) || !snap.Sum().Equal(snap.Balance) {
		t.Fatalf("balance = %s, sum = %s, want 15", snap.Balance, snap.Sum())
	}
}

func TestReloadReproducesState(t *testing.T) {
	store := newFlakyStore()
	l := newTestLedger(t, store)
	ctx := context.Background()

	for _, d := range []string{"20", "-5.50", "0.25"} {
		if _, err := l.Apply(ctx, dec(d), "", models.SourceUserCommand); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}
	before := l.Snapshot()

	// A new ledger over the same store behaves like a restart after a crash.
	reloaded := newTestLedger(t, store)
	after := reloaded.Snapshot()

	if !after.Balance.Equal(before.Balance) {
		t.Fatalf("balance after reload = %s, want %s", after.Balance, before.Balance)
	}
	if len(after.Transactions) != len(before.Transactions) {
		t.Fatalf("transactions after reload = %d, want %d", len(after.Transactions), len(before.Transactions))
	}
	if after.NextSeq != before.NextSeq {
		t.Fatalf("next seq after reload = %d, want %d", after.NextSeq, before.NextSeq)
	}
}

func TestConcurrentAppliesAreSerialised(t *testing.T) {
	l := newTestLedger(t, newFlakyStore())
	ctx := context.Background()

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Apply(ctx, dec("1.00"), "", models.SourceUserCommand); err != nil {
				t.Errorf("apply: %v", err)
			}
		}()
	}
	wg.Wait()

	snap := l.Snapshot()
	if !snap.Balance.Equal(dec("50")) {
		t.Fatalf("balance = %s, want 50", snap.Balance)
	}
	seen := make(map[int64]bool)
	for _, tx := range snap.Transactions {
		if seen[tx.Seq] {
			t.Fatalf("duplicate seq %d", tx.Seq)
		}
		seen[tx.Seq] = true
	}
	if snap.NextSeq != workers+1 {
		t.Fatalf("next seq = %d, want %d", snap.NextSeq, workers+1)
	}
}

func TestAccrueCreditsOnePeriodAtATime(t *testing.T) {
	clock := &fakeClock{now: t0}
	l := newTestLedger(t, newFlakyStore(), WithClock(clock.Now))
	ctx := context.Background()
	period := 7 * 24 * time.Hour

	if _, ok, err := l.Accrue(ctx, dec("1.00"), period); err != nil || ok {
		t.Fatalf("accrue before a full period: ok=%v err=%v", ok, err)
	}

	clock.Advance(2*period + 36*time.Hour)
	for i := 0; i < 2; i++ {
		tx, ok, err := l.Accrue(ctx, dec("1.00"), period)
		if err != nil || !ok {
			t.Fatalf("accrue %d: ok=%v err=%v", i, ok, err)
		}
		if tx.Source != models.SourceScheduledAllowance || tx.Comment != AllowanceComment {
			t.Fatalf("unexpected accrual transaction %+v", tx)
		}
	}
	if _, ok, _ := l.Accrue(ctx, dec("1.00"), period); ok {
		t.Fatalf("third accrual credited with only 2.x periods elapsed")
	}

	snap := l.Snapshot()
	if !snap.LastAccrual.Equal(t0.Add(2 * period)) {
		t.Fatalf("last accrual = %v, want %v", snap.LastAccrual, t0.Add(2*period))
	}
	if !snap.Balance.Equal(dec("2.00")) {
		t.Fatalf("balance = %s, want 2.00", snap.Balance)
	}
}

func TestAccrueFailureKeepsTimestamp(t *testing.T) {
	clock := &fakeClock{now: t0}
	store := newFlakyStore()
	l := newTestLedger(t, store, WithClock(clock.Now))
	period := 7 * 24 * time.Hour

	clock.Advance(period)
	store.setFail(true)
	if _, ok, err := l.Accrue(context.Background(), dec("1.00"), period); !IsPersistence(err) || ok {
		t.Fatalf("accrue: ok=%v err=%v, want persistence error", ok, err)
	}
	if snap := l.Snapshot(); !snap.LastAccrual.Equal(t0) || !snap.Balance.IsZero() {
		t.Fatalf("state changed after failed accrual: %+v", snap)
	}
}

func TestCloseRejectsMutations(t *testing.T) {
	l := newTestLedger(t, newFlakyStore())
	l.Close()

	ctx := context.Background()
	if _, err := l.Apply(ctx, dec("1"), "", models.SourceUserCommand); !errors.Is(err, ErrClosed) {
		t.Fatalf("apply after close: %v", err)
	}
	if err := l.SetAllowanceAmount(ctx, dec("1")); !errors.Is(err, ErrClosed) {
		t.Fatalf("set allowance after close: %v", err)
	}
	if _, _, err := l.Accrue(ctx, dec("1"), time.Hour); !errors.Is(err, ErrClosed) {
		t.Fatalf("accrue after close: %v", err)
	}
}

func TestApplyPublishesEvent(t *testing.T) {
	pub := &recordingPublisher{}
	l := newTestLedger(t, newFlakyStore(), WithPublisher(pub, "budget.transactions"))

	if _, err := l.Apply(context.Background(), dec("4"), "", models.SourceUserCommand); err != nil {
		t.Fatalf("apply: %v", err)
	}
	tx := l.Snapshot().Transactions[0]
	if len(pub.topics) != 1 || pub.topics[0] != "budget.transactions" || pub.keys[0] != tx.ID {
		t.Fatalf("published topics=%v keys=%v", pub.topics, pub.keys)
	}
}

func TestApplyCompletesSaveWhenContextCancelled(t *testing.T) {
	store := newFlakyStore()
	l := newTestLedger(t, store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Apply(ctx, dec("1"), "", models.SourceUserCommand); err != nil {
		t.Fatalf("apply with cancelled context: %v", err)
	}
	persisted, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !persisted.Balance.Equal(dec("1")) {
		t.Fatalf("persisted balance = %s, want 1", persisted.Balance)
	}
}

func TestNewLedgerRejectsStateWithoutAccrualTime(t *testing.T) {
	store := newFlakyStore()
	state := models.NewLedgerState(dec("3.00"), time.Time{})
	state.Balance = dec("12.50")
	state.ArchivedTotal = dec("12.50")
	if err := store.Save(context.Background(), state); err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, err := NewLedger(context.Background(), store, dec("1.00")); !errors.Is(err, ErrNoAccrualTime) {
		t.Fatalf("NewLedger = %v, want ErrNoAccrualTime", err)
	}
}
