package autotx

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/octwallet/octwallet/internal/keys"
	"github.com/octwallet/octwallet/internal/ledgerrpc"
	"github.com/octwallet/octwallet/internal/nonce"
	"github.com/octwallet/octwallet/internal/transfer"
	"github.com/octwallet/octwallet/internal/txlog"
	"github.com/octwallet/octwallet/internal/wallet"
)

type fixture struct {
	engine  *Engine
	wallets *wallet.Service
	node    *ledgerrpc.InMemory
}

func newFixture(t *testing.T, cfg Config) fixture {
	t.Helper()
	cipher, err := keys.NewCipher([]byte("test-master"), keys.TestCipherParams())
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	node := ledgerrpc.NewInMemory()
	wallets := wallet.NewService(wallet.NewMemoryRepository(), node, cipher, nil)
	transfers := transfer.NewService(wallets, node, nonce.NewSequencer(node), txlog.NewMemoryRepository(), nil, slog.Default(), transfer.Config{
		ExplorerBaseURL: "https://octrascan.io/tx/",
	})
	engine := NewEngine(wallets, transfers, node, nil, slog.Default(), cfg)
	t.Cleanup(engine.Shutdown)
	return fixture{engine: engine, wallets: wallets, node: node}
}

// quickConfig keeps one full cycle under a few milliseconds and parks the
// job afterwards so tests observe exactly one round.
func quickConfig() Config {
	return Config{
		CohortCap:       50,
		SettleDelay:     5 * time.Millisecond,
		ReturnSpacing:   time.Millisecond,
		CycleCooldown:   time.Hour,
		RetryCooldown:   time.Hour,
		DefaultDuration: time.Hour,
	}
}

func (f fixture) newWallet(t *testing.T, userID string, approved bool, balance int64) wallet.Wallet {
	t.Helper()
	ctx := context.Background()
	if _, err := f.wallets.CreateOrLoad(ctx, userID, ""); err != nil {
		t.Fatalf("create wallet %s: %v", userID, err)
	}
	if approved {
		yes := true
		if err := f.wallets.Update(ctx, userID, wallet.Patch{AutoApproved: &yes}); err != nil {
			t.Fatalf("approve wallet %s: %v", userID, err)
		}
	}
	w, err := f.wallets.Get(ctx, userID)
	if err != nil {
		t.Fatalf("get wallet %s: %v", userID, err)
	}
	f.node.SeedState(w.Address, decimal.NewFromInt(balance), 0)
	return w
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestStartRequiresApproval(t *testing.T) {
	f := newFixture(t, quickConfig())
	f.newWallet(t, "owner", false, 100)

	err := f.engine.Start(context.Background(), "owner", decimal.NewFromInt(10), time.Hour)
	if !errors.Is(err, ErrNotApproved) {
		t.Fatalf("expected ErrNotApproved, got %v", err)
	}
}

func TestStartRequiresBalance(t *testing.T) {
	f := newFixture(t, quickConfig())
	f.newWallet(t, "owner", true, 5)

	err := f.engine.Start(context.Background(), "owner", decimal.NewFromInt(10), time.Hour)
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestStartRejectsNonPositiveAmount(t *testing.T) {
	f := newFixture(t, quickConfig())
	f.newWallet(t, "owner", true, 100)

	if err := f.engine.Start(context.Background(), "owner", decimal.Zero, time.Hour); err == nil {
		t.Fatal("expected error for zero amount")
	}
}

func TestStartTwiceFails(t *testing.T) {
	f := newFixture(t, quickConfig())
	f.newWallet(t, "owner", true, 100)
	f.newWallet(t, "member", true, 0)
	ctx := context.Background()

	if err := f.engine.Start(ctx, "owner", decimal.NewFromInt(10), time.Hour); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := f.engine.Start(ctx, "owner", decimal.NewFromInt(10), time.Hour); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestStartHonorsCapacity(t *testing.T) {
	cfg := quickConfig()
	cfg.MaxActive = 1
	f := newFixture(t, cfg)
	ctx := context.Background()

	f.newWallet(t, "one", true, 100)
	f.newWallet(t, "two", true, 100)

	if err := f.engine.Start(ctx, "one", decimal.NewFromInt(10), time.Hour); err != nil {
		t.Fatalf("Start(one) error: %v", err)
	}
	if err := f.engine.Start(ctx, "two", decimal.NewFromInt(10), time.Hour); !errors.Is(err, ErrCapacity) {
		t.Fatalf("expected ErrCapacity, got %v", err)
	}
}

func TestCycleFansOutAndReturns(t *testing.T) {
	f := newFixture(t, quickConfig())
	ctx := context.Background()

	owner := f.newWallet(t, "owner", true, 1000)
	m1 := f.newWallet(t, "m1", true, 0)
	m2 := f.newWallet(t, "m2", true, 0)

	if err := f.engine.Start(ctx, "owner", decimal.NewFromInt(10), time.Hour); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	// One round: 2 outbound legs plus 2 return legs.
	waitFor(t, 5*time.Second, "cycle submissions", func() bool {
		return len(f.node.Submitted()) >= 4
	})

	submitted := f.node.Submitted()
	if len(submitted) != 4 {
		t.Fatalf("submitted %d transactions, want 4", len(submitted))
	}

	members := map[string]bool{m1.Address: true, m2.Address: true}
	for _, s := range submitted[:2] {
		if s.From != owner.Address || !members[s.To] {
			t.Fatalf("unexpected outbound leg %s -> %s", s.From, s.To)
		}
		// 10 * 0.95 / 2 coins in micro units.
		if s.Amount != "4750000" {
			t.Fatalf("outbound amount %s, want 4750000", s.Amount)
		}
	}
	for _, s := range submitted[2:] {
		if s.To != owner.Address || !members[s.From] {
			t.Fatalf("unexpected return leg %s -> %s", s.From, s.To)
		}
		// 4.75 * 0.95 coins in micro units.
		if s.Amount != "4512500" {
			t.Fatalf("return amount %s, want 4512500", s.Amount)
		}
	}

	waitFor(t, 5*time.Second, "cycle timestamp", func() bool {
		status, err := f.engine.Status(ctx, "owner")
		return err == nil && !status.LastCycle.IsZero()
	})
}

func TestStopDeactivates(t *testing.T) {
	f := newFixture(t, quickConfig())
	ctx := context.Background()

	f.newWallet(t, "owner", true, 1000)
	f.newWallet(t, "member", true, 0)

	if err := f.engine.Start(ctx, "owner", decimal.NewFromInt(10), time.Hour); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	status, err := f.engine.Status(ctx, "owner")
	if err != nil || !status.Active {
		t.Fatalf("expected active status, got %+v err %v", status, err)
	}

	if err := f.engine.Stop(ctx, "owner"); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	status, err = f.engine.Status(ctx, "owner")
	if err != nil {
		t.Fatalf("Status() error: %v", err)
	}
	if status.Active || status.Running {
		t.Fatalf("wallet still active after stop: %+v", status)
	}

	if err := f.engine.Stop(ctx, "owner"); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}

func TestEmptyCohortTerminatesJob(t *testing.T) {
	f := newFixture(t, quickConfig())
	ctx := context.Background()

	f.newWallet(t, "owner", true, 1000)

	if err := f.engine.Start(ctx, "owner", decimal.NewFromInt(10), time.Hour); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	waitFor(t, 5*time.Second, "job termination", func() bool {
		status, err := f.engine.Status(ctx, "owner")
		return err == nil && !status.Active && !status.Running
	})

	if len(f.node.Submitted()) != 0 {
		t.Fatalf("empty cohort still submitted %d transactions", len(f.node.Submitted()))
	}
}

func TestDurationElapsedEndsJob(t *testing.T) {
	cfg := quickConfig()
	cfg.CycleCooldown = 20 * time.Millisecond
	f := newFixture(t, cfg)
	ctx := context.Background()

	f.newWallet(t, "owner", true, 1000)
	f.newWallet(t, "member", true, 0)

	if err := f.engine.Start(ctx, "owner", decimal.NewFromInt(10), 30*time.Millisecond); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	waitFor(t, 5*time.Second, "duration gate", func() bool {
		status, err := f.engine.Status(ctx, "owner")
		return err == nil && !status.Active && !status.Running
	})
}
