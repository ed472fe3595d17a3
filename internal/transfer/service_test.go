package transfer

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/octwallet/octwallet/internal/keys"
	"github.com/octwallet/octwallet/internal/ledgerrpc"
	"github.com/octwallet/octwallet/internal/nonce"
	"github.com/octwallet/octwallet/internal/notification"
	"github.com/octwallet/octwallet/internal/tx"
	"github.com/octwallet/octwallet/internal/txlog"
	"github.com/octwallet/octwallet/internal/wallet"
)

type captureNotifier struct {
	mu   sync.Mutex
	fail error
	sent []notification.Message
}

func (c *captureNotifier) Send(_ context.Context, m notification.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, m)
	return c.fail
}

func (c *captureNotifier) failWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail = err
}

func (c *captureNotifier) messages() []notification.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]notification.Message, len(c.sent))
	copy(out, c.sent)
	return out
}

type fixture struct {
	svc      *Service
	wallets  *wallet.Service
	node     *ledgerrpc.InMemory
	log      txlog.Repository
	notifier *captureNotifier
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	cipher, err := keys.NewCipher([]byte("test-master"), keys.TestCipherParams())
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	node := ledgerrpc.NewInMemory()
	wallets := wallet.NewService(wallet.NewMemoryRepository(), node, cipher, nil)
	log := txlog.NewMemoryRepository()
	notifier := &captureNotifier{}
	svc := NewService(wallets, node, nonce.NewSequencer(node), log, notifier, slog.Default(), Config{
		ExplorerBaseURL: "https://octrascan.io/tx/",
	})
	return fixture{svc: svc, wallets: wallets, node: node, log: log, notifier: notifier}
}

func (f fixture) newWallet(t *testing.T, userID string, balance int64, nonceVal uint64) wallet.Wallet {
	t.Helper()
	if _, err := f.wallets.CreateOrLoad(context.Background(), userID, ""); err != nil {
		t.Fatalf("create wallet %s: %v", userID, err)
	}
	w, err := f.wallets.Get(context.Background(), userID)
	if err != nil {
		t.Fatalf("get wallet %s: %v", userID, err)
	}
	f.node.SeedState(w.Address, decimal.NewFromInt(balance), nonceVal)
	return w
}

func TestSendSingleAcceptedAndLogged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sender := f.newWallet(t, "sender", 100, 7)

	receipt, err := f.svc.SendSingle(ctx, "sender", Recipient{Address: "octExternal", Amount: decimal.NewFromInt(5)})
	if err != nil {
		t.Fatalf("SendSingle() error: %v", err)
	}
	if receipt.TxHash == "" {
		t.Fatal("empty tx hash")
	}
	if !strings.HasPrefix(receipt.ExplorerURL, "https://octrascan.io/tx/") || !strings.HasSuffix(receipt.ExplorerURL, receipt.TxHash) {
		t.Fatalf("unexpected explorer url %s", receipt.ExplorerURL)
	}

	submitted := f.node.Submitted()
	if len(submitted) != 1 {
		t.Fatalf("submitted %d transactions, want 1", len(submitted))
	}
	if submitted[0].From != sender.Address || submitted[0].Nonce != 8 {
		t.Fatalf("unexpected submission %+v", submitted[0].Transfer)
	}
	if submitted[0].Amount != "5000000" {
		t.Fatalf("amount %s, want 5000000 micro units", submitted[0].Amount)
	}

	records, err := f.log.ListByUser(ctx, "sender", 10)
	if err != nil {
		t.Fatalf("list log: %v", err)
	}
	if len(records) != 1 || records[0].TxHash != receipt.TxHash || records[0].Status != txlog.StatusPending {
		t.Fatalf("unexpected log records %+v", records)
	}
}

func TestSendSingleRejectedByLedger(t *testing.T) {
	f := newFixture(t)
	f.newWallet(t, "sender", 100, 0)
	f.node.RejectRecipient("octBad", "insufficient balance")

	_, err := f.svc.SendSingle(context.Background(), "sender", Recipient{Address: "octBad", Amount: decimal.NewFromInt(1)})
	if !errors.Is(err, ErrLedgerRejected) {
		t.Fatalf("expected ErrLedgerRejected, got %v", err)
	}
	if !strings.Contains(err.Error(), "insufficient balance") {
		t.Fatalf("rejection detail lost: %v", err)
	}

	// Rejections never reach the log.
	records, _ := f.log.ListByUser(context.Background(), "sender", 10)
	if len(records) != 0 {
		t.Fatalf("rejected transfer logged: %+v", records)
	}
}

func TestSendSingleTransportFailure(t *testing.T) {
	f := newFixture(t)
	f.newWallet(t, "sender", 100, 0)
	f.node.FailSubmit(true)

	_, err := f.svc.SendSingle(context.Background(), "sender", Recipient{Address: "octA", Amount: decimal.NewFromInt(1)})
	if !errors.Is(err, ledgerrpc.ErrTransport) {
		t.Fatalf("expected ledgerrpc.ErrTransport, got %v", err)
	}
	if errors.Is(err, ErrLedgerRejected) {
		t.Fatalf("transport failure reported as rejection: %v", err)
	}

	records, _ := f.log.ListByUser(context.Background(), "sender", 10)
	if len(records) != 0 {
		t.Fatalf("failed submission logged: %+v", records)
	}
}

func TestSendMultiPartialFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.newWallet(t, "sender", 1000, 41)
	f.node.RejectRecipient("octB", "recipient frozen")

	res, err := f.svc.SendMulti(ctx, "sender", []Recipient{
		{Address: "octA", Amount: decimal.NewFromInt(1)},
		{Address: "octB", Amount: decimal.NewFromInt(2)},
		{Address: "octC", Amount: decimal.NewFromInt(3)},
	})
	if err != nil {
		t.Fatalf("SendMulti() error: %v", err)
	}
	if res.SuccessCount != 2 || res.FailedCount != 1 {
		t.Fatalf("counts %d/%d, want 2/1", res.SuccessCount, res.FailedCount)
	}
	if res.Results[1].Success || res.Results[1].Reason != "recipient frozen" {
		t.Fatalf("unexpected failed leg %+v", res.Results[1])
	}
	if !res.Results[0].Success || !res.Results[2].Success {
		t.Fatalf("expected outer legs to succeed: %+v", res.Results)
	}

	// All three legs were submitted with consecutive nonces, rejection included.
	submitted := f.node.Submitted()
	if len(submitted) != 3 {
		t.Fatalf("submitted %d, want 3", len(submitted))
	}
	for i, want := range []uint64{42, 43, 44} {
		if submitted[i].Nonce != want {
			t.Fatalf("leg %d nonce %d, want %d", i, submitted[i].Nonce, want)
		}
	}

	records, _ := f.log.ListByUser(ctx, "sender", 10)
	if len(records) != 2 {
		t.Fatalf("logged %d records, want 2", len(records))
	}
}

func TestDispatchRejectsBadAmountBeforeNetwork(t *testing.T) {
	f := newFixture(t)
	f.newWallet(t, "sender", 100, 0)
	before := f.node.StateQueries()

	_, err := f.svc.SendMulti(context.Background(), "sender", []Recipient{
		{Address: "octA", Amount: decimal.NewFromInt(1)},
		{Address: "octB", Amount: decimal.Zero},
	})
	if !errors.Is(err, tx.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if f.node.StateQueries() != before {
		t.Fatal("invalid amount still triggered a nonce query")
	}
	if len(f.node.Submitted()) != 0 {
		t.Fatal("invalid batch reached the node")
	}
}

func TestSendUnknownWallet(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.SendSingle(context.Background(), "ghost", Recipient{Address: "octA", Amount: decimal.NewFromInt(1)})
	if !errors.Is(err, wallet.ErrNotFound) {
		t.Fatalf("expected wallet.ErrNotFound, got %v", err)
	}
}

func TestCustodialRecipientNotified(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.newWallet(t, "sender", 100, 0)
	receiver := f.newWallet(t, "receiver", 0, 0)

	if _, err := f.svc.SendSingle(ctx, "sender", Recipient{Address: receiver.Address, Amount: decimal.NewFromInt(2)}); err != nil {
		t.Fatalf("SendSingle() error: %v", err)
	}

	msgs := f.notifier.messages()
	if len(msgs) != 1 {
		t.Fatalf("got %d notifications, want 1", len(msgs))
	}
	if msgs[0].Destination != "receiver" || msgs[0].Kind != notification.KindTransferReceived {
		t.Fatalf("unexpected notification %+v", msgs[0])
	}
	if !strings.Contains(msgs[0].Body, "2 OCT") {
		t.Fatalf("notification body missing amount: %q", msgs[0].Body)
	}

	// External recipients are skipped without error.
	if _, err := f.svc.SendSingle(ctx, "sender", Recipient{Address: "octExternal", Amount: decimal.NewFromInt(1)}); err != nil {
		t.Fatalf("external SendSingle() error: %v", err)
	}
	if len(f.notifier.messages()) != 1 {
		t.Fatal("external recipient produced a notification")
	}
}

func TestNotifierFailureDoesNotAffectDispatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.newWallet(t, "sender", 100, 0)
	receiver := f.newWallet(t, "receiver", 0, 0)
	f.notifier.failWith(errors.New("chat unreachable"))

	receipt, err := f.svc.SendSingle(ctx, "sender", Recipient{Address: receiver.Address, Amount: decimal.NewFromInt(4)})
	if err != nil {
		t.Fatalf("SendSingle() error despite notifier failure: %v", err)
	}
	if receipt.TxHash == "" {
		t.Fatal("empty tx hash")
	}

	records, _ := f.log.ListByUser(ctx, "sender", 10)
	if len(records) != 1 || records[0].TxHash != receipt.TxHash {
		t.Fatalf("unexpected log records %+v", records)
	}

	res, err := f.svc.SendMulti(ctx, "sender", []Recipient{
		{Address: receiver.Address, Amount: decimal.NewFromInt(1)},
		{Address: "octExternal", Amount: decimal.NewFromInt(2)},
	})
	if err != nil {
		t.Fatalf("SendMulti() error despite notifier failure: %v", err)
	}
	if res.SuccessCount != 2 || res.FailedCount != 0 {
		t.Fatalf("counts %d/%d, want 2/0", res.SuccessCount, res.FailedCount)
	}
}
