package ledgerrpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/octwallet/octwallet/internal/tx"
)

func TestAccountStateJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/balance/octAddr" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"balance":"123.5","nonce":7}`))
	}))
	defer srv.Close()

	state, err := NewHTTPClient(srv.URL).AccountState(context.Background(), "octAddr")
	if err != nil {
		t.Fatalf("AccountState() error: %v", err)
	}
	if state.Balance.String() != "123.5" || state.Nonce != 7 {
		t.Fatalf("unexpected state %+v", state)
	}
}

func TestAccountStateTextFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("42.25 11\n"))
	}))
	defer srv.Close()

	state, err := NewHTTPClient(srv.URL).AccountState(context.Background(), "octAddr")
	if err != nil {
		t.Fatalf("AccountState() error: %v", err)
	}
	if state.Balance.String() != "42.25" || state.Nonce != 11 {
		t.Fatalf("unexpected state %+v", state)
	}
}

func TestAccountStateNotFoundIsZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	state, err := NewHTTPClient(srv.URL).AccountState(context.Background(), "octUnknown")
	if err != nil {
		t.Fatalf("AccountState() error: %v", err)
	}
	if !state.Balance.IsZero() || state.Nonce != 0 {
		t.Fatalf("expected zero state, got %+v", state)
	}
}

func TestAccountStateMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("garbage"))
	}))
	defer srv.Close()

	if _, err := NewHTTPClient(srv.URL).AccountState(context.Background(), "octAddr"); !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}

func TestSubmitAccepted(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/send-tx" || r.Method != http.MethodPost {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.Write([]byte(`{"status":"accepted","tx_hash":"abc123"}`))
	}))
	defer srv.Close()

	signed := tx.Signed{
		Transfer:  tx.Transfer{From: "octA", To: "octB", Amount: "10000000", Nonce: 3, OU: "1", Timestamp: 1},
		Signature: "c2ln",
		PublicKey: "cHVi",
	}
	res, err := NewHTTPClient(srv.URL).Submit(context.Background(), signed)
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if !res.Accepted || res.TxHash != "abc123" {
		t.Fatalf("unexpected result %+v", res)
	}
	if received["to_"] != "octB" || received["signature"] != "c2ln" {
		t.Fatalf("payload missing canonical fields: %v", received)
	}
}

func TestSubmitRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"status":"rejected","reason":"bad nonce"}`))
	}))
	defer srv.Close()

	res, err := NewHTTPClient(srv.URL).Submit(context.Background(), tx.Signed{})
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if res.Accepted {
		t.Fatal("rejection reported as accepted")
	}
	if res.Detail == "" {
		t.Fatal("rejection detail dropped")
	}
}

func TestSubmitTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // refuse connections

	if _, err := NewHTTPClient(srv.URL).Submit(context.Background(), tx.Signed{}); !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}

func TestRecentTransactionsAndDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/address/octA":
			w.Write([]byte(`{"recent_transactions":[{"hash":"h1"},{"hash":"h2"}]}`))
		case "/tx/h1":
			w.Write([]byte(`{"hash":"h1","epoch":12,"parsed_tx":{"from":"octA","to":"octB","amount":"5","nonce":2,"timestamp":1700000000}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL)
	hashes, err := client.RecentTransactions(context.Background(), "octA", 5)
	if err != nil {
		t.Fatalf("RecentTransactions() error: %v", err)
	}
	if len(hashes) != 2 || hashes[0] != "h1" {
		t.Fatalf("unexpected hashes %v", hashes)
	}

	detail, err := client.TransactionDetail(context.Background(), "h1")
	if err != nil {
		t.Fatalf("TransactionDetail() error: %v", err)
	}
	if detail.From != "octA" || detail.To != "octB" || detail.Epoch != 12 || detail.Nonce != 2 {
		t.Fatalf("unexpected detail %+v", detail)
	}
	if detail.Amount.String() != "5" {
		t.Fatalf("unexpected amount %s", detail.Amount)
	}
	if detail.Timestamp.IsZero() {
		t.Fatal("timestamp not parsed")
	}
}
