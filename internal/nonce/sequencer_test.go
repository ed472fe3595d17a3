package nonce

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/octwallet/octwallet/internal/ledgerrpc"
)

func TestReserveAssignsConsecutiveNonces(t *testing.T) {
	node := ledgerrpc.NewInMemory()
	node.SeedState("octA", decimal.NewFromInt(100), 41)
	seq := NewSequencer(node)

	res, err := seq.Reserve(context.Background(), "octA", 3)
	if err != nil {
		t.Fatalf("Reserve() error: %v", err)
	}
	defer res.Release()

	want := []uint64{42, 43, 44}
	for i, n := range want {
		if got := res.Nonce(i); got != n {
			t.Fatalf("nonce(%d) = %d, want %d", i, got, n)
		}
	}
}

func TestReserveFailsWhenStateUnavailable(t *testing.T) {
	node := ledgerrpc.NewInMemory()
	node.FailAccountState(true)
	seq := NewSequencer(node)

	if _, err := seq.Reserve(context.Background(), "octA", 1); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestReserveRejectsZeroCount(t *testing.T) {
	seq := NewSequencer(ledgerrpc.NewInMemory())
	if _, err := seq.Reserve(context.Background(), "octA", 0); err == nil {
		t.Fatal("expected error for zero count")
	}
}

func TestReserveSerializesPerAddress(t *testing.T) {
	node := ledgerrpc.NewInMemory()
	seq := NewSequencer(node)

	first, err := seq.Reserve(context.Background(), "octA", 1)
	if err != nil {
		t.Fatalf("Reserve() error: %v", err)
	}

	second := make(chan *Reservation, 1)
	go func() {
		res, err := seq.Reserve(context.Background(), "octA", 1)
		if err != nil {
			t.Errorf("second Reserve() error: %v", err)
		}
		second <- res
	}()

	select {
	case <-second:
		t.Fatal("second reservation proceeded while first was held")
	case <-time.After(50 * time.Millisecond):
	}

	first.Release()
	first.Release() // idempotent

	select {
	case res := <-second:
		res.Release()
	case <-time.After(2 * time.Second):
		t.Fatal("second reservation never acquired the lock")
	}
}

func TestReserveDifferentAddressesIndependent(t *testing.T) {
	seq := NewSequencer(ledgerrpc.NewInMemory())

	a, err := seq.Reserve(context.Background(), "octA", 1)
	if err != nil {
		t.Fatalf("Reserve(octA) error: %v", err)
	}
	defer a.Release()

	done := make(chan struct{})
	go func() {
		b, err := seq.Reserve(context.Background(), "octB", 1)
		if err == nil {
			b.Release()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reservation for a different address blocked")
	}
}
