// Package tx builds and signs canonical transfer records for submission to
// the ledger node.
package tx

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
)

const (
	feeTierLow  = "1"
	feeTierHigh = "3"

	// timestampJitter bounds the random offset added to transaction
	// timestamps so transfers built in a tight loop do not collide.
	timestampJitter = 0.01
)

var (
	// microFactor converts whole coins to the smallest on-chain unit.
	microFactor = decimal.NewFromInt(1_000_000)

	// feeTierThreshold is the whole-coin amount at which the higher fee tier applies.
	feeTierThreshold = decimal.NewFromInt(1000)
)

// ErrInvalidAmount indicates an amount that does not round to a positive
// integer of smallest units.
var ErrInvalidAmount = errors.New("invalid amount")

// Transfer is the canonical transfer record. Field order is load-bearing:
// the node verifies signatures against this exact serialization.
type Transfer struct {
	From      string  `json:"from"`
	To        string  `json:"to_"`
	Amount    string  `json:"amount"`
	Nonce     uint64  `json:"nonce"`
	OU        string  `json:"ou"`
	Timestamp float64 `json:"timestamp"`
	Message   string  `json:"message,omitempty"`
}

// ValidateAmount reports whether a decimal amount is acceptable for a
// transfer, without building one. Dispatchers call this before any network
// round trip.
func ValidateAmount(amount decimal.Decimal) error {
	if !microUnits(amount).IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	return nil
}

func microUnits(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(microFactor).Round(0)
}

// BuildTransfer assembles a transfer record. The memo travels in the payload
// but is excluded from the signed bytes.
func BuildTransfer(from, to string, amount decimal.Decimal, nonce uint64, memo string) (Transfer, error) {
	micro := microUnits(amount)
	if !micro.IsPositive() {
		return Transfer{}, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}

	tier := feeTierLow
	if amount.GreaterThanOrEqual(feeTierThreshold) {
		tier = feeTierHigh
	}

	ts := float64(time.Now().UnixNano())/1e9 + rand.Float64()*timestampJitter

	return Transfer{
		From:      from,
		To:        to,
		Amount:    micro.String(),
		Nonce:     nonce,
		OU:        tier,
		Timestamp: ts,
		Message:   memo,
	}, nil
}

// SigningBytes serializes the record without the memo field. Serialization is
// stable for identical input so the node can reproduce it byte for byte.
func (t Transfer) SigningBytes() ([]byte, error) {
	unsigned := t
	unsigned.Message = ""
	b, err := json.Marshal(unsigned)
	if err != nil {
		return nil, fmt.Errorf("serialize transfer: %w", err)
	}
	return b, nil
}

// Sign produces a detached ed25519 signature over the canonical serialization.
func Sign(t Transfer, priv ed25519.PrivateKey) ([]byte, error) {
	b, err := t.SigningBytes()
	if err != nil {
		return nil, err
	}
	return ed25519.Sign(priv, b), nil
}

// Signed is the submission payload: the transfer plus its detached signature
// and the signer's public key, both base64-encoded.
type Signed struct {
	Transfer
	Signature string `json:"signature"`
	PublicKey string `json:"public_key"`
}

// Assemble merges a transfer with its signature for submission.
func Assemble(t Transfer, sig []byte, pub ed25519.PublicKey) Signed {
	return Signed{
		Transfer:  t,
		Signature: base64.StdEncoding.EncodeToString(sig),
		PublicKey: base64.StdEncoding.EncodeToString(pub),
	}
}
