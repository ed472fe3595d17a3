package wallet

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet is one user's custodial account. The address/publicKey/privateKey
// triple is immutable except through Switch, which replaces all three
// atomically and clears the mnemonic.
type Wallet struct {
	UserID     string
	Address    string
	PublicKey  string // hex
	PrivateKey string // key material as supplied or generated; sealed at rest
	Mnemonic   string // empty for wallets created by importing a private key
	Username   string

	AutoApproved  bool
	AutoActive    bool
	AutoAmount    decimal.Decimal
	AutoDuration  time.Duration
	AutoStartedAt time.Time
	LastAutoCycle time.Time

	LastNotifiedTx string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Imported reports whether this wallet was created from external key
// material; such wallets have no mnemonic to back up.
func (w Wallet) Imported() bool {
	return w.Mnemonic == ""
}

// Patch is a partial update: nil fields are left untouched. Key material is
// deliberately absent; it only changes through Repository.SwapKeys.
type Patch struct {
	Username       *string
	LastNotifiedTx *string
	AutoApproved   *bool
	AutoActive     *bool
	AutoAmount     *decimal.Decimal
	AutoDuration   *time.Duration
	AutoStartedAt  *time.Time
	LastAutoCycle  *time.Time
}
