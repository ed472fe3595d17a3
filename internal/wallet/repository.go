package wallet

import (
	"context"
	"errors"
)

// ErrNotFound indicates no wallet exists for the requested identity or address.
var ErrNotFound = errors.New("wallet not found")

// Repository persists wallet records. Update performs a partial merge; it
// never overwrites fields absent from the patch.
type Repository interface {
	Create(ctx context.Context, wallet Wallet) error
	Get(ctx context.Context, userID string) (Wallet, error)
	FindByAddress(ctx context.Context, address string) (Wallet, error)
	Update(ctx context.Context, userID string, patch Patch) error
	// SwapKeys atomically replaces the address/publicKey/privateKey triple
	// and clears the mnemonic.
	SwapKeys(ctx context.Context, userID, address, publicKey, privateKey string) error
	ListUserIDs(ctx context.Context) ([]string, error)
	// ListAutoApproved returns wallets enrolled for auto transactions,
	// excluding the given user, capped at limit.
	ListAutoApproved(ctx context.Context, excludeUserID string, limit int) ([]Wallet, error)
}
