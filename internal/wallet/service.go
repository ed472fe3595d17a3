package wallet

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/octwallet/octwallet/internal/cache"
	"github.com/octwallet/octwallet/internal/keys"
	"github.com/octwallet/octwallet/internal/ledgerrpc"
)

// Service exposes wallet lifecycle operations over the repository, sealing
// key material before it reaches durable storage.
type Service struct {
	repo     Repository
	ledger   ledgerrpc.Client
	cipher   *keys.Cipher
	balances *cache.Cache
}

// NewService builds a wallet service. The balance cache may be nil.
func NewService(repo Repository, ledger ledgerrpc.Client, cipher *keys.Cipher, balances *cache.Cache) *Service {
	return &Service{repo: repo, ledger: ledger, cipher: cipher, balances: balances}
}

// CreateResult reports the outcome of CreateOrLoad.
type CreateResult struct {
	Address   string
	PublicKey string
	Existed   bool
}

// CreateOrLoad returns the existing wallet for a user, or derives a fresh one
// from new entropy. Safe to call on every first interaction.
func (s *Service) CreateOrLoad(ctx context.Context, userID, username string) (CreateResult, error) {
	if userID == "" {
		return CreateResult{}, fmt.Errorf("user id is required")
	}

	if existing, err := s.repo.Get(ctx, userID); err == nil {
		return CreateResult{Address: existing.Address, PublicKey: existing.PublicKey, Existed: true}, nil
	} else if err != ErrNotFound {
		return CreateResult{}, err
	}

	mnemonic, kp, err := keys.Generate()
	if err != nil {
		return CreateResult{}, fmt.Errorf("derive wallet: %w", err)
	}
	defer kp.Zero()

	now := time.Now().UTC()
	w := Wallet{
		UserID:     userID,
		Address:    kp.Address,
		PublicKey:  hex.EncodeToString(kp.PublicKey),
		PrivateKey: hex.EncodeToString(kp.PrivateKey),
		Mnemonic:   mnemonic,
		Username:   username,
		AutoAmount: decimal.Zero,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	sealed, err := s.seal(w)
	if err != nil {
		return CreateResult{}, err
	}
	if err := s.repo.Create(ctx, sealed); err != nil {
		return CreateResult{}, err
	}
	return CreateResult{Address: w.Address, PublicKey: w.PublicKey}, nil
}

// Get returns the wallet for a user with key material opened.
func (s *Service) Get(ctx context.Context, userID string) (Wallet, error) {
	w, err := s.repo.Get(ctx, userID)
	if err != nil {
		return Wallet{}, err
	}
	return s.open(w)
}

// FindByAddress resolves a wallet by its chain address, key material opened.
func (s *Service) FindByAddress(ctx context.Context, address string) (Wallet, error) {
	w, err := s.repo.FindByAddress(ctx, address)
	if err != nil {
		return Wallet{}, err
	}
	return s.open(w)
}

// Switch imports external private key material for a user, replacing any
// existing keypair. The same material always yields the same address, so the
// operation is idempotent.
func (s *Service) Switch(ctx context.Context, userID, material string) (string, error) {
	kp, err := keys.FromPrivateKey(material)
	if err != nil {
		return "", err
	}
	defer kp.Zero()

	sealedKey, err := s.sealString(material)
	if err != nil {
		return "", err
	}
	publicKey := hex.EncodeToString(kp.PublicKey)

	err = s.repo.SwapKeys(ctx, userID, kp.Address, publicKey, sealedKey)
	if err == ErrNotFound {
		now := time.Now().UTC()
		err = s.repo.Create(ctx, Wallet{
			UserID:     userID,
			Address:    kp.Address,
			PublicKey:  publicKey,
			PrivateKey: sealedKey,
			AutoAmount: decimal.Zero,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
	if err != nil {
		return "", err
	}
	return kp.Address, nil
}

// UpdateUsername changes the display label only.
func (s *Service) UpdateUsername(ctx context.Context, userID, username string) error {
	if username == "" {
		return fmt.Errorf("username is required")
	}
	return s.repo.Update(ctx, userID, Patch{Username: &username})
}

// Update applies a partial patch to mutable wallet fields.
func (s *Service) Update(ctx context.Context, userID string, patch Patch) error {
	return s.repo.Update(ctx, userID, patch)
}

// KeyExport is the sensitive material a user may back up.
type KeyExport struct {
	Address     string
	PrivateKey  string
	Mnemonic    string
	HasMnemonic bool
}

// ExportKeys returns the wallet's secret material for user backup. The
// mnemonic is present only for self-generated wallets.
func (s *Service) ExportKeys(ctx context.Context, userID string) (KeyExport, error) {
	w, err := s.Get(ctx, userID)
	if err != nil {
		return KeyExport{}, err
	}
	return KeyExport{
		Address:     w.Address,
		PrivateKey:  w.PrivateKey,
		Mnemonic:    w.Mnemonic,
		HasMnemonic: !w.Imported(),
	}, nil
}

// BalanceInfo is the ledger view of an address at a point in time.
type BalanceInfo struct {
	Address string          `json:"address"`
	Balance decimal.Decimal `json:"balance"`
	Nonce   uint64          `json:"nonce"`
	AsOf    time.Time       `json:"as_of"`
}

// Balance returns balance and nonce for an address, served from the cache
// when a fresh entry exists.
func (s *Service) Balance(ctx context.Context, address string) (BalanceInfo, error) {
	var cached BalanceInfo
	if hit, err := s.balances.Get(ctx, address, &cached); err == nil && hit {
		return cached, nil
	}

	state, err := s.ledger.AccountState(ctx, address)
	if err != nil {
		return BalanceInfo{}, err
	}

	info := BalanceInfo{Address: address, Balance: state.Balance, Nonce: state.Nonce, AsOf: time.Now().UTC()}
	_ = s.balances.Set(ctx, address, info) // cache failures never block the read
	return info, nil
}

// ListUserIDs returns all enrolled user identities.
func (s *Service) ListUserIDs(ctx context.Context) ([]string, error) {
	return s.repo.ListUserIDs(ctx)
}

// ListAutoApproved returns the auto-transaction cohort for a user, capped at limit.
func (s *Service) ListAutoApproved(ctx context.Context, excludeUserID string, limit int) ([]Wallet, error) {
	members, err := s.repo.ListAutoApproved(ctx, excludeUserID, limit)
	if err != nil {
		return nil, err
	}
	for i, m := range members {
		if members[i], err = s.open(m); err != nil {
			return nil, err
		}
	}
	return members, nil
}

func (s *Service) seal(w Wallet) (Wallet, error) {
	var err error
	if w.PrivateKey, err = s.sealString(w.PrivateKey); err != nil {
		return Wallet{}, err
	}
	if w.Mnemonic != "" {
		if w.Mnemonic, err = s.sealString(w.Mnemonic); err != nil {
			return Wallet{}, err
		}
	}
	return w, nil
}

func (s *Service) open(w Wallet) (Wallet, error) {
	var err error
	if w.PrivateKey, err = s.openString(w.PrivateKey); err != nil {
		return Wallet{}, err
	}
	if w.Mnemonic != "" {
		if w.Mnemonic, err = s.openString(w.Mnemonic); err != nil {
			return Wallet{}, err
		}
	}
	return w, nil
}

func (s *Service) sealString(plain string) (string, error) {
	sealed, err := s.cipher.Seal([]byte(plain))
	if err != nil {
		return "", fmt.Errorf("seal key material: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (s *Service) openString(stored string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return "", fmt.Errorf("decode sealed material: %w", err)
	}
	plain, err := s.cipher.Open(raw)
	if err != nil {
		return "", fmt.Errorf("open key material: %w", err)
	}
	return string(plain), nil
}
