package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresRepository stores wallets in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const walletColumns = `user_id, address, public_key, private_key, COALESCE(mnemonic, ''), username,
    auto_approved, auto_active, auto_amount::text, auto_duration_secs,
    COALESCE(auto_started_at, 'epoch'::timestamptz), COALESCE(last_auto_cycle, 'epoch'::timestamptz),
    last_notified_tx, created_at, updated_at`

// Create inserts a wallet record.
func (r *PostgresRepository) Create(ctx context.Context, wallet Wallet) error {
	var mnemonic *string
	if wallet.Mnemonic != "" {
		mnemonic = &wallet.Mnemonic
	}
	_, err := r.db.Exec(ctx, `INSERT INTO wallets (user_id, address, public_key, private_key, mnemonic, username,
        auto_approved, auto_active, auto_amount, auto_duration_secs, last_notified_tx, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		wallet.UserID, wallet.Address, wallet.PublicKey, wallet.PrivateKey, mnemonic, wallet.Username,
		wallet.AutoApproved, wallet.AutoActive, wallet.AutoAmount.String(), int64(wallet.AutoDuration/time.Second),
		wallet.LastNotifiedTx, wallet.CreatedAt.UTC(), wallet.UpdatedAt.UTC())
	return err
}

// Get fetches a wallet by user identity.
func (r *PostgresRepository) Get(ctx context.Context, userID string) (Wallet, error) {
	row := r.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, userID)
	return scanWallet(row)
}

// FindByAddress fetches a wallet by chain address.
func (r *PostgresRepository) FindByAddress(ctx context.Context, address string) (Wallet, error) {
	row := r.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE address = $1`, address)
	return scanWallet(row)
}

// Update applies a partial merge; unset patch fields keep their stored value.
func (r *PostgresRepository) Update(ctx context.Context, userID string, patch Patch) error {
	sets := []string{"updated_at = now()"}
	args := []any{userID}

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Username != nil {
		add("username", *patch.Username)
	}
	if patch.LastNotifiedTx != nil {
		add("last_notified_tx", *patch.LastNotifiedTx)
	}
	if patch.AutoApproved != nil {
		add("auto_approved", *patch.AutoApproved)
	}
	if patch.AutoActive != nil {
		add("auto_active", *patch.AutoActive)
	}
	if patch.AutoAmount != nil {
		add("auto_amount", patch.AutoAmount.String())
	}
	if patch.AutoDuration != nil {
		add("auto_duration_secs", int64(*patch.AutoDuration/time.Second))
	}
	if patch.AutoStartedAt != nil {
		add("auto_started_at", nullableTime(*patch.AutoStartedAt))
	}
	if patch.LastAutoCycle != nil {
		add("last_auto_cycle", nullableTime(*patch.LastAutoCycle))
	}

	query := "UPDATE wallets SET " + joinSets(sets) + " WHERE user_id = $1"
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SwapKeys replaces the keypair triple and clears the mnemonic in one statement.
func (r *PostgresRepository) SwapKeys(ctx context.Context, userID, address, publicKey, privateKey string) error {
	tag, err := r.db.Exec(ctx, `UPDATE wallets SET address = $2, public_key = $3, private_key = $4,
        mnemonic = NULL, updated_at = now() WHERE user_id = $1`, userID, address, publicKey, privateKey)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListUserIDs returns every enrolled user identity.
func (r *PostgresRepository) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT user_id FROM wallets ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListAutoApproved returns enrolled wallets excluding the given user, capped at limit.
func (r *PostgresRepository) ListAutoApproved(ctx context.Context, excludeUserID string, limit int) ([]Wallet, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `SELECT `+walletColumns+` FROM wallets
        WHERE auto_approved AND user_id <> $1 ORDER BY user_id LIMIT $2`, excludeUserID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func scanWallet(row pgx.Row) (Wallet, error) {
	var (
		w             Wallet
		amount        string
		durationSecs  int64
		autoStartedAt time.Time
		lastAutoCycle time.Time
		createdAt     time.Time
		updatedAt     time.Time
	)
	err := row.Scan(&w.UserID, &w.Address, &w.PublicKey, &w.PrivateKey, &w.Mnemonic, &w.Username,
		&w.AutoApproved, &w.AutoActive, &amount, &durationSecs,
		&autoStartedAt, &lastAutoCycle, &w.LastNotifiedTx, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrNotFound
		}
		return Wallet{}, err
	}
	if w.AutoAmount, err = decimal.NewFromString(amount); err != nil {
		return Wallet{}, err
	}
	w.AutoDuration = time.Duration(durationSecs) * time.Second
	w.AutoStartedAt = normalizeEpoch(autoStartedAt)
	w.LastAutoCycle = normalizeEpoch(lastAutoCycle)
	w.CreatedAt = createdAt.UTC()
	w.UpdatedAt = updatedAt.UTC()
	return w, nil
}

// normalizeEpoch maps the COALESCE epoch sentinel back to the zero time.
func normalizeEpoch(t time.Time) time.Time {
	if t.Unix() == 0 {
		return time.Time{}
	}
	return t.UTC()
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	utc := t.UTC()
	return &utc
}

func joinSets(sets []string) string {
	out := sets[0]
	for _, s := range sets[1:] {
		out += ", " + s
	}
	return out
}
