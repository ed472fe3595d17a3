package txlog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresRepository stores transaction records in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a transaction log backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Append inserts one record.
func (r *PostgresRepository) Append(ctx context.Context, record Record) error {
	id, err := uuid.Parse(record.ID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO transactions (id, user_id, tx_hash, from_address, to_address, amount, nonce, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id, record.UserID, record.TxHash, record.From, record.To, record.Amount.String(), int64(record.Nonce), record.Status, record.CreatedAt.UTC())
	return err
}

// ListByUser returns the newest records for a user, most recent first.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `SELECT id, user_id, tx_hash, from_address, to_address, amount::text, nonce, status, created_at
        FROM transactions WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec       Record
			id        uuid.UUID
			amount    string
			nonce     int64
			createdAt time.Time
		)
		if err := rows.Scan(&id, &rec.UserID, &rec.TxHash, &rec.From, &rec.To, &amount, &nonce, &rec.Status, &createdAt); err != nil {
			return nil, err
		}
		rec.ID = id.String()
		rec.Nonce = uint64(nonce)
		rec.CreatedAt = createdAt.UTC()
		if rec.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
