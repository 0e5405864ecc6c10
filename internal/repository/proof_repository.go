package repository

import (
	"context"
	"database/sql"
	"time"
)

// ProofRepo records consumed payment proofs in consumed_payment_proofs. The
// primary key on transaction_id makes a claim single-use across every
// instance sharing the database.
type ProofRepo struct {
	db  *sql.DB
	now func() time.Time
}

func NewProofRepo(db *sql.DB) *ProofRepo { return &ProofRepo{db: db, now: time.Now} }

// Claim inserts the transaction. It returns false when a live claim for
// the same transaction already exists.
func (r *ProofRepo) Claim(ctx context.Context, transactionID string, until time.Time) (bool, error) {
	now := r.now().UTC()
	// Expired proofs are rejected by the verifier, so their rows can go.
	if _, err := r.db.ExecContext(ctx, `DELETE FROM consumed_payment_proofs WHERE expires_at < ?`, now); err != nil {
		return false, err
	}
	const q = `INSERT IGNORE INTO consumed_payment_proofs (transaction_id, expires_at, consumed_at) VALUES (?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, transactionID, until.UTC(), now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *ProofRepo) Release(ctx context.Context, transactionID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM consumed_payment_proofs WHERE transaction_id = ?`, transactionID)
	return err
}
