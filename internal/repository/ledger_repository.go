package repository

import (
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	appErrors "github.com/adboardhq/adboard-backend/internal/errors"
	"github.com/adboardhq/adboard-backend/internal/model"
)

type LedgerRepositoryInterface interface {
	// Apply inserts a ledger entry and adjusts the cached balance in one DB
	// transaction. Amount is signed. A negative amount that would take the
	// balance below zero fails with ErrInsufficientFunds and applies nothing.
	// A duplicate (kind, reference) pair returns the original row unchanged.
	Apply(userID int64, amount int64, kind, reference string, campaignID *int64) (*model.Transaction, error)
	FindByReference(kind, reference string) (*model.Transaction, error)
	Balance(userID int64) (int64, error)
	ListByUser(userID int64, limit int) ([]model.Transaction, error)
}

type LedgerRepository struct {
	DB *sqlx.DB
}

const txColumns = `id, user_id, campaign_id, kind, amount, reference, created_at`

func (r *LedgerRepository) Apply(userID int64, amount int64, kind, reference string, campaignID *int64) (*model.Transaction, error) {
	dbTx, err := r.DB.Beginx()
	if err != nil {
		return nil, err
	}
	defer dbTx.Rollback()

	// Idempotency check under the same transaction.
	var existing model.Transaction
	err = dbTx.Get(&existing, `SELECT `+txColumns+` FROM transactions WHERE kind=$1 AND reference=$2`, kind, reference)
	if err == nil {
		return &existing, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	// The balance guard rejects the debit as a whole, never clamps.
	res, err := dbTx.Exec(`
        UPDATE users SET balance = balance + $1, updated_at = NOW()
        WHERE id = $2 AND balance + $1 >= 0
    `, amount, userID)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		var exists bool
		if err := dbTx.Get(&exists, `SELECT EXISTS(SELECT 1 FROM users WHERE id=$1)`, userID); err != nil {
			return nil, err
		}
		if !exists {
			return nil, appErrors.NewUserNotFound(userID)
		}
		return nil, appErrors.ErrInsufficientFunds
	}

	var entry model.Transaction
	err = dbTx.Get(&entry, `
        INSERT INTO transactions (user_id, campaign_id, kind, amount, reference)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING `+txColumns+`
    `, userID, campaignID, kind, amount, reference)
	if err != nil {
		// Lost a race on the same reference: the winner's row is the answer.
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			dbTx.Rollback()
			return r.FindByReference(kind, reference)
		}
		return nil, err
	}

	if err := dbTx.Commit(); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *LedgerRepository) FindByReference(kind, reference string) (*model.Transaction, error) {
	var entry model.Transaction
	err := r.DB.Get(&entry, `SELECT `+txColumns+` FROM transactions WHERE kind=$1 AND reference=$2`, kind, reference)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *LedgerRepository) Balance(userID int64) (int64, error) {
	var balance int64
	err := r.DB.Get(&balance, `SELECT balance FROM users WHERE id=$1`, userID)
	if err == sql.ErrNoRows {
		return 0, appErrors.NewUserNotFound(userID)
	}
	return balance, err
}

func (r *LedgerRepository) ListByUser(userID int64, limit int) ([]model.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	entries := []model.Transaction{}
	err := r.DB.Select(&entries, `
        SELECT `+txColumns+` FROM transactions
        WHERE user_id=$1 ORDER BY id DESC LIMIT $2
    `, userID, limit)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

var _ LedgerRepositoryInterface = (*LedgerRepository)(nil)
