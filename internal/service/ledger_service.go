// internal/service/ledger_service.go
package service

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/adboardhq/adboard-backend/internal/model"
	"github.com/adboardhq/adboard-backend/internal/repository"
)

// LedgerService owns all balance mutations. Every call emits exactly one
// transaction record; duplicate submissions with the same (kind, reference)
// pair are no-ops returning the original record.
type LedgerService struct {
	Repo repository.LedgerRepositoryInterface

	locks keyedMutex // per-actor serialization
}

// Debit removes amount from the actor's balance. Fails with
// ErrInsufficientFunds when the balance cannot cover it; nothing is applied.
func (s *LedgerService) Debit(userID, amount int64, kind, reference string, campaignID *int64) (*model.Transaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("debit amount must be positive, got %d", amount)
	}

	unlock := s.locks.lock(userID)
	defer unlock()

	entry, err := s.Repo.Apply(userID, -amount, kind, reference, campaignID)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"user_id":   userID,
		"amount":    -amount,
		"kind":      kind,
		"reference": reference,
	}).Info("ledger debit")
	return entry, nil
}

// Credit adds amount to the actor's balance.
func (s *LedgerService) Credit(userID, amount int64, kind, reference string, campaignID *int64) (*model.Transaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("credit amount must be positive, got %d", amount)
	}

	unlock := s.locks.lock(userID)
	defer unlock()

	entry, err := s.Repo.Apply(userID, amount, kind, reference, campaignID)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"user_id":   userID,
		"amount":    amount,
		"kind":      kind,
		"reference": reference,
	}).Info("ledger credit")
	return entry, nil
}

// TopUp credits virtual funds. The reference is caller-supplied so client
// retries cannot double-deposit.
func (s *LedgerService) TopUp(userID, amount int64, reference string) (*model.Transaction, error) {
	if reference == "" {
		return nil, fmt.Errorf("topup reference is required")
	}
	return s.Credit(userID, amount, model.KindTopup, reference, nil)
}

func (s *LedgerService) Balance(userID int64) (int64, error) {
	return s.Repo.Balance(userID)
}

func (s *LedgerService) History(userID int64, limit int) ([]model.Transaction, error) {
	return s.Repo.ListByUser(userID, limit)
}

// FindByReference exposes the idempotency lookup for re-driven settlements.
func (s *LedgerService) FindByReference(kind, reference string) (*model.Transaction, error) {
	return s.Repo.FindByReference(kind, reference)
}
