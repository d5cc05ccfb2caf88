package repository

import (
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/adboardhq/adboard-backend/internal/model"
)

// UserRepositoryInterface defines methods used by services
type UserRepositoryInterface interface {
	GetByID(id int64) (*model.User, error)
	GetByTelegramID(tgID int64) (*model.User, error)
	GetOrCreate(tgID int64, username, role string) (*model.User, error)
	UpdateRole(id int64, role string) error
	Deactivate(id int64) error
}

// UserRepository is the concrete implementation
type UserRepository struct {
	DB *sqlx.DB
}

func (r *UserRepository) GetByID(id int64) (*model.User, error) {
	var u model.User
	err := r.DB.Get(&u, `
        SELECT id, telegram_id, username, role, balance, is_active, created_at, updated_at
        FROM users WHERE id = $1
    `, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // not found
		}
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) GetByTelegramID(tgID int64) (*model.User, error) {
	var u model.User
	err := r.DB.Get(&u, `
        SELECT id, telegram_id, username, role, balance, is_active, created_at, updated_at
        FROM users WHERE telegram_id = $1
    `, tgID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// GetOrCreate registers a user on first contact.
func (r *UserRepository) GetOrCreate(tgID int64, username, role string) (*model.User, error) {
	existing, err := r.GetByTelegramID(tgID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	var u model.User
	err = r.DB.Get(&u, `
        INSERT INTO users (telegram_id, username, role, balance, is_active)
        VALUES ($1, $2, $3, 0, TRUE)
        ON CONFLICT (telegram_id) DO UPDATE SET username = EXCLUDED.username
        RETURNING id, telegram_id, username, role, balance, is_active, created_at, updated_at
    `, tgID, username, role)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) UpdateRole(id int64, role string) error {
	_, err := r.DB.Exec(`UPDATE users SET role=$1, updated_at=NOW() WHERE id=$2`, role, id)
	return err
}

// Deactivate flags the user; users are never deleted.
func (r *UserRepository) Deactivate(id int64) error {
	_, err := r.DB.Exec(`UPDATE users SET is_active=FALSE, updated_at=NOW() WHERE id=$1`, id)
	return err
}

var _ UserRepositoryInterface = (*UserRepository)(nil)
