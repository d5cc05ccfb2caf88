package repository

import (
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/adboardhq/adboard-backend/internal/model"
)

type EscrowRepositoryInterface interface {
	CreateHold(campaignID, amount int64) (*model.EscrowHold, error)
	GetByID(id int64) (*model.EscrowHold, error)
	GetByCampaign(campaignID int64) (*model.EscrowHold, error)
	// Finalize moves a hold from held to released or refunded. The hold's own
	// status is the compare-and-swap guard: false means it was already
	// finalized (or never held).
	Finalize(id int64, to string) (bool, error)
}

type EscrowRepository struct {
	DB *sqlx.DB
}

const holdColumns = `id, campaign_id, amount, status, created_at, finalized_at`

func (r *EscrowRepository) CreateHold(campaignID, amount int64) (*model.EscrowHold, error) {
	var h model.EscrowHold
	err := r.DB.Get(&h, `
        INSERT INTO escrow_holds (campaign_id, amount, status)
        VALUES ($1, $2, 'held')
        RETURNING `+holdColumns+`
    `, campaignID, amount)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func (r *EscrowRepository) GetByID(id int64) (*model.EscrowHold, error) {
	var h model.EscrowHold
	err := r.DB.Get(&h, `SELECT `+holdColumns+` FROM escrow_holds WHERE id=$1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &h, nil
}

// GetByCampaign returns the most recent hold for the campaign, or nil.
func (r *EscrowRepository) GetByCampaign(campaignID int64) (*model.EscrowHold, error) {
	var h model.EscrowHold
	err := r.DB.Get(&h, `
        SELECT `+holdColumns+` FROM escrow_holds
        WHERE campaign_id=$1 ORDER BY id DESC LIMIT 1
    `, campaignID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &h, nil
}

func (r *EscrowRepository) Finalize(id int64, to string) (bool, error) {
	res, err := r.DB.Exec(`
        UPDATE escrow_holds SET status=$1, finalized_at=NOW()
        WHERE id=$2 AND status='held'
    `, to, id)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

var _ EscrowRepositoryInterface = (*EscrowRepository)(nil)
