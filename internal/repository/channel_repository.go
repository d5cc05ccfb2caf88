package repository

import (
	"database/sql"

	"github.com/jmoiron/sqlx"

	appErrors "github.com/adboardhq/adboard-backend/internal/errors"
	"github.com/adboardhq/adboard-backend/internal/model"
)

type ChannelRepositoryInterface interface {
	Create(ch *model.Channel) error
	GetByID(id int64) (*model.Channel, error)
	GetByTelegramID(tgID int64) (*model.Channel, error)
	ListByOwner(ownerID int64) ([]*model.Channel, error)
	ListByVerification(state string) ([]*model.Channel, error)
	UpdateVerification(id int64, state string, subscriberCount int) error
	AdjustTrustScore(id int64, delta int) error
}

type ChannelRepository struct {
	DB *sqlx.DB
}

const channelColumns = `id, owner_id, telegram_channel_id, name, verification, subscriber_count, trust_score, last_checked_at, created_at, updated_at`

func (r *ChannelRepository) Create(ch *model.Channel) error {
	if ch.Verification == "" {
		ch.Verification = model.ChannelUnverified
	}
	return r.DB.QueryRow(`
        INSERT INTO channels (owner_id, telegram_channel_id, name, verification, subscriber_count, trust_score)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id, created_at
    `, ch.OwnerID, ch.TelegramChannelID, ch.Name, ch.Verification, ch.SubscriberCount, ch.TrustScore).Scan(&ch.ID, &ch.CreatedAt)
}

func (r *ChannelRepository) GetByID(id int64) (*model.Channel, error) {
	var ch model.Channel
	err := r.DB.Get(&ch, `SELECT `+channelColumns+` FROM channels WHERE id=$1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewChannelNotFound(id)
		}
		return nil, err
	}
	return &ch, nil
}

func (r *ChannelRepository) GetByTelegramID(tgID int64) (*model.Channel, error) {
	var ch model.Channel
	err := r.DB.Get(&ch, `SELECT `+channelColumns+` FROM channels WHERE telegram_channel_id=$1`, tgID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &ch, nil
}

func (r *ChannelRepository) ListByOwner(ownerID int64) ([]*model.Channel, error) {
	channels := []*model.Channel{}
	err := r.DB.Select(&channels, `SELECT `+channelColumns+` FROM channels WHERE owner_id=$1`, ownerID)
	if err != nil {
		return nil, err
	}
	return channels, nil
}

func (r *ChannelRepository) ListByVerification(state string) ([]*model.Channel, error) {
	channels := []*model.Channel{}
	err := r.DB.Select(&channels, `SELECT `+channelColumns+` FROM channels WHERE verification=$1`, state)
	if err != nil {
		return nil, err
	}
	return channels, nil
}

func (r *ChannelRepository) UpdateVerification(id int64, state string, subscriberCount int) error {
	_, err := r.DB.Exec(`
        UPDATE channels
        SET verification=$1, subscriber_count=$2, last_checked_at=NOW(), updated_at=NOW()
        WHERE id=$3
    `, state, subscriberCount, id)
	return err
}

func (r *ChannelRepository) AdjustTrustScore(id int64, delta int) error {
	_, err := r.DB.Exec(`
        UPDATE channels SET trust_score = GREATEST(trust_score + $1, 0), updated_at=NOW()
        WHERE id=$2
    `, delta, id)
	return err
}

var _ ChannelRepositoryInterface = (*ChannelRepository)(nil)
