package repository

import (
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	appErrors "github.com/adboardhq/adboard-backend/internal/errors"
	"github.com/adboardhq/adboard-backend/internal/model"
)

type CampaignRepositoryInterface interface {
	Create(c *model.Campaign) error
	GetByID(id int64) (*model.Campaign, error)
	// UpdateStatus is a compare-and-swap on the stored status. False means
	// the campaign was not in the expected state and nothing changed.
	UpdateStatus(id int64, from, to string) (bool, error)
	// ClaimOffer binds a channel to an offered campaign. Only the first
	// concurrent claim wins; excluded channels can never claim.
	ClaimOffer(id, channelID int64) (bool, error)
	// ReleaseChannel moves an accepted campaign to the given status and
	// unbinds its channel in the same statement.
	ReleaseChannel(id int64, to string) (bool, error)
	SetPlacementRef(id int64, ref string) error
	ListOffered() ([]*model.Campaign, error)
	ListByAdvertiser(advertiserID int64) ([]*model.Campaign, error)
	ListExpired(now time.Time) ([]*model.Campaign, error)
	ListByChannel(channelID int64, statuses []string) ([]*model.Campaign, error)
	ExcludeChannel(campaignID, channelID int64) error
	IsChannelExcluded(campaignID, channelID int64) (bool, error)
}

type CampaignRepository struct {
	DB *sqlx.DB
}

const campaignColumns = `id, advertiser_id, channel_id, ad_text, budget, duration_hours, status, placement_ref, created_at, expires_at, updated_at`

func (r *CampaignRepository) Create(c *model.Campaign) error {
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	return r.DB.QueryRow(`
        INSERT INTO campaigns (advertiser_id, ad_text, budget, duration_hours, status, expires_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id, created_at
    `, c.AdvertiserID, c.AdText, c.Budget, c.DurationHours, c.Status, c.ExpiresAt).Scan(&c.ID, &c.CreatedAt)
}

func (r *CampaignRepository) GetByID(id int64) (*model.Campaign, error) {
	var c model.Campaign
	err := r.DB.Get(&c, `SELECT `+campaignColumns+` FROM campaigns WHERE id=$1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return &c, nil
}

func (r *CampaignRepository) UpdateStatus(id int64, from, to string) (bool, error) {
	res, err := r.DB.Exec(`
        UPDATE campaigns SET status=$1, updated_at=NOW()
        WHERE id=$2 AND status=$3
    `, to, id, from)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *CampaignRepository) ClaimOffer(id, channelID int64) (bool, error) {
	res, err := r.DB.Exec(`
        UPDATE campaigns SET status=$1, channel_id=$2, updated_at=NOW()
        WHERE id=$3 AND status=$4
          AND NOT EXISTS (
            SELECT 1 FROM campaign_exclusions
            WHERE campaign_id=$3 AND channel_id=$2
          )
    `, model.CampaignAccepted, channelID, id, model.CampaignOffered)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *CampaignRepository) ReleaseChannel(id int64, to string) (bool, error) {
	res, err := r.DB.Exec(`
        UPDATE campaigns SET status=$1, channel_id=NULL, placement_ref=NULL, updated_at=NOW()
        WHERE id=$2 AND status=$3
    `, to, id, model.CampaignAccepted)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *CampaignRepository) SetPlacementRef(id int64, ref string) error {
	_, err := r.DB.Exec(`UPDATE campaigns SET placement_ref=$1, updated_at=NOW() WHERE id=$2`, ref, id)
	return err
}

func (r *CampaignRepository) ListOffered() ([]*model.Campaign, error) {
	campaigns := []*model.Campaign{}
	err := r.DB.Select(&campaigns, `
        SELECT `+campaignColumns+` FROM campaigns
        WHERE status=$1 AND expires_at > NOW()
        ORDER BY created_at DESC
    `, model.CampaignOffered)
	if err != nil {
		return nil, err
	}
	return campaigns, nil
}

func (r *CampaignRepository) ListByAdvertiser(advertiserID int64) ([]*model.Campaign, error) {
	campaigns := []*model.Campaign{}
	err := r.DB.Select(&campaigns, `
        SELECT `+campaignColumns+` FROM campaigns
        WHERE advertiser_id=$1 ORDER BY created_at DESC
    `, advertiserID)
	if err != nil {
		return nil, err
	}
	return campaigns, nil
}

// ListExpired returns campaigns holding funds whose deadline has passed.
func (r *CampaignRepository) ListExpired(now time.Time) ([]*model.Campaign, error) {
	campaigns := []*model.Campaign{}
	err := r.DB.Select(&campaigns, `
        SELECT `+campaignColumns+` FROM campaigns
        WHERE status IN ($1, $2, $3) AND expires_at <= $4
    `, model.CampaignFunded, model.CampaignOffered, model.CampaignAccepted, now)
	if err != nil {
		return nil, err
	}
	return campaigns, nil
}

func (r *CampaignRepository) ListByChannel(channelID int64, statuses []string) ([]*model.Campaign, error) {
	query, args, err := sqlx.In(`
        SELECT `+campaignColumns+` FROM campaigns
        WHERE channel_id = ? AND status IN (?)
    `, channelID, statuses)
	if err != nil {
		return nil, err
	}
	query = r.DB.Rebind(query)

	campaigns := []*model.Campaign{}
	if err := r.DB.Select(&campaigns, query, args...); err != nil {
		return nil, err
	}
	return campaigns, nil
}

func (r *CampaignRepository) ExcludeChannel(campaignID, channelID int64) error {
	_, err := r.DB.Exec(`
        INSERT INTO campaign_exclusions (campaign_id, channel_id)
        VALUES ($1, $2)
        ON CONFLICT (campaign_id, channel_id) DO NOTHING
    `, campaignID, channelID)
	return err
}

func (r *CampaignRepository) IsChannelExcluded(campaignID, channelID int64) (bool, error) {
	var excluded bool
	err := r.DB.Get(&excluded, `
        SELECT EXISTS(SELECT 1 FROM campaign_exclusions WHERE campaign_id=$1 AND channel_id=$2)
    `, campaignID, channelID)
	return excluded, err
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
