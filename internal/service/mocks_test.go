package service

import (
	"sync"
	"time"

	"github.com/adboardhq/adboard-backend/internal/config"
	appErrors "github.com/adboardhq/adboard-backend/internal/errors"
	"github.com/adboardhq/adboard-backend/internal/model"
	"github.com/adboardhq/adboard-backend/internal/repository"
)

// In-memory repositories with the same compare-and-swap semantics as the SQL
// implementations, so the concurrency tests exercise real one-winner behavior.

type mockUserRepo struct {
	mu    sync.Mutex
	seq   int64
	users map[int64]*model.User
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[int64]*model.User)}
}

func (m *mockUserRepo) add(role string, balance int64) *model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	u := &model.User{
		ID:         m.seq,
		TelegramID: 100000 + m.seq,
		Username:   "user",
		Role:       role,
		Balance:    balance,
		IsActive:   true,
		CreatedAt:  time.Now(),
	}
	m.users[u.ID] = u
	return u
}

func (m *mockUserRepo) GetByID(id int64) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

func (m *mockUserRepo) GetByTelegramID(tgID int64) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.TelegramID == tgID {
			copied := *u
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *mockUserRepo) GetOrCreate(tgID int64, username, role string) (*model.User, error) {
	if u, _ := m.GetByTelegramID(tgID); u != nil {
		return u, nil
	}
	u := m.add(role, 0)
	m.mu.Lock()
	u.TelegramID = tgID
	u.Username = username
	m.users[u.ID].TelegramID = tgID
	m.users[u.ID].Username = username
	m.mu.Unlock()
	return u, nil
}

func (m *mockUserRepo) UpdateRole(id int64, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.Role = role
	}
	return nil
}

func (m *mockUserRepo) Deactivate(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.IsActive = false
	}
	return nil
}

type mockLedgerRepo struct {
	mu      sync.Mutex
	users   *mockUserRepo
	seq     int64
	entries []*model.Transaction
}

func newMockLedgerRepo(users *mockUserRepo) *mockLedgerRepo {
	return &mockLedgerRepo{users: users}
}

func (m *mockLedgerRepo) Apply(userID int64, amount int64, kind, reference string, campaignID *int64) (*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.entries {
		if e.Kind == kind && e.Reference == reference {
			copied := *e
			return &copied, nil
		}
	}

	m.users.mu.Lock()
	defer m.users.mu.Unlock()
	u, ok := m.users.users[userID]
	if !ok {
		return nil, appErrors.NewUserNotFound(userID)
	}
	if u.Balance+amount < 0 {
		return nil, appErrors.ErrInsufficientFunds
	}
	u.Balance += amount

	m.seq++
	entry := &model.Transaction{
		ID:         m.seq,
		UserID:     userID,
		CampaignID: campaignID,
		Kind:       kind,
		Amount:     amount,
		Reference:  reference,
		CreatedAt:  time.Now(),
	}
	m.entries = append(m.entries, entry)
	copied := *entry
	return &copied, nil
}

func (m *mockLedgerRepo) FindByReference(kind, reference string) (*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.Kind == kind && e.Reference == reference {
			copied := *e
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *mockLedgerRepo) Balance(userID int64) (int64, error) {
	u, err := m.users.GetByID(userID)
	if err != nil {
		return 0, err
	}
	if u == nil {
		return 0, appErrors.NewUserNotFound(userID)
	}
	return u.Balance, nil
}

func (m *mockLedgerRepo) ListByUser(userID int64, limit int) ([]model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Transaction
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if m.entries[i].UserID == userID {
			out = append(out, *m.entries[i])
		}
	}
	return out, nil
}

type mockEscrowRepo struct {
	mu    sync.Mutex
	seq   int64
	holds map[int64]*model.EscrowHold
}

func newMockEscrowRepo() *mockEscrowRepo {
	return &mockEscrowRepo{holds: make(map[int64]*model.EscrowHold)}
}

func (m *mockEscrowRepo) CreateHold(campaignID, amount int64) (*model.EscrowHold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	h := &model.EscrowHold{
		ID:         m.seq,
		CampaignID: campaignID,
		Amount:     amount,
		Status:     model.HoldHeld,
		CreatedAt:  time.Now(),
	}
	m.holds[h.ID] = h
	copied := *h
	return &copied, nil
}

func (m *mockEscrowRepo) GetByID(id int64) (*model.EscrowHold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.holds[id]
	if !ok {
		return nil, nil
	}
	copied := *h
	return &copied, nil
}

func (m *mockEscrowRepo) GetByCampaign(campaignID int64) (*model.EscrowHold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *model.EscrowHold
	for _, h := range m.holds {
		if h.CampaignID == campaignID && (latest == nil || h.ID > latest.ID) {
			latest = h
		}
	}
	if latest == nil {
		return nil, nil
	}
	copied := *latest
	return &copied, nil
}

func (m *mockEscrowRepo) Finalize(id int64, to string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.holds[id]
	if !ok || h.Status != model.HoldHeld {
		return false, nil
	}
	now := time.Now()
	h.Status = to
	h.FinalizedAt = &now
	return true, nil
}

type mockCampaignRepo struct {
	mu        sync.Mutex
	seq       int64
	campaigns map[int64]*model.Campaign
	excluded  map[[2]int64]bool
}

func newMockCampaignRepo() *mockCampaignRepo {
	return &mockCampaignRepo{
		campaigns: make(map[int64]*model.Campaign),
		excluded:  make(map[[2]int64]bool),
	}
}

func (m *mockCampaignRepo) Create(c *model.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	c.ID = m.seq
	c.CreatedAt = time.Now()
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	copied := *c
	m.campaigns[c.ID] = &copied
	return nil
}

func (m *mockCampaignRepo) GetByID(id int64) (*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	copied := *c
	return &copied, nil
}

func (m *mockCampaignRepo) UpdateStatus(id int64, from, to string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok || c.Status != from {
		return false, nil
	}
	c.Status = to
	return true, nil
}

func (m *mockCampaignRepo) ClaimOffer(id, channelID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok || c.Status != model.CampaignOffered {
		return false, nil
	}
	if m.excluded[[2]int64{id, channelID}] {
		return false, nil
	}
	c.Status = model.CampaignAccepted
	c.ChannelID = &channelID
	return true, nil
}

func (m *mockCampaignRepo) ReleaseChannel(id int64, to string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok || c.Status != model.CampaignAccepted {
		return false, nil
	}
	c.Status = to
	c.ChannelID = nil
	c.PlacementRef = nil
	return true, nil
}

func (m *mockCampaignRepo) SetPlacementRef(id int64, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.campaigns[id]; ok {
		c.PlacementRef = &ref
	}
	return nil
}

func (m *mockCampaignRepo) ListOffered() ([]*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var out []*model.Campaign
	for _, c := range m.campaigns {
		if c.Status == model.CampaignOffered && c.ExpiresAt.After(now) {
			copied := *c
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *mockCampaignRepo) ListByAdvertiser(advertiserID int64) ([]*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Campaign
	for _, c := range m.campaigns {
		if c.AdvertiserID == advertiserID {
			copied := *c
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *mockCampaignRepo) ListExpired(now time.Time) ([]*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Campaign
	for _, c := range m.campaigns {
		switch c.Status {
		case model.CampaignFunded, model.CampaignOffered, model.CampaignAccepted:
			if !c.ExpiresAt.After(now) {
				copied := *c
				out = append(out, &copied)
			}
		}
	}
	return out, nil
}

func (m *mockCampaignRepo) ListByChannel(channelID int64, statuses []string) ([]*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Campaign
	for _, c := range m.campaigns {
		if c.ChannelID == nil || *c.ChannelID != channelID {
			continue
		}
		for _, s := range statuses {
			if c.Status == s {
				copied := *c
				out = append(out, &copied)
				break
			}
		}
	}
	return out, nil
}

func (m *mockCampaignRepo) ExcludeChannel(campaignID, channelID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.excluded[[2]int64{campaignID, channelID}] = true
	return nil
}

func (m *mockCampaignRepo) IsChannelExcluded(campaignID, channelID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.excluded[[2]int64{campaignID, channelID}], nil
}

type mockChannelRepo struct {
	mu       sync.Mutex
	seq      int64
	channels map[int64]*model.Channel
}

func newMockChannelRepo() *mockChannelRepo {
	return &mockChannelRepo{channels: make(map[int64]*model.Channel)}
}

func (m *mockChannelRepo) add(ownerID int64, verification string) *model.Channel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	ch := &model.Channel{
		ID:                m.seq,
		OwnerID:           ownerID,
		TelegramChannelID: -1000000 - m.seq,
		Name:              "channel",
		Verification:      verification,
		SubscriberCount:   1000,
		TrustScore:        100,
		CreatedAt:         time.Now(),
	}
	m.channels[ch.ID] = ch
	copied := *ch
	return &copied
}

func (m *mockChannelRepo) Create(ch *model.Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	ch.ID = m.seq
	ch.CreatedAt = time.Now()
	if ch.Verification == "" {
		ch.Verification = model.ChannelUnverified
	}
	copied := *ch
	m.channels[ch.ID] = &copied
	return nil
}

func (m *mockChannelRepo) GetByID(id int64) (*model.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[id]
	if !ok {
		return nil, appErrors.NewChannelNotFound(id)
	}
	copied := *ch
	return &copied, nil
}

func (m *mockChannelRepo) GetByTelegramID(tgID int64) (*model.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.channels {
		if ch.TelegramChannelID == tgID {
			copied := *ch
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *mockChannelRepo) ListByOwner(ownerID int64) ([]*model.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Channel
	for _, ch := range m.channels {
		if ch.OwnerID == ownerID {
			copied := *ch
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *mockChannelRepo) ListByVerification(state string) ([]*model.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Channel
	for _, ch := range m.channels {
		if ch.Verification == state {
			copied := *ch
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *mockChannelRepo) UpdateVerification(id int64, state string, subscriberCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch, ok := m.channels[id]; ok {
		now := time.Now()
		ch.Verification = state
		ch.SubscriberCount = subscriberCount
		ch.LastCheckedAt = &now
	}
	return nil
}

func (m *mockChannelRepo) AdjustTrustScore(id int64, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch, ok := m.channels[id]; ok {
		ch.TrustScore += delta
		if ch.TrustScore < 0 {
			ch.TrustScore = 0
		}
	}
	return nil
}

// recordingNotifier captures notifications for assertions.
type recordingNotifier struct {
	mu    sync.Mutex
	notes []string
}

func (n *recordingNotifier) Notify(userID int64, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, text)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notes)
}

// engine bundles a fully wired service stack over the in-memory repos.
type engine struct {
	users     *mockUserRepo
	ledger    *mockLedgerRepo
	holds     *mockEscrowRepo
	campaigns *mockCampaignRepo
	channels  *mockChannelRepo
	notifier  *recordingNotifier

	ledgerSvc *LedgerService
	escrow    *EscrowService
	svc       *CampaignService
}

func newEngine() *engine {
	users := newMockUserRepo()
	ledger := newMockLedgerRepo(users)
	holds := newMockEscrowRepo()
	campaigns := newMockCampaignRepo()
	channels := newMockChannelRepo()
	notifier := &recordingNotifier{}

	ledgerSvc := &LedgerService{Repo: ledger}
	escrow := &EscrowService{
		Ledger:    ledgerSvc,
		Holds:     holds,
		Campaigns: campaigns,
		Channels:  channels,
	}
	svc := &CampaignService{
		Campaigns: campaigns,
		Channels:  channels,
		Users:     users,
		Escrow:    escrow,
		Notify:    notifier,
		Config:    testConfig(),
	}

	return &engine{
		users:     users,
		ledger:    ledger,
		holds:     holds,
		campaigns: campaigns,
		channels:  channels,
		notifier:  notifier,
		ledgerSvc: ledgerSvc,
		escrow:    escrow,
		svc:       svc,
	}
}

func testConfig() *config.Config {
	return &config.Config{
		PostMaxAttempts:   3,
		PostBackoffBaseMs: 1,
		PostBackoffCapMs:  4,
		PostTimeoutSec:    5,
		MinSubscribers:    100,
		VerifyTimeoutSec:  5,
		DefaultTrustScore: 100,
		TrustPenalty:      10,
		CampaignTTLHours:  168,
		ExpirySweepMin:    60,
		MaxBudget:         1_000_000,
	}
}

var (
	_ repository.UserRepositoryInterface     = (*mockUserRepo)(nil)
	_ repository.LedgerRepositoryInterface   = (*mockLedgerRepo)(nil)
	_ repository.EscrowRepositoryInterface   = (*mockEscrowRepo)(nil)
	_ repository.CampaignRepositoryInterface = (*mockCampaignRepo)(nil)
	_ repository.ChannelRepositoryInterface  = (*mockChannelRepo)(nil)
	_ Notifier                               = (*recordingNotifier)(nil)
)
