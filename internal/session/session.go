// Package session keeps per-user dialogue state for the conversational
// front-end. It is deliberately separate from campaign state: a dialogue step
// is a front-end concern and never gates an engine transition.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Dialogue steps
const (
	StepNone                 = ""
	StepAwaitingRole         = "awaiting_role"
	StepAwaitingChannelInfo  = "awaiting_channel_info"
	StepAwaitingAdText       = "awaiting_ad_text"
	StepAwaitingBudget       = "awaiting_budget"
	StepAwaitingDuration     = "awaiting_duration"
	StepAwaitingConfirmation = "awaiting_confirmation"
	StepAwaitingTopupAmount  = "awaiting_topup_amount"
)

type State struct {
	Step string            `json:"step"`
	Data map[string]string `json:"data,omitempty"`
}

type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStore(addr string, ttl time.Duration) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Store{client: client, ttl: ttl}, nil
}

func sessionKey(userID int64) string {
	return fmt.Sprintf("session:%d", userID)
}

// Get returns the user's dialogue state, or an empty state when none exists.
func (s *Store) Get(ctx context.Context, userID int64) (*State, error) {
	raw, err := s.client.Get(ctx, sessionKey(userID)).Result()
	if err == redis.Nil {
		return &State{Data: map[string]string{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var st State
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if st.Data == nil {
		st.Data = map[string]string{}
	}
	return &st, nil
}

func (s *Store) Set(ctx context.Context, userID int64, st *State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(userID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context, userID int64) error {
	return s.client.Del(ctx, sessionKey(userID)).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}
