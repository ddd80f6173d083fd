package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/k3vt/aprsgate/internal/storage"
)

const (
	userKeyPrefix = "aprsgate:user:"
	userIndexKey  = "aprsgate:users"
)

type profileStore struct {
	client *redis.Client
}

func userKey(userID int64) string {
	return userKeyPrefix + strconv.FormatInt(userID, 10)
}

func (s *profileStore) Get(ctx context.Context, userID int64) (*storage.UserProfile, error) {
	data, err := s.client.Get(ctx, userKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %d: %w", userID, err)
	}

	var p storage.UserProfile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user %d: %w", userID, err)
	}
	return &p, nil
}

func (s *profileStore) Upsert(ctx context.Context, profile storage.UserProfile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to marshal user %d: %w", profile.UserID, err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, userKey(profile.UserID), data, 0)
	pipe.SAdd(ctx, userIndexKey, profile.UserID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to upsert user %d: %w", profile.UserID, err)
	}
	return nil
}

func (s *profileStore) SetApproved(ctx context.Context, userID int64, approved bool) error {
	p, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	p.Approved = approved
	return s.Upsert(ctx, *p)
}

func (s *profileStore) List(ctx context.Context) ([]storage.UserProfile, error) {
	ids, err := s.client.SMembers(ctx, userIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = userKeyPrefix + id
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch users: %w", err)
	}

	var profiles []storage.UserProfile
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			// Index member without a record, skip it.
			continue
		}
		var p storage.UserProfile
		if err := json.Unmarshal([]byte(str), &p); err != nil {
			return nil, fmt.Errorf("failed to unmarshal user: %w", err)
		}
		profiles = append(profiles, p)
	}

	sort.Slice(profiles, func(i, j int) bool {
		if profiles[i].RegisteredAt.Equal(profiles[j].RegisteredAt) {
			return profiles[i].UserID < profiles[j].UserID
		}
		return profiles[i].RegisteredAt.Before(profiles[j].RegisteredAt)
	})
	return profiles, nil
}
