package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/k3vt/aprsgate/internal/storage"
)

const (
	beaconLogKey    = "aprsgate:beacons"
	beaconNextIDKey = "aprsgate:beacons:next_id"
)

// beaconLogStore keeps transmitted packets in a sorted set scored by send
// time, so retention pruning is a single range removal.
type beaconLogStore struct {
	client *redis.Client
}

func (s *beaconLogStore) Add(ctx context.Context, entry storage.BeaconEntry) error {
	id, err := s.client.Incr(ctx, beaconNextIDKey).Result()
	if err != nil {
		return fmt.Errorf("failed to allocate beacon id: %w", err)
	}
	entry.ID = id

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal beacon entry: %w", err)
	}

	err = s.client.ZAdd(ctx, beaconLogKey, redis.Z{
		Score:  float64(entry.SentAt.Unix()),
		Member: data,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to add beacon log: %w", err)
	}
	return nil
}

func (s *beaconLogStore) Recent(ctx context.Context, limit int) ([]storage.BeaconEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	values, err := s.client.ZRevRange(ctx, beaconLogKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query beacon log: %w", err)
	}

	var entries []storage.BeaconEntry
	for _, v := range values {
		var e storage.BeaconEntry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal beacon entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *beaconLogStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	max := "(" + strconv.FormatInt(cutoff.Unix(), 10)
	n, err := s.client.ZRemRangeByScore(ctx, beaconLogKey, "-inf", max).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to prune beacon log: %w", err)
	}
	return int(n), nil
}
