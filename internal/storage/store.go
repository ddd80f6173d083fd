package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// Store represents the root storage interface.
type Store interface {
	Close() error
	Profiles() ProfileStore
	BeaconLog() BeaconLogStore
}

// ProfileStore manages registered user records.
type ProfileStore interface {
	Get(ctx context.Context, userID int64) (*UserProfile, error)
	Upsert(ctx context.Context, profile UserProfile) error
	SetApproved(ctx context.Context, userID int64, approved bool) error
	List(ctx context.Context) ([]UserProfile, error)
}

// BeaconLogStore records every packet handed to the uplink.
type BeaconLogStore interface {
	Add(ctx context.Context, entry BeaconEntry) error
	Recent(ctx context.Context, limit int) ([]BeaconEntry, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int, error)
}
