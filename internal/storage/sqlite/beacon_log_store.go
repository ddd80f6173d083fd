package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/k3vt/aprsgate/internal/storage"
)

type beaconLogStore struct {
	db *sql.DB
}

func (s *beaconLogStore) Add(ctx context.Context, entry storage.BeaconEntry) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO beacons (user_id, packet, sent_at) VALUES (?, ?, ?)",
		entry.UserID, entry.Packet, entry.SentAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to add beacon log: %w", err)
	}
	return nil
}

func (s *beaconLogStore) Recent(ctx context.Context, limit int) ([]storage.BeaconEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, user_id, packet, sent_at FROM beacons ORDER BY sent_at DESC, id DESC LIMIT ?",
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query beacon log: %w", err)
	}
	defer rows.Close()

	var entries []storage.BeaconEntry
	for rows.Next() {
		var e storage.BeaconEntry
		var sent int64
		if err := rows.Scan(&e.ID, &e.UserID, &e.Packet, &sent); err != nil {
			return nil, fmt.Errorf("failed to scan beacon log: %w", err)
		}
		e.SentAt = time.Unix(sent, 0).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *beaconLogStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM beacons WHERE sent_at < ?", cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to prune beacon log: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}
