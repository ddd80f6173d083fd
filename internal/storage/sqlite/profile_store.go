package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/k3vt/aprsgate/internal/storage"
)

type profileStore struct {
	db *sql.DB
}

const profileColumns = "user_id, user_name, user_callsign, user_ssid, aprs_icon, user_comment, aprs_interval, approved, registered_at"

func scanProfile(row interface{ Scan(...any) error }) (*storage.UserProfile, error) {
	var p storage.UserProfile
	var approved int
	var registered int64
	err := row.Scan(&p.UserID, &p.Username, &p.Callsign, &p.SSID, &p.Icon,
		&p.Comment, &p.Interval, &approved, &registered)
	if err != nil {
		return nil, err
	}
	p.Approved = approved != 0
	p.RegisteredAt = time.Unix(registered, 0).UTC()
	return &p, nil
}

func (s *profileStore) Get(ctx context.Context, userID int64) (*storage.UserProfile, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+profileColumns+" FROM users WHERE user_id = ?", userID)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %d: %w", userID, err)
	}
	return p, nil
}

func (s *profileStore) Upsert(ctx context.Context, profile storage.UserProfile) error {
	approved := 0
	if profile.Approved {
		approved = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (`+profileColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			user_name = excluded.user_name,
			user_callsign = excluded.user_callsign,
			user_ssid = excluded.user_ssid,
			aprs_icon = excluded.aprs_icon,
			user_comment = excluded.user_comment,
			aprs_interval = excluded.aprs_interval,
			approved = excluded.approved,
			registered_at = excluded.registered_at`,
		profile.UserID, profile.Username, profile.Callsign, profile.SSID,
		profile.Icon, profile.Comment, profile.Interval, approved,
		profile.RegisteredAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert user %d: %w", profile.UserID, err)
	}
	return nil
}

func (s *profileStore) SetApproved(ctx context.Context, userID int64, approved bool) error {
	val := 0
	if approved {
		val = 1
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET approved = ? WHERE user_id = ?", val, userID)
	if err != nil {
		return fmt.Errorf("failed to update approval for user %d: %w", userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *profileStore) List(ctx context.Context) ([]storage.UserProfile, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+profileColumns+" FROM users ORDER BY registered_at, user_id")
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var profiles []storage.UserProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		profiles = append(profiles, *p)
	}
	return profiles, rows.Err()
}
