package storage

import "time"

// Defaults applied to new user records. The interval is the minimum gap
// between two beacons for the same user, in seconds.
const (
	DefaultSSID     = "9"
	DefaultIcon     = "$/"
	DefaultComment  = "APRS position gateway"
	DefaultInterval = 30
)

// UserProfile is one registered bridge user and the APRS identity their
// beacons carry.
type UserProfile struct {
	UserID       int64     `json:"user_id"`
	Username     string    `json:"username"`
	Callsign     string    `json:"callsign"`
	SSID         string    `json:"ssid"`
	Icon         string    `json:"icon"`
	Comment      string    `json:"comment"`
	Interval     int       `json:"interval"`
	Approved     bool      `json:"approved"`
	RegisteredAt time.Time `json:"registered_at"`
}

// NewUserProfile builds an unapproved profile with the stock defaults.
// The callsign stays empty until the user sets one.
func NewUserProfile(userID int64, username string, now time.Time) UserProfile {
	return UserProfile{
		UserID:       userID,
		Username:     username,
		SSID:         DefaultSSID,
		Icon:         DefaultIcon,
		Comment:      DefaultComment,
		Interval:     DefaultInterval,
		RegisteredAt: now,
	}
}

// BeaconEntry is one transmitted packet.
type BeaconEntry struct {
	ID     int64     `json:"id"`
	UserID int64     `json:"user_id"`
	Packet string    `json:"packet"`
	SentAt time.Time `json:"sent_at"`
}
