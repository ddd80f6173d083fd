package beacon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/k3vt/aprsgate/internal/aprs"
	"github.com/k3vt/aprsgate/internal/metrics"
	"github.com/k3vt/aprsgate/internal/storage"
)

// ErrProfileMissing is returned when a location arrives for a user without
// a usable profile (not registered, or no callsign set yet).
var ErrProfileMissing = errors.New("beacon: no usable profile for user")

// ErrNotApproved is returned when a location arrives for a user whose
// account is not approved.
var ErrNotApproved = errors.New("beacon: user is not approved")

// LocationEvent is one position fix coming off the bridge. A zero
// LivePeriod marks a one-shot position; anything else opens or refreshes a
// live-tracking session lasting LivePeriod past Timestamp. ChatID is the
// notification target and defaults to UserID when zero.
type LocationEvent struct {
	UserID     int64
	ChatID     int64
	Latitude   float64
	Longitude  float64
	Timestamp  time.Time
	LivePeriod time.Duration
}

func (ev LocationEvent) chatTarget() int64 {
	if ev.ChatID != 0 {
		return ev.ChatID
	}
	return ev.UserID
}

// Outcome reports what SubmitLocation did with an event.
type Outcome int

const (
	OutcomeOneShot Outcome = iota
	OutcomeStarted
	OutcomeUpdated
	OutcomeThrottled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOneShot:
		return "one-shot"
	case OutcomeStarted:
		return "started"
	case OutcomeUpdated:
		return "updated"
	case OutcomeThrottled:
		return "throttled"
	default:
		return "unknown"
	}
}

// Session is one live-tracking subscription. The identity is copied from
// the profile when the session starts or refreshes and is not re-read
// between updates.
type Session struct {
	UserID     int64
	ChatID     int64
	Identity   aprs.Identity
	Interval   time.Duration
	NextUpdate time.Time
	EndSharing time.Time
}

// Transmitter is the uplink the manager beacons through.
type Transmitter interface {
	Send(ctx context.Context, id aprs.Identity, lat, lon float64) (string, error)
}

// Manager holds the live-tracking session table, one session per user.
type Manager struct {
	store    storage.Store
	tx       Transmitter
	notifier Notifier
	clock    Clock
	logger   zerolog.Logger

	mu       sync.Mutex
	sessions map[int64]*Session
}

// NewManager creates a session manager. notifier may be nil.
func NewManager(store storage.Store, tx Transmitter, notifier Notifier, clock Clock, logger zerolog.Logger) *Manager {
	return &Manager{
		store:    store,
		tx:       tx,
		notifier: notifier,
		clock:    clock,
		logger:   logger.With().Str("component", "sessions").Logger(),
		sessions: make(map[int64]*Session),
	}
}

// SubmitLocation processes one position fix. Live updates inside the
// user's beacon interval are throttled without touching the session; an
// accepted update replaces the session wholesale, so the share deadline
// slides with each fresh event. The replacement entry is written under the
// lock before the transmission, so a concurrent update for the same user
// throttles instead of double-sending; a failed transmission rolls the
// table back.
func (m *Manager) SubmitLocation(ctx context.Context, ev LocationEvent) (Outcome, error) {
	profile, err := m.store.Profiles().Get(ctx, ev.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, ErrProfileMissing
	}
	if err != nil {
		return 0, err
	}
	if !profile.Approved {
		return 0, ErrNotApproved
	}
	if profile.Callsign == "" {
		return 0, ErrProfileMissing
	}

	id := aprs.Identity{
		Callsign: profile.Callsign,
		SSID:     profile.SSID,
		Icon:     profile.Icon,
		Comment:  profile.Comment,
	}

	if ev.LivePeriod <= 0 {
		return m.oneShot(ctx, ev, id)
	}

	now := m.clock.Now()
	interval := time.Duration(profile.Interval) * time.Second

	m.mu.Lock()
	prev, exists := m.sessions[ev.UserID]
	if exists && now.Before(prev.NextUpdate) {
		m.mu.Unlock()
		metrics.LocationsThrottled.Inc()
		m.logger.Debug().Int64("user_id", ev.UserID).Time("next_update", prev.NextUpdate).Msg("Update throttled")
		return OutcomeThrottled, nil
	}
	sess := &Session{
		UserID:     ev.UserID,
		ChatID:     ev.chatTarget(),
		Identity:   id,
		Interval:   interval,
		NextUpdate: now.Add(interval),
		EndSharing: ev.Timestamp.Add(ev.LivePeriod),
	}
	m.sessions[ev.UserID] = sess
	count := len(m.sessions)
	m.mu.Unlock()
	metrics.SessionsActive.Set(float64(count))

	packet, err := m.tx.Send(ctx, id, ev.Latitude, ev.Longitude)
	if err != nil {
		m.rollback(ev.UserID, sess, prev, exists)
		return 0, err
	}
	m.recordBeacon(ctx, ev.UserID, packet)

	if exists {
		return OutcomeUpdated, nil
	}
	m.logger.Info().Int64("user_id", ev.UserID).Str("callsign", id.Source()).Msg("Live session started")
	m.notify(ctx, sess.ChatID, fmt.Sprintf(
		"Started live location tracking:\n\nMinimum update interval: %ds\nSending beacons until: %s UTC",
		profile.Interval, sess.EndSharing.UTC().Format("2006-01-02 15:04:05")))
	return OutcomeStarted, nil
}

// rollback undoes a reserved session entry after a failed transmission.
func (m *Manager) rollback(userID int64, reserved, prev *Session, hadPrev bool) {
	m.mu.Lock()
	if cur, ok := m.sessions[userID]; ok && cur == reserved {
		if hadPrev {
			m.sessions[userID] = prev
		} else {
			delete(m.sessions, userID)
		}
	}
	count := len(m.sessions)
	m.mu.Unlock()
	metrics.SessionsActive.Set(float64(count))
}

// oneShot sends a single position. An active live session for the user is
// ended: the static position supersedes it.
func (m *Manager) oneShot(ctx context.Context, ev LocationEvent, id aprs.Identity) (Outcome, error) {
	packet, err := m.tx.Send(ctx, id, ev.Latitude, ev.Longitude)
	if err != nil {
		return 0, err
	}
	m.recordBeacon(ctx, ev.UserID, packet)

	if m.Stop(ev.UserID) {
		m.notify(ctx, ev.chatTarget(), "Beaconing was stopped")
	}
	return OutcomeOneShot, nil
}

// Stop removes the user's live session. It reports whether one existed.
func (m *Manager) Stop(userID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[userID]; !ok {
		return false
	}
	delete(m.sessions, userID)
	metrics.SessionsActive.Set(float64(len(m.sessions)))
	m.logger.Info().Int64("user_id", userID).Msg("Live session stopped")
	return true
}

// Snapshot returns a copy of the current session table.
func (m *Manager) Snapshot() []Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, *s)
	}
	return out
}

// Active returns the number of live sessions.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) recordBeacon(ctx context.Context, userID int64, packet string) {
	entry := storage.BeaconEntry{
		UserID: userID,
		Packet: packet,
		SentAt: m.clock.Now(),
	}
	if err := m.store.BeaconLog().Add(ctx, entry); err != nil {
		// The packet already went out, a logging failure must not fail the send.
		m.logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to record beacon")
	}
}

func (m *Manager) notify(ctx context.Context, chatID int64, text string) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Notify(ctx, chatID, text); err != nil {
		m.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to notify user")
	}
}
