package beacon

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/k3vt/aprsgate/internal/storage"
)

func TestSweepExpiresSessions(t *testing.T) {
	m, store, _, notifier, clock := setupManager(t)
	addProfile(t, store, 1, "AB1CDE")
	addProfile(t, store, 2, "CD2EFG")
	ctx := context.Background()

	start := clock.Now()
	short := LocationEvent{
		UserID: 1, Latitude: 45.5, Longitude: -9.25,
		Timestamp: start, LivePeriod: time.Minute,
	}
	long := LocationEvent{
		UserID: 2, Latitude: 45.5, Longitude: -9.25,
		Timestamp: start, LivePeriod: time.Hour,
	}
	if _, err := m.SubmitLocation(ctx, short); err != nil {
		t.Fatalf("short session: %v", err)
	}
	if _, err := m.SubmitLocation(ctx, long); err != nil {
		t.Fatalf("long session: %v", err)
	}

	sweeper := NewSweeper(m, store, notifier, clock, 59*time.Second, 0, zerolog.Nop())

	// Before the deadline nothing changes.
	clock.CurrentTime = start.Add(30 * time.Second)
	sweeper.sweep()
	if m.Active() != 2 {
		t.Fatalf("active sessions = %d before expiry, want 2", m.Active())
	}

	// Past the short session's deadline only that one goes.
	clock.CurrentTime = start.Add(2 * time.Minute)
	sweeper.sweep()
	if m.Active() != 1 {
		t.Fatalf("active sessions = %d after expiry, want 1", m.Active())
	}
	if m.Snapshot()[0].UserID != 2 {
		t.Errorf("wrong session survived: %d", m.Snapshot()[0].UserID)
	}
	ended := 0
	for _, note := range notifier.all() {
		if note == "Live location sharing ended" {
			ended++
		}
	}
	if ended != 1 {
		t.Errorf("end-of-sharing notifications = %d, want 1 (%q)", ended, notifier.all())
	}

	// Expiry at exactly the deadline counts as past it.
	clock.CurrentTime = start.Add(time.Hour)
	sweeper.sweep()
	if m.Active() != 0 {
		t.Errorf("active sessions = %d at deadline, want 0", m.Active())
	}
}

func TestSweepPrunesBeaconLog(t *testing.T) {
	m, store, _, notifier, clock := setupManager(t)
	ctx := context.Background()

	now := clock.Now()
	old := storage.BeaconEntry{UserID: 1, Packet: "old", SentAt: now.Add(-48 * time.Hour)}
	fresh := storage.BeaconEntry{UserID: 1, Packet: "fresh", SentAt: now.Add(-time.Hour)}
	if err := store.BeaconLog().Add(ctx, old); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := store.BeaconLog().Add(ctx, fresh); err != nil {
		t.Fatalf("Add: %v", err)
	}

	sweeper := NewSweeper(m, store, notifier, clock, 59*time.Second, 24*time.Hour, zerolog.Nop())
	sweeper.sweep()

	entries, err := store.BeaconLog().Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 1 || entries[0].Packet != "fresh" {
		t.Errorf("retention pass kept %+v", entries)
	}
}

func TestSweeperStartStop(t *testing.T) {
	m, store, _, notifier, clock := setupManager(t)

	sweeper := NewSweeper(m, store, notifier, clock, 10*time.Millisecond, 0, zerolog.Nop())
	sweeper.Start()
	time.Sleep(30 * time.Millisecond)
	sweeper.Stop()
}
