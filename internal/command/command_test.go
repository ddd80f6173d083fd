package command

import (
	"context"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"

	"github.com/k3vt/aprsgate/internal/beacon"
	"github.com/k3vt/aprsgate/internal/config"
	"github.com/k3vt/aprsgate/internal/storage"
	redisstore "github.com/k3vt/aprsgate/internal/storage/redis"
)

const adminID int64 = 99

type recordingNotifier struct {
	mu    sync.Mutex
	notes map[int64][]string
}

func (n *recordingNotifier) Notify(_ context.Context, userID int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.notes == nil {
		n.notes = make(map[int64][]string)
	}
	n.notes[userID] = append(n.notes[userID], text)
	return nil
}

func (n *recordingNotifier) sent(userID int64) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.notes[userID]...)
}

func setupDispatcher(t *testing.T) (*Dispatcher, storage.Store, *recordingNotifier) {
	t.Helper()
	mr := miniredis.RunT(t)
	host, portStr, err := net.SplitHostPort(mr.Addr())
	if err != nil {
		t.Fatalf("split addr: %v", err)
	}
	port, _ := strconv.Atoi(portStr)

	store, err := redisstore.Open(config.RedisConfig{
		Host: host, Port: port,
		DialTimeout: "5s", ReadTimeout: "3s", WriteTimeout: "3s",
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	notifier := &recordingNotifier{}
	clock := &beacon.TestClock{CurrentTime: time.Unix(1700000000, 0).UTC()}
	d := NewDispatcher(store, notifier, clock, adminID, zerolog.Nop())
	return d, store, notifier
}

func handle(t *testing.T, d *Dispatcher, userID int64, text string) string {
	t.Helper()
	reply, err := d.Handle(context.Background(), Message{UserID: userID, Username: "alice", Text: text})
	if err != nil {
		t.Fatalf("Handle(%q): %v", text, err)
	}
	return reply
}

func registerApproved(t *testing.T, d *Dispatcher, store storage.Store, userID int64) {
	t.Helper()
	handle(t, d, userID, "/start")
	if err := store.Profiles().SetApproved(context.Background(), userID, true); err != nil {
		t.Fatalf("SetApproved: %v", err)
	}
}

func TestStartRegistersAndReportsStatus(t *testing.T) {
	d, _, notifier := setupDispatcher(t)

	reply := handle(t, d, 42, "/start")
	if !strings.Contains(reply, "pending approval") {
		t.Errorf("first /start reply = %q", reply)
	}

	// The admin hears about the registration.
	notes := notifier.sent(adminID)
	if len(notes) != 1 || !strings.Contains(notes[0], "/approve 42") {
		t.Errorf("admin notifications = %q", notes)
	}

	reply = handle(t, d, 42, "/start")
	if !strings.HasPrefix(reply, "Welcome back") {
		t.Errorf("second /start reply = %q", reply)
	}
}

func TestUnapprovedUsersAreRejected(t *testing.T) {
	d, _, _ := setupDispatcher(t)

	for _, cmd := range []string{"/setcall AB1CDE", "/setmsg hi", "/setssid 9", "/seticon $/", "/setinterval 60", "/printcfg"} {
		if reply := handle(t, d, 42, cmd); reply != UnauthorizedReply {
			t.Errorf("%q before approval: reply = %q", cmd, reply)
		}
	}
}

func TestApproveToggle(t *testing.T) {
	d, _, notifier := setupDispatcher(t)

	if reply := handle(t, d, adminID, "/approve 42"); reply != "User 42 is not registered" {
		t.Errorf("approve unregistered: %q", reply)
	}

	handle(t, d, 42, "/start")
	if reply := handle(t, d, adminID, "/approve 42"); reply != "User 42 was approved" {
		t.Errorf("approve: %q", reply)
	}
	notes := notifier.sent(42)
	if len(notes) != 1 || notes[0] != "Hurray! Your account was activated!" {
		t.Errorf("activation notifications = %q", notes)
	}

	if reply := handle(t, d, adminID, "/approve 42"); reply != "User 42 was disapproved" {
		t.Errorf("second approve: %q", reply)
	}
}

func TestAdminCommandsIgnoredForOthers(t *testing.T) {
	d, _, _ := setupDispatcher(t)
	handle(t, d, 42, "/start")

	if reply := handle(t, d, 42, "/approve 42"); reply != "" {
		t.Errorf("non-admin approve replied %q", reply)
	}
	if reply := handle(t, d, 42, "/listusers"); reply != "" {
		t.Errorf("non-admin listusers replied %q", reply)
	}
}

func TestSetCall(t *testing.T) {
	d, store, _ := setupDispatcher(t)
	registerApproved(t, d, store, 42)

	if reply := handle(t, d, 42, "/setcall ab1cde"); reply != "Callsign was updated to AB1CDE" {
		t.Errorf("setcall: %q", reply)
	}
	p, err := store.Profiles().Get(context.Background(), 42)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.Callsign != "AB1CDE" {
		t.Errorf("stored callsign = %q", p.Callsign)
	}

	// Compound callsigns keep the longest segment.
	if reply := handle(t, d, 42, "/setcall EA8/AB1CDE/P"); reply != "Callsign was updated to AB1CDE" {
		t.Errorf("compound setcall: %q", reply)
	}

	if reply := handle(t, d, 42, "/setcall NOTVALID"); !strings.Contains(reply, "could not be recognized") {
		t.Errorf("invalid setcall: %q", reply)
	}
	if reply := handle(t, d, 42, "/setcall"); !strings.Contains(reply, "syntax is") {
		t.Errorf("setcall without arg: %q", reply)
	}
}

func TestProfileSettings(t *testing.T) {
	d, store, _ := setupDispatcher(t)
	registerApproved(t, d, store, 42)
	ctx := context.Background()

	if reply := handle(t, d, 42, "/setmsg out hiking today"); reply != "Message was updated to out hiking today" {
		t.Errorf("setmsg: %q", reply)
	}
	if reply := handle(t, d, 42, "/setssid 7"); reply != "SSID was updated to 7" {
		t.Errorf("setssid: %q", reply)
	}
	if reply := handle(t, d, 42, "/setssid 123"); !strings.Contains(reply, "1 or 2 characters") {
		t.Errorf("invalid setssid: %q", reply)
	}
	if reply := handle(t, d, 42, "/seticon [/"); reply != "Icon was updated to [/" {
		t.Errorf("seticon: %q", reply)
	}
	if reply := handle(t, d, 42, "/seticon abc"); !strings.Contains(reply, "2 characters") {
		t.Errorf("invalid seticon: %q", reply)
	}
	if reply := handle(t, d, 42, "/setinterval 120"); reply != "Update interval was updated to 120 seconds" {
		t.Errorf("setinterval: %q", reply)
	}
	if reply := handle(t, d, 42, "/setinterval soon"); !strings.Contains(reply, "positive number") {
		t.Errorf("invalid setinterval: %q", reply)
	}

	p, err := store.Profiles().Get(ctx, 42)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.Comment != "out hiking today" || p.SSID != "7" || p.Icon != "[/" || p.Interval != 120 {
		t.Errorf("stored profile = %+v", p)
	}
}

func TestPrintCfg(t *testing.T) {
	d, store, _ := setupDispatcher(t)
	registerApproved(t, d, store, 42)
	handle(t, d, 42, "/setcall AB1CDE")

	reply := handle(t, d, 42, "/printcfg")
	for _, want := range []string{"User ID: 42", "Callsign: AB1CDE", "APRS callsign: AB1CDE-9", "Beacon interval: 30s"} {
		if !strings.Contains(reply, want) {
			t.Errorf("printcfg missing %q in %q", want, reply)
		}
	}
}

func TestListUsers(t *testing.T) {
	d, store, _ := setupDispatcher(t)
	registerApproved(t, d, store, 42)
	handle(t, d, 42, "/setcall AB1CDE")
	handle(t, d, 43, "/start")

	reply := handle(t, d, adminID, "/listusers")
	if !strings.Contains(reply, "Registered users: 2") {
		t.Errorf("listusers header: %q", reply)
	}
	if !strings.Contains(reply, "AB1CDE-9") || !strings.Contains(reply, "(no callsign)") {
		t.Errorf("listusers body: %q", reply)
	}
}

func TestUnknownCommand(t *testing.T) {
	d, _, _ := setupDispatcher(t)

	if reply := handle(t, d, 42, "/frobnicate"); !strings.Contains(reply, "Unknown command") {
		t.Errorf("unknown command reply: %q", reply)
	}
	if reply := handle(t, d, 42, "hello there"); reply != "" {
		t.Errorf("non-command reply: %q", reply)
	}
}
