package command

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/k3vt/aprsgate/internal/beacon"
	"github.com/k3vt/aprsgate/internal/metrics"
	"github.com/k3vt/aprsgate/internal/storage"
)

// UnauthorizedReply is sent to users who are not registered or not
// approved yet. The gateway reuses it for rejected location submissions.
const UnauthorizedReply = "You are not registered or approved yet, please send the /start command to begin and/or to check the registration status"

const helpReply = `Here are the instructions for the APRS gateway, there are few simple steps to configure it.

First you need to send the /start command, this will add you to the database.
The same /start command can also be used to check if your account was enabled by an administrator, this is a manual process and may take some time.

Once your account is enabled, you can configure the APRS parameters as follows:
/setcall AA0BBB to set your callsign to AA0BBB
/setssid 9 to set your APRS SSID to 9 (default value for mobile stations)
/seticon $/ to set your APRS icon to a phone icon
/setinterval 120 to set the minimum beaconing interval to 120s
/setmsg Hello to set the APRS comment to be sent

/printcfg can be used to validate the APRS parameters, make sure to use it before sending any position.

Once everything is set up, just send your position and it will be relayed to APRS-IS. Share a live position to enable automatic beaconing.`

// Message is one inbound chat line from the bridge.
type Message struct {
	UserID   int64
	Username string
	Text     string
}

// Dispatcher parses chat commands and applies them to the user registry.
// Everything except /start and /help requires an approved account.
type Dispatcher struct {
	store    storage.Store
	notifier beacon.Notifier
	clock    beacon.Clock
	adminID  int64
	logger   zerolog.Logger
}

// NewDispatcher creates a dispatcher. adminID 0 disables the admin
// commands, notifier may be nil.
func NewDispatcher(store storage.Store, notifier beacon.Notifier, clock beacon.Clock, adminID int64, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		store:    store,
		notifier: notifier,
		clock:    clock,
		adminID:  adminID,
		logger:   logger.With().Str("component", "commands").Logger(),
	}
}

// Handle processes one command and returns the reply text. An empty reply
// means the message was ignored.
func (d *Dispatcher) Handle(ctx context.Context, msg Message) (string, error) {
	fields := strings.Fields(msg.Text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil
	}
	cmd := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	args := fields[1:]

	switch cmd {
	case "start", "help", "setcall", "setmsg", "setssid", "seticon", "setinterval", "printcfg", "approve", "listusers":
		metrics.CommandsHandled.WithLabelValues(cmd).Inc()
	default:
		return "Unknown command, send /help for the list of available commands", nil
	}

	switch cmd {
	case "start":
		return d.start(ctx, msg)
	case "help":
		return helpReply, nil
	case "approve":
		return d.approve(ctx, msg, args)
	case "listusers":
		return d.listUsers(ctx, msg)
	}

	profile, err := d.approvedProfile(ctx, msg.UserID)
	if err != nil {
		return "", err
	}
	if profile == nil {
		return UnauthorizedReply, nil
	}

	switch cmd {
	case "setcall":
		return d.setCall(ctx, profile, args)
	case "setmsg":
		return d.setMsg(ctx, profile, strings.Join(args, " "))
	case "setssid":
		return d.setSSID(ctx, profile, args)
	case "seticon":
		return d.setIcon(ctx, profile, args)
	case "setinterval":
		return d.setInterval(ctx, profile, args)
	case "printcfg":
		return printCfg(profile), nil
	}
	return "", nil
}

// approvedProfile returns nil without error when the user cannot use
// configuration commands yet.
func (d *Dispatcher) approvedProfile(ctx context.Context, userID int64) (*storage.UserProfile, error) {
	profile, err := d.store.Profiles().Get(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !profile.Approved {
		return nil, nil
	}
	return profile, nil
}

func (d *Dispatcher) start(ctx context.Context, msg Message) (string, error) {
	profile, err := d.store.Profiles().Get(ctx, msg.UserID)
	if err == nil {
		status := "pending approval"
		if profile.Approved {
			status = "approved"
		}
		return fmt.Sprintf("Welcome back %s\n\nRegistration date: %s UTC\nAccount status: %s",
			msg.Username, profile.RegisteredAt.UTC().Format("2006-01-02 15:04:05"), status), nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return "", err
	}

	now := d.clock.Now().UTC()
	p := storage.NewUserProfile(msg.UserID, msg.Username, now)
	if err := d.store.Profiles().Upsert(ctx, p); err != nil {
		return "", err
	}
	d.logger.Info().Int64("user_id", msg.UserID).Str("username", msg.Username).Msg("New user registered")

	if d.notifier != nil && d.adminID != 0 {
		text := fmt.Sprintf("New user registered: %s\nApprove with: /approve %d", msg.Username, msg.UserID)
		if err := d.notifier.Notify(ctx, d.adminID, text); err != nil {
			d.logger.Error().Err(err).Msg("Failed to notify admin")
		}
	}

	return fmt.Sprintf("Welcome %s\nYou just accessed the APRS gateway\n\nRegistration date: %s UTC\nAccount status: pending approval",
		msg.Username, now.Format("2006-01-02 15:04:05")), nil
}

func (d *Dispatcher) setCall(ctx context.Context, profile *storage.UserProfile, args []string) (string, error) {
	if len(args) != 1 {
		return "Cannot detect callsign argument, syntax is: /setcall AA0BBB", nil
	}
	call, err := ParseCallsign(args[0])
	if err != nil {
		d.logger.Warn().Int64("user_id", profile.UserID).Str("input", args[0]).Msg("Invalid callsign")
		return fmt.Sprintf("The requested callsign %s could not be recognized as a valid callsign, please remove all prefixes and suffixes and try again", strings.ToUpper(args[0])), nil
	}
	profile.Callsign = call
	if err := d.store.Profiles().Upsert(ctx, *profile); err != nil {
		return "", err
	}
	return fmt.Sprintf("Callsign was updated to %s", call), nil
}

func (d *Dispatcher) setMsg(ctx context.Context, profile *storage.UserProfile, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "Cannot detect message argument, syntax is: /setmsg Hello World!", nil
	}
	profile.Comment = text
	if err := d.store.Profiles().Upsert(ctx, *profile); err != nil {
		return "", err
	}
	return fmt.Sprintf("Message was updated to %s", text), nil
}

func (d *Dispatcher) setSSID(ctx context.Context, profile *storage.UserProfile, args []string) (string, error) {
	if len(args) != 1 {
		return "Cannot detect SSID argument, syntax is: /setssid 9", nil
	}
	ssid := strings.ToUpper(args[0])
	if len(ssid) < 1 || len(ssid) > 2 {
		return fmt.Sprintf("The requested SSID %s could not be processed, length must be 1 or 2 characters", ssid), nil
	}
	profile.SSID = ssid
	if err := d.store.Profiles().Upsert(ctx, *profile); err != nil {
		return "", err
	}
	return fmt.Sprintf("SSID was updated to %s", ssid), nil
}

func (d *Dispatcher) setIcon(ctx context.Context, profile *storage.UserProfile, args []string) (string, error) {
	if len(args) != 1 {
		return "Cannot detect icon argument, syntax is: /seticon $/", nil
	}
	// Symbol codes are case-sensitive, take them verbatim.
	icon := args[0]
	if len(icon) != 2 {
		return fmt.Sprintf("The requested icon %s could not be processed, length must be 2 characters", icon), nil
	}
	profile.Icon = icon
	if err := d.store.Profiles().Upsert(ctx, *profile); err != nil {
		return "", err
	}
	return fmt.Sprintf("Icon was updated to %s", icon), nil
}

func (d *Dispatcher) setInterval(ctx context.Context, profile *storage.UserProfile, args []string) (string, error) {
	if len(args) != 1 {
		return "Cannot detect interval value, syntax is: /setinterval 120", nil
	}
	seconds, err := strconv.Atoi(args[0])
	if err != nil || seconds <= 0 {
		return fmt.Sprintf("The requested interval %s could not be processed, it must be a positive number of seconds", args[0]), nil
	}
	profile.Interval = seconds
	if err := d.store.Profiles().Upsert(ctx, *profile); err != nil {
		return "", err
	}
	return fmt.Sprintf("Update interval was updated to %d seconds", seconds), nil
}

func printCfg(profile *storage.UserProfile) string {
	return fmt.Sprintf("Current configuration:\n\nUser ID: %d\nCallsign: %s\nSSID: %s\nAPRS callsign: %s-%s\nComment: %s\nIcon: %s\nBeacon interval: %ds",
		profile.UserID, profile.Callsign, profile.SSID,
		profile.Callsign, profile.SSID,
		profile.Comment, profile.Icon, profile.Interval)
}

func (d *Dispatcher) approve(ctx context.Context, msg Message, args []string) (string, error) {
	if d.adminID == 0 || msg.UserID != d.adminID {
		d.logger.Warn().Int64("user_id", msg.UserID).Msg("Non-admin tried an admin command")
		return "", nil
	}
	if len(args) != 1 {
		return "Missing or invalid target user to be approved", nil
	}
	target, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return "Missing or invalid target user to be approved", nil
	}

	profile, err := d.store.Profiles().Get(ctx, target)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Sprintf("User %d is not registered", target), nil
	}
	if err != nil {
		return "", err
	}

	// A second /approve for the same user toggles the approval off.
	if profile.Approved {
		if err := d.store.Profiles().SetApproved(ctx, target, false); err != nil {
			return "", err
		}
		d.logger.Info().Int64("user_id", target).Msg("User disapproved")
		return fmt.Sprintf("User %d was disapproved", target), nil
	}

	if err := d.store.Profiles().SetApproved(ctx, target, true); err != nil {
		return "", err
	}
	d.logger.Info().Int64("user_id", target).Msg("User approved")
	if d.notifier != nil {
		if err := d.notifier.Notify(ctx, target, "Hurray! Your account was activated!"); err != nil {
			d.logger.Error().Err(err).Int64("user_id", target).Msg("Failed to notify user")
		}
	}
	return fmt.Sprintf("User %d was approved", target), nil
}

func (d *Dispatcher) listUsers(ctx context.Context, msg Message) (string, error) {
	if d.adminID == 0 || msg.UserID != d.adminID {
		d.logger.Warn().Int64("user_id", msg.UserID).Msg("Non-admin tried an admin command")
		return "", nil
	}

	profiles, err := d.store.Profiles().List(ctx)
	if err != nil {
		return "", err
	}
	if len(profiles) == 0 {
		return "No users are registered", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Registered users: %d\n", len(profiles))
	for _, p := range profiles {
		status := "pending"
		if p.Approved {
			status = "approved"
		}
		call := p.Callsign
		if call == "" {
			call = "(no callsign)"
		} else {
			call = call + "-" + p.SSID
		}
		fmt.Fprintf(&b, "%d %s %s %s\n", p.UserID, p.Username, call, status)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
