package aprs

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/k3vt/aprsgate/internal/metrics"
)

// Config holds uplink settings.
type Config struct {
	ServerHost     string
	ServerPort     int
	LoginCall      string // empty runs the uplink read-only as N0CALL
	DialTimeout    time.Duration
	ConnectRetries int
}

// Transmitter owns the single connection to APRS-IS. Sends are serialized
// by the mutex: a caller blocks until the previous transmission finished.
// The connection is dialed lazily on the first Send and redialed after any
// failure; an error never leaves a dead socket marked connected.
type Transmitter struct {
	cfg      Config
	logger   zerolog.Logger
	resolver *Resolver

	mu   sync.Mutex
	conn net.Conn
}

// NewTransmitter creates an uplink. Nothing is dialed until the first Send.
func NewTransmitter(cfg Config, resolver *Resolver, logger zerolog.Logger) *Transmitter {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.ConnectRetries <= 0 {
		cfg.ConnectRetries = 3
	}
	return &Transmitter{
		cfg:      cfg,
		resolver: resolver,
		logger:   logger.With().Str("component", "uplink").Logger(),
	}
}

// Login returns the callsign the uplink authenticates as.
func (t *Transmitter) Login() string {
	if t.cfg.LoginCall == "" {
		return AnonymousCall
	}
	return t.cfg.LoginCall
}

// Send transmits one position report and returns the raw packet that went
// out. The lock is held across connect and write so packets stay whole on
// the wire.
func (t *Transmitter) Send(ctx context.Context, id Identity, lat, lon float64) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		if err := t.connect(ctx); err != nil {
			metrics.TransmitErrors.WithLabelValues("connect").Inc()
			return "", fmt.Errorf("aprs connect: %w", err)
		}
	}

	packet := PositionPacket(id, t.Login(), lat, lon)
	if err := t.write(packet); err != nil {
		t.reset()
		metrics.TransmitErrors.WithLabelValues("write").Inc()
		return "", fmt.Errorf("aprs send: %w", err)
	}

	metrics.PacketsSent.Inc()
	t.logger.Info().Str("packet", packet).Msg("Position sent")
	return packet, nil
}

func (t *Transmitter) connect(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= t.cfg.ConnectRetries; attempt++ {
		if err := t.connectOnce(ctx); err != nil {
			lastErr = err
			t.logger.Warn().Err(err).Int("attempt", attempt).Msg("APRS-IS connect failed")
			continue
		}
		return nil
	}
	return lastErr
}

func (t *Transmitter) connectOnce(ctx context.Context) error {
	addr, err := t.resolver.Pick(ctx, t.cfg.ServerHost)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", t.cfg.ServerHost, err)
	}

	d := net.Dialer{Timeout: t.cfg.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(addr, strconv.Itoa(t.cfg.ServerPort)))
	if err != nil {
		return err
	}

	// The server greets with a "# version" banner before accepting login.
	// Handshake reads carry a deadline so a server that accepts the dial
	// but never writes cannot block the uplink forever.
	br := bufio.NewReader(conn)
	_ = conn.SetReadDeadline(time.Now().Add(t.cfg.DialTimeout))
	banner, err := br.ReadString('\n')
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("read banner: %w", err)
	}

	if _, err := fmt.Fprintf(conn, "%s\r\n", LoginLine(t.cfg.LoginCall)); err != nil {
		_ = conn.Close()
		return fmt.Errorf("send login: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(t.cfg.DialTimeout))
	ack, err := br.ReadString('\n')
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("read login response: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	// One status beacon per connection, right after login.
	if _, err := fmt.Fprintf(conn, "%s\r\n", StatusPacket()); err != nil {
		_ = conn.Close()
		return fmt.Errorf("send status beacon: %w", err)
	}

	t.conn = conn
	metrics.UplinkConnects.Inc()
	t.logger.Info().
		Str("server", addr).
		Str("banner", strings.TrimSpace(banner)).
		Str("logresp", strings.TrimSpace(ack)).
		Msg("Connected to APRS-IS")
	return nil
}

func (t *Transmitter) write(packet string) error {
	_ = t.conn.SetWriteDeadline(time.Now().Add(t.cfg.DialTimeout))
	_, err := fmt.Fprintf(t.conn, "%s\r\n", packet)
	return err
}

// reset drops the connection so the next Send redials.
func (t *Transmitter) reset() {
	if t.conn != nil {
		_ = t.conn.Close()
		t.conn = nil
	}
}

// Close shuts the uplink down.
func (t *Transmitter) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reset()
	return nil
}
