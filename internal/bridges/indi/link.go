package indi

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Default timeouts and intervals for the INDI link.
const (
	// DefaultReconnectInterval is the fixed delay between connection attempts.
	DefaultReconnectInterval = 10 * time.Second

	// defaultConnectTimeout is the maximum time to wait for the TCP dial.
	defaultConnectTimeout = 5 * time.Second

	// defaultWriteTimeout bounds a single command write.
	defaultWriteTimeout = 5 * time.Second

	// readBufferSize is the line buffer size. Longer lines are fed in pieces.
	readBufferSize = 64 * 1024
)

// Publisher receives the link's view of the upstream device model.
// Methods are called from the link goroutine in stream order.
type Publisher interface {
	// Connected is called once a connection is held, before any property.
	Connected()

	// Disconnected is called after a held connection is lost.
	// All devices learned on that connection are stale.
	Disconnected()

	// Publish delivers a new or replaced property.
	Publish(p Property)
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Config holds INDI link configuration.
type Config struct {
	// Address is the INDI server host:port.
	Address string

	// ReconnectInterval is the fixed delay after a failed or lost connection.
	// Default: 10 seconds.
	ReconnectInterval time.Duration

	// ConnectTimeout is the maximum time to wait for the TCP dial.
	// Default: 5 seconds.
	ConnectTimeout time.Duration

	// WriteTimeout bounds each command write.
	// Default: 5 seconds.
	WriteTimeout time.Duration

	// MaxElementSize bounds a single buffered top-level element.
	// Default: DefaultMaxElementSize.
	MaxElementSize int
}

// Stats holds operational statistics for the link.
type Stats struct {
	Connected        bool      `json:"connected"`
	ConnectsTotal    uint64    `json:"connects_total"`
	DisconnectsTotal uint64    `json:"disconnects_total"`
	ElementsRx       uint64    `json:"elements_rx"`
	ElementsInvalid  uint64    `json:"elements_invalid"`
	CommandsTx       uint64    `json:"commands_tx"`
	AutoConnects     uint64    `json:"auto_connects"`
	LastActivity     time.Time `json:"last_activity"`
}

// Link owns the single connection to the INDI server.
//
// Run keeps the connection alive; SendSwitch and SendNumber write client
// commands to whatever connection is currently held.
type Link struct {
	cfg    Config
	pub    Publisher
	logger Logger
	dialer net.Dialer

	// connMu guards conn and serialises writes so fragments never interleave.
	connMu sync.Mutex
	conn   net.Conn

	connectsTotal    atomic.Uint64
	disconnectsTotal atomic.Uint64
	elementsRx       atomic.Uint64
	elementsInvalid  atomic.Uint64
	commandsTx       atomic.Uint64
	autoConnects     atomic.Uint64
	lastActivity     atomic.Int64
}

// NewLink creates a Link. It does not connect until Run is called.
//
// Parameters:
//   - cfg: Link configuration; zero durations select the defaults
//   - pub: Receiver of connection state and property updates
//   - logger: Optional logger (may be nil)
func NewLink(cfg Config, pub Publisher, logger Logger) *Link {
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = DefaultReconnectInterval
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.MaxElementSize <= 0 {
		cfg.MaxElementSize = DefaultMaxElementSize
	}
	return &Link{cfg: cfg, pub: pub, logger: logger}
}

// Run connects to the INDI server and keeps reconnecting until ctx is done.
//
// Every failure, whether refused dial, closed stream or malformed XML, is
// followed by the same fixed ReconnectInterval wait. There is no retry limit.
//
// Returns:
//   - error: Always nil; Run only returns once ctx is cancelled
func (l *Link) Run(ctx context.Context) error {
	l.logInfo("INDI link starting", "address", l.cfg.Address,
		"reconnect_interval", l.cfg.ReconnectInterval.String())

	for {
		err := l.session(ctx)
		if ctx.Err() != nil {
			l.logInfo("INDI link stopped")
			return nil
		}
		l.logWarn("INDI connection unavailable", "address", l.cfg.Address,
			"error", err, "retry_in", l.cfg.ReconnectInterval.String())

		timer := time.NewTimer(l.cfg.ReconnectInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			l.logInfo("INDI link stopped")
			return nil
		case <-timer.C:
		}
	}
}

// session runs one connection from dial to failure.
func (l *Link) session(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, l.cfg.ConnectTimeout)
	conn, err := l.dialer.DialContext(dialCtx, "tcp", l.cfg.Address)
	cancel()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	l.attach(conn)
	defer l.detach(conn)

	// Unblock the read loop on shutdown.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	l.connectsTotal.Add(1)
	l.lastActivity.Store(time.Now().Unix())
	l.logInfo("connected to INDI server", "address", l.cfg.Address)
	l.pub.Connected()

	if err := l.send(ctx, EncodeGetProperties()); err != nil {
		return fmt.Errorf("requesting properties: %w", err)
	}

	return l.readLoop(conn)
}

// readLoop feeds the stream to a fresh Parser line by line and handles every
// complete element. It returns when the stream fails.
func (l *Link) readLoop(conn net.Conn) error {
	reader := bufio.NewReaderSize(conn, readBufferSize)
	parser := NewParser(l.cfg.MaxElementSize)

	for {
		line, readErr := reader.ReadSlice('\n')
		if len(line) > 0 {
			l.lastActivity.Store(time.Now().Unix())
			elements, err := parser.Feed(line)
			for _, raw := range elements {
				l.handleElement(raw)
			}
			if err != nil {
				return err
			}
		}

		switch {
		case readErr == nil, errors.Is(readErr, bufio.ErrBufferFull):
			continue
		case errors.Is(readErr, io.EOF):
			return ErrConnectionClosed
		default:
			return fmt.Errorf("reading from INDI server: %w", readErr)
		}
	}
}

// handleElement decodes one complete element and acts on it. Invalid
// elements are logged and skipped; they never end the connection.
func (l *Link) handleElement(raw []byte) {
	el, err := Decode(raw)
	if err != nil {
		l.elementsInvalid.Add(1)
		l.logWarn("ignoring invalid INDI element", "error", err)
		return
	}
	l.elementsRx.Add(1)

	switch el.Kind {
	case ElementMessage:
		l.logInfo("INDI message", "device", el.Device, "message", el.Message)

	case ElementNumberUpdate:
		l.pub.Publish(el.Property)

	case ElementSwitchUpdate:
		if el.Property.Name == ConnectionProperty && el.Property.State == StateIdle {
			l.autoConnect(el.Property.Device)
		}
		l.pub.Publish(el.Property)

	default:
		l.logDebug("ignoring INDI element", "tag", el.Tag, "device", el.Device)
	}
}

// autoConnect asks an idle device to connect.
func (l *Link) autoConnect(device string) {
	l.autoConnects.Add(1)
	l.logInfo("connecting INDI device", "device", device)

	keys := []SwitchValue{{Name: ConnectKey, On: true}}
	if err := l.SendSwitch(context.Background(), device, ConnectionProperty, keys); err != nil {
		l.logError("auto-connect failed", "device", device, "error", err)
	}
}

// SendSwitch writes a newSwitchVector command to the INDI server.
//
// Returns:
//   - error: ErrNotConnected while offline, ErrInvalidCommand for empty
//     device/name/keys, or the write error
func (l *Link) SendSwitch(ctx context.Context, device, name string, keys []SwitchValue) error {
	frag, err := EncodeNewSwitchVector(device, name, keys)
	if err != nil {
		return err
	}
	if err := l.send(ctx, frag); err != nil {
		return err
	}
	l.commandsTx.Add(1)
	return nil
}

// SendNumber writes a newNumberVector command to the INDI server.
//
// Returns:
//   - error: ErrNotConnected while offline, ErrInvalidCommand for empty
//     device/name/keys, or the write error
func (l *Link) SendNumber(ctx context.Context, device, name string, keys []NumberValue) error {
	frag, err := EncodeNewNumberVector(device, name, keys)
	if err != nil {
		return err
	}
	if err := l.send(ctx, frag); err != nil {
		return err
	}
	l.commandsTx.Add(1)
	return nil
}

// send writes one complete fragment to the current connection.
func (l *Link) send(ctx context.Context, frag []byte) error {
	l.connMu.Lock()
	defer l.connMu.Unlock()

	if l.conn == nil {
		return ErrNotConnected
	}

	deadline := time.Now().Add(l.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := l.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if _, err := l.conn.Write(frag); err != nil {
		return fmt.Errorf("writing to INDI server: %w", err)
	}
	return nil
}

func (l *Link) attach(conn net.Conn) {
	l.connMu.Lock()
	l.conn = conn
	l.connMu.Unlock()
}

// detach drops the connection handle and reports the disconnect, but only
// if conn was the handle this link held.
func (l *Link) detach(conn net.Conn) {
	l.connMu.Lock()
	held := l.conn == conn
	if held {
		l.conn = nil
	}
	l.connMu.Unlock()

	conn.Close()

	if held {
		l.disconnectsTotal.Add(1)
		l.logInfo("disconnected from INDI server", "address", l.cfg.Address)
		l.pub.Disconnected()
	}
}

// IsConnected reports whether the link currently holds a connection.
func (l *Link) IsConnected() bool {
	l.connMu.Lock()
	defer l.connMu.Unlock()
	return l.conn != nil
}

// Stats returns current link statistics.
func (l *Link) Stats() Stats {
	return Stats{
		Connected:        l.IsConnected(),
		ConnectsTotal:    l.connectsTotal.Load(),
		DisconnectsTotal: l.disconnectsTotal.Load(),
		ElementsRx:       l.elementsRx.Load(),
		ElementsInvalid:  l.elementsInvalid.Load(),
		CommandsTx:       l.commandsTx.Load(),
		AutoConnects:     l.autoConnects.Load(),
		LastActivity:     time.Unix(l.lastActivity.Load(), 0),
	}
}

// HealthCheck returns ErrNotConnected while the link is offline.
func (l *Link) HealthCheck(_ context.Context) error {
	if !l.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

func (l *Link) logDebug(msg string, keysAndValues ...any) {
	if l.logger != nil {
		l.logger.Debug(msg, keysAndValues...)
	}
}

func (l *Link) logInfo(msg string, keysAndValues ...any) {
	if l.logger != nil {
		l.logger.Info(msg, keysAndValues...)
	}
}

func (l *Link) logWarn(msg string, keysAndValues ...any) {
	if l.logger != nil {
		l.logger.Warn(msg, keysAndValues...)
	}
}

func (l *Link) logError(msg string, keysAndValues ...any) {
	if l.logger != nil {
		l.logger.Error(msg, keysAndValues...)
	}
}
