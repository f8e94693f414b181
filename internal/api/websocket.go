package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/astroconsole/internal/audit"
	"github.com/nerrad567/astroconsole/internal/bridges/indi"
	"github.com/nerrad567/astroconsole/internal/gateway"
	"github.com/nerrad567/astroconsole/internal/infrastructure/logging"
	"github.com/nerrad567/astroconsole/internal/layout"
)

const (
	// commandTimeout bounds one upstream command write.
	commandTimeout = 5 * time.Second

	// closeWriteWait bounds the close frame written when a session ends.
	closeWriteWait = time.Second

	// commandResultName is the proxy property used to answer a failed command.
	commandResultName = "COMMAND_RESULT"
)

// clientMessage is a decoded client command. Pointer and raw fields
// distinguish a missing field from an empty one.
type clientMessage struct {
	Cmd    *string         `json:"cmd"`
	Device *string         `json:"device"`
	Name   *string         `json:"name"`
	Keys   json.RawMessage `json:"keys"`
	Config json.RawMessage `json:"config"`
}

// commandTarget names the property a failed command was aimed at.
type commandTarget struct {
	Device string `json:"device"`
	Name   string `json:"name"`
}

// commandResult is the property-shaped frame sent to one session when its
// command could not be carried out. It is never stored or broadcast.
type commandResult struct {
	Device  string         `json:"device"`
	Name    string         `json:"name"`
	State   indi.State     `json:"state"`
	Keys    []indi.Key     `json:"keys"`
	Cmd     string         `json:"cmd"`
	Target  *commandTarget `json:"target,omitempty"`
	Message string         `json:"message"`
}

// session is one websocket client. It implements gateway.Subscriber.
//
// Frames reach the client through a single writer goroutine, so the layout,
// the snapshot, live updates and command results keep the order in which
// they were queued.
type session struct {
	id     string
	server *Server
	conn   *websocket.Conn
	logger *logging.Logger

	send chan [][]byte
	done chan struct{}

	closeOnce sync.Once
	closeCode int
	closeText string
}

func newSession(s *Server, conn *websocket.Conn) *session {
	id := uuid.NewString()
	return &session{
		id:     id,
		server: s,
		conn:   conn,
		logger: s.logger.With("session", id),
		send:   make(chan [][]byte, s.wsCfg.SendBuffer),
		done:   make(chan struct{}),
	}
}

// ID implements gateway.Subscriber.
func (c *session) ID() string {
	return c.id
}

// Deliver implements gateway.Subscriber. It never blocks: a session whose
// queue is full is closed.
func (c *session) Deliver(frames ...[]byte) error {
	select {
	case <-c.done:
		return ErrSessionClosed
	default:
	}

	select {
	case c.send <- frames:
		return nil
	case <-c.done:
		return ErrSessionClosed
	default:
		c.close(websocket.CloseTryAgainLater, "send queue full")
		return ErrSlowConsumer
	}
}

// close ends the session. The first call wins and decides the close frame.
func (c *session) close(code int, text string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeText = text
		close(c.done)
	})
}

// handleSession upgrades the request and runs the session until it ends.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		s.logger.Debug("websocket upgrade failed", "path", r.URL.Path, "error", err)
		return
	}

	c := newSession(s, conn)
	s.track(c)
	defer s.untrack(c)

	c.logger.Info("session opened", "remote", r.RemoteAddr)
	go c.writePump()

	if err := c.open(r.Context()); err != nil {
		c.logger.Warn("session setup failed", "error", err)
		c.close(websocket.CloseInternalServerErr, "session setup failed")
		return
	}
	defer s.hub.Unsubscribe(c)

	c.readPump(r.Context())
	c.logger.Info("session closed", "code", c.closeCode)
}

// open queues the layout and then registers with the hub, which queues the
// snapshot before any live update.
func (c *session) open(ctx context.Context) error {
	data, err := c.server.layout.Load()
	if err != nil {
		c.logger.Warn("layout unavailable, sending empty layout", "error", err)
		data = layout.DefaultLayout
	}
	if err := c.Deliver(data); err != nil {
		return fmt.Errorf("queueing layout: %w", err)
	}
	if err := c.server.hub.Subscribe(ctx, c); err != nil {
		return fmt.Errorf("subscribing: %w", err)
	}
	return nil
}

// readPump reads client messages until the client leaves or a message ends
// the session.
func (c *session) readPump(ctx context.Context) {
	cfg := c.server.wsCfg
	idle := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second

	if cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	}
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(idle))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(idle))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				// Closed by the server; the read error is the result.
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					c.logger.Warn("websocket read error", "error", err)
				} else {
					c.logger.Debug("websocket closed by client", "error", err)
				}
				c.close(websocket.CloseNormalClosure, "")
			}
			return
		}
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(idle))

		if err := c.handleMessage(ctx, message); err != nil {
			c.logger.Warn("terminating session", "error", err)
			c.close(websocket.CloseUnsupportedData, "malformed message")
			return
		}
	}
}

// writePump writes queued frames and keepalive pings. When the session is
// closed it sends the close frame and closes the connection.
func (c *session) writePump() {
	cfg := c.server.wsCfg
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	writeWait := time.Duration(cfg.PongTimeout) * time.Second

	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close() //nolint:errcheck // Connection is finished either way
	}()

	for {
		select {
		case <-c.done:
			msg := websocket.FormatCloseMessage(c.closeCode, c.closeText)
			//nolint:errcheck // Best-effort close frame
			c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteWait))
			return

		case frames := <-c.send:
			for _, frame := range frames {
				//nolint:errcheck // Best-effort deadline; write error caught below
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
					c.logger.Debug("websocket write failed", "error", err)
					c.close(websocket.CloseAbnormalClosure, "")
					return
				}
			}

		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close(websocket.CloseAbnormalClosure, "")
				return
			}
		}
	}
}

// handleMessage applies one client message. A returned error wraps
// ErrMalformedMessage and ends the session; failed commands are answered
// with a command result instead.
func (c *session) handleMessage(ctx context.Context, data []byte) error {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	if msg.Cmd == nil {
		return fmt.Errorf("%w: missing cmd", ErrMalformedMessage)
	}

	switch cmd := *msg.Cmd; cmd {
	case gateway.CommandSwitch, gateway.CommandNumber:
		return c.handleCommand(ctx, cmd, msg)
	case gateway.CommandConfig:
		if len(msg.Config) == 0 {
			return fmt.Errorf("%w: config command without config", ErrMalformedMessage)
		}
		if err := c.server.layout.Save(msg.Config); err != nil {
			c.logger.Error("saving layout failed", "error", err)
			c.reply(cmd, nil, err)
			return nil
		}
		c.logger.Info("layout saved")
		return nil
	default:
		c.logger.Warn("ignoring unknown command", "cmd", cmd)
		return nil
	}
}

func (c *session) handleCommand(ctx context.Context, cmd string, msg clientMessage) error {
	if msg.Device == nil || msg.Name == nil {
		return fmt.Errorf("%w: %s command without device or name", ErrMalformedMessage, cmd)
	}
	if len(msg.Keys) == 0 || msg.Keys[0] != '[' {
		return fmt.Errorf("%w: %s command keys must be a list", ErrMalformedMessage, cmd)
	}
	var keys []gateway.ClientKey
	if err := json.Unmarshal(msg.Keys, &keys); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}

	target := &commandTarget{Device: *msg.Device, Name: *msg.Name}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	err := gateway.Dispatch(ctx, c.server.commander, cmd, target.Device, target.Name, keys)
	if errors.Is(err, gateway.ErrMalformedKeys) {
		return fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	c.record(ctx, cmd, target, msg.Keys, err)

	if err != nil {
		c.logger.Warn("command not sent", "cmd", cmd, "device", target.Device, "name", target.Name, "error", err)
		c.reply(cmd, target, err)
		return nil
	}
	c.logger.Debug("command sent", "cmd", cmd, "device", target.Device, "name", target.Name)
	return nil
}

// reply sends a command result to this session only.
func (c *session) reply(cmd string, target *commandTarget, cause error) {
	frame, err := json.Marshal(commandResult{
		Device:  indi.ProxyDevice,
		Name:    commandResultName,
		State:   indi.StateAlert,
		Keys:    []indi.Key{},
		Cmd:     cmd,
		Target:  target,
		Message: cause.Error(),
	})
	if err != nil {
		c.logger.Error("encoding command result", "error", err)
		return
	}
	if err := c.Deliver(frame); err != nil {
		c.logger.Debug("command result not delivered", "error", err)
	}
}

func (c *session) record(ctx context.Context, cmd string, target *commandTarget, keys json.RawMessage, sendErr error) {
	if c.server.audit == nil {
		return
	}
	result := audit.ResultSent
	if sendErr != nil {
		result = sendErr.Error()
	}
	entry := &audit.CommandLog{
		SessionID: c.id,
		Source:    audit.SourceWebSocket,
		Command:   cmd,
		Device:    target.Device,
		Property:  target.Name,
		Keys:      keys,
		Result:    result,
	}
	if err := c.server.audit.Record(ctx, entry); err != nil {
		c.logger.Warn("recording command failed", "error", err)
	}
}
