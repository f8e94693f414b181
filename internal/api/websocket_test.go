package api

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/astroconsole/internal/audit"
	"github.com/nerrad567/astroconsole/internal/bridges/indi"
	"github.com/nerrad567/astroconsole/internal/infrastructure/logging"
)

const readTimeout = 2 * time.Second

func dial(t *testing.T, addr string) *websocket.Conn {
	t.Helper()

	ws, resp, err := websocket.DefaultDialer.Dial("ws://"+addr+"/", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	resp.Body.Close()
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readFrame(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()

	ws.SetReadDeadline(time.Now().Add(readTimeout)) //nolint:errcheck // Test deadline
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var frame map[string]any
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("frame %s is not a JSON object: %v", data, err)
	}
	return frame
}

// openSession dials and consumes the layout and a snapshot of n properties.
func openSession(t *testing.T, addr string, n int) *websocket.Conn {
	t.Helper()

	ws := dial(t, addr)
	if frame := readFrame(t, ws); frame["devices"] == nil {
		t.Fatalf("first frame = %v, want layout", frame)
	}
	for range n {
		readFrame(t, ws)
	}
	return ws
}

func expectProperty(t *testing.T, ws *websocket.Conn, device, name string) map[string]any {
	t.Helper()

	frame := readFrame(t, ws)
	if frame["device"] != device || frame["name"] != name {
		t.Fatalf("frame = %v, want %s.%s", frame, device, name)
	}
	return frame
}

func expectClose(t *testing.T, ws *websocket.Conn, code int) {
	t.Helper()

	ws.SetReadDeadline(time.Now().Add(readTimeout)) //nolint:errcheck // Test deadline
	for {
		_, data, err := ws.ReadMessage()
		if err == nil {
			t.Logf("frame before close: %s", data)
			continue
		}
		if !websocket.IsCloseError(err, code) {
			t.Fatalf("read error = %v, want close code %d", err, code)
		}
		return
	}
}

func send(t *testing.T, ws *websocket.Conn, msg string) {
	t.Helper()
	if err := ws.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(readTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSession_LayoutThenSnapshot(t *testing.T) {
	env := newTestEnv(t)
	stored := `{"devices": {"CCD Simulator": {"order": 1}}}`
	if err := os.WriteFile(env.layoutPath, []byte(stored), 0o644); err != nil {
		t.Fatalf("writing layout: %v", err)
	}
	env.hub.Connected()
	env.hub.Publish(numberProperty("CCD Simulator", "CCD_EXPOSURE", 1.5))
	env.settle(t)
	addr := env.start(t)

	ws := dial(t, addr)

	ws.SetReadDeadline(time.Now().Add(readTimeout)) //nolint:errcheck // Test deadline
	_, first, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read layout: %v", err)
	}
	if string(first) != stored {
		t.Errorf("layout frame = %s, want %s", first, stored)
	}

	conn := expectProperty(t, ws, indi.ProxyDevice, indi.ConnectionProperty)
	keys, _ := conn["keys"].([]any)
	if len(keys) != 1 || keys[0].(map[string]any)["value"] != true {
		t.Errorf("proxy CONNECTION keys = %v, want CONNECT=true", conn["keys"])
	}

	exposure := expectProperty(t, ws, "CCD Simulator", "CCD_EXPOSURE")
	if exposure["state"] != "Ok" {
		t.Errorf("state = %v, want Ok", exposure["state"])
	}
}

func TestSession_DefaultLayoutWhenMissing(t *testing.T) {
	env := newTestEnv(t)
	addr := env.start(t)

	ws := dial(t, addr)
	frame := readFrame(t, ws)
	devices, ok := frame["devices"].(map[string]any)
	if !ok || len(devices) != 0 {
		t.Errorf("layout = %v, want empty devices map", frame)
	}
	expectProperty(t, ws, indi.ProxyDevice, indi.ConnectionProperty)
}

func TestSession_LiveUpdates(t *testing.T) {
	env := newTestEnv(t)
	addr := env.start(t)

	ws := openSession(t, addr, 1)

	env.hub.Connected()
	env.hub.Publish(numberProperty("Focuser Simulator", "ABS_FOCUS_POSITION", 1200))

	expectProperty(t, ws, indi.ProxyDevice, indi.ConnectionProperty)
	frame := expectProperty(t, ws, "Focuser Simulator", "ABS_FOCUS_POSITION")
	keys := frame["keys"].([]any)
	if v := keys[0].(map[string]any)["value"]; v != 1200.0 {
		t.Errorf("value = %v, want 1200", v)
	}

	env.hub.Disconnected()
	frame = expectProperty(t, ws, indi.ProxyDevice, indi.ConnectionProperty)
	if v := frame["keys"].([]any)[0].(map[string]any)["value"]; v != false {
		t.Errorf("CONNECT after disconnect = %v, want false", v)
	}
}

func TestSession_CommandsReachUpstream(t *testing.T) {
	env := newTestEnv(t)
	addr := env.start(t)

	ws := openSession(t, addr, 1)

	send(t, ws, `{"cmd":"number","device":"CCD Simulator","name":"CCD_EXPOSURE","keys":[{"key":"CCD_EXPOSURE_VALUE","value":"2.5"}]}`)
	waitFor(t, "number command", func() bool {
		return len(env.commander.number("CCD Simulator.CCD_EXPOSURE")) == 1
	})
	if got := env.commander.number("CCD Simulator.CCD_EXPOSURE")[0]; got.Name != "CCD_EXPOSURE_VALUE" || got.Value != 2.5 {
		t.Errorf("forwarded number = %+v", got)
	}

	waitFor(t, "audit entry", func() bool { return env.audit.count() == 1 })
	env.audit.mu.Lock()
	entry := env.audit.logs[0]
	env.audit.mu.Unlock()
	if entry.Source != audit.SourceWebSocket || entry.Result != audit.ResultSent || entry.Device != "CCD Simulator" {
		t.Errorf("audit entry = %+v", entry)
	}

	// A successful command gets no reply; the next frame is the live update.
	env.hub.Publish(numberProperty("CCD Simulator", "CCD_EXPOSURE", 2.5))
	expectProperty(t, ws, "CCD Simulator", "CCD_EXPOSURE")
}

func TestSession_FailedCommandsAreAnswered(t *testing.T) {
	tests := []struct {
		name        string
		msg         string
		upstreamErr error
		wantCmd     string
		wantTarget  bool
		wantMessage string
	}{
		{
			name:        "offline upstream",
			msg:         `{"cmd":"switch","device":"Telescope Simulator","name":"TELESCOPE_PARK","keys":[{"key":"PARK","value":true}]}`,
			upstreamErr: indi.ErrNotConnected,
			wantCmd:     "switch",
			wantTarget:  true,
			wantMessage: "not connected",
		},
		{
			name:        "invalid number",
			msg:         `{"cmd":"number","device":"CCD Simulator","name":"CCD_EXPOSURE","keys":[{"key":"CCD_EXPOSURE_VALUE","value":"soon"}]}`,
			wantCmd:     "number",
			wantTarget:  true,
			wantMessage: "invalid key value",
		},
		{
			name:        "layout that is not an object",
			msg:         `{"cmd":"config","config":null}`,
			wantCmd:     "config",
			wantMessage: "JSON object",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.commander.setErr(tt.upstreamErr)
			addr := env.start(t)

			ws := openSession(t, addr, 1)
			send(t, ws, tt.msg)

			frame := expectProperty(t, ws, indi.ProxyDevice, commandResultName)
			if frame["state"] != "Alert" || frame["cmd"] != tt.wantCmd {
				t.Errorf("result = %v", frame)
			}
			if keys, ok := frame["keys"].([]any); !ok || len(keys) != 0 {
				t.Errorf("keys = %v, want empty list", frame["keys"])
			}
			if msg, _ := frame["message"].(string); !strings.Contains(msg, tt.wantMessage) {
				t.Errorf("message = %q, want it to contain %q", msg, tt.wantMessage)
			}
			if _, ok := frame["target"]; ok != tt.wantTarget {
				t.Errorf("target = %v, present = %v, want %v", frame["target"], ok, tt.wantTarget)
			}

			// The session stays open.
			env.hub.Publish(numberProperty("CCD Simulator", "CCD_TEMPERATURE", -10))
			expectProperty(t, ws, "CCD Simulator", "CCD_TEMPERATURE")
		})
	}
}

func TestSession_MalformedMessagesEndOnlyThatSession(t *testing.T) {
	tests := []struct {
		name string
		msg  string
	}{
		{"not json", `hello`},
		{"not an object", `[1,2]`},
		{"missing cmd", `{"device":"CCD Simulator","name":"CCD_EXPOSURE"}`},
		{"missing device", `{"cmd":"switch","name":"CONNECTION","keys":[]}`},
		{"missing name", `{"cmd":"number","device":"CCD Simulator","keys":[]}`},
		{"missing keys", `{"cmd":"switch","device":"CCD Simulator","name":"CONNECTION"}`},
		{"keys not a list", `{"cmd":"number","device":"d","name":"p","keys":{"key":"A","value":1}}`},
		{"key without value", `{"cmd":"switch","device":"d","name":"p","keys":[{"key":"CONNECT"}]}`},
		{"config without config", `{"cmd":"config"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			addr := env.start(t)

			bad := openSession(t, addr, 1)
			good := openSession(t, addr, 1)

			send(t, bad, tt.msg)
			expectClose(t, bad, websocket.CloseUnsupportedData)

			env.hub.Publish(numberProperty("CCD Simulator", "CCD_EXPOSURE", 1))
			expectProperty(t, good, "CCD Simulator", "CCD_EXPOSURE")

			waitFor(t, "session teardown", func() bool { return env.srv.sessionCount() == 1 })
			waitFor(t, "unsubscribe", func() bool { return env.hub.Stats().Subscribers == 1 })
		})
	}
}

func TestSession_UnknownCommandIsIgnored(t *testing.T) {
	env := newTestEnv(t)
	addr := env.start(t)

	ws := openSession(t, addr, 1)
	send(t, ws, `{"cmd":"text","device":"d","name":"p"}`)

	env.hub.Publish(numberProperty("CCD Simulator", "CCD_EXPOSURE", 1))
	expectProperty(t, ws, "CCD Simulator", "CCD_EXPOSURE")
	if env.audit.count() != 0 {
		t.Errorf("audit entries = %d, want 0", env.audit.count())
	}
}

func TestSession_ConfigReplacesLayout(t *testing.T) {
	env := newTestEnv(t)
	addr := env.start(t)

	ws := openSession(t, addr, 1)
	send(t, ws, `{"cmd":"config","config":{"devices":{"Focuser Simulator":{"hidden":true}}}}`)

	waitFor(t, "layout file", func() bool {
		data, err := os.ReadFile(env.layoutPath)
		return err == nil && strings.Contains(string(data), "Focuser Simulator")
	})

	next := dial(t, addr)
	frame := readFrame(t, next)
	devices, _ := frame["devices"].(map[string]any)
	if _, ok := devices["Focuser Simulator"]; !ok {
		t.Errorf("layout for new session = %v", frame)
	}
}

func TestServer_CloseEndsSessions(t *testing.T) {
	env := newTestEnv(t)
	addr := env.start(t)

	ws := openSession(t, addr, 1)
	if err := env.srv.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	expectClose(t, ws, websocket.CloseGoingAway)
}

func TestSession_Deliver(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.WS.SendBuffer = 1 })
	c := &session{
		id:     "s1",
		server: env.srv,
		logger: logging.Discard(),
		send:   make(chan [][]byte, 1),
		done:   make(chan struct{}),
	}

	if err := c.Deliver([]byte(`{}`)); err != nil {
		t.Fatalf("first Deliver() error = %v", err)
	}
	if err := c.Deliver([]byte(`{}`)); !errors.Is(err, ErrSlowConsumer) {
		t.Fatalf("Deliver() on full queue error = %v, want ErrSlowConsumer", err)
	}
	if c.closeCode != websocket.CloseTryAgainLater {
		t.Errorf("close code = %d, want %d", c.closeCode, websocket.CloseTryAgainLater)
	}
	if err := c.Deliver([]byte(`{}`)); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Deliver() after close error = %v, want ErrSessionClosed", err)
	}
}

func TestHandleMessage_Errors(t *testing.T) {
	env := newTestEnv(t)
	c := &session{
		id:     "s1",
		server: env.srv,
		logger: logging.Discard(),
		send:   make(chan [][]byte, 8),
		done:   make(chan struct{}),
	}
	ctx := context.Background()

	if err := c.handleMessage(ctx, []byte(`{"cmd":"switch","device":"d","name":"p","keys":[1]}`)); !errors.Is(err, ErrMalformedMessage) {
		t.Errorf("handleMessage(non-object key) error = %v, want ErrMalformedMessage", err)
	}
	if err := c.handleMessage(ctx, []byte(`{"cmd":"switch","device":"d","name":"p","keys":[{"key":"A","value":[1]}]}`)); err != nil {
		t.Errorf("handleMessage(array value) error = %v, want reply instead", err)
	}
	if len(c.send) != 1 {
		t.Errorf("queued frames = %d, want one command result", len(c.send))
	}
}
