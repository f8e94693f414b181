package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/astroconsole/internal/audit"
	"github.com/nerrad567/astroconsole/internal/bridges/indi"
	"github.com/nerrad567/astroconsole/internal/gateway"
	"github.com/nerrad567/astroconsole/internal/infrastructure/logging"
	"github.com/nerrad567/astroconsole/internal/infrastructure/mqtt"
)

// commandTimeout bounds a broker-originated command write.
const commandTimeout = 5 * time.Second

// Broker is the MQTT surface the mirror needs. *mqtt.Client implements it.
type Broker interface {
	Topics() mqtt.Topics
	PublishRetained(topic string, payload []byte) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	SetLinkStatus(connected bool) error
}

// Recorder stores a command log entry. *audit.SQLiteRepository implements it.
type Recorder interface {
	Record(ctx context.Context, log *audit.CommandLog) error
}

// MQTT mirrors the device model to retained state topics and forwards
// commands received on the command topics to the upstream link.
type MQTT struct {
	broker    Broker
	commander gateway.Commander
	recorder  Recorder
	logger    *logging.Logger
	qos       byte
	queue     *queue

	// Owned by the Run goroutine.
	retained map[string]struct{}
}

// NewMQTT creates the mirror. recorder may be nil.
func NewMQTT(broker Broker, commander gateway.Commander, recorder Recorder, qos byte, logger *logging.Logger) *MQTT {
	return &MQTT{
		broker:    broker,
		commander: commander,
		recorder:  recorder,
		logger:    logger.With("component", "mqtt-mirror"),
		qos:       qos,
		queue:     newQueue(DefaultQueueSize),
		retained:  make(map[string]struct{}),
	}
}

// Observe implements gateway.Sink.
func (m *MQTT) Observe(p indi.Property) {
	m.queue.offer(p)
}

// Dropped returns the number of updates discarded because the queue was full.
func (m *MQTT) Dropped() uint64 {
	return m.queue.dropped.Load()
}

// Run subscribes to the command topics and publishes queued properties until
// ctx is cancelled.
func (m *MQTT) Run(ctx context.Context) error {
	if err := m.broker.Subscribe(m.broker.Topics().AllCommands(), m.qos, m.handleCommand); err != nil {
		return fmt.Errorf("subscribing to command topics: %w", err)
	}
	m.logger.Info("MQTT mirror started", "prefix", m.broker.Topics().Prefix())

	m.queue.drain(ctx, m.mirror)
	return nil
}

func (m *MQTT) mirror(p indi.Property) {
	if p.Device == indi.ProxyDevice && p.Name == indi.ConnectionProperty {
		connected, _ := p.Switch(indi.ConnectKey)
		if err := m.broker.SetLinkStatus(connected); err != nil {
			m.logger.Warn("publishing link status failed", "error", err)
		}
		if !connected {
			m.clearRetained()
		}
		return
	}

	payload, err := json.Marshal(p)
	if err != nil {
		m.logger.Error("encoding property failed", "property", p.ID(), "error", err)
		return
	}

	topic := m.broker.Topics().State(p.Device, p.Name)
	if err := m.broker.PublishRetained(topic, payload); err != nil {
		m.logger.Debug("publishing property failed", "property", p.ID(), "error", err)
		return
	}
	m.retained[topic] = struct{}{}
}

// clearRetained removes the retained state of a device model that no longer exists.
func (m *MQTT) clearRetained() {
	for topic := range m.retained {
		if err := m.broker.PublishRetained(topic, nil); err != nil {
			m.logger.Debug("clearing retained state failed", "topic", topic, "error", err)
		}
		delete(m.retained, topic)
	}
}

// handleCommand decodes a command message. The payload is the keys list,
// for example [{"key":"PARK","value":true}].
func (m *MQTT) handleCommand(topic string, payload []byte) error {
	device, property, kind, err := m.broker.Topics().ParseCommand(topic)
	if err != nil {
		return err
	}

	var keys []gateway.ClientKey
	if err := json.Unmarshal(payload, &keys); err != nil {
		return fmt.Errorf("decoding command keys: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	sendErr := gateway.Dispatch(ctx, m.commander, kind, device, property, keys)
	m.record(ctx, kind, device, property, payload, sendErr)
	if sendErr != nil {
		return fmt.Errorf("forwarding %s command for %s.%s: %w", kind, device, property, sendErr)
	}

	m.logger.Debug("forwarded MQTT command", "device", device, "property", property, "kind", kind)
	return nil
}

func (m *MQTT) record(ctx context.Context, kind, device, property string, keys []byte, sendErr error) {
	if m.recorder == nil {
		return
	}
	result := audit.ResultSent
	if sendErr != nil {
		result = sendErr.Error()
	}
	entry := &audit.CommandLog{
		SessionID: "mqtt",
		Source:    audit.SourceMQTT,
		Command:   kind,
		Device:    device,
		Property:  property,
		Keys:      json.RawMessage(keys),
		Result:    result,
	}
	if err := m.recorder.Record(ctx, entry); err != nil {
		m.logger.Warn("recording MQTT command failed", "error", err)
	}
}
