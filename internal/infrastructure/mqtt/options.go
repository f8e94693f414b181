package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/astroconsole/internal/infrastructure/config"
)

const (
	defaultConnectTimeout = 10 * time.Second

	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is in milliseconds.
	defaultDisconnectQuiesce = 1000

	defaultKeepAlive = 60 * time.Second

	reconnectInterval    = 1 * time.Second
	maxReconnectInterval = 60 * time.Second

	maxQoS = 2

	tlsMinVersion = tls.VersionTLS12
)

// Status values published on the status topic.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// StatusMessage is the retained payload of the status topic.
type StatusMessage struct {
	Status        string `json:"status"`
	ClientID      string `json:"client_id"`
	INDIConnected bool   `json:"indi_connected"`
	Reason        string `json:"reason,omitempty"`
	Timestamp     string `json:"timestamp"`
}

// buildClientOptions creates paho MQTT options from the astroconsole config.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port))
	opts.SetClientID(cfg.Broker.ClientID)

	if cfg.Broker.Username != "" {
		opts.SetUsername(cfg.Broker.Username)
		opts.SetPassword(cfg.Broker.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(reconnectInterval)
	opts.SetMaxReconnectInterval(maxReconnectInterval)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}

	return opts
}

// configureLWT makes the broker publish an offline status if the gateway
// disappears without a clean disconnect.
func configureLWT(opts *pahomqtt.ClientOptions, topics Topics, clientID string) {
	payload := statusPayload(StatusOffline, clientID, false, "unexpected_disconnect")
	opts.SetWill(topics.Status(), string(payload), 1, true)
}

func statusPayload(status, clientID string, indiConnected bool, reason string) []byte {
	b, _ := json.Marshal(StatusMessage{ //nolint:errcheck // struct of strings and bools
		Status:        status,
		ClientID:      clientID,
		INDIConnected: indiConnected,
		Reason:        reason,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	})
	return b
}
