//go:build integration

package mqtt

import (
	"context"
	"testing"
	"time"

	"github.com/nerrad567/astroconsole/internal/infrastructure/config"
)

// These tests require a running MQTT broker at 127.0.0.1:1883.
//
//	go test -tags=integration ./internal/infrastructure/mqtt/...

func integrationConfig(clientID string) config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: clientID,
		},
		QoS:         1,
		TopicPrefix: "astroconsole-test",
	}
}

func TestIntegration_CommandRoundtrip(t *testing.T) {
	client, err := Connect(context.Background(), integrationConfig("astroconsole-it-cmd"))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close() //nolint:errcheck // Test cleanup

	got := make(chan string, 1)
	err = client.Subscribe(client.Topics().AllCommands(), 1, func(topic string, _ []byte) error {
		device, _, _, err := client.Topics().ParseCommand(topic)
		if err != nil {
			return err
		}
		got <- device
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	topic := client.Topics().Command("Telescope Simulator", "TELESCOPE_PARK", CommandSwitch)
	if err := client.Publish(topic, []byte(`[{"key":"PARK","value":true}]`), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case device := <-got:
		if device != "Telescope Simulator" {
			t.Errorf("device = %q", device)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for command message")
	}
}

func TestIntegration_LinkStatus(t *testing.T) {
	client, err := Connect(context.Background(), integrationConfig("astroconsole-it-status"))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close() //nolint:errcheck // Test cleanup

	if err := client.SetLinkStatus(true); err != nil {
		t.Errorf("SetLinkStatus() error = %v", err)
	}
}
