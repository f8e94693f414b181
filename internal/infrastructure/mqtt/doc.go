// Package mqtt provides the MQTT client used to mirror INDI state onto a broker.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Retained state publishing and command subscriptions
//   - A retained gateway status topic with Last Will and Testament
//   - Topic construction and parsing under a configurable prefix
//
// Topic layout (prefix defaults to "astroconsole"):
//
//	astroconsole/status                                  gateway + upstream link status (retained)
//	astroconsole/state/{device}/{property}               property JSON (retained)
//	astroconsole/command/{device}/{property}/{kind}      keys JSON, kind is switch or number
//
// Usage:
//
//	client, err := mqtt.Connect(ctx, cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topic := client.Topics().State("Telescope Simulator", "EQUATORIAL_EOD_COORD")
//	err = client.PublishRetained(topic, payload)
package mqtt
