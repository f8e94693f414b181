// Package mirror provides optional hub sinks that copy the device model to
// external systems.
//
// MQTT publishes every property as a retained JSON message, keeps the status
// topic in step with the upstream link and accepts commands from the broker.
// Influx writes every property update as a time-series point.
//
// Both sinks hand properties to their own goroutine through a bounded queue,
// so a slow broker or database never stalls the hub; updates that do not fit
// are counted and dropped.
package mirror
