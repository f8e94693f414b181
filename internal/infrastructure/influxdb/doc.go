// Package influxdb writes INDI property updates to InfluxDB v2.
//
// Writes are non-blocking and batched by the client library; asynchronous
// write failures are reported through SetOnError. Each property update becomes
// one point in the "indi_property" measurement, tagged with device, property
// and state, with one field per numeric key.
//
// Usage:
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WritePoint(influxdb.NewPropertyPoint(device, name, state, fields, time.Now()))
package influxdb
