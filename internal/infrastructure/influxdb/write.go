package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// PropertyMeasurement is the measurement every INDI property update is written to.
const PropertyMeasurement = "indi_property"

// NewPropertyPoint builds the point for one property update. Fields map key
// names to values; an empty fields map yields a point that WritePoint skips.
func NewPropertyPoint(device, property, state string, fields map[string]any, ts time.Time) *write.Point {
	tags := map[string]string{
		"device":   device,
		"property": property,
	}
	if state != "" {
		tags["state"] = state
	}
	return write.NewPoint(PropertyMeasurement, tags, fields, ts)
}

// WritePoint queues a point for the next batch. Points without fields are
// dropped since InfluxDB rejects them.
func (c *Client) WritePoint(point *write.Point) {
	if point == nil || len(point.FieldList()) == 0 || !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(point)
	c.queued.Add(1)
}
