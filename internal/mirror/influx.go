package mirror

import (
	"context"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/astroconsole/internal/bridges/indi"
	"github.com/nerrad567/astroconsole/internal/infrastructure/influxdb"
	"github.com/nerrad567/astroconsole/internal/infrastructure/logging"
)

// PointWriter queues points for writing. *influxdb.Client implements it.
type PointWriter interface {
	WritePoint(point *write.Point)
}

// Influx writes every property update as a point in the indi_property measurement.
type Influx struct {
	writer PointWriter
	logger *logging.Logger
	queue  *queue
	now    func() time.Time
}

// NewInflux creates the time-series mirror.
func NewInflux(writer PointWriter, logger *logging.Logger) *Influx {
	return &Influx{
		writer: writer,
		logger: logger.With("component", "influx-mirror"),
		queue:  newQueue(DefaultQueueSize),
		now:    time.Now,
	}
}

// Observe implements gateway.Sink.
func (m *Influx) Observe(p indi.Property) {
	m.queue.offer(p)
}

// Dropped returns the number of updates discarded because the queue was full.
func (m *Influx) Dropped() uint64 {
	return m.queue.dropped.Load()
}

// Run writes queued properties until ctx is cancelled.
func (m *Influx) Run(ctx context.Context) error {
	m.logger.Info("InfluxDB mirror started")
	m.queue.drain(ctx, func(p indi.Property) {
		if point := propertyPoint(p, m.now()); point != nil {
			m.writer.WritePoint(point)
		}
	})
	return nil
}

// propertyPoint converts a property to a point. Switch members become 0 or 1.
// It returns nil for a property with no usable members.
func propertyPoint(p indi.Property, ts time.Time) *write.Point {
	fields := make(map[string]any, len(p.Keys))
	for _, k := range p.Keys {
		switch v := k.Value.(type) {
		case float64:
			fields[k.Key] = v
		case bool:
			if v {
				fields[k.Key] = int64(1)
			} else {
				fields[k.Key] = int64(0)
			}
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return influxdb.NewPropertyPoint(p.Device, p.Name, string(p.State), fields, ts)
}
