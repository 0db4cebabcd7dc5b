package metrics

import (
	"context"

	coremetrics "github.com/kilianp07/mqttbridge/core/metrics"
	coremqtt "github.com/kilianp07/mqttbridge/core/mqtt"
	"github.com/kilianp07/mqttbridge/internal/eventbus"
)

// StartStateCollector subscribes to connection state changes and records
// them on sinks implementing ConnectionRecorder. It stops when ctx is
// cancelled or the bus is closed.
func StartStateCollector(ctx context.Context, bus *eventbus.TypedBus[coremqtt.StateChange], sink coremetrics.MetricsSink) {
	if bus == nil || sink == nil {
		return
	}
	rec, ok := sink.(coremetrics.ConnectionRecorder)
	if !ok {
		return
	}
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				_ = rec.RecordConnection(coremetrics.ConnectionEvent{
					State:     ev.To.String(),
					Connected: ev.To.Live(),
					Attempt:   ev.To == coremqtt.Connecting,
					Time:      ev.Time,
				})
			}
		}
	}()
}
