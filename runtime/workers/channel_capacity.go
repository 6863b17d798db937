package workers

import (
	"context"
	"log/slog"
	"reflect"
	"time"

	"roomcast/observability"
)

type NamedChannel struct {
	Name    string
	Channel any
}

// ChannelCapacityWorker periodically records the current length and
// capacity of the broker's internal channels. Reading len(channel) and
// cap(channel) is non-blocking, so this won't interfere with other
// goroutines, and a lost sample is fine since metrics are periodic.
type ChannelCapacityWorker struct {
	log      *slog.Logger
	stats    *observability.BrokerStats
	interval time.Duration
	channels []NamedChannel
}

func NewChannelCapacityWorker(log *slog.Logger, stats *observability.BrokerStats,
	interval time.Duration, channels ...NamedChannel) *ChannelCapacityWorker {
	return &ChannelCapacityWorker{
		log:      log,
		stats:    stats,
		interval: interval,
		channels: channels,
	}
}

func (w *ChannelCapacityWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping channel sampling")
			return nil
		case <-ticker.C:
			for _, nc := range w.channels {
				v := reflect.ValueOf(nc.Channel)
				// Verify if this is a channel
				if v.Kind() != reflect.Chan {
					w.log.Error("Provided object is not a channel", "name", nc.Name)
					continue
				}
				w.stats.RecordChannelDepth(nc.Name, v.Len(), v.Cap())
			}
		}
	}
}
