package workers

import (
	"context"
	"log/slog"

	"roomcast/domain"
)

// OverflowWorker drains the dispatcher's forced-disconnect queue and tears
// the victims down. Under the disconnect-on-overflow policy the delivery
// path only marks a connection; the actual teardown happens here so the
// hot path never waits on registry or directory locks.
type OverflowWorker struct {
	log     *slog.Logger
	victims <-chan domain.ConnectionID
	reaper  Reaper
}

func NewOverflowWorker(log *slog.Logger, victims <-chan domain.ConnectionID, reaper Reaper) *OverflowWorker {
	return &OverflowWorker{log: log, victims: victims, reaper: reaper}
}

func (w *OverflowWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping overflow worker")
			return nil
		case id := <-w.victims:
			w.log.Warn("Disconnecting connection on mailbox overflow", "connection", id)
			w.reaper.Reap(id, "mailbox overflow")
		}
	}
}
