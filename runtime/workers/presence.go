package workers

import (
	"context"
	"log/slog"
	"time"

	"roomcast/domain"
)

// PresenceRegistry is the slice of the registry the sweep needs.
type PresenceRegistry interface {
	Snapshot() []domain.Connection
	MarkSuspect(id domain.ConnectionID) bool
}

// Reaper tears down a connection that stopped responding or misbehaved.
type Reaper interface {
	Reap(id domain.ConnectionID, reason string)
}

// PresenceWorker drives the liveness state machine:
// Active -> Suspect after the heartbeat timeout, Suspect -> Reaped after
// timeout plus grace. Any inbound frame resets a connection to Active via
// the registry, outside this worker. Reaping is best-effort and never
// fatal to the broker process.
type PresenceWorker struct {
	log      *slog.Logger
	registry PresenceRegistry
	reaper   Reaper
	timeout  time.Duration
	grace    time.Duration
	interval time.Duration
}

func NewPresenceWorker(log *slog.Logger, registry PresenceRegistry, reaper Reaper,
	timeout, grace, interval time.Duration) *PresenceWorker {
	return &PresenceWorker{
		log:      log,
		registry: registry,
		reaper:   reaper,
		timeout:  timeout,
		grace:    grace,
		interval: interval,
	}
}

func (w *PresenceWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping presence sweep")
			return nil
		case <-ticker.C:
			w.sweep(time.Now().UTC())
		}
	}
}

// sweep scans a snapshot of all registered connections once. Working on a
// copy keeps the registry lock out of the reap path entirely.
func (w *PresenceWorker) sweep(now time.Time) {
	for _, conn := range w.registry.Snapshot() {
		idle := now.Sub(conn.LastActivity)

		switch conn.State {
		case domain.StateActive:
			if idle > w.timeout && w.registry.MarkSuspect(conn.ID) {
				w.log.Debug("Connection suspect", "connection", conn.ID, "idle", idle)
			}
		case domain.StateSuspect:
			if idle > w.timeout+w.grace {
				w.log.Info("Reaping silent connection", "connection", conn.ID, "idle", idle)
				w.reaper.Reap(conn.ID, "presence timeout")
			}
		}
	}
}
