package workers

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"roomcast/domain"
)

type fakeRegistry struct {
	conns    map[domain.ConnectionID]domain.Connection
	suspects []domain.ConnectionID
}

func (f *fakeRegistry) Snapshot() []domain.Connection {
	var out []domain.Connection
	for _, conn := range f.conns {
		out = append(out, conn)
	}
	return out
}

func (f *fakeRegistry) MarkSuspect(id domain.ConnectionID) bool {
	conn, ok := f.conns[id]
	if !ok || conn.State != domain.StateActive {
		return false
	}
	conn.State = domain.StateSuspect
	f.conns[id] = conn
	f.suspects = append(f.suspects, id)
	return true
}

type fakeReaper struct {
	reaped  []domain.ConnectionID
	reasons []string
}

func (f *fakeReaper) Reap(id domain.ConnectionID, reason string) {
	f.reaped = append(f.reaped, id)
	f.reasons = append(f.reasons, reason)
}

func newPresenceFixture(timeout, grace time.Duration) (*fakeRegistry, *fakeReaper, *PresenceWorker) {
	registry := &fakeRegistry{conns: make(map[domain.ConnectionID]domain.Connection)}
	reaper := &fakeReaper{}
	worker := NewPresenceWorker(slog.Default(), registry, reaper, timeout, grace, time.Second)
	return registry, reaper, worker
}

func TestPresence_FreshConnectionStaysActive(t *testing.T) {
	req := require.New(t)
	now := time.Now().UTC()
	registry, reaper, worker := newPresenceFixture(30*time.Second, 10*time.Second)

	registry.conns["a"] = domain.Connection{
		ID: "a", State: domain.StateActive, LastActivity: now.Add(-time.Second),
	}

	worker.sweep(now)

	req.Empty(registry.suspects)
	req.Empty(reaper.reaped)
}

func TestPresence_SilentConnectionTurnsSuspect(t *testing.T) {
	req := require.New(t)
	now := time.Now().UTC()
	registry, reaper, worker := newPresenceFixture(30*time.Second, 10*time.Second)

	// Given a connection silent for longer than the timeout
	registry.conns["a"] = domain.Connection{
		ID: "a", State: domain.StateActive, LastActivity: now.Add(-31 * time.Second),
	}

	worker.sweep(now)

	// Then it is Suspect but not yet reaped
	req.Equal([]domain.ConnectionID{"a"}, registry.suspects)
	req.Empty(reaper.reaped)
}

func TestPresence_SuspectPastGraceIsReaped(t *testing.T) {
	req := require.New(t)
	now := time.Now().UTC()
	registry, reaper, worker := newPresenceFixture(30*time.Second, 10*time.Second)

	// Given a suspect connection silent past timeout plus grace
	registry.conns["a"] = domain.Connection{
		ID: "a", State: domain.StateSuspect, LastActivity: now.Add(-41 * time.Second),
	}
	// And one still inside the grace window
	registry.conns["b"] = domain.Connection{
		ID: "b", State: domain.StateSuspect, LastActivity: now.Add(-35 * time.Second),
	}

	worker.sweep(now)

	// Then only the first one is reaped
	req.Equal([]domain.ConnectionID{"a"}, reaper.reaped)
	req.Equal([]string{"presence timeout"}, reaper.reasons)
}

func TestPresence_FullLifecycleAcrossSweeps(t *testing.T) {
	req := require.New(t)
	start := time.Now().UTC()
	registry, reaper, worker := newPresenceFixture(30*time.Second, 10*time.Second)

	registry.conns["a"] = domain.Connection{
		ID: "a", State: domain.StateActive, LastActivity: start,
	}

	// First sweep after the timeout: Active -> Suspect
	worker.sweep(start.Add(31 * time.Second))
	req.Equal([]domain.ConnectionID{"a"}, registry.suspects)
	req.Empty(reaper.reaped)

	// Second sweep past timeout+grace: Suspect -> Reaped
	worker.sweep(start.Add(41 * time.Second))
	req.Equal([]domain.ConnectionID{"a"}, reaper.reaped)
}
