// Package observability aggregates broker telemetry for logging and the
// tester/debug surfaces. Counters are atomic so the hot delivery path never
// takes a lock to record an outcome.
package observability

import (
	"sync"
	"sync/atomic"
	"time"
)

// StatsSnapshot is a point-in-time copy of all counters and gauges.
type StatsSnapshot struct {
	Registered         uint64 `json:"registered"`
	Unregistered       uint64 `json:"unregistered"`
	Reaped             uint64 `json:"reaped"`
	Delivered          uint64 `json:"delivered"`
	Dropped            uint64 `json:"dropped"`
	Broadcasts         uint64 `json:"broadcasts"`
	ProtocolViolations uint64 `json:"protocol_violations"`
	ChannelDepths      map[string]ChannelDepth
	At                 time.Time
}

type ChannelDepth struct {
	Length   int
	Capacity int
}

// BrokerStats collects delivery and lifecycle counters.
type BrokerStats struct {
	registered         atomic.Uint64
	unregistered       atomic.Uint64
	reaped             atomic.Uint64
	delivered          atomic.Uint64
	dropped            atomic.Uint64
	broadcasts         atomic.Uint64
	protocolViolations atomic.Uint64

	mu     sync.RWMutex
	depths map[string]ChannelDepth
}

func NewBrokerStats() *BrokerStats {
	return &BrokerStats{depths: make(map[string]ChannelDepth)}
}

func (s *BrokerStats) IncrRegistered()         { s.registered.Add(1) }
func (s *BrokerStats) IncrUnregistered()       { s.unregistered.Add(1) }
func (s *BrokerStats) IncrReaped()             { s.reaped.Add(1) }
func (s *BrokerStats) IncrDelivered()          { s.delivered.Add(1) }
func (s *BrokerStats) IncrDropped()            { s.dropped.Add(1) }
func (s *BrokerStats) IncrBroadcasts()         { s.broadcasts.Add(1) }
func (s *BrokerStats) IncrProtocolViolations() { s.protocolViolations.Add(1) }

// RecordChannelDepth stores the sampled length and capacity of a named
// internal channel. Sampling is periodic, losing one sample is fine.
func (s *BrokerStats) RecordChannelDepth(name string, length, capacity int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.depths[name] = ChannelDepth{Length: length, Capacity: capacity}
}

func (s *BrokerStats) Snapshot() StatsSnapshot {
	s.mu.RLock()
	depths := make(map[string]ChannelDepth, len(s.depths))
	for name, d := range s.depths {
		depths[name] = d
	}
	s.mu.RUnlock()

	return StatsSnapshot{
		Registered:         s.registered.Load(),
		Unregistered:       s.unregistered.Load(),
		Reaped:             s.reaped.Load(),
		Delivered:          s.delivered.Load(),
		Dropped:            s.dropped.Load(),
		Broadcasts:         s.broadcasts.Load(),
		ProtocolViolations: s.protocolViolations.Load(),
		ChannelDepths:      depths,
		At:                 time.Now().UTC(),
	}
}
