package observability

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBrokerStats_SnapshotReflectsCounters(t *testing.T) {
	req := require.New(t)

	// Given a stats collector with a few recorded outcomes
	stats := NewBrokerStats()
	stats.IncrRegistered()
	stats.IncrRegistered()
	stats.IncrDelivered()
	stats.IncrDropped()
	stats.IncrProtocolViolations()
	stats.RecordChannelDepth("forced_disconnects", 3, 128)

	// When taking a snapshot
	snapshot := stats.Snapshot()

	// Then every counter and gauge is reported
	req.Equal(uint64(2), snapshot.Registered)
	req.Equal(uint64(1), snapshot.Delivered)
	req.Equal(uint64(1), snapshot.Dropped)
	req.Equal(uint64(1), snapshot.ProtocolViolations)
	req.Equal(ChannelDepth{Length: 3, Capacity: 128}, snapshot.ChannelDepths["forced_disconnects"])
	req.False(snapshot.At.IsZero())
}

func TestBrokerStats_SnapshotCopiesDepths(t *testing.T) {
	req := require.New(t)

	// Given a snapshot taken before a new sample lands
	stats := NewBrokerStats()
	stats.RecordChannelDepth("forced_disconnects", 1, 128)
	snapshot := stats.Snapshot()

	// When the gauge is updated afterwards
	stats.RecordChannelDepth("forced_disconnects", 7, 128)

	// Then the earlier snapshot is unaffected
	req.Equal(1, snapshot.ChannelDepths["forced_disconnects"].Length)
}

func TestBrokerStats_ConcurrentIncrements(t *testing.T) {
	req := require.New(t)

	// Given many goroutines recording deliveries at once
	stats := NewBrokerStats()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				stats.IncrDelivered()
			}
		}()
	}
	wg.Wait()

	// Then no increment is lost
	req.Equal(uint64(5000), stats.Snapshot().Delivered)
}
