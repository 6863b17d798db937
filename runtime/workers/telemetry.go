package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"

	"roomcast/observability"
)

// TelemetryWorker periodically logs the broker counters together with the
// process's own RSS and CPU usage.
type TelemetryWorker struct {
	log      *slog.Logger
	stats    *observability.BrokerStats
	interval time.Duration
	newProc  func(pid int32) (*process.Process, error)
}

func NewTelemetryWorker(log *slog.Logger, stats *observability.BrokerStats,
	interval time.Duration) *TelemetryWorker {
	return &TelemetryWorker{
		log:      log,
		stats:    stats,
		interval: interval,
		newProc:  process.NewProcess,
	}
}

func (w *TelemetryWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := w.newProc(int32(os.Getpid()))
	if err != nil {
		// Self-inspection is platform-dependent; restarting the worker
		// cannot fix it, so log once and stay down.
		w.log.Error("Process telemetry unavailable", "err", err)
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping telemetry")
			return nil
		case <-ticker.C:
			rss, cpu, err := selfStats(p)
			if err != nil {
				w.log.Error("Failed to collect self stats", "err", err)
				continue
			}

			snapshot := w.stats.Snapshot()
			w.log.Info("Broker telemetry",
				"registered", snapshot.Registered,
				"unregistered", snapshot.Unregistered,
				"reaped", snapshot.Reaped,
				"delivered", snapshot.Delivered,
				"dropped", snapshot.Dropped,
				"broadcasts", snapshot.Broadcasts,
				"protocol_violations", snapshot.ProtocolViolations,
				"rss_bytes", rss,
				"cpu_percent", cpu,
			)
		}
	}
}

// selfStats retrieves memory and CPU metrics for the given process.
func selfStats(p *process.Process) (uint64, float64, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, err
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, err
	}
	return memInfo.RSS, cpuPercent, nil
}
