package main

import "time"

type Config struct {
	Host              string        `env:"HOST,default=localhost"`
	Port              int           `env:"PORT,default=8080"`
	LogLevel          string        `env:"LOG_LEVEL,default=info"`
	MaxConnections    int           `env:"MAX_CONNECTIONS,default=1024"`
	MailboxCapacity   int           `env:"MAILBOX_CAPACITY,default=64"`
	HistoryCapacity   int           `env:"HISTORY_CAPACITY,default=50"`
	HistoryReplay     int           `env:"HISTORY_REPLAY,default=-1"`
	OverflowPolicy    string        `env:"OVERFLOW_POLICY,default=drop-oldest"`
	HeartbeatTimeout  time.Duration `env:"HEARTBEAT_TIMEOUT,default=30s"`
	GracePeriod       time.Duration `env:"GRACE_PERIOD,default=10s"`
	SweepInterval     time.Duration `env:"SWEEP_INTERVAL,default=5s"`
	TelemetryInterval time.Duration `env:"TELEMETRY_INTERVAL,default=15s"`
	RestartInterval   time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	AllowAllOrigins   bool          `env:"ALLOW_ALL_ORIGINS,default=false"`
}
