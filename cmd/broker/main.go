package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"roomcast/gateway"
	"roomcast/observability"
	"roomcast/runtime"
	"roomcast/runtime/workers"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// This pattern is preferred over calling os.Exit or panic directly because:
// 1. It ensures all 'defer' statements are executed before the program exits.
// 2. It improves testability by decoupling the initialization logic from the main entry point.
// 3. It provides a structured way to handle graceful shutdowns for the HTTP server and background workers.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	policy, err := runtime.ParsePolicy(config.OverflowPolicy)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	// 2. Setup Supervision & Broker
	sup := workers.NewSupervisor(log, config.RestartInterval)
	stats := observability.NewBrokerStats()
	broker := runtime.NewBroker(log, sup, stats, runtime.Options{
		MaxConnections:    config.MaxConnections,
		MailboxCapacity:   config.MailboxCapacity,
		HistoryCapacity:   config.HistoryCapacity,
		HistoryReplay:     config.HistoryReplay,
		OverflowPolicy:    policy,
		HeartbeatTimeout:  config.HeartbeatTimeout,
		GracePeriod:       config.GracePeriod,
		SweepInterval:     config.SweepInterval,
		TelemetryInterval: config.TelemetryInterval,
	})

	// 3. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Start the supervised workers
	broker.Start(ctx)

	// 5. HTTP Server & Session Gateway
	var checkOrigin func(*http.Request) bool
	if config.AllowAllOrigins {
		checkOrigin = func(*http.Request) bool { return true }
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", gateway.NewHandler(log, broker, checkOrigin))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	server := &http.Server{Addr: address, Handler: mux}

	// Use an error channel to capture Serve() issues
	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting broker server", "address", address, "policy", policy.String(), "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 6. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 7. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	broker.Stop()
	log.Info("Program stopped cleanly")

	return nil
}
