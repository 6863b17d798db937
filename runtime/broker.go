// Package runtime wires the registry, room directory, dispatcher and
// presence machinery into one Broker. It owns coordination only; domain
// rules live in the domain package and transport in the gateway.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"roomcast/contract"
	"roomcast/domain"
	"roomcast/domain/event"
	"roomcast/errors"
	"roomcast/observability"
	"roomcast/runtime/workers"
)

// Options carries every tunable of the core. Zero values fall back to the
// defaults below; the overflow policy always comes from configuration.
type Options struct {
	MaxConnections    int
	MailboxCapacity   int
	HistoryCapacity   int
	HistoryReplay     int
	OverflowPolicy    OverflowPolicy
	HeartbeatTimeout  time.Duration
	GracePeriod       time.Duration
	SweepInterval     time.Duration
	TelemetryInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.MailboxCapacity <= 0 {
		o.MailboxCapacity = 64
	}
	if o.HistoryCapacity < 0 {
		o.HistoryCapacity = 0
	}
	if o.HistoryReplay == 0 {
		o.HistoryReplay = -1
	}
	if o.HeartbeatTimeout <= 0 {
		o.HeartbeatTimeout = 30 * time.Second
	}
	if o.GracePeriod <= 0 {
		o.GracePeriod = 10 * time.Second
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = 5 * time.Second
	}
	if o.TelemetryInterval <= 0 {
		o.TelemetryInterval = 15 * time.Second
	}
	return o
}

// Broker is the single owned instance encapsulating all shared broker
// state. It is handed explicitly to the session gateway and to the
// supervised workers; there are no package-level singletons.
type Broker struct {
	log        *slog.Logger
	opts       Options
	registry   *Registry
	directory  *Directory
	dispatcher *Dispatcher
	stats      *observability.BrokerStats
	supervisor contract.ISupervisor
}

var _ contract.IBroker = (*Broker)(nil)
var _ workers.Reaper = (*Broker)(nil)

func NewBroker(log *slog.Logger, supervisor contract.ISupervisor,
	stats *observability.BrokerStats, opts Options) *Broker {
	opts = opts.withDefaults()

	registry := NewRegistry(opts.MaxConnections, opts.MailboxCapacity)
	directory := NewDirectory(registry, opts.HistoryCapacity)
	dispatcher := NewDispatcher(log, registry, directory, opts.OverflowPolicy, stats)

	return &Broker{
		log:        log,
		opts:       opts,
		registry:   registry,
		directory:  directory,
		dispatcher: dispatcher,
		stats:      stats,
		supervisor: supervisor,
	}
}

// Start registers the supervised workers (presence sweep, overflow reaper,
// telemetry) and runs them in the background until ctx is canceled.
func (b *Broker) Start(ctx context.Context) {
	b.supervisor.Add(
		workers.NewPresenceWorker(b.log, b.registry, b,
			b.opts.HeartbeatTimeout, b.opts.GracePeriod, b.opts.SweepInterval),
		workers.NewOverflowWorker(b.log, b.dispatcher.ForcedDisconnects(), b),
		workers.NewTelemetryWorker(b.log, b.stats, b.opts.TelemetryInterval),
		workers.NewChannelCapacityWorker(b.log, b.stats, b.opts.TelemetryInterval,
			workers.NamedChannel{Name: "forced_disconnects", Channel: b.dispatcher.ForcedDisconnects()}),
	)
	go b.supervisor.Run(ctx)
}

// Stop cancels the supervision context; workers drain and exit.
func (b *Broker) Stop() {
	b.supervisor.Stop()
}

// OnConnect admits a new logical connection for the given identity.
func (b *Broker) OnConnect(identity domain.Identity) (domain.ConnectionID, error) {
	id, err := b.registry.Register(identity)
	if err != nil {
		b.log.Warn("Connection refused", "identity", identity, "error", err)
		return "", err
	}
	b.stats.IncrRegistered()
	b.log.Info("Connection registered", "connection", id, "identity", identity)
	return id, nil
}

// OnFrame applies one parsed gateway event. Any inbound frame counts as
// activity for the presence window, heartbeats included. The event set is
// closed; the switch below is exhaustive.
func (b *Broker) OnFrame(id domain.ConnectionID, evt event.ParsedEvent) error {
	if !b.registry.Touch(id) {
		return errors.ErrUnknownConnection
	}

	switch e := evt.(type) {
	case event.Join:
		return b.handleJoin(id, e)
	case event.Leave:
		return b.handleLeave(id, e)
	case event.Broadcast:
		return b.handleBroadcast(id, e)
	case event.Direct:
		return b.handleDirect(id, e)
	case event.Heartbeat:
		return nil
	default:
		return b.violation(id, "unsupported event")
	}
}

// OnDisconnect tears the connection down. Idempotent; queued mailbox
// messages are discarded, never delivered.
func (b *Broker) OnDisconnect(id domain.ConnectionID) {
	b.removeConnection(id, "disconnect")
}

// Reap is the forced teardown path used by the presence sweep and the
// overflow worker. Best-effort: it never fails the broker process.
func (b *Broker) Reap(id domain.ConnectionID, reason string) {
	if b.removeConnection(id, reason) {
		b.stats.IncrReaped()
	}
}

// Subscribe hands out the mailbox-drain stream for one connection. The
// channel is closed on teardown and cannot be restarted; a new connection
// gets a new mailbox with no carryover.
func (b *Broker) Subscribe(id domain.ConnectionID) (<-chan domain.Message, error) {
	box, ok := b.registry.mailboxFor(id)
	if !ok {
		return nil, errors.ErrUnknownConnection
	}
	return box.C(), nil
}

// Stats exposes the telemetry counters, mostly for debug surfaces.
func (b *Broker) Stats() observability.StatsSnapshot {
	return b.stats.Snapshot()
}

func (b *Broker) handleJoin(id domain.ConnectionID, e event.Join) error {
	if e.Room == "" {
		return b.violation(id, "join requires a room")
	}
	if err := b.directory.Join(id, e.Room); err != nil {
		return err
	}

	// Replay recent history to the late joiner, then tell the room. A
	// broadcast racing the join can arrive live and again via the replay
	// snapshot; envelopes carry stable ids and sequence numbers so
	// consumers dedupe (projection.Timeline does). Replayed messages keep
	// their original envelopes; notices stay out of the history buffer.
	for _, msg := range b.directory.History(e.Room, b.opts.HistoryReplay) {
		b.dispatcher.SendDirect(id, msg)
	}
	b.notifyRoom(e.Room, fmt.Sprintf("%s joined", id), id)
	b.log.Debug("Joined room", "connection", id, "room", e.Room)
	return nil
}

func (b *Broker) handleLeave(id domain.ConnectionID, e event.Leave) error {
	if e.Room == "" {
		return b.violation(id, "leave requires a room")
	}
	if b.directory.Leave(id, e.Room) {
		b.notifyRoom(e.Room, fmt.Sprintf("%s left", id), id)
		b.log.Debug("Left room", "connection", id, "room", e.Room)
	}
	return nil
}

func (b *Broker) handleBroadcast(id domain.ConnectionID, e event.Broadcast) error {
	if e.Room == "" {
		return b.violation(id, "broadcast requires a room")
	}

	msg := b.dispatcher.NextMessage(domain.KindBroadcast, id, e.Room, "", e.Payload)
	b.directory.AppendHistory(e.Room, msg)

	// The sender receives its own broadcast through its mailbox like any
	// other member: one source of truth for ordering and sequence.
	statuses := b.dispatcher.Broadcast(e.Room, msg, "")
	for member, status := range statuses {
		if status != domain.Delivered {
			b.log.Debug("Broadcast recipient not delivered",
				"room", e.Room, "connection", member, "status", status.String())
		}
	}
	return nil
}

func (b *Broker) handleDirect(id domain.ConnectionID, e event.Direct) error {
	if e.Target == "" {
		return b.violation(id, "direct requires a target")
	}

	msg := b.dispatcher.NextMessage(domain.KindDirect, id, "", e.Target, e.Payload)
	status := b.dispatcher.SendDirect(e.Target, msg)
	if status != domain.Delivered {
		// Tell the sender instead of failing the frame: per-recipient
		// delivery trouble is isolated, never a broker-wide failure.
		notice := b.dispatcher.NextMessage(domain.KindSystem, "", "", id,
			[]byte(fmt.Sprintf("direct to %s: %s", e.Target, status.String())))
		b.dispatcher.SendDirect(id, notice)
	}
	return nil
}

// removeConnection leaves every room, unregisters, and notifies the
// departed rooms. Returns false when the connection was already gone.
// Notification is best-effort per room; a failed notice never blocks the
// rest of the teardown.
func (b *Broker) removeConnection(id domain.ConnectionID, reason string) bool {
	// Unregister before sweeping rooms: a concurrent join re-validates
	// registration after inserting its membership, so whichever side loses
	// the race still observes the other and cleans up.
	removed := b.registry.Unregister(id)
	rooms := b.directory.LeaveAll(id)
	if !removed && len(rooms) == 0 {
		return false
	}
	b.stats.IncrUnregistered()

	for _, room := range rooms {
		b.notifyRoom(room, fmt.Sprintf("%s departed (%s)", id, reason), id)
	}
	b.log.Info("Connection removed", "connection", id, "reason", reason, "rooms", len(rooms))
	return true
}

// notifyRoom fans a system notice out to the room, excluding the subject
// connection.
func (b *Broker) notifyRoom(room, text string, exclude domain.ConnectionID) {
	msg := b.dispatcher.NextMessage(domain.KindSystem, "", room, "", []byte(text))
	statuses := b.dispatcher.Broadcast(room, msg, exclude)
	for member, status := range statuses {
		if status != domain.Delivered {
			b.log.Warn("Room notice not delivered",
				"room", room, "connection", member, "status", status.String())
		}
	}
}

func (b *Broker) violation(id domain.ConnectionID, reason string) error {
	b.stats.IncrProtocolViolations()
	notice := b.dispatcher.NextMessage(domain.KindSystem, "", "", id, []byte(reason))
	b.dispatcher.SendDirect(id, notice)
	b.log.Warn("Protocol violation", "connection", id, "reason", reason)
	return fmt.Errorf("%w: %s", errors.ErrProtocolViolation, reason)
}
