package runtime

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"roomcast/domain"
	"roomcast/observability"
)

// Dispatcher performs point-to-point and fan-out delivery into per
// connection mailboxes. It holds no lock while delivering: Broadcast works
// on a membership snapshot, so a busy room never blocks membership
// changes, and per-recipient failures are isolated.
type Dispatcher struct {
	log       *slog.Logger
	registry  *Registry
	directory *Directory
	policy    OverflowPolicy
	stats     *observability.BrokerStats

	seq atomic.Uint64

	// Connections that overflowed under DisconnectOnOverflow; drained by
	// the broker's overflow worker. Best-effort: a send here never blocks
	// the delivery path.
	forcedDisconnects chan domain.ConnectionID
}

func NewDispatcher(log *slog.Logger, registry *Registry, directory *Directory,
	policy OverflowPolicy, stats *observability.BrokerStats) *Dispatcher {
	return &Dispatcher{
		log:               log,
		registry:          registry,
		directory:         directory,
		policy:            policy,
		stats:             stats,
		forcedDisconnects: make(chan domain.ConnectionID, 128),
	}
}

// NextMessage stamps a fresh envelope: uuid identity, global monotonic
// sequence, utc timestamp. Everything the dispatcher delivers goes through
// here so ordering assertions have a total order to refer to.
func (d *Dispatcher) NextMessage(kind domain.MessageKind, sender domain.ConnectionID,
	room string, target domain.ConnectionID, payload []byte) domain.Message {
	return domain.Message{
		ID:        uuid.New(),
		Seq:       d.seq.Add(1),
		Kind:      kind,
		Sender:    sender,
		Room:      room,
		Target:    target,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
}

// SendDirect enqueues the message onto the target's mailbox. It never
// blocks: a full mailbox resolves immediately through the configured
// overflow policy.
func (d *Dispatcher) SendDirect(id domain.ConnectionID, msg domain.Message) domain.DeliveryStatus {
	box, ok := d.registry.mailboxFor(id)
	if !ok {
		return domain.Unreachable
	}

	switch box.Push(msg, d.policy) {
	case pushAccepted:
		d.stats.IncrDelivered()
		return domain.Delivered
	case pushDroppedOldest:
		d.stats.IncrDelivered()
		d.stats.IncrDropped()
		d.log.Debug("Mailbox full, dropped oldest message", "connection", id)
		return domain.Delivered
	case pushClosed:
		return domain.Unreachable
	default:
		d.stats.IncrDropped()
		if d.policy == DisconnectOnOverflow {
			d.markForDisconnect(id)
		}
		return domain.Backpressured
	}
}

// Broadcast resolves the room's current membership, removes the excluded
// connection if any, then delivers to each remaining member. One
// recipient's failure never aborts delivery to the others; the caller gets
// a per-recipient status map, not a single pass/fail.
func (d *Dispatcher) Broadcast(room string, msg domain.Message,
	exclude domain.ConnectionID) map[domain.ConnectionID]domain.DeliveryStatus {
	d.stats.IncrBroadcasts()

	members := d.directory.Members(room)
	statuses := make(map[domain.ConnectionID]domain.DeliveryStatus, len(members))
	for _, id := range members {
		if id == exclude {
			continue
		}
		statuses[id] = d.SendDirect(id, msg)
	}
	return statuses
}

func (d *Dispatcher) markForDisconnect(id domain.ConnectionID) {
	select {
	case d.forcedDisconnects <- id:
	default:
		d.log.Warn("Forced-disconnect queue full, overflow notice lost", "connection", id)
	}
}

// ForcedDisconnects exposes the overflow victims to the broker worker that
// actually tears them down.
func (d *Dispatcher) ForcedDisconnects() <-chan domain.ConnectionID {
	return d.forcedDisconnects
}

func (d *Dispatcher) Policy() OverflowPolicy {
	return d.policy
}
