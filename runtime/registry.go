package runtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"roomcast/domain"
	"roomcast/errors"
)

type Set map[domain.ConnectionID]struct{}

type connRecord struct {
	conn    domain.Connection
	mailbox *mailbox
}

// Registry tracks every live logical connection together with its mailbox.
// It is the single owner of connection lifetime: a connection exists iff
// its id is present here. All methods are safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	conns      map[domain.ConnectionID]*connRecord
	byIdentity map[domain.Identity]Set

	maxConnections  int
	mailboxCapacity int
	now             func() time.Time
}

func NewRegistry(maxConnections, mailboxCapacity int) *Registry {
	return &Registry{
		conns:           make(map[domain.ConnectionID]*connRecord),
		byIdentity:      make(map[domain.Identity]Set),
		maxConnections:  maxConnections,
		mailboxCapacity: mailboxCapacity,
		now:             time.Now,
	}
}

// Register creates a new Active connection and its mailbox.
// Fails with ErrCapacityExceeded once the configured ceiling is reached;
// a ceiling of zero or below means unlimited.
func (r *Registry) Register(identity domain.Identity) (domain.ConnectionID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxConnections > 0 && len(r.conns) >= r.maxConnections {
		return "", errors.ErrCapacityExceeded
	}

	id := domain.ConnectionID(uuid.NewString())
	r.conns[id] = &connRecord{
		conn: domain.Connection{
			ID:           id,
			Identity:     identity,
			State:        domain.StateActive,
			LastActivity: r.now().UTC(),
		},
		mailbox: newMailbox(r.mailboxCapacity),
	}

	if identity != "" {
		if _, ok := r.byIdentity[identity]; !ok {
			r.byIdentity[identity] = make(Set)
		}
		r.byIdentity[identity][id] = struct{}{}
	}
	return id, nil
}

// Unregister removes the record and closes its mailbox. Idempotent: the
// second call is a no-op and returns false. Room cleanup is cascaded by
// the broker, which owns the ordering between registry and directory.
func (r *Registry) Unregister(id domain.ConnectionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.conns[id]
	if !ok {
		return false
	}
	delete(r.conns, id)

	if identity := record.conn.Identity; identity != "" {
		if ids, ok := r.byIdentity[identity]; ok {
			delete(ids, id)
			if len(ids) == 0 {
				delete(r.byIdentity, identity)
			}
		}
	}

	record.mailbox.Close()
	return true
}

func (r *Registry) Lookup(id domain.ConnectionID) (domain.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.conns[id]
	if !ok {
		return domain.Connection{}, false
	}
	return record.conn, true
}

// FindByIdentity resolves every live connection of one identity, so a user
// on two devices receives a direct message on both.
func (r *Registry) FindByIdentity(identity domain.Identity) []domain.ConnectionID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids, ok := r.byIdentity[identity]
	if !ok {
		return nil
	}
	return lo.Keys(ids)
}

// Touch records inbound activity: the connection returns to Active and its
// last-activity timestamp is refreshed.
func (r *Registry) Touch(id domain.ConnectionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.conns[id]
	if !ok {
		return false
	}
	record.conn.State = domain.StateActive
	record.conn.LastActivity = r.now().UTC()
	return true
}

// MarkSuspect flips an Active connection to Suspect. Used only by the
// presence sweep; returns false if the connection is gone or already
// Suspect.
func (r *Registry) MarkSuspect(id domain.ConnectionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.conns[id]
	if !ok || record.conn.State != domain.StateActive {
		return false
	}
	record.conn.State = domain.StateSuspect
	return true
}

// Snapshot copies every connection record for lock-free iteration by the
// presence sweep and telemetry.
func (r *Registry) Snapshot() []domain.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.Map(lo.Values(r.conns), func(record *connRecord, _ int) domain.Connection {
		return record.conn
	})
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *Registry) mailboxFor(id domain.ConnectionID) (*mailbox, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	return record.mailbox, true
}
