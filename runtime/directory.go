package runtime

import (
	"hash/fnv"
	"sync"

	"github.com/samber/lo"

	"roomcast/domain"
	"roomcast/errors"
)

const directoryShards = 16

type roomState struct {
	members Set
	history *history
}

type dirShard struct {
	mu    sync.RWMutex
	rooms map[string]*roomState
}

// Directory maps room names to member sets and owns each room's history
// buffer. Rooms are sharded by name hash so one busy room's churn never
// contends with unrelated rooms; the reverse index (connection -> room
// names) sits behind its own lock.
//
// Lock ordering: connMu before any shard mutex, never the other way.
type Directory struct {
	shards [directoryShards]*dirShard

	connMu    sync.RWMutex
	connRooms map[domain.ConnectionID]map[string]struct{}

	registry        *Registry
	historyCapacity int
}

func NewDirectory(registry *Registry, historyCapacity int) *Directory {
	d := &Directory{
		connRooms:       make(map[domain.ConnectionID]map[string]struct{}),
		registry:        registry,
		historyCapacity: historyCapacity,
	}
	for i := range d.shards {
		d.shards[i] = &dirShard{rooms: make(map[string]*roomState)}
	}
	return d
}

func (d *Directory) shardFor(room string) *dirShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(room))
	return d.shards[h.Sum32()%directoryShards]
}

// Join adds the connection to the room, creating the room on first join.
// Idempotent; fails with ErrUnknownConnection for an unregistered id.
func (d *Directory) Join(id domain.ConnectionID, room string) error {
	if _, ok := d.registry.Lookup(id); !ok {
		return errors.ErrUnknownConnection
	}

	d.connMu.Lock()
	if _, ok := d.connRooms[id]; !ok {
		d.connRooms[id] = make(map[string]struct{})
	}
	d.connRooms[id][room] = struct{}{}
	d.connMu.Unlock()

	shard := d.shardFor(room)
	shard.mu.Lock()
	state, ok := shard.rooms[room]
	if !ok {
		state = &roomState{
			members: make(Set),
			history: newHistory(d.historyCapacity),
		}
		shard.rooms[room] = state
	}
	state.members[id] = struct{}{}
	shard.mu.Unlock()

	// A teardown can slip in between the registration check above and the
	// inserts. Teardown unregisters before it sweeps rooms, so re-checking
	// here guarantees one side sees the other: either the sweep finds this
	// membership, or this rollback removes it.
	if _, ok := d.registry.Lookup(id); !ok {
		d.Leave(id, room)
		return errors.ErrUnknownConnection
	}
	return nil
}

// Leave is the inverse of Join. An empty member set deletes the room,
// history buffer included. Leaving a room you are not in is a no-op.
func (d *Directory) Leave(id domain.ConnectionID, room string) bool {
	d.connMu.Lock()
	if rooms, ok := d.connRooms[id]; ok {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(d.connRooms, id)
		}
	}
	d.connMu.Unlock()

	return d.removeMember(id, room)
}

// LeaveAll removes the connection from every room it belongs to and
// returns those room names. Each room's removal happens under that room's
// shard lock, so any concurrent broadcast snapshot either fully includes
// or fully excludes the departing connection.
func (d *Directory) LeaveAll(id domain.ConnectionID) []string {
	d.connMu.Lock()
	rooms := lo.Keys(d.connRooms[id])
	delete(d.connRooms, id)
	d.connMu.Unlock()

	for _, room := range rooms {
		d.removeMember(id, room)
	}
	return rooms
}

func (d *Directory) removeMember(id domain.ConnectionID, room string) bool {
	shard := d.shardFor(room)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	state, ok := shard.rooms[room]
	if !ok {
		return false
	}
	if _, member := state.members[id]; !member {
		return false
	}
	delete(state.members, id)
	if len(state.members) == 0 {
		delete(shard.rooms, room)
	}
	return true
}

// Members snapshots the member set. A missing room yields an empty result,
// not an error.
func (d *Directory) Members(room string) []domain.ConnectionID {
	shard := d.shardFor(room)
	shard.mu.RLock()
	defer shard.mu.RUnlock()

	state, ok := shard.rooms[room]
	if !ok {
		return nil
	}
	return lo.Keys(state.members)
}

func (d *Directory) Rooms(id domain.ConnectionID) []string {
	d.connMu.RLock()
	defer d.connMu.RUnlock()
	return lo.Keys(d.connRooms[id])
}

// AppendHistory records a message in the room's buffer. Messages for a
// room that does not exist (no members) are not recorded: the buffer dies
// with the room.
func (d *Directory) AppendHistory(room string, msg domain.Message) {
	shard := d.shardFor(room)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	if state, ok := shard.rooms[room]; ok {
		state.history.Append(msg)
	}
}

// History copies up to maxCount recent messages, oldest first, as of call
// time. Used to replay history to a late joiner; negative maxCount means
// the whole buffer.
func (d *Directory) History(room string, maxCount int) []domain.Message {
	shard := d.shardFor(room)
	shard.mu.RLock()
	defer shard.mu.RUnlock()

	state, ok := shard.rooms[room]
	if !ok {
		return nil
	}
	return state.history.Snapshot(maxCount)
}

func (d *Directory) RoomCount() int {
	count := 0
	for _, shard := range d.shards {
		shard.mu.RLock()
		count += len(shard.rooms)
		shard.mu.RUnlock()
	}
	return count
}
