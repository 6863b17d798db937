package runtime

import (
	"testing"

	"github.com/stretchr/testify/require"

	"roomcast/domain"
	"roomcast/errors"
)

func newTestDirectory(t *testing.T) (*Registry, *Directory, domain.ConnectionID) {
	t.Helper()
	registry := NewRegistry(0, 8)
	directory := NewDirectory(registry, 3)
	id, err := registry.Register("alice")
	require.NoError(t, err)
	return registry, directory, id
}

func TestDirectory_JoinCreatesRoom(t *testing.T) {
	req := require.New(t)
	_, directory, id := newTestDirectory(t)

	// When a connection joins a room that does not exist yet
	req.NoError(directory.Join(id, "general"))

	// Then membership is consistent in both directions
	req.Equal([]domain.ConnectionID{id}, directory.Members("general"))
	req.Equal([]string{"general"}, directory.Rooms(id))
	req.Equal(1, directory.RoomCount())
}

func TestDirectory_JoinIsIdempotent(t *testing.T) {
	req := require.New(t)
	_, directory, id := newTestDirectory(t)

	req.NoError(directory.Join(id, "general"))
	req.NoError(directory.Join(id, "general"))

	req.Len(directory.Members("general"), 1)
	req.Len(directory.Rooms(id), 1)
}

func TestDirectory_JoinRejectsUnknownConnection(t *testing.T) {
	req := require.New(t)
	_, directory, _ := newTestDirectory(t)

	err := directory.Join("no-such-connection", "general")

	req.ErrorIs(err, errors.ErrUnknownConnection)
	req.Empty(directory.Members("general"))
}

func TestDirectory_LeaveDeletesEmptyRoom(t *testing.T) {
	req := require.New(t)
	registry, directory, id := newTestDirectory(t)
	other, _ := registry.Register("bob")

	req.NoError(directory.Join(id, "general"))
	req.NoError(directory.Join(other, "general"))

	// When one member leaves, the room survives
	req.True(directory.Leave(id, "general"))
	req.Equal([]domain.ConnectionID{other}, directory.Members("general"))

	// When the last member leaves, the room is deleted entirely
	req.True(directory.Leave(other, "general"))
	req.Empty(directory.Members("general"))
	req.Equal(0, directory.RoomCount())

	// And the history buffer died with it
	req.Empty(directory.History("general", -1))
}

func TestDirectory_LeaveUnknownRoomIsSoft(t *testing.T) {
	req := require.New(t)
	_, directory, id := newTestDirectory(t)

	// Leaving a room that never existed is not an error
	req.False(directory.Leave(id, "nowhere"))
	req.Empty(directory.Members("nowhere"))
}

func TestDirectory_LeaveAllClearsEveryRoom(t *testing.T) {
	req := require.New(t)
	registry, directory, id := newTestDirectory(t)
	other, _ := registry.Register("bob")

	req.NoError(directory.Join(id, "general"))
	req.NoError(directory.Join(id, "random"))
	req.NoError(directory.Join(other, "general"))

	// When the connection leaves everything
	rooms := directory.LeaveAll(id)

	// Then both rooms are reported and membership is consistent again
	req.ElementsMatch([]string{"general", "random"}, rooms)
	req.Empty(directory.Rooms(id))
	req.Equal([]domain.ConnectionID{other}, directory.Members("general"))
	req.Empty(directory.Members("random"))

	// And a second LeaveAll is a no-op
	req.Empty(directory.LeaveAll(id))
}

func TestDirectory_HistoryIsBoundedPerRoom(t *testing.T) {
	req := require.New(t)
	_, directory, id := newTestDirectory(t)
	req.NoError(directory.Join(id, "general"))

	// Given more appends than the capacity of 3
	for seq := uint64(1); seq <= 4; seq++ {
		directory.AppendHistory("general", historyMessage(seq))
	}

	// Then only the most recent three remain, oldest first
	history := directory.History("general", 10)
	req.Len(history, 3)
	req.Equal(uint64(2), history[0].Seq)
	req.Equal(uint64(4), history[2].Seq)
}

func TestDirectory_HistoryForMissingRoomIsEmpty(t *testing.T) {
	req := require.New(t)
	_, directory, _ := newTestDirectory(t)

	// Appending to a room with no members is silently dropped
	directory.AppendHistory("ghost", historyMessage(1))

	req.Empty(directory.History("ghost", -1))
}
