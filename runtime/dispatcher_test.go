package runtime

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"roomcast/domain"
	"roomcast/observability"
)

func newTestDispatcher(t *testing.T, mailboxCapacity int, policy OverflowPolicy) (*Registry, *Directory, *Dispatcher) {
	t.Helper()
	registry := NewRegistry(0, mailboxCapacity)
	directory := NewDirectory(registry, 10)
	dispatcher := NewDispatcher(slog.Default(), registry, directory, policy, observability.NewBrokerStats())
	return registry, directory, dispatcher
}

func drain(box *mailbox) []domain.Message {
	var out []domain.Message
	for {
		select {
		case msg := <-box.C():
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestDispatcher_SendDirectDelivers(t *testing.T) {
	req := require.New(t)
	registry, _, dispatcher := newTestDispatcher(t, 8, DropOldest)
	id, _ := registry.Register("alice")

	msg := dispatcher.NextMessage(domain.KindDirect, "", "", id, []byte("hi"))
	req.Equal(domain.Delivered, dispatcher.SendDirect(id, msg))

	box, _ := registry.mailboxFor(id)
	delivered := drain(box)
	req.Len(delivered, 1)
	req.Equal([]byte("hi"), delivered[0].Payload)
	req.NotZero(delivered[0].Seq)
}

func TestDispatcher_SendDirectToUnknownIsUnreachable(t *testing.T) {
	req := require.New(t)
	_, _, dispatcher := newTestDispatcher(t, 8, DropOldest)

	msg := dispatcher.NextMessage(domain.KindDirect, "", "", "ghost", []byte("hi"))

	req.Equal(domain.Unreachable, dispatcher.SendDirect("ghost", msg))
}

func TestDispatcher_BroadcastExcludesSenderAndDeliversOnce(t *testing.T) {
	req := require.New(t)
	registry, directory, dispatcher := newTestDispatcher(t, 8, DropOldest)

	// Given A, B and C in room "general"
	a, _ := registry.Register("a")
	b, _ := registry.Register("b")
	c, _ := registry.Register("c")
	for _, id := range []domain.ConnectionID{a, b, c} {
		req.NoError(directory.Join(id, "general"))
	}

	// When A broadcasts excluding itself
	msg := dispatcher.NextMessage(domain.KindBroadcast, a, "general", "", []byte("hi"))
	statuses := dispatcher.Broadcast("general", msg, a)

	// Then B and C each receive exactly one message and A none
	req.Len(statuses, 2)
	req.Equal(domain.Delivered, statuses[b])
	req.Equal(domain.Delivered, statuses[c])

	boxA, _ := registry.mailboxFor(a)
	boxB, _ := registry.mailboxFor(b)
	boxC, _ := registry.mailboxFor(c)
	req.Empty(drain(boxA))
	req.Len(drain(boxB), 1)
	req.Len(drain(boxC), 1)
}

func TestDispatcher_BroadcastIsolatesBackpressuredRecipient(t *testing.T) {
	req := require.New(t)
	registry, directory, dispatcher := newTestDispatcher(t, 1, DisconnectOnOverflow)

	slow, _ := registry.Register("slow")
	fast, _ := registry.Register("fast")
	req.NoError(directory.Join(slow, "general"))
	req.NoError(directory.Join(fast, "general"))

	// Given the slow member's mailbox is already full
	filler := dispatcher.NextMessage(domain.KindDirect, "", "", slow, []byte("filler"))
	req.Equal(domain.Delivered, dispatcher.SendDirect(slow, filler))

	// When a broadcast hits the room
	msg := dispatcher.NextMessage(domain.KindBroadcast, "", "general", "", []byte("news"))
	statuses := dispatcher.Broadcast("general", msg, "")

	// Then only the slow member is backpressured, the fast one still gets it
	req.Equal(domain.Backpressured, statuses[slow])
	req.Equal(domain.Delivered, statuses[fast])

	// And the slow member is queued for forced disconnect
	select {
	case victim := <-dispatcher.ForcedDisconnects():
		req.Equal(slow, victim)
	default:
		req.Fail("expected a forced-disconnect victim")
	}
}

func TestDispatcher_NonOverlappingBroadcastsKeepOrder(t *testing.T) {
	req := require.New(t)
	registry, directory, dispatcher := newTestDispatcher(t, 8, DropOldest)

	b, _ := registry.Register("b")
	c, _ := registry.Register("c")
	req.NoError(directory.Join(b, "general"))
	req.NoError(directory.Join(c, "general"))

	// When m1 is fully dispatched before m2 is submitted
	m1 := dispatcher.NextMessage(domain.KindBroadcast, "", "general", "", []byte("m1"))
	dispatcher.Broadcast("general", m1, "")
	m2 := dispatcher.NextMessage(domain.KindBroadcast, "", "general", "", []byte("m2"))
	dispatcher.Broadcast("general", m2, "")

	// Then every recipient of both sees m1 before m2
	for _, id := range []domain.ConnectionID{b, c} {
		box, _ := registry.mailboxFor(id)
		delivered := drain(box)
		req.Len(delivered, 2)
		req.Equal([]byte("m1"), delivered[0].Payload)
		req.Equal([]byte("m2"), delivered[1].Payload)
		req.Less(delivered[0].Seq, delivered[1].Seq)
	}
}

func TestDispatcher_DropOldestKeepsNewestUnderLoad(t *testing.T) {
	req := require.New(t)
	registry, _, dispatcher := newTestDispatcher(t, 2, DropOldest)
	id, _ := registry.Register("alice")

	for i := 0; i < 4; i++ {
		msg := dispatcher.NextMessage(domain.KindDirect, "", "", id, []byte{byte('a' + i)})
		req.Equal(domain.Delivered, dispatcher.SendDirect(id, msg))
	}

	box, _ := registry.mailboxFor(id)
	delivered := drain(box)
	req.Len(delivered, 2)
	req.Equal([]byte("c"), delivered[0].Payload)
	req.Equal([]byte("d"), delivered[1].Payload)
}

func TestDispatcher_BroadcastDuringLeaveAllIsAtomic(t *testing.T) {
	req := require.New(t)
	registry, directory, dispatcher := newTestDispatcher(t, 256, DropOldest)

	// Given a stayer and a leaver in the same room
	stayer, _ := registry.Register("stayer")
	leaver, _ := registry.Register("leaver")
	req.NoError(directory.Join(stayer, "general"))
	req.NoError(directory.Join(leaver, "general"))

	// When broadcasts race the leaver's departure
	const total = 100
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < total; i++ {
			msg := dispatcher.NextMessage(domain.KindBroadcast, stayer, "general", "", []byte("x"))
			dispatcher.Broadcast("general", msg, "")
		}
	}()
	directory.LeaveAll(leaver)
	<-done

	// Then the stayer saw every broadcast in order
	stayerBox, ok := registry.mailboxFor(stayer)
	req.True(ok)
	got := drain(stayerBox)
	req.Len(got, total)

	// And the leaver saw a prefix: each broadcast snapshot either fully
	// includes or fully excludes it, and once excluded it stays excluded
	leaverBox, ok := registry.mailboxFor(leaver)
	req.True(ok)
	left := drain(leaverBox)
	req.LessOrEqual(len(left), total)
	for i, msg := range left {
		req.Equal(got[i].Seq, msg.Seq)
	}
}
