//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"roomcast/domain"
	"roomcast/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

type IRegistry interface {
	Register(identity domain.Identity) (domain.ConnectionID, error)
	Unregister(id domain.ConnectionID) bool
	Lookup(id domain.ConnectionID) (domain.Connection, bool)
	FindByIdentity(identity domain.Identity) []domain.ConnectionID
	Touch(id domain.ConnectionID) bool
}

type IDirectory interface {
	Join(id domain.ConnectionID, room string) error
	Leave(id domain.ConnectionID, room string) bool
	LeaveAll(id domain.ConnectionID) []string
	Members(room string) []domain.ConnectionID
	Rooms(id domain.ConnectionID) []string
}

type IDispatcher interface {
	SendDirect(id domain.ConnectionID, msg domain.Message) domain.DeliveryStatus
	Broadcast(room string, msg domain.Message, exclude domain.ConnectionID) map[domain.ConnectionID]domain.DeliveryStatus
}

// IBroker is the surface a session gateway drives. The gateway owns the
// transport; the broker owns everything behind it.
type IBroker interface {
	OnConnect(identity domain.Identity) (domain.ConnectionID, error)
	OnFrame(id domain.ConnectionID, evt event.ParsedEvent) error
	OnDisconnect(id domain.ConnectionID)
	Subscribe(id domain.ConnectionID) (<-chan domain.Message, error)
}
