package errors

import "fmt"

var (
	ErrWorkerPanic       = fmt.Errorf("worker panic")
	ErrUnknownConnection = fmt.Errorf("unknown connection")
	ErrCapacityExceeded  = fmt.Errorf("connection capacity exceeded")
	ErrProtocolViolation = fmt.Errorf("protocol violation")
	ErrMailboxClosed     = fmt.Errorf("mailbox closed")
	ErrUnknownPolicy     = fmt.Errorf("unknown overflow policy")
)
