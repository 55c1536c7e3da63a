package proxy

import (
	"errors"
	"time"

	"github.com/channelize/channelize-go/pkg/wire"
)

// Argument errors.
var (
	ErrNoSystemIDs  = errors.New("at least one system id is required")
	ErrNoTaskIDs    = errors.New("at least one task id is required")
	ErrBlankID      = errors.New("ids must not be blank")
	ErrNoSystemID   = errors.New("system id is required")
	ErrUnexpectedID = errors.New("domain takes no ids")
	ErrUnknownName  = errors.New("unknown domain")
)

// Confirmation is the reply of single-reply domains.
type Confirmation struct {
	wire.Header
}

// SystemConfirmation confirms the events subscription of one system.
type SystemConfirmation struct {
	wire.Header
	SystemID string `json:"SystemId" cbor:"SystemId"`
}

// TaskConfirmation confirms the subscription of one operator task.
type TaskConfirmation struct {
	wire.Header
	TaskID string `json:"TaskId" cbor:"TaskId"`
}

// Change is a change notification. EntityID names the changed entity; the
// rest of the payload is domain-owned and not decoded here.
type Change struct {
	wire.Header
	EntityID   string    `json:"EntityId" cbor:"EntityId"`
	ChangeType string    `json:"ChangeType,omitempty" cbor:"ChangeType,omitempty"`
	Timestamp  time.Time `json:"Timestamp,omitempty" cbor:"Timestamp,omitempty"`
}

// EventMessage is any frame on the events hub event. It is either a
// SystemConfirmation or a Change.
type EventMessage interface {
	eventMessage()
}

func (SystemConfirmation) eventMessage() {}
func (Change) eventMessage()             {}

// EventsArgs selects the systems whose events to receive.
type EventsArgs struct {
	SystemIDs []string
}

// CommandsArgs selects the system whose command states to receive.
type CommandsArgs struct {
	SystemID string
}

// SystemsArgs has no parameters.
type SystemsArgs struct{}

// SessionsArgs optionally narrows session notifications to one user.
type SessionsArgs struct {
	UserID string
}

// LicensesArgs has no parameters.
type LicensesArgs struct{}

// OperatorTasksArgs selects operator tasks.
type OperatorTasksArgs struct {
	TaskIDs []string
}

// UserRolesArgs has no parameters.
type UserRolesArgs struct{}

func checkIDs(ids []string, none error) error {
	if len(ids) == 0 {
		return none
	}
	for _, id := range ids {
		if id == "" {
			return ErrBlankID
		}
	}
	return nil
}
