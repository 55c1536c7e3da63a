package proxy

import (
	"net/url"
	"sort"

	"github.com/channelize/channelize-go/pkg/channel"
	"github.com/channelize/channelize-go/pkg/hub"
)

// Hub event names.
const (
	EventEvents        = "events"
	EventCommands      = "commands"
	EventSystems       = "systems"
	EventSessions      = "sessions"
	EventLicenses      = "licenses"
	EventOperatorTasks = "operatorTasks"
	EventUserRoles     = "userRoles"
)

// Confirmation tags.
const (
	TagEvents        = "channelizeEvents"
	TagCommands      = "channelizeCommands"
	TagSystems       = "channelizeSystems"
	TagSessions      = "channelizeSessions"
	TagLicenses      = "channelizeLicenses"
	TagOperatorTasks = "channelizeOperatorTasks"
	TagUserRoles     = "channelizeUserRoles"
)

// Notification tags.
const (
	NotifyEvents        = "notifyEventChanged"
	NotifyCommands      = "notifyCommandState"
	NotifySystems       = "notifySystemChanged"
	NotifySessions      = "notifySessionChanged"
	NotifyLicenses      = "notifyLicenseChanged"
	NotifyOperatorTasks = "notifyOperatorTaskChanged"
	NotifyUserRoles     = "notifyUserRoleChanged"
)

// EventsDomain subscribes to the events of a set of systems. One
// confirmation arrives per system.
func EventsDomain() channel.Domain[EventsArgs, SystemConfirmation] {
	return channel.Domain[EventsArgs, SystemConfirmation]{
		Name:     "events",
		Event:    EventEvents,
		Tag:      TagEvents,
		Validate: func(a EventsArgs) error { return checkIDs(a.SystemIDs, ErrNoSystemIDs) },
		Keys:     func(a EventsArgs) []string { return a.SystemIDs },
		Request: func(a EventsArgs) channel.Request {
			return channel.Request{Body: map[string][]string{"systemIds": a.SystemIDs}}
		},
		Decode: channel.DecodeKeyed(func(c SystemConfirmation) string { return c.SystemID }),
	}
}

// CommandsDomain subscribes to command state changes of one system.
func CommandsDomain() channel.Domain[CommandsArgs, Confirmation] {
	return channel.Domain[CommandsArgs, Confirmation]{
		Name:  "commands",
		Event: EventCommands,
		Tag:   TagCommands,
		Validate: func(a CommandsArgs) error {
			if a.SystemID == "" {
				return ErrNoSystemID
			}
			return nil
		},
		Request: func(a CommandsArgs) channel.Request {
			return channel.Request{Path: []string{a.SystemID}}
		},
		Decode: channel.DecodeSingle[Confirmation](),
	}
}

// SystemsDomain subscribes to system changes.
func SystemsDomain() channel.Domain[SystemsArgs, Confirmation] {
	return channel.Domain[SystemsArgs, Confirmation]{
		Name:   "systems",
		Event:  EventSystems,
		Tag:    TagSystems,
		Decode: channel.DecodeSingle[Confirmation](),
	}
}

// SessionsDomain subscribes to session changes, optionally of one user.
func SessionsDomain() channel.Domain[SessionsArgs, Confirmation] {
	return channel.Domain[SessionsArgs, Confirmation]{
		Name:  "sessions",
		Event: EventSessions,
		Tag:   TagSessions,
		Request: func(a SessionsArgs) channel.Request {
			if a.UserID == "" {
				return channel.Request{}
			}
			return channel.Request{Query: url.Values{"userId": {a.UserID}}}
		},
		Decode: channel.DecodeSingle[Confirmation](),
	}
}

// LicensesDomain subscribes to license changes.
func LicensesDomain() channel.Domain[LicensesArgs, Confirmation] {
	return channel.Domain[LicensesArgs, Confirmation]{
		Name:   "licenses",
		Event:  EventLicenses,
		Tag:    TagLicenses,
		Decode: channel.DecodeSingle[Confirmation](),
	}
}

// OperatorTasksDomain subscribes to a set of operator tasks. One
// confirmation arrives per task.
func OperatorTasksDomain() channel.Domain[OperatorTasksArgs, TaskConfirmation] {
	return channel.Domain[OperatorTasksArgs, TaskConfirmation]{
		Name:     "operator-tasks",
		Event:    EventOperatorTasks,
		Tag:      TagOperatorTasks,
		Validate: func(a OperatorTasksArgs) error { return checkIDs(a.TaskIDs, ErrNoTaskIDs) },
		Keys:     func(a OperatorTasksArgs) []string { return a.TaskIDs },
		Request: func(a OperatorTasksArgs) channel.Request {
			return channel.Request{Body: map[string][]string{"taskIds": a.TaskIDs}}
		},
		Decode: channel.DecodeKeyed(func(c TaskConfirmation) string { return c.TaskID }),
	}
}

// UserRolesDomain subscribes to user role changes.
func UserRolesDomain() channel.Domain[UserRolesArgs, Confirmation] {
	return channel.Domain[UserRolesArgs, Confirmation]{
		Name:   "user-roles",
		Event:  EventUserRoles,
		Tag:    TagUserRoles,
		Decode: channel.DecodeSingle[Confirmation](),
	}
}

// EventsUnion decodes any frame of the events hub event.
func EventsUnion() *hub.Union[EventMessage] {
	u := hub.NewUnion[EventMessage]()
	hub.AddVariant(u, TagEvents, func(c SystemConfirmation) EventMessage { return c })
	hub.AddVariant(u, NotifyEvents, func(c Change) EventMessage { return c })
	return u
}

func noKeys[A any](keys []string) (A, error) {
	var a A
	if len(keys) > 0 {
		return a, ErrUnexpectedID
	}
	return a, nil
}

func eventsFromKeys(keys []string) (EventsArgs, error) {
	return EventsArgs{SystemIDs: keys}, nil
}

func commandsFromKeys(keys []string) (CommandsArgs, error) {
	if len(keys) != 1 {
		return CommandsArgs{}, ErrNoSystemID
	}
	return CommandsArgs{SystemID: keys[0]}, nil
}

func sessionsFromKeys(keys []string) (SessionsArgs, error) {
	switch len(keys) {
	case 0:
		return SessionsArgs{}, nil
	case 1:
		return SessionsArgs{UserID: keys[0]}, nil
	default:
		return SessionsArgs{}, ErrUnexpectedID
	}
}

func operatorTasksFromKeys(keys []string) (OperatorTasksArgs, error) {
	return OperatorTasksArgs{TaskIDs: keys}, nil
}

// Events is the events proxy.
type Events struct {
	*Proxy[EventsArgs, SystemConfirmation]
	messages *hub.EventChannel[EventMessage]
}

// Messages returns a channel of every events frame, confirmations and
// notifications alike, decoded by RequestFor.
func (e *Events) Messages() *hub.EventChannel[EventMessage] { return e.messages }

// Commands is the commands proxy.
type Commands struct {
	*Proxy[CommandsArgs, Confirmation]
}

// Systems is the systems proxy.
type Systems struct {
	*Proxy[SystemsArgs, Confirmation]
}

// Sessions is the sessions proxy.
type Sessions struct {
	*Proxy[SessionsArgs, Confirmation]
}

// Licenses is the licenses proxy.
type Licenses struct {
	*Proxy[LicensesArgs, Confirmation]
}

// OperatorTasks is the operator tasks proxy.
type OperatorTasks struct {
	*Proxy[OperatorTasksArgs, TaskConfirmation]
}

// UserRoles is the user roles proxy.
type UserRoles struct {
	*Proxy[UserRolesArgs, Confirmation]
}

// Names returns the URL segment of every domain in sorted order.
func Names() []string {
	names := []string{
		EventsDomain().Name,
		CommandsDomain().Name,
		SystemsDomain().Name,
		SessionsDomain().Name,
		LicensesDomain().Name,
		OperatorTasksDomain().Name,
		UserRolesDomain().Name,
	}
	sort.Strings(names)
	return names
}
