package log

import "time"

// MaxCapturedPayload bounds the payload bytes kept in a HubFrameEvent.
const MaxCapturedPayload = 4096

// Event is one capture record. Exactly one of the detail pointers is set.
// Keys are small integers so records stay compact on disk; never renumber.
type Event struct {
	Timestamp    time.Time `cbor:"1,keyasint"`
	ConnectionID string    `cbor:"2,keyasint,omitempty"` // empty while disconnected
	Direction    Direction `cbor:"3,keyasint"`
	Layer        Layer     `cbor:"4,keyasint"`
	Category     Category  `cbor:"5,keyasint"`

	// Domain and RequestID tie the event to one subscription context.
	Domain    string `cbor:"6,keyasint,omitempty"`
	RequestID string `cbor:"7,keyasint,omitempty"`

	HubFrame    *HubFrameEvent    `cbor:"10,keyasint,omitempty"`
	HTTP        *HTTPCallEvent    `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	ControlMsg  *ControlMsgEvent  `cbor:"13,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"`
}

// enumName returns names[i], or "UNKNOWN" when i is out of range.
func enumName(names []string, i uint8) string {
	if int(i) < len(names) {
		return names[i]
	}
	return "UNKNOWN"
}

func parseEnum(names []string, s string) (uint8, bool) {
	for i, n := range names {
		if n == s {
			return uint8(i), true
		}
	}
	return 0, false
}

// Direction is relative to the client.
type Direction uint8

const (
	DirectionIn   Direction = 0
	DirectionOut  Direction = 1
	DirectionNone Direction = 2 // local events such as state changes
)

var directionNames = []string{"IN", "OUT", "-"}

func (d Direction) String() string { return enumName(directionNames, uint8(d)) }

// Layer names the component that recorded the event.
type Layer uint8

const (
	LayerTransport Layer = 0 // websocket
	LayerHub       Layer = 1 // event routing
	LayerHTTP      Layer = 2 // REST client
	LayerManager   Layer = 3 // subscription channel manager
)

var layerNames = []string{"TRANSPORT", "HUB", "HTTP", "MANAGER"}

func (l Layer) String() string { return enumName(layerNames, uint8(l)) }

// ParseLayer is the inverse of Layer.String.
func ParseLayer(s string) (Layer, bool) {
	v, ok := parseEnum(layerNames, s)
	return Layer(v), ok
}

// Category groups events for filtering.
type Category uint8

const (
	CategoryMessage Category = 0 // hub frames and HTTP calls
	CategoryControl Category = 1 // handshake, ping, pong, close
	CategoryState   Category = 2
	CategoryError   Category = 3
)

var categoryNames = []string{"MESSAGE", "CONTROL", "STATE", "ERROR"}

func (c Category) String() string { return enumName(categoryNames, uint8(c)) }

// ParseCategory is the inverse of Category.String.
func ParseCategory(s string) (Category, bool) {
	v, ok := parseEnum(categoryNames, s)
	return Category(v), ok
}

// HubFrameEvent records an event frame together with its decoded
// correlation header.
type HubFrameEvent struct {
	Event      string `cbor:"1,keyasint"`
	RequestID  string `cbor:"2,keyasint,omitempty"`
	RequestFor string `cbor:"3,keyasint,omitempty"`
	ErrorCode  int    `cbor:"4,keyasint,omitempty"`

	// Size is the full payload length; Payload holds at most
	// MaxCapturedPayload bytes of it.
	Size      int    `cbor:"5,keyasint"`
	Payload   []byte `cbor:"6,keyasint,omitempty"`
	Truncated bool   `cbor:"7,keyasint,omitempty"`
}

// NewHubFrameEvent copies payload, truncating it to MaxCapturedPayload.
func NewHubFrameEvent(event string, payload []byte) *HubFrameEvent {
	f := &HubFrameEvent{Event: event, Size: len(payload)}
	if len(payload) > MaxCapturedPayload {
		payload = payload[:MaxCapturedPayload]
		f.Truncated = true
	}
	if len(payload) > 0 {
		f.Payload = append([]byte(nil), payload...)
	}
	return f
}

// HTTPCallEvent records a subscribe or unsubscribe call. Status is zero
// when no response arrived.
type HTTPCallEvent struct {
	Method   string        `cbor:"1,keyasint"`
	Path     string        `cbor:"2,keyasint"` // relative to the base URL
	Status   int           `cbor:"3,keyasint,omitempty"`
	Duration time.Duration `cbor:"4,keyasint,omitempty"`
}

// StateChangeEvent records a connection transition or a subscription
// context moving between pending, invoked, completed and failed.
type StateChangeEvent struct {
	Entity   StateEntity `cbor:"1,keyasint"`
	OldState string      `cbor:"2,keyasint,omitempty"`
	NewState string      `cbor:"3,keyasint"`
	Reason   string      `cbor:"4,keyasint,omitempty"`
}

type StateEntity uint8

const (
	StateEntityConnection   StateEntity = 0
	StateEntitySubscription StateEntity = 1
)

var stateEntityNames = []string{"CONNECTION", "SUBSCRIPTION"}

func (s StateEntity) String() string { return enumName(stateEntityNames, uint8(s)) }

// ControlMsgEvent records a non-event hub message. Reason is set for Close.
type ControlMsgEvent struct {
	Type   ControlMsgType `cbor:"1,keyasint"`
	Reason string         `cbor:"2,keyasint,omitempty"`
}

type ControlMsgType uint8

const (
	ControlMsgHandshake ControlMsgType = 0
	ControlMsgPing      ControlMsgType = 1
	ControlMsgPong      ControlMsgType = 2
	ControlMsgClose     ControlMsgType = 3
)

var controlMsgNames = []string{"HANDSHAKE", "PING", "PONG", "CLOSE"}

func (c ControlMsgType) String() string { return enumName(controlMsgNames, uint8(c)) }

// ErrorEventData records a failure. Context names the operation, for
// example the hub event of an uncorrelated frame.
type ErrorEventData struct {
	Layer   Layer  `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`
	Code    *int   `cbor:"3,keyasint,omitempty"`
	Context string `cbor:"4,keyasint,omitempty"`
}
