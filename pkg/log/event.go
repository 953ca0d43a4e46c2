package log

import (
	"time"
)

// Event is a single simulation event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the client connection (UUID), if any.
	ConnectionID string `cbor:"2,keyasint,omitempty"`

	// Direction indicates message flow relative to the simulator.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// Device is the name of the simulated device.
	Device string `cbor:"6,keyasint,omitempty"`

	// RemoteAddr is the peer address (IP:port).
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"13,keyasint,omitempty"`
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates data received by the simulator.
	DirectionIn Direction = 0
	// DirectionOut indicates data sent by the simulator.
	DirectionOut Direction = 1
	// DirectionNone is used for internal events such as state changes.
	DirectionNone Direction = 2
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	case DirectionNone:
		return "-"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates where the event was captured.
type Layer uint8

const (
	// LayerTransport is the control server framing layer (raw bytes).
	LayerTransport Layer = 0
	// LayerAdapter is a device protocol adapter (e.g. stream).
	LayerAdapter Layer = 1
	// LayerControl is the JSON-RPC control server.
	LayerControl Layer = 2
	// LayerSimulation is the simulation loop and the device state machine.
	LayerSimulation Layer = 3
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerAdapter:
		return "ADAPTER"
	case LayerControl:
		return "CONTROL"
	case LayerSimulation:
		return "SIMULATION"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates a request, reply or frame.
	CategoryMessage Category = 0
	// CategoryState indicates a state change.
	CategoryState Category = 1
	// CategoryError indicates an error event.
	CategoryError Category = 2
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures raw frame data at the transport layer.
type FrameEvent struct {
	// Size is the frame size in bytes (including length prefix).
	Size int `cbor:"1,keyasint"`

	// Data is the raw frame bytes (may be truncated for large frames).
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// MessageEvent captures a request or reply handled by an adapter or the
// control server.
type MessageEvent struct {
	// Type distinguishes request and response.
	Type MessageType `cbor:"1,keyasint"`

	// Protocol is the adapter protocol ("stream", "jsonrpc").
	Protocol string `cbor:"2,keyasint,omitempty"`

	// Command is the matched command or the called RPC method.
	Command string `cbor:"3,keyasint,omitempty"`

	// Raw is the request or reply text as seen on the wire.
	Raw string `cbor:"4,keyasint,omitempty"`

	// Args are the decoded command arguments (requests only).
	Args []any `cbor:"5,keyasint,omitempty"`

	// Status is the outcome of a request (responses only).
	Status Status `cbor:"6,keyasint,omitempty"`

	// ProcessingTime is the duration from request receipt to reply (responses only).
	ProcessingTime *time.Duration `cbor:"7,keyasint,omitempty"`
}

// MessageType distinguishes requests and responses.
type MessageType uint8

const (
	// MessageTypeRequest indicates a request message.
	MessageTypeRequest MessageType = 0
	// MessageTypeResponse indicates a response message.
	MessageTypeResponse MessageType = 1
)

// String returns the message type name.
func (m MessageType) String() string {
	switch m {
	case MessageTypeRequest:
		return "REQUEST"
	case MessageTypeResponse:
		return "RESPONSE"
	default:
		return "UNKNOWN"
	}
}

// Status is the outcome of a handled request.
type Status uint8

const (
	// StatusOK indicates successful handling.
	StatusOK Status = 0
	// StatusNoMatch indicates that no command matched the request.
	StatusNoMatch Status = 1
	// StatusFailed indicates that the command handler returned an error.
	StatusFailed Status = 2
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusNoMatch:
		return "NO_MATCH"
	case StatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// StateChangeEvent captures lifecycle and state machine changes.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityDevice indicates a device state machine transition.
	StateEntityDevice StateEntity = 0
	// StateEntitySimulation indicates a simulation lifecycle change.
	StateEntitySimulation StateEntity = 1
	// StateEntityConnection indicates a client connection change.
	StateEntityConnection StateEntity = 2
	// StateEntityAdapter indicates an adapter being started or stopped.
	StateEntityAdapter StateEntity = 3
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityDevice:
		return "DEVICE"
	case StateEntitySimulation:
		return "SIMULATION"
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntityAdapter:
		return "ADAPTER"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Code is the error code (if applicable).
	Code *int `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}

// NewStateEvent builds a simulation-layer state change event.
func NewStateEvent(entity StateEntity, oldState, newState, reason string) Event {
	return Event{
		Timestamp: time.Now(),
		Direction: DirectionNone,
		Layer:     LayerSimulation,
		Category:  CategoryState,
		StateChange: &StateChangeEvent{
			Entity:   entity,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	}
}

// NewErrorEvent builds an error event for the given layer.
func NewErrorEvent(layer Layer, err error, context string) Event {
	return Event{
		Timestamp: time.Now(),
		Direction: DirectionNone,
		Layer:     layer,
		Category:  CategoryError,
		Error: &ErrorEventData{
			Layer:   layer,
			Message: err.Error(),
			Context: context,
		},
	}
}
