package gateway

import "encoding/json"

// Wire envelope shared by the socket protocol and the broker:
//
//	{type:"event", eventName:"...", data:{...}}
//	{type:"error", error:{name:"...", message:"..."}}
//
// Channel names are prefixed by class: U:<userId>, M:<mailboxId>, and the
// reserved S: prefix for broadcast-class system events with no subscription
// state of their own.

const (
	EnvelopeEvent = "event"
	EnvelopeError = "error"
)

// Reserved system event names.
const (
	EventResponsive   = "S:responsive"
	EventAuthSuccess  = "S:authSuccess"
	EventAuth         = "auth"
	EventMailboxAdded = "U:mailboxAdded"
)

// Channel class prefixes.
const (
	PrefixUser    = "U:"
	PrefixMailbox = "M:"
	PrefixSystem  = "S:"
)

// Error names returned to clients. Only name and message ever cross the
// wire, never internal detail.
const (
	ErrNameInvalid        = "EINVALID"
	ErrNameAuth           = "EAUTH"
	ErrNameNoAuth         = "ENOAUTH"
	ErrNameNotImplemented = "ENOTIMPLEMENTED"
	ErrNameValidation     = "EVALIDATION"
)

// Envelope is one protocol message.
type Envelope struct {
	Type      string         `json:"type"`
	EventName string         `json:"eventName,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Error     *EnvelopeErr   `json:"error,omitempty"`
}

// EnvelopeErr is the error payload of an error envelope.
type EnvelopeErr struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// WireError is a protocol-level failure carrying the name/message pair sent
// to the client.
type WireError struct {
	Name    string
	Message string
}

func (e *WireError) Error() string {
	return e.Name + ": " + e.Message
}

func wireErr(name, message string) *WireError {
	return &WireError{Name: name, Message: message}
}

// NewEvent builds an event envelope.
func NewEvent(eventName string, data map[string]any) *Envelope {
	return &Envelope{Type: EnvelopeEvent, EventName: eventName, Data: data}
}

// NewError builds an error envelope from a wire error.
func NewError(err *WireError) *Envelope {
	return &Envelope{
		Type:  EnvelopeError,
		Error: &EnvelopeErr{Name: err.Name, Message: err.Message},
	}
}

// Encode marshals the envelope for transmission.
func (e *Envelope) Encode() []byte {
	b, err := json.Marshal(e)
	if err != nil {
		// Envelopes are built from marshalable values only.
		panic("gateway: unmarshalable envelope: " + err.Error())
	}
	return b
}
