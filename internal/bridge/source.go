package bridge

import (
	"fmt"
)

// GroupHandle and ActionHandle are opaque tokens issued by an InputSource.
type (
	GroupHandle  uint64
	ActionHandle uint64
)

// AnalogSample is one reading of a scalar action.
type AnalogSample struct {
	Active bool
	Value  float32
}

// DigitalSample is one reading of an on/off action. Changed reports whether
// State differs from the previous refresh.
type DigitalSample struct {
	Active  bool
	Changed bool
	State   bool
}

// InputSource provides controller samples.
//
// Handles are resolved once at startup from "/actions/<group>" and
// "/actions/<group>/in/<action>" paths. Refresh latches a new snapshot for
// the given groups; the Sample calls read from that snapshot.
type InputSource interface {
	ResolveGroup(path string) (GroupHandle, error)
	ResolveAction(path string) (ActionHandle, error)
	Refresh(groups []GroupHandle) error
	SampleAnalog(h ActionHandle) (AnalogSample, error)
	SampleDigital(h ActionHandle) (DigitalSample, error)
}

// Sink accepts a finished OSC packet. Delivery is best effort.
type Sink interface {
	Send(packet []byte) error
}

// InputSourceError is returned when the input source is unavailable or a
// handle cannot be resolved.
type InputSourceError struct {
	Path string
	Err  error
}

func (e *InputSourceError) Error() string {
	return fmt.Sprintf("input source: %s: %v", e.Path, e.Err)
}

func (e *InputSourceError) Unwrap() error { return e.Err }

// TransportError wraps a failed send.
type TransportError struct {
	Addr string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("send to %s: %v", e.Addr, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
