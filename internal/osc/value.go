package osc

import (
	"fmt"
	"strconv"
)

// Kind identifies which member of a Value is populated.
type Kind uint8

const (
	KindInt32 Kind = iota
	KindFloat32
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindInt32:
		return "int32"
	case KindFloat32:
		return "float32"
	case KindBool:
		return "bool"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Tag returns the OSC type tag character used on the wire.
// Booleans travel as int32 0/1, not as the T/F tags.
func (k Kind) Tag() byte {
	if k == KindFloat32 {
		return 'f'
	}
	return 'i'
}

// Value is a single OSC argument: a bool, an int32 or a float32.
// The zero Value is int32(0).
type Value struct {
	kind Kind
	i    int32
	f    float32
}

func Int32(v int32) Value     { return Value{kind: KindInt32, i: v} }
func Float32(v float32) Value { return Value{kind: KindFloat32, f: v} }

func Bool(v bool) Value {
	if v {
		return Value{kind: KindBool, i: 1}
	}
	return Value{kind: KindBool}
}

func (v Value) Kind() Kind { return v.kind }

// Int32 returns the integer payload. Booleans report 0 or 1.
func (v Value) Int32() int32 { return v.i }

func (v Value) Float32() float32 { return v.f }

func (v Value) Bool() bool { return v.i != 0 }

// Any returns the payload as a Go value (bool, int32 or float32).
func (v Value) Any() any {
	switch v.kind {
	case KindBool:
		return v.Bool()
	case KindFloat32:
		return v.f
	default:
		return v.i
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.Bool())
	case KindFloat32:
		return strconv.FormatFloat(float64(v.f), 'g', -1, 32)
	default:
		return strconv.FormatInt(int64(v.i), 10)
	}
}

// Message is an outgoing OSC message before encoding.
type Message struct {
	Address string
	Args    []Value
}

func (m Message) String() string {
	s := m.Address
	for _, a := range m.Args {
		s += " " + a.String()
	}
	return s
}

// MarshalBinary encodes the message in OSC wire format.
func (m Message) MarshalBinary() ([]byte, error) {
	return EncodeMessage(m.Address, m.Args...), nil
}
