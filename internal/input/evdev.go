package input

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Linux input event types and key values (linux/input-event-codes.h).
const (
	evKey = 0x01
	evAbs = 0x03

	keyRelease = 0
	keyPress   = 1
	keyRepeat  = 2
)

// inputEvent mirrors struct input_event on 64-bit Linux:
// struct input_event { struct timeval time; __u16 type; __u16 code; __s32 value; };
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

var inputEventSize = binary.Size(inputEvent{})

func decodeInputEvent(buf []byte) (inputEvent, error) {
	var ev inputEvent
	err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &ev)
	return ev, err
}

// Binding routes one evdev code to an action path. Set Key for buttons
// (binary and rotate actions) or Abs for axes (analog actions).
type Binding struct {
	Action string  `yaml:"action" json:"action"`
	Key    *uint16 `yaml:"key,omitempty" json:"key,omitempty"`
	Abs    *uint16 `yaml:"abs,omitempty" json:"abs,omitempty"`
	Min    int32   `yaml:"min" json:"min"`
	Max    int32   `yaml:"max" json:"max"`
}

// Binder translates raw input events into store updates.
type Binder struct {
	store *Store
	keys  map[uint16][]string
	axes  map[uint16][]axisBinding
}

type axisBinding struct {
	path     string
	min, max int32
}

// NewBinder checks bindings against the store's registered actions.
func NewBinder(store *Store, bindings []Binding) (*Binder, error) {
	b := &Binder{
		store: store,
		keys:  make(map[uint16][]string),
		axes:  make(map[uint16][]axisBinding),
	}

	for i, bd := range bindings {
		if bd.Action == "" {
			return nil, fmt.Errorf("evdev.bindings[%d]: action is required", i)
		}
		if (bd.Key == nil) == (bd.Abs == nil) {
			return nil, fmt.Errorf("evdev.bindings[%d]: exactly one of key or abs is required", i)
		}
		digital, err := store.IsDigital(bd.Action)
		if err != nil {
			return nil, fmt.Errorf("evdev.bindings[%d]: %w", i, err)
		}

		if bd.Key != nil {
			if !digital {
				return nil, fmt.Errorf("evdev.bindings[%d]: key binding needs a binary or rotate action, %s is analog", i, bd.Action)
			}
			b.keys[*bd.Key] = append(b.keys[*bd.Key], bd.Action)
			continue
		}

		if digital {
			return nil, fmt.Errorf("evdev.bindings[%d]: abs binding needs an analog action, %s is digital", i, bd.Action)
		}
		if bd.Max <= bd.Min {
			return nil, fmt.Errorf("evdev.bindings[%d]: max must be greater than min", i)
		}
		b.axes[*bd.Abs] = append(b.axes[*bd.Abs], axisBinding{path: bd.Action, min: bd.Min, max: bd.Max})
	}
	return b, nil
}

// Handle applies one event. Unbound codes and key repeats are ignored.
func (b *Binder) Handle(ev inputEvent) error {
	var errs []error

	switch ev.Type {
	case evKey:
		if ev.Value == keyRepeat {
			return nil
		}
		for _, path := range b.keys[ev.Code] {
			errs = append(errs, b.store.SetDigital(path, true, ev.Value == keyPress))
		}
	case evAbs:
		for _, ax := range b.axes[ev.Code] {
			errs = append(errs, b.store.SetAnalog(ax.path, true, ax.normalize(ev.Value)))
		}
	}
	return errors.Join(errs...)
}

// normalize maps v from [min, max] onto [0, 1].
func (a axisBinding) normalize(v int32) float32 {
	if v <= a.min {
		return 0
	}
	if v >= a.max {
		return 1
	}
	return float32(float64(int64(v)-int64(a.min)) / float64(int64(a.max)-int64(a.min)))
}
