// Package input provides the live input source used by the bridge: a sample
// store that producers (the IPC socket, evdev devices) write into and the
// polling driver reads from.
package input

import (
	"errors"
	"fmt"
	"sync"

	"vr2osc/internal/actions"
	"vr2osc/internal/bridge"
)

// maxPending bounds the queued digital transitions per action.
const maxPending = 16

var (
	ErrUnknownPath  = errors.New("unknown path")
	ErrKindMismatch = errors.New("input kind mismatch")
	ErrBadHandle    = errors.New("invalid handle")
)

type digitalEvent struct {
	active bool
	state  bool
}

type entry struct {
	path    string
	group   bridge.GroupHandle
	digital bool

	// analog, latest wins
	analogActive bool
	analogValue  float32

	// digital, one transition latched per refresh
	pending []digitalEvent
	latched bridge.DigitalSample
}

// Store is a concurrency-safe bridge.InputSource fed by producers.
type Store struct {
	mu      sync.Mutex
	groups  map[string]bridge.GroupHandle
	byPath  map[string]bridge.ActionHandle
	entries []*entry // indexed by ActionHandle-1

	// latched analog readings, written only by Refresh
	analog []bridge.AnalogSample
}

// NewStore registers every action of groups. Analog actions accept values;
// binary and rotate actions accept on/off states.
func NewStore(groups []actions.Group) *Store {
	s := &Store{
		groups: make(map[string]bridge.GroupHandle, len(groups)),
		byPath: make(map[string]bridge.ActionHandle),
	}
	for gi, g := range groups {
		gh := bridge.GroupHandle(gi + 1)
		s.groups[g.Path()] = gh
		for _, a := range g.Actions {
			e := &entry{
				path:    g.ActionPath(a),
				group:   gh,
				digital: a.Kind().Digital(),
			}
			s.entries = append(s.entries, e)
			s.byPath[e.path] = bridge.ActionHandle(len(s.entries))
		}
	}
	s.analog = make([]bridge.AnalogSample, len(s.entries))
	return s
}

// Paths returns every registered action path in declaration order.
func (s *Store) Paths() []string {
	out := make([]string, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.path
	}
	return out
}

// IsDigital reports whether path takes on/off states.
func (s *Store) IsDigital(path string) (bool, error) {
	h, ok := s.byPath[path]
	if !ok {
		return false, fmt.Errorf("%w %q", ErrUnknownPath, path)
	}
	return s.entries[h-1].digital, nil
}

func (s *Store) ResolveGroup(path string) (bridge.GroupHandle, error) {
	h, ok := s.groups[path]
	if !ok {
		return 0, fmt.Errorf("%w %q", ErrUnknownPath, path)
	}
	return h, nil
}

func (s *Store) ResolveAction(path string) (bridge.ActionHandle, error) {
	h, ok := s.byPath[path]
	if !ok {
		return 0, fmt.Errorf("%w %q", ErrUnknownPath, path)
	}
	return h, nil
}

// SetAnalog records the latest reading of an analog action.
func (s *Store) SetAnalog(path string, active bool, value float32) error {
	e, err := s.lookup(path, false)
	if err != nil {
		return err
	}

	s.mu.Lock()
	e.analogActive = active
	e.analogValue = value
	s.mu.Unlock()
	return nil
}

// SetDigital queues a state report for a digital action. Reports equal to
// the last known state are dropped; when the queue is full the oldest
// transition is discarded.
func (s *Store) SetDigital(path string, active, state bool) error {
	e, err := s.lookup(path, true)
	if err != nil {
		return err
	}

	ev := digitalEvent{active: active, state: state}

	s.mu.Lock()
	defer s.mu.Unlock()

	last := digitalEvent{active: e.latched.Active, state: e.latched.State}
	if n := len(e.pending); n > 0 {
		last = e.pending[n-1]
	}
	if ev == last {
		return nil
	}
	if len(e.pending) == maxPending {
		copy(e.pending, e.pending[1:])
		e.pending = e.pending[:maxPending-1]
	}
	e.pending = append(e.pending, ev)
	return nil
}

func (s *Store) lookup(path string, digital bool) (*entry, error) {
	h, ok := s.byPath[path]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownPath, path)
	}
	e := s.entries[h-1]
	if e.digital != digital {
		return nil, fmt.Errorf("%w: %s is %s", ErrKindMismatch, path, kindName(e.digital))
	}
	return e, nil
}

func kindName(digital bool) string {
	if digital {
		return "digital"
	}
	return "analog"
}

// Refresh latches a snapshot for every action in groups. Each digital
// action consumes at most one queued transition.
func (s *Store) Refresh(groups []bridge.GroupHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, e := range s.entries {
		if !containsGroup(groups, e.group) {
			continue
		}
		if !e.digital {
			s.analog[i] = bridge.AnalogSample{Active: e.analogActive, Value: e.analogValue}
			continue
		}

		if len(e.pending) == 0 {
			e.latched.Changed = false
			continue
		}
		ev := e.pending[0]
		e.pending = e.pending[1:]
		e.latched.Changed = ev.state != e.latched.State
		e.latched.Active = ev.active
		e.latched.State = ev.state
	}
	return nil
}

func containsGroup(groups []bridge.GroupHandle, g bridge.GroupHandle) bool {
	for _, h := range groups {
		if h == g {
			return true
		}
	}
	return false
}

func (s *Store) SampleAnalog(h bridge.ActionHandle) (bridge.AnalogSample, error) {
	e, err := s.entry(h)
	if err != nil {
		return bridge.AnalogSample{}, err
	}
	if e.digital {
		return bridge.AnalogSample{}, fmt.Errorf("%w: %s is digital", ErrKindMismatch, e.path)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.analog[h-1], nil
}

func (s *Store) SampleDigital(h bridge.ActionHandle) (bridge.DigitalSample, error) {
	e, err := s.entry(h)
	if err != nil {
		return bridge.DigitalSample{}, err
	}
	if !e.digital {
		return bridge.DigitalSample{}, fmt.Errorf("%w: %s is analog", ErrKindMismatch, e.path)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return e.latched, nil
}

func (s *Store) entry(h bridge.ActionHandle) (*entry, error) {
	if h == 0 || int(h) > len(s.entries) {
		return nil, fmt.Errorf("%w %d", ErrBadHandle, h)
	}
	return s.entries[h-1], nil
}

var _ bridge.InputSource = (*Store)(nil)
