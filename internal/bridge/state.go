package bridge

import (
	"vr2osc/internal/actions"
	"vr2osc/internal/osc"
)

// Sample is the union of analog and digital readings fed to Evaluate.
// Analog actions read Active and Value; binary and rotate actions read
// Active, Changed and State.
type Sample struct {
	Active  bool
	Changed bool
	State   bool
	Value   float32
}

// AnalogSample converts an analog reading into a Sample.
func (s AnalogSample) Sample() Sample {
	return Sample{Active: s.Active, Value: s.Value}
}

// DigitalSample converts a digital reading into a Sample.
func (s DigitalSample) Sample() Sample {
	return Sample{Active: s.Active, Changed: s.Changed, State: s.State}
}

// noPosition is the rotate index before the first press.
const noPosition = -1

// ActionState is the runtime side of one configured action.
//
// It is owned by a single Driver and is not safe for concurrent use.
type ActionState struct {
	group  string
	action actions.Action
	path   string
	handle ActionHandle

	// position is only used by rotate actions; it stays within [-1, N-1].
	position int
}

// NewActionState returns the state for action a of group groupID.
func NewActionState(groupID string, a actions.Action, h ActionHandle) *ActionState {
	return &ActionState{
		group:    groupID,
		action:   a,
		path:     actions.ActionPath(groupID, a.ID),
		handle:   h,
		position: noPosition,
	}
}

func (s *ActionState) Group() string          { return s.group }
func (s *ActionState) Action() actions.Action { return s.action }
func (s *ActionState) Path() string           { return s.path }
func (s *ActionState) Handle() ActionHandle   { return s.handle }
func (s *ActionState) Kind() actions.Kind     { return s.action.Kind() }

// Position returns the current rotate position, or -1 before the first press.
func (s *ActionState) Position() int { return s.position }

// Evaluate returns the messages produced by sample.
func (s *ActionState) Evaluate(sample Sample) []osc.Message {
	return s.AppendMessages(nil, sample)
}

// AppendMessages appends the messages produced by sample to dst.
func (s *ActionState) AppendMessages(dst []osc.Message, sample Sample) []osc.Message {
	switch b := s.action.Behavior.(type) {
	case actions.Analog:
		return appendAnalog(dst, b, sample)
	case actions.Binary:
		return appendBinary(dst, b, sample)
	case actions.Rotate:
		return s.appendRotate(dst, b, sample)
	default:
		return dst
	}
}

// appendAnalog is level driven: every active sample emits one message per mapping.
func appendAnalog(dst []osc.Message, b actions.Analog, sample Sample) []osc.Message {
	if !sample.Active {
		return dst
	}
	for _, m := range b.Mappings {
		dst = append(dst, osc.Message{
			Address: m.Key,
			Args:    []osc.Value{osc.Float32(m.Apply(sample.Value))},
		})
	}
	return dst
}

func appendBinary(dst []osc.Message, b actions.Binary, sample Sample) []osc.Message {
	if !sample.Active || !sample.Changed {
		return dst
	}
	values := b.Release
	if sample.State {
		values = b.Press
	}
	return appendOneShots(dst, values)
}

// appendRotate advances on each press edge: exit of the current position,
// then enter of the next one. The first press only enters position 0.
func (s *ActionState) appendRotate(dst []osc.Message, b actions.Rotate, sample Sample) []osc.Message {
	if !sample.Active || !sample.Changed || !sample.State {
		return dst
	}
	n := len(b.Positions)
	if n == 0 {
		return dst
	}

	if s.position >= 0 && s.position < n {
		dst = appendOneShots(dst, b.Positions[s.position].Exit)
	}

	s.position++
	if s.position >= n {
		s.position = 0
	}

	return appendOneShots(dst, b.Positions[s.position].Enter)
}

func appendOneShots(dst []osc.Message, values []actions.OneShot) []osc.Message {
	for _, v := range values {
		dst = append(dst, v.Message())
	}
	return dst
}
