// Package actions holds the action-set model: named groups of controller
// actions and the rules that turn their samples into OSC messages.
//
// Everything here is loaded once at startup and treated as read-only.
package actions

import "vr2osc/internal/osc"

// Group is an action set. Its ID namespaces the actions on the input side.
type Group struct {
	ID      string
	Name    string
	Actions []Action
}

// Path returns the input-runtime path of the group, e.g. "/actions/main".
func (g Group) Path() string {
	return GroupPath(g.ID)
}

// ActionPath returns the input-runtime path of one of the group's actions.
func (g Group) ActionPath(a Action) string {
	return ActionPath(g.ID, a.ID)
}

func GroupPath(groupID string) string {
	return "/actions/" + groupID
}

func ActionPath(groupID, actionID string) string {
	return GroupPath(groupID) + "/in/" + actionID
}

// Action is one controller action with exactly one behavior.
type Action struct {
	ID       string
	Name     string
	Behavior Behavior
}

// Kind returns the behavior kind of the action.
func (a Action) Kind() Kind {
	if a.Behavior == nil {
		return KindNone
	}
	return a.Behavior.Kind()
}

// Kind enumerates the behavior variants.
type Kind int

const (
	KindNone Kind = iota
	KindAnalog
	KindBinary
	KindRotate
)

func (k Kind) String() string {
	switch k {
	case KindAnalog:
		return "analog"
	case KindBinary:
		return "binary"
	case KindRotate:
		return "rotate"
	default:
		return "none"
	}
}

// Digital reports whether actions of this kind are sampled as on/off inputs.
func (k Kind) Digital() bool {
	return k == KindBinary || k == KindRotate
}

// Behavior is implemented by Analog, Binary and Rotate.
type Behavior interface {
	Kind() Kind
	behaviorMarker()
}

// Analog maps a scalar input onto any number of OSC addresses.
type Analog struct {
	Mappings []RangeMapping
}

func (Analog) Kind() Kind      { return KindAnalog }
func (Analog) behaviorMarker() {}

// Binary sends Press on the inactive→active edge and Release on the way back.
type Binary struct {
	Press   []OneShot
	Release []OneShot
}

func (Binary) Kind() Kind      { return KindBinary }
func (Binary) behaviorMarker() {}

// Rotate cycles through Positions, one step per press.
type Rotate struct {
	Positions []Position
}

func (Rotate) Kind() Kind      { return KindRotate }
func (Rotate) behaviorMarker() {}

// Position is one stop of a Rotate action.
type Position struct {
	Enter []OneShot
	Exit  []OneShot
}

// OneShot is a constant sent to Key when an edge fires.
type OneShot struct {
	Key   string
	Value osc.Value
}

// Message returns the OSC message for this key/value pair.
func (o OneShot) Message() osc.Message {
	return osc.Message{Address: o.Key, Args: []osc.Value{o.Value}}
}

// RangeMapping rescales [InputMin, InputMax] onto [OutputMin, OutputMax].
// InputMin < InputMax always holds; the output bounds may be inverted.
type RangeMapping struct {
	Key       string
	InputMin  float32
	InputMax  float32
	OutputMin float32
	OutputMax float32
}

// Apply clamps x into the input range and interpolates linearly.
// Inputs outside the range yield the matching output bound.
func (r RangeMapping) Apply(x float32) float32 {
	if x < r.InputMin {
		return r.OutputMin
	}
	if x > r.InputMax {
		return r.OutputMax
	}
	s := (r.OutputMax - r.OutputMin) / (r.InputMax - r.InputMin)
	return (x-r.InputMin)*s + r.OutputMin
}
