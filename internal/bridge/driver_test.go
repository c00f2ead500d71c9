package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	gosc "github.com/hypebeast/go-osc/osc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vr2osc/internal/actions"
	"vr2osc/internal/osc"
)

// fakeSource serves scripted samples keyed by action path.
type fakeSource struct {
	mu sync.Mutex

	groups  map[string]GroupHandle
	actions map[string]ActionHandle
	paths   map[ActionHandle]string

	analog  map[string]AnalogSample
	digital map[string]DigitalSample
	failing map[string]bool

	refreshErr error
	refreshed  [][]GroupHandle
}

func newFakeSource(groups ...actions.Group) *fakeSource {
	s := &fakeSource{
		groups:  map[string]GroupHandle{},
		actions: map[string]ActionHandle{},
		paths:   map[ActionHandle]string{},
		analog:  map[string]AnalogSample{},
		digital: map[string]DigitalSample{},
		failing: map[string]bool{},
	}
	for i, g := range groups {
		s.groups[g.Path()] = GroupHandle(i + 1)
		for _, a := range g.Actions {
			h := ActionHandle(len(s.actions) + 100)
			s.actions[g.ActionPath(a)] = h
			s.paths[h] = g.ActionPath(a)
		}
	}
	return s
}

func (s *fakeSource) ResolveGroup(path string) (GroupHandle, error) {
	h, ok := s.groups[path]
	if !ok {
		return 0, fmt.Errorf("unknown action set %q", path)
	}
	return h, nil
}

func (s *fakeSource) ResolveAction(path string) (ActionHandle, error) {
	h, ok := s.actions[path]
	if !ok {
		return 0, fmt.Errorf("unknown action %q", path)
	}
	return h, nil
}

func (s *fakeSource) Refresh(groups []GroupHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshed = append(s.refreshed, append([]GroupHandle(nil), groups...))
	return s.refreshErr
}

func (s *fakeSource) SampleAnalog(h ActionHandle) (AnalogSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.paths[h]
	if s.failing[p] {
		return AnalogSample{Active: true, Value: 1}, errors.New("sample failed")
	}
	return s.analog[p], nil
}

func (s *fakeSource) SampleDigital(h ActionHandle) (DigitalSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.paths[h]
	if s.failing[p] {
		return DigitalSample{Active: true, Changed: true, State: true}, errors.New("sample failed")
	}
	return s.digital[p], nil
}

// recordingSink keeps a copy of every packet.
type recordingSink struct {
	mu      sync.Mutex
	packets [][]byte
	err     error
}

func (s *recordingSink) Send(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.packets = append(s.packets, append([]byte(nil), p...))
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.packets)
}

func testGroups() []actions.Group {
	return []actions.Group{
		{
			ID: "mixer", Name: "Mixer",
			Actions: []actions.Action{
				{ID: "fader", Name: "Fader", Behavior: actions.Analog{Mappings: []actions.RangeMapping{
					{Key: "/fader", InputMin: 0, InputMax: 1, OutputMin: 0, OutputMax: 10},
				}}},
				{ID: "mute", Name: "Mute", Behavior: actions.Binary{
					Press:   []actions.OneShot{{Key: "/mute", Value: osc.Bool(true)}},
					Release: []actions.OneShot{{Key: "/mute", Value: osc.Bool(false)}},
				}},
			},
		},
		{
			ID: "scenes", Name: "Scenes",
			Actions: []actions.Action{
				{ID: "next", Name: "Next", Behavior: actions.Rotate{Positions: []actions.Position{
					{Enter: []actions.OneShot{{Key: "/scene", Value: osc.Int32(0)}}},
					{Enter: []actions.OneShot{{Key: "/scene", Value: osc.Int32(1)}}},
				}}},
			},
		},
	}
}

func decodeBundle(t *testing.T, p []byte) []*gosc.Message {
	t.Helper()
	require.Equal(t, "#bundle\x00", string(p[:8]))
	require.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 1}, p[8:16])

	pkt, err := gosc.ParsePacket(string(p))
	require.NoError(t, err)
	b, ok := pkt.(*gosc.Bundle)
	require.True(t, ok, "expected bundle, got %T", pkt)
	return b.Messages
}

func TestNewDriver_ResolveFailure(t *testing.T) {
	groups := testGroups()
	src := newFakeSource(groups[0])

	_, err := NewDriver(src, &recordingSink{}, groups, DriverConfig{})
	var srcErr *InputSourceError
	require.ErrorAs(t, err, &srcErr)
	assert.Equal(t, "/actions/scenes", srcErr.Path)
}

func TestNewDriver_ResolveActionFailure(t *testing.T) {
	groups := testGroups()
	src := newFakeSource(groups...)
	delete(src.actions, "/actions/mixer/in/mute")

	_, err := NewDriver(src, &recordingSink{}, groups, DriverConfig{})
	var srcErr *InputSourceError
	require.ErrorAs(t, err, &srcErr)
	assert.Equal(t, "/actions/mixer/in/mute", srcErr.Path)
}

func TestDriver_NoEmptyBundles(t *testing.T) {
	groups := testGroups()
	src := newFakeSource(groups...)
	sink := &recordingSink{}

	d, err := NewDriver(src, sink, groups, DriverConfig{})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, d.Tick())
	}
	assert.Zero(t, sink.count())
	assert.Len(t, src.refreshed, 5)
	assert.Equal(t, []GroupHandle{1, 2}, src.refreshed[0])
}

func TestDriver_OneBundleInDeclarationOrder(t *testing.T) {
	groups := testGroups()
	src := newFakeSource(groups...)
	src.analog["/actions/mixer/in/fader"] = AnalogSample{Active: true, Value: 0.5}
	src.digital["/actions/mixer/in/mute"] = DigitalSample{Active: true, Changed: true, State: true}
	src.digital["/actions/scenes/in/next"] = DigitalSample{Active: true, Changed: true, State: true}
	sink := &recordingSink{}

	var seen []string
	d, err := NewDriver(src, sink, groups, DriverConfig{OnSend: func(msgs []osc.Message) {
		for _, m := range msgs {
			seen = append(seen, m.Address)
		}
	}})
	require.NoError(t, err)

	require.NoError(t, d.Tick())
	require.Equal(t, 1, sink.count())

	msgs := decodeBundle(t, sink.packets[0])
	require.Len(t, msgs, 3)
	assert.Equal(t, "/fader", msgs[0].Address)
	assert.Equal(t, []any{float32(5)}, msgs[0].Arguments)
	assert.Equal(t, "/mute", msgs[1].Address)
	assert.Equal(t, []any{int32(1)}, msgs[1].Arguments)
	assert.Equal(t, "/scene", msgs[2].Address)
	assert.Equal(t, []any{int32(0)}, msgs[2].Arguments)

	assert.Equal(t, []string{"/fader", "/mute", "/scene"}, seen)
}

func TestDriver_BundleBytesMatchEncoder(t *testing.T) {
	groups := testGroups()
	src := newFakeSource(groups...)
	src.digital["/actions/mixer/in/mute"] = DigitalSample{Active: true, Changed: true, State: false}
	sink := &recordingSink{}

	d, err := NewDriver(src, sink, groups, DriverConfig{})
	require.NoError(t, err)
	require.NoError(t, d.Tick())

	want := osc.EncodeBundle(osc.EncodeMessage("/mute", osc.Bool(false)))
	require.Equal(t, 1, sink.count())
	assert.Equal(t, want, sink.packets[0])
}

func TestDriver_SampleErrorIsInactive(t *testing.T) {
	groups := testGroups()
	src := newFakeSource(groups...)
	src.failing["/actions/mixer/in/mute"] = true
	src.digital["/actions/scenes/in/next"] = DigitalSample{Active: true, Changed: true, State: true}
	sink := &recordingSink{}
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	d, err := NewDriver(src, sink, groups, DriverConfig{Metrics: m})
	require.NoError(t, err)
	require.NoError(t, d.Tick())

	msgs := decodeBundle(t, sink.packets[0])
	require.Len(t, msgs, 1)
	assert.Equal(t, "/scene", msgs[0].Address)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SampleErrors.WithLabelValues("mixer", "mute")))
}

func TestDriver_RefreshErrorSkipsTick(t *testing.T) {
	groups := testGroups()
	src := newFakeSource(groups...)
	src.refreshErr = errors.New("runtime gone")
	src.digital["/actions/mixer/in/mute"] = DigitalSample{Active: true, Changed: true, State: true}
	sink := &recordingSink{}
	m := NewMetrics(nil)

	d, err := NewDriver(src, sink, groups, DriverConfig{Metrics: m})
	require.NoError(t, err)

	err = d.Tick()
	var srcErr *InputSourceError
	require.ErrorAs(t, err, &srcErr)
	assert.Zero(t, sink.count())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RefreshErrors))
}

func TestDriver_SendErrorContinues(t *testing.T) {
	groups := testGroups()
	src := newFakeSource(groups...)
	src.digital["/actions/scenes/in/next"] = DigitalSample{Active: true, Changed: true, State: true}
	sink := &recordingSink{err: errors.New("host unreachable")}
	m := NewMetrics(nil)
	sent := 0

	d, err := NewDriver(src, sink, groups, DriverConfig{Metrics: m, Addr: "10.0.0.1:9000", OnSend: func([]osc.Message) { sent++ }})
	require.NoError(t, err)

	err = d.Tick()
	var tErr *TransportError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, "10.0.0.1:9000", tErr.Addr)
	assert.Zero(t, sent)

	// the rotate state still advanced; the next edge moves on from position 0
	sink.err = nil
	require.NoError(t, d.Tick())
	msgs := decodeBundle(t, sink.packets[0])
	require.Len(t, msgs, 1)
	assert.Equal(t, []any{int32(1)}, msgs[0].Arguments)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.SendErrors))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.BundlesSent))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.Ticks))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.MessagesSent.WithLabelValues("scenes", "next")))
}

func TestDriver_BuffersReusedAcrossTicks(t *testing.T) {
	groups := testGroups()
	src := newFakeSource(groups...)
	src.analog["/actions/mixer/in/fader"] = AnalogSample{Active: true, Value: 0.1}
	sink := &recordingSink{}

	d, err := NewDriver(src, sink, groups, DriverConfig{})
	require.NoError(t, err)
	require.NoError(t, d.Tick())

	src.analog["/actions/mixer/in/fader"] = AnalogSample{Active: true, Value: 1}
	src.digital["/actions/mixer/in/mute"] = DigitalSample{Active: true, Changed: true, State: true}
	require.NoError(t, d.Tick())

	require.Equal(t, 2, sink.count())
	assert.Len(t, decodeBundle(t, sink.packets[0]), 1)
	second := decodeBundle(t, sink.packets[1])
	require.Len(t, second, 2)
	assert.Equal(t, []any{float32(10)}, second[0].Arguments)
}

func TestDriver_RunStopsOnCancel(t *testing.T) {
	groups := testGroups()
	src := newFakeSource(groups...)
	src.analog["/actions/mixer/in/fader"] = AnalogSample{Active: true, Value: 1}
	sink := &recordingSink{}

	d, err := NewDriver(src, sink, groups, DriverConfig{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx, time.Millisecond) }()

	require.Eventually(t, func() bool { return sink.count() >= 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestDriver_RunRejectsZeroInterval(t *testing.T) {
	groups := testGroups()
	d, err := NewDriver(newFakeSource(groups...), &recordingSink{}, groups, DriverConfig{})
	require.NoError(t, err)
	assert.Error(t, d.Run(context.Background(), 0))
}
