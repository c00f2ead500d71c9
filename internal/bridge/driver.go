package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"vr2osc/internal/actions"
	"vr2osc/internal/osc"
)

// ============================================================================
// Polling Driver
// ============================================================================
// One tick: refresh the input source, evaluate every action state in
// declaration order, and send whatever they produced as a single bundle.
// The driver owns its action states; Tick must not be called concurrently.
// ============================================================================

// DriverConfig carries the optional collaborators of a Driver.
type DriverConfig struct {
	Logger  *slog.Logger
	Metrics *Metrics

	// OnSend, if set, is called with the messages of every bundle handed to
	// the sink. The slice is reused on the next tick.
	OnSend func(msgs []osc.Message)

	// Addr labels transport errors. Defaults to "sink".
	Addr string
}

// Driver runs the per-tick polling cycle.
type Driver struct {
	src    InputSource
	sink   Sink
	logger *slog.Logger
	m      *Metrics
	onSend func([]osc.Message)
	addr   string

	groups []GroupHandle
	states []*ActionState

	// reused between ticks
	msgs     []osc.Message
	elements [][]byte
	scratch  []byte
	buf      []byte
}

// NewDriver resolves every group and action handle up front. Any resolution
// failure is returned as *InputSourceError.
func NewDriver(src InputSource, sink Sink, groups []actions.Group, cfg DriverConfig) (*Driver, error) {
	if src == nil {
		return nil, errors.New("input source is nil")
	}
	if sink == nil {
		return nil, errors.New("sink is nil")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	addr := cfg.Addr
	if addr == "" {
		addr = "sink"
	}

	d := &Driver{
		src:    src,
		sink:   sink,
		logger: logger,
		m:      cfg.Metrics,
		onSend: cfg.OnSend,
		addr:   addr,
	}

	for _, g := range groups {
		gh, err := src.ResolveGroup(g.Path())
		if err != nil {
			return nil, asSourceError(g.Path(), err)
		}
		d.groups = append(d.groups, gh)

		for _, a := range g.Actions {
			path := g.ActionPath(a)
			ah, err := src.ResolveAction(path)
			if err != nil {
				return nil, asSourceError(path, err)
			}
			d.states = append(d.states, NewActionState(g.ID, a, ah))
		}
	}

	logger.Debug("driver ready", "groups", len(d.groups), "actions", len(d.states))
	return d, nil
}

func asSourceError(path string, err error) error {
	var srcErr *InputSourceError
	if errors.As(err, &srcErr) {
		return err
	}
	return &InputSourceError{Path: path, Err: err}
}

// States returns the action states in evaluation order.
func (d *Driver) States() []*ActionState { return d.states }

// Tick performs one polling cycle. It returns the error that stopped the
// tick from producing output, if any; such errors are already logged.
func (d *Driver) Tick() error {
	d.m.tick()

	if err := d.src.Refresh(d.groups); err != nil {
		d.m.refreshError()
		d.logger.Warn("input refresh failed, skipping tick", "error", err)
		return &InputSourceError{Path: "refresh", Err: err}
	}

	d.msgs = d.msgs[:0]
	for _, st := range d.states {
		sample, err := d.sample(st)
		if err != nil {
			d.m.sampleError(st)
			d.logger.Debug("sample failed", "action", st.Path(), "error", err)
			sample = Sample{}
		}

		n := len(d.msgs)
		d.msgs = st.AppendMessages(d.msgs, sample)
		if added := len(d.msgs) - n; added > 0 {
			d.m.messages(st, added)
		}
	}

	if len(d.msgs) == 0 {
		return nil
	}

	d.encode()

	if err := d.sink.Send(d.buf); err != nil {
		d.m.sendError()
		terr := &TransportError{Addr: d.addr, Err: err}
		d.logger.Warn("bundle dropped", "error", terr, "messages", len(d.msgs))
		return terr
	}

	d.m.bundle(len(d.buf))
	if d.onSend != nil {
		d.onSend(d.msgs)
	}
	return nil
}

func (d *Driver) sample(st *ActionState) (Sample, error) {
	if st.Kind() == actions.KindAnalog {
		s, err := d.src.SampleAnalog(st.Handle())
		return s.Sample(), err
	}
	s, err := d.src.SampleDigital(st.Handle())
	return s.Sample(), err
}

// encode writes every pending message into one bundle in d.buf.
func (d *Driver) encode() {
	d.scratch = d.scratch[:0]
	d.elements = d.elements[:0]
	for _, m := range d.msgs {
		start := len(d.scratch)
		d.scratch = osc.AppendMessage(d.scratch, m.Address, m.Args)
		d.elements = append(d.elements, d.scratch[start:])
	}

	d.buf = osc.AppendBundle(d.buf[:0], d.elements)
}

// Run calls Tick every interval until ctx is done.
func (d *Driver) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("invalid tick interval %s", interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	d.logger.Info("polling started", "interval", interval, "actions", len(d.states))

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("polling stopped")
			return nil
		case <-ticker.C:
			_ = d.Tick()
		}
	}
}
