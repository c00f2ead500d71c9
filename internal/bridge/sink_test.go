package bridge

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vr2osc/internal/osc"
)

func TestUDPSink_SendsDatagram(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()
	port := pc.LocalAddr().(*net.UDPAddr).Port

	sink, err := NewUDPSink("127.0.0.1", port)
	require.NoError(t, err)
	defer sink.Close()

	packet := osc.EncodeBundle(osc.EncodeMessage("/x", osc.Int32(1)))
	require.NoError(t, sink.Send(packet))

	buf := make([]byte, 1024)
	require.NoError(t, pc.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := pc.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, packet, buf[:n])
}

func TestUDPSink_SurvivesReceiverRestart(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := pc.LocalAddr().String()
	port := pc.LocalAddr().(*net.UDPAddr).Port
	require.NoError(t, pc.Close())

	sink, err := NewUDPSink("127.0.0.1", port)
	require.NoError(t, err)
	defer sink.Close()

	// nobody listening: the kernel answers with port-unreachable
	require.NoError(t, sink.Send(osc.EncodeMessage("/lost", osc.Int32(0))))
	time.Sleep(50 * time.Millisecond)

	pc, err = net.ListenPacket("udp", addr)
	require.NoError(t, err)
	defer pc.Close()

	packet := osc.EncodeBundle(osc.EncodeMessage("/press", osc.Bool(true)))
	require.NoError(t, sink.Send(packet))

	buf := make([]byte, 1024)
	require.NoError(t, pc.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := pc.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, packet, buf[:n])
}

func TestUDPSink_InvalidPort(t *testing.T) {
	_, err := NewUDPSink("127.0.0.1", 0)
	assert.Error(t, err)
	_, err = NewUDPSink("127.0.0.1", 70000)
	assert.Error(t, err)
}

func TestUDPSink_SendAfterClose(t *testing.T) {
	sink, err := NewUDPSink("127.0.0.1", 9)
	require.NoError(t, err)
	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())

	err = sink.Send([]byte{0, 0, 0, 0})
	assert.True(t, errors.Is(err, net.ErrClosed))
	assert.Equal(t, "127.0.0.1:9", sink.Addr())
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	st := NewActionState("g", rotateAction(), 1)
	assert.NotPanics(t, func() {
		m.tick()
		m.refreshError()
		m.sampleError(st)
		m.messages(st, 2)
		m.sendError()
		m.bundle(64)
	})
}
