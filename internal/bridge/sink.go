package bridge

import (
	"fmt"
	"net"
	"strconv"
	"sync"
)

// UDPSink sends each packet as one datagram to a fixed destination. The
// socket is unconnected: an ICMP port-unreachable caused by an earlier
// datagram never fails a later send.
type UDPSink struct {
	mu    sync.Mutex
	conn  *net.UDPConn
	raddr *net.UDPAddr
	addr  string
}

// NewUDPSink resolves host:port once and opens an unbound local UDP socket.
func NewUDPSink(host string, port int) (*UDPSink, error) {
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid destination port %d", port)
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return nil, fmt.Errorf("open socket for %s: %w", addr, err)
	}
	return &UDPSink{conn: conn, raddr: raddr, addr: addr}, nil
}

// Addr returns the destination as host:port.
func (s *UDPSink) Addr() string { return s.addr }

// Send writes packet as a single datagram. Errors are returned as-is; the
// caller decides whether to drop.
func (s *UDPSink) Send(packet []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return net.ErrClosed
	}
	_, err := s.conn.WriteToUDP(packet, s.raddr)
	return err
}

// Close releases the socket. Further sends fail with net.ErrClosed.
func (s *UDPSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
