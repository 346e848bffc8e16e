package udp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"ledremote/internal/core"
	"ledremote/internal/logging"
)

// maxDatagram is large enough that an over-long datagram is never truncated
// down to a valid length.
const maxDatagram = 1500

// Handler receives every decoded colour.
type Handler func(c core.Color)

// DropHandler is told about every discarded datagram.
type DropHandler func(reason DropReason)

// Listener reads datagrams from a UDP socket and decodes them.
type Listener struct {
	addr   string
	handle Handler
	drop   DropHandler
	log    *logrus.Entry

	mu   sync.Mutex
	conn net.PacketConn
}

// NewListener creates a listener for addr (host:port). drop may be nil.
func NewListener(addr string, handle Handler, drop DropHandler) *Listener {
	if drop == nil {
		drop = func(DropReason) {}
	}
	return &Listener{
		addr:   addr,
		handle: handle,
		drop:   drop,
		log:    logging.For("udp"),
	}
}

// Listen binds the socket. It is separate from Serve so callers can learn
// the bound address before serving.
func (l *Listener) Listen() error {
	conn, err := net.ListenPacket("udp", l.addr)
	if err != nil {
		return fmt.Errorf("listen udp %s: %w", l.addr, err)
	}
	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()
	l.log.WithField("addr", conn.LocalAddr().String()).Info("listening for datagrams")
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

// Serve reads datagrams until ctx is cancelled.
func (l *Listener) Serve(ctx context.Context) error {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		return errors.New("udp listener not bound")
	}

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, maxDatagram)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			l.log.WithError(err).Warn("read failed")
			continue
		}
		c, reason, ok := Decode(buf[:n])
		if !ok {
			l.drop(reason)
			continue
		}
		l.handle(c)
	}
}

// Send writes a single toggle datagram for c to addr.
func Send(addr string, c core.Color) error {
	payload, err := Encode(c)
	if err != nil {
		return err
	}
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("send to %s: %w", addr, err)
	}
	return nil
}
