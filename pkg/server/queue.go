package server

import (
	"net"
	"sync"
)

// connQueue is a net.Listener fed with connections that already completed
// their handshake. It lets one http.Server serve every HTTP/1.1 connection.
type connQueue struct {
	addr  net.Addr
	conns chan net.Conn
	done  chan struct{}
	once  sync.Once
}

func newConnQueue(addr net.Addr) *connQueue {
	return &connQueue{
		addr:  addr,
		conns: make(chan net.Conn),
		done:  make(chan struct{}),
	}
}

// push hands conn to the accepting server. It fails once the queue is
// closed; the caller still owns conn then.
func (q *connQueue) push(conn net.Conn) error {
	select {
	case <-q.done:
		return net.ErrClosed
	default:
	}

	select {
	case q.conns <- conn:
		return nil
	case <-q.done:
		return net.ErrClosed
	}
}

func (q *connQueue) Accept() (net.Conn, error) {
	select {
	case conn := <-q.conns:
		return conn, nil
	case <-q.done:
		return nil, net.ErrClosed
	}
}

func (q *connQueue) Close() error {
	q.once.Do(func() {
		close(q.done)
	})
	return nil
}

func (q *connQueue) Addr() net.Addr {
	return q.addr
}
