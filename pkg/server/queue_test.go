package server

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnQueue(t *testing.T) {
	addr := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 8443}
	q := newConnQueue(addr)
	assert.Equal(t, addr, q.Addr())

	a, b := net.Pipe()
	defer b.Close()

	pushed := make(chan error, 1)
	go func() { pushed <- q.push(a) }()

	got, err := q.Accept()
	require.NoError(t, err)
	assert.Same(t, a, got)
	require.NoError(t, <-pushed)

	require.NoError(t, q.Close())
	require.NoError(t, q.Close())

	_, err = q.Accept()
	assert.ErrorIs(t, err, net.ErrClosed)
	assert.ErrorIs(t, q.push(a), net.ErrClosed)
}

func TestConnQueue_CloseUnblocksPush(t *testing.T) {
	q := newConnQueue(nil)
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	pushed := make(chan error, 1)
	go func() { pushed <- q.push(a) }()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case err := <-pushed:
		assert.ErrorIs(t, err, net.ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("push still blocked after Close")
	}
}
