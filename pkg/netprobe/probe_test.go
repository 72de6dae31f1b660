package netprobe

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTCPProberReachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	p := NewTCPProber(ln.Addr().String(), time.Second)
	assert.True(t, p.Reachable(context.Background()))
}

func TestTCPProberUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	p := NewTCPProber(addr, time.Second)
	assert.False(t, p.Reachable(context.Background()))
}

func TestTCPProberCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewTCPProber("127.0.0.1:1", time.Second)
	assert.False(t, p.Reachable(ctx))
}

func TestProberFunc(t *testing.T) {
	var p Prober = ProberFunc(func(context.Context) bool { return true })
	assert.True(t, p.Reachable(context.Background()))
}
