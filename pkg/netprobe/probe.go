// Package netprobe answers whether the source site is reachable at all.
package netprobe

import (
	"context"
	"net"
	"time"
)

// Prober reports network reachability
type Prober interface {
	Reachable(ctx context.Context) bool
}

// TCPProber checks reachability by opening a TCP connection
type TCPProber struct {
	// Address is host:port, e.g. "www.pinterest.com:80"
	Address string
	// Timeout bounds the connection attempt
	Timeout time.Duration
}

// NewTCPProber creates a prober for address
func NewTCPProber(address string, timeout time.Duration) *TCPProber {
	return &TCPProber{Address: address, Timeout: timeout}
}

// Reachable reports whether a connection to Address could be opened
func (p *TCPProber) Reachable(ctx context.Context) bool {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", p.Address)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// ProberFunc adapts a function to the Prober interface
type ProberFunc func(ctx context.Context) bool

// Reachable calls f
func (f ProberFunc) Reachable(ctx context.Context) bool {
	return f(ctx)
}
