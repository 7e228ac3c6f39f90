package netLayer

import (
	"context"
	"net"
	"time"
)

// 连接超时的默认值. 作为 Connecting 阶段的兜底; 上层一般会用 context 给出更准确的deadline.
var DialTimeout = time.Second * 8

// Dial dials the addr with DialTimeout.
func (a *Addr) Dial() (net.Conn, error) {
	return a.DialWithTimeout(DialTimeout)
}

func (a *Addr) DialWithTimeout(t time.Duration) (net.Conn, error) {
	network := a.Network
	if network == "" {
		network = "tcp"
	}
	return net.DialTimeout(network, a.String(), t)
}

// DialContext dials the addr, aborting as soon as ctx is done.
func (a *Addr) DialContext(ctx context.Context) (net.Conn, error) {
	network := a.Network
	if network == "" {
		network = "tcp"
	}
	d := net.Dialer{Timeout: DialTimeout}
	return d.DialContext(ctx, network, a.String())
}
