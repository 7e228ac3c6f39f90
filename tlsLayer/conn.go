package tlsLayer

import (
	"net"
)

// Conn 包装一个已完成握手的 tls 连接, 额外记录协商结果。
type Conn struct {
	net.Conn

	tlsType int
	alpn    string
}

func (c *Conn) AlpnProtocol() string {
	return c.alpn
}

func (c *Conn) TlsType() int {
	return c.tlsType
}
