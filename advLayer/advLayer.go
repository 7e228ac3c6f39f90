/*
Package advLayer contains subpackages for the advanced layer, the camouflage
and multiplexing protocols that run between tls and the proxy protocol.
*/
package advLayer

import (
	"crypto/tls"
	"errors"
	"net"

	"github.com/driftline/driftline/netLayer"
)

var ErrPreviousFull = errors.New("previous conn full")

// 能力等级。
// PassThrough 的协议 可以配置, 但本构建中它不做任何事, 数据原样通过;
// Unavailable 的协议 在配置解析阶段就必须被整体拒绝, 绝不允许静默降级。
const (
	CapabilityFull int = iota
	CapabilityPassThrough
	CapabilityUnavailable
)

// 所有已注册的 advLayer 协议。注册用 RegisterProtocol.
var ProtocolsMap = make(map[string]Creator)

func RegisterProtocol(name string, c Creator) {
	ProtocolsMap[name] = c
}

// GetCreator 返回已注册的协议的 Creator; 未注册的协议 视为 Unavailable.
func GetCreator(name string) (Creator, bool) {
	c, ok := ProtocolsMap[name]
	return c, ok
}

type Creator interface {
	ProtocolName() string

	//本构建中该协议的能力等级.
	Capability() int

	NewClientFromConf(conf *Conf) (Client, error)

	GetDefaultAlpn() (alpn string, mustUse bool)

	IsMux() bool

	IsSuper() bool
}

type Conf struct {
	TlsConf *tls.Config //for quic

	Host    string
	Addr    netLayer.Addr
	Path    string
	Headers map[string][]string
	IsEarly bool           //is 0-rtt; for ws.
	Extra   map[string]any //实现特有的额外配置
}

type Client interface {
	IsMux() bool //if IsMux, then Client is a MuxClient, or it's a SingleClient
	IsEarly() bool

	IsSuper() bool // quic handles transport layer dialing and tls layer handshake directly.
}

// ws (h1.1), hchunk
type SingleClient interface {
	Client

	//it's 0-rtt if payload is provided
	Handshake(underlay net.Conn, payload []byte) (net.Conn, error)
}

// h2 / quic / smux
type MuxClient interface {
	Client

	//if IsSuper, underlay should be nil
	GetCommonConn(underlay net.Conn) (conn any, err error)

	DialSubConn(underlay any) (net.Conn, error)

	ProcessWhenFull(underlay any) //for quic
}
