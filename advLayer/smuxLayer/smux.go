/*
Package smuxLayer implements stream multiplexing over a single underlay
connection for advLayer, using xtaci/smux.

与 quic 不同, smux 不是 IsSuper 的: 底层连接 由外部拨号并完成 tls 握手后传入,
我们只负责在其上切分 stream。
*/
package smuxLayer

import (
	"net"
	"time"

	"github.com/driftline/driftline/advLayer"
	"github.com/driftline/driftline/utils"
	"github.com/xtaci/smux"
)

func init() {
	advLayer.RegisterProtocol("smux", Creator{})
}

type Creator struct{}

func (Creator) ProtocolName() string { return "smux" }

func (Creator) Capability() int { return advLayer.CapabilityFull }

func (Creator) NewClientFromConf(conf *advLayer.Conf) (advLayer.Client, error) {
	return &Client{}, nil
}

func (Creator) GetDefaultAlpn() (alpn string, mustUse bool) {
	return
}

func (Creator) IsMux() bool { return true }

func (Creator) IsSuper() bool { return false }

var commonConfig = func() *smux.Config {
	c := smux.DefaultConfig()
	c.KeepAliveInterval = time.Second * 10
	c.KeepAliveTimeout = time.Second * 30
	return c
}()

type Client struct{}

func (*Client) IsMux() bool   { return true }
func (*Client) IsSuper() bool { return false }
func (*Client) IsEarly() bool { return false }

func (*Client) GetCommonConn(underlay net.Conn) (any, error) {
	if underlay == nil {
		return nil, utils.ErrNilParameter
	}
	session, err := smux.Client(underlay, commonConfig)
	if err != nil {
		return nil, utils.ErrInErr{ErrDesc: "smux client creation failed", ErrDetail: err}
	}
	return session, nil
}

func (*Client) DialSubConn(underlay any) (net.Conn, error) {
	session, ok := underlay.(*smux.Session)
	if !ok || session == nil {
		return nil, utils.ErrNilParameter
	}
	if session.IsClosed() {
		return nil, advLayer.ErrPreviousFull
	}
	stream, err := session.OpenStream()
	if err != nil {
		return nil, utils.ErrInErr{ErrDesc: "smux open stream failed", ErrDetail: err}
	}
	return stream, nil
}

func (*Client) ProcessWhenFull(underlay any) {
	if session, ok := underlay.(*smux.Session); ok && session != nil {
		session.Close()
	}
}
