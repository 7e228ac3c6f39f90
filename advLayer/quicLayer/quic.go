/*
Package quicLayer implements the quic transport for advLayer.

quic 是 IsSuper 的: 它自己处理 传输层拨号 和 tls 握手, 所以外部不需要给它
underlay, 也不需要 tlsLayer 的参与。
*/
package quicLayer

import (
	"crypto/tls"
	"time"

	"github.com/driftline/driftline/advLayer"
	"github.com/quic-go/quic-go"
)

func init() {
	advLayer.RegisterProtocol("quic", Creator{})
}

const (
	common_maxidletimeout       = time.Second * 45
	common_HandshakeIdleTimeout = time.Second * 8
	common_keepAlivePeriod      = time.Second * 15

	// 一个 Connection 中 stream越多, 性能越低, 因此限制一下;
	// 满了就再开一条 Connection.
	maxStreamCountInOneConn = 4
)

var (
	AlpnList = []string{"h3"}

	common_DialConfig = quic.Config{
		HandshakeIdleTimeout: common_HandshakeIdleTimeout,
		MaxIdleTimeout:       common_maxidletimeout,
		KeepAlivePeriod:      common_keepAlivePeriod,
	}
)

func isActive(s quic.Connection) bool {
	select {
	case <-s.Context().Done():
		return false
	default:
		return true
	}
}

type Creator struct{}

func (Creator) ProtocolName() string { return "quic" }

func (Creator) Capability() int { return advLayer.CapabilityFull }

func (Creator) NewClientFromConf(conf *advLayer.Conf) (advLayer.Client, error) {
	var tlsConf tls.Config
	if conf.TlsConf != nil {
		tlsConf = *conf.TlsConf.Clone()
	} else {
		tlsConf.ServerName = conf.Host
	}
	if len(tlsConf.NextProtos) == 0 {
		tlsConf.NextProtos = AlpnList
	}
	return NewClient(&conf.Addr, tlsConf, conf.IsEarly), nil
}

func (Creator) GetDefaultAlpn() (alpn string, mustUse bool) {
	return "h3", true
}

func (Creator) IsMux() bool { return true }

func (Creator) IsSuper() bool { return true }
