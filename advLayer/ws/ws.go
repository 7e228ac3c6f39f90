/*
Package ws implements the websocket camouflage client for advLayer.

websocket rfc: https://datatracker.ietf.org/doc/html/rfc6455/

gobwas包只支持http1.1, 所以如果使用nginx前置，确保 proxy_http_version 1.1;
*/
package ws

import (
	"github.com/driftline/driftline/advLayer"
)

// 为了避免黑客攻击,我们固定earlydata最大值为2048
const MaxEarlyDataLen = 2048

// 2048 /3 = 682.6666...  (682 又 三分之二), 683 * 4 = 2732
const MaxEarlyDataLen_Base64 = 2732

func init() {
	advLayer.RegisterProtocol("ws", Creator{})
}

type Creator struct{}

func (Creator) ProtocolName() string { return "ws" }

func (Creator) Capability() int { return advLayer.CapabilityFull }

func (Creator) NewClientFromConf(conf *advLayer.Conf) (advLayer.Client, error) {
	hn := conf.Host
	if conf.Addr.Network == "unix" {
		hn = ""
	}
	return NewClient(hn, conf.Path, conf.Headers, conf.IsEarly)
}

func (Creator) GetDefaultAlpn() (alpn string, mustUse bool) {
	return "http/1.1", false
}

func (Creator) IsMux() bool {
	return false
}

func (Creator) IsSuper() bool {
	return false
}
