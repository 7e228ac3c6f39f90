/*
Package hchunk implements a chunked-http pseudo stream for advLayer.

它伪装成一次普通的 http/1.1 POST: 上行数据作为 chunked 请求body 持续发出,
下行数据从 响应body 里持续读出。一条底层连接 承载一个逻辑流, 所以这是一个
SingleClient。

对端先关哪个方向都不影响另一个方向的数据完整性。
*/
package hchunk

import (
	"strings"

	"github.com/driftline/driftline/advLayer"
)

func init() {
	advLayer.RegisterProtocol("hchunk", Creator{})
}

type Creator struct{}

func (Creator) ProtocolName() string { return "hchunk" }

func (Creator) Capability() int { return advLayer.CapabilityFull }

func (Creator) GetDefaultAlpn() (alpn string, mustUse bool) {
	return "http/1.1", false
}

func (Creator) IsMux() bool { return false }

func (Creator) IsSuper() bool { return false }

func (Creator) NewClientFromConf(conf *advLayer.Conf) (advLayer.Client, error) {
	path := conf.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	host := conf.Host
	if host == "" {
		host = conf.Addr.String()
	}
	return NewClient(host, path, conf.Headers), nil
}
