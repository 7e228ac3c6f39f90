package proxy

import (
	"io"
	"net"

	"github.com/driftline/driftline/netLayer"
)

const DirectName = "direct"

// direct 的拨号地址就是 目标地址本身, 所以 AddrStr 保持为空,
// 由调度方直接向 target 拨号。
type DirectClient struct {
	Base
}

type DirectCreator struct{}

func (DirectCreator) NewClient(dc *DialConf) (Client, error) {
	d := &DirectClient{}
	d.Tag = dc.Tag
	d.network = dc.Network
	if d.network == "" {
		d.network = "tcp"
	}
	return d, nil
}

func (*DirectClient) Name() string {
	return DirectName
}

// 零握手字节: underlay 本身就是到 target 的连接, 直接透传即可。
func (*DirectClient) Handshake(underlay net.Conn, firstPayload []byte, target netLayer.Addr) (io.ReadWriteCloser, error) {
	if len(firstPayload) > 0 {
		if _, err := underlay.Write(firstPayload); err != nil {
			return nil, err
		}
	}
	return underlay, nil
}
