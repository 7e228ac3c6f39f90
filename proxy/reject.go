package proxy

import (
	"errors"
	"io"
	"net"

	"github.com/driftline/driftline/netLayer"
)

const RejectName = "reject"

// 被策略拒绝的连接 以本错误结束。
var ErrRejected = errors.New("rejected by policy")

// RejectClient 直接关闭传入的连接。
// 对应 v2ray的 blackhole, 但我们不实现 http响应式的 假回应, 而是静默关闭。
type RejectClient struct {
	Base
}

type RejectCreator struct{}

func (RejectCreator) NewClient(dc *DialConf) (Client, error) {
	r := &RejectClient{}
	r.Tag = dc.Tag
	return r, nil
}

func (*RejectClient) Name() string {
	return RejectName
}

func (*RejectClient) Handshake(underlay net.Conn, firstPayload []byte, target netLayer.Addr) (io.ReadWriteCloser, error) {
	if underlay != nil {
		underlay.Close()
	}
	return nil, ErrRejected
}
