package advLayer

import (
	"net"

	"github.com/driftline/driftline/utils"
	"go.uber.org/zap"
)

func init() {
	// mkcp 在本构建中仅以 直通 形式存在: 允许配置, 但不提供伪装效果。
	RegisterProtocol("mkcp", PassThroughCreator{name: "mkcp"})
}

// PassThroughCreator 为 尚未真正实现的协议 提供一个 原样透传 的实现。
// 与 Unavailable 不同, 配置它不算错误; 但用户必须知道 数据是明着走的。
type PassThroughCreator struct {
	name string
}

func (c PassThroughCreator) ProtocolName() string { return c.name }
func (PassThroughCreator) Capability() int        { return CapabilityPassThrough }
func (PassThroughCreator) GetDefaultAlpn() (string, bool) {
	return "", false
}
func (PassThroughCreator) IsMux() bool   { return false }
func (PassThroughCreator) IsSuper() bool { return false }

func (c PassThroughCreator) NewClientFromConf(conf *Conf) (Client, error) {
	if ce := utils.CanLogWarn("advLayer protocol is pass-through in this build, no camouflage applied"); ce != nil {
		ce.Write(zap.String("protocol", c.name))
	}
	return &passThroughClient{}, nil
}

type passThroughClient struct{}

func (*passThroughClient) IsMux() bool   { return false }
func (*passThroughClient) IsEarly() bool { return false }
func (*passThroughClient) IsSuper() bool { return false }

func (*passThroughClient) Handshake(underlay net.Conn, payload []byte) (net.Conn, error) {
	if len(payload) > 0 {
		if _, err := underlay.Write(payload); err != nil {
			return nil, err
		}
	}
	return underlay, nil
}
