package proxy

import (
	"strings"

	"github.com/driftline/driftline/advLayer"
	"github.com/driftline/driftline/tlsLayer"
)

// Base 实现 BaseInterface 中除了 Name 之外的其他方法.
// 规定，所有的proxy实现都要内嵌本struct.
// 在加载完配置文件后，一个dial所使用的全部层级就都是确定了的,
// 因为所有使用的层级都是确定的，就可以进行针对性优化.
type Base struct {
	Addr string
	TLS  bool
	Tag  string

	network string

	AdvancedL string

	tls_c *tlsLayer.Client
	advC  advLayer.Client

	dialConf *DialConf
}

func (b *Base) AddrStr() string {
	return b.Addr
}
func (b *Base) SetAddrStr(a string) {
	b.Addr = a
}

func (b *Base) Network() string {
	return b.network
}

func (b *Base) GetTag() string {
	return b.Tag
}

func (b *Base) GetDialConf() *DialConf {
	return b.dialConf
}

func (b *Base) MiddleName() string {
	var sb strings.Builder
	sb.WriteString("")

	if b.TLS {
		sb.WriteString("+tls")
	}
	if b.AdvancedL != "" {
		sb.WriteString("+")
		sb.WriteString(b.AdvancedL)
	}
	sb.WriteString("+")
	return sb.String()
}

func (b *Base) SetUseTLS() {
	b.TLS = true
}

func (b *Base) IsUseTLS() bool {
	return b.TLS
}

func (b *Base) GetTLS_Client() *tlsLayer.Client {
	return b.tls_c
}
func (b *Base) SetTLS_Client(c *tlsLayer.Client) {
	b.tls_c = c
}

func (b *Base) AdvancedLayer() string {
	return b.AdvancedL
}

func (b *Base) GetAdvClient() advLayer.Client {
	return b.advC
}
func (b *Base) SetAdvClient(c advLayer.Client) {
	b.advC = c
}

func (b *Base) IsHandleInitialLayers() bool {
	return b.advC != nil && b.advC.IsSuper()
}

func (b *Base) IsMux() bool {
	return b.advC != nil && b.advC.IsMux()
}

func (b *Base) Stop() {}

// ConfigCommon 按照配置文件初始化 网络层的基本信息。
func (b *Base) ConfigCommon(cc *CommonConf) {
	b.Addr = cc.GetAddrStrForDial()
	b.Tag = cc.Tag
	b.network = cc.Network
	if b.network == "" {
		b.network = "tcp"
	}
	b.AdvancedL = cc.AdvancedLayer
}
