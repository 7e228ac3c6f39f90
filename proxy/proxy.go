/*
Package proxy defines the outbound proxy client contract and the common parts
shared by every protocol implementation.

一个 Client 掌握从最底层的tcp等到最上层的 代理协议间的所有数据;
一旦一个 Client 被完整定义，则它的数据的流向就被完整确定了.
*/
package proxy

import (
	"errors"
	"io"
	"net"

	"github.com/driftline/driftline/advLayer"
	"github.com/driftline/driftline/netLayer"
	"github.com/driftline/driftline/tlsLayer"
)

// 乐观协议发出请求后, 时限内没等到服务端的首个回包。
// 从客户端角度 无法区分认证失败与网络故障。
var ErrNoResponseInTime = errors.New("no response in time")

// Client 用于向 服务端 拨号.
// 服务端是一种 “泛目标”代理，所以我们客户端的 Handshake 要传入目标地址,
// 来告诉它 我们 想要到达的 目标地址.
//
// firstPayload 可为 nil; 若给出, 协议实现应尽量把它与自己的包头 合并在一次Write中
// 发出 (0-rtt 风格), 以减少可探测的长度特征.
type Client interface {
	BaseInterface

	Handshake(underlay net.Conn, firstPayload []byte, target netLayer.Addr) (io.ReadWriteCloser, error)
}

// BaseInterface 给一个节点 提供 网络层到高级层 的支持。
// 所有实现都应内嵌 Base.
type BaseInterface interface {
	Name() string       //代理协议名称, 如vless
	MiddleName() string //其它层所使用的协议，前后被加了加号，如 +tls+ws+

	//网络层/传输层; 拨号地址, tcp/udp为 ip:port/host:port 形式, unix domain socket 则是文件路径
	AddrStr() string
	SetAddrStr(string)
	Network() string

	GetTag() string

	GetDialConf() *DialConf

	//tls层
	SetUseTLS()
	IsUseTLS() bool
	GetTLS_Client() *tlsLayer.Client
	SetTLS_Client(*tlsLayer.Client)

	//高级层
	AdvancedLayer() string //如果使用了ws、h2 等，这个要返回相应名称
	GetAdvClient() advLayer.Client
	SetAdvClient(advLayer.Client)

	// quic 这种“超级协议”直接接管 传输层拨号和tls握手.
	IsHandleInitialLayers() bool

	//如果用了 h2, quic, smux 等, 则此方法返回true
	IsMux() bool

	Stop()
}

// GetFullName 可以完整表示 一个 代理节点的 层级.
// An Example of a full name:  tcp+tls+ws+vless
func GetFullName(b BaseInterface) string {
	if n := b.Name(); n == DirectName || n == RejectName {
		return n
	} else {
		return b.Network() + b.MiddleName() + n
	}
}

// return GetFullName(b) + "://" + b.AddrStr()
func GetVSI_url(b BaseInterface) string {
	return GetFullName(b) + "://" + b.AddrStr()
}
