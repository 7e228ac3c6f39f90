package proxy

import (
	"strconv"
)

// CommonConf 是各个代理协议配置中共有的部分。
// 如果新协议有其他新项，可以放入 Extra.
type CommonConf struct {
	Tag      string   `toml:"tag"`      //可选
	Protocol string   `toml:"protocol"` //协议名, 如 vless, trojan, direct, reject
	Uuid     string   `toml:"uuid"`     //一个用户的唯一标识，vless用uuid, trojan用密码
	Host     string   `toml:"host"`     //ip 或域名. 若unix domain socket 则为文件路径
	IP       string   `toml:"ip"`       //给出Host后，该项可以省略; 既有Host又有ip的情况比较适合cdn
	Port     int      `toml:"port"`     //若Network不为 unix , 则port项必填
	TLS      bool     `toml:"tls"`      //可选
	Insecure bool     `toml:"insecure"` //tls 是否不验证服务端证书
	TlsType  string   `toml:"tls_type"` //tls 实现: tls, utls; 不填则用本构建的默认值
	CertPin  string   `toml:"cert_pin"` //服务端叶证书 sha256 的 hex, 可选
	Alpn     []string `toml:"alpn"`

	Network string `toml:"network"` //默认使用tcp, network可选值为 tcp, udp, unix;

	AdvancedLayer string `toml:"advancedLayer"` //可不填，或者为 ws, h2, hchunk, quic, smux, mkcp

	Path string `toml:"path"` //ws/h2/hchunk 的 path。为了简便我们在同一位置给出.

	Headers map[string][]string `toml:"headers"` //ws/h2/hchunk 的自定义 http header

	EarlyData bool `toml:"early_data"` //ws 0-rtt

	Extra map[string]interface{} `toml:"extra"` //用于包含任意其它数据.
}

func (cc *CommonConf) GetAddrStr() string {
	switch cc.Network {
	case "unix":
		return cc.Host

	default:
		if cc.Host != "" {
			return cc.Host + ":" + strconv.Itoa(cc.Port)
		}
		return cc.IP + ":" + strconv.Itoa(cc.Port)
	}
}

// 若为unix, 返回Host，否则返回 ip:port / host:port; 和 GetAddrStr 的区别是，
// 它优先使用ip，其次再使用host. 拨号时应使用本函数。
func (cc *CommonConf) GetAddrStrForDial() string {
	switch cc.Network {
	case "unix":
		return cc.Host

	default:
		if cc.IP != "" {
			return cc.IP + ":" + strconv.Itoa(cc.Port)
		}
		return cc.Host + ":" + strconv.Itoa(cc.Port)
	}
}

// 拨号所使用的设置, 使用者可被称为 dialer 或者 outClient
// CommonConf.Host , CommonConf.IP, CommonConf.Port 为拨号地址与端口
type DialConf struct {
	CommonConf
	Utls bool `toml:"utls"` //等价于 tls_type = "utls"
}
