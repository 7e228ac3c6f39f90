/*
Package h2s implements a plain http2 stream transport for advLayer.

它就是一个 长期保持的 h2 POST 请求: 上行数据作请求body, 下行数据作响应body,
没有任何额外的帧封装。一条 tls 底层连接 上的 多个请求 自然复用 h2 的 stream,
所以这是一个 MuxClient。

参考 https://github.com/Dreamacro/clash/blob/master/transport/gun/gun.go 的思路,
但不含 grpc 的 5字节帧头 和 protobuf 封装。
*/
package h2s

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/driftline/driftline/advLayer"
)

const h2ContentType = "application/octet-stream"

func init() {
	advLayer.RegisterProtocol("h2", Creator{})
}

type Creator struct{}

func (Creator) ProtocolName() string {
	return "h2"
}

func (Creator) Capability() int { return advLayer.CapabilityFull }

func (Creator) GetDefaultAlpn() (alpn string, mustUse bool) {
	return "h2", true
}

func (Creator) IsMux() bool {
	return true
}

func (Creator) IsSuper() bool {
	return false
}

func (Creator) NewClientFromConf(conf *advLayer.Conf) (advLayer.Client, error) {
	path := conf.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	host := conf.Host
	if host == "" {
		host = conf.Addr.String()
	}

	c := &Client{
		path: path,
		host: host,
		handshakeRequest: http.Request{
			Method: http.MethodPost,
			URL: &url.URL{
				Scheme: "https",
				Host:   host,
				Path:   path,
			},
			Proto:      "HTTP/2",
			ProtoMajor: 2,
			ProtoMinor: 0,
			Header: http.Header{
				"Content-Type": []string{h2ContentType},
			},
		},
	}
	if len(conf.Headers) > 0 {
		for k, vs := range conf.Headers {
			c.handshakeRequest.Header[http.CanonicalHeaderKey(k)] = vs
		}
	}
	return c, nil
}
