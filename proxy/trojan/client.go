package trojan

import (
	"errors"
	"io"
	"net"

	"github.com/driftline/driftline/netLayer"
	"github.com/driftline/driftline/proxy"
	"github.com/driftline/driftline/utils"
)

//作为对照，可以参考 https://github.com/p4gefau1t/trojan-go/blob/master/tunnel/trojan/client.go

func init() {
	proxy.RegisterClient(Name, ClientCreator{})
}

type ClientCreator struct{}

func (ClientCreator) NewClient(dc *proxy.DialConf) (proxy.Client, error) {

	if dc.Uuid == "" {
		return nil, errors.New("trojan: password required")
	}

	c := Client{
		password_hexStringBytes: SHA224_hexStringBytes(dc.Uuid),
	}
	c.ConfigCommon(&dc.CommonConf)

	return &c, nil
}

type Client struct {
	proxy.Base
	password_hexStringBytes []byte
}

func (c *Client) Name() string {
	return Name
}

// trojan 握手是完全乐观的: 服务端对合法请求不发任何回应, 直接开始转发。
// 包头与 firstPayload 合并在一次Write中发出。
func (c *Client) Handshake(underlay net.Conn, firstPayload []byte, target netLayer.Addr) (io.ReadWriteCloser, error) {
	if target.Port <= 0 {
		return nil, errors.New("trojan Client Handshake failed, target port invalid")
	}

	buf := utils.GetBuf()
	buf.Write(c.password_hexStringBytes)
	buf.Write(crlf)
	buf.WriteByte(CmdConnect)
	WriteTargetToBuf(target, buf)

	if len(firstPayload) > 0 {
		buf.Write(firstPayload)
	}

	_, err := underlay.Write(buf.Bytes())
	utils.PutBuf(buf)
	if err != nil {
		return nil, err
	}

	return underlay, nil
}
