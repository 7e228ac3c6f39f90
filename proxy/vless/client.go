package vless

import (
	"io"
	"net"

	"github.com/driftline/driftline/netLayer"
	"github.com/driftline/driftline/proxy"
	"github.com/driftline/driftline/utils"
)

func init() {
	proxy.RegisterClient(Name, ClientCreator{})
}

type Client struct {
	proxy.Base

	user [16]byte
}

type ClientCreator struct{}

func (ClientCreator) NewClient(dc *proxy.DialConf) (proxy.Client, error) {

	id, err := utils.StrToUUID(dc.Uuid)
	if err != nil {
		return nil, utils.ErrInErr{ErrDesc: "vless: bad uuid", ErrDetail: err, Data: dc.Uuid}
	}

	c := Client{
		user: id,
	}
	c.ConfigCommon(&dc.CommonConf)

	return &c, nil
}

func (c *Client) Name() string { return Name }

// Handshake 是“乐观”的: 包头与 firstPayload 合并在一次Write中发出,
// 不等待服务端任何回应。认证失败时 服务端只会静默关闭连接, 从客户端角度看
// 与网络故障无法区分, 所以 UserConn 读首个回包时自带 ResponseTimeout 兜底。
func (c *Client) Handshake(underlay net.Conn, firstPayload []byte, target netLayer.Addr) (io.ReadWriteCloser, error) {

	if underlay == nil {
		return nil, utils.ErrNilParameter
	}

	port := target.Port
	addr, atyp := target.AddressBytes()
	if atyp == 0 {
		return nil, utils.ErrInErr{ErrDesc: "vless: bad target", ErrDetail: utils.ErrWrongParameter, Data: target.String()}
	}

	buf := utils.GetBuf()
	buf.WriteByte(0) //version
	buf.Write(c.user[:])
	buf.WriteByte(0)      //addon length
	buf.WriteByte(CmdTCP) //cmd

	buf.WriteByte(byte(uint16(port) >> 8))
	buf.WriteByte(byte(uint16(port) << 8 >> 8))

	buf.WriteByte(atyp)
	buf.Write(addr)

	if len(firstPayload) > 0 {
		buf.Write(firstPayload)
	}

	_, err := underlay.Write(buf.Bytes())

	utils.PutBuf(buf)

	if err != nil {
		return nil, err
	}

	return &UserConn{
		Conn: underlay,
		uuid: c.user,
	}, nil
}
