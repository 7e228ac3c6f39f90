// Package vless provides vless v0 support for proxy.Client.
package vless

import (
	"errors"
	"net"
	"os"
	"time"

	"github.com/driftline/driftline/proxy"
	"github.com/driftline/driftline/utils"
)

const Name = "vless"

// CMD types
const (
	_ byte = iota
	CmdTCP
	CmdUDP
	CmdMux
)

// 服务端首个回包的等待上限。认证失败时 vless服务端只会保持沉默,
// 没有这个上限 连接会永远挂住。
var ResponseTimeout = time.Second * 4

// UserConn 是 客户端视角的 一条 vless v0 tcp 流。
// 写入是透明的; 服务端的第一个回复包 带有2字节数据头(版本号 与 addon长度),
// 在第一次Read时被剥掉。
type UserConn struct {
	net.Conn

	uuid    [16]byte
	version int

	isntFirstPacket bool

	leftover    []byte //首包中调用方缓冲区没装下的部分
	leftoverBuf []byte
}

func (uc *UserConn) GetProtocolVersion() int {
	return uc.version
}

func (uc *UserConn) GetIdentityStr() string {
	return utils.UUIDToStr(uc.uuid)
}

func (uc *UserConn) Write(p []byte) (int, error) {
	return uc.Conn.Write(p)
}

func (uc *UserConn) Read(p []byte) (int, error) {

	if len(uc.leftover) > 0 {
		n := copy(p, uc.leftover)
		uc.leftover = uc.leftover[n:]
		if len(uc.leftover) == 0 {
			utils.PutPacket(uc.leftoverBuf)
			uc.leftover = nil
			uc.leftoverBuf = nil
		}
		return n, nil
	}

	if !uc.isntFirstPacket {
		//先读取响应头. 回包迟迟不来多半是认证失败, 必须有时限

		uc.isntFirstPacket = true

		bs := utils.GetPacket()
		uc.Conn.SetReadDeadline(time.Now().Add(ResponseTimeout))
		n, e := uc.Conn.Read(bs)
		uc.Conn.SetReadDeadline(time.Time{})

		if e != nil {
			utils.PutPacket(bs)
			if errors.Is(e, os.ErrDeadlineExceeded) {
				return 0, utils.ErrInErr{ErrDesc: "vless response head didn't arrive in time", ErrDetail: proxy.ErrNoResponseInTime}
			}
			return 0, e
		}

		if n < 2 {
			utils.PutPacket(bs)
			return 0, errors.New("vless response head too short")
		}

		nCopied := copy(p, bs[2:n])
		if 2+nCopied < n {
			uc.leftoverBuf = bs
			uc.leftover = bs[2+nCopied : n]
		} else {
			utils.PutPacket(bs)
		}
		return nCopied, nil
	}

	return uc.Conn.Read(p)
}
