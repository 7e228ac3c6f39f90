// Package trojan implements proxy.Client with the trojan protocol.
//
// See https://trojan-gfw.github.io/trojan/protocol .
package trojan

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net"

	"github.com/driftline/driftline/netLayer"
	"github.com/driftline/driftline/utils"
)

const Name = "trojan"

// trojan 的 atyp 采用 socks5 的取值, 与 vless 的 1/2/3 不同.
const (
	ATypIP4    = 0x1
	ATypDomain = 0x3
	ATypIP6    = 0x4
)

const (
	CmdConnect      = 0x01
	CmdUDPAssociate = 0x03
)

var crlf = []byte{0x0d, 0x0a}

func SHA224(password string) (r [28]byte) {
	hash := sha256.New224()
	hash.Write([]byte(password))
	copy(r[:], hash.Sum(nil))
	return
}

// trojan 的前56字节 是 sha224的28字节 每字节 转义成 ascii的 表示16进制的 两个字符
func SHA224_hexStringBytes(password string) []byte {
	hash := sha256.New224()
	hash.Write([]byte(password))
	val := hash.Sum(nil)
	bs := make([]byte, 56)
	hex.Encode(bs, val)
	return bs
}

func WriteTargetToBuf(target netLayer.Addr, buf *bytes.Buffer) {
	if len(target.IP) > 0 {
		if ip4 := target.IP.To4(); ip4 == nil {
			buf.WriteByte(ATypIP6)
			buf.Write(target.IP)
		} else {
			buf.WriteByte(ATypIP4)
			buf.Write(ip4)
		}
	} else if l := len(target.Name); l > 0 {
		buf.WriteByte(ATypDomain)
		buf.WriteByte(byte(l))
		buf.WriteString(target.Name)
	}

	buf.WriteByte(byte(target.Port >> 8))
	buf.WriteByte(byte(target.Port << 8 >> 8))
	buf.Write(crlf)
}

// 依照trojan协议的格式读取 地址的域名、ip、port信息
func GetAddrFromReader(buf utils.ByteReader) (addr netLayer.Addr, err error) {
	var b1 byte
	b1, err = buf.ReadByte()
	if err != nil {
		return
	}
	switch b1 {
	case ATypDomain:
		var b2 byte
		b2, err = buf.ReadByte()
		if err != nil {
			return
		}
		if b2 == 0 {
			err = errors.New("got ATypDomain but domain length is marked to be 0")
			return
		}
		bs := make([]byte, int(b2))
		var n int
		n, err = io.ReadFull(buf, bs)
		if err != nil {
			return
		}
		addr.Name = string(bs[:n])
	case ATypIP4:
		bs := make([]byte, net.IPv4len)
		_, err = io.ReadFull(buf, bs)
		if err != nil {
			return
		}
		addr.IP = bs
	case ATypIP6:
		bs := make([]byte, net.IPv6len)
		_, err = io.ReadFull(buf, bs)
		if err != nil {
			return
		}
		addr.IP = bs
	default:
		err = utils.ErrInvalidData
		return
	}

	pb1, err := buf.ReadByte()
	if err != nil {
		return
	}
	pb2, err := buf.ReadByte()
	if err != nil {
		return
	}
	port := uint16(pb1)<<8 + uint16(pb2)
	if port == 0 {
		err = utils.ErrInvalidData
		return
	}
	addr.Port = int(port)
	return
}
