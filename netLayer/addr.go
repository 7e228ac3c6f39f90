/*
Package netLayer contains the network-layer model used by the whole engine:
the Addr type, dialing, the rule router and the bidirectional relay.
*/
package netLayer

import (
	"errors"
	"io"
	"net"
	"net/netip"
	"strconv"
	"strings"

	"github.com/driftline/driftline/utils"
)

// Atyp, for vless-style protocols; 注意与 trojan和socks5的区别, trojan和socks5的相同含义的值是1,3,4.
const (
	AtypIP4    byte = 1
	AtypDomain byte = 2
	AtypIP6    byte = 3
)

// 从 v2ray标准 的 123 转换到 socks5/trojan标准的 134.
func ATypeToSocks5Standard(atype byte) byte {
	if atype == 1 {
		return 1
	}
	return atype + 1
}

// Addr represents an address that you want to access by proxy. Either Name or
// IP is used exclusively. Network records the transport-layer protocol name.
type Addr struct {
	Network string
	Name    string // domain name
	IP      net.IP
	Port    int
}

// HashableAddr 可用作map的key.
type HashableAddr struct {
	Network, Name string
	netip.AddrPort
}

// addrStr格式一般为 host:port.
func NewAddr(addrStr string) (Addr, error) {
	if !strings.Contains(addrStr, ":") {
		return Addr{Name: addrStr}, nil
	}
	return NewAddrByHostPort(addrStr)
}

// hostPortStr格式 必须为 host:port，本函数不对此检查.
func NewAddrByHostPort(hostPortStr string) (Addr, error) {
	host, portStr, err := net.SplitHostPort(hostPortStr)
	if err != nil {
		return Addr{}, err
	}
	if host == "" {
		host = "127.0.0.1"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Addr{}, err
	}

	a := Addr{Port: port}
	if ip := net.ParseIP(host); ip != nil {
		a.IP = ip
	} else {
		a.Name = host
	}
	return a, nil
}

func NewAddrFromTCPAddr(addr *net.TCPAddr) Addr {
	return Addr{
		IP:      addr.IP,
		Port:    addr.Port,
		Network: "tcp",
	}
}

func (a *Addr) GetHashable() (ha HashableAddr) {
	theip := a.IP
	if i4 := a.IP.To4(); i4 != nil {
		theip = i4 //同一个ip的ipv6表示形式会导致相等比较失败, 所以能转成ipv4则必须转
	}
	ip, _ := netip.AddrFromSlice(theip)

	ha.AddrPort = netip.AddrPortFrom(ip, uint16(a.Port))
	ha.Network = a.Network
	ha.Name = a.Name
	return
}

// Return host:port string.
func (a *Addr) String() string {
	port := strconv.Itoa(a.Port)
	if a.IP == nil {
		return net.JoinHostPort(a.Name, port)
	}
	return net.JoinHostPort(a.IP.String(), port)
}

func (a *Addr) IsEmpty() bool {
	return a.Name == "" && len(a.IP) == 0 && a.Network == "" && a.Port == 0
}

func (a *Addr) GetNetIPAddr() (na netip.Addr) {
	if len(a.IP) < 1 {
		return
	}
	na, _ = netip.AddrFromSlice(a.IP)
	return
}

// Returned host string, prefering IP.
func (a *Addr) HostStr() string {
	if a.IP == nil {
		return a.Name
	}
	return a.IP.String()
}

// 如果a的ip不为空, 则会返回 AtypIP4 或 AtypIP6, 否则会返回 AtypDomain.
// 如果atyp类型是域名, 则第一字节为该域名的总长度, 其余字节为域名内容.
// 如果类型是ip, 则会拷贝出该ip数据的副本.
func (a *Addr) AddressBytes() (addr []byte, atyp byte) {

	if a.IP != nil {
		if ip4 := a.IP.To4(); ip4 != nil {
			addr = make([]byte, net.IPv4len)
			atyp = AtypIP4
			copy(addr[:], ip4)
		} else {
			addr = make([]byte, net.IPv6len)
			atyp = AtypIP6
			copy(addr[:], a.IP)
		}
	} else {
		if len(a.Name) > 255 {
			return nil, 0
		}
		addr = make([]byte, 1+len(a.Name))
		atyp = AtypDomain
		addr[0] = byte(len(a.Name))
		copy(addr[1:], a.Name)
	}

	return
}

// V2rayGetAddrFrom 依照 vless 协议的格式 依次读取 地址的 port, atyp, 域名/ip 信息.
func V2rayGetAddrFrom(buf utils.ByteReader) (addr Addr, err error) {

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

	var b1 byte
	b1, err = buf.ReadByte()
	if err != nil {
		return
	}

	switch b1 {
	case AtypDomain:
		var b2 byte
		b2, err = buf.ReadByte()
		if err != nil {
			return
		}
		if b2 == 0 {
			err = errors.New("got AtypDomain with domain length marked as 0")
			return
		}
		bs := make([]byte, int(b2))
		var n int
		n, err = io.ReadFull(buf, bs)
		if err != nil {
			return
		}
		addr.Name = string(bs[:n])

	case AtypIP4:
		bs := make([]byte, net.IPv4len)
		_, err = io.ReadFull(buf, bs)
		if err != nil {
			return
		}
		addr.IP = bs
	case AtypIP6:
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

	return
}
