package netLayer

const (
	// transport Layer

	TCP uint16 = 1 << iota
	UDP
	KCP
	Quic //quic是一个横跨多个层的协议，这里也算一个，毕竟与kcp类似

	UnknownNetwork uint16 = 0
)

func StrToTransportProtocol(s string) uint16 {
	switch s {
	case "tcp", "tcp4", "tcp6":
		return TCP
	case "udp", "udp4", "udp6":
		return UDP
	case "kcp":
		return KCP
	case "quic":
		return Quic
	}
	return UnknownNetwork
}
