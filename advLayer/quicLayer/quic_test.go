package quicLayer_test

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"testing"

	"github.com/quic-go/quic-go"

	"github.com/driftline/driftline/advLayer/quicLayer"
	"github.com/driftline/driftline/netLayer"
	"github.com/driftline/driftline/tlsLayer"
)

func startQuicEchoServer(t *testing.T) (addr string, closer func()) {
	tlsConf := &tls.Config{
		Certificates: tlsLayer.GenerateRandomTLSCert(),
		NextProtos:   []string{"h3"},
	}

	listener, err := quic.ListenAddr("127.0.0.1:0", tlsConf, nil)
	if err != nil {
		t.Log("quic listen failed", err)
		t.FailNow()
	}

	go func() {
		for {
			conn, err := listener.Accept(context.Background())
			if err != nil {
				return
			}
			go func(conn quic.Connection) {
				for {
					stream, err := conn.AcceptStream(context.Background())
					if err != nil {
						return
					}
					go func(s quic.Stream) {
						defer s.Close()
						io.Copy(s, s)
					}(stream)
				}
			}(conn)
		}
	}()

	return listener.Addr().String(), func() { listener.Close() }
}

func TestQuicStreams(t *testing.T) {
	addrStr, closer := startQuicEchoServer(t)
	defer closer()

	addr, err := netLayer.NewAddrByHostPort(addrStr)
	if err != nil {
		t.FailNow()
	}

	client := quicLayer.NewClient(&addr, tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{"h3"},
	}, false)

	common, err := client.GetCommonConn(nil)
	if err != nil || common == nil {
		t.Log("GetCommonConn failed", err)
		t.FailNow()
	}

	for i := 0; i < 3; i++ {
		sub, err := client.DialSubConn(common)
		if err != nil {
			t.Log("DialSubConn failed", err)
			t.FailNow()
		}

		msg := []byte{'q', byte('0' + i)}
		sub.Write(msg)

		back := make([]byte, len(msg))
		if _, err := io.ReadFull(sub, back); err != nil || string(back) != string(msg) {
			t.Log("echo mismatch", i, back, err)
			t.FailNow()
		}
		sub.Close()
	}
}

// 同一个 client 再次 GetCommonConn 应复用活跃的 session.
func TestQuicConnReuse(t *testing.T) {
	addrStr, closer := startQuicEchoServer(t)
	defer closer()

	addr, _ := netLayer.NewAddrByHostPort(addrStr)

	client := quicLayer.NewClient(&addr, tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{"h3"},
	}, false)

	c1, err := client.GetCommonConn(nil)
	if err != nil || c1 == nil {
		t.FailNow()
	}
	c2, err := client.GetCommonConn(nil)
	if err != nil || c2 == nil {
		t.FailNow()
	}
	if c1 != c2 {
		t.Log("expected session reuse")
		t.FailNow()
	}

	sub, err := client.DialSubConn(c2)
	if err != nil {
		t.FailNow()
	}
	var _ net.Conn = sub
	sub.Close()
}
