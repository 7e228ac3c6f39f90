package ws_test

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"io"
	"net"
	"testing"

	gobwasws "github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/driftline/driftline/advLayer/ws"
)

// ws基本读写功能测试. 分别测试短数据和跨多个frame的长数据.
func TestWs(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Log(err)
		t.FailNow()
	}
	defer listener.Close()

	bigBytes := make([]byte, 10240)
	rand.Read(bigBytes)

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		if _, err := gobwasws.Upgrade(conn); err != nil {
			t.Log("server upgrade failed", err)
			t.Fail()
			return
		}

		msg, err := wsutil.ReadClientBinary(conn)
		if err != nil || string(msg) != "hello" {
			t.Log("server read", msg, err)
			t.Fail()
			return
		}
		wsutil.WriteServerBinary(conn, []byte("world"))
		wsutil.WriteServerBinary(conn, bigBytes)
	}()

	cli, err := ws.NewClient(listener.Addr().String(), "/thepath", nil, false)
	if err != nil {
		t.FailNow()
	}

	underlay, err := net.Dial("tcp", listener.Addr().String())
	if err != nil {
		t.FailNow()
	}
	defer underlay.Close()

	wsConn, err := cli.Handshake(underlay, []byte("hello"))
	if err != nil {
		t.Log("client handshake failed", err)
		t.FailNow()
	}

	var world [5]byte
	if _, err := io.ReadFull(wsConn, world[:]); err != nil || string(world[:]) != "world" {
		t.Log("short read mismatch", world, err)
		t.FailNow()
	}

	got := make([]byte, len(bigBytes))
	if _, err := io.ReadFull(wsConn, got); err != nil || !bytes.Equal(got, bigBytes) {
		t.Log("big read mismatch", err)
		t.FailNow()
	}
}

// earlydata: 首包应以 base64 形式出现在 Sec-WebSocket-Protocol 里,
// 而不是在握手后的数据流中.
func TestWsEarlyData(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.FailNow()
	}
	defer listener.Close()

	protoChan := make(chan string, 1)

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		u := gobwasws.Upgrader{
			Protocol: func(p []byte) bool {
				protoChan <- string(p)
				return true
			},
		}
		if _, err := u.Upgrade(conn); err != nil {
			t.Log("server upgrade failed", err)
			t.Fail()
			return
		}
		wsutil.WriteServerBinary(conn, []byte("ack"))
	}()

	cli, err := ws.NewClient(listener.Addr().String(), "/ed", nil, true)
	if err != nil {
		t.FailNow()
	}

	underlay, err := net.Dial("tcp", listener.Addr().String())
	if err != nil {
		t.FailNow()
	}
	defer underlay.Close()

	edConn, err := cli.Handshake(underlay, nil)
	if err != nil {
		t.FailNow()
	}

	//第一次Write才触发升级
	if _, err := edConn.Write([]byte("first-packet")); err != nil {
		t.Log("first write failed", err)
		t.FailNow()
	}

	var ack [3]byte
	if _, err := io.ReadFull(edConn, ack[:]); err != nil || string(ack[:]) != "ack" {
		t.Log("ack mismatch", ack, err)
		t.FailNow()
	}

	proto := <-protoChan
	decoded, err := base64.RawURLEncoding.DecodeString(proto)
	if err != nil || string(decoded) != "first-packet" {
		t.Log("early data mismatch", string(decoded), err)
		t.FailNow()
	}
}

func TestEarlyDataTooLong(t *testing.T) {
	cli, err := ws.NewClient("127.0.0.1:80", "/x", nil, true)
	if err != nil {
		t.FailNow()
	}
	_, err = cli.Handshake(nil, make([]byte, ws.MaxEarlyDataLen+1))
	if err == nil {
		t.FailNow()
	}
}
