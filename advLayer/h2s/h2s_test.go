package h2s_test

import (
	"io"
	"net"
	"net/http"
	"strconv"
	"testing"

	"golang.org/x/net/http2"

	"github.com/driftline/driftline"
	"github.com/driftline/driftline/advLayer"
)

// 起一个裸 h2 echo 服务: 请求body原样写回响应body.
func startH2EchoServer(t *testing.T, path string) (addr string, closer func()) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.FailNow()
	}

	h2Server := &http2.Server{}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != path {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()

		buf := make([]byte, 4096)
		for {
			n, err := r.Body.Read(buf)
			if n > 0 {
				w.Write(buf[:n])
				w.(http.Flusher).Flush()
			}
			if err != nil {
				return
			}
		}
	})

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go h2Server.ServeConn(conn, &http2.ServeConnOpts{Handler: handler})
		}
	}()

	return listener.Addr().String(), func() { listener.Close() }
}

func newH2Client(t *testing.T, host, path string) advLayer.MuxClient {
	creator, ok := advLayer.GetCreator("h2")
	if !ok {
		t.FailNow()
	}
	advC, err := creator.NewClientFromConf(&advLayer.Conf{
		Host: host,
		Path: path,
	})
	if err != nil {
		t.FailNow()
	}
	return advC.(advLayer.MuxClient)
}

func TestH2Stream(t *testing.T) {
	addr, closer := startH2EchoServer(t, "/tunnel")
	defer closer()

	muxC := newH2Client(t, "example.com", "/tunnel")

	underlay, err := net.Dial("tcp", addr)
	if err != nil {
		t.FailNow()
	}
	defer underlay.Close()

	common, err := muxC.GetCommonConn(underlay)
	if err != nil {
		t.FailNow()
	}

	sub, err := muxC.DialSubConn(common)
	if err != nil {
		t.Log("DialSubConn failed", err)
		t.FailNow()
	}
	defer sub.Close()

	sub.Write([]byte("hello"))

	var back [5]byte
	if _, err := io.ReadFull(sub, back[:]); err != nil || string(back[:]) != "hello" {
		t.Log("echo mismatch", back, err)
		t.FailNow()
	}
}

// 经连接池走 h2 时, 第二条子流必须开在同一个 transport 上,
// 不能对同一条tcp连接再发一次 h2 前导.
func TestH2PooledStreams(t *testing.T) {
	addr, closer := startH2EchoServer(t, "/p")
	defer closer()

	muxC := newH2Client(t, "example.com", "/p")

	pool := driftline.NewConnPool()
	defer pool.Close()

	dials := 0
	dialUnderlay := func() (net.Conn, error) {
		dials++
		return net.Dial("tcp", addr)
	}

	s1, err := pool.DialSub(muxC, "h2out", addr, dialUnderlay)
	if err != nil {
		t.Log("first DialSub failed", err)
		t.FailNow()
	}
	s1.Write([]byte("one"))
	var b3 [3]byte
	if _, err := io.ReadFull(s1, b3[:]); err != nil || string(b3[:]) != "one" {
		t.Log("first stream echo mismatch", b3, err)
		t.FailNow()
	}

	s2, err := pool.DialSub(muxC, "h2out", addr, dialUnderlay)
	if err != nil {
		t.Log("second DialSub failed", err)
		t.FailNow()
	}
	s2.Write([]byte("two"))
	if _, err := io.ReadFull(s2, b3[:]); err != nil || string(b3[:]) != "two" {
		t.Log("second stream echo mismatch", b3, err)
		t.FailNow()
	}

	if dials != 1 {
		t.Log("expected a single underlay dial, got", dials)
		t.FailNow()
	}

	s2.Close()
	s1.Close()
}

// 第二条子流应复用缓存的 transport, 不需要新的底层连接.
func TestH2TransportReuse(t *testing.T) {
	addr, closer := startH2EchoServer(t, "/t")
	defer closer()

	muxC := newH2Client(t, "example.com", "/t")

	underlay, err := net.Dial("tcp", addr)
	if err != nil {
		t.FailNow()
	}
	defer underlay.Close()

	common, _ := muxC.GetCommonConn(underlay)
	first, err := muxC.DialSubConn(common)
	if err != nil {
		t.FailNow()
	}

	//先跑通第一条流, 保证 transport 已被缓存
	first.Write([]byte("a"))
	var one [1]byte
	if _, err := io.ReadFull(first, one[:]); err != nil {
		t.FailNow()
	}

	//第二次 GetCommonConn 传 nil, 应返回缓存的 transport
	common2, err := muxC.GetCommonConn(nil)
	if err != nil || common2 == nil {
		t.Log("expected cached transport", err)
		t.FailNow()
	}

	subs := make([]net.Conn, 0, 3)
	for i := 0; i < 3; i++ {
		sub, err := muxC.DialSubConn(common2)
		if err != nil {
			t.FailNow()
		}
		subs = append(subs, sub)
	}

	for i, sub := range subs {
		msg := []byte("s" + strconv.Itoa(i))
		sub.Write(msg)
		back := make([]byte, len(msg))
		if _, err := io.ReadFull(sub, back); err != nil || string(back) != string(msg) {
			t.Log("reuse echo mismatch", i, err)
			t.FailNow()
		}
		sub.Close()
	}
	first.Close()
}
