package driftline_test

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/driftline/driftline"
	"github.com/driftline/driftline/netLayer"
	"github.com/driftline/driftline/proxy"
	"github.com/driftline/driftline/proxy/vless"
)

func startTcpEchoServer(t *testing.T) (addr string, closer func()) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.FailNow()
	}
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				io.Copy(c, c)
			}(conn)
		}
	}()
	return listener.Addr().String(), func() { listener.Close() }
}

func directEnv(t *testing.T, defaultOut string) *driftline.RoutingEnv {
	sc := driftline.StandardConf{
		App: &driftline.AppConf{DefaultOut: defaultOut},
	}
	dc := &proxy.DialConf{}
	dc.Tag = defaultOut
	dc.Protocol = proxy.DirectName
	sc.Dial = []*proxy.DialConf{dc}

	env, err := driftline.BuildRoutingEnv(sc, 1)
	if err != nil {
		t.Log("BuildRoutingEnv failed", err)
		t.FailNow()
	}
	return env
}

func mustTarget(t *testing.T, addrStr string) netLayer.TargetDescription {
	addr, err := netLayer.NewAddrByHostPort(addrStr)
	if err != nil {
		t.FailNow()
	}
	addr.Network = "tcp"
	return netLayer.TargetDescription{Addr: addr, InTag: "test-in"}
}

func TestForwardDirect(t *testing.T) {
	echoAddr, closer := startTcpEchoServer(t)
	defer closer()

	env := directEnv(t, "d")
	d := driftline.NewDispatcher(nil)
	defer d.Stop()

	local, wlc := net.Pipe()

	forwardDone := make(chan error, 1)
	go func() {
		forwardDone <- d.Forward(context.Background(), env, mustTarget(t, echoAddr), wlc, nil)
	}()

	local.Write([]byte("ping"))
	var back [4]byte
	if _, err := io.ReadFull(local, back[:]); err != nil || string(back[:]) != "ping" {
		t.Log("echo mismatch", back, err)
		t.FailNow()
	}
	local.Close()

	if err := <-forwardDone; err != nil {
		t.Log("Forward returned", err)
		t.FailNow()
	}

	snap := d.Stats().Snapshot()
	if snap.TotalUp < 4 || snap.TotalDown < 4 || snap.ClosedConns != 1 || snap.ActiveConns != 0 {
		t.Log("bad snapshot", snap)
		t.FailNow()
	}
}

// firstPayload 应在隧道建立时 就送达目标.
func TestForwardFirstPayload(t *testing.T) {
	echoAddr, closer := startTcpEchoServer(t)
	defer closer()

	env := directEnv(t, "d")
	d := driftline.NewDispatcher(nil)
	defer d.Stop()

	local, wlc := net.Pipe()

	go d.Forward(context.Background(), env, mustTarget(t, echoAddr), wlc, []byte("early"))

	var back [5]byte
	if _, err := io.ReadFull(local, back[:]); err != nil || string(back[:]) != "early" {
		t.Log("first payload not relayed", back, err)
		t.FailNow()
	}
	local.Close()
}

func TestRoutingExhausted(t *testing.T) {
	//没有任何规则, 也没有 default_out
	env, err := driftline.BuildRoutingEnv(driftline.StandardConf{}, 1)
	if err != nil {
		t.FailNow()
	}

	d := driftline.NewDispatcher(nil)
	defer d.Stop()

	_, wlc := net.Pipe()
	err = d.Forward(context.Background(), env, mustTarget(t, "127.0.0.1:80"), wlc, nil)
	if !errors.Is(err, driftline.ErrRoutingExhausted) {
		t.Log("expected ErrRoutingExhausted, got", err)
		t.FailNow()
	}
}

func TestRejectOut(t *testing.T) {
	sc := driftline.StandardConf{
		App: &driftline.AppConf{DefaultOut: "blackhole"},
	}
	dc := &proxy.DialConf{}
	dc.Tag = "blackhole"
	dc.Protocol = proxy.RejectName
	sc.Dial = []*proxy.DialConf{dc}

	env, err := driftline.BuildRoutingEnv(sc, 1)
	if err != nil {
		t.FailNow()
	}

	d := driftline.NewDispatcher(nil)
	defer d.Stop()

	_, wlc := net.Pipe()
	err = d.Forward(context.Background(), env, mustTarget(t, "127.0.0.1:80"), wlc, nil)
	if !errors.Is(err, driftline.ErrPolicyRejected) {
		t.Log("expected ErrPolicyRejected, got", err)
		t.FailNow()
	}
}

func TestTransportConnectClassification(t *testing.T) {
	//拿一个必然关闭的端口
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.FailNow()
	}
	deadAddr := listener.Addr().String()
	listener.Close()

	sc := driftline.StandardConf{
		App: &driftline.AppConf{DefaultOut: "dead"},
	}
	dc := &proxy.DialConf{}
	dc.Tag = "dead"
	dc.Protocol = "vless"
	dc.Uuid = "a684455c-b14f-11ea-bf0d-42010aaa0003"
	host, port, _ := net.SplitHostPort(deadAddr)
	dc.IP = host
	dc.Port = atoiOrFail(t, port)
	sc.Dial = []*proxy.DialConf{dc}

	env, err := driftline.BuildRoutingEnv(sc, 1)
	if err != nil {
		t.FailNow()
	}

	d := driftline.NewDispatcher(nil)
	defer d.Stop()

	_, wlc := net.Pipe()
	err = d.Forward(context.Background(), env, mustTarget(t, "example.com:80"), wlc, nil)
	if !errors.Is(err, driftline.ErrTransportConnect) {
		t.Log("expected ErrTransportConnect, got", err)
		t.FailNow()
	}
}

// 服务端收下请求却始终不回 (比如uuid错误), 整条转发应在时限内
// 以握手失败结束, 而不是算作截断 或 永远挂住.
func TestSilentVlessServerClassification(t *testing.T) {
	old := vless.ResponseTimeout
	vless.ResponseTimeout = time.Millisecond * 200
	defer func() { vless.ResponseTimeout = old }()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.FailNow()
	}
	defer listener.Close()
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				//只收不回
				buf := make([]byte, 1024)
				for {
					if _, err := c.Read(buf); err != nil {
						c.Close()
						return
					}
				}
			}(conn)
		}
	}()

	sc := driftline.StandardConf{
		App: &driftline.AppConf{DefaultOut: "mute"},
	}
	dc := &proxy.DialConf{}
	dc.Tag = "mute"
	dc.Protocol = "vless"
	dc.Uuid = "a684455c-b14f-11ea-bf0d-42010aaa0003"
	host, port, _ := net.SplitHostPort(listener.Addr().String())
	dc.IP = host
	dc.Port = atoiOrFail(t, port)
	sc.Dial = []*proxy.DialConf{dc}

	env, err := driftline.BuildRoutingEnv(sc, 1)
	if err != nil {
		t.FailNow()
	}

	d := driftline.NewDispatcher(nil)
	defer d.Stop()

	local, wlc := net.Pipe()
	defer local.Close()

	forwardDone := make(chan error, 1)
	go func() {
		forwardDone <- d.Forward(context.Background(), env, mustTarget(t, "example.com:80"), wlc, []byte("req"))
	}()

	select {
	case err = <-forwardDone:
	case <-time.After(time.Second * 3):
		t.Log("Forward hung on a silent server")
		t.FailNow()
	}

	if !errors.Is(err, driftline.ErrHandshakeFailed) {
		t.Log("expected ErrHandshakeFailed, got", err)
		t.FailNow()
	}
	if errors.Is(err, driftline.ErrTruncatedTransfer) {
		t.Log("silent handshake must not be reported as truncation")
		t.FailNow()
	}
}

// 组内前两个成员连不上时, 应自动滚到第三个可用成员.
func TestGroupRetry(t *testing.T) {
	echoAddr, closer := startTcpEchoServer(t)
	defer closer()

	deadListener, _ := net.Listen("tcp", "127.0.0.1:0")
	deadAddr := deadListener.Addr().String()
	deadListener.Close()

	host, port, _ := net.SplitHostPort(deadAddr)

	sc := driftline.StandardConf{
		App: &driftline.AppConf{DefaultOut: "pool"},
	}
	for _, tag := range []string{"dead1", "dead2"} {
		dc := &proxy.DialConf{}
		dc.Tag = tag
		dc.Protocol = "vless"
		dc.Uuid = "a684455c-b14f-11ea-bf0d-42010aaa0003"
		dc.IP = host
		dc.Port = atoiOrFail(t, port)
		sc.Dial = append(sc.Dial, dc)
	}
	good := &proxy.DialConf{}
	good.Tag = "good"
	good.Protocol = proxy.DirectName
	sc.Dial = append(sc.Dial, good)

	sc.Group = []*driftline.GroupConf{{
		Tag:      "pool",
		Members:  []string{"dead1", "dead2", "good"},
		Strategy: driftline.StrategyStatic,
	}}

	env, err := driftline.BuildRoutingEnv(sc, 1)
	if err != nil {
		t.Log("BuildRoutingEnv failed", err)
		t.FailNow()
	}

	d := driftline.NewDispatcher(nil)
	defer d.Stop()

	local, wlc := net.Pipe()
	go d.Forward(context.Background(), env, mustTarget(t, echoAddr), wlc, nil)

	local.Write([]byte("retry-ok"))
	var back [8]byte
	if _, err := io.ReadFull(local, back[:]); err != nil || string(back[:]) != "retry-ok" {
		t.Log("group retry failed", back, err)
		t.FailNow()
	}
	local.Close()
}

// ctx 取消应把两端都关掉, 且不算截断错误.
func TestForwardCancel(t *testing.T) {
	echoAddr, closer := startTcpEchoServer(t)
	defer closer()

	env := directEnv(t, "d")
	d := driftline.NewDispatcher(nil)
	defer d.Stop()

	local, wlc := net.Pipe()
	defer local.Close()

	ctx, cancel := context.WithCancel(context.Background())

	forwardDone := make(chan error, 1)
	go func() {
		forwardDone <- d.Forward(ctx, env, mustTarget(t, echoAddr), wlc, nil)
	}()

	local.Write([]byte("x"))
	var one [1]byte
	io.ReadFull(local, one[:])

	cancel()

	select {
	case err := <-forwardDone:
		if err != nil {
			t.Log("cancel should not be reported as error, got", err)
			t.FailNow()
		}
	case <-time.After(time.Second * 3):
		t.Log("Forward did not return after cancel")
		t.FailNow()
	}
}

func atoiOrFail(t *testing.T, s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			t.FailNow()
		}
		n = n*10 + int(r-'0')
	}
	return n
}
