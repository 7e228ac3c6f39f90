package machine_test

import (
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/driftline/driftline"
	"github.com/driftline/driftline/machine"
	"github.com/driftline/driftline/netLayer"
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

const directConf = `
[app]
default_out = "d"

[[dial]]
tag = "d"
protocol = "direct"
`

func mustTarget(t *testing.T, addrStr string) netLayer.TargetDescription {
	addr, err := netLayer.NewAddrByHostPort(addrStr)
	if err != nil {
		t.FailNow()
	}
	addr.Network = "tcp"
	return netLayer.TargetDescription{Addr: addr, InTag: "embedder"}
}

func TestMachineLifecycle(t *testing.T) {
	echoAddr, closer := startTcpEchoServer(t)
	defer closer()

	m := machine.New()

	var mu sync.Mutex
	var records []*driftline.ConnRecord
	m.SetTrafficCallback(func(r *driftline.ConnRecord) {
		mu.Lock()
		records = append(records, r)
		mu.Unlock()
	})

	if err := m.LoadConfigBytes([]byte(directConf)); err != nil {
		t.Log("LoadConfigBytes failed", err)
		t.FailNow()
	}
	if m.Generation() != 1 {
		t.FailNow()
	}

	m.Start()
	defer m.Stop()
	if !m.IsRunning() {
		t.FailNow()
	}

	local, wlc := net.Pipe()

	dispatchDone := make(chan error, 1)
	go func() {
		dispatchDone <- m.Dispatch(mustTarget(t, echoAddr), wlc, nil)
	}()

	local.Write([]byte("ping"))
	var back [4]byte
	if _, err := io.ReadFull(local, back[:]); err != nil || string(back[:]) != "ping" {
		t.Log("echo mismatch", back, err)
		t.FailNow()
	}
	local.Close()

	if err := <-dispatchDone; err != nil {
		t.Log("Dispatch returned", err)
		t.FailNow()
	}

	snap := m.TrafficSnapshot()
	if snap.TotalUp < 4 || snap.TotalDown < 4 || snap.ClosedConns != 1 {
		t.Log("bad snapshot", snap)
		t.FailNow()
	}

	mu.Lock()
	defer mu.Unlock()
	if len(records) != 1 {
		t.Log("expected 1 traffic record, got", len(records))
		t.FailNow()
	}
	r := records[0]
	if r.OutTag != "d" || r.InTag != "embedder" || r.Up < 4 || r.Down < 4 || r.Err != nil {
		t.Log("bad record", r)
		t.FailNow()
	}
}

func TestDispatchWhenStopped(t *testing.T) {
	m := machine.New()
	if err := m.LoadConfigBytes([]byte(directConf)); err != nil {
		t.FailNow()
	}

	_, wlc := net.Pipe()
	if err := m.Dispatch(mustTarget(t, "127.0.0.1:80"), wlc, nil); err == nil {
		t.Log("dispatch on a stopped machine should fail")
		t.FailNow()
	}
}

// 配置热替换: 进行中的连接用旧的一代跑完, 新连接立即用新的一代.
func TestGenerationSwap(t *testing.T) {
	echoAddr, closer := startTcpEchoServer(t)
	defer closer()

	m := machine.New()
	m.Start()
	defer m.Stop()

	if err := m.LoadConfigBytes([]byte(directConf)); err != nil {
		t.FailNow()
	}

	//旧的一代: 一条活跃连接挂着
	local, wlc := net.Pipe()
	oldDone := make(chan error, 1)
	go func() {
		oldDone <- m.Dispatch(mustTarget(t, echoAddr), wlc, nil)
	}()
	local.Write([]byte("x"))
	var one [1]byte
	io.ReadFull(local, one[:])

	//新的一代: 全部走 reject
	const rejectConf = `
[app]
default_out = "r"

[[dial]]
tag = "r"
protocol = "reject"
`
	if err := m.LoadConfigBytes([]byte(rejectConf)); err != nil {
		t.FailNow()
	}
	if m.Generation() != 2 {
		t.FailNow()
	}

	//新连接被新一代策略拒绝
	_, wlc2 := net.Pipe()
	err := m.Dispatch(mustTarget(t, echoAddr), wlc2, nil)
	if !errors.Is(err, driftline.ErrPolicyRejected) {
		t.Log("expected ErrPolicyRejected from new generation, got", err)
		t.FailNow()
	}

	//旧连接不受影响, 还能继续收发
	local.Write([]byte("y"))
	if _, err := io.ReadFull(local, one[:]); err != nil || one[0] != 'y' {
		t.Log("old generation conn broken", err)
		t.FailNow()
	}
	local.Close()
	<-oldDone
}

// 坏配置不应破坏当前一代.
func TestBadConfigKeepsOldGeneration(t *testing.T) {
	m := machine.New()
	if err := m.LoadConfigBytes([]byte(directConf)); err != nil {
		t.FailNow()
	}

	bad := `
[[group]]
tag = "g"
members = ["ghost"]
`
	if err := m.LoadConfigBytes([]byte(bad)); err == nil {
		t.Log("bad config should be rejected")
		t.FailNow()
	}
	if m.Generation() != 1 {
		t.Log("generation should be unchanged")
		t.FailNow()
	}
}

// 嵌入方只 import machine 时, 配置里的全部协议与高级层 也必须可用.
func TestProtocolsAvailableThroughMachine(t *testing.T) {
	//拿一个必然关闭的端口, 让失败停在传输层而不是配置层
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.FailNow()
	}
	deadAddr := listener.Addr().String()
	listener.Close()

	host, port, _ := net.SplitHostPort(deadAddr)

	conf := `
[app]
default_out = "v"

[[dial]]
tag = "v"
protocol = "vless"
uuid = "a684455c-b14f-11ea-bf0d-42010aaa0003"
ip = "` + host + `"
port = ` + port + `
advancedLayer = "ws"
path = "/ws"
`

	m := machine.New()
	if err := m.LoadConfigBytes([]byte(conf)); err != nil {
		t.Log("LoadConfigBytes failed", err)
		t.FailNow()
	}
	m.Start()
	defer m.Stop()

	_, wlc := net.Pipe()
	err = m.Dispatch(mustTarget(t, "1.2.3.4:80"), wlc, nil)
	if errors.Is(err, driftline.ErrConfiguration) {
		t.Log("protocol registrations missing at the embedding surface", err)
		t.FailNow()
	}
	if !errors.Is(err, driftline.ErrTransportConnect) {
		t.Log("expected transport connect failure, got", err)
		t.FailNow()
	}
}

func TestCloseConnectionById(t *testing.T) {
	echoAddr, closer := startTcpEchoServer(t)
	defer closer()

	m := machine.New()
	m.Start()
	defer m.Stop()
	if err := m.LoadConfigBytes([]byte(directConf)); err != nil {
		t.FailNow()
	}

	local, wlc := net.Pipe()
	defer local.Close()

	done := make(chan error, 1)
	go func() {
		done <- m.Dispatch(mustTarget(t, echoAddr), wlc, nil)
	}()

	//等连接进入转发阶段
	deadline := time.Now().Add(time.Second * 3)
	for m.TrafficSnapshot().ActiveConns == 0 {
		if time.Now().After(deadline) {
			t.Log("conn never became active")
			t.FailNow()
		}
		time.Sleep(time.Millisecond * 10)
	}

	//新machine里 第一条连接的id是1
	if !m.CloseConnection(1) {
		t.Log("CloseConnection did not find the conn")
		t.FailNow()
	}

	select {
	case <-done:
	case <-time.After(time.Second * 3):
		t.Log("dispatch did not return after force close")
		t.FailNow()
	}

	if m.CloseConnection(1) {
		t.Log("closed conn should no longer be found")
		t.FailNow()
	}
}
