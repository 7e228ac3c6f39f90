package driftline

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/driftline/driftline/advLayer"
	"github.com/driftline/driftline/netLayer"
	"github.com/driftline/driftline/proxy"
	"github.com/driftline/driftline/utils"
)

// DispatchState 标记一条连接在调度器中的生命周期阶段。
type DispatchState int32

const (
	StateNew DispatchState = iota
	StateRouting
	StateConnecting
	StateHandshaking
	StateStreaming
	StateClosing
	StateClosed
	StateFailed
)

func (s DispatchState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateRouting:
		return "routing"
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateStreaming:
		return "streaming"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Dispatcher 把一条入站连接 送往 路由选出的出口, 完成各层握手后 对拷数据。
// Dispatcher 本身无代际; 每次 Forward 使用调用方传入的 RoutingEnv,
// 换代后 旧连接继续用旧env 跑完。
type Dispatcher struct {
	pool  *ConnPool
	stats *Stats
}

func NewDispatcher(stats *Stats) *Dispatcher {
	if stats == nil {
		stats = NewStats(nil)
	}
	return &Dispatcher{
		pool:  NewConnPool(),
		stats: stats,
	}
}

func (d *Dispatcher) Stats() *Stats { return d.stats }

// Stop 关掉连接池里所有缓存的公共连接。
func (d *Dispatcher) Stop() {
	d.pool.Close()
}

// Forward 为 wlc 建立到 td.Addr 的出站隧道 并双向转发, 阻塞到转发结束。
// firstPayload 可为 nil; 给出时 会尽量合并进出口协议的首包。
//
// 路由无匹配 返回 ErrRoutingExhausted; 出口是组时, 连接或握手失败
// 会按组的候选顺序重试, 最多尝试组大小 次; reject出口 不触发重试。
// 无论结果如何, wlc 在返回前都会被关闭。
func (d *Dispatcher) Forward(ctx context.Context, env *RoutingEnv, td netLayer.TargetDescription, wlc io.ReadWriteCloser, firstPayload []byte) error {

	state := StateRouting

	outTag, err := env.RoutePolicy.ResolveOutTag(&td)
	if err != nil {
		wlc.Close()
		if ce := utils.CanLogWarn("no route for target"); ce != nil {
			ce.Write(zap.String("target", td.Addr.String()), zap.String("inTag", td.InTag))
		}
		return utils.ErrInErr{ErrDesc: "routing found no out for target", ErrDetail: ErrRoutingExhausted, Data: td.Addr.String()}
	}

	candidates, group := env.Candidates(outTag)
	if len(candidates) == 0 {
		wlc.Close()
		return utils.ErrInErr{ErrDesc: "out group has no members", ErrDetail: ErrRoutingExhausted, Data: outTag}
	}

	var wrc io.ReadWriteCloser
	var chosenTag string
	var lastErr error

	for _, tag := range candidates {
		client, cerr := env.GetClient(tag)
		if cerr != nil {
			lastErr = cerr
			continue
		}

		if client.Name() == proxy.RejectName {
			wlc.Close()
			return utils.ErrInErr{ErrDesc: "out rejects the connection", ErrDetail: ErrPolicyRejected, Data: tag}
		}

		state = StateConnecting
		start := time.Now()

		wrc, lastErr = d.dialClient(ctx, client, td.Addr, firstPayload, &state)
		if lastErr == nil {
			chosenTag = tag
			if group != nil {
				group.ReportLatency(tag, time.Since(start))
			}
			break
		}

		if ce := utils.CanLogDebug("tunnel attempt failed"); ce != nil {
			ce.Write(zap.String("out", tag), zap.String("state", state.String()), zap.Error(lastErr))
		}
	}

	if wrc == nil {
		state = StateFailed
		wlc.Close()
		if ce := utils.CanLogWarn("all out candidates failed"); ce != nil {
			ce.Write(zap.String("outTag", outTag), zap.String("state", state.String()), zap.Error(lastErr))
		}
		return lastErr
	}

	state = StateStreaming

	cs := d.stats.open(td.InTag, chosenTag, td.Addr.String(), wlc, wrc)

	//ctx 取消时 把两端一起关掉, 让对拷尽快返回
	relayDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			wlc.Close()
			wrc.Close()
		case <-relayDone:
		}
	}()

	result := netLayer.Relay(&td.Addr, wrc, wlc, cs.up, cs.down)
	close(relayDone)

	state = StateClosing
	err = classifyRelayResult(result, ctx)
	d.stats.close(cs, err)
	state = StateClosed

	if ce := utils.CanLogDebug("connection finished"); ce != nil {
		ce.Write(zap.String("out", chosenTag), zap.String("state", state.String()), zap.Error(err))
	}

	return err
}

// dialClient 按 client 定义的层级 逐层建立出站连接:
// 传输层拨号, tls, 高级层, 最后是代理协议握手。
func (d *Dispatcher) dialClient(ctx context.Context, client proxy.Client, target netLayer.Addr, firstPayload []byte, state *DispatchState) (io.ReadWriteCloser, error) {

	tag := client.GetTag()

	//direct 没有自己的服务器, 直接拨目标
	dialAddrStr := client.AddrStr()
	if dialAddrStr == "" {
		dialAddrStr = target.String()
	}

	// quic 这类超级协议 自己处理 传输层与tls, 连接统一进池复用
	if client.IsHandleInitialLayers() {
		muxC := client.GetAdvClient().(advLayer.MuxClient)

		*state = StateHandshaking
		sub, err := d.pool.DialSub(muxC, tag, dialAddrStr, func() (net.Conn, error) {
			return nil, nil
		})
		if err != nil {
			return nil, utils.ErrInErr{ErrDesc: "super layer dial failed", ErrDetail: ErrHandshakeFailed, Data: err.Error()}
		}
		return d.proxyHandshake(client, sub, firstPayload, target)
	}

	dialUnderlay := func() (net.Conn, error) {
		underlay, err := d.dialTransport(ctx, client, dialAddrStr)
		if err != nil {
			return nil, err
		}

		if client.IsUseTLS() {
			underlay.SetDeadline(time.Now().Add(netLayer.DialTimeout))
			tlsConn, err := client.GetTLS_Client().Handshake(underlay)
			if err != nil {
				underlay.Close()
				return nil, utils.ErrInErr{ErrDesc: "tls handshake failed", ErrDetail: ErrHandshakeFailed, Data: err.Error()}
			}
			tlsConn.SetDeadline(time.Time{})
			return tlsConn, nil
		}
		return underlay, nil
	}

	// mux类高级层 (h2, smux): 公共连接进池, 这里只开子流
	if client.IsMux() {
		muxC := client.GetAdvClient().(advLayer.MuxClient)

		*state = StateHandshaking
		sub, err := d.pool.DialSub(muxC, tag, dialAddrStr, dialUnderlay)
		if err != nil {
			if errors.Is(err, ErrTransportConnect) || errors.Is(err, ErrHandshakeFailed) {
				return nil, err
			}
			return nil, utils.ErrInErr{ErrDesc: "mux substream dial failed", ErrDetail: ErrHandshakeFailed, Data: err.Error()}
		}
		return d.proxyHandshake(client, sub, firstPayload, target)
	}

	conn, err := dialUnderlay()
	if err != nil {
		return nil, err
	}

	*state = StateHandshaking
	conn.SetDeadline(time.Now().Add(netLayer.DialTimeout))

	if advC := client.GetAdvClient(); advC != nil {
		singleC, ok := advC.(advLayer.SingleClient)
		if !ok {
			conn.Close()
			return nil, utils.ErrInErr{ErrDesc: "advLayer client type unexpected", ErrDetail: ErrConfiguration, Data: client.AdvancedLayer()}
		}
		//有early data 能力时, 高级层握手会推迟到第一次Write,
		//代理协议的首包自然成为 0-rtt 数据
		advConn, aerr := singleC.Handshake(conn, nil)
		if aerr != nil {
			conn.Close()
			return nil, utils.ErrInErr{ErrDesc: "advLayer handshake failed", ErrDetail: ErrHandshakeFailed, Data: aerr.Error()}
		}
		conn = advConn
	}

	wrc, err := d.proxyHandshake(client, conn, firstPayload, target)
	if err != nil {
		return nil, err
	}
	conn.SetDeadline(time.Time{})
	return wrc, nil
}

func (d *Dispatcher) dialTransport(ctx context.Context, client proxy.Client, dialAddrStr string) (net.Conn, error) {
	dialAddr, err := netLayer.NewAddrByHostPort(dialAddrStr)
	if err != nil {
		return nil, utils.ErrInErr{ErrDesc: "bad dial address", ErrDetail: ErrConfiguration, Data: dialAddrStr}
	}
	dialAddr.Network = client.Network()

	underlay, err := dialAddr.DialContext(ctx)
	if err != nil {
		return nil, utils.ErrInErr{ErrDesc: "dial out server failed", ErrDetail: ErrTransportConnect, Data: dialAddrStr}
	}
	return underlay, nil
}

func (d *Dispatcher) proxyHandshake(client proxy.Client, conn net.Conn, firstPayload []byte, target netLayer.Addr) (io.ReadWriteCloser, error) {
	wrc, err := client.Handshake(conn, firstPayload, target)
	if err != nil {
		conn.Close()
		if errors.Is(err, proxy.ErrRejected) {
			return nil, utils.ErrInErr{ErrDesc: "out rejects the connection", ErrDetail: ErrPolicyRejected, Data: client.GetTag()}
		}
		return nil, utils.ErrInErr{ErrDesc: "proxy handshake failed", ErrDetail: ErrHandshakeFailed, Data: err.Error()}
	}
	return wrc, nil
}

// 对拷双向都干净EOF 才算正常结束; 任一方向带错中断 归为 截断。
func classifyRelayResult(r netLayer.RelayResult, ctx context.Context) error {
	if r.UploadErr == nil && r.DownloadErr == nil {
		return nil
	}
	if ctx.Err() != nil {
		//主动取消导致的中断不算截断
		return nil
	}

	inner := r.UploadErr
	if inner == nil {
		inner = r.DownloadErr
	}
	if errors.Is(r.UploadErr, proxy.ErrNoResponseInTime) || errors.Is(r.DownloadErr, proxy.ErrNoResponseInTime) {
		//乐观握手的回包始终没来, 归为握手失败 而不是截断
		return utils.ErrInErr{ErrDesc: "handshake got no response", ErrDetail: ErrHandshakeFailed, Data: inner.Error()}
	}
	return utils.ErrInErr{ErrDesc: "relay ended abnormally", ErrDetail: ErrTruncatedTransfer, Data: inner.Error()}
}
