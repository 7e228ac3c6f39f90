/*
Package machine 把整个出站引擎包装成一个 可直接被可执行文件或动态库使用的黑盒.

关键点是不使用任何静态变量，所有变量都放在 M 中; 嵌入方(FFI)只需
持有一个 M 指针, 所有导出方法都可以从同一个外部线程安全地调用,
Dispatch 除外, 它阻塞到转发结束, 应在嵌入方自己的工作线程里调用.
*/
package machine

import (
	"context"
	"io"
	"sync"

	"github.com/driftline/driftline"
	"github.com/driftline/driftline/netLayer"
	"github.com/driftline/driftline/utils"
)

type M struct {
	sync.RWMutex

	env        *driftline.RoutingEnv
	generation int64

	dispatcher *driftline.Dispatcher
	stats      *driftline.Stats

	callbacks

	baseCtx   context.Context
	cancelAll context.CancelFunc
	running   bool
}

func New() *M {
	m := new(M)
	m.stats = driftline.NewStats(&sinkAdapter{m: m})
	m.dispatcher = driftline.NewDispatcher(m.stats)
	m.env = driftline.NewRoutingEnv(0)
	return m
}

func (m *M) IsRunning() bool {
	m.RLock()
	defer m.RUnlock()
	return m.running
}

func (m *M) Generation() int64 {
	m.RLock()
	defer m.RUnlock()
	return m.generation
}

func (m *M) Start() {
	m.Lock()
	if m.running {
		m.Unlock()
		return
	}
	utils.Info("Starting...")
	m.baseCtx, m.cancelAll = context.WithCancel(context.Background())
	m.running = true
	m.Unlock()

	m.callToggle(1)
}

// Stop 取消所有进行中的转发 并 关闭连接池。已加载的配置保留,
// 可以再次 Start.
func (m *M) Stop() {
	m.Lock()
	if !m.running {
		m.Unlock()
		return
	}
	utils.Info("Stopping...")
	m.running = false
	if m.cancelAll != nil {
		m.cancelAll()
	}
	m.dispatcher.Stop()
	m.Unlock()

	m.callToggle(0)
}

// LoadConfigBytes 解析一份 toml 配置 并整代替换路由环境。
// 进行中的连接 继续使用旧的一代, 新连接立即用新的。
// 配置解析或组装失败时 旧的一代原样保留。
func (m *M) LoadConfigBytes(bs []byte) error {
	sc, err := driftline.LoadStandardConfBytes(bs)
	if err != nil {
		return err
	}

	m.Lock()

	env, err := driftline.BuildRoutingEnv(sc, m.generation+1)
	if err != nil {
		m.Unlock()
		return err
	}

	driftline.ApplyAppConf(sc.App)

	m.generation++
	m.env = env
	m.Unlock()

	m.callUpdated()
	return nil
}

// Dispatch 为一条嵌入方交来的连接 做路由、建隧道 并 双向转发,
// 阻塞到转发结束。wlc 在返回前一定会被关闭。
func (m *M) Dispatch(td netLayer.TargetDescription, wlc io.ReadWriteCloser, firstPayload []byte) error {
	m.RLock()
	env := m.env
	ctx := m.baseCtx
	running := m.running
	m.RUnlock()

	if !running {
		wlc.Close()
		return utils.ErrInErr{ErrDesc: "machine is not running", ErrDetail: driftline.ErrConfiguration}
	}

	return m.dispatcher.Forward(ctx, env, td, wlc, firstPayload)
}

func (m *M) TrafficSnapshot() driftline.TrafficSnapshot {
	return m.stats.Snapshot()
}

// CloseConnection 按 id 强制关闭一条活跃连接; 不存在时返回 false.
func (m *M) CloseConnection(id uint64) bool {
	return m.stats.ForceClose(id)
}
