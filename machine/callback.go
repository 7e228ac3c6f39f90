package machine

import (
	"sync"

	"github.com/driftline/driftline"
)

type callbacks struct {
	cbMutex sync.Mutex

	toggle  []func(int) //开关引擎
	updated []func()    //运行中的配置发生了整代替换
	traffic func(*driftline.ConnRecord)
}

func (m *M) AddToggleCallback(f func(int)) {
	m.cbMutex.Lock()
	m.toggle = append(m.toggle, f)
	m.cbMutex.Unlock()
}

func (m *M) callToggle(e int) {
	m.cbMutex.Lock()
	fs := m.toggle
	m.cbMutex.Unlock()
	for _, f := range fs {
		f(e)
	}
}

func (m *M) AddUpdatedCallback(f func()) {
	m.cbMutex.Lock()
	m.updated = append(m.updated, f)
	m.cbMutex.Unlock()
}

func (m *M) callUpdated() {
	m.cbMutex.Lock()
	fs := m.updated
	m.cbMutex.Unlock()
	for _, f := range fs {
		f()
	}
}

// SetTrafficCallback 注册 每条连接结束时 的回调。
// 回调在引擎所有锁之外、转发该连接的goroutine上被调用, 不可长时间阻塞.
func (m *M) SetTrafficCallback(f func(*driftline.ConnRecord)) {
	m.cbMutex.Lock()
	m.traffic = f
	m.cbMutex.Unlock()
}

// sinkAdapter 把 Stats 的回调接到 machine 注册的回调上。
type sinkAdapter struct {
	m *M
}

func (s *sinkAdapter) OnConnClosed(r *driftline.ConnRecord) {
	s.m.cbMutex.Lock()
	f := s.m.traffic
	s.m.cbMutex.Unlock()
	if f != nil {
		f(r)
	}
}
