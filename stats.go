package driftline

import (
	"io"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// ConnRecord 是 一条连接的 最终记录, 在连接结束后交给 StatsSink。
type ConnRecord struct {
	ID       uint64
	InTag    string
	OutTag   string
	Target   string
	Up, Down int64
	Duration time.Duration
	Err      error //nil 表示正常结束
}

// StatsSink 由使用者注入; 回调在引擎锁之外被调用。
type StatsSink interface {
	OnConnClosed(*ConnRecord)
}

// TrafficSnapshot 聚合计数的一致性快照。
type TrafficSnapshot struct {
	TotalUp, TotalDown int64
	ActiveConns        int
	ClosedConns        int64
}

// connState 是一条活跃连接。计数器 在转发过程中被实时累加,
// 随时可被无撕裂地读取。
type connState struct {
	id       uint64
	inTag    string
	outTag   string
	target   string
	start    time.Time
	up, down *atomic.Int64

	closers []io.Closer
}

// Stats 跟踪所有活跃连接 与 聚合计数, 并支持按 id 强制关闭。
type Stats struct {
	nextID *atomic.Uint64

	totalUp, totalDown *atomic.Int64
	closed             *atomic.Int64

	mu     sync.RWMutex
	active map[uint64]*connState

	sink StatsSink
}

func NewStats(sink StatsSink) *Stats {
	return &Stats{
		nextID:    atomic.NewUint64(0),
		totalUp:   atomic.NewInt64(0),
		totalDown: atomic.NewInt64(0),
		closed:    atomic.NewInt64(0),
		active:    make(map[uint64]*connState),
		sink:      sink,
	}
}

func (s *Stats) SetSink(sink StatsSink) {
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
}

func (s *Stats) open(inTag, outTag, target string, closers ...io.Closer) *connState {
	cs := &connState{
		id:      s.nextID.Inc(),
		inTag:   inTag,
		outTag:  outTag,
		target:  target,
		start:   time.Now(),
		up:      atomic.NewInt64(0),
		down:    atomic.NewInt64(0),
		closers: closers,
	}
	s.mu.Lock()
	s.active[cs.id] = cs
	s.mu.Unlock()
	return cs
}

func (s *Stats) close(cs *connState, err error) {
	s.mu.Lock()
	delete(s.active, cs.id)
	sink := s.sink
	s.mu.Unlock()

	up, down := cs.up.Load(), cs.down.Load()
	s.totalUp.Add(up)
	s.totalDown.Add(down)
	s.closed.Inc()

	if sink != nil {
		sink.OnConnClosed(&ConnRecord{
			ID:       cs.id,
			InTag:    cs.inTag,
			OutTag:   cs.outTag,
			Target:   cs.target,
			Up:       up,
			Down:     down,
			Duration: time.Since(cs.start),
			Err:      err,
		})
	}
}

// Snapshot 包含 已结束连接的总量 加上 活跃连接的当前计数。
func (s *Stats) Snapshot() TrafficSnapshot {
	snap := TrafficSnapshot{
		TotalUp:     s.totalUp.Load(),
		TotalDown:   s.totalDown.Load(),
		ClosedConns: s.closed.Load(),
	}

	s.mu.RLock()
	snap.ActiveConns = len(s.active)
	for _, cs := range s.active {
		snap.TotalUp += cs.up.Load()
		snap.TotalDown += cs.down.Load()
	}
	s.mu.RUnlock()

	return snap
}

// ForceClose 按 id 强制关闭一条活跃连接; 不存在时返回 false。
// 实际的收尾(记录、回调) 由该连接自己的转发循环完成。
func (s *Stats) ForceClose(id uint64) bool {
	s.mu.RLock()
	cs := s.active[id]
	s.mu.RUnlock()

	if cs == nil {
		return false
	}
	for _, c := range cs.closers {
		c.Close()
	}
	return true
}
