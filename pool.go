package driftline

import (
	"net"
	"sync"

	"github.com/driftline/driftline/advLayer"
	"github.com/driftline/driftline/utils"
)

// ConnPool 缓存 mux类高级层 的底层公共连接 (h2 transport, quic session,
// smux session), key 为 出口tag+拨号地址。
//
// 不变量:
//   - 同一key 同时最多只有一次 公共连接握手 在进行 (per-key 互斥);
//   - 公共连接 被逻辑流引用计数, 最后一个逻辑流关闭时 才关底层;
//   - 出过错的表项 先被清除, 不会被复用。
type ConnPool struct {
	mu      sync.Mutex
	entries map[poolKey]*poolEntry
}

type poolKey struct {
	tag  string
	addr string
}

type poolEntry struct {
	mu sync.Mutex //per-key 互斥, 锁住 公共连接的建立与子流拨号

	common   any
	underlay net.Conn //非super协议的底层连接, 关闭公共连接时一并关闭
	users    int
	broken   bool
}

func NewConnPool() *ConnPool {
	return &ConnPool{
		entries: make(map[poolKey]*poolEntry),
	}
}

func (p *ConnPool) getEntry(key poolKey) *poolEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	e := p.entries[key]
	if e == nil || e.broken {
		e = &poolEntry{}
		p.entries[key] = e
	}
	return e
}

// DialSub 从 key 对应的 公共连接上 开一条新的逻辑流; 公共连接不存在 或已坏时
// 会用 dialUnderlay 建一条新的。返回的 conn 关闭时自动减引用。
//
// dialUnderlay 对 IsSuper 的协议 应返回 (nil, nil)。
func (p *ConnPool) DialSub(muxC advLayer.MuxClient, tag, addr string, dialUnderlay func() (net.Conn, error)) (net.Conn, error) {

	key := poolKey{tag: tag, addr: addr}
	entry := p.getEntry(key)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	sub, err := p.dialSubLocked(entry, muxC, dialUnderlay)
	if err != nil {
		//公共连接可能已悄悄死掉或开满, 弃掉重来一次
		if entry.common != nil {
			muxC.ProcessWhenFull(entry.common)
		}
		if entry.underlay != nil {
			entry.underlay.Close()
			entry.underlay = nil
		}
		entry.common = nil

		sub, err = p.dialSubLocked(entry, muxC, dialUnderlay)
		if err != nil {
			p.discardLocked(key, entry)
			return nil, err
		}
	}

	entry.users++

	return &pooledConn{Conn: sub, pool: p, key: key, entry: entry}, nil
}

func (p *ConnPool) dialSubLocked(entry *poolEntry, muxC advLayer.MuxClient, dialUnderlay func() (net.Conn, error)) (net.Conn, error) {

	if entry.common == nil {
		underlay, err := dialUnderlay()
		if err != nil {
			return nil, err
		}

		common, err := muxC.GetCommonConn(underlay)
		if err != nil || common == nil {
			if underlay != nil {
				underlay.Close()
			}
			if err == nil {
				err = utils.ErrNilParameter
			}
			return nil, err
		}
		entry.common = common
		entry.underlay = underlay
	}

	return muxC.DialSubConn(entry.common)
}

func (p *ConnPool) discardLocked(key poolKey, entry *poolEntry) {
	entry.broken = true
	if entry.underlay != nil {
		entry.underlay.Close()
		entry.underlay = nil
	}

	p.mu.Lock()
	if p.entries[key] == entry {
		delete(p.entries, key)
	}
	p.mu.Unlock()
}

// Close 关掉所有缓存的公共连接。
func (p *ConnPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, e := range p.entries {
		e.mu.Lock()
		e.broken = true
		if e.underlay != nil {
			e.underlay.Close()
			e.underlay = nil
		}
		e.mu.Unlock()
		delete(p.entries, key)
	}
}

type pooledConn struct {
	net.Conn
	pool  *ConnPool
	key   poolKey
	entry *poolEntry

	closeOnce sync.Once
}

// 最后一个引用关闭时, 底层公共连接一并关闭。
func (pc *pooledConn) Close() error {
	err := pc.Conn.Close()
	pc.closeOnce.Do(func() {
		e := pc.entry
		e.mu.Lock()
		e.users--
		if e.users <= 0 && e.underlay != nil {
			e.underlay.Close()
			e.underlay = nil
			e.common = nil
			e.broken = true
		}
		e.mu.Unlock()
	})
	return err
}
