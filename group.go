package driftline

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// 出口组的候选排序策略。
const (
	StrategyStatic     = "static"     //固定按配置顺序
	StrategyRoundRobin = "roundrobin" //轮转
	StrategyLatency    = "latency"    //按历史 连接+握手 耗时的EWMA升序
)

// OutGroup 把若干个 出口节点tag 绑成一个可整体引用的组。
// 路由匹配到组tag 后, 调度器按 Candidates 给出的顺序 逐个尝试。
type OutGroup struct {
	Tag      string
	Members  []string
	Strategy string

	cursor *atomic.Uint32

	mu   sync.RWMutex
	ewma map[string]time.Duration //member tag -> 连接+握手耗时的EWMA
}

func NewOutGroup(tag string, members []string, strategy string) *OutGroup {
	if strategy == "" {
		strategy = StrategyStatic
	}
	return &OutGroup{
		Tag:      tag,
		Members:  members,
		Strategy: strategy,
		cursor:   atomic.NewUint32(0),
		ewma:     make(map[string]time.Duration, len(members)),
	}
}

// Candidates 返回本次会话的 完整候选列表; 调度器失败重试时 依次取用,
// 不会超过组的大小。每个会话只解析一次。
func (g *OutGroup) Candidates() []string {
	n := len(g.Members)
	if n == 0 {
		return nil
	}

	switch g.Strategy {
	case StrategyRoundRobin:
		start := int(g.cursor.Inc()-1) % n
		out := make([]string, 0, n)
		for i := 0; i < n; i++ {
			out = append(out, g.Members[(start+i)%n])
		}
		return out

	case StrategyLatency:
		out := make([]string, n)
		copy(out, g.Members)

		g.mu.RLock()
		defer g.mu.RUnlock()
		sort.SliceStable(out, func(i, j int) bool {
			di, iok := g.ewma[out[i]]
			dj, jok := g.ewma[out[j]]
			if iok && jok {
				return di < dj
			}
			//没有样本的节点 排在有样本的前面, 好让它尽快攒出数据
			return !iok && jok
		})
		return out

	default:
		out := make([]string, n)
		copy(out, g.Members)
		return out
	}
}

// ReportLatency 记录一次成功建立隧道(连接+握手)的耗时。
// 纯被动观测, 不做探测。
func (g *OutGroup) ReportLatency(member string, d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	old, ok := g.ewma[member]
	if !ok {
		g.ewma[member] = d
		return
	}
	// alpha = 0.3
	g.ewma[member] = old - old*3/10 + d*3/10
}
