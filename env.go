package driftline

import (
	"sync"

	"github.com/driftline/driftline/netLayer"
	"github.com/driftline/driftline/proxy"
	"github.com/driftline/driftline/utils"
)

// RoutingEnv 是 一代配置 的全部路由材料: 规则、出口定义 与 组。
// 引擎换代时 整个 RoutingEnv 被原子地换掉; 进行中的连接 继续持有旧的一代,
// 用完自然释放。
//
// 出口的 proxy.Client 是 惰性构建 的: 坏的出口配置 不阻止整份配置加载,
// 只在第一次被策略解析到时 以 ErrConfiguration 报出。
type RoutingEnv struct {
	Generation  int64
	RoutePolicy *netLayer.RoutePolicy

	dialConfs map[string]*proxy.DialConf
	groups    map[string]*OutGroup

	mu      sync.Mutex
	clients map[string]proxy.Client
	bad     map[string]error //构建失败过的出口, 失败结果也缓存
}

func NewRoutingEnv(generation int64) *RoutingEnv {
	return &RoutingEnv{
		Generation:  generation,
		RoutePolicy: netLayer.NewRoutePolicy(),
		dialConfs:   make(map[string]*proxy.DialConf),
		groups:      make(map[string]*OutGroup),
		clients:     make(map[string]proxy.Client),
		bad:         make(map[string]error),
	}
}

func (env *RoutingEnv) AddDialConf(dc *proxy.DialConf) {
	env.dialConfs[dc.Tag] = dc
}

func (env *RoutingEnv) AddGroup(g *OutGroup) {
	env.groups[g.Tag] = g
}

// SetClient 直接放入一个现成的 client, 测试 和 direct/reject 的预置 会用到。
func (env *RoutingEnv) SetClient(tag string, c proxy.Client) {
	env.mu.Lock()
	env.clients[tag] = c
	env.mu.Unlock()
}

// GetClient 返回 tag 对应的出口 client, 第一次使用时才真正构建。
// 构建失败返回 ErrConfiguration.
func (env *RoutingEnv) GetClient(tag string) (proxy.Client, error) {
	env.mu.Lock()
	defer env.mu.Unlock()

	if c, ok := env.clients[tag]; ok {
		return c, nil
	}
	if e, ok := env.bad[tag]; ok {
		return nil, e
	}

	dc, ok := env.dialConfs[tag]
	if !ok {
		e := utils.ErrInErr{ErrDesc: "route points to an undefined out tag", ErrDetail: ErrConfiguration, Data: tag}
		env.bad[tag] = e
		return nil, e
	}

	c, err := proxy.NewClient(dc)
	if err != nil {
		e := utils.ErrInErr{ErrDesc: "building out client failed", ErrDetail: ErrConfiguration, Data: err.Error()}
		env.bad[tag] = e
		return nil, e
	}

	env.clients[tag] = c
	return c, nil
}

// GetGroup 返回 tag 对应的组; 不是组的话返回 nil。
func (env *RoutingEnv) GetGroup(tag string) *OutGroup {
	return env.groups[tag]
}

// Candidates 把一个路由结果tag 解析为 有序的 出口节点tag 候选列表。
// 普通出口tag 就是 单元素列表。
func (env *RoutingEnv) Candidates(outTag string) ([]string, *OutGroup) {
	if g := env.groups[outTag]; g != nil {
		return g.Candidates(), g
	}
	return []string{outTag}, nil
}
