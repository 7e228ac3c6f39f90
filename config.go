package driftline

import (
	"github.com/BurntSushi/toml"

	"github.com/driftline/driftline/netLayer"
	"github.com/driftline/driftline/proxy"
	"github.com/driftline/driftline/utils"
)

// AppConf 配置 日志等 与节点无关的全局部分。
type AppConf struct {
	LogLevel   *int   `toml:"loglevel"`
	LogFile    string `toml:"logfile"`
	DefaultOut string `toml:"default_out"` //路由全部不匹配时 兜底的出口tag; 不给则无匹配即失败
}

// GroupConf 定义一个出口组。
type GroupConf struct {
	Tag      string   `toml:"tag"`
	Members  []string `toml:"members"`
	Strategy string   `toml:"strategy"` //static / roundrobin / latency
}

// StandardConf 是标准的 toml 配置文件格式。
type StandardConf struct {
	App *AppConf `toml:"app"`

	Dial  []*proxy.DialConf    `toml:"dial"`
	Group []*GroupConf         `toml:"group"`
	Route []*netLayer.RuleConf `toml:"route"`
}

func LoadStandardConfBytes(bs []byte) (sc StandardConf, err error) {
	err = toml.Unmarshal(bs, &sc)
	if err != nil {
		err = utils.ErrInErr{ErrDesc: "parsing toml config failed", ErrDetail: err}
	}
	return
}

// BuildRoutingEnv 把一份已解析的配置 组装成一代 RoutingEnv。
// 出口节点本身 此时不构建, 留到第一次被路由解析到时; 这里只做
// 引用层面的检查: 组成员 必须指向已定义的出口tag。
func BuildRoutingEnv(sc StandardConf, generation int64) (*RoutingEnv, error) {
	env := NewRoutingEnv(generation)

	for _, dc := range sc.Dial {
		if dc.Tag == "" {
			return nil, utils.ErrInErr{ErrDesc: "dial conf requires a tag", ErrDetail: ErrConfiguration}
		}
		if _, has := env.dialConfs[dc.Tag]; has {
			return nil, utils.ErrInErr{ErrDesc: "duplicate dial tag", ErrDetail: ErrConfiguration, Data: dc.Tag}
		}
		env.AddDialConf(dc)
	}

	for _, gc := range sc.Group {
		if gc.Tag == "" || len(gc.Members) == 0 {
			return nil, utils.ErrInErr{ErrDesc: "group conf requires a tag and members", ErrDetail: ErrConfiguration}
		}
		if _, has := env.dialConfs[gc.Tag]; has {
			return nil, utils.ErrInErr{ErrDesc: "group tag collides with a dial tag", ErrDetail: ErrConfiguration, Data: gc.Tag}
		}
		for _, m := range gc.Members {
			if _, has := env.dialConfs[m]; !has {
				return nil, utils.ErrInErr{ErrDesc: "group member references an undefined dial tag", ErrDetail: ErrConfiguration, Data: m}
			}
		}
		env.AddGroup(NewOutGroup(gc.Tag, gc.Members, gc.Strategy))
	}

	netLayer.LoadRulesForRoutePolicy(sc.Route, env.RoutePolicy)

	if sc.App != nil && sc.App.DefaultOut != "" {
		//兜底规则: 一条空条件的规则放在最后, 匹配一切
		catchAll := netLayer.NewFullRouteSet()
		catchAll.OutTag = sc.App.DefaultOut
		env.RoutePolicy.AddRouteSet(catchAll)
	}

	return env, nil
}

// ApplyAppConf 按 app 段调整全局日志配置。
func ApplyAppConf(ac *AppConf) {
	if ac == nil {
		return
	}
	changed := false
	if ac.LogLevel != nil && *ac.LogLevel != utils.LogLevel {
		utils.LogLevel = *ac.LogLevel
		changed = true
	}
	if ac.LogFile != "" && ac.LogFile != utils.LogOutFileName {
		utils.LogOutFileName = ac.LogFile
		changed = true
	}
	if changed {
		utils.InitLog("log config applied")
	}
}
