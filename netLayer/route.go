package netLayer

import (
	"errors"
	"math/rand"
	"net/netip"
	"regexp"
	"strings"

	"github.com/yl2chen/cidranger"
)

// ErrNoRouteMatched is returned by ResolveOutTag when no RouteSet matches the
// target. 不设默认出口; 想要兜底行为的话, 在列表末尾 append 一个空RouteSet 即可.
var ErrNoRouteMatched = errors.New("no route matched")

// 用于 HasFullOrSubDomain函数
type DomainHaser interface {
	HasDomain(string) bool
}

type MapDomainHaser map[string]bool

func (mdh MapDomainHaser) HasDomain(d string) bool {
	_, found := mdh[d]
	return found
}

// 会以点号分裂domain判断每一个子域名是否被包含，最终会试图匹配整个字符串.
func HasFullOrSubDomain(domain string, ds DomainHaser) bool {
	lastDotIndex := len(domain)

	var suffix string
	for {

		lastDotIndex = strings.LastIndex(domain[:lastDotIndex], ".")

		suffix = domain[lastDotIndex+1:]
		if ds.HasDomain(suffix) {
			return true
		}
		if lastDotIndex == -1 {
			return false
		}
	}

}

// TargetDescription 完整地描述 网络层/传输层 上的一个特定访问目标。
// InTag 标识流量的来源, Process 是发起访问的本机进程名(若已知).
type TargetDescription struct {
	Addr    Addr
	InTag   string
	Process string
}

// Set 是 “集合” 的意思, 是一组相同类型的数据放到一起。
// 任意一个参数匹配后，都将发往相同的方向，由该方向OutTag 指定。
//
// 这里主要通过 ip，域名、端口、inTag 和 进程名 进行分流。域名的匹配又分多种方式。
type RouteSet struct {
	//网络层
	NetRanger cidranger.Ranger    //一个范围
	IPs       map[netip.Addr]bool //一个确定值

	//Domains匹配子域名，当此域名是目标域名或其子域名时，该规则生效.
	Domains map[string]bool

	//Full只匹配完整域名;
	Full   map[string]bool
	InTags map[string]bool

	//Countries 使用 ISO 3166 字符串 作为key.
	Countries map[string]bool

	//Processes 匹配发起连接的本机进程名.
	Processes map[string]bool

	//Regex是正则匹配域名.
	Regex []*regexp.Regexp

	//Match 匹配任意字符串
	Match []string

	//Ports 是闭区间列表, {p, p} 表示单个端口.
	Ports [][2]int

	//传输层
	AllowedTransportLayerProtocols uint16

	OutTag  string   //目标
	OutTags []string //目标列表
}

func NewFullRouteSet() *RouteSet {
	return &RouteSet{
		NetRanger:                      cidranger.NewPCTrieRanger(),
		IPs:                            make(map[netip.Addr]bool),
		Match:                          make([]string, 0),
		Domains:                        make(map[string]bool),
		Full:                           make(map[string]bool),
		InTags:                         make(map[string]bool),
		Countries:                      make(map[string]bool),
		Processes:                      make(map[string]bool),
		AllowedTransportLayerProtocols: TCP | UDP, //默认即支持tcp和udp
	}
}

func (rs *RouteSet) IsIn(td *TargetDescription) bool {
	var tagOk bool
	if len(rs.InTags) > 0 {
		if td.InTag != "" {
			_, tagOk = rs.InTags[td.InTag]
		}
	} else {
		tagOk = true
	}
	if !tagOk {
		return false
	}

	var processOk bool
	if len(rs.Processes) > 0 {
		if td.Process != "" {
			_, processOk = rs.Processes[td.Process]
		}
	} else {
		processOk = true
	}
	if !processOk {
		return false
	}

	return rs.IsAddrIn(td.Addr)
}

func (rs *RouteSet) IsTransportProtocolAllowed(p uint16) bool {
	return rs.AllowedTransportLayerProtocols&p > 0
}

func (rs *RouteSet) IsAddrNetworkAllowed(a Addr) bool {

	if a.Network == "" {
		return rs.IsTransportProtocolAllowed(TCP)
	}

	p := StrToTransportProtocol(a.Network)

	if p != UnknownNetwork {
		return rs.IsTransportProtocolAllowed(p)

	} else {
		return true //未知网络类型的话，不太建议阻拦，因为每个新的网络类型都需要加入代码中进行准确判断。
	}
}

func (rs *RouteSet) IsPortIn(port int) bool {
	for _, pr := range rs.Ports {
		if port >= pr[0] && port <= pr[1] {
			return true
		}
	}
	return false
}

func (rs *RouteSet) IsNoLimitForNetworkLayer() bool {
	if (rs.NetRanger == nil || rs.NetRanger.Len() == 0) && len(rs.IPs) == 0 && len(rs.Match) == 0 && len(rs.Domains) == 0 && len(rs.Full) == 0 && len(rs.Regex) == 0 && len(rs.Countries) == 0 && len(rs.Ports) == 0 {
		//如果仅限制了一个传输层协议，且本集合里没有任何其它内容，那就直接通过
		return true
	}
	return false
}

func (rs *RouteSet) IsAddrIn(a Addr) bool {
	//我们先过滤传输层，再过滤网络层, 因为传输层过滤非常简单。

	if !rs.IsAddrNetworkAllowed(a) {
		return false
	}

	if rs.IsNoLimitForNetworkLayer() { //necessary
		return true
	}

	//端口与其它条件是 And 关系; 给出了端口限制但端口不符的话, 本集合一定不匹配。
	if len(rs.Ports) > 0 {
		if !rs.IsPortIn(a.Port) {
			return false
		}
		if rs.onlyHasPortLimit() {
			return true
		}
	}

	//开始网络层判断
	if len(a.IP) > 0 {
		if ip4 := a.IP.To4(); ip4 != nil { //发现有时传入的是ipv6形式的ipv4，这会对我们过滤干扰
			a.IP = ip4
		}

		if rs.NetRanger != nil && rs.NetRanger.Len() > 0 {
			if has, _ := rs.NetRanger.Contains(a.IP); has {
				return true
			}
		}
		if len(rs.Countries) > 0 {

			if isoStr := GetIP_ISO(a.IP); isoStr != "" {
				if _, found := rs.Countries[isoStr]; found {
					return true
				}
			}

		}
		if len(rs.IPs) > 0 {
			if _, found := rs.IPs[a.GetNetIPAddr()]; found {
				return true
			}
		}
	}

	if a.Name != "" {

		if len(rs.Full) > 0 {
			if _, found := rs.Full[a.Name]; found {
				return true
			}
		}

		if len(rs.Domains) > 0 {

			if HasFullOrSubDomain(a.Name, MapDomainHaser(rs.Domains)) {
				return true
			}

		}

		if len(rs.Match) > 0 {
			for _, m := range rs.Match {
				if strings.Contains(a.Name, m) {
					return true
				}
			}
		}

		if len(rs.Regex) > 0 {
			for _, reg := range rs.Regex {
				if reg.MatchString(a.Name) {
					return true
				}
			}
		}

	}
	return false
}

func (rs *RouteSet) onlyHasPortLimit() bool {
	return (rs.NetRanger == nil || rs.NetRanger.Len() == 0) && len(rs.IPs) == 0 && len(rs.Match) == 0 && len(rs.Domains) == 0 && len(rs.Full) == 0 && len(rs.Regex) == 0 && len(rs.Countries) == 0
}

// 一个完整的 所有RouteSet的列表，进行路由时，直接遍历即可, 第一个匹配的集合获胜。
// 所谓的路由实际上就是分流。
type RoutePolicy struct {
	List []*RouteSet
}

func NewRoutePolicy() *RoutePolicy {
	return &RoutePolicy{
		List: make([]*RouteSet, 0, 2),
	}
}

func (rp *RoutePolicy) AddRouteSet(rs *RouteSet) {
	if rs != nil {
		rp.List = append(rp.List, rs)
	}
}

// 根据td 以及 RoutePolicy的配置 计算出 一个 对应出口的 tag。
// 若遍历完整个列表都没有匹配, 返回 ErrNoRouteMatched, 此时 tag 为空。
func (rp *RoutePolicy) ResolveOutTag(td *TargetDescription) (string, error) {
	for _, rs := range rp.List {
		if rs.IsIn(td) {
			switch n := len(rs.OutTags); n {
			case 0:
				return rs.OutTag, nil
			case 1:
				return rs.OutTags[0], nil
			default:
				return rs.OutTags[rand.Intn(n)], nil
			}

		}
	}
	return "", ErrNoRouteMatched
}
