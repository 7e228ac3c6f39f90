package netLayer

import (
	"net"
	"net/netip"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/driftline/driftline/utils"
	"github.com/yl2chen/cidranger"
	"go.uber.org/zap"
)

type RuleConf struct {
	DialTag any `toml:"toTag"`

	InTags    []string `toml:"fromTag"`
	Processes []string `toml:"process"`

	Countries []string `toml:"country"` // ISO 3166 两字符
	IPs       []string `toml:"ip"`      // 单ip 或 cidr
	Domains   []string `toml:"domain"`  // 前缀语法: full: / domain: / regexp: / 无前缀则为 contains 匹配
	Network   []string `toml:"network"`
	Ports     []string `toml:"port"` // "443" 或 "1000-2000"
}

func LoadRulesForRoutePolicy(rules []*RuleConf, policy *RoutePolicy) {
	for _, rc := range rules {
		policy.List = append(policy.List, LoadRuleForRouteSet(rc))
	}
}

func LoadRuleForRouteSet(rule *RuleConf) (rs *RouteSet) {
	rs = NewFullRouteSet()

	switch value := rule.DialTag.(type) {
	case string:
		rs.OutTag = value
	case []string:
		rs.OutTags = value
	case []any:
		list := make([]string, 0, len(value))
		for i, v := range value {
			if s, ok := v.(string); ok {
				list = append(list, s)
			} else {
				if ce := utils.CanLogErr("route outTags list has non-string item"); ce != nil {
					ce.Write(zap.Int("index", i), zap.String("type", reflect.TypeOf(v).String()), zap.Any("value", v))
				}
			}
		}
		rs.OutTags = list
	}

	for _, c := range rule.Countries {
		rs.Countries[strings.ToUpper(c)] = true
	}

	for _, d := range rule.Domains {
		colonIdx := strings.Index(d, ":")
		if colonIdx < 0 {
			rs.Match = append(rs.Match, d)
			continue
		}
		switch d[:colonIdx] {
		case "full":
			rs.Full[d[colonIdx+1:]] = true
		case "domain":
			rs.Domains[d[colonIdx+1:]] = true
		case "regexp":
			reg, err := regexp.Compile(d[colonIdx+1:])
			if err == nil {
				rs.Regex = append(rs.Regex, reg)
			} else {
				if ce := utils.CanLogErr("LoadRuleForRouteSet, regex illegal"); ce != nil {
					ce.Write(zap.Error(err))
				}
			}
		default:
			if ce := utils.CanLogErr("LoadRuleForRouteSet, not supported"); ce != nil {
				ce.Write(zap.String("item", d))
			}
		}
	}

	for _, t := range rule.InTags {
		rs.InTags[t] = true
	}

	for _, p := range rule.Processes {
		rs.Processes[p] = true
	}

	//ip 过滤 需要 分辨 cidr 和普通ip

	for _, ipStr := range rule.IPs {
		if strings.Contains(ipStr, "/") {
			if _, ipnet, err := net.ParseCIDR(ipStr); err == nil {
				rs.NetRanger.Insert(cidranger.NewBasicRangerEntry(*ipnet))
			}
			continue
		}

		na, e := netip.ParseAddr(ipStr)
		if e == nil {
			rs.IPs[na] = true
		} else {
			if ce := utils.CanLogErr("LoadRuleForRouteSet, parse ip failed"); ce != nil {
				ce.Write(zap.String("ipStr", ipStr), zap.Error(e))
			}
		}
	}

	for _, ps := range rule.Ports {
		if pr, ok := parsePortRange(ps); ok {
			rs.Ports = append(rs.Ports, pr)
		} else {
			if ce := utils.CanLogErr("LoadRuleForRouteSet, parse port failed"); ce != nil {
				ce.Write(zap.String("portStr", ps))
			}
		}
	}

	if len(rule.Network) > 0 {
		rs.AllowedTransportLayerProtocols = 0
		for _, ns := range rule.Network {
			rs.AllowedTransportLayerProtocols |= StrToTransportProtocol(ns)
		}
	}

	return rs
}

func parsePortRange(s string) (pr [2]int, ok bool) {
	if dashIdx := strings.Index(s, "-"); dashIdx >= 0 {
		lo, e1 := strconv.Atoi(s[:dashIdx])
		hi, e2 := strconv.Atoi(s[dashIdx+1:])
		if e1 != nil || e2 != nil || lo < 0 || hi > 65535 || lo > hi {
			return
		}
		return [2]int{lo, hi}, true
	}
	p, e := strconv.Atoi(s)
	if e != nil || p < 0 || p > 65535 {
		return
	}
	return [2]int{p, p}, true
}
