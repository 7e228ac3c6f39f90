package proxy

import (
	"crypto/tls"

	"go.uber.org/zap"

	"github.com/driftline/driftline/advLayer"
	"github.com/driftline/driftline/netLayer"
	"github.com/driftline/driftline/tlsLayer"
	"github.com/driftline/driftline/utils"
)

var clientCreatorMap = map[string]ClientCreator{
	DirectName: DirectCreator{},
	RejectName: RejectCreator{},
}

type ClientCreator interface {
	NewClient(*DialConf) (Client, error)
}

// 规定，每个 实现Client的包必须使用本函数进行注册。
// direct 和 reject 统一使用本包提供的方法, 自定义协议不得覆盖 direct 和 reject。
func RegisterClient(name string, c ClientCreator) {
	switch name {
	case DirectName, RejectName:
		return
	}
	clientCreatorMap[name] = c
}

// NewClient 按照配置 创建一个完整的 Client, 包括 tls层 与 高级层 的准备。
// 任何一层 在本构建中 不可用, 都在这里就报错, 而不是拖到拨号时。
func NewClient(dc *DialConf) (Client, error) {
	creator, ok := clientCreatorMap[dc.Protocol]
	if !ok {
		return nil, utils.ErrInErr{ErrDesc: "unknown client protocol", ErrDetail: utils.ErrWrongParameter, Data: dc.Protocol}
	}

	c, err := creator.NewClient(dc)
	if err != nil {
		return nil, err
	}
	c.(baseSetter).setDialConf(dc)

	var advCreator advLayer.Creator

	if dc.AdvancedLayer != "" {
		advCreator, ok = advLayer.GetCreator(dc.AdvancedLayer)
		if !ok {
			return nil, utils.ErrInErr{ErrDesc: "advanced layer not available in this build", ErrDetail: utils.ErrWrongParameter, Data: dc.AdvancedLayer}
		}
		if advCreator.Capability() == advLayer.CapabilityUnavailable {
			return nil, utils.ErrInErr{ErrDesc: "advanced layer is known but unavailable in this build", ErrDetail: utils.ErrWrongParameter, Data: dc.AdvancedLayer}
		}

		// 某些高级层对 alpn 有严格要求
		if alpn, must := advCreator.GetDefaultAlpn(); must {
			dc.Alpn = []string{alpn}
		} else if alpn != "" && len(dc.Alpn) == 0 {
			dc.Alpn = []string{alpn}
		}
	}

	sniHost := dc.Host
	if sniHost == "" {
		sniHost = dc.IP
	}

	isSuper := advCreator != nil && advCreator.IsSuper()

	if !isSuper && (dc.TLS || dc.Utls || dc.TlsType != "") {
		if err = prepareTLS_forClient(c, dc, sniHost); err != nil {
			return nil, err
		}
	}

	if advCreator != nil {
		if err = prepareAdv_forClient(c, dc, advCreator, sniHost); err != nil {
			return nil, err
		}
	}

	if ce := utils.CanLogDebug("built outbound client"); ce != nil {
		ce.Write(zap.String("tag", c.GetTag()), zap.String("url", GetVSI_url(c)))
	}

	return c, nil
}

// Base 的私有配置入口; 所有实现都内嵌 Base, 自动满足本接口.
type baseSetter interface {
	setDialConf(*DialConf)
}

func (b *Base) setDialConf(dc *DialConf) {
	b.dialConf = dc
}

func prepareTLS_forClient(c Client, dc *DialConf, sniHost string) error {

	tlsType := tlsLayer.DefaultTlsType
	if dc.Utls {
		tlsType = tlsLayer.UTls_t
	} else if dc.TlsType != "" {
		var err error
		tlsType, err = tlsLayer.StrToTlsType(dc.TlsType)
		if err != nil {
			return utils.ErrInErr{ErrDesc: "bad tls_type", ErrDetail: err, Data: dc.TlsType}
		}
	}

	if tlsLayer.Capability(tlsType) != tlsLayer.CapabilityFull {
		return utils.ErrInErr{ErrDesc: "tls type is known but unavailable in this build", ErrDetail: utils.ErrWrongParameter, Data: dc.TlsType}
	}

	tc, err := tlsLayer.NewClient(tlsLayer.Conf{
		Host:      sniHost,
		Insecure:  dc.Insecure,
		AlpnList:  dc.Alpn,
		PinSHA256: dc.CertPin,
		Tls_type:  tlsType,
		Extra:     dc.Extra,
	})
	if err != nil {
		return err
	}

	c.SetUseTLS()
	c.SetTLS_Client(tc)
	return nil
}

func prepareAdv_forClient(c Client, dc *DialConf, advCreator advLayer.Creator, sniHost string) error {

	addr, err := netLayer.NewAddrByHostPort(dc.GetAddrStrForDial())
	if err != nil {
		return utils.ErrInErr{ErrDesc: "bad dial addr", ErrDetail: err, Data: dc.GetAddrStr()}
	}
	addr.Network = c.Network()

	conf := &advLayer.Conf{
		Host:    sniHost,
		Addr:    addr,
		Path:    dc.Path,
		Headers: dc.Headers,
		IsEarly: dc.EarlyData,
		Extra:   dc.Extra,
	}

	if advCreator.IsSuper() {
		//超级协议自己处理tls, 要把tls配置传给它
		conf.TlsConf = &tls.Config{
			ServerName:         sniHost,
			InsecureSkipVerify: dc.Insecure,
			NextProtos:         dc.Alpn,
		}
	}

	advClient, err := advCreator.NewClientFromConf(conf)
	if err != nil {
		return utils.ErrInErr{ErrDesc: "init advanced layer failed", ErrDetail: err, Data: dc.AdvancedLayer}
	}

	c.SetAdvClient(advClient)
	return nil
}
