package tlsLayer

import (
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"net"
	"strings"

	"github.com/driftline/driftline/utils"
	utls "github.com/refraction-networking/utls"
	"go.uber.org/zap"
)

type Client struct {
	tlsConfig  *tls.Config
	uTlsConfig utls.Config
	tlsType    int
	alpnList   []string

	utlsFingerprint utls.ClientHelloID
}

// NewClient 构建 tls 客户端。conf.Tls_type 必须是本构建 CapabilityFull 的类型，
// 否则返回错误; 绝不静默换用其它实现。
func NewClient(conf Conf) (*Client, error) {

	if Capability(conf.Tls_type) != CapabilityFull {
		return nil, utils.ErrInErr{ErrDesc: "tls type not available in this build", ErrDetail: ErrUnknownTlsType, Data: TlsTypeToStr(conf.Tls_type)}
	}

	if conf.PinSHA256 != "" {
		sum, err := hex.DecodeString(strings.ToLower(conf.PinSHA256))
		if err != nil || len(sum) != sha256.Size {
			return nil, utils.ErrInErr{ErrDesc: "bad cert pin, expect sha256 hex", Data: conf.PinSHA256}
		}
	}

	if conf.Insecure {
		if ce := utils.CanLogWarn("tls Insecure is on, server certificate will not be verified"); ce != nil {
			ce.Write(zap.String("host", conf.Host))
		}
	}

	c := &Client{
		tlsType:  conf.Tls_type,
		alpnList: conf.AlpnList,
	}

	switch conf.Tls_type {
	case UTls_t:
		c.uTlsConfig = getUTlsConfig(conf)
		c.utlsFingerprint = utlsFingerprintFromExtra(conf.Extra)

		if ce := utils.CanLogInfo("using uTls for"); ce != nil {
			ce.Write(zap.String("host", conf.Host))
		}
	default:
		c.tlsConfig = getTlsConfig(conf)
	}

	return c, nil
}

func getTlsConfig(conf Conf) *tls.Config {
	return &tls.Config{
		InsecureSkipVerify:    conf.Insecure,
		ServerName:            conf.Host,
		NextProtos:            conf.AlpnList,
		VerifyPeerCertificate: pinVerifier(conf.PinSHA256),
	}
}

func getUTlsConfig(conf Conf) utls.Config {
	return utls.Config{
		InsecureSkipVerify:    conf.Insecure,
		ServerName:            conf.Host,
		NextProtos:            conf.AlpnList,
		VerifyPeerCertificate: pinVerifier(conf.PinSHA256),
	}
}

// pin 校验独立于证书链校验, Insecure 也不能绕过它。
func pinVerifier(pinHex string) func(rawCerts [][]byte, verifiedChains [][]*x509.Certificate) error {
	if pinHex == "" {
		return nil
	}
	want := strings.ToLower(pinHex)
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return ErrCertRejected
		}
		sum := sha256.Sum256(rawCerts[0])
		if hex.EncodeToString(sum[:]) != want {
			return utils.ErrInErr{ErrDesc: "cert pin mismatch", ErrDetail: ErrCertRejected, Data: hex.EncodeToString(sum[:])}
		}
		return nil
	}
}

func utlsFingerprintFromExtra(extra map[string]any) utls.ClientHelloID {
	if len(extra) > 0 {
		if thing := extra["utls_fingerprint"]; thing != nil {
			if str, ok := thing.(string); ok {
				switch strings.ToLower(str) {
				case "firefox":
					return utls.HelloFirefox_Auto
				case "ios":
					return utls.HelloIOS_Auto
				case "safari":
					return utls.HelloSafari_Auto
				case "golang":
					return utls.HelloGolang
				case "android":
					return utls.HelloAndroid_11_OkHttp
				case "360":
					return utls.Hello360_Auto
				case "edge":
					return utls.HelloEdge_Auto
				case "random":
					return utls.HelloRandomized
				}
			}
		}
	}
	return utls.HelloChrome_Auto
}

// Handshake 在 underlay 上完成 tls 握手并校验 alpn 协商结果。
// 握手的超时由调用方通过 underlay 的 deadline 控制。
func (c *Client) Handshake(underlay net.Conn) (result net.Conn, err error) {

	var alpn string

	switch c.tlsType {
	case UTls_t:
		configCopy := c.uTlsConfig //握手一次后配置会被污染，只能拷贝

		utlsConn := utls.UClient(underlay, &configCopy, c.utlsFingerprint)
		err = utlsConn.Handshake()
		if err != nil {
			return
		}
		alpn = utlsConn.ConnectionState().NegotiatedProtocol
		result = &Conn{
			Conn:    utlsConn,
			tlsType: UTls_t,
			alpn:    alpn,
		}
	default:
		officialConn := tls.Client(underlay, c.tlsConfig)
		err = officialConn.Handshake()
		if err != nil {
			return
		}
		alpn = officialConn.ConnectionState().NegotiatedProtocol
		result = &Conn{
			Conn:    officialConn,
			tlsType: Tls_t,
			alpn:    alpn,
		}
	}

	if len(c.alpnList) > 0 && alpn != "" {
		var ok bool
		for _, a := range c.alpnList {
			if a == alpn {
				ok = true
				break
			}
		}
		if !ok {
			result.Close()
			return nil, utils.ErrInErr{ErrDesc: "alpn mismatch", ErrDetail: ErrProtocolMismatch, Data: alpn}
		}
	}

	return
}
