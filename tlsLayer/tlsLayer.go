/*
Package tlsLayer provides the swappable tls client layer, with both the
standard library implementation and utls browser-fingerprint mimicry.
*/
package tlsLayer

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"net"
	"os"
	"strings"
	"time"
)

// tls 实现类型. Reality_t 和 ShadowTls_t 目前只是占位, 本作尚未实现。
const (
	Tls_t int = iota
	UTls_t
	Reality_t
	ShadowTls_t
)

// 能力等级. 查询一个 tls 实现类型 当前构建 到底支不支持。
const (
	CapabilityFull int = iota
	CapabilityUnavailable
)

var (
	ErrCertRejected     = errors.New("tls: peer certificate rejected")
	ErrProtocolMismatch = errors.New("tls: negotiated alpn not in configured list")
	ErrUnknownTlsType   = errors.New("tls: unknown tls type")
)

func StrToTlsType(s string) (int, error) {
	switch strings.ToLower(s) {
	case "":
		return DefaultTlsType, nil
	case "tls":
		return Tls_t, nil
	case "utls":
		return UTls_t, nil
	case "reality":
		return Reality_t, nil
	case "shadowtls":
		return ShadowTls_t, nil
	}
	return 0, ErrUnknownTlsType
}

func TlsTypeToStr(t int) string {
	switch t {
	case Tls_t:
		return "tls"
	case UTls_t:
		return "utls"
	case Reality_t:
		return "reality"
	case ShadowTls_t:
		return "shadowtls"
	}
	return "unknown"
}

// Capability 报告给定 tls 实现类型在本构建中的能力。
// 不被支持的类型 必须在配置解析阶段就被拒绝, 绝不允许静默降级到其它类型。
func Capability(tlsType int) int {
	switch tlsType {
	case Tls_t, UTls_t:
		return CapabilityFull
	default:
		return CapabilityUnavailable
	}
}

// Conf 汇集建立一次 tls 客户端握手所需的全部配置。
type Conf struct {
	Host     string
	Insecure bool
	AlpnList []string

	//PinSHA256 是 期望的 服务端叶证书 的 sha256 的 hex 编码; 为空则不启用 pin 校验。
	PinSHA256 string

	Tls_type int

	Extra map[string]any //实现特有的额外配置, 如 utls_fingerprint
}

// 使用 ecc p256 方式生成证书
func GenerateRandomeCert_Key() ([]byte, []byte) {

	max := new(big.Int).Lsh(big.NewInt(1), 128)
	serialNumber, _ := rand.Int(rand.Reader, max)

	subject := pkix.Name{
		Country:            []string{"ZZ"},
		Province:           []string{"asfdsdaf"},
		Organization:       []string{"daffd"},
		OrganizationalUnit: []string{"adsadf"},
		CommonName:         "127.0.0.1",
	}

	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject:      subject,
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
	}

	rootKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		panic(err)
	}

	b, err := x509.MarshalECPrivateKey(rootKey)
	if err != nil {
		panic(err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: b})
	derBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, &rootKey.PublicKey, rootKey)
	if err != nil {
		panic(err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: derBytes})
	return certPEM, keyPEM
}

// 会调用 GenerateRandomeCert_Key 来生成证书，并生成包含该证书的 []tls.Certificate
func GenerateRandomTLSCert() []tls.Certificate {

	tlsCert, err := tls.X509KeyPair(GenerateRandomeCert_Key())
	if err != nil {
		panic(err)
	}
	return []tls.Certificate{tlsCert}

}

// 会调用 GenerateRandomeCert_Key 来生成证书，并输出到文件
func GenerateRandomCertKeyFiles(cfn, kfn string) error {

	cb, kb := GenerateRandomeCert_Key()

	certOut, err := os.Create(cfn)
	if err != nil {
		return err
	}

	certOut.Write(cb)

	kOut, err := os.Create(kfn)
	if err != nil {
		certOut.Close()
		return err
	}

	kOut.Write(kb)

	certOut.Close()
	kOut.Close()

	return nil
}
