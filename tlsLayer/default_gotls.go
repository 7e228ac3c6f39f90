//go:build !driftline_utls

package tlsLayer

// 默认构建使用标准库 crypto/tls.
const DefaultTlsType = Tls_t
