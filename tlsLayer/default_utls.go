//go:build driftline_utls

package tlsLayer

// 以 driftline_utls 构建时, 未指明 tls 实现的配置 默认使用 utls.
const DefaultTlsType = UTls_t
