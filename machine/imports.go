package machine

// 在 FFI 边界上集中注册本构建支持的 代理协议 与 高级层。
// 嵌入方只要 import 本包, 配置里的完整协议集就都可用。
import (
	_ "github.com/driftline/driftline/proxy/trojan"
	_ "github.com/driftline/driftline/proxy/vless"

	_ "github.com/driftline/driftline/advLayer/h2s"
	_ "github.com/driftline/driftline/advLayer/hchunk"
	_ "github.com/driftline/driftline/advLayer/quicLayer"
	_ "github.com/driftline/driftline/advLayer/smuxLayer"
	_ "github.com/driftline/driftline/advLayer/ws"
)
