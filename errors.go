package driftline

import "errors"

// 整个引擎对外暴露的错误分类。内部各层的具体错误 都会被包装到 这几类之一,
// 使用 errors.Is 判断。
var (
	//配置在 加载 或 策略解析 阶段就有问题, 比如引用了本构建不可用的能力.
	ErrConfiguration = errors.New("configuration error")

	//路由表遍历完毕也没有匹配到任何出口.
	ErrRoutingExhausted = errors.New("routing exhausted")

	//传输层拨号失败.
	ErrTransportConnect = errors.New("transport connect failed")

	//tls/高级层/代理层 握手失败。对 乐观协议 来说, 认证失败与网络故障无法区分,
	//所以超时也归于此类.
	ErrHandshakeFailed = errors.New("handshake failed")

	//转发过程中某一方向 非EOF 地中断.
	ErrTruncatedTransfer = errors.New("truncated transfer")

	//策略拒绝了该连接.
	ErrPolicyRejected = errors.New("rejected by policy")
)
