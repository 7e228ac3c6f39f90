package ws

import (
	"io"
	"net"

	"github.com/driftline/driftline/utils"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// 因为 gobwas/ws 不包装conn，读写二进制时需要使用较为底层的函数才行，并未被提供
// 标准的Read和Write。因此我们包装一下，统一使用Read和Write函数来读写二进制数据。
type Conn struct {
	net.Conn

	state ws.State
	r     *wsutil.Reader

	remainLenForLastFrame int64
}

// Read websocket binary frames
func (c *Conn) Read(p []byte) (int, error) {

	//websocket 协议中帧长度上限为2^64，超大; 肯定会有一帧多次读的情况,
	// 所以不能用 wsutil.ReadServerBinary (内部 io.ReadAll, 内存无限增长),
	// 要用 wsutil.Reader.Read 分段读, 注意每个Read前必须要有 NextFrame调用

	if c.remainLenForLastFrame > 0 {

		n, e := c.r.Read(p)

		if e != nil && e != io.EOF {
			return n, e
		}
		c.remainLenForLastFrame -= int64(n)
		// wsutil.Reader 内部用了 io.LimitedReader, 一帧的读取长度上限已被限定,
		// 所以这里不怕减成负的
		return n, nil
	}

	h, e := c.r.NextFrame()
	if e != nil {
		return 0, e
	}
	if h.OpCode.IsControl() {
		// 控制帧已经在我们的 OnIntermediate 里被处理了, 直接读取下一个数据即可
		return c.Read(p)
	}

	// 读取分片数据时，会遇到 OpContinuation, 不能当错误处理
	if h.OpCode != ws.OpBinary && h.OpCode != ws.OpContinuation {
		return 0, utils.ErrInErr{ErrDesc: "ws OpCode not OpBinary/OpContinuation", Data: h.OpCode}
	}

	c.remainLenForLastFrame = h.Length

	// 只有 fragmented 的情况下 wsutil 才会自己处理EOF，否则还是会传递到我们这里,
	// 这样每一次读取都能有明确的帧边界

	n, e := c.r.Read(p)

	c.remainLenForLastFrame -= int64(n)

	if e != nil && e != io.EOF {
		return n, e
	}
	return n, nil
}

// Write websocket binary frames.
// wsutil.WriteClientBinary 等函数会直接调用 ws.WriteFrame, 不分片, 无需缓存.
func (c *Conn) Write(p []byte) (n int, e error) {

	if c.state == ws.StateClientSide {
		e = wsutil.WriteClientBinary(c.Conn, p)
	} else {
		e = wsutil.WriteServerBinary(c.Conn, p)
	}

	if e == nil {
		n = len(p)
	}
	return
}
