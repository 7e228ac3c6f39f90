package utils

import (
	"bytes"
	"sync"
)

var (
	standardBytesPool sync.Pool //专门储存 长度为 StandardBytesLength 的 []byte

	standardPacketPool sync.Pool // 专门储存 长度为 MaxBufLen 的 []byte

	bufPool sync.Pool //储存 *bytes.Buffer
)

// 即MTU, Maximum transmission unit, 参照的是 Ethernet v2 的MTU.
const StandardBytesLength int = 1500

// 本作设定的最大buf大小, 64k. tcp默认是16k, udp 最大不到64k, io.Copy 内部默认 32k,
// 总之 64k 够了.
const MaxBufLen = 64 * 1024

func init() {
	standardBytesPool = sync.Pool{
		New: func() interface{} {
			return make([]byte, StandardBytesLength)
		},
	}

	standardPacketPool = sync.Pool{
		New: func() interface{} {
			return make([]byte, MaxBufLen)
		},
	}

	bufPool = sync.Pool{
		New: func() interface{} {
			return &bytes.Buffer{}
		},
	}
}

// 从Pool中获取一个 *bytes.Buffer
func GetBuf() *bytes.Buffer {
	return bufPool.Get().(*bytes.Buffer)
}

// 将 buf 放回 Pool
func PutBuf(buf *bytes.Buffer) {
	buf.Reset()
	bufPool.Put(buf)
}

// 建议在 Read net.Conn 时, 使用 GetPacket函数 获取到足够大的 []byte（MaxBufLen）
func GetPacket() []byte {
	return standardPacketPool.Get().([]byte)
}

// 放回用 GetPacket 获取的 []byte
func PutPacket(bs []byte) {
	if cap(bs) != MaxBufLen {
		return
	}
	standardPacketPool.Put(bs[:MaxBufLen])
}

// GetBytes 返回一个 长度为 size 的 []byte, 根据size 选取合适的Pool.
func GetBytes(size int) []byte {
	if size <= StandardBytesLength {
		bs := standardBytesPool.Get().([]byte)
		return bs[:size]
	}
	if size <= MaxBufLen {
		bs := standardPacketPool.Get().([]byte)
		return bs[:size]
	}
	return make([]byte, size)
}

// 放回用 GetBytes 获取的 []byte
func PutBytes(bs []byte) {
	c := cap(bs)
	switch {
	case c == StandardBytesLength:
		standardBytesPool.Put(bs[:c])
	case c == MaxBufLen:
		standardPacketPool.Put(bs[:c])
	}
}
