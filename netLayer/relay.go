package netLayer

import (
	"errors"
	"io"
	"net"

	"github.com/driftline/driftline/utils"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

func isClosedErr(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}

// RelayResult 记录 双向转发 结束后每个方向的结果。
// Err 为 nil 表示该方向读到了 正常的 EOF.
type RelayResult struct {
	UploadBytes, DownloadBytes int64
	UploadErr, DownloadErr     error
}

// CopyWithCounter 循环 从 readConn 读取数据并写入 writeConn, 直到错误发生。
// 每次成功写入后 counter 都会被累加, 所以转发过程中 counter 是实时可读的。
// counter 可为 nil.
func CopyWithCounter(writeConn io.Writer, readConn io.Reader, counter *atomic.Int64) (allnum int64, err error) {
	bs := utils.GetPacket()
	defer utils.PutPacket(bs)

	for {
		n, re := readConn.Read(bs)
		if n > 0 {
			wn, we := writeConn.Write(bs[:n])
			allnum += int64(wn)
			if counter != nil {
				counter.Add(int64(wn))
			}
			if we != nil {
				err = we
				return
			}
			if wn != n {
				err = io.ErrShortWrite
				return
			}
		}
		if re != nil {
			if re != io.EOF {
				err = re
			}
			return
		}
	}
}

// Relay 从 wlc 读取 写入到 wrc，并同时从 wrc 读取写入 wlc。
// 阻塞, 直到两个方向都结束。任一方向结束后会主动关闭双方连接, 以打断另一方向。
// upCounter/downCounter 可为 nil.
func Relay(realTargetAddr *Addr, wrc, wlc io.ReadWriteCloser, upCounter, downCounter *atomic.Int64) (result RelayResult) {

	downDone := make(chan struct{})

	go func() {
		result.DownloadBytes, result.DownloadErr = CopyWithCounter(wlc, wrc, downCounter)

		wlc.Close()
		wrc.Close()
		close(downDone)
	}()

	result.UploadBytes, result.UploadErr = CopyWithCounter(wrc, wlc, upCounter)

	wlc.Close()
	wrc.Close()

	<-downDone

	//一方读到EOF后 会把双方连接关掉 以打断另一方向, 被打断方向报出的
	//"closed" 类错误 是正常收尾的一部分, 不是传输故障
	if isClosedErr(result.UploadErr) {
		result.UploadErr = nil
	}
	if isClosedErr(result.DownloadErr) {
		result.DownloadErr = nil
	}

	if ce := utils.CanLogDebug("转发结束"); ce != nil {
		ce.Write(
			zap.String("target", realTargetAddr.String()),
			zap.Int64("upload bytes", result.UploadBytes),
			zap.Int64("download bytes", result.DownloadBytes),
			zap.NamedError("upload err", result.UploadErr),
			zap.NamedError("download err", result.DownloadErr),
		)
	}

	return
}
