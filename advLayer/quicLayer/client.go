package quicLayer

import (
	"context"
	"crypto/tls"
	"net"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/driftline/driftline/netLayer"
	"github.com/driftline/driftline/utils"
	"github.com/quic-go/quic-go"
	"go.uber.org/zap"
)

type Client struct {
	knownServerMaxStreamCount int32

	serverAddrStr string

	tlsConf tls.Config
	early   bool

	clientconns  map[[16]byte]*connState
	connMapMutex sync.RWMutex
}

func NewClient(addr *netLayer.Addr, tlsConf tls.Config, early bool) *Client {
	return &Client{
		serverAddrStr: addr.String(),
		tlsConf:       tlsConf,
		early:         early,
	}
}

func (c *Client) IsMux() bool   { return true }
func (c *Client) IsSuper() bool { return true }
func (c *Client) IsEarly() bool { return c.early }

// trimBadConns removes non-Active sessions, 并试图返回一个 最佳的可用于新stream的session
func (c *Client) trimBadConns(ss map[[16]byte]*connState) (s *connState) {
	minSessionNum := 10000
	for id, thisState := range ss {
		if isActive(thisState) {

			if c.knownServerMaxStreamCount == 0 {
				s = thisState
				return
			} else {
				osc := int(atomic.LoadInt32(&thisState.openedStreamCount))

				if osc < int(c.knownServerMaxStreamCount) {
					if osc < minSessionNum {
						s = thisState
						minSessionNum = osc
					}
				}
			}

		} else {
			thisState.CloseWithError(0, "")
			delete(ss, id)
		}
	}

	return
}

// GetCommonConn 获取已拨号的 quic Connection，或者重新从底层拨号。
// IsSuper, 所以 underlay 应为 nil.
func (c *Client) GetCommonConn(underlay net.Conn) (any, error) {
	return c.dialCommonConn(false, nil), nil
}

// 我们采用预先openStream的策略, 来试出哪些session已经满了, 哪些没满;
// 对每一个session所打开过的stream进行计数，这样就可以探知 服务端 的 最大stream数设置.
func (c *Client) dialCommonConn(openBecausePreviousFull bool, previous any) any {

	if !openBecausePreviousFull {

		c.connMapMutex.Lock()
		var theState *connState
		if len(c.clientconns) > 0 {
			theState = c.trimBadConns(c.clientconns)
		}
		if len(c.clientconns) > 0 {
			c.connMapMutex.Unlock()
			if theState != nil {
				return theState
			}
		} else {
			c.clientconns = make(map[[16]byte]*connState)
			c.connMapMutex.Unlock()
		}
	} else if previous != nil && c.knownServerMaxStreamCount == 0 {

		ps, ok := previous.(*connState)
		if !ok {
			if ce := utils.CanLogDebug("quic: 'previous' parameter was given but with wrong type"); ce != nil {
				ce.Write(zap.String("type", reflect.TypeOf(previous).String()))
			}
			return nil
		}

		c.knownServerMaxStreamCount = atomic.LoadInt32(&ps.openedStreamCount)

		if ce := utils.CanLogDebug("quic: knownServerMaxStreamCount"); ce != nil {
			ce.Write(zap.Int32("count", c.knownServerMaxStreamCount))
		}
	}

	var conn quic.Connection
	var err error

	if c.early {
		conn, err = quic.DialAddrEarly(context.Background(), c.serverAddrStr, &c.tlsConf, &common_DialConfig)
	} else {
		conn, err = quic.DialAddr(context.Background(), c.serverAddrStr, &c.tlsConf, &common_DialConfig)
	}

	if err != nil {
		if ce := utils.CanLogErr("quic: dial failed"); ce != nil {
			ce.Write(zap.Error(err))
		}
		return nil
	}

	id := utils.GenerateUUID()

	var result = &connState{Connection: conn, id: id}
	c.connMapMutex.Lock()
	c.clientconns[id] = result
	c.connMapMutex.Unlock()

	return result
}

func (c *Client) DialSubConn(thing any) (net.Conn, error) {
	theState, ok := thing.(*connState)
	if !ok || theState == nil {
		return nil, utils.ErrNilParameter
	}
	stream, err := theState.OpenStream()
	if err != nil {
		return nil, utils.ErrInErr{ErrDesc: "quic open stream failed", ErrDetail: err}
	}

	atomic.AddInt32(&theState.openedStreamCount, 1)

	return StreamConn{Stream: stream, laddr: theState.LocalAddr(), raddr: theState.RemoteAddr(), relatedConnState: theState}, nil
}

// ProcessWhenFull 在 previous 这个session 的 stream 开满时被调用, 重新拨号一条新session.
func (c *Client) ProcessWhenFull(previous any) {
	c.dialCommonConn(true, previous)
}
