package ws

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"

	"github.com/driftline/driftline/utils"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Client只是在tcp/tls 的基础上包了一层websocket而已，不管其他内容.
// 把 真实目标地址 写入数据流 是 proxy 层的事。
type Client struct {
	requestURL   *url.URL //调用 gobwas/ws.Dialer.Upgrade 时要传入url，所以直接提供包装好的
	headers      http.Header
	UseEarlyData bool
}

// 这里默认，传入的path必须 以 "/" 为前缀. 本函数 不对此进行任何检查
func NewClient(hostAddr, path string, headers map[string][]string, isEarly bool) (*Client, error) {
	u, err := url.Parse("http://" + hostAddr + path)
	if err != nil {
		return nil, err
	}
	return &Client{
		requestURL:   u,
		headers:      http.Header(headers),
		UseEarlyData: isEarly,
	}, nil
}

func (*Client) IsMux() bool     { return false }
func (*Client) IsSuper() bool   { return false }
func (c *Client) IsEarly() bool { return c.UseEarlyData }

// Handshake 与服务端进行 websocket 升级握手，返回可直接读写二进制数据的 net.Conn。
// 开启 earlydata 时, 握手被推迟到第一次 Write, 首包会以 base64 塞进
// Sec-WebSocket-Protocol header 里.
func (c *Client) Handshake(underlay net.Conn, payload []byte) (net.Conn, error) {
	if c.UseEarlyData {
		return c.handshakeWithEarlyData(underlay, payload)
	}

	conn, err := c.upgrade(underlay, nil)
	if err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		if _, err = conn.Write(payload); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return conn, nil
}

func (c *Client) dialer(underlay net.Conn) *ws.Dialer {
	d := &ws.Dialer{
		NetDial: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return underlay, nil
		},
	}
	if len(c.headers) > 0 {
		d.Header = ws.HandshakeHeaderHTTP(c.headers)
	}
	return d
}

func (c *Client) upgrade(underlay net.Conn, protocols []string) (*Conn, error) {
	d := c.dialer(underlay)
	d.Protocols = protocols

	br, _, err := d.Upgrade(underlay, c.requestURL)
	if err != nil {
		return nil, err
	}

	theConn := &Conn{
		Conn:  underlay,
		state: ws.StateClientSide,
	}

	// 根据 gobwas/ws的代码，在服务器没有返回任何数据时，br为nil
	if br == nil {
		theConn.r = wsutil.NewClientSideReader(underlay)
		theConn.r.OnIntermediate = wsutil.ControlFrameHandler(underlay, ws.StateClientSide)
		return theConn, nil
	}

	//服务器可能紧接着握手响应就向我们迅猛地发送数据, 此时 br 里缓存了多读到的部分

	additionalDataNum := br.Buffered()
	bs, _ := br.Peek(additionalDataNum)

	wholeR := io.MultiReader(bytes.NewBuffer(bs), underlay)

	theConn.r = wsutil.NewClientSideReader(wholeR)
	theConn.r.OnIntermediate = wsutil.ControlFrameHandler(underlay, ws.StateClientSide)

	return theConn, nil
}

// 我们要先返回一个 Conn, 等读取到内层协议的首包后，在第一次Write里 再进行实际的 ws握手
func (c *Client) handshakeWithEarlyData(underlay net.Conn, ed []byte) (net.Conn, error) {
	if len(ed) > MaxEarlyDataLen {
		return nil, utils.ErrInErr{ErrDesc: "early data too long", Data: len(ed)}
	}
	return &EarlyDataConn{
		Conn:                 underlay,
		client:               c,
		earlyData:            ed,
		firstHandshakeOkChan: make(chan int, 1),
	}, nil
}

type EarlyDataConn struct {
	net.Conn
	client     *Client
	realWsConn net.Conn

	notFirst             bool
	earlyData            []byte
	firstHandshakeOkChan chan int

	notFirstRead bool
}

// 第一次Write会获取到 内层协议的包头, 此时才开始执行ws的握手;
// 我们把 内层包头 和 之前给出的earlydata 绑在一起 进行base64编码, 通过
// Sec-WebSocket-Protocol 送出。
func (edc *EarlyDataConn) Write(p []byte) (int, error) {

	if !edc.notFirst {
		edc.notFirst = true

		outBuf := utils.GetBuf()
		encoder := base64.NewEncoder(base64.RawURLEncoding, outBuf)

		multiReader := io.MultiReader(bytes.NewReader(p), bytes.NewReader(edc.earlyData))
		_, encerr := io.Copy(encoder, multiReader)
		if encerr != nil {
			close(edc.firstHandshakeOkChan)
			return 0, utils.ErrInErr{ErrDesc: "encode early data err", ErrDetail: encerr}
		}
		encoder.Close()

		conn, err := edc.client.upgrade(edc.Conn, []string{outBuf.String()})
		utils.PutBuf(outBuf)
		if err != nil {
			close(edc.firstHandshakeOkChan)
			return 0, err
		}

		edc.realWsConn = conn
		edc.firstHandshakeOkChan <- 1
		return len(p), nil
	}

	return edc.realWsConn.Write(p)
}

func (edc *EarlyDataConn) Read(p []byte) (int, error) {
	if !edc.notFirstRead {
		_, ok := <-edc.firstHandshakeOkChan
		if !ok {
			return 0, errors.New("EarlyDataConn read failed because handshake failed")
		}
		edc.notFirstRead = true
	}
	return edc.realWsConn.Read(p)
}
