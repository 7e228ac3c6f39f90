package h2s

import (
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/driftline/driftline/utils"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

// implements advLayer.MuxClient
type Client struct {
	path string
	host string

	handshakeRequest http.Request

	//一个 transport 对应 一个提供的 dial好的 tls 连接，正好作为CommonConn。
	cachedTransport *http2.Transport
}

func (c *Client) IsMux() bool   { return true }
func (c *Client) IsSuper() bool { return false }
func (c *Client) IsEarly() bool { return false }

func (c *Client) dealErr(err error) {
	if errors.Is(err, net.ErrClosed) {
		c.cachedTransport = nil
	} else if strings.Contains(err.Error(), "use of closed") {
		c.cachedTransport = nil
	}
}

// GetCommonConn 把 underlay 包进一个新的 http2.Transport 并返回它;
// 一条底层连接只能属于一个 transport, 后续子流都必须开在同一个 transport 上。
// underlay 为 nil 时返回缓存的 transport (若有)。
func (c *Client) GetCommonConn(underlay net.Conn) (any, error) {

	if underlay == nil {
		if c.cachedTransport != nil {
			return c.cachedTransport, nil
		}
		return nil, nil
	}

	transport := &http2.Transport{
		DialTLS: func(_, _ string, cfg *tls.Config) (net.Conn, error) {
			return underlay, nil
		},
		AllowHTTP:          false,
		DisableCompression: true,
		PingTimeout:        0,
	}
	c.cachedTransport = transport
	return transport, nil
}

func (c *Client) DialSubConn(underlay any) (net.Conn, error) {

	transport, ok := underlay.(*http2.Transport)
	if !ok || transport == nil {
		return nil, utils.ErrNilParameter
	}

	reader, writer := io.Pipe()

	request := c.handshakeRequest
	request.Body = reader

	conn := &ClientConn{
		request:     &request,
		transport:   transport,
		writer:      writer,
		shouldClose: atomic.NewBool(false),
		client:      c,
	}
	conn.timeouter = timeouter{
		closeFunc: func() {
			conn.Close()
		},
	}

	go conn.handshakeOnce.Do(conn.handshake) //necessary

	return conn, nil
}

func (*Client) ProcessWhenFull(underlay any) {}

// implements net.Conn
type ClientConn struct {
	timeouter

	client *Client

	response      *http.Response
	request       *http.Request
	transport     *http2.Transport
	writer        *io.PipeWriter
	handshakeOnce sync.Once
	shouldClose   *atomic.Bool
	err           error
}

func (c *ClientConn) handshake() {
	response, err := c.transport.RoundTrip(c.request)
	if err != nil {
		c.err = err
		c.writer.Close()
		return
	}

	notOK := false

	if c.shouldClose.Load() {
		notOK = true
	} else if response.StatusCode != http.StatusOK {
		if ce := utils.CanLogWarn("h2 client got bad response status"); ce != nil {
			ce.Write(zap.Int("status", response.StatusCode))
		}
		notOK = true
	}

	if notOK {
		c.client.cachedTransport = nil
		response.Body.Close()
	} else {
		c.response = response
	}
}

func (c *ClientConn) Read(b []byte) (n int, err error) {

	c.handshakeOnce.Do(c.handshake)

	if c.err != nil {
		return 0, c.err
	}

	if c.response == nil {
		return 0, net.ErrClosed
	}

	return c.response.Body.Read(b)
}

func (c *ClientConn) Write(b []byte) (n int, err error) {

	n, err = c.writer.Write(b)

	if err == io.ErrClosedPipe && c.err != nil {
		err = c.err
	}
	if err != nil {
		c.client.dealErr(err)
	}

	return
}

func (c *ClientConn) Close() error {
	c.shouldClose.Store(true)
	if r := c.response; r != nil {
		r.Body.Close()
	}

	return c.writer.Close()
}
