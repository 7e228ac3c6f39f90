package hchunk

import (
	"bufio"
	"io"
	"net"
	"net/http"
	"net/http/httputil"

	"github.com/driftline/driftline/utils"
)

type Client struct {
	host, path string
	headers    http.Header
}

func NewClient(host, path string, headers map[string][]string) *Client {
	return &Client{
		host:    host,
		path:    path,
		headers: http.Header(headers),
	}
}

func (*Client) IsMux() bool   { return false }
func (*Client) IsSuper() bool { return false }
func (*Client) IsEarly() bool { return false }

// Handshake 立即写出请求头; payload 若给出则作为第一个chunk 跟在请求头后发出,
// 不等待服务端的响应头。响应头在第一次Read时才被消化掉。
func (c *Client) Handshake(underlay net.Conn, payload []byte) (net.Conn, error) {

	head := utils.GetBuf()
	defer utils.PutBuf(head)

	head.WriteString("POST ")
	head.WriteString(c.path)
	head.WriteString(" HTTP/1.1\r\nHost: ")
	if h := c.headers.Get("Host"); h != "" {
		head.WriteString(h)
	} else {
		head.WriteString(c.host)
	}
	head.WriteString("\r\n")

	for k, vs := range c.headers {
		switch http.CanonicalHeaderKey(k) {
		case "Host", "Content-Length", "Transfer-Encoding":
			continue
		}
		for _, v := range vs {
			head.WriteString(k)
			head.WriteString(": ")
			head.WriteString(v)
			head.WriteString("\r\n")
		}
	}

	head.WriteString("Connection: keep-alive\r\nContent-Type: application/octet-stream\r\nTransfer-Encoding: chunked\r\n\r\n")

	if _, err := underlay.Write(head.Bytes()); err != nil {
		return nil, err
	}

	conn := &Conn{
		Conn: underlay,
		cw:   httputil.NewChunkedWriter(underlay),
		br:   bufio.NewReader(underlay),
	}

	if len(payload) > 0 {
		if _, err := conn.Write(payload); err != nil {
			return nil, err
		}
	}

	return conn, nil
}

type Conn struct {
	net.Conn

	cw io.WriteCloser //chunked writer
	br *bufio.Reader

	resp *http.Response

	writeClosed bool
}

// 第一次Read 先消化掉 响应头; 之后从响应body 读取。
// resp.Body 自己会处理 chunked 或 identity 两种编码。
func (c *Conn) Read(p []byte) (int, error) {
	if c.resp == nil {
		resp, err := http.ReadResponse(c.br, nil)
		if err != nil {
			return 0, utils.ErrInErr{ErrDesc: "hchunk read response header failed", ErrDetail: err}
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return 0, utils.ErrInErr{ErrDesc: "hchunk bad response status", Data: resp.StatusCode}
		}
		c.resp = resp
	}
	return c.resp.Body.Read(p)
}

// 每次Write 发出一个chunk.
func (c *Conn) Write(p []byte) (int, error) {
	return c.cw.Write(p)
}

// Close 先发出 终止chunk 表示上行正常结束, 再关底层连接。
func (c *Conn) Close() error {
	if !c.writeClosed {
		c.writeClosed = true
		c.cw.Close()
	}
	if c.resp != nil {
		c.resp.Body.Close()
	}
	return c.Conn.Close()
}
