package h2s

import (
	"net"
	"time"
)

type timeouter struct {
	deadline *time.Timer

	closeFunc func()
}

func (g *timeouter) LocalAddr() net.Addr                { return nil }
func (g *timeouter) RemoteAddr() net.Addr               { return nil }
func (g *timeouter) SetReadDeadline(t time.Time) error  { return g.SetDeadline(t) }
func (g *timeouter) SetWriteDeadline(t time.Time) error { return g.SetDeadline(t) }

func (g *timeouter) SetDeadline(t time.Time) error {

	if g.deadline != nil {
		if t == (time.Time{}) {
			g.deadline.Stop()
			return nil
		}
		g.deadline.Reset(time.Until(t))
		return nil
	}

	if t == (time.Time{}) {
		return nil
	}

	g.deadline = time.AfterFunc(time.Until(t), g.closeFunc)
	return nil
}
