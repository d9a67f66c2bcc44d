package core

import (
	"net"
	"sync"
	"time"

	"github.com/searchktools/mini-server/core/http"
)

// connection is one accepted socket. It is owned by a single worker from
// Submit until close, so only close needs to be safe for concurrent use.
type connection struct {
	id     uint64
	conn   net.Conn
	engine *Engine

	state     int
	readBuf   []byte
	request   *http.Request
	response  *http.Response
	route     string
	started   time.Time
	keepAlive bool

	closeOnce sync.Once
}

func (e *Engine) newConnection(nc net.Conn) *connection {
	return &connection{
		id:     e.nextID.Add(1),
		conn:   nc,
		engine: e,
		state:  StateAwaitRequest,
	}
}

// serve drives the connection until it closes
func (c *connection) serve() {
	c.readBuf = c.engine.readBufs.Get(c.engine.bufferSize)
	defer func() {
		c.close()
		c.engine.readBufs.Put(c.readBuf)
		c.readBuf = nil
	}()

	for c.state != StateClose {
		switch c.state {
		case StateAwaitRequest:
			c.awaitRequest()
		case StateProcessing:
			c.process()
		case StateRespond:
			c.respond()
		}
	}
}

func (c *connection) awaitRequest() {
	e := c.engine
	c.conn.SetReadDeadline(time.Now().Add(e.readTimeout))

	// Shutdown sets a past deadline; recheck so a deadline set just above
	// cannot hide it
	if e.closing.Load() {
		c.state = StateClose
		return
	}

	n, err := c.conn.Read(c.readBuf)
	if n <= 0 {
		if err != nil {
			e.log.Debug().Err(err).Uint64("conn", c.id).Msg("connection closed while reading")
		}
		c.state = StateClose
		return
	}

	c.started = time.Now()
	c.request = http.ParseRequest(c.readBuf[:n])
	c.state = StateProcessing
}

func (c *connection) process() {
	e := c.engine
	req := c.request
	res := http.NewResponse()
	c.response = res
	c.route = req.Method + " " + unmatchedRoute

	defer func() {
		if v := recover(); v != nil {
			e.log.Error().
				Interface("panic", v).
				Str("method", req.Method).
				Str("path", req.Path).
				Uint64("conn", c.id).
				Msg("handler panicked, dropping connection")
			e.monitor.RecordRequest(c.route, time.Since(c.started), true)
			c.state = StateClose
		}
	}()

	if e.chain.Run(req, res) {
		route, params := e.router.Find(req.Method, req.Path)
		if route == nil {
			res.NotFound()
		} else {
			c.route = req.Method + " " + route.Pattern
			req.SetParams(params)
			route.Handler(req, res)
		}
	}

	c.state = StateRespond
}

func (c *connection) respond() {
	e := c.engine
	req, res := c.request, c.response

	c.keepAlive = req.Headers[HeaderConnection] != "close"

	buf := e.writeBufs.Get(len(res.Body) + 256)
	*buf = http.AppendResponse((*buf)[:0], res, c.keepAlive, e.reason)

	c.conn.SetWriteDeadline(time.Now().Add(e.writeTimeout))
	_, err := c.conn.Write(*buf)
	e.writeBufs.Put(buf)

	latency := time.Since(c.started)
	e.monitor.RecordRequest(c.route, latency, res.StatusCode >= 500)
	e.log.Debug().
		Str("method", req.Method).
		Str("path", req.Path).
		Int("status", res.StatusCode).
		Dur("latency", latency).
		Msg("request")

	c.request, c.response = nil, nil

	if err != nil {
		e.log.Debug().Err(err).Uint64("conn", c.id).Msg("write failed")
		c.state = StateClose
		return
	}
	if !c.keepAlive {
		c.state = StateClose
		return
	}
	c.state = StateAwaitRequest
}

// close closes the socket and forgets the connection. It is safe to call
// more than once and from any goroutine.
func (c *connection) close() {
	c.closeOnce.Do(func() {
		c.conn.Close()
		c.engine.conns.Delete(c.id)
	})
}
