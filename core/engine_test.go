package core

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	nethttp "net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/net/nettest"

	"github.com/searchktools/mini-server/core/http"
	"github.com/searchktools/mini-server/core/middleware"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("Test timeout")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// startEngine serves e on a local listener until the test ends
func startEngine(t *testing.T, e *Engine) string {
	t.Helper()

	ln, err := nettest.NewLocalListener("tcp")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	errc := make(chan error, 1)
	go func() { errc <- e.Serve(ln) }()
	waitFor(t, e.running.Load)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown failed: %v", err)
		}
		select {
		case err := <-errc:
			if !errors.Is(err, ErrServerClosed) {
				t.Errorf("Expected ErrServerClosed, got %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("Serve did not return after Shutdown")
		}
	})

	return ln.Addr().String()
}

type client struct {
	t    *testing.T
	conn net.Conn
	br   *bufio.Reader
}

func dial(t *testing.T, addr string) *client {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &client{t: t, conn: conn, br: bufio.NewReader(conn)}
}

// do writes raw in one call and reads one response
func (c *client) do(raw string) (*nethttp.Response, string) {
	c.t.Helper()
	c.conn.SetDeadline(time.Now().Add(5 * time.Second))
	if _, err := c.conn.Write([]byte(raw)); err != nil {
		c.t.Fatalf("Write failed: %v", err)
	}
	resp, err := nethttp.ReadResponse(c.br, nil)
	if err != nil {
		c.t.Fatalf("ReadResponse failed: %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.t.Fatalf("Reading body failed: %v", err)
	}
	return resp, string(body)
}

// expectClosed asserts the server closes the connection without writing
func (c *client) expectClosed() {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	buf := make([]byte, 64)
	n, err := c.br.Read(buf)
	if n != 0 || err != io.EOF {
		c.t.Errorf("Expected EOF, got %d bytes %q err %v", n, buf[:n], err)
	}
}

func get(path string) string {
	return "GET " + path + " HTTP/1.1\r\nHost: localhost\r\n\r\n"
}

func demoEngine(opts ...Option) *Engine {
	e := NewEngine(opts...)

	e.Use(middleware.RequireHeader("/secret", "Authorization", "Bearer secret"))

	e.GET("/", func(req *http.Request, res *http.Response) {
		res.Send("<h1>Home</h1>")
	})
	e.GET("/user/:id", func(req *http.Request, res *http.Response) {
		res.Send("User ID: " + req.Param("id"))
	})
	e.GET("/post/:postId/comment/:commentId", func(req *http.Request, res *http.Response) {
		res.Send("Post: " + req.Param("postId") + ", Comment: " + req.Param("commentId"))
	})
	e.GET("/secret", func(req *http.Request, res *http.Response) {
		res.Send("classified")
	})
	e.POST("/api/json", func(req *http.Request, res *http.Response) {
		res.JSON(`{"hello":"` + req.JSONField("name") + `"}`)
	})
	e.GET("/panic", func(req *http.Request, res *http.Response) {
		panic("handler exploded")
	})

	return e
}

func TestEngineScenarios(t *testing.T) {
	addr := startEngine(t, demoEngine())

	tests := []struct {
		name   string
		raw    string
		status int
		body   string
	}{
		{"path param", get("/user/42"), 200, "User ID: 42"},
		{"two params", get("/post/7/comment/3"), 200, "Post: 7, Comment: 3"},
		{"gate rejects", get("/secret"), 401, "Unauthorized"},
		{"gate passes", "GET /secret HTTP/1.1\r\nAuthorization: Bearer secret\r\n\r\n", 200, "classified"},
		{
			"json body",
			"POST /api/json HTTP/1.1\r\nContent-Type: application/json\r\nContent-Length: 14\r\n\r\n{\"name\":\"Ada\"}",
			200,
			`{"hello":"Ada"}`,
		},
		{"not found", get("/missing"), 404, http.NotFoundBody},
		{"garbage", "\r\n\r\n", 404, http.NotFoundBody},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := dial(t, addr)
			resp, body := c.do(tt.raw)
			if resp.StatusCode != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, resp.StatusCode)
			}
			if body != tt.body {
				t.Errorf("Expected body %q, got %q", tt.body, body)
			}
			if got := resp.Header.Get("Server"); got != http.ServerHeader {
				t.Errorf("Expected Server %q, got %q", http.ServerHeader, got)
			}
		})
	}
}

func TestEngineStatusLineAlwaysOK(t *testing.T) {
	addr := startEngine(t, demoEngine())

	resp, _ := dial(t, addr).do(get("/missing"))
	if resp.Status != "404 OK" {
		t.Errorf("Expected status line 404 OK, got %q", resp.Status)
	}
}

func TestEngineReasonPhrases(t *testing.T) {
	addr := startEngine(t, demoEngine(WithReasonPhrases(true)))

	resp, _ := dial(t, addr).do(get("/missing"))
	if resp.Status != "404 Not Found" {
		t.Errorf("Expected status line 404 Not Found, got %q", resp.Status)
	}
}

func TestEngineKeepAlive(t *testing.T) {
	e := demoEngine()
	addr := startEngine(t, e)
	c := dial(t, addr)

	for _, id := range []string{"1", "2", "3"} {
		resp, body := c.do(get("/user/" + id))
		if body != "User ID: "+id {
			t.Errorf("Expected User ID: %s, got %q", id, body)
		}
		if resp.Header.Get("Connection") != "keep-alive" {
			t.Errorf("Expected keep-alive, got %q", resp.Header.Get("Connection"))
		}
	}

	if stats := e.Stats(); stats.Workers.TasksSubmitted != 1 {
		t.Errorf("Expected one connection task, got %d", stats.Workers.TasksSubmitted)
	}
}

func TestEngineConnectionClose(t *testing.T) {
	addr := startEngine(t, demoEngine())
	c := dial(t, addr)

	c.conn.SetDeadline(time.Now().Add(5 * time.Second))
	if _, err := c.conn.Write([]byte("GET / HTTP/1.1\r\nConnection: close\r\n\r\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	// ReadAll returns only once the server closes the connection
	raw, err := io.ReadAll(c.br)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	out := string(raw)
	if !strings.Contains(out, "\r\nConnection: close\r\n") {
		t.Errorf("Expected Connection: close header, got %q", out)
	}
	if strings.Count(out, "HTTP/1.1 ") != 1 || !strings.HasSuffix(out, "\r\n\r\n<h1>Home</h1>") {
		t.Errorf("Expected exactly one response, got %q", out)
	}
}

func TestEngineHandlerPanic(t *testing.T) {
	e := demoEngine()
	addr := startEngine(t, e)

	c := dial(t, addr)
	if _, err := c.conn.Write([]byte(get("/panic"))); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	c.expectClosed()

	// The worker survives and keeps serving
	_, body := dial(t, addr).do(get("/user/9"))
	if body != "User ID: 9" {
		t.Errorf("Expected server to keep serving, got %q", body)
	}

	var found bool
	for _, r := range e.Monitor().Snapshot() {
		if r.Name == "GET /panic" {
			found = r.Errors == 1
		}
	}
	if !found {
		t.Error("Expected the panic to be recorded as an error")
	}
}

func TestEngineReadTimeout(t *testing.T) {
	addr := startEngine(t, demoEngine(WithReadTimeout(50*time.Millisecond)))

	c := dial(t, addr)
	start := time.Now()
	c.expectClosed()
	if time.Since(start) > 2*time.Second {
		t.Error("Idle connection was not closed by the read timeout")
	}
}

func TestEngineMaxConns(t *testing.T) {
	addr := startEngine(t, demoEngine(WithMaxConns(1)))

	first := dial(t, addr)
	first.do(get("/"))

	second := dial(t, addr)
	second.conn.Write([]byte(get("/user/2")))
	second.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, err := second.br.Peek(1); err == nil {
		t.Fatal("Second connection served while the cap was reached")
	}

	first.conn.Close()

	second.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	resp, err := nethttp.ReadResponse(second.br, nil)
	if err != nil {
		t.Fatalf("Second connection not served after the first closed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "User ID: 2" {
		t.Errorf("Expected User ID: 2, got %q", body)
	}
}

func TestEngineMiddlewareOrder(t *testing.T) {
	e := NewEngine()

	var mu sync.Mutex
	var order []string
	mark := func(step string) {
		mu.Lock()
		order = append(order, step)
		mu.Unlock()
	}

	e.Use(func(req *http.Request, res *http.Response) middleware.Result {
		mark("first")
		return middleware.Continue
	})
	e.Use(middleware.RequestID())
	e.Use(middleware.Bool(func(req *http.Request, res *http.Response) bool {
		mark("second")
		return true
	}))
	e.GET("/", func(req *http.Request, res *http.Response) {
		mark("handler")
		res.Send("ok")
	})
	addr := startEngine(t, e)

	resp, _ := dial(t, addr).do(get("/"))
	if resp.Header.Get(HeaderRequestID) == "" {
		t.Error("Expected X-Request-ID header")
	}

	mu.Lock()
	defer mu.Unlock()
	if strings.Join(order, ",") != "first,second,handler" {
		t.Errorf("Unexpected order %v", order)
	}
}

func TestEngineRegistrationAfterStart(t *testing.T) {
	e := demoEngine()
	startEngine(t, e)

	defer func() {
		if recover() == nil {
			t.Error("Expected panic on registration after start")
		}
	}()
	e.GET("/late", func(req *http.Request, res *http.Response) {})
}

func TestEngineServeTwice(t *testing.T) {
	e := demoEngine()
	startEngine(t, e)

	ln, err := nettest.NewLocalListener("tcp")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	if err := e.Serve(ln); !errors.Is(err, ErrEngineRunning) {
		t.Errorf("Expected ErrEngineRunning, got %v", err)
	}
}

func TestEngineShutdownClosesIdle(t *testing.T) {
	e := demoEngine()

	ln, err := nettest.NewLocalListener("tcp")
	if err != nil {
		t.Fatal(err)
	}
	errc := make(chan error, 1)
	go func() { errc <- e.Serve(ln) }()
	waitFor(t, e.running.Load)

	c := dial(t, ln.Addr().String())
	c.do(get("/"))

	start := time.Now()
	if err := e.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if time.Since(start) >= DefaultReadTimeout {
		t.Error("Shutdown waited for the read timeout")
	}

	c.expectClosed()

	if err := <-errc; !errors.Is(err, ErrServerClosed) {
		t.Errorf("Expected ErrServerClosed, got %v", err)
	}
	if n := e.OpenConns(); n != 0 {
		t.Errorf("Expected no open connections, got %d", n)
	}

	// Serving again after Shutdown is refused
	ln2, _ := nettest.NewLocalListener("tcp")
	if err := e.Serve(ln2); !errors.Is(err, ErrServerClosed) {
		t.Errorf("Expected ErrServerClosed, got %v", err)
	}
}

func TestEngineRunBadAddress(t *testing.T) {
	e := NewEngine()
	if err := e.Run("127.0.0.1:-1"); err == nil {
		t.Error("Expected listen error")
	}
}

func TestEngineStats(t *testing.T) {
	e := demoEngine()
	e.GET("/stats", e.StatsHandler())
	addr := startEngine(t, e)

	c := dial(t, addr)
	c.do(get("/user/1"))
	c.do(get("/missing"))
	resp, body := c.do(get("/stats"))

	if resp.Header.Get("Content-Type") != http.ContentTypeJSON {
		t.Errorf("Expected JSON stats, got %q", resp.Header.Get("Content-Type"))
	}
	for _, want := range []string{`"GET /user/:id"`, `"workers"`} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected %s in stats %s", want, body)
		}
	}

	stats := e.Stats()
	names := make([]string, 0, len(stats.Routes))
	for _, r := range stats.Routes {
		names = append(names, r.Name)
	}
	if !strings.Contains(strings.Join(names, ","), "GET <unmatched>") {
		t.Errorf("Expected unmatched requests to be recorded, got %v", names)
	}

	if text := e.StatsText(); !strings.Contains(text, "GET /user/:id") {
		t.Errorf("Expected route in text stats:\n%s", text)
	}
}

func BenchmarkEngineKeepAlive(b *testing.B) {
	e := NewEngine()
	e.GET("/user/:id", func(req *http.Request, res *http.Response) {
		res.Send("User ID: " + req.Param("id"))
	})

	ln, err := nettest.NewLocalListener("tcp")
	if err != nil {
		b.Fatal(err)
	}
	go e.Serve(ln)
	defer e.Shutdown(context.Background())

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		b.Fatal(err)
	}
	defer conn.Close()
	br := bufio.NewReader(conn)
	raw := []byte(get("/user/42"))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		conn.Write(raw)
		resp, err := nethttp.ReadResponse(br, nil)
		if err != nil {
			b.Fatal(err)
		}
		io.Copy(io.Discard, resp.Body)
	}
}
