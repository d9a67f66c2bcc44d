package middleware

import (
	"github.com/searchktools/mini-server/core/http"
)

// Result tells the chain whether to keep going
type Result uint8

const (
	// Continue passes the request to the next gate, then to routing
	Continue Result = iota
	// Stop ends processing; the response is sent as the gate left it
	Stop
)

func (r Result) String() string {
	if r == Stop {
		return "stop"
	}
	return "continue"
}

// Gate runs before routing and may short-circuit the request
type Gate func(req *http.Request, res *http.Response) Result

// Chain is an ordered list of gates.
//
// Gates run synchronously on the worker serving the connection, in the order
// they were added. The chain is read-only once the server starts.
type Chain struct {
	gates []Gate
}

// NewChain creates an empty chain
func NewChain() *Chain {
	return &Chain{
		gates: make([]Gate, 0, 16),
	}
}

// Use appends a gate
func (c *Chain) Use(gate Gate) *Chain {
	c.gates = append(c.gates, gate)
	return c
}

// Len returns the number of gates
func (c *Chain) Len() int {
	return len(c.gates)
}

// Run invokes each gate with the same request and response and reports
// whether routing should proceed. The first Stop halts the chain.
func (c *Chain) Run(req *http.Request, res *http.Response) bool {
	for _, gate := range c.gates {
		if gate(req, res) == Stop {
			return false
		}
	}
	return true
}

// Bool adapts a gate written as "return true to continue".
func Bool(fn func(req *http.Request, res *http.Response) bool) Gate {
	return func(req *http.Request, res *http.Response) Result {
		if fn(req, res) {
			return Continue
		}
		return Stop
	}
}
