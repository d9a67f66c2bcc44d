package core

import (
	"errors"
	"time"
)

// HTTP header constants
const (
	HeaderConnection = "Connection"
	HeaderRequestID  = "X-Request-ID"
)

// Connection states
const (
	StateAwaitRequest = iota
	StateProcessing
	StateRespond
	StateClose
)

// Defaults applied by NewEngine
const (
	DefaultBufferSize   = 30720
	DefaultReadTimeout  = 5 * time.Second
	DefaultWriteTimeout = 10 * time.Second
)

// Route key used by the monitor when no route matched
const unmatchedRoute = "<unmatched>"

// Error definitions
var (
	ErrServerClosed  = errors.New("miniserver: server closed")
	ErrEngineRunning = errors.New("miniserver: engine already running")
)
