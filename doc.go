/*
Package miniserver is a small embeddable HTTP/1.1 server for Go.

A mini-server program registers routes and middleware gates on an engine,
then serves on a TCP port. One acceptor goroutine hands every accepted
connection to a fixed pool of worker goroutines; a worker owns its
connection until it closes, answering requests one at a time and keeping
the connection alive unless the client sends "Connection: close".

Features

  - Static routes ("/about") and templated routes ("/user/:id")
  - Ordered middleware gates that may stop a request early
  - Query, form, cookie and flat JSON body parsing
  - Response helpers for HTML, JSON, protobuf, cookies and redirects
  - Static files with an LRU content cache, and {{key}} templates
  - Per-route request statistics
  - Graceful shutdown on SIGINT/SIGTERM

Quick Start

Basic usage example:

	package main

	import (
	    "github.com/searchktools/mini-server/app"
	    "github.com/searchktools/mini-server/config"
	    "github.com/searchktools/mini-server/core/http"
	)

	func main() {
	    cfg := config.New()
	    application := app.New(cfg)

	    engine := application.Engine()
	    engine.GET("/user/:id", func(req *http.Request, res *http.Response) {
	        res.Send("User ID: " + req.Param("id"))
	    })

	    engine.POST("/api/json", func(req *http.Request, res *http.Response) {
	        res.WriteJSON(200, map[string]string{"hello": req.JSONField("name")})
	    })

	    application.Run()
	}

Modules

The server is organized into several modules:

  - app: Process wiring, logging and graceful shutdown
  - config: Flag, environment and JSON configuration
  - core: Engine, acceptor and connection handling
  - core/http: Request parsing and response encoding
  - core/router: Static and templated route table
  - core/middleware: Middleware gates
  - core/pools: Worker pool and buffer pools
  - core/static: Static file provider
  - core/render: Template renderer
  - core/observability: Request monitoring

Wire behavior

Every status line reads "<code> OK" unless the engine is built with
core.WithReasonPhrases(true). Header names are matched case-sensitively as
received. Each request must arrive in a single read of at most the
configured buffer size; there is no chunked encoding and no TLS.
*/
package miniserver
