package router

import (
	"strings"

	"github.com/searchktools/mini-server/core/http"
)

// HandlerFunc handles a routed request by filling in the response
type HandlerFunc func(req *http.Request, res *http.Response)

// Route is a registered route
type Route struct {
	Method  string
	Pattern string
	Handler HandlerFunc

	// segments is set for templated routes only
	segments []segment
}

type segment struct {
	text  string
	param bool // text is the parameter name without ':'
}

// Router resolves (method, path) pairs to handlers.
//
// Static routes live in a map keyed "METHOD:path" for O(1) lookup; a repeated
// registration replaces the earlier handler. Templated routes (any segment
// starting with ':') are kept in registration order and the first structural
// match wins. Static routes always take precedence over templated ones.
//
// Router is not safe for concurrent registration; register everything before
// serving, after which lookups are read-only.
type Router struct {
	static    map[string]*Route
	templated []*Route
	order     []*Route
}

// New creates an empty router
func New() *Router {
	return &Router{
		static:    make(map[string]*Route, 64),
		templated: make([]*Route, 0, 16),
	}
}

// Add registers a route
func (r *Router) Add(method, pattern string, handler HandlerFunc) {
	if len(pattern) == 0 || pattern[0] != '/' {
		panic("path must begin with '/'")
	}
	if handler == nil {
		panic("nil handler for " + method + " " + pattern)
	}

	route := &Route{Method: method, Pattern: pattern, Handler: handler}

	segs, templated := compilePattern(pattern)
	if !templated {
		key := staticKey(method, pattern)
		if prev, ok := r.static[key]; ok {
			r.replaceOrdered(prev, route)
		} else {
			r.order = append(r.order, route)
		}
		r.static[key] = route
		return
	}

	route.segments = segs
	r.templated = append(r.templated, route)
	r.order = append(r.order, route)
}

// Find returns the route for method and path plus any captured parameters.
// It returns nil if nothing matches.
func (r *Router) Find(method, path string) (*Route, map[string]string) {
	// Static routes: exact key
	if route, ok := r.static[staticKey(method, path)]; ok {
		return route, nil
	}

	if len(r.templated) == 0 {
		return nil, nil
	}

	// Templated routes: registration order, first match wins
	parts := splitPath(path)
	for _, route := range r.templated {
		if route.Method != method || len(route.segments) != len(parts) {
			continue
		}
		if params, ok := route.match(parts); ok {
			return route, params
		}
	}

	return nil, nil
}

// Routes lists registered routes in registration order
func (r *Router) Routes() []Route {
	out := make([]Route, 0, len(r.order))
	for _, route := range r.order {
		out = append(out, Route{Method: route.Method, Pattern: route.Pattern, Handler: route.Handler})
	}
	return out
}

func (route *Route) match(parts []string) (map[string]string, bool) {
	var params map[string]string
	for i, seg := range route.segments {
		if seg.param {
			if params == nil {
				params = make(map[string]string, 4)
			}
			params[seg.text] = parts[i]
			continue
		}
		if seg.text != parts[i] {
			return nil, false
		}
	}
	return params, true
}

func (r *Router) replaceOrdered(prev, next *Route) {
	for i, route := range r.order {
		if route == prev {
			r.order[i] = next
			return
		}
	}
}

// compilePattern splits a pattern into segments and reports whether any
// segment is a parameter
func compilePattern(pattern string) ([]segment, bool) {
	parts := splitPath(pattern)
	segs := make([]segment, len(parts))
	templated := false
	for i, part := range parts {
		if part[0] == ':' {
			if len(part) < 2 {
				panic("wildcards must be named")
			}
			segs[i] = segment{text: part[1:], param: true}
			templated = true
			continue
		}
		segs[i] = segment{text: part}
	}
	return segs, templated
}

// splitPath returns the non-empty '/'-separated segments of path
func splitPath(path string) []string {
	return strings.FieldsFunc(path, isSlash)
}

func isSlash(r rune) bool {
	return r == '/'
}

func staticKey(method, path string) string {
	return method + ":" + path
}
