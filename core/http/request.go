package http

// Request is a parsed HTTP request.
//
// Header keys are stored exactly as the client sent them: "Content-Type" and
// "content-type" are different keys. Lookups must use the sender's casing.
// This is a deliberate, tested property of the server and not normalized.
type Request struct {
	Method string
	Path   string

	// Query parameters from the request target, last value wins
	Query map[string]string

	Headers map[string]string

	// Request body as received in the first read
	Body []byte

	// Form is populated for non-JSON bodies
	Form map[string]string

	// JSON is populated for application/json bodies (flat objects only)
	JSON map[string]JSONValue

	// Params is filled once by the router for templated routes
	Params map[string]string

	Cookies map[string]string
}

// NewRequest returns an empty request with all maps allocated.
func NewRequest() *Request {
	return &Request{
		Query:   make(map[string]string),
		Headers: make(map[string]string),
		Form:    make(map[string]string),
		JSON:    make(map[string]JSONValue),
		Params:  make(map[string]string),
		Cookies: make(map[string]string),
	}
}

// GetHeader returns the header value for the exact key, or "".
func (r *Request) GetHeader(key string) string {
	return r.Headers[key]
}

// GetQuery returns a query parameter, or "".
func (r *Request) GetQuery(key string) string {
	return r.Query[key]
}

// GetForm returns a form field, or "".
func (r *Request) GetForm(key string) string {
	return r.Form[key]
}

// GetCookie returns a cookie value, or "".
func (r *Request) GetCookie(key string) string {
	return r.Cookies[key]
}

// Param returns a path parameter captured by a templated route, or "".
func (r *Request) Param(key string) string {
	return r.Params[key]
}

// JSONField returns the textual form of a top-level JSON field, or "".
func (r *Request) JSONField(key string) string {
	v, ok := r.JSON[key]
	if !ok {
		return ""
	}
	return v.String()
}

// SetParams injects path parameters. Called by the dispatcher after a
// templated route matched.
func (r *Request) SetParams(params map[string]string) {
	for k, v := range params {
		r.Params[k] = v
	}
}
