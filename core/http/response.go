package http

import (
	"encoding/json"

	"google.golang.org/protobuf/proto"
)

// Content types set by the response helpers
const (
	ContentTypeHTML     = "text/html"
	ContentTypeJSON     = "application/json"
	ContentTypeProtobuf = "application/x-protobuf"
)

// Fixed bodies for the not-found responses
const (
	NotFoundBody         = "<h1>404 Not Found</h1>"
	FileNotFoundBody     = "<h1>404 File Not Found</h1>"
	TemplateNotFoundBody = "<h1>404 Template Not Found</h1>"
)

// FileProvider loads static files for SendFile.
type FileProvider interface {
	Open(path string) (data []byte, contentType string, err error)
}

// TemplateRenderer substitutes {{key}} placeholders for Render.
type TemplateRenderer interface {
	Render(path string, data map[string]string) (string, error)
}

// Response is filled by middleware and handlers and encoded once after
// processing finishes.
type Response struct {
	Body        []byte
	StatusCode  int
	ContentType string

	// Custom headers, written after the fixed ones
	Headers map[string]string

	// Pending Set-Cookie values, in the order they were added
	Cookies []string
}

// NewResponse returns a 200 text/html response with an empty body.
func NewResponse() *Response {
	return &Response{
		StatusCode:  200,
		ContentType: ContentTypeHTML,
		Headers:     make(map[string]string),
	}
}

// Status sets the status code.
func (r *Response) Status(code int) *Response {
	r.StatusCode = code
	return r
}

// SetHeader sets a custom response header.
func (r *Response) SetHeader(key, value string) {
	if r.Headers == nil {
		r.Headers = make(map[string]string, 8)
	}
	r.Headers[key] = value
}

// SetCookie queues a Set-Cookie header. Options are appended verbatim,
// e.g. "Path=/; HttpOnly".
func (r *Response) SetCookie(name, value string, options ...string) {
	cookie := name + "=" + value
	for _, opt := range options {
		if opt != "" {
			cookie += "; " + opt
		}
	}
	r.Cookies = append(r.Cookies, cookie)
}

// Send writes an HTML body with status 200.
func (r *Response) Send(text string) {
	r.Body = []byte(text)
	r.StatusCode = 200
	r.ContentType = ContentTypeHTML
}

// JSON writes pre-encoded JSON text with status 200.
func (r *Response) JSON(text string) {
	r.Body = []byte(text)
	r.StatusCode = 200
	r.ContentType = ContentTypeJSON
}

// WriteJSON marshals v and writes it with the given status.
func (r *Response) WriteJSON(code int, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		r.StatusCode = 500
		r.ContentType = ContentTypeJSON
		r.Body = []byte(`{"error":"JSON marshal error"}`)
		return err
	}
	r.Body = data
	r.StatusCode = code
	r.ContentType = ContentTypeJSON
	return nil
}

// Proto writes a protobuf-encoded message with status 200.
func (r *Response) Proto(msg proto.Message) error {
	data, err := proto.Marshal(msg)
	if err != nil {
		return err
	}
	r.Body = data
	r.StatusCode = 200
	r.ContentType = ContentTypeProtobuf
	return nil
}

// Redirect sends a 302 to url with an empty body.
func (r *Response) Redirect(url string) {
	r.StatusCode = 302
	r.SetHeader("Location", url)
	r.Body = nil
}

// NotFound writes the fixed 404 page.
func (r *Response) NotFound() {
	r.StatusCode = 404
	r.Body = []byte(NotFoundBody)
}

// SendFile loads path through files. Any load failure becomes a 404 and the
// error is returned for logging.
func (r *Response) SendFile(files FileProvider, path string) error {
	data, contentType, err := files.Open(path)
	if err != nil {
		r.StatusCode = 404
		r.Body = []byte(FileNotFoundBody)
		return err
	}
	r.Body = data
	r.ContentType = contentType
	r.StatusCode = 200
	return nil
}

// Render fills the template at path with data and sends it as HTML.
func (r *Response) Render(templates TemplateRenderer, path string, data map[string]string) error {
	content, err := templates.Render(path, data)
	if err != nil {
		r.StatusCode = 404
		r.Body = []byte(TemplateNotFoundBody)
		return err
	}
	r.Send(content)
	return nil
}
