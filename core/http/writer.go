package http

import "sort"

// Version is reported in the Server header.
const Version = "0.1.0"

// ServerHeader identifies the server on every response
const ServerHeader = "mini-server/" + Version

// ReasonFunc maps a status code to the reason phrase of the status line.
type ReasonFunc func(code int) string

// AlwaysOK is the default reason function: every status line reads
// "<code> OK", whatever the code. Existing clients depend on this.
func AlwaysOK(int) string {
	return "OK"
}

// AppendResponse appends the wire form of res to dst and returns the
// extended slice. A nil reason uses AlwaysOK.
func AppendResponse(dst []byte, res *Response, keepAlive bool, reason ReasonFunc) []byte {
	if reason == nil {
		reason = AlwaysOK
	}

	// Status line
	dst = append(dst, "HTTP/1.1 "...)
	dst = appendInt(dst, res.StatusCode)
	dst = append(dst, ' ')
	dst = append(dst, reason(res.StatusCode)...)
	dst = append(dst, "\r\n"...)

	// Fixed headers
	dst = appendHeader(dst, "Content-Type", res.ContentType)
	dst = appendHeader(dst, "Server", ServerHeader)
	dst = append(dst, "Content-Length: "...)
	dst = appendInt(dst, len(res.Body))
	dst = append(dst, "\r\n"...)
	if keepAlive {
		dst = appendHeader(dst, "Connection", "keep-alive")
	} else {
		dst = appendHeader(dst, "Connection", "close")
	}

	// Custom headers, sorted so the output is deterministic
	if len(res.Headers) > 0 {
		keys := make([]string, 0, len(res.Headers))
		for k := range res.Headers {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			dst = appendHeader(dst, k, res.Headers[k])
		}
	}

	for _, cookie := range res.Cookies {
		dst = appendHeader(dst, "Set-Cookie", cookie)
	}

	dst = append(dst, "\r\n"...)
	return append(dst, res.Body...)
}

func appendHeader(b []byte, key, value string) []byte {
	b = append(b, key...)
	b = append(b, ": "...)
	b = append(b, value...)
	return append(b, "\r\n"...)
}

// appendInt appends an integer to a byte slice
func appendInt(b []byte, i int) []byte {
	if i == 0 {
		return append(b, '0')
	}

	if i < 0 {
		b = append(b, '-')
		i = -i
	}

	var digits [20]byte
	n := 0
	for i > 0 {
		digits[n] = byte('0' + i%10)
		i /= 10
		n++
	}

	for n > 0 {
		n--
		b = append(b, digits[n])
	}

	return b
}
