package http

import (
	"bytes"
	"strings"
	"unsafe"
)

var headerTerminator = []byte("\r\n\r\n")

// unsafeString converts byte slice to string without allocation.
// The slice must not be modified afterwards.
func unsafeString(b []byte) string {
	return unsafe.String(unsafe.SliceData(b), len(b))
}

// ParseRequest decodes the bytes of one read into a Request.
//
// It never fails. Input without a recognizable request line yields an empty
// method and path, which no route matches. Input without a blank line is a
// partial request: everything is treated as headers and the body is empty.
func ParseRequest(data []byte) *Request {
	req := NewRequest()

	head := data
	if split := bytes.Index(data, headerTerminator); split != -1 {
		head = data[:split]
		if body := data[split+len(headerTerminator):]; len(body) > 0 {
			req.Body = append([]byte(nil), body...)
		}
	}

	// Request line
	line, rest := nextLine(head)
	parseRequestLine(req, line)

	// Headers
	for len(rest) > 0 {
		line, rest = nextLine(rest)
		if len(line) == 0 {
			break
		}
		parseHeaderLine(req, line)
	}

	if len(req.Body) > 0 {
		if strings.Contains(req.Headers["Content-Type"], "application/json") {
			scanFlatJSON(req.Body, req.JSON)
		} else {
			parseURLEncoded(unsafeString(req.Body), req.Form)
		}
	}

	return req
}

// nextLine cuts data at the first '\n' and strips a trailing '\r'.
func nextLine(data []byte) (line, rest []byte) {
	lineEnd := bytes.IndexByte(data, '\n')
	if lineEnd == -1 {
		line, rest = data, nil
	} else {
		line, rest = data[:lineEnd], data[lineEnd+1:]
	}
	if len(line) > 0 && line[len(line)-1] == '\r' {
		line = line[:len(line)-1]
	}
	return line, rest
}

// parseRequestLine reads METHOD and request-target; the version is ignored.
func parseRequestLine(req *Request, line []byte) {
	fields := strings.Fields(string(line))
	if len(fields) > 0 {
		req.Method = fields[0]
	}
	if len(fields) < 2 {
		return
	}

	target := fields[1]
	if idx := strings.IndexByte(target, '?'); idx != -1 {
		parseURLEncoded(target[idx+1:], req.Query)
		target = target[:idx]
	}
	req.Path = target
}

// parseHeaderLine splits "Name: value" on the first colon. Keys keep their
// casing; repeated headers overwrite.
func parseHeaderLine(req *Request, line []byte) {
	colon := bytes.IndexByte(line, ':')
	if colon == -1 {
		return
	}

	key := string(line[:colon])
	value := line[colon+1:]
	if len(value) > 0 && value[0] == ' ' {
		value = value[1:]
	}
	req.Headers[key] = string(value)

	if key == "Cookie" {
		parseCookies(req.Headers[key], req.Cookies)
	}
}

func parseCookies(header string, out map[string]string) {
	for _, segment := range strings.Split(header, ";") {
		k, v, ok := strings.Cut(segment, "=")
		if !ok {
			continue
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
}

// parseURLEncoded splits "a=1&b=2" into out. Values are kept raw (no
// percent-decoding); pieces without '=' are dropped; last value wins.
func parseURLEncoded(raw string, out map[string]string) {
	for _, pair := range strings.Split(raw, "&") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		out[k] = v
	}
}
