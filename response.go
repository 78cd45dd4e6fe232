package roll

import (
	"encoding/json"
	"net/http"
)

type bodyKind int

const (
	bodyEmpty bodyKind = iota
	bodyBytes
	bodyStream
)

// BodyStream is a pull-based chunk producer used for responses whose
// body is produced asynchronously (Transfer-Encoding: chunked at write
// time). It returns io.EOF once exhausted. Go has no native async
// generator, so this function-call-in-a-loop shape stands in for
// spec.md's "async sequence of byte chunks" (§9).
type BodyStream func() ([]byte, error)

// Response is the in-memory representation of the message a handler
// produces, created alongside each Request (§3).
type Response struct {
	status     int
	statusSet  bool
	bodyless   bool
	Headers    *Headers
	cookies    *CookieJar

	kind       bodyKind
	bodyBytes  []byte
	bodyStream BodyStream
}

// newResponse allocates a Response defaulted to 200 OK with an empty
// body, as C6 does alongside every fresh Request.
func newResponse() *Response {
	r := &Response{Headers: newHeaders(), cookies: newCookieJar()}
	r.status = http.StatusOK
	r.statusSet = true
	return r
}

func (r *Response) reset() {
	r.status = http.StatusOK
	r.statusSet = true
	r.bodyless = false
	r.Headers.reset()
	r.cookies = newCookieJar()
	r.kind = bodyEmpty
	r.bodyBytes = nil
	r.bodyStream = nil
}

// Status returns the response's current status code.
func (r *Response) Status() int { return r.status }

// SetStatus normalizes and stores the response status code. An unknown
// HTTP status code fails with HttpError(500); spec.md §3 treats an
// invalid status assignment as a defined error rather than silently
// accepting an arbitrary integer.
func (r *Response) SetStatus(code int) error {
	if http.StatusText(code) == "" {
		return NewHttpError(500, "Unknown HTTP status code")
	}
	r.status = code
	r.statusSet = true
	return nil
}

// SetBody assigns the response body. Accepted types are []byte, string
// (UTF-8 encoded), and BodyStream (marking the response chunked at
// write time, per §4.3).
func (r *Response) SetBody(body any) {
	switch v := body.(type) {
	case nil:
		r.kind = bodyEmpty
		r.bodyBytes = nil
	case []byte:
		r.kind = bodyBytes
		r.bodyBytes = v
	case string:
		r.kind = bodyBytes
		r.bodyBytes = []byte(v)
	case BodyStream:
		r.kind = bodyStream
		r.bodyStream = v
	default:
		r.kind = bodyBytes
		r.bodyBytes = []byte(toDisplayString(v))
	}
}

// SetJSON is a convenience setter: it sets Content-Type to
// application/json and encodes v as the body.
func (r *Response) SetJSON(v any) error {
	encoded, err := json.Marshal(v)
	if err != nil {
		return NewHttpError(500, "Failed to encode JSON response: "+err.Error())
	}
	r.Headers.Set("Content-Type", "application/json")
	r.SetBody(encoded)
	return nil
}

// Redirect sets Location and status in one step, defaulting to 302 Found
// if status is 0.
func (r *Response) Redirect(location string, status int) error {
	if status == 0 {
		status = http.StatusFound
	}
	if err := r.SetStatus(status); err != nil {
		return err
	}
	r.Headers.Set("Location", location)
	return nil
}

// Cookies returns the response's outgoing cookie jar.
func (r *Response) Cookies() *CookieJar { return r.cookies }

// IsChunked reports whether the body is an async BodyStream.
func (r *Response) IsChunked() bool { return r.kind == bodyStream }

// applyBodylessRule derives the bodyless flag from the request method
// and the response status, per spec.md §3: HEAD/CONNECT methods, or
// status in {100,101,102,204,304}, emit neither Content-Length nor body.
func (r *Response) applyBodylessRule(method string) {
	r.bodyless = method == "HEAD" || method == "CONNECT" || isBodylessStatus(r.status)
}

func isBodylessStatus(status int) bool {
	switch status {
	case 100, 101, 102, 204, 304:
		return true
	default:
		return false
	}
}

func toDisplayString(v any) string {
	if s, ok := v.(interface{ String() string }); ok {
		return s.String()
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(encoded)
}
