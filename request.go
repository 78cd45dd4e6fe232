package roll

import (
	"bytes"
	"context"
	"net/url"

	"github.com/pyrates/roll/bytequeue"
)

// readController is the non-owning back-reference a Request holds to its
// Connection, scoped to the request's own lifetime (§3 "Ownership"). It
// exists solely so body consumption can resume paused socket reads.
type readController interface {
	ResumeReading()
}

// Request is the in-memory representation of one HTTP message. method,
// path, and headers are guaranteed non-empty/normalized before any
// handler or hook sees it (§3 invariants). query, cookies, form, files,
// and json are lazily computed on first access.
type Request struct {
	Method      string
	URL         []byte
	Path        string
	QueryString string
	Headers     *Headers
	Upgrade     string // lowercased Upgrade header value, or "" if absent

	Route *MatchedRoute

	// Context lets hooks and handlers stash arbitrary per-request state,
	// the "mapping extension" spec.md §3 requires.
	Context map[string]any

	body      *bytequeue.Queue
	conn      readController
	loaded    bool
	bodyBytes []byte

	query   lazy[Values]
	cookies lazy[*CookieJar]
	form    lazy[Values]
	files   lazy[map[string][]*UploadedFile]
	json    lazy[any]
}

// newRequest allocates a fresh Request bound to a connection's body queue
// and read controller, as C6 does on every on_message_begin.
func newRequest(conn readController, body *bytequeue.Queue) *Request {
	return &Request{
		Headers: newHeaders(),
		body:    body,
		conn:    conn,
	}
}

// reset clears per-message state for reuse across a keep-alive
// connection's successive requests.
func (r *Request) reset() {
	r.Method = ""
	r.URL = nil
	r.Path = ""
	r.QueryString = ""
	r.Headers.reset()
	r.Upgrade = ""
	r.Route = nil
	r.Context = nil
	r.loaded = false
	r.bodyBytes = nil
	r.query.reset()
	r.cookies.reset()
	r.form.reset()
	r.files.reset()
	r.json.reset()
}

// Set stashes a value in the request's mapping extension.
func (r *Request) Set(key string, value any) {
	if r.Context == nil {
		r.Context = make(map[string]any)
	}
	r.Context[key] = value
}

// Get retrieves a value stashed via Set.
func (r *Request) Get(key string) (any, bool) {
	if r.Context == nil {
		return nil, false
	}
	v, ok := r.Context[key]
	return v, ok
}

// Query lazily parses QueryString into Values on first access.
func (r *Request) Query() (Values, error) {
	return r.query.get(func() (Values, error) {
		return parseQueryString(r.QueryString)
	})
}

// Cookies lazily parses the Cookie request header on first access.
func (r *Request) Cookies() (*CookieJar, error) {
	return r.cookies.get(func() (*CookieJar, error) {
		return parseCookieHeader(r.Headers.Get("COOKIE")), nil
	})
}

// NextChunk awaits the next body chunk from the connection's
// ByteStreamQueue, resuming socket reads on each drain so backpressure is
// automatic. It returns an empty slice once the body stream has ended.
func (r *Request) NextChunk(ctx context.Context) ([]byte, error) {
	chunk, err := r.body.Get(ctx)
	if err != nil {
		return nil, err
	}
	r.conn.ResumeReading()
	return chunk, nil
}

// LoadBody drains the body stream into an in-memory buffer. It is
// idempotent: calling it twice is a no-op the second time.
func (r *Request) LoadBody(ctx context.Context) error {
	if r.loaded {
		return nil
	}
	var buf bytes.Buffer
	for {
		chunk, err := r.NextChunk(ctx)
		if err != nil {
			return err
		}
		if len(chunk) == 0 {
			break
		}
		buf.Write(chunk)
	}
	r.bodyBytes = buf.Bytes()
	r.loaded = true
	return nil
}

// Read loads the body (if not already loaded) and returns it.
func (r *Request) Read(ctx context.Context) ([]byte, error) {
	if err := r.LoadBody(ctx); err != nil {
		return nil, err
	}
	return r.bodyBytes, nil
}

// Body returns the buffer loaded by LoadBody/Read. It is empty until the
// body has been loaded.
func (r *Request) Body() []byte { return r.bodyBytes }

// setURL is invoked by the connection state machine from the parser's
// OnURL event: it splits the raw target into Path (percent-decoded) and
// QueryString.
func (r *Request) setURL(raw []byte) error {
	r.URL = append([]byte(nil), raw...)
	target := string(raw)
	path := target
	query := ""
	if idx := indexByte(target, '?'); idx >= 0 {
		path, query = target[:idx], target[idx+1:]
	}
	decoded, err := url.PathUnescape(path)
	if err != nil {
		return NewHttpError(400, "Invalid request path")
	}
	r.Path = decoded
	r.QueryString = query
	return nil
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}
