package extensions

import (
	"context"

	"github.com/google/uuid"

	"github.com/pyrates/roll"
)

// requestIDKey is the Request.Context key RequestID stashes the
// generated identifier under.
const requestIDKey = "request_id"

// RequestID registers a headers hook that stamps every request with a
// unique correlation ID (echoed back as X-Request-Id), reachable from
// later hooks and handlers via req.Get(requestIDKey). No analogue in
// extensions.py; wired here to give github.com/google/uuid a home
// beyond Connection IDs, per-request rather than per-connection.
func RequestID(app *roll.App) {
	app.OnHeaders(func(ctx context.Context, req *roll.Request) error {
		req.Set(requestIDKey, uuid.NewString())
		return nil
	})
	app.OnResponse(func(ctx context.Context, req *roll.Request, resp *roll.Response) error {
		if id, ok := req.Get(requestIDKey); ok {
			resp.Headers.Set("X-Request-Id", id.(string))
		}
		return nil
	})
}
