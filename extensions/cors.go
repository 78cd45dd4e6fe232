// Package extensions provides optional hook bundles that register
// against a *roll.App, the same role original_source/roll/extensions.py
// plays for the original project: cors, logger, options, and traceback
// are each one function that wires a handful of listeners and returns.
package extensions

import (
	"context"

	"github.com/pyrates/roll"
)

// CORS registers a response hook that stamps Access-Control-Allow-Origin
// on every response, mirroring extensions.py's cors().
func CORS(app *roll.App, origin string) {
	if origin == "" {
		origin = "*"
	}
	app.OnResponse(func(ctx context.Context, req *roll.Request, resp *roll.Response) error {
		resp.Headers.Set("Access-Control-Allow-Origin", origin)
		return nil
	})
}
