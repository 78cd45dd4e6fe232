package extensions

import (
	"context"
	"net/http"

	"github.com/pyrates/roll"
)

// Options registers a request hook that short-circuits any OPTIONS
// request with an empty 200, mirroring extensions.py's options()
// extension (there, returning True from the 'request' listener skips
// route dispatch entirely).
func Options(app *roll.App) {
	app.OnRequest(func(ctx context.Context, req *roll.Request, resp *roll.Response) (bool, error) {
		if req.Method != http.MethodOptions {
			return false, nil
		}
		return true, nil
	})
}
