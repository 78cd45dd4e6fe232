package extensions

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/pyrates/roll"
)

// Traceback registers an error hook that logs the full error chain for
// a 500, mirroring extensions.py's traceback() extension (there,
// print_exc() on an uncaught 500). It never claims to have handled the
// error, so the caller's default HttpError rendering still runs.
func Traceback(app *roll.App, logger *zap.Logger) {
	app.OnError(func(ctx context.Context, req *roll.Request, cause error) (*roll.Response, bool) {
		var he *roll.HttpError
		status := http.StatusInternalServerError
		if errors.As(cause, &he) {
			status = he.Status
		}
		if status == http.StatusInternalServerError {
			logger.Error("unhandled error",
				zap.String("method", req.Method),
				zap.String("path", req.Path),
				zap.Error(cause))
		}
		return nil, false
	})
}
