package extensions

import (
	"context"

	"go.uber.org/zap"

	"github.com/pyrates/roll"
)

// Logger registers request-level logging against app, following
// extensions.py's logger() extension but using the teacher's own
// structured logger (zap) instead of stdlib logging — the original
// attaches/detaches a log handler on startup/shutdown; a *zap.Logger
// has no equivalent attach step, so this keeps only the per-request
// logging listener and leans on the caller's logger lifecycle for the
// rest.
func Logger(app *roll.App, logger *zap.Logger) {
	app.OnRequest(func(ctx context.Context, req *roll.Request, resp *roll.Response) (bool, error) {
		logger.Info("request", zap.String("method", req.Method), zap.String("path", req.Path))
		return false, nil
	})
}
