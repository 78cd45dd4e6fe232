package roll

import (
	"errors"
	"fmt"
	"net/http"
)

// HttpError is the domain-level error any handler, hook, or accessor may
// raise to produce a specific HTTP response. A handler raising it
// produces a response with the given status and message as body; any
// other error returned by a handler or hook is wrapped into a 500 with
// the error's string as body, with the original error preserved as
// Context so error hooks can inspect it.
type HttpError struct {
	Status  int
	Message string
	Context error
}

// NewHttpError builds an HttpError. If message is empty, the status's
// canonical phrase is used.
func NewHttpError(status int, message string) *HttpError {
	if message == "" {
		message = http.StatusText(status)
	}
	return &HttpError{Status: status, Message: message}
}

// WrapHttpError builds an HttpError around a context error, using its
// string form as the message unless message is provided, mirroring
// Python's "raise X from Y" provenance tracking.
func WrapHttpError(status int, message string, context error) *HttpError {
	if message == "" && context != nil {
		message = context.Error()
	}
	if message == "" {
		message = http.StatusText(status)
	}
	return &HttpError{Status: status, Message: message, Context: context}
}

func (e *HttpError) Error() string {
	return fmt.Sprintf("%d %s", e.Status, e.Message)
}

func (e *HttpError) Unwrap() error { return e.Context }

// RouteNotFound produces a 404 whose body is the unmatched request path.
func RouteNotFound(path string) *HttpError {
	return NewHttpError(http.StatusNotFound, path)
}

// MethodNotAllowed produces a 405.
func MethodNotAllowed() *HttpError {
	return NewHttpError(http.StatusMethodNotAllowed, "")
}

// UpgradeRequired produces a 426: the route demands a protocol upgrade
// the client did not request.
func UpgradeRequired() *HttpError {
	return NewHttpError(http.StatusUpgradeRequired, "")
}

// NotImplementedUpgrade produces a 501: the client requested an upgrade
// the route cannot satisfy.
func NotImplementedUpgrade() *HttpError {
	return NewHttpError(http.StatusNotImplemented, "Request cannot be upgraded.")
}

// IdleTimeout produces a 408 for a keep-alive connection that sat IDLE
// past the configured idle budget.
func IdleTimeout() *HttpError {
	return NewHttpError(http.StatusRequestTimeout, "")
}

// ErrDuplicateRoute is returned by Router.Add when the same path pattern
// and HTTP method have already been registered. spec.md §9 leaves this
// behavior an open question and suggests "last registration wins" as one
// legitimate choice; this port rejects instead — see DESIGN.md.
var ErrDuplicateRoute = errors.New("roll: duplicate route registration")

// ErrUnknownRouteName is returned by Router.URLFor for a name that was
// never registered.
var ErrUnknownRouteName = errors.New("roll: unknown route name")

// ErrBodyNotLoaded is returned by Form, Files, and JSON when called
// before the request body has been loaded.
var ErrBodyNotLoaded = errors.New("roll: body not loaded yet")
