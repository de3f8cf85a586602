package httpapi

import (
	"context"
	"errors"
	"net/http"
)

// errShuttingDown is the cancellation cause of fetches cut short by shutdown.
var errShuttingDown = errors.New("server shutting down")

// serverBaseCtx is canceled on shutdown. Background until SetBaseContext.
var serverBaseCtx = context.Background()

// SetBaseContext sets the process-level context whose end aborts in-flight
// content fetches. Nil resets it to Background.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		serverBaseCtx = context.Background()
		return
	}
	serverBaseCtx = ctx
}

// fetchContext derives a context from the request that is also canceled, with
// cause errShuttingDown, when the base context ends. Call the returned func
// when the handler is done.
func fetchContext(r *http.Request) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(r.Context())
	stop := context.AfterFunc(serverBaseCtx, func() { cancel(errShuttingDown) })
	return ctx, func() {
		stop()
		cancel(nil)
	}
}
