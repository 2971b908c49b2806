package main

import (
	"net/http"
)

func (app *application) routes() http.Handler {
	mux := http.NewServeMux()

	var (
		base = func(next http.Handler) http.Handler {
			return app.logAndTraceRequest(app.recoverPanic(secureHeaders(noCache(app.crossOriginProtection(next)))))
		}
		api = func(next http.HandlerFunc) http.Handler {
			return base(app.timeout(app.requestTimeout)(next))
		}
		// generation covers every model attempt and its backoff.
		generation = func(next http.HandlerFunc) http.Handler {
			return base(app.timeout(app.generateTimeout)(next))
		}
	)

	mux.Handle("GET /api/healthy", api(app.healthy))
	mux.Handle("POST /api/limits", api(app.limitsPOST))
	mux.Handle("POST /api/validate", api(app.validatePOST))
	mux.Handle("POST /api/users/{userID}/exercises/{exerciseID}/progression", api(app.progressionPOST))
	mux.Handle("GET /api/users/{userID}/exercises/{exerciseID}/history", api(app.historyGET))
	mux.Handle("POST /api/users/{userID}/sessions", api(app.sessionsPOST))
	mux.Handle("POST /api/users/{userID}/plans/generate", generation(app.generatePOST))

	mux.Handle("GET /metrics", app.logAndTraceRequest(app.recoverPanic(app.metrics.Handler())))
	// The MCP handler streams its own responses and is not wrapped in TimeoutHandler.
	mux.Handle("/mcp", base(app.mcpHandler))

	mux.Handle("/", base(http.HandlerFunc(app.notFound)))

	return mux
}
