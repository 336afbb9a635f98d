package api

import (
	"net/http"

	"github.com/revittco/mcplexer/internal/inboundauth"
	"github.com/revittco/mcplexer/internal/multiplexer"
	"github.com/revittco/mcplexer/internal/oauth"
)

// RouterDeps holds the dependencies needed by the HTTP API router: the
// downstream-facing MCP surface (spec §4.G/§6) and the inbound auth gate
// that fronts it (spec §4.H), plus an optional authorization-server
// store if this deployment also wants to act as its own OAuth server
// (spec §6's route-signature-only surface).
type RouterDeps struct {
	Multiplexer *multiplexer.Multiplexer // optional; enables /api/streamable/mcp and /ws
	InboundAuth *inboundauth.Gate        // optional; enforces bearer auth on the MCP-facing surface
	OAuthStore  oauth.Store              // optional; backs the authorization-server surface
}

// NewRouter creates an http.Handler with the proxy's own routes: health,
// the MCP-facing surface, and the authorization-server surface.
func NewRouter(deps RouterDeps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", healthCheck)

	if deps.Multiplexer != nil {
		mcpSurface := newMCPSurfaceHandler(deps.Multiplexer)
		mux.HandleFunc("GET /api/streamable/health", mcpSurface.streamableHealth)
		mux.HandleFunc("/api/streamable/mcp", mcpSurface.mcp)
		mux.HandleFunc("GET /ws", mcpSurface.ws)
	}

	oauthSrv := oauth.NewServer(deps.OAuthStore)
	mux.HandleFunc("GET /api/oauth/authorize", oauthSrv.Authorize)
	mux.HandleFunc("POST /api/oauth/token", oauthSrv.Token)
	mux.HandleFunc("POST /api/oauth/consent", oauthSrv.Consent)
	mux.HandleFunc("POST /api/oauth/consent/revoke", oauthSrv.ConsentRevoke)
	mux.HandleFunc("POST /api/oauth/client/{clientId}/rotate-secret", oauthSrv.RotateClientSecret)
	mux.HandleFunc("GET /api/oauth/callback", oauthSrv.Callback)

	// Apply middleware chain: CORS -> RequestID -> Logging -> inbound auth gate -> mux
	var handler http.Handler = mux
	if deps.InboundAuth != nil {
		handler = deps.InboundAuth.Middleware(handler)
	}
	handler = loggingMiddleware(handler)
	handler = requestIDMiddleware(handler)
	handler = corsMiddleware(handler)

	return handler
}
