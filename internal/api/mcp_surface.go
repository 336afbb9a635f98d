package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/revittco/mcplexer/internal/mcpwire"
	"github.com/revittco/mcplexer/internal/multiplexer"
)

// mcpSurfaceHandler serves the proxy's own downstream-facing MCP
// endpoints (spec §6: POST/GET/DELETE /api/streamable/mcp, GET /ws) on
// top of a multiplexer.Multiplexer. It is the HTTP-transport analogue of
// what internal/gateway does for the stdio/socket-facing surface.
type mcpSurfaceHandler struct {
	mux             *multiplexer.Multiplexer
	serverName      string
	serverVersion   string
	upgrader        websocket.Upgrader
}

func newMCPSurfaceHandler(mux *multiplexer.Multiplexer) *mcpSurfaceHandler {
	return &mcpSurfaceHandler{
		mux:           mux,
		serverName:    "mcplexer",
		serverVersion: "0.1.0",
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// streamableHealth answers GET /api/streamable/health with the same
// body as the unauthenticated /api/health (spec §6), but behind the
// inbound auth gate.
func (h *mcpSurfaceHandler) streamableHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        "ok",
		Version:       h.serverVersion,
		UptimeSeconds: int(time.Since(startTime).Seconds()),
		Mode:          "http",
	})
}

// mcp handles all three spec §6 streamable-HTTP methods on one route.
func (h *mcpSurfaceHandler) mcp(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handlePost(w, r)
	case http.MethodGet:
		h.handleSSE(w, r)
	case http.MethodDelete:
		h.handleTerminate(w, r)
	default:
		w.Header().Set("Allow", "GET, POST, DELETE")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *mcpSurfaceHandler) handlePost(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	sessionID := r.Header.Get("Mcp-Session-Id")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	resp, hasResp := h.dispatch(r.Context(), json.RawMessage(body))
	w.Header().Set("Mcp-Session-Id", sessionID)
	if !hasResp {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeJSON(w, http.StatusOK, json.RawMessage(resp))
}

// handleSSE streams server-initiated notifications (currently only
// notifications/tools/list_changed) to a downstream client that opened
// GET /api/streamable/mcp with Accept: text/event-stream (spec §6).
func (h *mcpSurfaceHandler) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	ch := h.mux.Bus.Subscribe()
	defer h.mux.Bus.Unsubscribe(ch)

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			notif, err := mcpwire.NewNotification(mcpwire.MethodToolsListChanged, nil)
			if err != nil {
				continue
			}
			data, err := json.Marshal(notif)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(w, ":\n\n")
			flusher.Flush()
		}
	}
}

// handleTerminate answers DELETE /api/streamable/mcp. The multiplexer
// keeps no per-session server-side state beyond the shared upstream
// clients, so termination is just an acknowledgement; there is nothing
// session-scoped left to tear down.
func (h *mcpSurfaceHandler) handleTerminate(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// ws upgrades GET /ws to a WebSocket connection and runs a read/dispatch
// loop over it, fanning out Bus notifications concurrently (spec §6).
func (h *mcpSurfaceHandler) ws(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	writeMu := make(chan struct{}, 1)
	writeMu <- struct{}{}
	write := func(b []byte) error {
		<-writeMu
		defer func() { writeMu <- struct{}{} }()
		return conn.WriteMessage(websocket.TextMessage, b)
	}

	ch := h.mux.Bus.Subscribe()
	defer h.mux.Bus.Unsubscribe(ch)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			resp, hasResp := h.dispatch(r.Context(), json.RawMessage(msg))
			if !hasResp {
				continue
			}
			if err := write(resp); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			notif, err := mcpwire.NewNotification(mcpwire.MethodToolsListChanged, nil)
			if err != nil {
				continue
			}
			b, err := json.Marshal(notif)
			if err != nil {
				continue
			}
			if err := write(b); err != nil {
				return
			}
		}
	}
}

// dispatch decodes one JSON-RPC frame and routes it to initialize,
// tools/list, or tools/call against the multiplexer. It returns
// (response bytes, true) for requests, or (nil, false) for
// notifications, which get no reply.
func (h *mcpSurfaceHandler) dispatch(ctx context.Context, raw json.RawMessage) (json.RawMessage, bool) {
	var req mcpwire.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		resp := mcpwire.ResultErr(nil, mcpwire.CodeParseError, "invalid JSON-RPC message")
		b, _ := json.Marshal(resp)
		return b, true
	}

	if mcpwire.IsNotification(raw) {
		return nil, false
	}

	switch req.Method {
	case "initialize":
		result := mcpwire.InitializeResult{
			ProtocolVersion: "2024-11-05",
			Capabilities:    mcpwire.ServerCapability{Tools: &mcpwire.ToolCapability{ListChanged: true}},
			ServerInfo:      mcpwire.ServerInfo{Name: h.serverName, Version: h.serverVersion},
		}
		resp, err := mcpwire.ResultOK(req.ID, result)
		return encodeResponse(resp, err)

	case "tools/list":
		tools, err := h.mux.ListTools(ctx)
		if err != nil {
			resp := mcpwire.ResultErr(req.ID, mcpwire.CodeInternalError, err.Error())
			b, _ := json.Marshal(resp)
			return b, true
		}
		resp, err := mcpwire.ResultOK(req.ID, mcpwire.ListToolsResult{Tools: tools})
		return encodeResponse(resp, err)

	case "tools/call":
		var params mcpwire.CallToolRequest
		if err := mcpwire.DecodeParams(req.Params, &params); err != nil {
			resp := mcpwire.ResultErr(req.ID, mcpwire.CodeInvalidParams, err.Error())
			b, _ := json.Marshal(resp)
			return b, true
		}
		result, err := h.mux.CallTool(ctx, params.Name, params.Arguments)
		if err != nil {
			resp := mcpwire.ResultErr(req.ID, mcpwire.CodeInternalError, err.Error())
			b, _ := json.Marshal(resp)
			return b, true
		}
		b, err := json.Marshal(mcpwire.Response{JSONRPC: "2.0", ID: req.ID, Result: result})
		if err != nil {
			resp := mcpwire.ResultErr(req.ID, mcpwire.CodeInternalError, err.Error())
			eb, _ := json.Marshal(resp)
			return eb, true
		}
		return b, true

	default:
		resp := mcpwire.ResultErr(req.ID, mcpwire.CodeMethodNotFound, fmt.Sprintf("unknown method %q", req.Method))
		b, _ := json.Marshal(resp)
		return b, true
	}
}

func encodeResponse(resp mcpwire.Response, err error) (json.RawMessage, bool) {
	if err != nil {
		errResp := mcpwire.ResultErr(resp.ID, mcpwire.CodeInternalError, err.Error())
		b, _ := json.Marshal(errResp)
		return b, true
	}
	b, err := json.Marshal(resp)
	if err != nil {
		return nil, true
	}
	return b, true
}
