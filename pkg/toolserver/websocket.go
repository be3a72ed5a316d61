package toolserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/harun/abilityd/internal/tracing"
	"github.com/harun/abilityd/pkg/ability"
)

// RPCRequest is a JSON-RPC 2.0 request received over the websocket transport
type RPCRequest struct {
	ID      string                 `json:"id"`
	Method  string                 `json:"method"`
	Params  map[string]interface{} `json:"params,omitempty"`
	JSONRPC string                 `json:"jsonrpc"`
}

// RPCResponse is a JSON-RPC 2.0 response
type RPCResponse struct {
	ID      string      `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
	JSONRPC string      `json:"jsonrpc"`
}

// RPCError is a JSON-RPC 2.0 error
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error implements the error interface
func (e *RPCError) Error() string {
	return e.Message
}

// RPC error codes. The -3200x range carries tool call failures; Data holds
// the same body the HTTP transport would return.
const (
	ParseError       = -32700
	InvalidRequest   = -32600
	MethodNotFound   = -32601
	InvalidParams    = -32602
	InternalError    = -32603
	ToolUnavailable  = -32001
	PermissionDenied = -32003
	ToolNotFound     = -32004
)

const (
	MethodToolsList = "tools/list"
	MethodToolsCall = "tools/call"
)

// maxConcurrentCalls bounds the requests one connection has in flight. The
// read loop stops reading while the limit is reached.
const maxConcurrentCalls = 10

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // origins are checked by the host
	},
}

// wsConn serializes writes; gorilla connections allow one concurrent writer
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

func (s *Server) mountWebsocket(r chi.Router) {
	r.Get("/ws", s.handleWebsocket)
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.cfg.Logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	// Identity is fixed at upgrade time; each message gets its own request id.
	identity := s.cfg.ContextFunc(r)
	client := &wsConn{conn: conn}

	s.cfg.Logger.Debug().Str("ip", r.RemoteAddr).Str("user_id", identity.UserID).Msg("Websocket client connected")

	slots := make(chan struct{}, maxConcurrentCalls)
	var inFlight sync.WaitGroup
	defer func() {
		inFlight.Wait()
		conn.Close()
		s.cfg.Logger.Debug().Str("ip", r.RemoteAddr).Msg("Websocket client disconnected")
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.cfg.Logger.Warn().Err(err).Msg("Websocket error")
			}
			return
		}

		ctx, ictx := s.messageContext(r, identity)

		req, rpcErr := parseRPCRequest(message)
		if rpcErr != nil {
			s.rejectRequest("", TransportWebsocket, rpcErr.Message, ictx)
			s.writeRPC(client, &RPCResponse{JSONRPC: "2.0", Error: rpcErr})
			continue
		}

		slots <- struct{}{}
		inFlight.Add(1)
		go func() {
			defer func() {
				<-slots
				inFlight.Done()
			}()
			s.writeRPC(client, s.routeRPC(ctx, req, ictx))
		}()
	}
}

// messageContext builds the context of one websocket message from the
// identity captured at upgrade time
func (s *Server) messageContext(r *http.Request, identity ability.Context) (context.Context, ability.Context) {
	ictx := identity
	ictx.Transport = string(TransportWebsocket)
	ictx.RequestID = tracing.NewRequestID()

	ctx := tracing.NewRequestContext(tracing.Extract(r.Context(), r.Header), ictx.RequestID)
	ctx = tracing.WithTransport(ctx, ictx.Transport)
	return ctx, ictx
}

func (s *Server) writeRPC(client *wsConn, resp *RPCResponse) {
	if err := client.writeJSON(resp); err != nil {
		s.cfg.Logger.Warn().Err(err).Str("rpc_id", resp.ID).Msg("Failed to send response")
	}
}

func parseRPCRequest(data []byte) (*RPCRequest, *RPCError) {
	var req RPCRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, &RPCError{Code: ParseError, Message: "Parse error", Data: err.Error()}
	}
	if req.ID == "" {
		return nil, &RPCError{Code: InvalidRequest, Message: "Invalid request: missing id field"}
	}
	if req.Method == "" {
		return nil, &RPCError{Code: InvalidRequest, Message: "Invalid request: missing method field"}
	}
	if req.JSONRPC == "" {
		req.JSONRPC = "2.0"
	}
	return &req, nil
}

func (s *Server) routeRPC(ctx context.Context, req *RPCRequest, ictx ability.Context) *RPCResponse {
	resp := &RPCResponse{ID: req.ID, JSONRPC: "2.0"}

	switch req.Method {
	case MethodToolsList:
		resp.Result = map[string]interface{}{
			"server": s.Info(),
			"tools":  s.Tools(),
		}

	case MethodToolsCall:
		name, _ := req.Params["name"].(string)
		if name == "" {
			s.rejectRequest("", TransportWebsocket, "name is required", ictx)
			resp.Error = &RPCError{Code: InvalidParams, Message: "name is required"}
			return resp
		}

		result := s.Call(ctx, name, req.Params["arguments"], ictx)
		if result.Status == http.StatusOK {
			resp.Result = result.Body
			return resp
		}

		message, _ := result.Body["error"].(string)
		resp.Error = &RPCError{
			Code:    rpcCode(result.Status),
			Message: message,
			Data:    result.Body,
		}

	default:
		resp.Error = &RPCError{
			Code:    MethodNotFound,
			Message: fmt.Sprintf("Method not found: %s", req.Method),
		}
	}

	return resp
}

func rpcCode(status int) int {
	switch status {
	case http.StatusBadRequest:
		return InvalidParams
	case http.StatusForbidden:
		return PermissionDenied
	case http.StatusNotFound:
		return ToolNotFound
	case http.StatusServiceUnavailable:
		return ToolUnavailable
	default:
		return InternalError
	}
}
