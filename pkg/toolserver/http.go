package toolserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 1 << 20

// callRequest is the body of POST {base}/call
type callRequest struct {
	Name      string      `json:"name"`
	Arguments interface{} `json:"arguments"`
}

func (s *Server) mountHTTP(r chi.Router) {
	r.Get("/tools", s.handleListTools)
	r.Post("/tools/{namespace}/{name}", s.handleToolRoute)
	r.Post("/call", s.handleCall)
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"server": s.Info(),
		"tools":  s.Tools(),
	})
}

func (s *Server) handleToolRoute(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "namespace") + "/" + chi.URLParam(r, "name")
	ctx, ictx := s.requestContext(r, TransportHTTP)

	input, err := decodeBody(r)
	if err != nil {
		writeResponse(w, s.rejectRequest(name, TransportHTTP, err.Error(), ictx))
		return
	}

	writeResponse(w, s.Call(ctx, name, input, ictx))
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	ctx, ictx := s.requestContext(r, TransportHTTP)

	var req callRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeResponse(w, s.rejectRequest("", TransportHTTP, "request body must be an object with name and arguments", ictx))
		return
	}
	if req.Name == "" {
		writeResponse(w, s.rejectRequest("", TransportHTTP, "name is required", ictx))
		return
	}

	writeResponse(w, s.Call(ctx, req.Name, req.Arguments, ictx))
}

// decodeBody reads a JSON body. An empty body decodes to nil.
func decodeBody(r *http.Request) (interface{}, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.New("failed to read request body")
	}
	if len(data) == 0 {
		return nil, nil
	}

	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, errors.New("request body is not valid JSON")
	}
	return v, nil
}

func writeResponse(w http.ResponseWriter, resp Response) {
	writeJSON(w, resp.Status, resp.Body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
