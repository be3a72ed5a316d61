// Package toolserver exposes registered abilities to remote callers as tools.
//
// A Server binds a fixed list of ability ids once, then serves them over the
// configured transports. It never caches an *ability.Ability: every call and
// every listing resolves the id through the registry again.
//
//	srv, err := toolserver.New(cfg, registry, eng)
//	if err := srv.Bind(); err != nil { ... }
//	handler, err := srv.Handler()
package toolserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/harun/abilityd/pkg/ability"
	"github.com/harun/abilityd/pkg/engine"
	"github.com/harun/abilityd/pkg/schema"
)

var (
	ErrNotExposed   = errors.New("ability is not exposed as a public tool")
	ErrInvalidState = errors.New("invalid server state")
	ErrNotServing   = errors.New("tool server is not serving")
	ErrToolNotBound = errors.New("tool is not bound to this server")
)

// CodeInvalidRequest is the error code of requests a transport could not
// turn into a tool call
const CodeInvalidRequest = "invalid_request"

// RequestError is a request rejected by a transport before any ability ran
type RequestError struct {
	Transport TransportKind
	Message   string
}

// Error implements the error interface
func (e *RequestError) Error() string {
	return fmt.Sprintf("invalid %s request: %s", e.Transport, e.Message)
}

// State is a tool server lifecycle state
type State int

const (
	StateUnbound State = iota
	StateBinding
	StateBound
	StateServing
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateBinding:
		return "binding"
	case StateBound:
		return "bound"
	case StateServing:
		return "serving"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Registry resolves abilities by id
type Registry interface {
	Get(id string) (*ability.Ability, error)
}

// Invoker runs abilities; satisfied by *engine.Engine
type Invoker interface {
	Invoke(ctx context.Context, abilityID string, rawInput interface{}, ictx ability.Context) (map[string]interface{}, error)
}

// Response is the transport-neutral result of a tool call
type Response struct {
	Status int                    `json:"status"`
	Body   map[string]interface{} `json:"body"`
}

// Tool describes a bound ability as seen by remote callers
type Tool struct {
	Name         string                 `json:"name"`
	Label        string                 `json:"label"`
	Description  string                 `json:"description"`
	Category     string                 `json:"category"`
	InputSchema  map[string]interface{} `json:"inputSchema"`
	OutputSchema map[string]interface{} `json:"outputSchema"`
}

// Info is the server identity advertised to callers
type Info struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`
}

// Server exposes bound abilities over one or more transports
type Server struct {
	cfg      Config
	registry Registry
	invoker  Invoker

	mu       sync.RWMutex
	state    State
	bound    []string
	boundSet map[string]struct{}
	handler  http.Handler

	recordMu sync.Mutex
	draining bool
	records  sync.WaitGroup
}

// New validates cfg and creates an unbound server
func New(cfg Config, registry Registry, invoker Invoker) (*Server, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if invoker == nil {
		return nil, fmt.Errorf("invoker is required")
	}
	if err := cfg.normalize(); err != nil {
		return nil, fmt.Errorf("invalid tool server config: %w", err)
	}

	cfg.Abilities = append([]string(nil), cfg.Abilities...)
	cfg.Logger = cfg.Logger.With().Str("component", "toolserver").Str("server_id", cfg.ID).Logger()

	return &Server{
		cfg:      cfg,
		registry: registry,
		invoker:  invoker,
		state:    StateUnbound,
	}, nil
}

// ID returns the server id
func (s *Server) ID() string {
	return s.cfg.ID
}

// Info returns the server identity
func (s *Server) Info() Info {
	return Info{
		ID:          s.cfg.ID,
		Name:        s.cfg.Name,
		Description: s.cfg.Description,
		Version:     s.cfg.Version,
	}
}

// BasePath returns the route the transports are mounted under
func (s *Server) BasePath() string {
	return s.cfg.BasePath()
}

// State returns the current lifecycle state
func (s *Server) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Bind resolves the configured ability ids. Under BindStrict the first id
// that is unknown, not public, or not exposed as a tool fails the bind and
// leaves the server unbound. Under BindLenient such ids are skipped.
func (s *Server) Bind() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateUnbound {
		return fmt.Errorf("%w: cannot bind while %s", ErrInvalidState, s.state)
	}
	s.state = StateBinding

	bound := make([]string, 0, len(s.cfg.Abilities))
	boundSet := make(map[string]struct{}, len(s.cfg.Abilities))

	for _, id := range s.cfg.Abilities {
		if _, dup := boundSet[id]; dup {
			continue
		}

		if err := s.checkBindable(id); err != nil {
			if s.cfg.Policy == BindStrict {
				s.state = StateUnbound
				return fmt.Errorf("failed to bind server %s: %w", s.cfg.ID, err)
			}
			s.cfg.Logger.Warn().Err(err).Str("ability_id", id).Msg("Skipping unbindable ability")
			continue
		}

		bound = append(bound, id)
		boundSet[id] = struct{}{}
	}

	s.bound = bound
	s.boundSet = boundSet
	s.state = StateBound

	s.cfg.Logger.Info().
		Int("tools", len(bound)).
		Str("policy", string(s.cfg.Policy)).
		Msg("Tool server bound")

	return nil
}

func (s *Server) checkBindable(id string) error {
	a, err := s.registry.Get(id)
	if err != nil {
		return err
	}
	if !a.IsTool() {
		return fmt.Errorf("%w: %s", ErrNotExposed, id)
	}
	return nil
}

// BoundIDs returns the bound ability ids in configuration order
func (s *Server) BoundIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.bound...)
}

func (s *Server) isBound(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.boundSet[id]
	return ok
}

// Tools describes every bound tool, resolved from the registry now
func (s *Server) Tools() []Tool {
	ids := s.BoundIDs()
	tools := make([]Tool, 0, len(ids))
	for _, id := range ids {
		a, err := s.registry.Get(id)
		if err != nil {
			continue
		}
		tools = append(tools, Tool{
			Name:         a.ID,
			Label:        a.Label,
			Description:  a.Description,
			Category:     a.Category,
			InputSchema:  a.InputSchema.JSONSchema(),
			OutputSchema: a.OutputSchema.JSONSchema(),
		})
	}
	return tools
}

// Handler moves a bound server to Serving and returns the HTTP handler that
// mounts every configured transport under BasePath. Calling it again while
// serving returns the same handler.
func (s *Server) Handler() (http.Handler, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateServing:
		return s.handler, nil
	case StateBound:
	default:
		return nil, fmt.Errorf("%w: cannot serve while %s", ErrInvalidState, s.state)
	}

	r := chi.NewRouter()
	r.Route(s.cfg.BasePath(), func(r chi.Router) {
		for _, t := range s.cfg.Transports {
			switch t {
			case TransportHTTP:
				s.mountHTTP(r)
			case TransportMCP:
				s.mountMCP(r)
			case TransportWebsocket:
				s.mountWebsocket(r)
			}
		}
	})

	s.handler = r
	s.state = StateServing

	s.cfg.Logger.Info().
		Str("base_path", s.cfg.BasePath()).
		Interface("transports", s.cfg.Transports).
		Msg("Tool server serving")

	return s.handler, nil
}

// Call invokes a bound tool and maps the outcome to a Response. It never
// returns an error; failures are encoded in the response.
func (s *Server) Call(ctx context.Context, toolName string, rawInput interface{}, ictx ability.Context) Response {
	if s.State() != StateServing {
		return failure(http.StatusServiceUnavailable, "unavailable", ErrNotServing.Error(), nil)
	}

	if !s.isBound(toolName) {
		err := &engine.Error{
			Kind:      engine.KindUnknownAbility,
			AbilityID: toolName,
			Message:   fmt.Sprintf("unknown tool: %s", toolName),
			Err:       ErrToolNotBound,
		}
		s.handleError(toolName, err, ictx)
		s.record(toolName, 0, string(err.Kind))
		return errorResponse(err)
	}

	start := time.Now()
	output, err := s.invoker.Invoke(ctx, toolName, rawInput, ictx)
	duration := time.Since(start)

	if err != nil {
		s.handleError(toolName, err, ictx)
		s.record(toolName, duration, codeOf(err))
		return errorResponse(err)
	}

	outcome := OutcomeSuccess
	if ok, isBool := output["success"].(bool); isBool && !ok {
		outcome = OutcomeFailure
	}
	s.record(toolName, duration, outcome)

	body := make(map[string]interface{}, len(output)+1)
	body["success"] = true
	for k, v := range output {
		body[k] = v
	}

	return Response{Status: http.StatusOK, Body: body}
}

// rejectRequest reports a request the transport could not decode to the
// error and observability handlers and returns its 400 response. toolName is
// empty when the request never named a tool.
func (s *Server) rejectRequest(toolName string, transport TransportKind, message string, ictx ability.Context) Response {
	s.handleError(toolName, &RequestError{Transport: transport, Message: message}, ictx)
	s.record(toolName, 0, CodeInvalidRequest)
	return failure(http.StatusBadRequest, CodeInvalidRequest, message, nil)
}

// Drain waits for pending observability records to be delivered. Records
// made after Drain are delivered before the call that made them returns.
func (s *Server) Drain() {
	s.recordMu.Lock()
	s.draining = true
	s.recordMu.Unlock()

	s.records.Wait()
}

func (s *Server) handleError(abilityID string, err error, ictx ability.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.cfg.Logger.Error().
				Interface("panic", r).
				Str("ability_id", abilityID).
				Msg("Error handler panicked")
		}
	}()
	s.cfg.ErrorHandler.Handle(abilityID, err, ictx)
}

func (s *Server) record(abilityID string, duration time.Duration, outcome string) {
	s.recordMu.Lock()
	if s.draining {
		s.recordMu.Unlock()
		s.deliver(abilityID, duration, outcome)
		return
	}
	s.records.Add(1)
	s.recordMu.Unlock()

	go func() {
		defer s.records.Done()
		s.deliver(abilityID, duration, outcome)
	}()
}

func (s *Server) deliver(abilityID string, duration time.Duration, outcome string) {
	defer func() {
		if r := recover(); r != nil {
			s.cfg.Logger.Error().
				Interface("panic", r).
				Str("ability_id", abilityID).
				Msg("Observability handler panicked")
		}
	}()
	s.cfg.Observability.Record(abilityID, duration, outcome)
}

// codeOf names a failure the way responses and records do
func codeOf(err error) string {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return CodeInvalidRequest
	}
	if kind := engine.KindOf(err); kind != "" {
		return string(kind)
	}
	return "error"
}

// StatusFor maps an engine error kind to an HTTP status code
func StatusFor(kind engine.Kind) int {
	switch kind {
	case engine.KindPermissionDenied:
		return http.StatusForbidden
	case engine.KindUnknownAbility:
		return http.StatusNotFound
	case engine.KindInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func errorResponse(err error) Response {
	var ee *engine.Error
	if !errors.As(err, &ee) {
		return failure(http.StatusInternalServerError, "internal_error", err.Error(), nil)
	}

	// Output contract violations are ability bugs; keep their details in the logs.
	if ee.Kind == engine.KindOutputContractViolation {
		return failure(StatusFor(ee.Kind), string(ee.Kind), "internal error", nil)
	}

	return failure(StatusFor(ee.Kind), string(ee.Kind), ee.Error(), ee.Violations)
}

func failure(status int, code, message string, violations []schema.Violation) Response {
	body := map[string]interface{}{
		"success": false,
		"error":   message,
		"code":    code,
	}
	if len(violations) > 0 {
		body["violations"] = violations
	}
	return Response{Status: status, Body: body}
}
