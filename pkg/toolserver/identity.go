package toolserver

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/harun/abilityd/internal/tracing"
	"github.com/harun/abilityd/pkg/ability"
)

// Headers read by HeaderContextFunc. Authenticating them is the host's job;
// the tool server trusts whatever sits in front of it.
const (
	HeaderUser         = "X-Ability-User"
	HeaderCapabilities = "X-Ability-Capabilities"
)

// ContextFunc derives the invocation context for an inbound request
type ContextFunc func(r *http.Request) ability.Context

// HeaderContextFunc reads the caller identity from request headers
func HeaderContextFunc(r *http.Request) ability.Context {
	ictx := ability.Context{
		UserID: strings.TrimSpace(r.Header.Get(HeaderUser)),
	}

	for _, c := range strings.Split(r.Header.Get(HeaderCapabilities), ",") {
		if c = strings.TrimSpace(c); c != "" {
			ictx.Capabilities = append(ictx.Capabilities, c)
		}
	}

	return ictx
}

type invocationContextKey struct{}

func withInvocationContext(ctx context.Context, ictx ability.Context) context.Context {
	return context.WithValue(ctx, invocationContextKey{}, ictx)
}

func invocationContextFrom(ctx context.Context) (ability.Context, bool) {
	ictx, ok := ctx.Value(invocationContextKey{}).(ability.Context)
	return ictx, ok
}

// requestContext builds the invocation context and the request-scoped
// context for one inbound call.
func (s *Server) requestContext(r *http.Request, transport TransportKind) (context.Context, ability.Context) {
	ictx := s.cfg.ContextFunc(r)
	ictx.Transport = string(transport)
	if ictx.RequestID == "" {
		ictx.RequestID = middleware.GetReqID(r.Context())
	}
	if ictx.RequestID == "" {
		ictx.RequestID = tracing.NewRequestID()
	}

	ctx := tracing.NewRequestContext(tracing.Extract(r.Context(), r.Header), ictx.RequestID)
	ctx = tracing.WithTransport(ctx, ictx.Transport)
	return ctx, ictx
}
