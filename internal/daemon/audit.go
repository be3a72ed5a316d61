package daemon

import (
	"context"
	"time"

	"github.com/harun/abilityd/internal/metrics"
	"github.com/harun/abilityd/internal/observability"
	"github.com/harun/abilityd/internal/tracing"
	"github.com/harun/abilityd/pkg/ability"
	"github.com/harun/abilityd/pkg/engine"
	"github.com/harun/abilityd/pkg/toolserver"
)

// auditedInvoker records every invocation in the audit trail. The audit
// span encloses the engine's invocation span and is still open when the
// event is recorded.
type auditedInvoker struct {
	next  toolserver.Invoker
	audit *observability.AuditLogger
}

func (i *auditedInvoker) Invoke(ctx context.Context, abilityID string, rawInput interface{}, ictx ability.Context) (map[string]interface{}, error) {
	ctx, span := tracing.StartInvocationSpan(ctx, tracing.SpanAudit, abilityID)
	defer span.End()

	start := time.Now()
	output, err := i.next.Invoke(ctx, abilityID, rawInput, ictx)

	i.audit.Record(ctx, observability.AuditEvent{
		Timestamp: start,
		AbilityID: abilityID,
		Actor:     ictx.UserID,
		Transport: ictx.Transport,
		RequestID: ictx.RequestID,
		Status:    auditStatus(output, err),
		Duration:  time.Since(start),
		TraceID:   tracing.GetTraceID(ctx),
	})

	return output, err
}

func auditStatus(output map[string]interface{}, err error) string {
	if err != nil {
		if kind := engine.KindOf(err); kind != "" {
			return string(kind)
		}
		return "error"
	}
	if ok, isBool := output["success"].(bool); isBool && !ok {
		return metrics.OutcomeFailure
	}
	return metrics.OutcomeSuccess
}
