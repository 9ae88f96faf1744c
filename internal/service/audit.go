package service

import (
	"context"

	"github.com/cinebook/cinebook/internal/queue"
)

// AuditRecorder receives a fire-and-forget record of hold and
// reservation transitions.  Implementations must never block the
// calling operation and must swallow their own failures; an
// unavailable audit sink costs a log line, not a booking.
type AuditRecorder interface {
	Record(ctx context.Context, event queue.AuditEvent)
}

// nopAudit is used when no audit sink is configured.
type nopAudit struct{}

func (nopAudit) Record(context.Context, queue.AuditEvent) {}
