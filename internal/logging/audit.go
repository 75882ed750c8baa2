package logging

import (
	"time"

	"go.uber.org/zap"
)

// AuditEventType names one step of an agent cycle.
type AuditEventType string

const (
	AuditCycleStart    AuditEventType = "cycle_start"
	AuditCyclePosted   AuditEventType = "cycle_posted"
	AuditCycleSkipped  AuditEventType = "cycle_skipped"
	AuditCycleAborted  AuditEventType = "cycle_aborted"
	AuditTickOverlap   AuditEventType = "tick_overlap"
	AuditReplySelected AuditEventType = "reply_selected"
)

// AuditEvent is one structured audit record. Audit records always go out
// at info level under the "audit" logger name so they can be filtered
// from the regular category logs.
type AuditEvent struct {
	Type     AuditEventType
	Agent    string
	Cycle    string
	Behavior string
	PostID   string
	Target   string
	Reason   string
	Duration time.Duration
}

// Audit writes an audit event.
func Audit(ev AuditEvent) {
	fields := []zap.Field{
		zap.String("event", string(ev.Type)),
		zap.String("agent", ev.Agent),
	}
	if ev.Cycle != "" {
		fields = append(fields, zap.String("cycle", ev.Cycle))
	}
	if ev.Behavior != "" {
		fields = append(fields, zap.String("behavior", ev.Behavior))
	}
	if ev.PostID != "" {
		fields = append(fields, zap.String("post_id", ev.PostID))
	}
	if ev.Target != "" {
		fields = append(fields, zap.String("target", ev.Target))
	}
	if ev.Reason != "" {
		fields = append(fields, zap.String("reason", ev.Reason))
	}
	if ev.Duration > 0 {
		fields = append(fields, zap.Duration("duration", ev.Duration))
	}
	Base().Named("audit").Info(string(ev.Type), fields...)
}
