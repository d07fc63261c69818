package api

import (
	"log/slog"
	"net/http"
	"time"
)

// AuditEvent identifies the type of security-relevant action being logged.
type AuditEvent string

const (
	AuditRecordCreated       AuditEvent = "record_created"
	AuditRecordDuplicate     AuditEvent = "record_duplicate"
	AuditRecordLookup        AuditEvent = "record_lookup"
	AuditRecordLookupMiss    AuditEvent = "record_lookup_miss"
	AuditRecordAmbiguous     AuditEvent = "record_ambiguous"
	AuditRecordViewed        AuditEvent = "record_viewed"
	AuditRecordUpdated       AuditEvent = "record_updated"
	AuditRecordDeleted       AuditEvent = "record_deleted"
	AuditCredentialRejected  AuditEvent = "credential_rejected"
	AuditCredentialMissing   AuditEvent = "credential_missing"
	AuditBannedMutation      AuditEvent = "banned_mutation_refused"
	AuditQueryCredentialUsed AuditEvent = "query_credential_used"
)

// auditLogger wraps slog.Logger for structured security audit logging.
type auditLogger struct {
	logger  *slog.Logger
	metrics *metricsCollector
	webhook *auditWebhook
}

func newAuditLogger(logger *slog.Logger) *auditLogger {
	return &auditLogger{
		logger: logger.With("component", "audit"),
	}
}

// log writes a structured audit log entry. Records are identified by ID;
// the passphrase and its lookup digest are never logged.
func (al *auditLogger) log(event AuditEvent, r *http.Request, attrs ...slog.Attr) {
	now := time.Now().UTC().Format(time.RFC3339)
	baseAttrs := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("timestamp", now),
	}
	baseAttrs = append(baseAttrs, attrs...)

	al.logger.LogAttrs(r.Context(), slog.LevelInfo, "audit", baseAttrs...)
	al.metrics.recordEvent(event)
	if al.webhook != nil {
		evt := webhookEvent{
			Event:      string(event),
			RemoteAddr: r.RemoteAddr,
			Timestamp:  now,
		}
		for _, a := range attrs {
			if a.Key == "record_id" {
				evt.RecordID = a.Value.String()
				continue
			}
			if evt.Attrs == nil {
				evt.Attrs = make(map[string]string)
			}
			evt.Attrs[a.Key] = a.Value.String()
		}
		al.webhook.enqueue(evt)
	}
}

// logEvent is a convenience for events about one record.
func (al *auditLogger) logEvent(event AuditEvent, r *http.Request, recordID string, extra ...slog.Attr) {
	attrs := []slog.Attr{
		slog.String("record_id", recordID),
	}
	attrs = append(attrs, extra...)
	al.log(event, r, attrs...)
}

// logFailure logs a refused request.
func (al *auditLogger) logFailure(event AuditEvent, r *http.Request, reason string, extra ...slog.Attr) {
	attrs := []slog.Attr{
		slog.String("reason", reason),
	}
	attrs = append(attrs, extra...)
	al.log(event, r, attrs...)
}
