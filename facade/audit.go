package facade

import (
	"context"

	"github.com/oarkflow/identityd/logger"
)

// LogAuditSink writes every audit record as a structured log line.
// It is always available as a fallback sink even when no durable
// audit store is configured.
type LogAuditSink struct {
	log logger.Logger
}

func NewLogAuditSink(log logger.Logger) *LogAuditSink {
	if log == nil {
		log = logger.NewNullLogger()
	}
	return &LogAuditSink{log: log}
}

func (s *LogAuditSink) Record(ctx context.Context, entry AuditRecord) error {
	s.log.Info("authz decision",
		"correlationId", entry.CorrelationID,
		"subjectSub", entry.SubjectSub,
		"decision", entry.Decision,
		"matchedRuleIds", entry.MatchedRuleIDs,
	)
	return nil
}

// AsyncAuditSink wraps another sink with a buffered channel and a
// single background worker. Audit records are dropped — not blocked
// on — when the buffer is full, so a slow or stalled audit backend
// never adds latency to an evaluation.
type AsyncAuditSink struct {
	inner AuditSink
	ch    chan AuditRecord
	log   logger.Logger
}

func NewAsyncAuditSink(inner AuditSink, bufferSize int, log logger.Logger) *AsyncAuditSink {
	if log == nil {
		log = logger.NewNullLogger()
	}
	s := &AsyncAuditSink{inner: inner, ch: make(chan AuditRecord, bufferSize), log: log}
	go s.run()
	return s
}

func (s *AsyncAuditSink) run() {
	for entry := range s.ch {
		if err := s.inner.Record(context.Background(), entry); err != nil {
			s.log.Error("async audit write failed", "correlationId", entry.CorrelationID, "error", err.Error())
		}
	}
}

// Record never blocks the caller: a full buffer drops the record
// immediately after logging that it happened.
func (s *AsyncAuditSink) Record(ctx context.Context, entry AuditRecord) error {
	select {
	case s.ch <- entry:
		return nil
	default:
		s.log.Error("audit buffer full, dropping record", "correlationId", entry.CorrelationID)
		return nil
	}
}

// Close stops the background worker after draining pending records.
func (s *AsyncAuditSink) Close() {
	close(s.ch)
}
