package facade

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/oarkflow/identityd/logger"
	"github.com/oarkflow/identityd/pdp"
)

// AuditSink records an audit entry. A failure to write is logged by
// the caller but never alters the decision already returned — the
// audit path is best-effort, per the error handling design.
type AuditSink interface {
	Record(ctx context.Context, entry AuditRecord) error
}

// AuditRecord is the audit trail emitted for every evaluation.
type AuditRecord struct {
	CorrelationID string    `json:"correlationId"`
	SubjectSub    string    `json:"subjectSub"`
	Decision      string    `json:"decision"`
	MatchedRuleIDs []string `json:"matchedRuleIds"`
	Timestamp     time.Time `json:"timestamp"`
}

// Service is the Authorization Facade: a thin layer over the Rule
// Engine that attaches a correlation id and emits an audit record.
type Service struct {
	engine *pdp.Engine
	audit  AuditSink
	log    logger.Logger
}

func NewService(engine *pdp.Engine, audit AuditSink, log logger.Logger) *Service {
	if log == nil {
		log = logger.NewNullLogger()
	}
	return &Service{engine: engine, audit: audit, log: log}
}

// Evaluate forwards req to the Rule Engine, using correlationID if
// non-empty or generating one, and returns the engine's Decision
// verbatim. A cancelled context returns no decision and emits no
// audit record, per the cancellation contract.
func (s *Service) Evaluate(ctx context.Context, req *pdp.Request, subjectSub, correlationID string) (*pdp.Decision, string, error) {
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	if err := ctx.Err(); err != nil {
		return nil, correlationID, err
	}

	dec, err := s.engine.Evaluate(req)
	if err != nil {
		return nil, correlationID, err
	}

	if ctx.Err() != nil {
		return nil, correlationID, ctx.Err()
	}

	if s.audit != nil {
		entry := AuditRecord{
			CorrelationID:  correlationID,
			SubjectSub:     subjectSub,
			Decision:       string(dec.Decision),
			MatchedRuleIDs: dec.Reasons,
			Timestamp:      time.Now(),
		}
		if err := s.audit.Record(ctx, entry); err != nil {
			s.log.Error("audit write failed", "correlationId", correlationID, "error", err.Error())
		}
	}

	return dec, correlationID, nil
}
