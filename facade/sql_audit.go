package facade

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/oarkflow/squealx"
)

// SQLAuditSink persists audit records via squealx, in the
// {correlationId, subjectSub, decision, matchedRuleIds, timestamp}
// shape.
type SQLAuditSink struct {
	db *squealx.DB
}

const auditSchema = `
CREATE TABLE IF NOT EXISTS audit_log (
	id TEXT PRIMARY KEY,
	correlation_id TEXT NOT NULL,
	subject_sub TEXT,
	decision TEXT NOT NULL,
	matched_rule_ids_json TEXT NOT NULL,
	recorded_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_log_correlation ON audit_log(correlation_id);
`

func NewSQLAuditSink(db *squealx.DB) (*SQLAuditSink, error) {
	if _, err := db.Exec(auditSchema); err != nil {
		return nil, err
	}
	return &SQLAuditSink{db: db}, nil
}

func (s *SQLAuditSink) Record(ctx context.Context, entry AuditRecord) error {
	matched, _ := json.Marshal(entry.MatchedRuleIDs)
	q := `INSERT INTO audit_log(id, correlation_id, subject_sub, decision, matched_rule_ids_json, recorded_at)
	      VALUES(:id, :correlation_id, :subject_sub, :decision, :matched_rule_ids_json, :recorded_at)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":                    uuid.NewString(),
		"correlation_id":        entry.CorrelationID,
		"subject_sub":           entry.SubjectSub,
		"decision":              entry.Decision,
		"matched_rule_ids_json": string(matched),
		"recorded_at":           entry.Timestamp.Format(time.RFC3339Nano),
	})
	return err
}
