package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bdobrica/Kanri/common/redact"
)

// AuditEntry is one executed ledger call.
type AuditEntry struct {
	ID        int64
	Timestamp time.Time
	TraceID   string
	Actor     string
	Action    string
	Target    string
	Payload   map[string]any
	Result    string
	Error     string
}

// WriteAudit records a ledger call. Payload keys that look like secrets are
// redacted before they are stored.
func (s *Store) WriteAudit(ctx context.Context, traceID, actor, action, target, result string, payload map[string]any, errorMsg string) error {
	var payloadJSON sql.NullString
	if payload != nil {
		b, err := json.Marshal(redact.Map(payload))
		if err != nil {
			return fmt.Errorf("store: marshal audit payload: %w", err)
		}
		payloadJSON = sql.NullString{String: string(b), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (ts, trace_id, actor, action, target, payload_json, result, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, s.now().UTC(), traceID, actor, action, nullString(target), payloadJSON, result, nullString(errorMsg))
	if err != nil {
		return fmt.Errorf("store: write audit log: %w", err)
	}
	return nil
}

// GetAuditLog returns the most recent entries, newest first.
func (s *Store) GetAuditLog(ctx context.Context, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.queryAudit(ctx, `
		SELECT id, ts, trace_id, actor, action, target, payload_json, result, error_message
		FROM audit_log ORDER BY id DESC LIMIT ?
	`, limit)
}

// GetAuditByTrace returns every entry for one trace, oldest first.
func (s *Store) GetAuditByTrace(ctx context.Context, traceID string) ([]AuditEntry, error) {
	return s.queryAudit(ctx, `
		SELECT id, ts, trace_id, actor, action, target, payload_json, result, error_message
		FROM audit_log WHERE trace_id = ? ORDER BY id
	`, traceID)
}

func (s *Store) queryAudit(ctx context.Context, query string, args ...any) ([]AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query audit log: %w", err)
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var (
			e                      AuditEntry
			target, payload, errMs sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.TraceID, &e.Actor, &e.Action, &target, &payload, &e.Result, &errMs); err != nil {
			return nil, fmt.Errorf("store: scan audit entry: %w", err)
		}
		e.Target, e.Error = target.String, errMs.String
		if payload.Valid {
			if err := json.Unmarshal([]byte(payload.String), &e.Payload); err != nil {
				return nil, fmt.Errorf("store: decode audit payload %d: %w", e.ID, err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate audit log: %w", err)
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
