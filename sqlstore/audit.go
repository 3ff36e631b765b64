package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"

	authcore "github.com/munyaradzichiondegwa/vision-2030-platform"
)

// AuditSink appends audit events to the audit_logs table.
type AuditSink struct {
	db *DB
}

func NewAuditSink(db *DB) (*AuditSink, error) {
	if db == nil || db.DB == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &AuditSink{db: db}, nil
}

func (s *AuditSink) Emit(ctx context.Context, ev authcore.AuditEvent) error {
	var metadata any
	if len(ev.Metadata) > 0 {
		raw, err := json.Marshal(ev.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metadata = string(raw)
	}

	_, err := s.db.exec(ctx,
		`INSERT INTO audit_logs (occurred_at, event_type, severity, account_id, success, error_code, ip_address, user_agent, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		toMillis(ev.Timestamp), ev.EventType, string(ev.Severity), nullable(ev.AccountID), ev.Success,
		nullable(ev.Error), nullable(ev.IP), nullable(ev.UserAgent), metadata,
	)
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
