package domain

import (
	"context"
	"time"
)

// AuditEventType classifies audit log entries.
type AuditEventType string

const (
	AuditSearch    AuditEventType = "search"
	AuditPageFetch AuditEventType = "page_fetch"
)

// Audit outcomes.
const (
	AuditOutcomeSuccess = "success"
	AuditOutcomeBlocked = "blocked"
	AuditOutcomeError   = "error"
)

// AuditEvent records one outbound web access: the query or URL, and how it
// ended.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	Type      AuditEventType    `json:"type"`
	Resource  string            `json:"resource"`
	Outcome   string            `json:"outcome"`
	Detail    map[string]string `json:"detail,omitempty"`
}

// AuditLogger writes audit events to a persistent log.
type AuditLogger interface {
	Log(ctx context.Context, event AuditEvent) error
	Close() error
}
