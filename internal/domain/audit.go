package domain

import (
	"context"
	"time"
)

// AuditEventType classifies audit log entries.
type AuditEventType string

const (
	// AuditRemoteCall records an RPC or REST action by a gateway client.
	AuditRemoteCall AuditEventType = "remote_call"
	// AuditAuthDenied records a rejected gateway credential.
	AuditAuthDenied AuditEventType = "auth_denied"
)

// AuditEvent is one line of the gateway audit log.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	Type      AuditEventType    `json:"type"`
	Actor     string            `json:"actor,omitempty"`    // client name or remote address
	Action    string            `json:"action,omitempty"`   // RPC method or "METHOD /path"
	Resource  string            `json:"resource,omitempty"` // switch id when known
	Outcome   string            `json:"outcome"`           // "ok", "denied" or an error code
	Detail    map[string]string `json:"detail,omitempty"`
}

// AuditLogger writes audit events to a persistent log.
type AuditLogger interface {
	Log(ctx context.Context, event AuditEvent) error
	Close() error
}
