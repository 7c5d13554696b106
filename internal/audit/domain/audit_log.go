// Package domain holds the Audit Log entry, supplementing spec.md's distilled data model with
// the teacher's audit_log entity (internal/audit/domain/audit_log.go), dropped from the
// distillation but present in the source system (SPEC_FULL.md §3).
package domain

import "time"

// AuditLog is a single recorded event: who did what to which resource, best-effort written by
// the Audit stage and exposed read-only through the Admin Surface's list_audit_log.
type AuditLog struct {
	ID          string
	PrincipalID string
	Action      string
	Resource    string
	IP          string
	Metadata    string
	CreatedAt   time.Time
}
