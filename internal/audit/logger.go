// Package audit implements best-effort audit logging, adapted from the teacher's
// internal/audit package (Logger/AuditLogger) and AuditUnary interceptor, repointed from gRPC
// full-method parsing to JSON-RPC method + tool name parsing (mapping.go).
package audit

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"toolplane/internal/audit/domain"
	"toolplane/internal/audit/repository"
)

// IPExtractor returns the client IP for a request context; may be nil, in which case IP is
// recorded as "unknown".
type IPExtractor func(context.Context) string

// Writer writes a single audit event. Best-effort: failures are logged and never surfaced to the
// caller, matching the teacher's AuditLogger.LogEvent contract.
type Writer interface {
	LogEvent(ctx context.Context, principalID, action, resource, metadata string)
}

// Logger implements Writer against a Repository.
type Logger struct {
	repo        repository.Repository
	ipExtractor IPExtractor
}

// NewLogger returns a Writer that persists to repo, tagging each entry with the IP ipExtractor
// reports. ipExtractor may be nil.
func NewLogger(repo repository.Repository, ipExtractor IPExtractor) *Logger {
	return &Logger{repo: repo, ipExtractor: ipExtractor}
}

// LogEvent writes one audit log entry. Errors are logged, never returned.
func (l *Logger) LogEvent(ctx context.Context, principalID, action, resource, metadata string) {
	if l.repo == nil {
		return
	}
	ip := "unknown"
	if l.ipExtractor != nil {
		ip = l.ipExtractor(ctx)
	}
	entry := &domain.AuditLog{
		ID:          uuid.New().String(),
		PrincipalID: principalID,
		Action:      action,
		Resource:    resource,
		IP:          ip,
		Metadata:    metadata,
		CreatedAt:   time.Now().UTC(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		log.Printf("audit: failed to log event %s/%s: %v", action, resource, err)
	}
}
