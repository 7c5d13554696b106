package audit

import (
	"context"
	"errors"
	"testing"

	"toolplane/internal/audit/domain"
)

type mockAuditRepo struct {
	entries   []*domain.AuditLog
	createErr error
}

func (m *mockAuditRepo) Create(ctx context.Context, a *domain.AuditLog) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.entries = append(m.entries, a)
	return nil
}

func (m *mockAuditRepo) List(ctx context.Context, principalID string, limit, offset int) ([]*domain.AuditLog, error) {
	return m.entries, nil
}

func TestLogger_LogEvent_Success(t *testing.T) {
	repo := &mockAuditRepo{}
	logger := NewLogger(repo, func(context.Context) string { return "192.168.1.1" })

	logger.LogEvent(context.Background(), "user-1", "call", "search_web", "metadata")

	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(repo.entries))
	}
	entry := repo.entries[0]
	if entry.PrincipalID != "user-1" {
		t.Errorf("principal = %q, want %q", entry.PrincipalID, "user-1")
	}
	if entry.Action != "call" || entry.Resource != "search_web" {
		t.Errorf("action/resource = %q/%q", entry.Action, entry.Resource)
	}
	if entry.IP != "192.168.1.1" {
		t.Errorf("ip = %q, want %q", entry.IP, "192.168.1.1")
	}
	if entry.ID == "" {
		t.Error("entry ID should be set")
	}
	if entry.CreatedAt.IsZero() {
		t.Error("entry CreatedAt should be set")
	}
}

func TestLogger_LogEvent_NilIPExtractor(t *testing.T) {
	repo := &mockAuditRepo{}
	logger := NewLogger(repo, nil)

	logger.LogEvent(context.Background(), "user-1", "action", "resource", "")

	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(repo.entries))
	}
	if repo.entries[0].IP != "unknown" {
		t.Errorf("ip = %q, want %q", repo.entries[0].IP, "unknown")
	}
}

func TestLogger_LogEvent_RepositoryErrorIsBestEffort(t *testing.T) {
	repo := &mockAuditRepo{createErr: errors.New("database error")}
	logger := NewLogger(repo, nil)

	logger.LogEvent(context.Background(), "user-1", "action", "resource", "")
}

func TestLogger_LogEvent_NilRepoIsNoop(t *testing.T) {
	logger := NewLogger(nil, nil)

	logger.LogEvent(context.Background(), "user-1", "action", "resource", "")
}
