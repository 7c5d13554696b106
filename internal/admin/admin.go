// Package admin implements the Admin Surface (C10): thin, admin-role-gated wrappers over the
// User Directory, Session Store, and Authorization Engine's grant repository, plus a read-only
// view over the Audit Log. Grounded on the teacher's internal/platform/rbac.RequireOrgAdmin
// shape (resolve principal from context, delegate to a getter, map failure to a stable error),
// adapted from a membership/org-admin check to a direct role check since this system's
// credential.Principal carries roles with no separate org-membership indirection to resolve
// (SPEC_FULL.md §3).
package admin

import (
	"context"
	"encoding/json"
	"time"

	"toolplane/internal/apperr"
	auditdomain "toolplane/internal/audit/domain"
	auditrepo "toolplane/internal/audit/repository"
	"toolplane/internal/authz"
	authzdomain "toolplane/internal/authz/domain"
	authzrepo "toolplane/internal/authz/repository"
	"toolplane/internal/credential"
	"toolplane/internal/middleware"
	sessiondomain "toolplane/internal/session/domain"
	sessionservice "toolplane/internal/session/service"
	userdomain "toolplane/internal/user/domain"
	userservice "toolplane/internal/user/service"
)

// Dispatch methods the Admin Surface exposes, per spec.md §4.10 plus the (added) list_audit_log
// (SPEC_FULL.md §3/§4.10).
const (
	MethodListUsers          = "list_users"
	MethodGetUser            = "get_user"
	MethodSearchUsers        = "search_users"
	MethodSetUserRoles       = "set_user_roles"
	MethodListSessions       = "list_sessions"
	MethodListUserSessions   = "list_user_sessions"
	MethodRevokeSession      = "revoke_session"
	MethodRevokeUserSessions = "revoke_user_sessions"
	MethodListPermissions    = "list_permissions"
	MethodGrantPermission    = "grant_permission"
	MethodRevokePermission   = "revoke_permission"
	MethodListAuditLog       = "list_audit_log"
)

// Service implements every Admin Surface operation.
type Service struct {
	users      *userservice.Directory
	sessions   *sessionservice.Store
	grants     authzrepo.Repository
	audit      auditrepo.Repository
	invalidate authz.CacheInvalidator
}

// New returns a Service backed by the given capabilities. invalidate may be nil, in which case
// role and grant mutations take effect only once the Authorization Engine's decision cache TTL
// expires rather than synchronously.
func New(users *userservice.Directory, sessions *sessionservice.Store, grants authzrepo.Repository, audit auditrepo.Repository, invalidate authz.CacheInvalidator) *Service {
	return &Service{users: users, sessions: sessions, grants: grants, audit: audit, invalidate: invalidate}
}

func (s *Service) invalidateUser(ctx context.Context, userID string) {
	if s.invalidate == nil {
		return
	}
	_ = s.invalidate.InvalidateUser(ctx, userID)
}

func (s *Service) invalidateAll(ctx context.Context) {
	if s.invalidate == nil {
		return
	}
	_ = s.invalidate.InvalidateAll(ctx)
}

// requireAdmin resolves the caller's principal from ctx and checks for the admin role, mirroring
// RequireOrgAdmin's failure-mapping shape: no principal maps to AuthenticationError, a principal
// without the admin role maps to AuthorizationError.
func requireAdmin(ctx context.Context) (credential.Principal, *apperr.Error) {
	principal, ok := middleware.GetPrincipal(ctx)
	if !ok {
		return credential.Principal{}, apperr.Authentication("admin operations require an authenticated principal", nil)
	}
	for _, r := range principal.Roles {
		if r == authzdomain.RoleAdmin {
			return principal, nil
		}
	}
	return credential.Principal{}, apperr.Authorization("admin role required", nil)
}

// Dispatch resolves method against params, requiring the admin role for every operation.
func (s *Service) Dispatch(ctx context.Context, method string, params json.RawMessage) (interface{}, *apperr.Error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	switch method {
	case MethodListUsers:
		return s.listUsers(ctx, params)
	case MethodGetUser:
		return s.getUser(ctx, params)
	case MethodSearchUsers:
		return s.searchUsers(ctx, params)
	case MethodSetUserRoles:
		return s.setUserRoles(ctx, params)
	case MethodListSessions:
		return s.listSessions(ctx, params)
	case MethodListUserSessions:
		return s.listUserSessions(ctx, params)
	case MethodRevokeSession:
		return s.revokeSession(ctx, params)
	case MethodRevokeUserSessions:
		return s.revokeUserSessions(ctx, params)
	case MethodListPermissions:
		return s.listPermissions(ctx, params)
	case MethodGrantPermission:
		return s.grantPermission(ctx, params)
	case MethodRevokePermission:
		return s.revokePermission(ctx, params)
	case MethodListAuditLog:
		return s.listAuditLog(ctx, params)
	default:
		return nil, apperr.NotFound("unknown admin method: "+method, nil)
	}
}

type userView struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Roles     []string  `json:"roles"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserView(u *userdomain.User) userView {
	return userView{ID: u.ID, Email: u.Email, Roles: u.Roles, Active: u.Active, CreatedAt: u.CreatedAt}
}

type pageParams struct {
	Query  string `json:"query"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

func (s *Service) listUsers(ctx context.Context, params json.RawMessage) (interface{}, *apperr.Error) {
	var p pageParams
	_ = json.Unmarshal(params, &p)
	users, err := s.users.Search(ctx, "", p.Limit, p.Offset)
	if err != nil {
		return nil, apperr.Internal("listing users failed", err)
	}
	out := make([]userView, 0, len(users))
	for _, u := range users {
		out = append(out, toUserView(u))
	}
	return out, nil
}

type userIDParams struct {
	UserID string `json:"user_id"`
}

func (s *Service) getUser(ctx context.Context, params json.RawMessage) (interface{}, *apperr.Error) {
	var p userIDParams
	if err := json.Unmarshal(params, &p); err != nil || p.UserID == "" {
		return nil, apperr.Validation("user_id is required", err)
	}
	u, err := s.users.FindByID(ctx, p.UserID)
	if err != nil {
		if err == userservice.ErrUserNotFound {
			return nil, apperr.NotFound("user not found", nil)
		}
		return nil, apperr.Internal("looking up user failed", err)
	}
	return toUserView(u), nil
}

func (s *Service) searchUsers(ctx context.Context, params json.RawMessage) (interface{}, *apperr.Error) {
	var p pageParams
	_ = json.Unmarshal(params, &p)
	users, err := s.users.Search(ctx, p.Query, p.Limit, p.Offset)
	if err != nil {
		return nil, apperr.Internal("searching users failed", err)
	}
	out := make([]userView, 0, len(users))
	for _, u := range users {
		out = append(out, toUserView(u))
	}
	return out, nil
}

type setRolesParams struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles"`
}

func (s *Service) setUserRoles(ctx context.Context, params json.RawMessage) (interface{}, *apperr.Error) {
	var p setRolesParams
	if err := json.Unmarshal(params, &p); err != nil || p.UserID == "" {
		return nil, apperr.Validation("user_id is required", err)
	}
	if err := s.users.SetRoles(ctx, p.UserID, p.Roles); err != nil {
		return nil, apperr.Internal("setting user roles failed", err)
	}
	s.invalidateUser(ctx, p.UserID)
	return map[string]bool{"ok": true}, nil
}

type sessionView struct {
	JTI       string    `json:"jti"`
	UserID    string    `json:"user_id"`
	Device    string    `json:"device"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func toSessionView(s *sessiondomain.Session) sessionView {
	return sessionView{JTI: s.JTI, UserID: s.UserID, Device: s.Device, IssuedAt: s.IssuedAt, ExpiresAt: s.ExpiresAt}
}

type listSessionsParams struct {
	Cursor string `json:"cursor"`
	Limit  int    `json:"limit"`
}

func (s *Service) listSessions(ctx context.Context, params json.RawMessage) (interface{}, *apperr.Error) {
	var p listSessionsParams
	_ = json.Unmarshal(params, &p)
	sessions, err := s.sessions.ListActive(ctx, p.Cursor, p.Limit)
	if err != nil {
		return nil, apperr.Internal("listing sessions failed", err)
	}
	out := make([]sessionView, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, toSessionView(sess))
	}
	return out, nil
}

func (s *Service) listUserSessions(ctx context.Context, params json.RawMessage) (interface{}, *apperr.Error) {
	var p userIDParams
	if err := json.Unmarshal(params, &p); err != nil || p.UserID == "" {
		return nil, apperr.Validation("user_id is required", err)
	}
	sessions, err := s.sessions.ListByUser(ctx, p.UserID)
	if err != nil {
		return nil, apperr.Internal("listing user sessions failed", err)
	}
	out := make([]sessionView, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, toSessionView(sess))
	}
	return out, nil
}

type jtiParams struct {
	JTI string `json:"jti"`
}

// revokeSession is idempotent: revoking an absent session is a no-op success, per spec.md §4.10.
func (s *Service) revokeSession(ctx context.Context, params json.RawMessage) (interface{}, *apperr.Error) {
	var p jtiParams
	if err := json.Unmarshal(params, &p); err != nil || p.JTI == "" {
		return nil, apperr.Validation("jti is required", err)
	}
	if err := s.sessions.Revoke(ctx, p.JTI); err != nil {
		return nil, apperr.Internal("revoking session failed", err)
	}
	return map[string]bool{"ok": true}, nil
}

func (s *Service) revokeUserSessions(ctx context.Context, params json.RawMessage) (interface{}, *apperr.Error) {
	var p userIDParams
	if err := json.Unmarshal(params, &p); err != nil || p.UserID == "" {
		return nil, apperr.Validation("user_id is required", err)
	}
	count, err := s.sessions.RevokeAllForUser(ctx, p.UserID)
	if err != nil {
		return nil, apperr.Internal("revoking user sessions failed", err)
	}
	return map[string]int64{"revoked": count}, nil
}

type grantView struct {
	ID              string     `json:"id"`
	SubjectKind     string     `json:"subject_kind"`
	Subject         string     `json:"subject"`
	ResourceType    string     `json:"resource_type"`
	ResourcePattern string     `json:"resource_pattern"`
	Actions         []string   `json:"actions"`
	Conditions      string     `json:"conditions,omitempty"`
	GrantedAt       time.Time  `json:"granted_at"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
}

func toGrantView(g *authzdomain.Grant) grantView {
	actions := make([]string, 0, len(g.Actions))
	for _, a := range g.Actions {
		actions = append(actions, string(a))
	}
	return grantView{
		ID:              g.ID,
		SubjectKind:     string(g.SubjectKind),
		Subject:         g.Subject,
		ResourceType:    string(g.ResourceType),
		ResourcePattern: g.ResourcePattern,
		Actions:         actions,
		Conditions:      g.Conditions,
		GrantedAt:       g.GrantedAt,
		ExpiresAt:       g.ExpiresAt,
	}
}

type listPermissionsParams struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func (s *Service) listPermissions(ctx context.Context, params json.RawMessage) (interface{}, *apperr.Error) {
	var p listPermissionsParams
	_ = json.Unmarshal(params, &p)
	limit := p.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	grants, err := s.grants.ListAll(ctx, limit, p.Offset)
	if err != nil {
		return nil, apperr.Internal("listing permission grants failed", err)
	}
	out := make([]grantView, 0, len(grants))
	for _, g := range grants {
		out = append(out, toGrantView(g))
	}
	return out, nil
}

type grantPermissionParams struct {
	SubjectKind     string     `json:"subject_kind"`
	Subject         string     `json:"subject"`
	ResourceType    string     `json:"resource_type"`
	ResourcePattern string     `json:"resource_pattern"`
	Actions         []string   `json:"actions"`
	Conditions      string     `json:"conditions"`
	ExpiresAt       *time.Time `json:"expires_at"`
	ID              string     `json:"id"`
}

// grantPermission upserts a grant, idempotent on (subject_kind, subject, resource_type,
// resource_pattern) per spec.md's grant_permission invariant (internal/authz/repository.Upsert).
func (s *Service) grantPermission(ctx context.Context, params json.RawMessage) (interface{}, *apperr.Error) {
	var p grantPermissionParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, apperr.Validation("malformed grant_permission params", err)
	}
	if p.Subject == "" || p.ResourceType == "" || p.ResourcePattern == "" || len(p.Actions) == 0 {
		return nil, apperr.Validation("subject, resource_type, resource_pattern, and actions are required", nil)
	}
	actions := make([]authzdomain.Action, 0, len(p.Actions))
	for _, a := range p.Actions {
		actions = append(actions, authzdomain.Action(a))
	}
	id := p.ID
	if id == "" {
		id = p.SubjectKind + ":" + p.Subject + ":" + p.ResourceType + ":" + p.ResourcePattern
	}
	grant := &authzdomain.Grant{
		ID:              id,
		SubjectKind:     authzdomain.SubjectKind(p.SubjectKind),
		Subject:         p.Subject,
		ResourceType:    authzdomain.ResourceType(p.ResourceType),
		ResourcePattern: p.ResourcePattern,
		Actions:         actions,
		Conditions:      p.Conditions,
		GrantedAt:       time.Now().UTC(),
		ExpiresAt:       p.ExpiresAt,
	}
	if err := s.grants.Upsert(ctx, grant); err != nil {
		return nil, apperr.Internal("granting permission failed", err)
	}
	// A user-subject grant only ever affects that one principal; a role-subject grant can affect
	// any number of principals holding that role, which the grant repository has no way to
	// enumerate, so it invalidates every cached decision instead.
	if grant.SubjectKind == authzdomain.SubjectUser {
		s.invalidateUser(ctx, grant.Subject)
	} else {
		s.invalidateAll(ctx)
	}
	return toGrantView(grant), nil
}

type grantIDParams struct {
	ID string `json:"id"`
}

// revokePermission is idempotent: revoking an absent grant returns success, per spec.md §4.10.
func (s *Service) revokePermission(ctx context.Context, params json.RawMessage) (interface{}, *apperr.Error) {
	var p grantIDParams
	if err := json.Unmarshal(params, &p); err != nil || p.ID == "" {
		return nil, apperr.Validation("id is required", err)
	}
	if err := s.grants.Revoke(ctx, p.ID); err != nil {
		return nil, apperr.Internal("revoking permission grant failed", err)
	}
	// The grant repository has no lookup-by-id, so which principal(s) the revoked grant covered
	// is unknown here; invalidate every cached decision rather than risk leaving a stale allow.
	s.invalidateAll(ctx)
	return map[string]bool{"ok": true}, nil
}

type auditView struct {
	ID          string    `json:"id"`
	PrincipalID string    `json:"principal_id"`
	Action      string    `json:"action"`
	Resource    string    `json:"resource"`
	IP          string    `json:"ip"`
	Metadata    string    `json:"metadata"`
	CreatedAt   time.Time `json:"created_at"`
}

func toAuditView(a *auditdomain.AuditLog) auditView {
	return auditView{
		ID: a.ID, PrincipalID: a.PrincipalID, Action: a.Action, Resource: a.Resource,
		IP: a.IP, Metadata: a.Metadata, CreatedAt: a.CreatedAt,
	}
}

type listAuditLogParams struct {
	PrincipalID string `json:"principal_id"`
	Limit       int    `json:"limit"`
	Offset      int    `json:"offset"`
}

func (s *Service) listAuditLog(ctx context.Context, params json.RawMessage) (interface{}, *apperr.Error) {
	var p listAuditLogParams
	_ = json.Unmarshal(params, &p)
	limit := p.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	entries, err := s.audit.List(ctx, p.PrincipalID, limit, p.Offset)
	if err != nil {
		return nil, apperr.Internal("listing audit log failed", err)
	}
	out := make([]auditView, 0, len(entries))
	for _, a := range entries {
		out = append(out, toAuditView(a))
	}
	return out, nil
}
