// Command gateway runs the Gateway: the public HTTP surface for registration, login, credential
// refresh/logout, the Admin Surface, and the Gateway Proxy forwarding tool calls to the Tool
// Server. Grounded on the teacher's cmd/server/main.go bootstrap shape, adapted from grpc.Server
// to http.Server (see cmd/toolserver's package comment for why).
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"toolplane/internal/admin"
	auditrepo "toolplane/internal/audit/repository"
	"toolplane/internal/authz"
	authzrepo "toolplane/internal/authz/repository"
	"toolplane/internal/config"
	"toolplane/internal/credential"
	"toolplane/internal/db"
	"toolplane/internal/jsonrpc"
	"toolplane/internal/kv"
	"toolplane/internal/middleware"
	"toolplane/internal/proxy"
	"toolplane/internal/security"
	sessionrepo "toolplane/internal/session/repository"
	sessionservice "toolplane/internal/session/service"
	userdomain "toolplane/internal/user/domain"
	userrepo "toolplane/internal/user/repository"
	userservice "toolplane/internal/user/service"
)

func toUserLike(u *userdomain.User) credential.UserLike {
	return credential.UserLike{ID: u.ID, Email: u.Email, Roles: u.Roles}
}

// invalidationMarkerTTL must outlive the Tool Server's Authorization Engine decision cache TTL
// (cmd/toolserver's authzCacheTTL, 30s) or a marker could expire before every cache entry it
// needs to defeat does.
const invalidationMarkerTTL = 2 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()

	sessionStore := sessionservice.NewStore(sessionrepo.NewPostgresRepository(pool.Pool()))
	tokens := security.NewTokenProvider([]byte(cfg.SigningKey), cfg.AccessTTL(), cfg.RefreshTTL())
	credentials := credential.NewService(tokens, sessionStore)
	directory := userservice.NewDirectory(userrepo.NewPostgresRepository(pool.Pool()), security.NewHasher(cfg.BcryptCost))

	// The same KVStore backend the Tool Server uses for its Rate Limiter/Result Cache carries
	// cache-invalidation markers here, so a grant or role mutation through the Admin Surface
	// reaches the Authorization Engine running in the other process (internal/authz/invalidation.go).
	var store kv.Store = kv.NewInMemory()
	if cfg.KVStoreDSN != "" || cfg.DatabaseURL != "" {
		store = kv.NewPostgres(pool.Pool())
	}
	invalidator := authz.NewKVPublisher(store, invalidationMarkerTTL)

	adminSvc := admin.New(directory, sessionStore, authzrepo.NewPostgresRepository(pool.Pool()), auditrepo.NewPostgresRepository(pool.Pool()), invalidator)

	toolProxy, err := proxy.New(cfg.ToolServerURL, cfg.InternalTrustToken, credentials)
	if err != nil {
		log.Fatalf("proxy: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/register", registerHandler(directory))
	mux.HandleFunc("/auth/login", loginHandler(directory, credentials))
	mux.HandleFunc("/auth/refresh", refreshHandler(credentials, directory))
	mux.HandleFunc("/auth/logout", logoutHandler(credentials))
	mux.HandleFunc("/auth/me", meHandler(credentials))
	mux.HandleFunc("/health", healthHandler(pool))
	mux.Handle("/tools/", toolProxy)
	mux.HandleFunc("/admin/", adminHandler(adminSvc, credentials))

	handler := otelhttp.NewHandler(mux, "gateway")

	srv := &http.Server{
		Addr:    cfg.GatewayAddr,
		Handler: handler,
	}

	go func() {
		log.Printf("gateway listening on %s", cfg.GatewayAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("serve: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down gateway...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("gateway shutdown: %v", err)
	}
	log.Println("gateway stopped")
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userSummary struct {
	ID    string   `json:"id"`
	Email string   `json:"email"`
	Roles []string `json:"roles"`
}

func registerHandler(directory *userservice.Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "malformed request body")
			return
		}
		u, err := directory.Register(r.Context(), req.Email, req.Password)
		if err != nil {
			switch err {
			case userservice.ErrEmailAlreadyRegistered:
				writeError(w, http.StatusConflict, err.Error())
			default:
				writeError(w, http.StatusBadRequest, err.Error())
			}
			return
		}
		writeJSON(w, http.StatusOK, userSummary{ID: u.ID, Email: u.Email, Roles: u.Roles})
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Device   string `json:"device"`
}

type credentialPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

func loginHandler(directory *userservice.Directory, credentials *credential.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "malformed request body")
			return
		}
		u, err := directory.Authenticate(r.Context(), req.Email, req.Password)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "AuthenticationError")
			return
		}
		writeCredentialPair(w, credentials, r.Context(), u, req.Device)
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// refreshHandler re-authorizes the caller's current roles from the User Directory before minting
// a new access credential, so a role change since the last login takes effect on rotation rather
// than being stuck at whatever the original access credential baked in (spec.md §4.1/§4.3).
func refreshHandler(credentials *credential.Service, directory *userservice.Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "malformed request body")
			return
		}
		record, err := credentials.VerifyRefresh(r.Context(), req.RefreshToken)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "AuthenticationError")
			return
		}
		u, err := directory.FindByID(r.Context(), record.UserID)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "AuthenticationError")
			return
		}
		access, refresh, expiresAt, err := credentials.Rotate(r.Context(), req.RefreshToken, toUserLike(u))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "AuthenticationError")
			return
		}
		writeJSON(w, http.StatusOK, credentialPair{
			AccessToken:  access,
			RefreshToken: refresh,
			TokenType:    "bearer",
			ExpiresIn:    int64(time.Until(expiresAt).Seconds()),
		})
	}
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// logoutHandler invalidates the refresh credential carried in the body or the
// X-Refresh-Token header, per spec.md §6's "body or header" wording.
func logoutHandler(credentials *credential.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Refresh-Token")
		if token == "" {
			var req logoutRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			token = req.RefreshToken
		}
		if token != "" {
			if record, err := credentials.VerifyRefresh(r.Context(), token); err == nil {
				_ = credentials.Revoke(r.Context(), record.JTI)
			}
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

func meHandler(credentials *credential.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "AuthenticationError")
			return
		}
		principal, err := credentials.VerifyAccess(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "AuthenticationError")
			return
		}
		writeJSON(w, http.StatusOK, userSummary{ID: principal.UserID, Email: principal.Email, Roles: principal.Roles})
	}
}

func healthHandler(pool *db.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "database unreachable")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// adminHandler authenticates the bearer credential into a principal, then dispatches
// {method, params} to the Admin Surface, which enforces the admin role itself.
func adminHandler(svc *admin.Service, credentials *credential.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var envelope struct {
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
			writeError(w, http.StatusBadRequest, "malformed request body")
			return
		}

		ctx := r.Context()
		if token := bearerToken(r.Header.Get("Authorization")); token != "" {
			if principal, err := credentials.VerifyAccess(token); err == nil {
				ctx = middleware.WithPrincipal(ctx, *principal)
			}
		}

		result, appErr := svc.Dispatch(ctx, envelope.Method, envelope.Params)
		if appErr != nil {
			writeError(w, appErr.HTTPStatus(), appErr.Message)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func writeCredentialPair(w http.ResponseWriter, credentials *credential.Service, ctx context.Context, u *userdomain.User, device string) {
	access, accessExp, err := credentials.MintAccess(toUserLike(u))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "minting access credential failed")
		return
	}
	refresh, _, err := credentials.MintRefresh(ctx, toUserLike(u), device)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "minting refresh credential failed")
		return
	}
	writeJSON(w, http.StatusOK, credentialPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int64(time.Until(accessExp).Seconds()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, jsonrpc.ErrorObject{Code: status, Message: message})
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return ""
	}
	return header[len(prefix):]
}
