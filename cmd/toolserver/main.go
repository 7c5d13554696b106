// Command toolserver runs the Tool Server: the Middleware Pipeline, Tool Dispatcher, Result
// Cache, and Authorization Engine behind a JSON-RPC-over-HTTP endpoint, plus the Session Store's
// background reaper. Grounded on the teacher's cmd/server/main.go bootstrap shape (config.Load,
// listen, serve in a goroutine, block on signal, graceful shutdown), adapted from grpc.Server to
// http.Server since this system's transport is JSON-RPC over HTTP end to end (internal/proxy
// already commits to net/http/httputil.ReverseProxy for the Gateway↔Tool Server hop).
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

	"toolplane/internal/apperr"
	"toolplane/internal/audit"
	auditrepo "toolplane/internal/audit/repository"
	"toolplane/internal/authz"
	authzrepo "toolplane/internal/authz/repository"
	"toolplane/internal/cache"
	"toolplane/internal/config"
	"toolplane/internal/credential"
	"toolplane/internal/db"
	"toolplane/internal/jsonrpc"
	"toolplane/internal/kv"
	"toolplane/internal/middleware"
	"toolplane/internal/ratelimit"
	"toolplane/internal/security"
	sessionrepo "toolplane/internal/session/repository"
	sessionservice "toolplane/internal/session/service"
	"toolplane/internal/telemetry"
	"toolplane/internal/telemetry/otel"
	"toolplane/internal/tools"
)

// authzCacheTTL bounds how long the Authorization Engine trusts a cached decision absent a
// published invalidation marker (internal/authz/invalidation.go).
const authzCacheTTL = 30 * time.Second

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

	providers, err := otel.NewProviders(ctx, cfg.OTLPEndpoint, cfg.ServiceName)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = providers.Shutdown(shutdownCtx)
	}()

	var observer telemetry.Observer = telemetry.Noop{}
	if cfg.EnableMetrics || cfg.OTLPEndpoint != "" {
		observer = otel.NewObserver(providers)
	}

	// The expired-session reaper runs as its own process (cmd/worker) so that scaling the Tool
	// Server out to multiple replicas doesn't also multiply reaper sweeps against the database.
	sessionStore := sessionservice.NewStore(sessionrepo.NewPostgresRepository(pool.Pool()))

	tokens := security.NewTokenProvider([]byte(cfg.SigningKey), cfg.AccessTTL(), cfg.RefreshTTL())
	credentials := credential.NewService(tokens, sessionStore)

	factory := tools.NewRetrieverFactory()
	registry := tools.NewRegistry(tools.NewCatalog(factory)...)

	var store kv.Store = kv.NewInMemory()
	if cfg.KVStoreDSN != "" || cfg.DatabaseURL != "" {
		store = kv.NewPostgres(pool.Pool())
	}

	grantRepo := authzrepo.NewPostgresRepository(pool.Pool())
	engine := authz.NewEngine(registry.Bindings(), grantRepo, authz.NewConditionEvaluator(), tools.NewResourceResolver(), authzCacheTTL).WithInvalidation(store)

	limiter := ratelimit.New(map[ratelimit.Scope]ratelimit.BucketConfig{
		ratelimit.ScopePerMinute: {Capacity: cfg.RateBurst, RefillRate: float64(cfg.RatePerMinute) / 60},
		ratelimit.ScopePerHour:   {Capacity: cfg.RateBurst, RefillRate: float64(cfg.RatePerHour) / 3600},
	}).WithDistributed(store)

	resultCache := cache.New(store, map[string]time.Duration{
		tools.ToolSearchWeb:      cfg.CacheTTLWebSearch,
		tools.ToolSearchVectors:  cfg.CacheTTLVectorDB,
		tools.ToolSearchDatabase: cfg.CacheTTLDatabase,
	})

	auditor := audit.NewLogger(auditrepo.NewPostgresRepository(pool.Pool()), nil)

	pipeline := middleware.New(middleware.Dispatch(registry, cfg.RequireAuthForList), middleware.Assemble(
		middleware.ProfileStages{
			Observability:  middleware.Observability(observer),
			ErrorHandler:   middleware.ErrorHandler(),
			RequestLogging: middleware.RequestLogging(cfg.SensitiveFieldSet(), cfg.EnableEnhancedLogging, auditor),
			Validation:     middleware.Validation(registry),
			Authentication: middleware.Authentication(credentials),
			Authorization:  middleware.Authorization(engine),
			RateLimit:      middleware.RateLimit(limiter),
			Metrics:        middleware.Metrics(observer),
			Cache:          middleware.Cache(resultCache, registry),
		},
		cfg.Enabled(),
	)...)

	handler := otelhttp.NewHandler(rpcHandler(pipeline, cfg.InternalTrustToken), "toolserver")

	srv := &http.Server{
		Addr:    cfg.ToolServerAddr,
		Handler: handler,
	}

	go func() {
		log.Printf("tool server listening on %s", cfg.ToolServerAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("serve: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down tool server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("tool server shutdown: %v", err)
	}
	log.Println("tool server stopped")
}

// rpcHandler decodes the JSON-RPC envelope, attaches the principal headers the Gateway Proxy
// forwards when the internal trust token matches (spec.md §4.9), and runs the pipeline.
func rpcHandler(pipeline *middleware.Pipeline, trustToken string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req jsonrpc.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeResponse(w, jsonrpc.Failure(nil, apperr.Validation("malformed json-rpc envelope", err)))
			return
		}

		ctx := r.Context()
		if reqID := r.Header.Get("X-Request-Id"); reqID != "" {
			ctx = middleware.WithRequestID(ctx, reqID)
		}
		if trustToken != "" && r.Header.Get("X-Internal-Trust-Token") == trustToken {
			ctx = middleware.WithTrusted(ctx)
			if userID := r.Header.Get("X-Principal-Id"); userID != "" {
				roles := splitCSV(r.Header.Get("X-Principal-Roles"))
				ctx = middleware.WithPrincipal(ctx, credential.Principal{UserID: userID, Roles: roles})
			}
		} else {
			ctx = middleware.WithBearerToken(ctx, bearerToken(r.Header.Get("Authorization")))
		}

		resp := pipeline.Handle(ctx, &req)
		writeResponse(w, resp)
	}
}

func writeResponse(w http.ResponseWriter, resp *jsonrpc.Response) {
	status := http.StatusOK
	if resp.Error != nil {
		status = httpStatusForCode(resp.Error.Code)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// httpStatusForCode maps a wire JSON-RPC error code back to the HTTP status apperr's taxonomy
// assigns it (internal/apperr/apperr.go), since the Response on the wire carries only the code.
func httpStatusForCode(code int) int {
	switch code {
	case -32602:
		return http.StatusBadRequest
	case -32040:
		return http.StatusUnauthorized
	case -32041:
		return http.StatusForbidden
	case -32045:
		return http.StatusTooManyRequests
	case -32601:
		return http.StatusNotFound
	case -32000:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return ""
	}
	return header[len(prefix):]
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
