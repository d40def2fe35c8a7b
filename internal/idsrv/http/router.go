package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/aussiebroadwan/idsrv/api/idsrv" // Swagger docs
	"github.com/aussiebroadwan/idsrv/internal/idsrv/metrics"
	"github.com/aussiebroadwan/idsrv/internal/idsrv/service"
	"github.com/aussiebroadwan/idsrv/internal/idsrv/store"
	"github.com/aussiebroadwan/idsrv/pkg/httpx"
	"github.com/aussiebroadwan/idsrv/pkg/jwtx"
	"github.com/aussiebroadwan/idsrv/pkg/slogx"
)

// Pinger is implemented by dependencies that can report their health,
// such as the Redis revocation list.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RateLimits groups the per-route limiter profiles.
type RateLimits struct {
	Token  httpx.RateLimitConfig // credential checks, keyed by IP and username
	Client httpx.RateLimitConfig // introspect and revoke, keyed by IP
	API    httpx.RateLimitConfig // bearer protected APIs, keyed by subject
	Public httpx.RateLimitConfig // discovery, JWKS and health, keyed by IP
}

var DefaultRateLimits = RateLimits{
	Token:  httpx.StrictLimit,
	Client: httpx.ModerateLimit,
	API:    httpx.ModerateLimit,
	Public: httpx.PublicLimit,
}

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	keys         *jwtx.KeySet
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	store        store.Store
	limits       RateLimits

	Credentials  *service.CredentialService
	Tokens       *service.TokenService
	Introspector *service.Introspector
	Discovery    *service.DiscoveryPublisher
	Metrics      *metrics.Metrics

	// Checks are pinged by /readyz in addition to the store and keys.
	Checks map[string]Pinger
}

func NewRouter(
	keys *jwtx.KeySet,
	buildVersion string,
	st store.Store,
	limits RateLimits,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		keys:         keys,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		limits:       limits,
		logger:       logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}
	return r
}

func (r *Router) ApplyRoutes() {
	r.registerDiscovery()
	r.registerOAuth2()
	r.registerAPI()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			idsrv Token Service API
//	@version		0.1.0
//	@description	OAuth2 / OpenID Connect token service issuing JWT access tokens for the password, client_credentials and refresh_token grants.
//	@description
//	@description				Tokens can be verified offline using the keys published at the JWKS endpoint.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/idsrv
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.basic	ClientAuth
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT access token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// handle registers h under pattern and records its request metrics under
// the same label.
func (r *Router) handle(pattern string, h http.Handler, mws ...httpx.Middleware) {
	r.Mux.Handle(pattern, httpx.Chain(h, append([]httpx.Middleware{r.observe(pattern)}, mws...)...))
}

func (r *Router) observe(route string) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, req)
			r.Metrics.ObserveRequest(route, sw.status, time.Since(start))
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (r *Router) registerDiscovery() {
	r.handle("GET "+service.PathDiscovery, DiscoveryHandler(r.Discovery),
		httpx.RateLimitByIP(r.limits.Public),
	)
	r.handle("GET "+service.PathJWKS, JWKSHandler(r.keys),
		httpx.RateLimitByIP(r.limits.Public),
	)
}

func (r *Router) registerOAuth2() {
	// Limited by IP and username so one address cannot spray passwords.
	r.handle("POST "+service.PathToken, &TokenHandler{Tokens: r.Tokens},
		httpx.RateLimitByIPAndFormField(r.limits.Token, "username"),
	)

	r.handle("POST "+service.PathIntrospect,
		&IntrospectHandler{Credentials: r.Credentials, Introspector: r.Introspector},
		httpx.RateLimitByIP(r.limits.Client),
	)

	r.handle("POST "+service.PathRevoke,
		&RevokeHandler{Credentials: r.Credentials, Tokens: r.Tokens},
		httpx.RateLimitByIP(r.limits.Client),
	)
}

func (r *Router) registerAPI() {
	r.handle("GET "+service.PathUserinfo, &UserInfoHandler{Credentials: r.Credentials},
		httpx.Authn(r.Introspector),
		httpx.RequireAnyScope("openid"),
		httpx.RateLimitBySubject(r.limits.API),
	)

	r.handle("GET /identity", IdentityHandler(),
		httpx.Authn(r.Introspector),
		httpx.RequireAnyScope("api1"),
		httpx.RateLimitBySubject(r.limits.API),
	)
}

func (r *Router) registerSystem() {
	r.handle("GET /livez", LivezHandler(r.startTime, r.buildVersion),
		httpx.RateLimitByIP(r.limits.Public),
	)
	r.handle("GET /readyz", ReadyzHandler(r.store, r.keys, r.Checks),
		httpx.RateLimitByIP(r.limits.Public),
	)
	if r.Metrics != nil {
		r.Mux.Handle("GET /metrics", r.Metrics.Handler())
	}
}
