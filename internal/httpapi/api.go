// Package httpapi wires the HTTP surface: auth endpoints, the customer CRUD
// resource, operational probes, and the middleware chain that authenticates
// and authorizes every request.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"clientdesk.org/internal/auth"
	"clientdesk.org/internal/customer"
	"clientdesk.org/internal/obs"
)

// ReadyProbe reports whether downstream dependencies are reachable.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options configures the API.
type Options struct {
	Auth       *auth.Service
	Customers  *customer.Service
	Policy     *auth.Policy
	ReadyProbe ReadyProbe
	Version    string

	CORSOrigins        []string
	MaxBodyBytes       int64
	RateLimitBurst     int
	RateLimitPerSecond int
}

// API is the HTTP layer.
type API struct {
	mux       *http.ServeMux
	auth      *auth.Service
	customers *customer.Service
	policy    *auth.Policy

	readyProbe ReadyProbe
	version    string

	corsOrigins        []string
	maxBodyBytes       int64
	rateLimitBurst     int
	rateLimitPerSecond int
}

func New(opts Options) *API {
	a := &API{
		mux:                http.NewServeMux(),
		auth:               opts.Auth,
		customers:          opts.Customers,
		policy:             opts.Policy,
		readyProbe:         opts.ReadyProbe,
		version:            opts.Version,
		corsOrigins:        opts.CORSOrigins,
		maxBodyBytes:       opts.MaxBodyBytes,
		rateLimitBurst:     opts.RateLimitBurst,
		rateLimitPerSecond: opts.RateLimitPerSecond,
	}
	if a.policy == nil {
		a.policy = auth.DefaultPolicy()
	}
	if a.maxBodyBytes <= 0 {
		a.maxBodyBytes = 1 << 20
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// auth endpoints
	a.mux.HandleFunc("/api/v1/auth/register", a.handleRegister)
	a.mux.HandleFunc("/api/v1/auth/authenticate", a.handleAuthenticate)
	a.mux.HandleFunc("/api/v1/auth/refresh-token", a.handleRefreshToken)
	a.mux.HandleFunc("/api/v1/auth/confirm", a.handleConfirm)
	a.mux.HandleFunc("/api/v1/auth/logout", a.handleLogout)

	// customer resource, plus the permission-gated management mirror
	a.mux.HandleFunc("/api/v1/customers", a.handleCustomersCollection)
	a.mux.HandleFunc("/api/v1/customers/", a.handleCustomerResource("/api/v1/customers/"))
	a.mux.HandleFunc("/api/v1/management/customers", a.handleCustomersCollection)
	a.mux.HandleFunc("/api/v1/management/customers/", a.handleCustomerResource("/api/v1/management/customers/"))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withPolicy(h)
	h = a.withAuth(h)
	if a.rateLimitPerSecond > 0 {
		h = RateLimit(h, a.rateLimitBurst, a.rateLimitPerSecond)
	}
	h = MaxBodyBytes(h, a.maxBodyBytes)
	h = CORS(h, a.corsOrigins)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "clientdesk-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "clientdesk-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
