// Package api implements the Read/Write HTTP surface the Dispatch, Lead,
// and Management front ends call (spec §4.9 and §6): authentication,
// windowed flight reads, manual-field writes, acknowledgement writes,
// archive browsing, and an on-demand sync trigger.
package api

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"dispatchd/internal/auth"
	"dispatchd/internal/fids"
	"dispatchd/internal/store"
)

type ctxKey int

const userCtxKey ctxKey = iota

// Config holds server-level settings not tied to a storage or domain
// dependency.
type Config struct {
	Addr string
}

// Server wires the storage, auth, and sync dependencies behind the HTTP
// routes.
type Server struct {
	db      store.DB
	overlay *store.Overlay
	signer  *auth.Signer
	fetcher *fids.Fetcher
	loc     *time.Location
	clock   func() time.Time
	cfg     Config
}

// Deps bundles the Server's dependencies.
type Deps struct {
	DB      store.DB
	Overlay *store.Overlay
	Signer  *auth.Signer
	Fetcher *fids.Fetcher
	Loc     *time.Location
	Clock   func() time.Time // defaults to time.Now when nil.
}

// NewServer constructs a Server from deps and cfg.
func NewServer(deps Deps, cfg Config) *Server {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Server{
		db:      deps.DB,
		overlay: deps.Overlay,
		signer:  deps.Signer,
		fetcher: deps.Fetcher,
		loc:     deps.Loc,
		clock:   clock,
		cfg:     cfg,
	}
}

// Run starts the HTTP server.
func (s *Server) Run() error {
	log.Printf("dispatchd API starting at http://localhost%s", s.cfg.Addr)
	return http.ListenAndServe(s.cfg.Addr, s.Router())
}

// Router returns the configured chi router.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(corsMiddleware)

	r.Get("/", s.handleHealth)
	r.Get("/health", s.handleHealth)

	r.Post("/auth/login", s.handleLogin)
	r.With(s.authMiddleware("")).Get("/auth/validate", s.handleValidate)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware(auth.AppDispatch))
		r.Get("/dispatch/rows", s.handleDispatchRows)
		r.Patch("/dispatch/update", s.handleDispatchUpdate)
		r.Post("/dispatch/ack", s.handleDispatchAck)
		r.Post("/admin/sync", s.handleAdminSync)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware(auth.AppLead))
		r.Get("/lead/init", s.handleLeadInit)
		r.Get("/lead/rows", s.handleLeadRows)
		r.Patch("/lead/update", s.handleLeadUpdate)
		r.Post("/lead/ack", s.handleLeadAck)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware(auth.AppMgmt))
		r.Get("/archive/dates", s.handleArchiveDates)
		r.Get("/archive/rows", s.handleArchiveRows)
	})

	return r
}

// corsMiddleware echoes the request's Origin (spec §6: browser front ends
// are served from varying hosts during development) rather than a fixed
// "*", since credentialed requests cannot use a wildcard origin.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authMiddleware verifies the bearer token and, when requiredApp is
// non-empty, checks the role has access to that app scope (spec §4.8).
func (s *Server) authMiddleware(requiredApp string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearer(r)
			if token == "" {
				writeError(w, NewError(KindUnauthenticated, "missing authorization"))
				return
			}

			payload, err := s.signer.Verify(token, s.clock())
			if err != nil {
				if err == auth.ErrExpiredToken {
					writeError(w, NewError(KindUnauthenticated, "session expired, please login again"))
					return
				}
				writeError(w, NewError(KindUnauthenticated, "invalid token"))
				return
			}

			if requiredApp != "" && !auth.HasAccess(payload.Role, requiredApp) {
				writeError(w, NewError(KindUnauthorized, "no access to "+requiredApp))
				return
			}

			ctx := context.WithValue(r.Context(), userCtxKey, payload)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractBearer(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}

func userFromContext(r *http.Request) *auth.Payload {
	payload, _ := r.Context().Value(userCtxKey).(*auth.Payload)
	return payload
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":   true,
		"name": "dispatchd",
		"time": s.clock().UTC().Format(time.RFC3339),
	})
}
