package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/csrf"
	"github.com/gorilla/schema"
	"github.com/gorilla/sessions"
	"github.com/stayspot/stayspot/internal/auth"
	"github.com/stayspot/stayspot/internal/email"
	"github.com/stayspot/stayspot/internal/errorz"
	"github.com/stayspot/stayspot/internal/krypto"
)

// ServerDeps are the dependencies for the server.
type ServerDeps struct {
	Logger       *slog.Logger
	AuthService  *auth.Service
	SessionStore sessions.Store
}

// ServerConfig is the configuration for the server.
type ServerConfig struct {
	CSRFKey      krypto.Key
	SecureCookie bool
}

type Server struct {
	deps    *ServerDeps
	mux     *http.ServeMux
	decoder *schema.Decoder
	handler http.Handler
}

func NewServer(deps *ServerDeps, cfg ServerConfig) *Server {
	s := &Server{
		deps:    deps,
		mux:     http.NewServeMux(),
		decoder: schema.NewDecoder(),
	}

	s.decoder.IgnoreUnknownKeys(true)

	s.mux.Handle("GET /health", http.HandlerFunc(s.health))
	s.mux.Handle("POST /signup", http.HandlerFunc(s.signup))
	s.mux.Handle("GET /verify/{subjectID}/{token}", http.HandlerFunc(s.verify))
	s.mux.Handle("POST /login", http.HandlerFunc(s.login))
	s.mux.Handle("POST /logout", http.HandlerFunc(s.logout))
	s.mux.Handle("POST /forgot-password", http.HandlerFunc(s.forgotPassword))
	s.mux.Handle("POST /reset/{subjectID}/{token}", http.HandlerFunc(s.resetPassword))

	csrfMiddleware := csrf.Protect(
		cfg.CSRFKey.SecretValue(),
		csrf.Secure(cfg.SecureCookie),
	)

	s.handler = csrfMiddleware(s.mux)

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// health reports the server is up. The response carries a csrf token
// so that API clients without an HTML form can make unsafe requests.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-CSRF-Token", csrf.Token(r))
	s.writeStatus(w, http.StatusOK, "ok")
}

type statusResponse struct {
	Message string `json:"message"`
}

func (s *Server) writeStatus(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(statusResponse{Message: msg}); err != nil {
		s.deps.Logger.Error("failed to write response", "error", err)
	}
}

// handleError maps domain errors to distinct user facing responses.
func (s *Server) handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrTokenNotFound), errors.Is(err, errorz.ErrNotFound):
		s.writeStatus(w, http.StatusNotFound, "This link is not valid. Request a new one.")
	case errors.Is(err, auth.ErrTokenExpired):
		s.writeStatus(w, http.StatusGone, "This link has expired. Request a new one.")
	case errors.Is(err, auth.ErrTokenMismatch):
		s.writeStatus(w, http.StatusBadRequest, "This link is not correct. Check that you used the most recent email.")
	case errors.Is(err, auth.ErrAccountUpdate):
		s.writeStatus(w, http.StatusServiceUnavailable, "Something went wrong on our side. The link is still valid, try again in a moment.")
	case errors.Is(err, auth.ErrInvalidPassword),
		errors.Is(err, email.ErrInvalidEmail),
		errors.Is(err, krypto.ErrInvalidToken):
		s.writeStatus(w, http.StatusBadRequest, "The provided input is not valid.")
	default:
		s.deps.Logger.Error("unexpected error", "error", err)
		s.writeStatus(w, http.StatusInternalServerError, "Something went wrong on our side.")
	}
}
