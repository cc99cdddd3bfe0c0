package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/classroom-llm-gateway/internal/access"
	"github.com/tjfontaine/classroom-llm-gateway/internal/auth"
	"github.com/tjfontaine/classroom-llm-gateway/internal/core/domain"
)

func (s *Server) routes() {
	r := s.Router

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Post("/tenant", s.handleSwitchTenant)
		r.Get("/me", s.handleMe)
	})

	r.Get("/access", s.handleAccess)

	// Testers only; everyone else sees 404, logged in or not. A disabled
	// class blocks the tool before any model access is resolved.
	r.Route("/tutor", func(r chi.Router) {
		r.Use(s.guard(auth.RequireTester, auth.RequireLogin, auth.RequireTenantEnabled(s.deps.Accounts)))
		r.Get("/chats", s.handleHistory)
		r.Post("/chats", s.handleStart)
		r.Get("/chats/{id}", s.handleView)
		r.Post("/chats/{id}/messages", s.handleContinue)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(s.guard(auth.RequireLogin, auth.RequireAdmin))
		r.Get("/links", s.handleAdminLinks)
		r.Get("/tutor", s.handleAdminTutor)
		r.Get("/tutor/{id}", s.handleView)
	})
	s.deps.AdminLinks.MustRegister("Tutor Chats", "/admin/tutor")

	r.Handle("/metrics", s.deps.Metrics.Handler())
}

// guard denies the request unless every guard passes.
func (s *Server) guard(guards ...auth.Guard) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac, ok := s.authContext(w, r)
			if !ok {
				return
			}
			d, err := auth.Check(r.Context(), ac, guards...)
			if err != nil {
				writeError(w, r, err)
				return
			}
			if !d.Allowed {
				AddLogField(r.Context(), "denied", d.Reason)
				writeDenial(w, d.Status, "forbidden", d.Reason)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// authContext resolves the caller, writing a 500 on store failure.
func (s *Server) authContext(w http.ResponseWriter, r *http.Request) (*domain.AuthContext, bool) {
	ac, err := auth.FromContext(r.Context())
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	if ac.IsAuthenticated() {
		AddLogField(r.Context(), "identity_id", strconv.FormatInt(ac.IdentityID, 10))
	}
	if ac.HasTenant() {
		AddLogField(r.Context(), "tenant_id", strconv.FormatInt(ac.TenantID, 10))
	}
	return ac, true
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDenial(w, http.StatusBadRequest, "invalid_request", "Malformed request body.")
		return
	}

	tok, err := auth.LocalLogin(r.Context(), s.deps.Accounts, req.Username, req.Password)
	if errors.Is(err, auth.ErrBadCredentials) {
		AddLogField(r.Context(), "username", req.Username)
		writeDenial(w, http.StatusUnauthorized, "unauthorized", "Invalid username or password.")
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.issue(w, r, tok)
}

type switchTenantRequest struct {
	TenantID int64 `json:"tenant_id"`
}

func (s *Server) handleSwitchTenant(w http.ResponseWriter, r *http.Request) {
	ac, ok := s.authContext(w, r)
	if !ok {
		return
	}
	var req switchTenantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDenial(w, http.StatusBadRequest, "invalid_request", "Malformed request body.")
		return
	}

	tok, err := auth.SwitchTenant(r.Context(), s.deps.Accounts, ac, req.TenantID)
	if errors.Is(err, auth.ErrNotMember) {
		writeDenial(w, http.StatusForbidden, "forbidden", "You do not have an active role in that class.")
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.issue(w, r, tok)
}

// issue signs tok and returns it both as JSON and as the session cookie.
func (s *Server) issue(w http.ResponseWriter, r *http.Request, tok auth.SessionToken) {
	signed, err := s.deps.Sessions.Issue(tok)
	if err != nil {
		writeError(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    signed,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, tokenResponse{Token: signed})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	ac, ok := s.authContext(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ac)
}

type accessResponse struct {
	Source   domain.CredentialSource `json:"source"`
	Provider string                  `json:"provider"`
	Model    string                  `json:"model"`
}

// handleAccess resolves model access without calling the model. A metered
// caller spends a token, exactly as a real request would.
func (s *Server) handleAccess(w http.ResponseWriter, r *http.Request) {
	ac, ok := s.authContext(w, r)
	if !ok {
		return
	}

	mode := access.ModeNormal
	switch r.URL.Query().Get("mode") {
	case "", "normal":
	case "system":
		if d, _ := auth.RequireAdmin(r.Context(), ac); !d.Allowed {
			writeDenial(w, d.Status, "forbidden", d.Reason)
			return
		}
		mode = access.ModeSystemOverride
	default:
		writeDenial(w, http.StatusBadRequest, "invalid_request", "Unknown access mode.")
		return
	}

	ma, err := s.deps.Access.Resolve(r.Context(), ac, mode)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accessResponse{Source: ma.Source(), Provider: ma.Provider(), Model: ma.Model()})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	ac, ok := s.authContext(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	history, err := s.deps.Tutor.History(r.Context(), ac, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

type startRequest struct {
	Topic   string `json:"topic"`
	Context string `json:"context,omitempty"`
}

type startResponse struct {
	ID           string               `json:"id"`
	Conversation *domain.Conversation `json:"conversation,omitempty"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	ac, ok := s.authContext(w, r)
	if !ok {
		return
	}
	var req startRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDenial(w, http.StatusBadRequest, "invalid_request", "Malformed request body.")
		return
	}
	req.Topic = strings.TrimSpace(req.Topic)
	if req.Topic == "" {
		writeDenial(w, http.StatusBadRequest, "invalid_request", "A topic is required.")
		return
	}

	ma, err := s.deps.Access.Resolve(r.Context(), ac, access.ModeNormal)
	if err != nil {
		writeError(w, r, err)
		return
	}

	id, err := s.deps.Tutor.Start(r.Context(), ac, ma, req.Topic, req.Context)
	if id != "" {
		AddLogField(r.Context(), "conversation_id", id)
		w.Header().Set("Location", "/tutor/chats/"+id)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	conv, err := s.deps.Tutor.Get(r.Context(), ac, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, startResponse{ID: id, Conversation: conv})
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	ac, ok := s.authContext(w, r)
	if !ok {
		return
	}
	conv, err := s.deps.Tutor.Get(r.Context(), ac, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

type continueRequest struct {
	Message string `json:"message"`
}

// handleContinue checks conversation access before resolving model access,
// so a caller who cannot use the conversation never spends a token on it.
func (s *Server) handleContinue(w http.ResponseWriter, r *http.Request) {
	ac, ok := s.authContext(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	AddLogField(r.Context(), "conversation_id", id)

	var req continueRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDenial(w, http.StatusBadRequest, "invalid_request", "Malformed request body.")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeDenial(w, http.StatusBadRequest, "invalid_request", "A message is required.")
		return
	}

	if _, err := s.deps.Tutor.Get(r.Context(), ac, id); err != nil {
		writeError(w, r, err)
		return
	}

	ma, err := s.deps.Access.Resolve(r.Context(), ac, access.ModeNormal)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.deps.Tutor.Continue(r.Context(), ac, ma, id, req.Message); err != nil {
		writeError(w, r, err)
		return
	}

	conv, err := s.deps.Tutor.Get(r.Context(), ac, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleAdminLinks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.AdminLinks.Links())
}

func (s *Server) handleAdminTutor(w http.ResponseWriter, r *http.Request) {
	ac, ok := s.authContext(w, r)
	if !ok {
		return
	}
	summaries, err := s.deps.Tutor.AdminSummaries(r.Context(), ac)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}
