package server

import (
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/rentcopilot/connection-hub/connections"
	apperrors "github.com/rentcopilot/connection-hub/internal/errors"
	"github.com/rentcopilot/connection-hub/internal/metrics"
	"github.com/rentcopilot/connection-hub/platforms"
	"github.com/rentcopilot/connection-hub/providers"
)

const maxBodyBytes = 16 << 10

type platformView struct {
	Slug        string             `json:"slug"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	AuthFlow    platforms.AuthFlow `json:"authFlow"`
	LogoURL     string             `json:"logoUrl"`
}

type loginRequest struct {
	Environment string `json:"environment"`
	Login       string `json:"login"`
	Password    string `json:"password"`
}

type switchRequest struct {
	ConnectionID string `json:"connectionId"`
}

type sessionResponse struct {
	Success bool                    `json:"success"`
	Session *connections.AppSession `json:"session,omitempty"`
}

type successResponse struct {
	Success bool `json:"success"`
}

// PlatformsHandler lists the catalog. An optional environment query parameter resolves
// templated logo URLs.
func (s *Server) PlatformsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		environment := r.URL.Query().Get("environment")
		list := s.manager.Catalog().List()
		views := make([]platformView, 0, len(list))
		for _, p := range list {
			views = append(views, platformView{
				Slug:        p.Slug,
				Name:        p.Name,
				Description: p.Description,
				AuthFlow:    p.AuthFlow,
				LogoURL:     p.Logo(environment),
			})
		}
		writeJSON(w, http.StatusOK, views)
	}
}

// LoginHandler authenticates against the platform in the path and merges the new
// connection into the caller's session. Tokens never appear in the response.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := SessionID(r.Context())
		platform := r.PathValue("platform")

		var body loginRequest
		if err := decodeJSON(w, r, &body); err != nil {
			writeError(w, err)
			return
		}
		environment, login := strings.TrimSpace(body.Environment), strings.TrimSpace(body.Login)
		ip := clientIP(r, s.config.GetTrustProxy())
		if !s.limiters.Allow(clientKey(ip), accountKey(platform, environment, login)) {
			metrics.LoginsRateLimited.Inc()
			writeError(w, errors.Wrapf(apperrors.ErrRateLimited, "[Server.LoginHandler] %s", platform))
			return
		}

		session, err := s.manager.Login(r.Context(), sessionID, platform, providers.Credentials{
			Environment: environment,
			Login:       login,
			Password:    body.Password,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sessionResponse{Success: true, Session: session.Redacted()})
	}
}

// SessionHandler returns the caller's session without tokens. A session that was never
// populated is returned empty.
func (s *Server) SessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := s.manager.Session(r.Context(), SessionID(r.Context()))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, session.Redacted())
	}
}

// ActiveConnectionHandler hands the active connection, token included, to API callers.
func (s *Server) ActiveConnectionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		active, err := s.manager.ActiveConnection(r.Context(), SessionID(r.Context()))
		if err != nil {
			writeError(w, err)
			return
		}
		if active == nil {
			writeError(w, errors.Wrap(ErrUnauthenticated, "no active connection"))
			return
		}
		writeJSON(w, http.StatusOK, active)
	}
}

// SwitchActiveHandler answers 404 with success false when the connection is unknown.
func (s *Server) SwitchActiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body switchRequest
		if err := decodeJSON(w, r, &body); err != nil {
			writeError(w, err)
			return
		}
		if strings.TrimSpace(body.ConnectionID) == "" {
			writeError(w, errors.Wrap(apperrors.ErrInvalidRequest, "connectionId is required"))
			return
		}

		ok, err := s.manager.Switch(r.Context(), SessionID(r.Context()), body.ConnectionID)
		switch {
		case err != nil:
			writeError(w, err)
		case !ok:
			writeJSON(w, http.StatusNotFound, successResponse{Success: false})
		default:
			writeJSON(w, http.StatusOK, successResponse{Success: true})
		}
	}
}

func (s *Server) RemoveConnectionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := s.manager.Remove(r.Context(), SessionID(r.Context()), r.PathValue("id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sessionResponse{Success: true, Session: session.Redacted()})
	}
}

func (s *Server) CacheHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ids := s.manager.Cache(SessionID(r.Context())).ListConnectedPlatformIDs()
		writeJSON(w, http.StatusOK, map[string][]string{"connectionIds": ids})
	}
}

// LogoutHandler always succeeds and always expires the session handle.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sessionID, ok := s.sessionHandle(r); ok {
			s.manager.Logout(r.Context(), sessionID)
		}
		s.expireSessionHandle(w, r)
		writeJSON(w, http.StatusOK, successResponse{Success: true})
	}
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "app": s.config.GetAppName()})
	}
}
