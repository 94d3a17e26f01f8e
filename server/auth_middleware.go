package server

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	gsessions "github.com/gorilla/sessions"
	"github.com/pkg/errors"
	"github.com/rentcopilot/connection-hub/internal/config"
	"github.com/rs/zerolog/log"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// ContextKeySessionID stores the caller's logical session id
const ContextKeySessionID ContextKey = "session_id"

const cookieValueSessionID = "sid"

// ErrUnauthenticated is returned to callers that present no session handle.
var ErrUnauthenticated = errors.New("no session handle")

func newCookieStore(c config.Config) *gsessions.CookieStore {
	store := gsessions.NewCookieStore([]byte(c.GetSessionSecret()))
	store.Options = &gsessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   c.GetEnv() == "PROD",
		SameSite: http.SameSiteLaxMode,
	}
	// Also bounds the signed timestamp, not only the cookie attribute
	store.MaxAge(int(c.GetSessionMaxAge().Seconds()))
	return store
}

// sessionHandle reads the session id from the signed cookie. A cookie that fails
// verification counts as missing.
func (s *Server) sessionHandle(r *http.Request) (string, bool) {
	cookie, err := s.cookies.Get(r, s.config.GetCookieName())
	if err != nil {
		return "", false
	}
	id, ok := cookie.Values[cookieValueSessionID].(string)
	if !ok || id == "" {
		return "", false
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	return id, true
}

func withSessionID(r *http.Request, sessionID string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), ContextKeySessionID, sessionID))
}

// SessionID returns the session id injected by the session handle middleware.
func SessionID(ctx context.Context) string {
	id, _ := ctx.Value(ContextKeySessionID).(string)
	return id
}

// RequireSessionHandle rejects requests without a valid session handle with a 401.
func (s *Server) RequireSessionHandle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := s.sessionHandle(r)
		if !ok {
			writeError(w, errors.Wrap(ErrUnauthenticated, r.URL.Path))
			return
		}
		next(w, withSessionID(r, sessionID))
	}
}

// EnsureSessionHandle issues a new session handle when the caller has none.
func (s *Server) EnsureSessionHandle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := s.sessionHandle(r)
		if !ok {
			sessionID = uuid.NewString()
			// Get only fails on a bad cookie, in which case it still returns a fresh session
			cookie, _ := s.cookies.Get(r, s.config.GetCookieName())
			cookie.Values[cookieValueSessionID] = sessionID
			if err := cookie.Save(r, w); err != nil {
				log.Error().Err(err).Msg("failed to issue session handle")
				writeError(w, errors.Wrap(err, "[Server.EnsureSessionHandle] save cookie"))
				return
			}
		}
		next(w, withSessionID(r, sessionID))
	}
}

// expireSessionHandle tells the browser to drop the session cookie.
func (s *Server) expireSessionHandle(w http.ResponseWriter, r *http.Request) {
	cookie, _ := s.cookies.Get(r, s.config.GetCookieName())
	cookie.Values = map[interface{}]interface{}{}
	cookie.Options.MaxAge = -1
	if err := cookie.Save(r, w); err != nil {
		log.Warn().Err(err).Msg("failed to expire session handle")
	}
}
