package auth

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"

	"github.com/hazyhaar/cardcrafter/kit"
	"github.com/hazyhaar/cardcrafter/safeurl"
)

const (
	sessionName = "cardcrafter"
	sessionKey  = "sid"
)

// Sessions issues and reads the opaque session id stored in a signed cookie.
type Sessions struct {
	store *sessions.CookieStore
}

// NewSessions creates a cookie-backed session manager.
func NewSessions(secret []byte, secure bool) (*Sessions, error) {
	if err := safeurl.ValidateSecret(secret); err != nil {
		return nil, err
	}
	store := sessions.NewCookieStore(secret)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &Sessions{store: store}, nil
}

// ID returns the session id carried by r, or "" if there is none.
func (s *Sessions) ID(r *http.Request) string {
	sess, err := s.store.Get(r, sessionName)
	if err != nil {
		return ""
	}
	id, _ := sess.Values[sessionKey].(string)
	return id
}

// Ensure returns the session id of r, creating and saving a new session
// when absent.
func (s *Sessions) Ensure(w http.ResponseWriter, r *http.Request) (string, error) {
	// A tampered cookie yields an error plus a fresh session; overwrite it.
	sess, _ := s.store.Get(r, sessionName)
	if id, ok := sess.Values[sessionKey].(string); ok && id != "" {
		return id, nil
	}
	id := uuid.Must(uuid.NewV7()).String()
	sess.Values[sessionKey] = id
	if err := sess.Save(r, w); err != nil {
		return "", err
	}
	return id, nil
}

// Middleware puts the session id (if any) into the request context without
// creating a session.
func (s *Sessions) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := s.ID(r); id != "" {
			r = r.WithContext(kit.WithSessionID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}
