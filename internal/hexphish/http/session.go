package http

import (
	"encoding/gob"
	"net/http"

	"github.com/gorilla/sessions"

	"github.com/hexphish/hexphish/pkg/cryptox"
	"github.com/hexphish/hexphish/pkg/httpx"
)

const (
	// sessionCookie carries the signed login state.
	sessionCookie = "hexphish_session"

	// csidCookie is the long-lived anonymous session identifier that keys
	// CSRF tokens. It exists independently of login state.
	csidCookie = "hexphish_csid"

	csidMaxAge = 30 * 24 * 60 * 60 // seconds
)

// LoginStage is where a browser sits in the login state machine.
type LoginStage int

const (
	StageAnonymous LoginStage = iota

	// StagePendingMFA means the password factor passed but the second
	// factor has not. UserID holds the pending identity; it grants no
	// access until verification completes.
	StagePendingMFA

	StageAuthenticated
)

// LoginState is the single tagged value stored in the session cookie. Keeping
// it one value rules out impossible combinations like a session that is both
// pending and authenticated.
type LoginState struct {
	Stage        LoginStage
	UserID       string
	BindingToken string
}

func init() {
	gob.Register(LoginState{})
}

// SessionManager wraps the signed cookie store and the anonymous CSRF-session
// cookie.
type SessionManager struct {
	store       *sessions.CookieStore
	forceSecure bool
}

func NewSessionManager(secret []byte, forceSecure bool) *SessionManager {
	store := sessions.NewCookieStore(secret)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   0, // session cookie, cleared when the browser closes
		HttpOnly: true,
		Secure:   forceSecure,
		SameSite: http.SameSiteLaxMode,
	}
	return &SessionManager{store: store, forceSecure: forceSecure}
}

func (m *SessionManager) session(r *http.Request) *sessions.Session {
	// Get never fails fatally for cookie stores; a bad cookie yields a
	// fresh session.
	s, _ := m.store.Get(r, sessionCookie)
	return s
}

// State returns the login state carried by the request's session cookie.
func (m *SessionManager) State(r *http.Request) LoginState {
	s := m.session(r)
	if v, ok := s.Values["login"].(LoginState); ok {
		return v
	}
	return LoginState{Stage: StageAnonymous}
}

// SetState writes the login state back into the session cookie.
func (m *SessionManager) SetState(w http.ResponseWriter, r *http.Request, state LoginState) error {
	s := m.session(r)
	s.Values["login"] = state
	return s.Save(r, w)
}

// Clear drops all session state, including any pending login, and returns
// the browser to anonymous. The cookie itself survives so an eviction notice
// flashed right after still reaches the login page.
func (m *SessionManager) Clear(w http.ResponseWriter, r *http.Request) error {
	s := m.session(r)
	s.Values = map[interface{}]interface{}{}
	return s.Save(r, w)
}

// Flash queues a one-shot notice shown on the next rendered page.
func (m *SessionManager) Flash(w http.ResponseWriter, r *http.Request, msg string) {
	s := m.session(r)
	s.AddFlash(msg)
	_ = s.Save(r, w)
}

// PopFlashes drains queued notices.
func (m *SessionManager) PopFlashes(w http.ResponseWriter, r *http.Request) []string {
	s := m.session(r)
	raw := s.Flashes()
	if len(raw) == 0 {
		return nil
	}
	_ = s.Save(r, w)
	out := make([]string, 0, len(raw))
	for _, f := range raw {
		if msg, ok := f.(string); ok {
			out = append(out, msg)
		}
	}
	return out
}

// SessionKey returns the anonymous CSRF session identifier, minting and
// setting the cookie when the request arrived without one.
func (m *SessionManager) SessionKey(w http.ResponseWriter, r *http.Request) (string, error) {
	if c, err := r.Cookie(csidCookie); err == nil && c.Value != "" {
		return c.Value, nil
	}

	key, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     csidCookie,
		Value:    key,
		Path:     "/",
		MaxAge:   csidMaxAge,
		HttpOnly: true,
		Secure:   httpx.IsSecureRequest(r, m.forceSecure),
		SameSite: http.SameSiteLaxMode,
	})
	return key, nil
}
