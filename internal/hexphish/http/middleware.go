package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/hexphish/hexphish/internal/hexphish/domain"
	"github.com/hexphish/hexphish/internal/hexphish/service"
	"github.com/hexphish/hexphish/pkg/slogx"
)

type gateCtxKey int

const (
	ctxKeyUser gateCtxKey = iota
	ctxKeySessionKey
)

// CurrentUser returns the fully authenticated user for this request, if any.
// A pending-MFA identity is never exposed here.
func CurrentUser(ctx context.Context) (domain.User, bool) {
	u, ok := ctx.Value(ctxKeyUser).(domain.User)
	return u, ok
}

func sessionKeyFromContext(ctx context.Context) string {
	key, _ := ctx.Value(ctxKeySessionKey).(string)
	return key
}

// Gate is the per-request check chain every route sits behind: identity
// resolution, anonymous CSRF-session bootstrap, session-binding enforcement,
// forced password change, active-account enforcement and CSRF validation.
// Each check short-circuits before the route runs.
type Gate struct {
	Sessions *SessionManager
	Users    *service.UserService
	CSRF     *service.CSRFService
}

// csrfExempt lists paths that never mutate auth-relevant state server-side
// before validation happens. Everything else with a state-changing method
// needs a token.
func csrfExempt(path string) bool {
	return strings.HasPrefix(path, "/static/") || path == "/livez" || path == "/readyz"
}

func stepUpExempt(path string) bool {
	return path == "/account/password" || path == "/logout" ||
		strings.HasPrefix(path, "/static/") || path == "/livez" || path == "/readyz"
}

func stateChanging(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := slogx.FromContext(r.Context())

		// The anonymous CSRF session exists for every visitor, signed in
		// or not.
		sessionKey, err := g.Sessions.SessionKey(w, r)
		if err != nil {
			log.Error("failed to establish csrf session", "error", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}

		// Reading the state primes the cookie-session registry on r, so
		// the context forked below shares one session instance with the
		// handlers.
		state := g.Sessions.State(r)
		ctx := context.WithValue(r.Context(), ctxKeySessionKey, sessionKey)

		var user domain.User
		authenticated := false

		switch state.Stage {
		case StageAuthenticated:
			u, err := g.Users.GetUserByID(ctx, state.UserID)
			if errors.Is(err, service.ErrUserNotFound) {
				g.evict(w, r, "Please sign in again.")
				return
			}
			if err != nil {
				log.Error("failed to load session user", "error", err)
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}
			user = u
			authenticated = true

		case StagePendingMFA:
			// A half-finished login for a deactivated account dies here
			// rather than at verification time.
			u, err := g.Users.GetUserByID(ctx, state.UserID)
			if err != nil || !u.IsActive {
				g.evict(w, r, "Please sign in again.")
				return
			}
		}

		if authenticated {
			switch {
			case user.SessionToken == nil:
				// First post-login activity binds the session to the
				// user record.
				token, err := g.Users.RotateSessionToken(ctx, user.ID)
				if err != nil {
					log.Error("failed to bind session token", "error", err)
					http.Error(w, "internal server error", http.StatusInternalServerError)
					return
				}
				state.BindingToken = token
				if err := g.Sessions.SetState(w, r, state); err != nil {
					log.Error("failed to save session", "error", err)
					http.Error(w, "internal server error", http.StatusInternalServerError)
					return
				}
				user.SessionToken = &token

			case state.BindingToken != *user.SessionToken:
				// The binding token rotated after this cookie was issued,
				// e.g. an admin MFA reset or a password reset elsewhere.
				g.evict(w, r, "Your session has expired. Please sign in again.")
				return
			}

			if !user.IsActive {
				g.evict(w, r, "Your account has been deactivated.")
				return
			}

			if user.MustChangePassword && !stepUpExempt(r.URL.Path) {
				http.Redirect(w, r, "/account/password", http.StatusSeeOther)
				return
			}

			ctx = context.WithValue(ctx, ctxKeyUser, user)
		}

		if stateChanging(r.Method) && !csrfExempt(r.URL.Path) {
			supplied := r.PostFormValue("csrf_token")
			if supplied == "" {
				supplied = r.Header.Get("X-CSRF-Token")
			}
			ok, err := g.CSRF.Validate(ctx, sessionKey, supplied)
			if err != nil {
				log.Error("csrf validation failed", "error", err)
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}
			if !ok {
				log.Warn("csrf token rejected", "path", r.URL.Path)
				http.Error(w, "invalid csrf token", http.StatusForbidden)
				return
			}
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (g *Gate) evict(w http.ResponseWriter, r *http.Request, notice string) {
	_ = g.Sessions.Clear(w, r)
	g.Sessions.Flash(w, r, notice)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// requireUser is the capability check handlers call first. It returns the
// authenticated user or writes the redirect itself.
func requireUser(w http.ResponseWriter, r *http.Request) (domain.User, bool) {
	user, ok := CurrentUser(r.Context())
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return domain.User{}, false
	}
	return user, true
}

// requireAdmin layers the admin check on top of requireUser.
func requireAdmin(w http.ResponseWriter, r *http.Request) (domain.User, bool) {
	user, ok := requireUser(w, r)
	if !ok {
		return domain.User{}, false
	}
	if !user.IsAdmin {
		http.Error(w, "forbidden", http.StatusForbidden)
		return domain.User{}, false
	}
	return user, true
}
