package http

import (
	"errors"
	"net/http"

	"github.com/hexphish/hexphish/internal/hexphish/domain"
	"github.com/hexphish/hexphish/internal/hexphish/service"
	"github.com/hexphish/hexphish/pkg/slogx"
)

// AuthHandler owns the login and logout routes.
type AuthHandler struct {
	Router *Router
}

// HandleIndex handles GET /.
func (h *AuthHandler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	if _, ok := CurrentUser(r.Context()); ok {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// HandleLoginPage handles GET /login.
func (h *AuthHandler) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	if _, ok := CurrentUser(r.Context()); ok {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	h.Router.render(w, r, "login", "Sign in", nil, "")
}

// HandleLogin handles POST /login: the password factor. Success parks the
// identity in the pending stage; access is only granted after the second
// factor.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	identifier := r.PostFormValue("identifier")
	password := r.PostFormValue("password")

	user, err := h.Router.LoginService.Authenticate(ctx, identifier, password)
	if errors.Is(err, service.ErrInvalidCredentials) {
		h.Router.render(w, r, "login", "Sign in", nil, "Invalid username or password.")
		return
	}
	if err != nil {
		log.Error("login failed", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	if err := h.Router.Sessions.SetState(w, r, LoginState{
		Stage:  StagePendingMFA,
		UserID: user.ID,
	}); err != nil {
		log.Error("failed to save session", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	log.Info("password factor accepted", "user_id", user.ID)

	if user.MFAMethod == domain.MFANone {
		http.Redirect(w, r, "/mfa/setup", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/mfa/verify", http.StatusSeeOther)
}

// HandleLogout handles POST /logout from any state.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.Router.Sessions.Clear(w, r); err != nil {
		slogx.FromContext(r.Context()).Error("failed to clear session", "error", err)
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
