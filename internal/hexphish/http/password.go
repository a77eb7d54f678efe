package http

import (
	"errors"
	"net/http"

	"github.com/hexphish/hexphish/internal/hexphish/service"
	"github.com/hexphish/hexphish/pkg/slogx"
)

const minPasswordLength = 8

// PasswordHandler owns forgot/reset and the self-service password change.
type PasswordHandler struct {
	Router *Router
}

type resetPageData struct {
	Token string
}

type changePageData struct {
	Forced bool
}

// HandleForgotPage handles GET /forgot-password.
func (h *PasswordHandler) HandleForgotPage(w http.ResponseWriter, r *http.Request) {
	h.Router.render(w, r, "forgot_password", "Password recovery", nil, "")
}

// HandleForgot handles POST /forgot-password. The response is identical
// whether or not the address belongs to an account.
func (h *PasswordHandler) HandleForgot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	email := r.PostFormValue("email")
	if err := h.Router.ResetService.RequestReset(ctx, email, h.Router.now()); err != nil {
		slogx.FromContext(ctx).Error("reset request failed", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.Router.Sessions.Flash(w, r, "If that address belongs to an account, a reset link is on its way.")
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// HandleResetPage handles GET /reset-password/{token}.
func (h *PasswordHandler) HandleResetPage(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")

	_, err := h.Router.ResetService.ValidateToken(r.Context(), token, h.Router.now())
	if errors.Is(err, service.ErrResetTokenInvalid) {
		h.Router.Sessions.Flash(w, r, "That reset link is invalid or has expired.")
		http.Redirect(w, r, "/forgot-password", http.StatusSeeOther)
		return
	}
	if err != nil {
		slogx.FromContext(r.Context()).Error("reset token lookup failed", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.Router.render(w, r, "reset_password", "Choose a new password", resetPageData{Token: token}, "")
}

// HandleReset handles POST /reset-password/{token}.
func (h *PasswordHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token := r.PathValue("token")

	password := r.PostFormValue("password")
	confirm := r.PostFormValue("password_confirm")
	if msg := validateNewPassword(password, confirm); msg != "" {
		h.Router.render(w, r, "reset_password", "Choose a new password", resetPageData{Token: token}, msg)
		return
	}

	err := h.Router.ResetService.CompleteReset(ctx, token, password, h.Router.now())
	if errors.Is(err, service.ErrResetTokenInvalid) {
		h.Router.Sessions.Flash(w, r, "That reset link is invalid or has expired.")
		http.Redirect(w, r, "/forgot-password", http.StatusSeeOther)
		return
	}
	if err != nil {
		slogx.FromContext(ctx).Error("password reset failed", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.Router.Sessions.Flash(w, r, "Your password has been changed. Sign in with your new password.")
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// HandleChangePage handles GET /account/password.
func (h *PasswordHandler) HandleChangePage(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	h.Router.render(w, r, "change_password", "Change password",
		changePageData{Forced: user.MustChangePassword}, "")
}

// HandleChange handles POST /account/password. A forced change (fresh or
// admin-reset password) skips the current-password check since the user just
// proved it at login.
func (h *PasswordHandler) HandleChange(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	data := changePageData{Forced: user.MustChangePassword}

	if !user.MustChangePassword {
		current := r.PostFormValue("current_password")
		if !h.Router.UserService.VerifyPassword(user, current) {
			h.Router.render(w, r, "change_password", "Change password", data, "Current password is incorrect.")
			return
		}
	}

	password := r.PostFormValue("password")
	confirm := r.PostFormValue("password_confirm")
	if msg := validateNewPassword(password, confirm); msg != "" {
		h.Router.render(w, r, "change_password", "Change password", data, msg)
		return
	}

	if err := h.Router.UserService.SetPassword(ctx, user.ID, password, false); err != nil {
		log.Error("password change failed", "user_id", user.ID, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	log.Info("password changed", "user_id", user.ID)
	h.Router.Sessions.Flash(w, r, "Your password has been updated.")
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func validateNewPassword(password, confirm string) string {
	if len(password) < minPasswordLength {
		return "Password must be at least 8 characters."
	}
	if password != confirm {
		return "Passwords do not match."
	}
	return ""
}
