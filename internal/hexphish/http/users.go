package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/hexphish/hexphish/internal/hexphish/service"
	"github.com/hexphish/hexphish/pkg/mailx"
	"github.com/hexphish/hexphish/pkg/slogx"
)

// AdminUsersHandler owns the admin user-management routes.
type AdminUsersHandler struct {
	Router *Router
}

type usersPageData struct {
	Users any
}

// HandleList handles GET /admin/users.
func (h *AdminUsersHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r); !ok {
		return
	}

	users, err := h.Router.UserService.ListUsers(r.Context())
	if err != nil {
		slogx.FromContext(r.Context()).Error("failed to list users", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	h.Router.render(w, r, "users", "Users", usersPageData{Users: users}, "")
}

// HandleCreate handles POST /admin/users. The generated temporary password is
// emailed when mail is configured and surfaced to the admin either way, since
// it exists nowhere else.
func (h *AdminUsersHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	admin, ok := requireAdmin(w, r)
	if !ok {
		return
	}

	username := r.PostFormValue("username")
	email := r.PostFormValue("email")
	isAdmin := r.PostFormValue("is_admin") == "1"

	if username == "" || email == "" {
		h.Router.Sessions.Flash(w, r, "Username and email are required.")
		http.Redirect(w, r, "/admin/users", http.StatusSeeOther)
		return
	}

	user, password, err := h.Router.UserService.CreateUser(ctx, username, email, isAdmin)
	if errors.Is(err, service.ErrUserExists) {
		h.Router.Sessions.Flash(w, r, "That username or email is already in use.")
		http.Redirect(w, r, "/admin/users", http.StatusSeeOther)
		return
	}
	if err != nil {
		log.Error("user creation failed", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	log.Info("user created", "user_id", user.ID, "created_by", admin.ID)

	if err := h.Router.MailSettingsService.SendWelcome(ctx, user, password); err != nil &&
		!errors.Is(err, mailx.ErrNotConfigured) {
		log.Warn("welcome mail failed", "user_id", user.ID, "error", err)
	}

	h.Router.Sessions.Flash(w, r,
		fmt.Sprintf("User %s created. Temporary password: %s", user.Username, password))
	http.Redirect(w, r, "/admin/users", http.StatusSeeOther)
}

// HandleResetPassword handles POST /admin/users/{id}/reset-password.
func (h *AdminUsersHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	admin, ok := requireAdmin(w, r)
	if !ok {
		return
	}
	userID := r.PathValue("id")

	password, err := h.Router.UserService.AdminResetPassword(ctx, userID)
	if err != nil {
		log.Error("admin password reset failed", "user_id", userID, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	log.Info("password reset by admin", "user_id", userID, "admin_id", admin.ID)
	h.Router.Sessions.Flash(w, r, fmt.Sprintf("Temporary password: %s", password))
	http.Redirect(w, r, "/admin/users", http.StatusSeeOther)
}

// HandleResetMFA handles POST /admin/users/{id}/reset-mfa. The binding token
// rotates with it, so the user's live sessions end immediately.
func (h *AdminUsersHandler) HandleResetMFA(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	admin, ok := requireAdmin(w, r)
	if !ok {
		return
	}
	userID := r.PathValue("id")

	if err := h.Router.UserService.ResetMFA(ctx, userID); err != nil {
		log.Error("mfa reset failed", "user_id", userID, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	log.Info("mfa reset by admin", "user_id", userID, "admin_id", admin.ID)
	h.Router.Sessions.Flash(w, r, "MFA reset. The user will re-enroll at next login.")
	http.Redirect(w, r, "/admin/users", http.StatusSeeOther)
}

// HandleToggleActive handles POST /admin/users/{id}/toggle-active.
func (h *AdminUsersHandler) HandleToggleActive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	admin, ok := requireAdmin(w, r)
	if !ok {
		return
	}
	userID := r.PathValue("id")

	if admin.ID == userID {
		h.Router.Sessions.Flash(w, r, "You cannot deactivate your own account.")
		http.Redirect(w, r, "/admin/users", http.StatusSeeOther)
		return
	}

	user, err := h.Router.UserService.GetUserByID(ctx, userID)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	if err := h.Router.UserService.SetActive(ctx, userID, !user.IsActive); err != nil {
		log.Error("failed to toggle account", "user_id", userID, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	log.Info("account toggled", "user_id", userID, "active", !user.IsActive, "admin_id", admin.ID)
	http.Redirect(w, r, "/admin/users", http.StatusSeeOther)
}

// HandleDelete handles POST /admin/users/{id}/delete.
func (h *AdminUsersHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	admin, ok := requireAdmin(w, r)
	if !ok {
		return
	}
	userID := r.PathValue("id")

	if admin.ID == userID {
		h.Router.Sessions.Flash(w, r, "You cannot delete your own account.")
		http.Redirect(w, r, "/admin/users", http.StatusSeeOther)
		return
	}

	if err := h.Router.UserService.DeleteUser(ctx, userID); err != nil {
		log.Error("user deletion failed", "user_id", userID, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	log.Info("user deleted", "user_id", userID, "admin_id", admin.ID)
	http.Redirect(w, r, "/admin/users", http.StatusSeeOther)
}
