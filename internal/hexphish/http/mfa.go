package http

import (
	"errors"
	"net/http"

	"github.com/hexphish/hexphish/internal/hexphish/domain"
	"github.com/hexphish/hexphish/internal/hexphish/service"
	"github.com/hexphish/hexphish/pkg/slogx"
)

// MFAHandler owns the second-factor setup and verification routes. All of
// them operate on the pending identity parked by a successful password check.
type MFAHandler struct {
	Router *Router
}

type verifyPageData struct {
	ShowQR    bool
	URI       string
	EmailSent bool
}

// pendingUser resolves the pending-MFA identity or redirects the caller back
// to where they belong.
func (h *MFAHandler) pendingUser(w http.ResponseWriter, r *http.Request) (domain.User, bool) {
	state := h.Router.Sessions.State(r)

	switch state.Stage {
	case StageAuthenticated:
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return domain.User{}, false
	case StagePendingMFA:
	default:
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return domain.User{}, false
	}

	user, err := h.Router.UserService.GetUserByID(r.Context(), state.UserID)
	if err != nil {
		_ = h.Router.Sessions.Clear(w, r)
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return domain.User{}, false
	}
	return user, true
}

// HandleSetupPage handles GET /mfa/setup.
func (h *MFAHandler) HandleSetupPage(w http.ResponseWriter, r *http.Request) {
	user, ok := h.pendingUser(w, r)
	if !ok {
		return
	}
	if user.MFAMethod != domain.MFANone && user.MFAEnabled {
		http.Redirect(w, r, "/mfa/verify", http.StatusSeeOther)
		return
	}
	h.Router.render(w, r, "mfa_setup", "Set up verification", nil, "")
}

// HandleSetup handles POST /mfa/setup: method selection.
func (h *MFAHandler) HandleSetup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	user, ok := h.pendingUser(w, r)
	if !ok {
		return
	}

	method, ok := domain.ParseMFAMethod(r.PostFormValue("method"))
	if !ok || method == domain.MFANone {
		h.Router.render(w, r, "mfa_setup", "Set up verification", nil, "Choose a verification method.")
		return
	}

	if _, err := h.Router.MFAService.SelectMethod(ctx, user, method); err != nil {
		if errors.Is(err, service.ErrMailNotConfigured) {
			h.Router.render(w, r, "mfa_setup", "Set up verification", nil,
				"Emailed codes are unavailable because outbound mail is not configured. Ask an administrator to set it up.")
			return
		}
		log.Error("mfa method selection failed", "user_id", user.ID, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, "/mfa/verify", http.StatusSeeOther)
}

// HandleVerifyPage handles GET /mfa/verify. For email users this is also the
// point where a code is dispatched if none is outstanding.
func (h *MFAHandler) HandleVerifyPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	user, ok := h.pendingUser(w, r)
	if !ok {
		return
	}

	var data verifyPageData
	switch user.MFAMethod {
	case domain.MFATOTP:
		if !user.MFAEnabled {
			uri, err := h.Router.MFAService.ProvisioningURI(user)
			if err != nil {
				log.Error("failed to build provisioning uri", "user_id", user.ID, "error", err)
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}
			data.ShowQR = true
			data.URI = uri
		}

	case domain.MFAEmail:
		sent, err := h.Router.MFAService.EnsureEmailChallenge(ctx, user, h.Router.now())
		if errors.Is(err, service.ErrMailDelivery) {
			h.Router.render(w, r, "mfa_verify", "Verify", data,
				"We could not send your code. Reload this page to try again.")
			return
		}
		if errors.Is(err, service.ErrMailNotConfigured) {
			http.Redirect(w, r, "/mfa/setup", http.StatusSeeOther)
			return
		}
		if err != nil {
			log.Error("failed to issue email challenge", "user_id", user.ID, "error", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		data.EmailSent = sent

	default:
		http.Redirect(w, r, "/mfa/setup", http.StatusSeeOther)
		return
	}

	h.Router.render(w, r, "mfa_verify", "Verify", data, "")
}

// HandleQR handles GET /mfa/qr.png. Only available while the TOTP enrollment
// is unconfirmed; afterwards the secret is never shown again.
func (h *MFAHandler) HandleQR(w http.ResponseWriter, r *http.Request) {
	user, ok := h.pendingUser(w, r)
	if !ok {
		return
	}

	png, err := h.Router.MFAService.EnrollmentQR(user)
	if errors.Is(err, service.ErrNotEnrollable) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		slogx.FromContext(r.Context()).Error("failed to render qr", "user_id", user.ID, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

// HandleVerify handles POST /mfa/verify: the second factor. Success promotes
// the pending identity to authenticated and binds the session token.
func (h *MFAHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	user, ok := h.pendingUser(w, r)
	if !ok {
		return
	}

	code := r.PostFormValue("code")
	err := h.Router.MFAService.VerifyCode(ctx, user, code, h.Router.now())
	if errors.Is(err, service.ErrInvalidCode) {
		data := verifyPageData{}
		if user.MFAMethod == domain.MFATOTP && !user.MFAEnabled {
			if uri, uriErr := h.Router.MFAService.ProvisioningURI(user); uriErr == nil {
				data.ShowQR = true
				data.URI = uri
			}
		}
		h.Router.render(w, r, "mfa_verify", "Verify", data, "Invalid or expired code.")
		return
	}
	if err != nil {
		log.Error("mfa verification failed", "user_id", user.ID, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	binding := ""
	if user.SessionToken != nil {
		binding = *user.SessionToken
	} else {
		token, err := h.Router.UserService.RotateSessionToken(ctx, user.ID)
		if err != nil {
			log.Error("failed to bind session token", "user_id", user.ID, "error", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		binding = token
	}

	if err := h.Router.Sessions.SetState(w, r, LoginState{
		Stage:        StageAuthenticated,
		UserID:       user.ID,
		BindingToken: binding,
	}); err != nil {
		log.Error("failed to save session", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	log.Info("login completed", "user_id", user.ID, "mfa_method", user.MFAMethod)
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}
