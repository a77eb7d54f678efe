package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/hexphish/hexphish/internal/hexphish/domain"
	"github.com/hexphish/hexphish/internal/hexphish/service"
	"github.com/hexphish/hexphish/pkg/mailx"
	"github.com/hexphish/hexphish/pkg/slogx"
)

// MailSettingsHandler owns the admin mail-configuration page.
type MailSettingsHandler struct {
	Router *Router
}

type settingsPageData struct {
	Settings domain.MailSettings
}

// HandlePage handles GET /admin/settings/mail.
func (h *MailSettingsHandler) HandlePage(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r); !ok {
		return
	}

	settings, err := h.Router.MailSettingsService.Get(r.Context())
	if err != nil {
		slogx.FromContext(r.Context()).Error("failed to load mail settings", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	h.Router.render(w, r, "mail_settings", "Mail settings", settingsPageData{Settings: settings}, "")
}

// HandleUpdate handles POST /admin/settings/mail.
func (h *MailSettingsHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	admin, ok := requireAdmin(w, r)
	if !ok {
		return
	}

	port := 0
	if raw := r.PostFormValue("port"); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil {
			h.renderWith(w, r, "Port must be a number.")
			return
		}
		port = p
	}

	settings := domain.MailSettings{
		Host:      r.PostFormValue("host"),
		Port:      port,
		Username:  r.PostFormValue("username"),
		Password:  r.PostFormValue("password"),
		UseTLS:    r.PostFormValue("encryption") == "tls",
		UseSSL:    r.PostFormValue("encryption") == "ssl",
		FromName:  r.PostFormValue("from_name"),
		FromEmail: r.PostFormValue("from_email"),
		BaseURL:   r.PostFormValue("base_url"),
	}

	err := h.Router.MailSettingsService.Update(ctx, settings, h.Router.now())
	if errors.Is(err, service.ErrInvalidMailSettings) {
		h.renderWith(w, r, "Those settings are invalid. Check the port and encryption mode.")
		return
	}
	if err != nil {
		log.Error("failed to save mail settings", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	log.Info("mail settings updated", "admin_id", admin.ID)
	h.Router.Sessions.Flash(w, r, "Mail settings saved.")
	http.Redirect(w, r, "/admin/settings/mail", http.StatusSeeOther)
}

// HandleSendTest handles POST /admin/settings/mail/test.
func (h *MailSettingsHandler) HandleSendTest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if _, ok := requireAdmin(w, r); !ok {
		return
	}

	to := r.PostFormValue("to")
	if to == "" {
		h.Router.Sessions.Flash(w, r, "Enter an address to send the test to.")
		http.Redirect(w, r, "/admin/settings/mail", http.StatusSeeOther)
		return
	}

	err := h.Router.MailSettingsService.SendTest(ctx, to)
	switch {
	case errors.Is(err, mailx.ErrNotConfigured):
		h.Router.Sessions.Flash(w, r, "Save working mail settings before sending a test.")
	case err != nil:
		slogx.FromContext(ctx).Warn("test mail failed", "error", err)
		h.Router.Sessions.Flash(w, r, "Test message failed: "+err.Error())
	default:
		h.Router.Sessions.Flash(w, r, "Test message sent.")
	}
	http.Redirect(w, r, "/admin/settings/mail", http.StatusSeeOther)
}

func (h *MailSettingsHandler) renderWith(w http.ResponseWriter, r *http.Request, errMsg string) {
	settings, err := h.Router.MailSettingsService.Get(r.Context())
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	h.Router.render(w, r, "mail_settings", "Mail settings", settingsPageData{Settings: settings}, errMsg)
}
