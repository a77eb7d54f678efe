package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/hexphish/hexphish/internal/hexphish/service"
	"github.com/hexphish/hexphish/internal/hexphish/store"
	"github.com/hexphish/hexphish/pkg/httpx"
	"github.com/hexphish/hexphish/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store    store.Store
	Sessions *SessionManager

	LoginService        *service.LoginService
	UserService         *service.UserService
	MFAService          *service.MFAService
	ResetService        *service.PasswordResetService
	CSRFService         *service.CSRFService
	MailSettingsService *service.MailSettingsService

	// Now is the router's clock; tests override it.
	Now func() time.Time
}

func NewRouter(
	buildVersion string,
	forceSecure bool,
	st store.Store,
	sessions *SessionManager,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
		store:        st,
		Sessions:     sessions,
	}

	// Set default middleware chain. The gate runs innermost so request
	// logs still capture rejected requests.
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		httpx.SecurityHeaders(forceSecure),
	}

	return r
}

func (rt *Router) now() time.Time {
	if rt.Now != nil {
		return rt.Now()
	}
	return time.Now()
}

func (rt *Router) ApplyRoutes() {
	rt.registerAuth()
	rt.registerMFA()
	rt.registerPasswords()
	rt.registerDashboard()
	rt.registerAdmin()
	rt.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain, ending with the session/auth gate.
func (rt *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	gate := &Gate{
		Sessions: rt.Sessions,
		Users:    rt.UserService,
		CSRF:     rt.CSRFService,
	}
	chain := append(append([]httpx.Middleware{}, rt.middlewares...), gate.Middleware)
	httpx.Chain(rt.Mux, chain...).ServeHTTP(w, req)
}

func (rt *Router) registerAuth() {
	h := &AuthHandler{Router: rt}

	rt.Mux.Handle("GET /{$}", http.HandlerFunc(h.HandleIndex))

	rt.Mux.Handle("GET /login",
		httpx.Chain(http.HandlerFunc(h.HandleLoginPage),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)

	// Rate limited by IP + identifier form field to slow credential
	// stuffing against a single account.
	rt.Mux.Handle("POST /login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIPAndFormField(httpx.StrictLimit, "identifier"),
		),
	)

	rt.Mux.Handle("POST /logout", http.HandlerFunc(h.HandleLogout))
}

func (rt *Router) registerMFA() {
	h := &MFAHandler{Router: rt}

	rt.Mux.Handle("GET /mfa/setup", http.HandlerFunc(h.HandleSetupPage))
	rt.Mux.Handle("POST /mfa/setup",
		httpx.Chain(http.HandlerFunc(h.HandleSetup),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	rt.Mux.Handle("GET /mfa/verify", http.HandlerFunc(h.HandleVerifyPage))
	rt.Mux.Handle("GET /mfa/qr.png", http.HandlerFunc(h.HandleQR))

	// Strict limit keeps six-digit codes out of brute-force reach.
	rt.Mux.Handle("POST /mfa/verify",
		httpx.Chain(http.HandlerFunc(h.HandleVerify),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (rt *Router) registerPasswords() {
	h := &PasswordHandler{Router: rt}

	rt.Mux.Handle("GET /forgot-password", http.HandlerFunc(h.HandleForgotPage))
	rt.Mux.Handle("POST /forgot-password",
		httpx.Chain(http.HandlerFunc(h.HandleForgot),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	rt.Mux.Handle("GET /reset-password/{token}", http.HandlerFunc(h.HandleResetPage))
	rt.Mux.Handle("POST /reset-password/{token}",
		httpx.Chain(http.HandlerFunc(h.HandleReset),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	rt.Mux.Handle("GET /account/password", http.HandlerFunc(h.HandleChangePage))
	rt.Mux.Handle("POST /account/password",
		httpx.Chain(http.HandlerFunc(h.HandleChange),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
}

func (rt *Router) registerDashboard() {
	h := &DashboardHandler{Router: rt}
	rt.Mux.Handle("GET /dashboard", http.HandlerFunc(h.HandleDashboard))
}

func (rt *Router) registerAdmin() {
	users := &AdminUsersHandler{Router: rt}
	rt.Mux.Handle("GET /admin/users", http.HandlerFunc(users.HandleList))
	rt.Mux.Handle("POST /admin/users", http.HandlerFunc(users.HandleCreate))
	rt.Mux.Handle("POST /admin/users/{id}/reset-password", http.HandlerFunc(users.HandleResetPassword))
	rt.Mux.Handle("POST /admin/users/{id}/reset-mfa", http.HandlerFunc(users.HandleResetMFA))
	rt.Mux.Handle("POST /admin/users/{id}/toggle-active", http.HandlerFunc(users.HandleToggleActive))
	rt.Mux.Handle("POST /admin/users/{id}/delete", http.HandlerFunc(users.HandleDelete))

	settings := &MailSettingsHandler{Router: rt}
	rt.Mux.Handle("GET /admin/settings/mail", http.HandlerFunc(settings.HandlePage))
	rt.Mux.Handle("POST /admin/settings/mail", http.HandlerFunc(settings.HandleUpdate))
	rt.Mux.Handle("POST /admin/settings/mail/test", http.HandlerFunc(settings.HandleSendTest))
}

func (rt *Router) registerSystem() {
	// Health check endpoints - lenient rate limits (monitoring systems may
	// poll frequently)
	rt.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(rt.startTime, rt.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	rt.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(rt.startTime, rt.buildVersion, rt.store),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}
