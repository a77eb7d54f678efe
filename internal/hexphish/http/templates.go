package http

import (
	"html/template"
	"net/http"

	"github.com/hexphish/hexphish/internal/hexphish/domain"
	"github.com/hexphish/hexphish/pkg/slogx"
)

// The console keeps its markup deliberately plain; pages are forms and
// tables, nothing more.
const pagesHTML = `
{{define "layout_top"}}<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>{{.Title}} - HexPhish</title></head>
<body>
<h1>HexPhish</h1>
{{range .Flashes}}<p class="notice">{{.}}</p>{{end}}
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
{{end}}

{{define "layout_bottom"}}</body></html>{{end}}

{{define "login"}}{{template "layout_top" .}}
<h2>Sign in</h2>
<form method="post" action="/login">
<input type="hidden" name="csrf_token" value="{{.CSRFToken}}">
<label>Username or email <input name="identifier" autofocus></label>
<label>Password <input type="password" name="password"></label>
<button type="submit">Sign in</button>
</form>
<p><a href="/forgot-password">Forgot your password?</a></p>
{{template "layout_bottom" .}}{{end}}

{{define "mfa_setup"}}{{template "layout_top" .}}
<h2>Choose a second factor</h2>
<form method="post" action="/mfa/setup">
<input type="hidden" name="csrf_token" value="{{.CSRFToken}}">
<label><input type="radio" name="method" value="totp" checked> Authenticator app</label>
<label><input type="radio" name="method" value="email"> Emailed code</label>
<button type="submit">Continue</button>
</form>
{{template "layout_bottom" .}}{{end}}

{{define "mfa_verify"}}{{template "layout_top" .}}
<h2>Verify it's you</h2>
{{if .Data.ShowQR}}
<p>Scan this code with your authenticator app, then enter the code it shows.</p>
<img src="/mfa/qr.png" alt="enrollment QR code" width="200" height="200">
<p><code>{{.Data.URI}}</code></p>
{{end}}
{{if .Data.EmailSent}}<p>We sent a code to your email address.</p>{{end}}
<form method="post" action="/mfa/verify">
<input type="hidden" name="csrf_token" value="{{.CSRFToken}}">
<label>Code <input name="code" inputmode="numeric" autocomplete="one-time-code" autofocus></label>
<button type="submit">Verify</button>
</form>
{{template "layout_bottom" .}}{{end}}

{{define "forgot_password"}}{{template "layout_top" .}}
<h2>Password recovery</h2>
<form method="post" action="/forgot-password">
<input type="hidden" name="csrf_token" value="{{.CSRFToken}}">
<label>Email address <input type="email" name="email" autofocus></label>
<button type="submit">Send reset link</button>
</form>
{{template "layout_bottom" .}}{{end}}

{{define "reset_password"}}{{template "layout_top" .}}
<h2>Choose a new password</h2>
<form method="post" action="/reset-password/{{.Data.Token}}">
<input type="hidden" name="csrf_token" value="{{.CSRFToken}}">
<label>New password <input type="password" name="password" autofocus></label>
<label>Repeat password <input type="password" name="password_confirm"></label>
<button type="submit">Set password</button>
</form>
{{template "layout_bottom" .}}{{end}}

{{define "change_password"}}{{template "layout_top" .}}
<h2>Change your password</h2>
{{if .Data.Forced}}<p>You must choose a new password before continuing.</p>{{end}}
<form method="post" action="/account/password">
<input type="hidden" name="csrf_token" value="{{.CSRFToken}}">
{{if not .Data.Forced}}<label>Current password <input type="password" name="current_password"></label>{{end}}
<label>New password <input type="password" name="password"></label>
<label>Repeat password <input type="password" name="password_confirm"></label>
<button type="submit">Change password</button>
</form>
{{template "layout_bottom" .}}{{end}}

{{define "dashboard"}}{{template "layout_top" .}}
<h2>Dashboard</h2>
<p>Signed in as <strong>{{.User.Username}}</strong>.</p>
<nav>
<a href="/account/password">Change password</a>
{{if .User.IsAdmin}} | <a href="/admin/users">Users</a> | <a href="/admin/settings/mail">Mail settings</a>{{end}}
</nav>
<form method="post" action="/logout">
<input type="hidden" name="csrf_token" value="{{.CSRFToken}}">
<button type="submit">Sign out</button>
</form>
{{template "layout_bottom" .}}{{end}}

{{define "users"}}{{template "layout_top" .}}
<h2>Users</h2>
<table border="1">
<tr><th>Username</th><th>Email</th><th>Admin</th><th>Active</th><th>MFA</th><th></th></tr>
{{range .Data.Users}}
<tr>
<td>{{.Username}}</td><td>{{.Email}}</td>
<td>{{if .IsAdmin}}yes{{end}}</td>
<td>{{if .IsActive}}yes{{else}}no{{end}}</td>
<td>{{.MFAMethod}}{{if .MFAEnabled}} (enabled){{end}}</td>
<td>
<form method="post" action="/admin/users/{{.ID}}/reset-password" style="display:inline">
<input type="hidden" name="csrf_token" value="{{$.CSRFToken}}"><button>Reset password</button></form>
<form method="post" action="/admin/users/{{.ID}}/reset-mfa" style="display:inline">
<input type="hidden" name="csrf_token" value="{{$.CSRFToken}}"><button>Reset MFA</button></form>
<form method="post" action="/admin/users/{{.ID}}/toggle-active" style="display:inline">
<input type="hidden" name="csrf_token" value="{{$.CSRFToken}}"><button>{{if .IsActive}}Deactivate{{else}}Activate{{end}}</button></form>
<form method="post" action="/admin/users/{{.ID}}/delete" style="display:inline">
<input type="hidden" name="csrf_token" value="{{$.CSRFToken}}"><button>Delete</button></form>
</td>
</tr>
{{end}}
</table>
<h3>Create user</h3>
<form method="post" action="/admin/users">
<input type="hidden" name="csrf_token" value="{{.CSRFToken}}">
<label>Username <input name="username"></label>
<label>Email <input type="email" name="email"></label>
<label><input type="checkbox" name="is_admin" value="1"> Administrator</label>
<button type="submit">Create</button>
</form>
{{template "layout_bottom" .}}{{end}}

{{define "mail_settings"}}{{template "layout_top" .}}
<h2>Mail settings</h2>
<form method="post" action="/admin/settings/mail">
<input type="hidden" name="csrf_token" value="{{.CSRFToken}}">
<label>SMTP host <input name="host" value="{{.Data.Settings.Host}}"></label>
<label>Port <input name="port" value="{{if .Data.Settings.Port}}{{.Data.Settings.Port}}{{end}}"></label>
<label>Username <input name="username" value="{{.Data.Settings.Username}}"></label>
<label>Password <input type="password" name="password" value="{{.Data.Settings.Password}}"></label>
<label><input type="radio" name="encryption" value="none" {{if and (not .Data.Settings.UseTLS) (not .Data.Settings.UseSSL)}}checked{{end}}> None</label>
<label><input type="radio" name="encryption" value="tls" {{if .Data.Settings.UseTLS}}checked{{end}}> STARTTLS</label>
<label><input type="radio" name="encryption" value="ssl" {{if .Data.Settings.UseSSL}}checked{{end}}> SSL</label>
<label>From name <input name="from_name" value="{{.Data.Settings.FromName}}"></label>
<label>From address <input name="from_email" value="{{.Data.Settings.FromEmail}}"></label>
<label>External base URL <input name="base_url" value="{{.Data.Settings.BaseURL}}"></label>
<button type="submit">Save</button>
</form>
<h3>Send test message</h3>
<form method="post" action="/admin/settings/mail/test">
<input type="hidden" name="csrf_token" value="{{.CSRFToken}}">
<label>To <input type="email" name="to"></label>
<button type="submit">Send test</button>
</form>
{{template "layout_bottom" .}}{{end}}
`

var pages = template.Must(template.New("pages").Parse(pagesHTML))

type pageData struct {
	Title     string
	Flashes   []string
	CSRFToken string
	Error     string
	User      *domain.User
	Data      any
}

// render writes a page with the session's flashes and current CSRF token
// filled in.
func (rt *Router) render(w http.ResponseWriter, r *http.Request, name, title string, data any, errMsg string) {
	ctx := r.Context()

	token, err := rt.CSRFService.TokenForSession(ctx, sessionKeyFromContext(ctx), rt.now())
	if err != nil {
		slogx.FromContext(ctx).Error("failed to load csrf token", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pd := pageData{
		Title:     title,
		Flashes:   rt.Sessions.PopFlashes(w, r),
		CSRFToken: token,
		Error:     errMsg,
		Data:      data,
	}
	if u, ok := CurrentUser(ctx); ok {
		pd.User = &u
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pages.ExecuteTemplate(w, name, pd); err != nil {
		slogx.FromContext(ctx).Error("failed to render page", "page", name, "error", err)
	}
}
