package http

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hexphish/hexphish/internal/hexphish/domain"
	"github.com/hexphish/hexphish/internal/hexphish/service"
	"github.com/hexphish/hexphish/internal/hexphish/store"
	"github.com/hexphish/hexphish/internal/hexphish/store/drivers/sqlite"
	"github.com/hexphish/hexphish/pkg/cryptox"
	"github.com/hexphish/hexphish/pkg/idx"
	"github.com/hexphish/hexphish/pkg/mailx"
)

type captureMailer struct {
	mu   sync.Mutex
	sent []mailx.Message
}

func (m *captureMailer) Send(_ context.Context, _ mailx.Config, msg mailx.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *captureMailer) messages() []mailx.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mailx.Message, len(m.sent))
	copy(out, m.sent)
	return out
}

type testEnv struct {
	t      *testing.T
	server *httptest.Server
	client *http.Client
	store  store.Store
	mailer *captureMailer
	users  *service.UserService
}

// newTestEnv spins up the full router over an in-memory store. The client
// carries cookies and does not follow redirects, so tests can assert on
// Location headers.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	mailer := &captureMailer{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	users := &service.UserService{Store: st}
	sessions := NewSessionManager([]byte("0123456789abcdef0123456789abcdef"), false)

	router := NewRouter("test", false, st, sessions, logger)
	router.LoginService = &service.LoginService{Users: users}
	router.UserService = users
	router.MFAService = &service.MFAService{Store: st, Mailer: mailer, Issuer: "HexPhish"}
	router.ResetService = &service.PasswordResetService{Store: st, Mailer: mailer}
	router.CSRFService = &service.CSRFService{Store: st}
	router.MailSettingsService = &service.MailSettingsService{Store: st, Mailer: mailer}
	router.ApplyRoutes()

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &testEnv{
		t:      t,
		server: server,
		client: client,
		store:  st,
		mailer: mailer,
		users:  users,
	}
}

func (env *testEnv) seedUser(username, email, password string, mutate ...func(*domain.User)) domain.User {
	env.t.Helper()

	hash, err := cryptox.HashPassword(password)
	require.NoError(env.t, err)

	user := domain.User{
		ID:           idx.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		IsActive:     true,
		MFAMethod:    domain.MFANone,
	}
	for _, fn := range mutate {
		fn(&user)
	}
	require.NoError(env.t, env.store.Users().CreateUser(context.Background(), user))

	stored, err := env.store.Users().GetUserByID(context.Background(), user.ID)
	require.NoError(env.t, err)
	return stored
}

func (env *testEnv) get(path string) *http.Response {
	env.t.Helper()
	resp, err := env.client.Get(env.server.URL + path)
	require.NoError(env.t, err)
	return resp
}

func (env *testEnv) postForm(path string, form url.Values) *http.Response {
	env.t.Helper()
	resp, err := env.client.PostForm(env.server.URL+path, form)
	require.NoError(env.t, err)
	return resp
}

func body(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

var csrfTokenRe = regexp.MustCompile(`name="csrf_token" value="([^"]+)"`)

// csrfToken fetches a page and extracts the form token bound to the client's
// anonymous session.
func (env *testEnv) csrfToken(path string) string {
	env.t.Helper()
	resp := env.get(path)
	require.Equal(env.t, http.StatusOK, resp.StatusCode, "expected a rendered page at %s", path)

	m := csrfTokenRe.FindStringSubmatch(body(env.t, resp))
	require.NotNil(env.t, m, "no csrf token on page %s", path)
	return m[1]
}

// login walks the password factor: GET /login for the token, then POST.
func (env *testEnv) login(identifier, password string) *http.Response {
	env.t.Helper()
	token := env.csrfToken("/login")
	return env.postForm("/login", url.Values{
		"csrf_token": {token},
		"identifier": {identifier},
		"password":   {password},
	})
}

func location(t *testing.T, resp *http.Response) string {
	t.Helper()
	loc := resp.Header.Get("Location")
	require.NotEmpty(t, loc)
	if i := strings.Index(loc, "://"); i >= 0 {
		if j := strings.Index(loc[i+3:], "/"); j >= 0 {
			loc = loc[i+3+j:]
		}
	}
	return loc
}
