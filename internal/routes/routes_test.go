package routes

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"io"
	"math/big"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/saproto/identity/internal/app"
	"github.com/saproto/identity/internal/config"
	"github.com/saproto/identity/internal/db/dbtest"
	"github.com/saproto/identity/internal/idp"
	"github.com/saproto/identity/internal/model"
	"github.com/saproto/identity/internal/repository"
	"github.com/saproto/identity/internal/service"
	"github.com/saproto/identity/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testACS = "https://wiki.example.org/saml/acs"

type recordingMailer struct {
	tokens []string
}

func (m *recordingMailer) SendPasswordReset(_ context.Context, _ *model.User, token string) error {
	m.tokens = append(m.tokens, token)
	return nil
}

type testServer struct {
	*httptest.Server
	client   *http.Client
	users    repository.UserRepository
	members  repository.MemberRepository
	mailer   *recordingMailer
	sessions *session.CookieStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	database := dbtest.Open(t)
	users := repository.NewUserRepository(database)
	members := repository.NewMemberRepository(database)
	mailer := &recordingMailer{}

	auth := service.NewAuthService(
		users,
		members,
		repository.NewPasswordResetRepository(database),
		service.NewTwoFactor(),
		mailer,
		nil,
		time.Hour,
	)

	sessions := session.NewCookieStore("test-secret", time.Hour, false)
	a := &app.App{
		Cfg:              &config.Config{AppName: "Proto", AppEnv: "development", AppURL: "http://localhost"},
		DB:               database,
		Sessions:         sessions,
		AuthService:      auth,
		IdentityProvider: testIdentityProvider(t),
	}

	srv := httptest.NewServer(SetupRoutes(a))
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &testServer{
		Server: srv,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		users:    users,
		members:  members,
		mailer:   mailer,
		sessions: sessions,
	}
}

func testIdentityProvider(t *testing.T) *idp.IdentityProvider {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "test idp"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	return idp.NewWithKeyPair(&config.IdentityProvider{
		Issuer: "http://localhost",
		ServiceProviders: map[string]config.ServiceProvider{
			base64.StdEncoding.EncodeToString([]byte(testACS)): {Audience: "https://wiki.example.org"},
		},
	}, tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key})
}

func (s *testServer) user(t *testing.T, name, email, password string, totpSecret *string) *model.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	h := string(hash)

	user := &model.User{Name: name, CallingName: name, Email: email, PasswordHash: &h, TOTPSecret: totpSecret}
	require.NoError(t, s.users.Create(context.Background(), user))
	return user
}

func (s *testServer) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()

	resp, err := s.client.Get(s.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

// post submits a form with the CSRF token from the cookie jar.
func (s *testServer) post(t *testing.T, path string, form url.Values) (*http.Response, string) {
	t.Helper()

	base, err := url.Parse(s.URL)
	require.NoError(t, err)
	for _, c := range s.client.Jar.Cookies(base) {
		if c.Name == "csrf_token" {
			form.Set("csrf_token", c.Value)
		}
	}

	resp, err := s.client.PostForm(s.URL+path, form)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

// setSession replaces the browser's session cookie with data.
func (s *testServer) setSession(t *testing.T, data *session.Data) {
	t.Helper()

	rec := httptest.NewRecorder()
	require.NoError(t, s.sessions.Save(rec, data))
	base, err := url.Parse(s.URL)
	require.NoError(t, err)
	s.client.Jar.SetCookies(base, rec.Result().Cookies())
}

func samlRequest(t *testing.T) string {
	t.Helper()

	raw, err := idp.EncodeRequest([]byte(`<samlp:AuthnRequest xmlns:samlp="urn:oasis:names:tc:SAML:2.0:protocol" ID="_req1" Version="2.0" AssertionConsumerServiceURL="` + testACS + `"/>`))
	require.NoError(t, err)
	return raw
}

func TestLogin_Password(t *testing.T) {
	s := newTestServer(t)
	s.user(t, "Alice Example", "alice@example.org", "correct horse battery", nil)

	s.get(t, "/login")
	resp, _ := s.post(t, "/login", url.Values{"email": {"alice@example.org"}, "password": {"correct horse battery"}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))

	_, body := s.get(t, "/")
	assert.Contains(t, body, "Alice Example")
}

func TestLogin_WrongPassword(t *testing.T) {
	s := newTestServer(t)
	s.user(t, "Alice Example", "alice@example.org", "correct horse battery", nil)

	s.get(t, "/login")
	resp, _ := s.post(t, "/login", url.Values{"email": {"alice@example.org"}, "password": {"wrong"}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	_, body := s.get(t, "/login")
	assert.Contains(t, body, "Invalid username of password provided.")
	assert.Contains(t, body, `value="alice@example.org"`)

	_, body = s.get(t, "/login")
	assert.NotContains(t, body, "Invalid username of password provided.")
}

func TestLogin_TwoFactor(t *testing.T) {
	s := newTestServer(t)
	key, err := totp.Generate(totp.GenerateOpts{Issuer: "Proto", AccountName: "bob@example.org"})
	require.NoError(t, err)
	secret := key.Secret()
	s.user(t, "Bob Example", "bob@example.org", "correct horse battery", &secret)

	s.get(t, "/login")
	resp, body := s.post(t, "/login", url.Values{"email": {"bob@example.org"}, "password": {"correct horse battery"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `name="2fa_totp_token"`)

	_, body = s.post(t, "/login", url.Values{"2fa_totp_token": {""}})
	assert.Contains(t, body, "Please complete the requested challenge.")

	_, body = s.post(t, "/login", url.Values{"2fa_totp_token": {"abcdef"}})
	assert.Contains(t, body, "Your code is invalid. Please try again.")

	_, body = s.get(t, "/")
	assert.Contains(t, body, "You are not logged in.")

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	resp, _ = s.post(t, "/login", url.Values{"2fa_totp_token": {code}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

	_, body = s.get(t, "/")
	assert.Contains(t, body, "Bob Example")
}

func TestLogin_SAMLRequestIsAnsweredAfterLogin(t *testing.T) {
	s := newTestServer(t)
	alice := s.user(t, "Alice Example", "alice@example.org", "correct horse battery", nil)
	require.NoError(t, s.members.Create(context.Background(), &model.Member{UserID: alice.ID, ProtoUsername: "alice"}))

	query := url.Values{"SAMLRequest": {samlRequest(t)}, "RelayState": {"/wiki/Start"}}
	resp, body := s.get(t, "/login?"+query.Encode())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `name="password"`)

	resp, body = s.post(t, "/login", url.Values{"email": {"alice"}, "password": {"correct horse battery"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `action="`+testACS+`"`)
	assert.Contains(t, body, `name="SAMLResponse"`)
	assert.Contains(t, body, `name="RelayState" value="/wiki/Start"`)

	// already logged in: answered straight away
	resp, body = s.get(t, "/login?"+query.Encode())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `name="SAMLResponse"`)
}

func TestLogin_SAMLRequestFromNonMember(t *testing.T) {
	s := newTestServer(t)
	s.user(t, "Carol Example", "carol@example.org", "correct horse battery", nil)

	s.get(t, "/login?"+url.Values{"SAMLRequest": {samlRequest(t)}}.Encode())
	resp, _ := s.post(t, "/login", url.Values{"email": {"carol@example.org"}, "password": {"correct horse battery"}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/becomeamember", resp.Header.Get("Location"))

	_, body := s.get(t, "/becomeamember")
	assert.Contains(t, body, "Only members can use the Proto SSO. You only have a user account.")
}

func TestProtectedRoute_RedirectsToLogin(t *testing.T) {
	s := newTestServer(t)

	resp, _ := s.get(t, "/password/change")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login?next=%2Fpassword%2Fchange", resp.Header.Get("Location"))

	_, body := s.get(t, "/login")
	assert.Contains(t, body, "Please log-in first.")
}

func TestPost_RequiresCSRFToken(t *testing.T) {
	s := newTestServer(t)

	resp, err := s.client.PostForm(s.URL+"/login", url.Values{"email": {"a"}, "password": {"b"}})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestNotFound(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.get(t, "/no/such/page")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, "Page not found")
	assert.NotEmpty(t, resp.Header.Get("Content-Security-Policy"))
}

func TestLogout(t *testing.T) {
	s := newTestServer(t)
	s.user(t, "Alice Example", "alice@example.org", "correct horse battery", nil)

	s.get(t, "/login")
	s.post(t, "/login", url.Values{"email": {"alice@example.org"}, "password": {"correct horse battery"}})

	resp, _ := s.post(t, "/logout", url.Values{})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

	_, body := s.get(t, "/")
	assert.Contains(t, body, "You are not logged in.")
}

func TestPasswordReset(t *testing.T) {
	s := newTestServer(t)
	s.user(t, "Alice Example", "alice@example.org", "correct horse battery", nil)

	s.get(t, "/password/reset")
	resp, _ := s.post(t, "/password/reset", url.Values{"email": {"nobody@example.org"}})
	assert.Equal(t, "/password/reset", resp.Header.Get("Location"))
	_, body := s.get(t, "/password/reset")
	assert.Contains(t, body, "We could not find a user with the e-mail address you entered.")

	resp, _ = s.post(t, "/password/reset", url.Values{"email": {"alice@example.org"}})
	assert.Equal(t, "/login", resp.Header.Get("Location"))
	require.Len(t, s.mailer.tokens, 1)
	token := s.mailer.tokens[0]

	_, body = s.get(t, "/password/reset/"+token)
	assert.Contains(t, body, "alice@example.org")

	resp, _ = s.post(t, "/password/reset/"+token, url.Values{"password": {"short"}, "password_confirmation": {"short"}})
	assert.Equal(t, "/password/reset/"+token, resp.Header.Get("Location"))
	_, body = s.get(t, "/password/reset/"+token)
	assert.Contains(t, body, "Your new password should be at least 10 characters long.")

	form := url.Values{"password": {"a brand new password"}, "password_confirmation": {"a brand new password"}}
	resp, _ = s.post(t, "/password/reset/"+token, form)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	resp, _ = s.post(t, "/password/reset/"+token, form)
	assert.Equal(t, "/password/reset", resp.Header.Get("Location"))

	s.get(t, "/login")
	resp, _ = s.post(t, "/login", url.Values{"email": {"alice@example.org"}, "password": {"a brand new password"}})
	assert.Equal(t, "/", resp.Header.Get("Location"))
}

func twoFactorUser(t *testing.T, s *testServer) *model.User {
	t.Helper()

	key, err := totp.Generate(totp.GenerateOpts{Issuer: "Proto", AccountName: "bob@example.org"})
	require.NoError(t, err)
	secret := key.Secret()
	return s.user(t, "Bob Example", "bob@example.org", "correct horse battery", &secret)
}

func TestLogin_TwoFactorCanBeCancelled(t *testing.T) {
	s := newTestServer(t)
	twoFactorUser(t, s)

	s.get(t, "/login")
	s.post(t, "/login", url.Values{"email": {"bob@example.org"}, "password": {"correct horse battery"}})

	_, body := s.get(t, "/login")
	assert.Contains(t, body, `name="2fa_totp_token"`)
	assert.Contains(t, body, `action="/login/cancel"`)

	resp, _ := s.post(t, "/login/cancel", url.Values{})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	_, body = s.get(t, "/login")
	assert.Contains(t, body, `name="password"`)
	assert.NotContains(t, body, `name="2fa_totp_token"`)
}

func TestLogin_TwoFactorChallengeExpires(t *testing.T) {
	s := newTestServer(t)
	bob := twoFactorUser(t, s)

	s.get(t, "/login")
	stale := &session.Data{}
	stale.StartTwoFactor(bob.ID, time.Now().Add(-session.PendingTTL-time.Minute))
	s.setSession(t, stale)

	_, body := s.get(t, "/login")
	assert.Contains(t, body, `name="password"`)
	assert.NotContains(t, body, `name="2fa_totp_token"`)

	s.setSession(t, stale)
	code, err := totp.GenerateCode(*bob.TOTPSecret, time.Now())
	require.NoError(t, err)
	resp, _ := s.post(t, "/login", url.Values{"2fa_totp_token": {code}})
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	_, body = s.get(t, "/login")
	assert.Contains(t, body, "Your login attempt has expired. Please log in again.")
	_, body = s.get(t, "/")
	assert.Contains(t, body, "You are not logged in.")
}
