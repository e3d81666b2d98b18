package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// roundTrip saves data with one store and loads it back through a request
// carrying the resulting cookie.
func roundTrip(t *testing.T, save, load *CookieStore, data *Data) *Data {
	t.Helper()

	rec := httptest.NewRecorder()
	require.NoError(t, save.Save(rec, data))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	return load.Load(req)
}

func TestCookieStore_RoundTrip(t *testing.T) {
	store := NewCookieStore("secret", time.Hour, false)

	got := roundTrip(t, store, store, &Data{
		PendingUserID: 7,
		SAMLRequest:   "fZJNT8MwDIbv",
		RelayState:    "https://wiki.example.org/page",
		Flash:         "hello",
	})

	assert.Equal(t, int64(7), got.PendingUserID)
	assert.False(t, got.Authenticated())
	assert.Equal(t, "fZJNT8MwDIbv", got.SAMLRequest)
	assert.Equal(t, "https://wiki.example.org/page", got.RelayState)
	assert.Equal(t, "hello", got.Flash)
}

func TestCookieStore_RejectsForeignSignature(t *testing.T) {
	got := roundTrip(t,
		NewCookieStore("attacker", time.Hour, false),
		NewCookieStore("secret", time.Hour, false),
		&Data{UserID: 1},
	)
	assert.False(t, got.Authenticated())
}

func TestCookieStore_RejectsExpired(t *testing.T) {
	got := roundTrip(t,
		NewCookieStore("secret", -time.Minute, false),
		NewCookieStore("secret", time.Hour, false),
		&Data{UserID: 1},
	)
	assert.False(t, got.Authenticated())
}

func TestCookieStore_MissingCookie(t *testing.T) {
	store := NewCookieStore("secret", time.Hour, false)
	got := store.Load(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, &Data{}, got)
}

func TestCookieStore_Clear(t *testing.T) {
	store := NewCookieStore("secret", time.Hour, true)
	rec := httptest.NewRecorder()
	store.Clear(rec)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, cookieName, cookies[0].Name)
	assert.Empty(t, cookies[0].Value)
	assert.True(t, cookies[0].Secure)
}

func TestData_Transitions(t *testing.T) {
	d := &Data{PendingUserID: 3, SAMLRequest: "req", RelayState: "rs", Flash: "msg"}

	d.Authenticate(3)
	assert.Equal(t, int64(3), d.UserID)
	assert.Zero(t, d.PendingUserID)

	req, rs := d.TakeSAMLRequest()
	assert.Equal(t, "req", req)
	assert.Equal(t, "rs", rs)
	assert.Empty(t, d.SAMLRequest)

	assert.Equal(t, "msg", d.TakeFlash())
	assert.Empty(t, d.TakeFlash())
}

func TestData_PendingTwoFactorExpires(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	d := &Data{}

	d.StartTwoFactor(9, start)
	assert.Equal(t, int64(9), d.PendingUser(start.Add(PendingTTL)))

	assert.Zero(t, d.PendingUser(start.Add(PendingTTL+time.Second)))
	assert.Zero(t, d.PendingUserID)
	assert.Zero(t, d.PendingSince)
}

func TestData_CancelTwoFactor(t *testing.T) {
	d := &Data{}
	d.StartTwoFactor(9, time.Now())

	d.CancelTwoFactor()
	assert.Zero(t, d.PendingUser(time.Now()))
}
