// Package session keeps per-browser login state in a signed cookie.
package session

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const cookieName = "proto_session"

// PendingTTL is how long a passed password step waits for its second factor.
const PendingTTL = 5 * time.Minute

// Data is everything the login flow remembers between requests.
type Data struct {
	UserID        int64  `json:"uid,omitempty"`
	PendingUserID int64  `json:"pending_uid,omitempty"` // passed the password step, 2FA outstanding
	PendingSince  int64  `json:"pending_at,omitempty"`  // unix seconds when the password step passed
	SAMLRequest   string `json:"saml_request,omitempty"`
	RelayState    string `json:"relay_state,omitempty"`
	Flash         string `json:"flash,omitempty"`
	Username      string `json:"username,omitempty"` // login form prefill
}

func (d *Data) Authenticated() bool {
	return d.UserID != 0
}

// Authenticate marks the user as logged in and drops the pending challenge.
func (d *Data) Authenticate(userID int64) {
	d.UserID = userID
	d.CancelTwoFactor()
}

// StartTwoFactor records that userID passed the password step at now.
func (d *Data) StartTwoFactor(userID int64, now time.Time) {
	d.PendingUserID = userID
	d.PendingSince = now.Unix()
}

// PendingUser returns the user waiting for a second factor. A challenge
// older than PendingTTL is dropped and yields 0.
func (d *Data) PendingUser(now time.Time) int64 {
	if d.PendingUserID == 0 {
		return 0
	}
	if now.Sub(time.Unix(d.PendingSince, 0)) > PendingTTL {
		d.CancelTwoFactor()
		return 0
	}
	return d.PendingUserID
}

func (d *Data) CancelTwoFactor() {
	d.PendingUserID = 0
	d.PendingSince = 0
}

// TakeFlash returns the flash message and clears it.
func (d *Data) TakeFlash() string {
	msg := d.Flash
	d.Flash = ""
	return msg
}

// TakeSAMLRequest returns the stashed federation request and clears it.
func (d *Data) TakeSAMLRequest() (request, relayState string) {
	request, relayState = d.SAMLRequest, d.RelayState
	d.SAMLRequest = ""
	d.RelayState = ""
	return request, relayState
}

type Store interface {
	Load(r *http.Request) *Data
	Save(w http.ResponseWriter, data *Data) error
	Clear(w http.ResponseWriter)
}

type claims struct {
	jwt.RegisteredClaims
	Data
}

// CookieStore serialises Data into an HS256-signed JWT cookie.
type CookieStore struct {
	secret []byte
	expiry time.Duration
	secure bool
}

func NewCookieStore(secret string, expiry time.Duration, secure bool) *CookieStore {
	return &CookieStore{
		secret: []byte(secret),
		expiry: expiry,
		secure: secure,
	}
}

// Load returns the session for the request. A missing, expired or tampered
// cookie yields an empty session.
func (s *CookieStore) Load(r *http.Request) *Data {
	cookie, err := r.Cookie(cookieName)
	if err != nil || cookie.Value == "" {
		return &Data{}
	}

	data, err := s.decode(cookie.Value)
	if err != nil {
		return &Data{}
	}
	return data
}

func (s *CookieStore) Save(w http.ResponseWriter, data *Data) error {
	value, err := s.encode(data)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    value,
		Expires:  time.Now().Add(s.expiry),
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (s *CookieStore) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *CookieStore) encode(data *Data) (string, error) {
	now := time.Now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
		Data: *data,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session: %w", err)
	}
	return signed, nil
}

func (s *CookieStore) decode(value string) (*Data, error) {
	var c claims
	token, err := jwt.ParseWithClaims(value, &c, func(token *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid session token")
	}

	data := c.Data
	return &data, nil
}
