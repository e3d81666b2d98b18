package handler

import (
	"errors"
	"html"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/saproto/identity/internal/ctxkeys"
	"github.com/saproto/identity/internal/idp"
	"github.com/saproto/identity/internal/model"
	"github.com/saproto/identity/internal/repository"
	"github.com/saproto/identity/internal/service"
	"github.com/saproto/identity/internal/session"
	"github.com/saproto/identity/internal/ui"
)

const (
	msgInvalidCredentials = "Invalid username of password provided."
	msgInvalidCode        = "Your code is invalid. Please try again."
	msgIncompleteCode     = "Please complete the requested challenge."
	msgSSONotMember       = "Only members can use the Proto SSO. You only have a user account."
	msgUnknownSP          = "You are using an unknown Service Provider. Please contact the System Administrators to get your Service Provider whitelisted for Proto SSO."
	msgUsernameNotMember  = "Only members have a Proto username. You can login using your e-mail address."
	msgUsernameNotFound   = "We could not find a user with that e-mail address."
	msgChallengeExpired   = "Your login attempt has expired. Please log in again."
)

// maxStashedRequest keeps the session cookie under the browser size limit.
const maxStashedRequest = 3072

// SAMLResponder answers a federation request for an authenticated user.
type SAMLResponder interface {
	Respond(user *model.User, member *model.Member, rawRequest, relayState string) (*idp.PostResponse, error)
}

type authHandler struct {
	sessionHelper
	authService *service.AuthService
	idp         SAMLResponder // nil when no identity provider is configured
}

func NewAuthHandler(authService *service.AuthService, store session.Store, responder SAMLResponder) *authHandler {
	return &authHandler{
		sessionHelper: sessionHelper{store: store},
		authService:   authService,
		idp:           responder,
	}
}

func (h *authHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	data := h.data(r)
	samlRequest := r.URL.Query().Get("SAMLRequest")
	relayState := r.URL.Query().Get("RelayState")

	if user := ctxkeys.User(r.Context()); user != nil {
		if samlRequest != "" {
			h.respondSAML(w, r, user, ctxkeys.Member(r.Context()), samlRequest, relayState)
			return
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	if samlRequest != "" {
		if len(samlRequest)+len(relayState) > maxStashedRequest {
			slog.Warn("saml request too large to stash", "size", len(samlRequest))
			ui.RenderStatus(w, r, http.StatusRequestEntityTooLarge, ui.Error("The sign-in request from this service is too large."))
			return
		}
		data.SAMLRequest = samlRequest
		data.RelayState = relayState
	}

	if data.PendingUser(time.Now()) != 0 {
		flash := data.TakeFlash()
		h.save(w, data)
		ui.Render(w, r, ui.TwoFactor(flash))
		return
	}

	flash := data.TakeFlash()
	username := data.Username
	data.Username = ""
	h.save(w, data)

	ui.Render(w, r, ui.Login(flash, username, r.URL.Query().Get("next")))
}

// Login handles both the credentials form and the second-factor form.
func (h *authHandler) Login(w http.ResponseWriter, r *http.Request) {
	if ctxkeys.User(r.Context()) != nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	err := r.ParseForm()
	if err != nil {
		h.redirectWithFlash(w, r, "/login", msgInvalidCredentials)
		return
	}

	if _, ok := r.PostForm["2fa_totp_token"]; ok {
		h.submitTwoFactor(w, r)
		return
	}

	data := h.data(r)
	data.CancelTwoFactor()

	result, err := h.authService.Login(r.Context(), r.PostFormValue("email"), r.PostFormValue("password"))
	if err != nil {
		if !errors.Is(err, service.ErrInvalidCredentials) {
			slog.Error("login failed", "error", err)
		}
		data.Username = strings.TrimSpace(r.PostFormValue("email"))
		h.redirectWithFlash(w, r, "/login", msgInvalidCredentials)
		return
	}

	if result.State == service.LoginTwoFactorRequired {
		data.StartTwoFactor(result.User.ID, time.Now())
		h.save(w, data)
		ui.Render(w, r, ui.TwoFactor(""))
		return
	}

	h.completeLogin(w, r, result.User)
}

func (h *authHandler) submitTwoFactor(w http.ResponseWriter, r *http.Request) {
	data := h.data(r)

	pending := data.PendingUser(time.Now())
	user, err := h.authService.SubmitTwoFactor(r.Context(), pending, r.PostFormValue("2fa_totp_token"))
	switch {
	case err == nil:
		h.completeLogin(w, r, user)
	case errors.Is(err, service.ErrInvalidTwoFactorCode):
		ui.Render(w, r, ui.TwoFactor(msgInvalidCode))
	case errors.Is(err, service.ErrChallengeIncomplete):
		ui.Render(w, r, ui.TwoFactor(msgIncompleteCode))
	case errors.Is(err, service.ErrNoPendingLogin):
		data.CancelTwoFactor()
		h.redirectWithFlash(w, r, "/login", msgChallengeExpired)
	default:
		slog.Error("two-factor verification failed", "error", err, "user_id", pending)
		ui.RenderStatus(w, r, http.StatusInternalServerError, ui.Error("An error occurred. Please try again."))
	}
}

// completeLogin logs the user in and either answers a stashed federation
// request or continues to the requested page.
func (h *authHandler) completeLogin(w http.ResponseWriter, r *http.Request, user *model.User) {
	data := h.data(r)
	data.Authenticate(user.ID)
	samlRequest, relayState := data.TakeSAMLRequest()

	slog.Info("user logged in", "user_id", user.ID)

	if samlRequest == "" {
		h.save(w, data)
		http.Redirect(w, r, localPath(r.URL.Query().Get("next")), http.StatusSeeOther)
		return
	}

	member, err := h.authService.Member(r.Context(), user)
	if err != nil {
		slog.Error("failed to load membership", "user_id", user.ID, "error", err)
	}
	h.save(w, data)
	h.respondSAML(w, r, user, member, samlRequest, relayState)
}

func (h *authHandler) respondSAML(w http.ResponseWriter, r *http.Request, user *model.User, member *model.Member, samlRequest, relayState string) {
	if h.idp == nil {
		ui.RenderStatus(w, r, http.StatusNotFound, ui.Error("Single sign-on is not available."))
		return
	}

	resp, err := h.idp.Respond(user, member, samlRequest, relayState)
	switch {
	case err == nil:
		ui.Render(w, r, ui.SAMLPost(resp.Destination, resp.SAMLResponse, resp.RelayState))
	case errors.Is(err, idp.ErrNotMember):
		h.redirectWithFlash(w, r, "/becomeamember", msgSSONotMember)
	case errors.Is(err, idp.ErrUnknownServiceProvider):
		h.redirectWithFlash(w, r, "/login", msgUnknownSP)
	case errors.Is(err, idp.ErrMalformedRequest):
		slog.Warn("malformed saml request", "error", err, "user_id", user.ID)
		ui.RenderStatus(w, r, http.StatusBadRequest, ui.Error("The sign-in request could not be read."))
	default:
		slog.Error("failed to build saml response", "error", err, "user_id", user.ID)
		ui.RenderStatus(w, r, http.StatusInternalServerError, ui.Error("An error occurred. Please try again."))
	}
}

// CancelTwoFactor drops a pending second-factor challenge so another
// account can log in.
func (h *authHandler) CancelTwoFactor(w http.ResponseWriter, r *http.Request) {
	data := h.data(r)
	data.CancelTwoFactor()
	h.save(w, data)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *authHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.store.Clear(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *authHandler) UsernamePage(w http.ResponseWriter, r *http.Request) {
	ui.Render(w, r, ui.UsernameRequest(h.flash(w, r)))
}

func (h *authHandler) RequestUsername(w http.ResponseWriter, r *http.Request) {
	username, err := h.authService.RequestUsername(r.Context(), r.FormValue("email"))
	switch {
	case err == nil:
		data := h.data(r)
		data.Username = username
		h.redirectWithFlash(w, r, "/login", "Your Proto username is <strong>"+html.EscapeString(username)+"</strong>")
	case errors.Is(err, service.ErrNotMember):
		h.redirectWithFlash(w, r, "/login", msgUsernameNotMember)
	case errors.Is(err, repository.ErrUserNotFound):
		h.redirectWithFlash(w, r, "/login", msgUsernameNotFound)
	default:
		slog.Error("username request failed", "error", err)
		ui.RenderStatus(w, r, http.StatusInternalServerError, ui.Error("An error occurred. Please try again."))
	}
}
