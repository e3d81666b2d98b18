package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/saproto/identity/internal/ctxkeys"
	"github.com/saproto/identity/internal/repository"
	"github.com/saproto/identity/internal/service"
	"github.com/saproto/identity/internal/session"
	"github.com/saproto/identity/internal/ui"
	"github.com/saproto/identity/internal/validation"
)

const (
	msgResetUnknownEmail = "We could not find a user with the e-mail address you entered."
	msgResetDispatched   = "We've dispatched an e-mail to you with instruction to reset your password."
	msgResetTokenInvalid = "This reset token does not exist or has expired."
	msgPasswordChanged   = "Your password has been changed."
	msgOldPassword       = "Old password incorrect."
	msgSyncPassword      = "Password incorrect."
	msgPasswordSynced    = "Your password was successfully synchronized."
	msgGenericError      = "An error occurred. Please try again."
)

type passwordHandler struct {
	sessionHelper
	authService *service.AuthService
}

func NewPasswordHandler(authService *service.AuthService, store session.Store) *passwordHandler {
	return &passwordHandler{
		sessionHelper: sessionHelper{store: store},
		authService:   authService,
	}
}

// validationMessage maps a new-password rule violation to its notice. The
// second result is false for errors that are not rule violations.
func validationMessage(err error) (string, bool) {
	switch {
	case errors.Is(err, validation.ErrPasswordMismatch):
		return "Your passwords don't match.", true
	case errors.Is(err, validation.ErrPasswordTooShort):
		return "Your new password should be at least 10 characters long.", true
	case errors.Is(err, validation.ErrPasswordTooLong):
		return "Your new password should be at most 72 bytes long.", true
	}
	return "", false
}

func (h *passwordHandler) ResetRequestPage(w http.ResponseWriter, r *http.Request) {
	ui.Render(w, r, ui.PasswordResetRequest(h.flash(w, r)))
}

func (h *passwordHandler) RequestReset(w http.ResponseWriter, r *http.Request) {
	err := h.authService.RequestPasswordReset(r.Context(), r.FormValue("email"))
	switch {
	case err == nil:
		h.redirectWithFlash(w, r, "/login", msgResetDispatched)
	case errors.Is(err, repository.ErrUserNotFound):
		h.redirectWithFlash(w, r, "/password/reset", msgResetUnknownEmail)
	default:
		slog.Error("password reset request failed", "error", err)
		h.redirectWithFlash(w, r, "/password/reset", msgGenericError)
	}
}

func (h *passwordHandler) ResetPage(w http.ResponseWriter, r *http.Request) {
	reset, err := h.authService.PasswordResetByToken(r.Context(), r.PathValue("token"))
	if err != nil {
		if !errors.Is(err, service.ErrResetTokenInvalid) {
			slog.Error("password reset lookup failed", "error", err)
		}
		h.redirectWithFlash(w, r, "/password/reset", msgResetTokenInvalid)
		return
	}

	ui.Render(w, r, ui.PasswordResetForm(h.flash(w, r), reset))
}

func (h *passwordHandler) Reset(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")

	err := h.authService.ResetPassword(r.Context(), token, r.FormValue("password"), r.FormValue("password_confirmation"))
	if err == nil {
		h.redirectWithFlash(w, r, "/login", msgPasswordChanged)
		return
	}
	if msg, ok := validationMessage(err); ok {
		h.redirectWithFlash(w, r, "/password/reset/"+token, msg)
		return
	}
	if !errors.Is(err, service.ErrResetTokenInvalid) {
		slog.Error("password reset failed", "error", err)
	}
	h.redirectWithFlash(w, r, "/password/reset", msgResetTokenInvalid)
}

func (h *passwordHandler) ChangePage(w http.ResponseWriter, r *http.Request) {
	ui.Render(w, r, ui.PasswordChange(h.flash(w, r)))
}

func (h *passwordHandler) Change(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	err := h.authService.ChangePassword(r.Context(), user, r.FormValue("old_password"), r.FormValue("new_password1"), r.FormValue("new_password2"))
	if err == nil {
		h.redirectWithFlash(w, r, "/", msgPasswordChanged)
		return
	}
	if msg, ok := validationMessage(err); ok {
		h.redirectWithFlash(w, r, "/password/change", msg)
		return
	}
	if errors.Is(err, service.ErrInvalidCredentials) {
		h.redirectWithFlash(w, r, "/password/change", msgOldPassword)
		return
	}
	slog.Error("password change failed", "error", err, "user_id", user.ID)
	h.redirectWithFlash(w, r, "/password/change", msgGenericError)
}

func (h *passwordHandler) SyncPage(w http.ResponseWriter, r *http.Request) {
	ui.Render(w, r, ui.PasswordSync(h.flash(w, r)))
}

func (h *passwordHandler) Sync(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	err := h.authService.SyncPassword(r.Context(), user, r.FormValue("password"))
	switch {
	case err == nil:
		h.redirectWithFlash(w, r, "/", msgPasswordSynced)
	case errors.Is(err, service.ErrInvalidCredentials):
		h.redirectWithFlash(w, r, "/password/sync", msgSyncPassword)
	default:
		slog.Error("password sync failed", "error", err, "user_id", user.ID)
		h.redirectWithFlash(w, r, "/password/sync", msgGenericError)
	}
}
