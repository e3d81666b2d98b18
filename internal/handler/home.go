package handler

import (
	"net/http"

	"github.com/saproto/identity/internal/ctxkeys"
	"github.com/saproto/identity/internal/session"
	"github.com/saproto/identity/internal/ui"
)

type HomeHandler struct {
	sessionHelper
}

func NewHomeHandler(store session.Store) *HomeHandler {
	return &HomeHandler{sessionHelper: sessionHelper{store: store}}
}

func (h *HomeHandler) HomePage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ui.Render(w, r, ui.Home(h.flash(w, r), ctxkeys.User(ctx), ctxkeys.Member(ctx)))
}

func (h *HomeHandler) BecomeMemberPage(w http.ResponseWriter, r *http.Request) {
	ui.Render(w, r, ui.BecomeMember(h.flash(w, r)))
}

func (h *HomeHandler) NotFoundPage(w http.ResponseWriter, r *http.Request) {
	ui.RenderStatus(w, r, http.StatusNotFound, ui.NotFound())
}
