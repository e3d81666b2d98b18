package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/saproto/identity/internal/ctxkeys"
	"github.com/saproto/identity/internal/session"
)

// sessionHelper bundles the session store with the flash-and-redirect pattern
// every form handler uses.
type sessionHelper struct {
	store session.Store
}

func (s sessionHelper) data(r *http.Request) *session.Data {
	return ctxkeys.Session(r.Context())
}

func (s sessionHelper) save(w http.ResponseWriter, data *session.Data) {
	err := s.store.Save(w, data)
	if err != nil {
		slog.Error("failed to save session", "error", err)
	}
}

// flash returns the pending flash message and persists its removal.
func (s sessionHelper) flash(w http.ResponseWriter, r *http.Request) string {
	data := s.data(r)
	msg := data.TakeFlash()
	if msg != "" {
		s.save(w, data)
	}
	return msg
}

func (s sessionHelper) redirectWithFlash(w http.ResponseWriter, r *http.Request, path, msg string) {
	data := s.data(r)
	data.Flash = msg
	s.save(w, data)
	http.Redirect(w, r, path, http.StatusSeeOther)
}

// localPath accepts only same-site absolute paths as redirect targets.
func localPath(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	return next
}
