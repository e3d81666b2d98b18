package ui

import (
	"context"
	"io"
	"net/url"

	"github.com/a-h/templ"
	"github.com/saproto/identity/internal/model"
)

func Login(flash, username, next string) templ.Component {
	return page("Log in", func(ctx context.Context, w *writer) {
		w.flash(flash)
		action := "/login"
		if next != "" {
			action += "?next=" + url.QueryEscape(next)
		}
		w.form(ctx, action, "Log in",
			Field{Label: "Username or e-mail", Name: "email", Value: username, Autocomplete: "username", Autofocus: username == ""},
			Field{Label: "Password", Name: "password", Type: "password", Autocomplete: "current-password", Autofocus: username != ""},
		)
		w.raw(`<div class="mt-4 flex justify-between">`)
		w.link("/password/reset", "Forgot your password?")
		w.link("/login/username", "Forgot your username?")
		w.raw(`</div>`)
	})
}

func TwoFactor(flash string) templ.Component {
	return page("Two-factor authentication", func(ctx context.Context, w *writer) {
		w.flash(flash)
		w.raw(`<p class="mb-4 text-sm">Enter the code from your authenticator app.</p>`)
		w.form(ctx, "/login", "Verify",
			Field{Label: "Code", Name: "2fa_totp_token", Autocomplete: "one-time-code", Autofocus: true},
		)
		w.raw(`<div class="mt-4">`)
		w.form(ctx, "/login/cancel", "Use another account")
		w.raw(`</div>`)
	})
}

func UsernameRequest(flash string) templ.Component {
	return page("Forgot your username?", func(ctx context.Context, w *writer) {
		w.flash(flash)
		w.form(ctx, "/login/username", "Send",
			Field{Label: "E-mail address", Name: "email", Type: "email", Autocomplete: "email", Autofocus: true},
		)
		w.raw(`<div class="mt-4">`)
		w.link("/login", "Back to login")
		w.raw(`</div>`)
	})
}

func PasswordResetRequest(flash string) templ.Component {
	return page("Reset your password", func(ctx context.Context, w *writer) {
		w.flash(flash)
		w.form(ctx, "/password/reset", "Send reset link",
			Field{Label: "E-mail address", Name: "email", Type: "email", Autocomplete: "email", Autofocus: true},
		)
		w.raw(`<div class="mt-4">`)
		w.link("/login", "Back to login")
		w.raw(`</div>`)
	})
}

func PasswordResetForm(flash string, reset *model.PasswordReset) templ.Component {
	return page("Choose a new password", func(ctx context.Context, w *writer) {
		w.flash(flash)
		w.raw(`<p class="mb-4 text-sm">Setting a new password for `)
		w.text(reset.Email)
		w.raw(`.</p>`)
		w.form(ctx, "/password/reset/"+reset.Token, "Set password",
			Field{Label: "New password", Name: "password", Type: "password", Autocomplete: "new-password", Autofocus: true},
			Field{Label: "Repeat new password", Name: "password_confirmation", Type: "password", Autocomplete: "new-password"},
		)
	})
}

func PasswordChange(flash string) templ.Component {
	return page("Change your password", func(ctx context.Context, w *writer) {
		w.flash(flash)
		w.form(ctx, "/password/change", "Change password",
			Field{Label: "Current password", Name: "old_password", Type: "password", Autocomplete: "current-password", Autofocus: true},
			Field{Label: "New password", Name: "new_password1", Type: "password", Autocomplete: "new-password"},
			Field{Label: "Repeat new password", Name: "new_password2", Type: "password", Autocomplete: "new-password"},
		)
	})
}

func PasswordSync(flash string) templ.Component {
	return page("Synchronize your password", func(ctx context.Context, w *writer) {
		w.flash(flash)
		w.raw(`<p class="mb-4 text-sm">Enter your password to copy it to your Proto account on the member systems.</p>`)
		w.form(ctx, "/password/sync", "Synchronize",
			Field{Label: "Password", Name: "password", Type: "password", Autocomplete: "current-password", Autofocus: true},
		)
	})
}

func Home(flash string, user *model.User, member *model.Member) templ.Component {
	return page("Proto account", func(ctx context.Context, w *writer) {
		w.flash(flash)
		if user == nil {
			w.raw(`<p class="mb-4 text-sm">You are not logged in.</p>`)
			w.link("/login", "Log in")
			return
		}

		w.raw(`<p class="mb-2 text-sm">Logged in as <strong>`)
		w.text(user.Name)
		w.raw(`</strong> (`)
		w.text(user.Email)
		w.raw(`).</p>`)
		if member != nil {
			w.raw(`<p class="mb-4 text-sm">Your Proto username is <strong>`)
			w.text(member.ProtoUsername)
			w.raw(`</strong>.</p>`)
		} else {
			w.raw(`<p class="mb-4 text-sm">`)
			w.link("/becomeamember", "You are not a member yet.")
			w.raw(`</p>`)
		}

		w.raw(`<ul class="mb-6 space-y-2">`)
		w.raw(`<li>`)
		w.link("/password/change", "Change password")
		w.raw(`</li>`)
		if member != nil {
			w.raw(`<li>`)
			w.link("/password/sync", "Synchronize password")
			w.raw(`</li>`)
		}
		w.raw(`</ul>`)
		w.form(ctx, "/logout", "Log out")
	})
}

func BecomeMember(flash string) templ.Component {
	return page("Become a member", func(ctx context.Context, w *writer) {
		w.flash(flash)
		w.raw(`<p class="text-sm">Single sign-on and the member systems are available to members of S.A. Proto. Visit the association's website to sign up.</p>`)
	})
}

func Error(message string) templ.Component {
	return page("Something went wrong", func(ctx context.Context, w *writer) {
		w.raw(`<p class="mb-4 text-sm">`)
		w.text(message)
		w.raw(`</p>`)
		w.link("/", "Back to start")
	})
}

func NotFound() templ.Component {
	return page("Page not found", func(ctx context.Context, w *writer) {
		w.raw(`<p class="mb-4 text-sm">The page you are looking for does not exist.</p>`)
		w.link("/", "Back to start")
	})
}

// SAMLPost is the HTTP-POST binding page: a form carrying the response to the
// service provider, submitted by a nonce-bearing script.
func SAMLPost(destination, samlResponse, relayState string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, out io.Writer) error {
		w := &writer{w: out}
		w.raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><title>Signing in</title></head><body>`)
		w.raw(`<form id="saml-post" method="post" action="`)
		w.text(destination)
		w.raw(`"><input type="hidden" name="SAMLResponse" value="`)
		w.text(samlResponse)
		w.raw(`">`)
		if relayState != "" {
			w.raw(`<input type="hidden" name="RelayState" value="`)
			w.text(relayState)
			w.raw(`">`)
		}
		w.raw(`<noscript><button type="submit">Continue</button></noscript></form>`)
		w.raw(`<script nonce="`)
		w.text(templ.GetNonce(ctx))
		w.raw(`">document.getElementById("saml-post").submit();</script></body></html>`)
		return w.err
	})
}
