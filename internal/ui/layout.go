package ui

import (
	"context"
	"io"
	"net/url"

	"github.com/a-h/templ"
	"github.com/saproto/identity/internal/ctxkeys"
)

// Layout wraps body in the shared page chrome.
func Layout(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, out io.Writer) error {
		appName := "S.A. Proto"
		if cfg := ctxkeys.Config(ctx); cfg != nil && cfg.AppName != "" {
			appName = cfg.AppName
		}

		w := &writer{w: out}
		w.raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
		w.raw(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
		w.raw(`<meta name="csrf-token" content="`)
		w.text(ctxkeys.CSRFToken(ctx))
		w.raw(`"><title>`)
		w.text(title)
		w.raw(` | `)
		w.text(appName)
		w.raw(`</title><link rel="stylesheet" href="/assets/app.css"></head>`)
		w.raw(`<body class="min-h-screen bg-gray-100 text-gray-900">`)
		nav(ctx, w)
		w.raw(`<main class="`)
		w.text(Class("mx-auto mt-16 max-w-md rounded-lg bg-white p-8 shadow"))
		w.raw(`"><h1 class="mb-6 text-xl font-semibold">`)
		w.text(title)
		w.raw(`</h1>`)
		w.component(ctx, body)
		w.raw(`</main>`)
		if cfg := ctxkeys.Config(ctx); cfg != nil && cfg.SupportEmail != "" {
			w.raw(`<footer class="mt-6 text-center text-xs text-gray-500">Questions? Contact <a href="mailto:`)
			w.text(cfg.SupportEmail)
			w.raw(`">`)
			w.text(cfg.SupportEmail)
			w.raw(`</a>.</footer>`)
		}
		w.raw(`</body></html>`)
		return w.err
	})
}

// nav links back to the account page, or to the login form returning to
// the current page.
func nav(ctx context.Context, w *writer) {
	path := ctxkeys.URLPath(ctx)
	if path == "" {
		return
	}

	w.raw(`<nav class="mx-auto mt-6 flex max-w-md justify-end">`)
	switch {
	case ctxkeys.User(ctx) != nil && path != "/":
		w.link("/", "Your account")
	case ctxkeys.User(ctx) == nil && path != "/login" && path != "/":
		w.link("/login?next="+url.QueryEscape(path), "Log in")
	}
	w.raw(`</nav>`)
}

func page(title string, body func(ctx context.Context, w *writer)) templ.Component {
	return Layout(title, templ.ComponentFunc(func(ctx context.Context, out io.Writer) error {
		w := &writer{w: out}
		body(ctx, w)
		return w.err
	}))
}
