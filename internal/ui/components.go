package ui

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"
	"github.com/saproto/identity/internal/ctxkeys"
)

const (
	inputClass  = "block w-full rounded-md border border-gray-300 px-3 py-2 text-sm focus:border-orange-500 focus:outline-none"
	buttonClass = "inline-flex w-full justify-center rounded-md bg-orange-600 px-4 py-2 text-sm font-semibold text-white hover:bg-orange-700"
	linkClass   = "text-sm text-orange-700 hover:underline"
)

// writer accumulates the first write error so components can emit markup
// without checking every call.
type writer struct {
	w   io.Writer
	err error
}

func (w *writer) raw(s string) {
	if w.err != nil {
		return
	}
	_, w.err = io.WriteString(w.w, s)
}

func (w *writer) text(s string) {
	w.raw(templ.EscapeString(s))
}

func (w *writer) rawf(format string, args ...any) {
	if w.err != nil {
		return
	}
	_, w.err = fmt.Fprintf(w.w, format, args...)
}

func (w *writer) component(ctx context.Context, c templ.Component) {
	if w.err != nil || c == nil {
		return
	}
	w.err = c.Render(ctx, w.w)
}

// Field is one labelled form input.
type Field struct {
	Label        string
	Name         string
	Type         string
	Value        string
	Autocomplete string
	Autofocus    bool
}

func (w *writer) field(f Field) {
	typ := f.Type
	if typ == "" {
		typ = "text"
	}
	w.raw(`<div class="mb-4"><label class="mb-1 block text-sm font-medium" for="`)
	w.text(f.Name)
	w.raw(`">`)
	w.text(f.Label)
	w.raw(`</label><input class="`)
	w.text(inputClass)
	w.raw(`" id="`)
	w.text(f.Name)
	w.raw(`" name="`)
	w.text(f.Name)
	w.raw(`" type="`)
	w.text(typ)
	w.raw(`" value="`)
	w.text(f.Value)
	w.raw(`"`)
	if f.Autocomplete != "" {
		w.raw(` autocomplete="`)
		w.text(f.Autocomplete)
		w.raw(`"`)
	}
	if f.Autofocus {
		w.raw(` autofocus`)
	}
	w.raw(` required></div>`)
}

// form renders a POST form with the CSRF token, the given fields and a
// submit button.
func (w *writer) form(ctx context.Context, action, submit string, fields ...Field) {
	w.raw(`<form method="post" action="`)
	w.text(action)
	w.raw(`"><input type="hidden" name="csrf_token" value="`)
	w.text(ctxkeys.CSRFToken(ctx))
	w.raw(`">`)
	for _, f := range fields {
		w.field(f)
	}
	w.raw(`<button type="submit" class="`)
	w.text(buttonClass)
	w.raw(`">`)
	w.text(submit)
	w.raw(`</button></form>`)
}

func (w *writer) link(href, label string) {
	w.raw(`<a class="`)
	w.text(linkClass)
	w.raw(`" href="`)
	w.text(href)
	w.raw(`">`)
	w.text(label)
	w.raw(`</a>`)
}

// flash renders a notice. Messages are trusted markup written by handlers,
// as some carry emphasis.
func (w *writer) flash(message string) {
	if message == "" {
		return
	}
	w.raw(`<div role="alert" class="mb-4 rounded-md border border-orange-200 bg-orange-50 p-3 text-sm text-orange-900">`)
	w.raw(message)
	w.raw(`</div>`)
}
