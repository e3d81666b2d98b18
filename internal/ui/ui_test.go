package ui

import (
	"bytes"
	"context"
	"testing"

	"github.com/a-h/templ"
	"github.com/saproto/identity/internal/ctxkeys"
	"github.com/saproto/identity/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func render(t *testing.T, ctx context.Context, c templ.Component) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, c.Render(ctx, &buf))
	return buf.String()
}

func TestLogin_CarriesCSRFTokenAndEscapes(t *testing.T) {
	ctx := ctxkeys.WithCSRFToken(context.Background(), "tok123")

	html := render(t, ctx, Login("Invalid username of password provided.", `"><script>`, "/password/sync"))
	assert.Contains(t, html, `name="csrf_token" value="tok123"`)
	assert.Contains(t, html, `Invalid username of password provided.`)
	assert.Contains(t, html, `action="/login?next=%2Fpassword%2Fsync"`)
	assert.NotContains(t, html, `"><script>`)
}

func TestSAMLPost_UsesNonce(t *testing.T) {
	ctx := templ.WithNonce(context.Background(), "n0nce")

	html := render(t, ctx, SAMLPost("https://sp.example.org/acs", "PHJlc3BvbnNlLz4=", "relay"))
	assert.Contains(t, html, `action="https://sp.example.org/acs"`)
	assert.Contains(t, html, `name="SAMLResponse" value="PHJlc3BvbnNlLz4="`)
	assert.Contains(t, html, `name="RelayState" value="relay"`)
	assert.Contains(t, html, `<script nonce="n0nce">`)
}

func TestHome_MemberLinks(t *testing.T) {
	user := &model.User{Name: "Alice Example", Email: "alice@example.org"}

	html := render(t, context.Background(), Home("", user, &model.Member{ProtoUsername: "alice"}))
	assert.Contains(t, html, "/password/sync")
	assert.Contains(t, html, "<strong>alice</strong>")

	html = render(t, context.Background(), Home("", user, nil))
	assert.NotContains(t, html, "/password/sync")
	assert.Contains(t, html, "/becomeamember")
}

func TestClass_MergesConflicts(t *testing.T) {
	merged := Class("px-2 bg-red-600", "px-4")
	assert.Contains(t, merged, "px-4")
	assert.Contains(t, merged, "bg-red-600")
	assert.NotContains(t, merged, "px-2")
}

func TestLayout_Nav(t *testing.T) {
	ctx := ctxkeys.WithURLPath(context.Background(), "/password/reset")
	html := render(t, ctx, NotFound())
	assert.Contains(t, html, `href="/login?next=%2Fpassword%2Freset"`)

	ctx = ctxkeys.WithUser(ctx, &model.User{Name: "Alice Example"})
	html = render(t, ctx, NotFound())
	assert.Contains(t, html, `href="/"`)
	assert.NotContains(t, html, `next=`)
}
