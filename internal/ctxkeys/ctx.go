package ctxkeys

import (
	"context"

	"github.com/saproto/identity/internal/config"
	"github.com/saproto/identity/internal/model"
	"github.com/saproto/identity/internal/session"
)

// contextKey is a type for context keys to avoid collisions
type contextKey string

const (
	UserKey      contextKey = "user"
	MemberKey    contextKey = "member"
	SessionKey   contextKey = "session"
	URLPathKey   contextKey = "url_path"
	ConfigKey    contextKey = "config"
	CSRFTokenKey contextKey = "csrf_token"
)

func User(ctx context.Context) *model.User {
	user, _ := ctx.Value(UserKey).(*model.User)
	return user
}

func WithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, UserKey, user)
}

// Member is nil for logged-in users without a membership.
func Member(ctx context.Context) *model.Member {
	member, _ := ctx.Value(MemberKey).(*model.Member)
	return member
}

func WithMember(ctx context.Context, member *model.Member) context.Context {
	return context.WithValue(ctx, MemberKey, member)
}

// Session returns the request's session, or an empty one when the session
// middleware did not run.
func Session(ctx context.Context) *session.Data {
	data, ok := ctx.Value(SessionKey).(*session.Data)
	if !ok || data == nil {
		return &session.Data{}
	}
	return data
}

func WithSession(ctx context.Context, data *session.Data) context.Context {
	return context.WithValue(ctx, SessionKey, data)
}

func URLPath(ctx context.Context) string {
	path, _ := ctx.Value(URLPathKey).(string)
	return path
}

func WithURLPath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, URLPathKey, path)
}

func Config(ctx context.Context) *config.Config {
	cfg, _ := ctx.Value(ConfigKey).(*config.Config)
	return cfg
}

func WithConfig(ctx context.Context, cfg *config.Config) context.Context {
	return context.WithValue(ctx, ConfigKey, cfg)
}

func CSRFToken(ctx context.Context) string {
	token, _ := ctx.Value(CSRFTokenKey).(string)
	return token
}

func WithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, CSRFTokenKey, token)
}
