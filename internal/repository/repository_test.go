package repository

import (
	"context"
	"testing"
	"time"

	"github.com/saproto/identity/internal/db/dbtest"
	"github.com/saproto/identity/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedUser(t *testing.T, users UserRepository, name, email string) *model.User {
	t.Helper()
	user := &model.User{Name: name, CallingName: name, Email: email}
	require.NoError(t, users.Create(context.Background(), user))
	return user
}

func TestUserRepository_LookupByEmailAndUsername(t *testing.T) {
	database := dbtest.Open(t)
	ctx := context.Background()
	users := NewUserRepository(database)
	members := NewMemberRepository(database)

	alice := seedUser(t, users, "Alice Example", "Alice@Example.org")
	bob := seedUser(t, users, "Bob Builder", "bob@example.org")
	require.NoError(t, members.Create(ctx, &model.Member{UserID: alice.ID, ProtoUsername: "alice"}))

	got, err := users.ByEmail(ctx, "alice@example.org")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)

	got, err = users.ByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)

	_, err = users.ByUsername(ctx, "bob")
	assert.ErrorIs(t, err, ErrUserNotFound)

	memberUsers, err := users.Members(ctx)
	require.NoError(t, err)
	require.Len(t, memberUsers, 1)
	assert.Equal(t, alice.ID, memberUsers[0].ID)

	err = users.Create(ctx, &model.User{Name: "Dup", CallingName: "Dup", Email: bob.Email})
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestPasswordResetRepository_ConsumeOnce(t *testing.T) {
	database := dbtest.Open(t)
	ctx := context.Background()
	resets := NewPasswordResetRepository(database)
	now := time.Now().UTC()

	require.NoError(t, resets.Create(ctx, &model.PasswordReset{Email: "a@example.org", Token: "tok", ValidTo: now.Add(time.Hour)}))

	_, err := resets.ByToken(ctx, "tok", now)
	require.NoError(t, err)

	reset, err := resets.Consume(ctx, "tok", now)
	require.NoError(t, err)
	assert.Equal(t, "a@example.org", reset.Email)

	_, err = resets.Consume(ctx, "tok", now)
	assert.ErrorIs(t, err, ErrPasswordResetNotFound)
	_, err = resets.ByToken(ctx, "tok", now)
	assert.ErrorIs(t, err, ErrPasswordResetNotFound)
}

func TestPasswordResetRepository_ExpiredTokens(t *testing.T) {
	database := dbtest.Open(t)
	ctx := context.Background()
	resets := NewPasswordResetRepository(database)
	now := time.Now().UTC()

	require.NoError(t, resets.Create(ctx, &model.PasswordReset{Email: "a@example.org", Token: "old", ValidTo: now.Add(-time.Minute)}))
	require.NoError(t, resets.Create(ctx, &model.PasswordReset{Email: "a@example.org", Token: "new", ValidTo: now.Add(time.Hour)}))

	_, err := resets.Consume(ctx, "old", now)
	assert.ErrorIs(t, err, ErrPasswordResetNotFound)

	deleted, err := resets.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = resets.ByToken(ctx, "new", now)
	assert.NoError(t, err)
}

func TestEmailRepository_DueAndClaim(t *testing.T) {
	database := dbtest.Open(t)
	ctx := context.Background()
	emails := NewEmailRepository(database)
	now := time.Now().UTC()

	due := &model.Email{Subject: "due", SenderAddress: "board", SenderName: "Board", Body: "hi", Destination: model.DestinationUsers, Ready: true, Time: now.Add(-time.Minute)}
	later := &model.Email{Subject: "later", SenderAddress: "board", SenderName: "Board", Body: "hi", Destination: model.DestinationUsers, Ready: true, Time: now.Add(time.Hour)}
	draft := &model.Email{Subject: "draft", SenderAddress: "board", SenderName: "Board", Body: "hi", Destination: model.DestinationUsers, Time: now.Add(-time.Minute)}
	for _, e := range []*model.Email{due, later, draft} {
		require.NoError(t, emails.Create(ctx, e))
	}

	got, err := emails.Due(ctx, now)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, due.ID, got[0].ID)

	claimed, err := emails.Claim(ctx, due.ID, 3)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = emails.Claim(ctx, due.ID, 3)
	require.NoError(t, err)
	assert.False(t, claimed)

	stored, err := emails.ByID(ctx, due.ID)
	require.NoError(t, err)
	assert.True(t, stored.Sent)
	assert.False(t, stored.Ready)
	assert.Equal(t, 3, stored.SentTo)

	got, err = emails.Due(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEmailRepository_Recipients(t *testing.T) {
	database := dbtest.Open(t)
	ctx := context.Background()
	users := NewUserRepository(database)
	members := NewMemberRepository(database)
	committees := NewCommitteeRepository(database)
	emails := NewEmailRepository(database)

	a := seedUser(t, users, "A", "a@example.org")
	b := seedUser(t, users, "B", "b@example.org")
	seedUser(t, users, "C", "c@example.org")
	require.NoError(t, members.Create(ctx, &model.Member{UserID: a.ID, ProtoUsername: "a"}))

	board := &model.Committee{Name: "Board", Slug: "board"}
	require.NoError(t, committees.Create(ctx, board))
	require.NoError(t, committees.AddUser(ctx, board.ID, b.ID))

	all, err := emails.Recipients(ctx, &model.Email{Destination: model.DestinationUsers})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	memberRecipients, err := emails.Recipients(ctx, &model.Email{Destination: model.DestinationMembers})
	require.NoError(t, err)
	require.Len(t, memberRecipients, 1)
	assert.Equal(t, a.ID, memberRecipients[0].ID)

	committeeRecipients, err := emails.Recipients(ctx, &model.Email{Destination: model.DestinationCommittee, CommitteeID: &board.ID})
	require.NoError(t, err)
	require.Len(t, committeeRecipients, 1)
	assert.Equal(t, b.ID, committeeRecipients[0].ID)

	_, err = emails.Recipients(ctx, &model.Email{Destination: model.DestinationCommittee})
	assert.ErrorIs(t, err, ErrDestinationNoTarget)

	_, err = emails.Recipients(ctx, &model.Email{Destination: "everyone"})
	assert.ErrorIs(t, err, ErrUnknownDestination)
}
