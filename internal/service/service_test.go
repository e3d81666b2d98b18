package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/saproto/identity/internal/db/dbtest"
	"github.com/saproto/identity/internal/model"
	"github.com/saproto/identity/internal/repository"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var errSendFailed = errors.New("mailbox unavailable")

// recordingMailer captures outgoing mail instead of sending it.
type recordingMailer struct {
	mu       sync.Mutex
	messages []*Message
	resets   map[string]string // email -> token
	failTo   map[string]bool
}

func newRecordingMailer() *recordingMailer {
	return &recordingMailer{resets: map[string]string{}, failTo: map[string]bool{}}
}

func (m *recordingMailer) Send(_ context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failTo[msg.To] {
		return errSendFailed
	}
	m.messages = append(m.messages, msg)
	return nil
}

func (m *recordingMailer) SendPasswordReset(_ context.Context, user *model.User, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets[user.Email] = token
	return nil
}

// fakeDirectory records password pushes.
type fakeDirectory struct {
	passwords map[string]string
	err       error
}

func (f *fakeDirectory) SetPassword(_ context.Context, username, password string) error {
	if f.err != nil {
		return f.err
	}
	f.passwords[username] = password
	return nil
}

type fixture struct {
	db         *sqlx.DB
	users      repository.UserRepository
	members    repository.MemberRepository
	resets     repository.PasswordResetRepository
	committees repository.CommitteeRepository
	emails     repository.EmailRepository
	files      repository.FileRepository
	mailer     *recordingMailer
	directory  *fakeDirectory
	twoFactor  *TwoFactor
	auth       *AuthService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	database := dbtest.Open(t)
	f := &fixture{
		db:         database,
		users:      repository.NewUserRepository(database),
		members:    repository.NewMemberRepository(database),
		resets:     repository.NewPasswordResetRepository(database),
		committees: repository.NewCommitteeRepository(database),
		emails:     repository.NewEmailRepository(database),
		files:      repository.NewFileRepository(database),
		mailer:     newRecordingMailer(),
		directory:  &fakeDirectory{passwords: map[string]string{}},
		twoFactor:  NewTwoFactor(),
	}
	f.auth = NewAuthService(f.users, f.members, f.resets, f.twoFactor, f.mailer, f.directory, time.Hour)
	return f
}

func (f *fixture) user(t *testing.T, name, email, password string) *model.User {
	t.Helper()

	user := &model.User{Name: name, CallingName: firstWord(name), Email: email}
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
		require.NoError(t, err)
		h := string(hash)
		user.PasswordHash = &h
	}
	require.NoError(t, f.users.Create(context.Background(), user))
	return user
}

func (f *fixture) member(t *testing.T, user *model.User, username string) *model.Member {
	t.Helper()

	member := &model.Member{UserID: user.ID, ProtoUsername: username}
	require.NoError(t, f.members.Create(context.Background(), member))
	return member
}

func firstWord(s string) string {
	for i, r := range s {
		if r == ' ' {
			return s[:i]
		}
	}
	return s
}
