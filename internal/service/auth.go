package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/saproto/identity/internal/model"
	"github.com/saproto/identity/internal/repository"
	"github.com/saproto/identity/internal/validation"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials   = errors.New("invalid username or password")
	ErrNoPendingLogin       = errors.New("no pending two-factor login")
	ErrChallengeIncomplete  = errors.New("two-factor challenge incomplete")
	ErrInvalidTwoFactorCode = errors.New("invalid two-factor code")
	ErrResetTokenInvalid    = errors.New("reset token does not exist or has expired")
	ErrNotMember            = errors.New("user is not a member")
)

const resetTokenLength = 128

type LoginState int

const (
	LoginAuthenticated LoginState = iota + 1
	LoginTwoFactorRequired
)

func (s LoginState) String() string {
	switch s {
	case LoginAuthenticated:
		return "authenticated"
	case LoginTwoFactorRequired:
		return "two_factor_required"
	}
	return "unknown"
}

type LoginResult struct {
	State LoginState
	User  *model.User
}

// PasswordResetMailer sends the reset link for a freshly created token.
type PasswordResetMailer interface {
	SendPasswordReset(ctx context.Context, user *model.User, token string) error
}

// DirectoryPasswords pushes a new password to the member's directory account.
type DirectoryPasswords interface {
	SetPassword(ctx context.Context, username, password string) error
}

type AuthService struct {
	userRepository          repository.UserRepository
	memberRepository        repository.MemberRepository
	passwordResetRepository repository.PasswordResetRepository
	twoFactor               *TwoFactor
	mailer                  PasswordResetMailer
	directory               DirectoryPasswords // nil when no directory is configured
	resetExpiry             time.Duration
	now                     func() time.Time
}

func NewAuthService(
	userRepository repository.UserRepository,
	memberRepository repository.MemberRepository,
	passwordResetRepository repository.PasswordResetRepository,
	twoFactor *TwoFactor,
	mailer PasswordResetMailer,
	directory DirectoryPasswords,
	resetExpiry time.Duration,
) *AuthService {
	return &AuthService{
		userRepository:          userRepository,
		memberRepository:        memberRepository,
		passwordResetRepository: passwordResetRepository,
		twoFactor:               twoFactor,
		mailer:                  mailer,
		directory:               directory,
		resetExpiry:             resetExpiry,
		now:                     func() time.Time { return time.Now().UTC() },
	}
}

var (
	dummyHashOnce sync.Once
	dummyHash     []byte
)

// spendComparison burns the same bcrypt work as a real check so unknown
// identifiers are not distinguishable by response time.
func spendComparison(password string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.DefaultCost)
	})
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}

// VerifyCredentials accepts an e-mail address or a member username.
func (s *AuthService) VerifyCredentials(ctx context.Context, identifier, password string) (*model.User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.userRepository.ByEmail(ctx, identifier)
	if errors.Is(err, repository.ErrUserNotFound) {
		user, err = s.userRepository.ByUsername(ctx, identifier)
	}
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			spendComparison(password)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if !user.HasPassword() {
		spendComparison(password)
		return nil, ErrInvalidCredentials
	}

	err = bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(password))
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

// Login verifies the credentials and decides whether a second factor is due.
func (s *AuthService) Login(ctx context.Context, identifier, password string) (*LoginResult, error) {
	user, err := s.VerifyCredentials(ctx, identifier, password)
	if err != nil {
		return nil, err
	}

	result := s.ContinueLogin(user)
	slog.Info("password accepted", "user_id", user.ID, "state", result.State.String())
	return result, nil
}

// ContinueLogin runs after any successful primary authentication.
func (s *AuthService) ContinueLogin(user *model.User) *LoginResult {
	if user.HasTwoFactor() {
		return &LoginResult{State: LoginTwoFactorRequired, User: user}
	}
	return &LoginResult{State: LoginAuthenticated, User: user}
}

// SubmitTwoFactor completes a pending login. On ErrInvalidTwoFactorCode and
// ErrChallengeIncomplete the caller keeps the pending login.
func (s *AuthService) SubmitTwoFactor(ctx context.Context, pendingUserID int64, code string) (*model.User, error) {
	if pendingUserID == 0 {
		return nil, ErrNoPendingLogin
	}

	user, err := s.userRepository.ByID(ctx, pendingUserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrNoPendingLogin
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	code = strings.TrimSpace(code)
	if !user.HasTwoFactor() || code == "" {
		return nil, ErrChallengeIncomplete
	}

	if !s.twoFactor.Validate(*user.TOTPSecret, code) {
		slog.Warn("two-factor code rejected", "user_id", user.ID)
		return nil, ErrInvalidTwoFactorCode
	}

	return user, nil
}

// RequestPasswordReset creates a reset token for the account and mails it.
// An unknown address returns repository.ErrUserNotFound.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.userByEmail(ctx, email)
	if err != nil {
		return err
	}

	token, err := generateToken(resetTokenLength)
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}

	err = s.passwordResetRepository.Create(ctx, &model.PasswordReset{
		Email:   user.Email,
		Token:   token,
		ValidTo: s.now().Add(s.resetExpiry),
	})
	if err != nil {
		return fmt.Errorf("failed to create password reset: %w", err)
	}

	err = s.mailer.SendPasswordReset(ctx, user, token)
	if err != nil {
		return fmt.Errorf("failed to send password reset: %w", err)
	}

	slog.Info("password reset requested", "user_id", user.ID)
	return nil
}

// PasswordResetByToken returns a live reset. Expired rows are swept first.
func (s *AuthService) PasswordResetByToken(ctx context.Context, token string) (*model.PasswordReset, error) {
	now := s.now()
	s.sweepResets(ctx, now)

	reset, err := s.passwordResetRepository.ByToken(ctx, token, now)
	if err != nil {
		if errors.Is(err, repository.ErrPasswordResetNotFound) {
			return nil, ErrResetTokenInvalid
		}
		return nil, err
	}
	return reset, nil
}

// ResetPassword sets a new password with a reset token. The token is
// consumed atomically, so two concurrent submissions cannot both succeed.
func (s *AuthService) ResetPassword(ctx context.Context, token, password, confirmation string) error {
	_, err := s.PasswordResetByToken(ctx, token)
	if err != nil {
		return err
	}

	err = validation.ValidateNewPassword(password, confirmation)
	if err != nil {
		return err
	}

	reset, err := s.passwordResetRepository.Consume(ctx, token, s.now())
	if err != nil {
		if errors.Is(err, repository.ErrPasswordResetNotFound) {
			return ErrResetTokenInvalid
		}
		return fmt.Errorf("failed to consume reset token: %w", err)
	}

	user, err := s.userRepository.ByEmail(ctx, reset.Email)
	if err != nil {
		return fmt.Errorf("failed to get user for reset: %w", err)
	}

	return s.SetPassword(ctx, user, password)
}

// ChangePassword requires the current password. A wrong current password
// returns ErrInvalidCredentials.
func (s *AuthService) ChangePassword(ctx context.Context, user *model.User, oldPassword, newPassword, confirmation string) error {
	verified, err := s.VerifyCredentials(ctx, user.Email, oldPassword)
	if err != nil {
		return err
	}
	if verified.ID != user.ID {
		return ErrInvalidCredentials
	}

	err = validation.ValidateNewPassword(newPassword, confirmation)
	if err != nil {
		return err
	}

	return s.SetPassword(ctx, verified, newPassword)
}

// SyncPassword re-applies the current password everywhere, which brings the
// directory account back in line with the local hash.
func (s *AuthService) SyncPassword(ctx context.Context, user *model.User, password string) error {
	verified, err := s.VerifyCredentials(ctx, user.Email, password)
	if err != nil {
		return err
	}
	if verified.ID != user.ID {
		return ErrInvalidCredentials
	}

	return s.SetPassword(ctx, verified, password)
}

// SetPassword stores a new bcrypt hash. Members also get the password pushed
// to their directory account; a directory failure is logged only.
func (s *AuthService) SetPassword(ctx context.Context, user *model.User, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	err = s.userRepository.UpdatePassword(ctx, user.ID, string(hash))
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	hashed := string(hash)
	user.PasswordHash = &hashed

	slog.Info("password updated", "user_id", user.ID)

	if s.directory == nil {
		return nil
	}

	member, err := s.memberRepository.ByUserID(ctx, user.ID)
	if err != nil {
		if !errors.Is(err, repository.ErrMemberNotFound) {
			slog.Error("directory password sync skipped", "user_id", user.ID, "error", err)
		}
		return nil
	}

	err = s.directory.SetPassword(ctx, member.ProtoUsername, password)
	if err != nil {
		slog.Error("directory password sync failed", "user_id", user.ID, "username", member.ProtoUsername, "error", err)
	}
	return nil
}

// RequestUsername looks up the member username for an e-mail address.
// Non-members get ErrNotMember, unknown addresses repository.ErrUserNotFound.
func (s *AuthService) RequestUsername(ctx context.Context, email string) (string, error) {
	user, err := s.userByEmail(ctx, email)
	if err != nil {
		return "", err
	}

	member, err := s.memberRepository.ByUserID(ctx, user.ID)
	if err != nil {
		if errors.Is(err, repository.ErrMemberNotFound) {
			return "", ErrNotMember
		}
		return "", err
	}

	return member.ProtoUsername, nil
}

// Member returns the membership of a user, or nil when there is none.
func (s *AuthService) Member(ctx context.Context, user *model.User) (*model.Member, error) {
	member, err := s.memberRepository.ByUserID(ctx, user.ID)
	if err != nil {
		if errors.Is(err, repository.ErrMemberNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return member, nil
}

// userByEmail treats a malformed address like an unknown one.
func (s *AuthService) userByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.TrimSpace(email)
	err := validation.ValidateEmail(email)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrUserNotFound, err)
	}
	return s.userRepository.ByEmail(ctx, email)
}

func (s *AuthService) UserByID(ctx context.Context, id int64) (*model.User, error) {
	return s.userRepository.ByID(ctx, id)
}

func (s *AuthService) sweepResets(ctx context.Context, now time.Time) {
	n, err := s.passwordResetRepository.DeleteExpired(ctx, now)
	if err != nil {
		slog.Warn("failed to sweep expired password resets", "error", err)
		return
	}
	if n > 0 {
		slog.Debug("swept expired password resets", "count", n)
	}
}

const tokenAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func generateToken(length int) (string, error) {
	limit := big.NewInt(int64(len(tokenAlphabet)))
	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		b[i] = tokenAlphabet[n.Int64()]
	}
	return string(b), nil
}
