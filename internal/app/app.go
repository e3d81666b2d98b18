package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/saproto/identity/internal/config"
	"github.com/saproto/identity/internal/db"
	"github.com/saproto/identity/internal/directory"
	"github.com/saproto/identity/internal/idp"
	"github.com/saproto/identity/internal/jobs"
	"github.com/saproto/identity/internal/lock"
	"github.com/saproto/identity/internal/logger"
	"github.com/saproto/identity/internal/repository"
	"github.com/saproto/identity/internal/service"
	"github.com/saproto/identity/internal/session"
	"github.com/saproto/identity/internal/storage"
)

type App struct {
	Cfg              *config.Config
	DB               *sqlx.DB
	Sessions         *session.CookieStore
	AuthService      *service.AuthService
	EmailService     *service.EmailService
	FileService      *service.FileService
	MailDispatcher   *service.MailDispatcher
	Synchronizer     *directory.Synchronizer // nil without LDAP_URL
	IdentityProvider *idp.IdentityProvider   // nil without SAML_IDP_CONFIG
	Runner           *jobs.Runner

	closers []func() error
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	database, err := db.Open(ctx, cfg.DBDriver, cfg.DBConnection)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	a := &App{Cfg: cfg, DB: database}
	a.closers = append(a.closers, database.Close)

	err = a.wire(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg := a.Cfg

	// Repositories
	userRepository := repository.NewUserRepository(a.DB)
	memberRepository := repository.NewMemberRepository(a.DB)
	committeeRepository := repository.NewCommitteeRepository(a.DB)
	passwordResetRepository := repository.NewPasswordResetRepository(a.DB)
	emailRepository := repository.NewEmailRepository(a.DB)
	fileRepository := repository.NewFileRepository(a.DB)

	// Storage
	var fileStorage storage.Storage
	if cfg.S3Bucket == "" {
		slog.Warn("S3_BUCKET not set, using in-memory storage")
		fileStorage = storage.NewMemory()
	} else {
		s3Storage, err := storage.New(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %v", err)
		}
		fileStorage = s3Storage
	}

	// Services
	a.EmailService = service.NewEmailService(
		cfg.ResendAPIKey,
		cfg.EmailFrom,
		cfg.EmailFromName,
		cfg.AppURL,
		cfg.AppName,
		cfg.IsDevelopment(),
	)
	a.FileService = service.NewFileService(fileRepository, fileStorage)
	a.MailDispatcher = service.NewMailDispatcher(emailRepository, committeeRepository, a.FileService, a.EmailService, cfg.EmailDomain)

	// Directory
	var directoryPasswords service.DirectoryPasswords
	if cfg.DirectoryEnabled() {
		connect := directory.NewConnector(directory.LDAPConfig{
			URL:                cfg.LDAPURL,
			BindDN:             cfg.LDAPBindDN,
			BindPassword:       cfg.LDAPBindPassword,
			UsersOU:            cfg.LDAPUsersOU,
			GroupsOU:           cfg.LDAPGroupsOU,
			InsecureSkipVerify: cfg.LDAPInsecureSkipVerify,
		})
		directoryPasswords = directory.NewPasswordSync(connect)
		a.Synchronizer = directory.NewSynchronizer(
			connect,
			userRepository,
			memberRepository,
			committeeRepository,
			a.FileService,
			logger.NewAlerter(),
			directory.SyncConfig{
				UsersOU:       cfg.LDAPUsersOU,
				GroupsOU:      cfg.LDAPGroupsOU,
				AccountSuffix: cfg.LDAPAccountSuffix,
				EmailDomain:   cfg.EmailDomain,
				AppURL:        cfg.AppURL,
			},
		)
	} else {
		slog.Warn("LDAP_URL not set, directory sync disabled")
	}

	a.AuthService = service.NewAuthService(
		userRepository,
		memberRepository,
		passwordResetRepository,
		service.NewTwoFactor(),
		a.EmailService,
		directoryPasswords,
		cfg.TokenPasswordResetExpiry,
	)

	// Identity provider
	if cfg.SAMLIdPConfig != "" {
		idpConfig, err := config.LoadIdentityProvider(cfg.SAMLIdPConfig)
		if err != nil {
			return err
		}
		a.IdentityProvider, err = idp.New(idpConfig)
		if err != nil {
			return err
		}
	} else {
		slog.Warn("SAML_IDP_CONFIG not set, single sign-on disabled")
	}

	a.Sessions = session.NewCookieStore(cfg.SessionSecret, cfg.SessionExpiry, cfg.IsProduction())

	// Job leases
	var locker lock.Locker
	if cfg.RedisURL != "" {
		redisLocker, err := lock.NewRedisLockerFromURL(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.closers = append(a.closers, redisLocker.Close)
		locker = redisLocker
	} else {
		locker = lock.NewSQLLocker(a.DB)
	}
	a.Runner = jobs.NewRunner(locker, cfg.JobLeaseTTL)

	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err := a.closers[i]()
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}
