package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Application
	AppName      string
	AppEnv       string
	AppURL       string
	Port         string
	SupportEmail string
	EmailDomain  string // domain for committee and sender addresses

	// Database (optional driver switch via ENV, default: sqlite)
	DBDriver     string
	DBConnection string

	// Security
	SessionSecret            string
	SessionExpiry            time.Duration
	TokenPasswordResetExpiry time.Duration

	// Email
	EmailFrom     string
	EmailFromName string
	ResendAPIKey  string

	// Directory (LDAP / Active Directory)
	LDAPURL                string
	LDAPBindDN             string
	LDAPBindPassword       string
	LDAPUsersOU            string
	LDAPGroupsOU           string
	LDAPAccountSuffix      string
	LDAPInsecureSkipVerify bool

	// Identity provider
	SAMLIdPConfig string // path to the YAML allow-list

	// Jobs
	RedisURL          string
	JobLeaseTTL       time.Duration
	ADSyncInterval    time.Duration
	EmailCronInterval time.Duration

	// Observability (optional)
	SentryDSN string

	// Storage (S3-compatible: MinIO, AWS S3, Cloudflare R2, DigitalOcean Spaces, etc.)
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3Endpoint  string // Optional: for S3-compatible services
}

func Load() *Config {
	// Load .env file if it exists
	err := godotenv.Load()
	if err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg := &Config{
		// Application
		AppName:      envString("APP_NAME", "S.A. Proto"),
		AppEnv:       envRequired("APP_ENV"), // Required: 'development' or 'production'
		AppURL:       envRequired("APP_URL"), // Required: base URL for email links and directory profile URLs
		Port:         envString("PORT", "8090"),
		SupportEmail: envString("SUPPORT_EMAIL", "haveyoutriedturningitoffandonagain@proto.utwente.nl"),
		EmailDomain:  envString("EMAIL_DOMAIN", "proto.utwente.nl"),

		// Database
		DBDriver:     envString("DB_DRIVER", "sqlite"),
		DBConnection: envString("DB_CONNECTION", "./data/proto.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"),

		// Security
		SessionSecret:            envRequired("SESSION_SECRET"),
		SessionExpiry:            envDuration("SESSION_EXPIRY", 720*time.Hour),
		TokenPasswordResetExpiry: envDuration("TOKEN_PASSWORD_RESET_EXPIRY", 1*time.Hour),

		// Email (RESEND_API_KEY optional in development, required in production)
		EmailFrom:     envString("EMAIL_FROM", "webmaster@proto.utwente.nl"),
		EmailFromName: envString("EMAIL_FROM_NAME", "Have You Tried Turning It Off And On Again committee"),
		ResendAPIKey:  envString("RESEND_API_KEY", ""),

		// Directory
		LDAPURL:                envString("LDAP_URL", ""),
		LDAPBindDN:             envString("LDAP_BIND_DN", ""),
		LDAPBindPassword:       envString("LDAP_BIND_PASSWORD", ""),
		LDAPUsersOU:            envString("LDAP_USERS_OU", "OU=Members,OU=Proto,DC=ad,DC=saproto,DC=nl"),
		LDAPGroupsOU:           envString("LDAP_GROUPS_OU", "OU=Committees,OU=Proto,DC=ad,DC=saproto,DC=nl"),
		LDAPAccountSuffix:      envString("LDAP_ACCOUNT_SUFFIX", "@ad.saproto.nl"),
		LDAPInsecureSkipVerify: envBool("LDAP_INSECURE_SKIP_VERIFY", false),

		// Identity provider
		SAMLIdPConfig: envString("SAML_IDP_CONFIG", ""),

		// Jobs
		RedisURL:          envString("REDIS_URL", ""),
		JobLeaseTTL:       envDuration("JOB_LEASE_TTL", 30*time.Minute),
		ADSyncInterval:    envDuration("ADSYNC_INTERVAL", 1*time.Hour),
		EmailCronInterval: envDuration("EMAILCRON_INTERVAL", 1*time.Minute),

		// Observability
		SentryDSN: envString("SENTRY_DSN", ""),

		// Storage (S3-compatible - attachments and member photos)
		S3Region:    envString("S3_REGION", "us-east-1"),
		S3Bucket:    envString("S3_BUCKET", ""), // empty: in-memory storage (development only)
		S3AccessKey: envString("S3_ACCESS_KEY", ""),
		S3SecretKey: envString("S3_SECRET_KEY", ""),
		S3Endpoint:  envString("S3_ENDPOINT", ""), // Optional: for non-AWS providers
	}

	// Production: validate required services
	if cfg.IsProduction() {
		validateProduction(cfg)
	}

	return cfg
}

// validateProduction ensures all required services are configured for production deployments.
// Development allows email to use the log fallback and storage to stay in memory.
func validateProduction(cfg *Config) {
	if cfg.ResendAPIKey == "" {
		slog.Error("production deployment requires RESEND_API_KEY",
			"hint", "set APP_ENV=development for local testing with email log mode")
		os.Exit(1)
	}
	if cfg.S3Bucket == "" {
		slog.Error("production deployment requires S3_BUCKET")
		os.Exit(1)
	}
	if cfg.SAMLIdPConfig == "" {
		slog.Error("production deployment requires SAML_IDP_CONFIG")
		os.Exit(1)
	}
}

func envString(key, def string) string {
	value := os.Getenv(key)
	if value == "" {
		value = def
	}
	return value
}

func envBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("config invalid bool, using default", "key", key, "value", v, "default", def)
		return def
	}
	return b
}

func envDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("config invalid duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

func envRequired(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	slog.Error("config required env var missing", "key", key)
	os.Exit(1)
	return ""
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func (c *Config) DirectoryEnabled() bool {
	return c.LDAPURL != ""
}

// Sanitized returns a copy of the config with only public/safe fields.
// All secrets, credentials, and sensitive data are excluded.
// Safe to expose in ctx, templates and client-facing contexts.
func (c *Config) Sanitized() *Config {
	return &Config{
		AppName:      c.AppName,
		AppEnv:       c.AppEnv,
		AppURL:       c.AppURL,
		Port:         c.Port,
		SupportEmail: c.SupportEmail,
		EmailDomain:  c.EmailDomain,

		EmailFrom: c.EmailFrom,

		S3Endpoint: c.S3Endpoint,
	}
}
