package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/authkeeper/internal/logger"
)

const (
	defaultListenAddr    = "localhost:8000"
	defaultLoggingLevel  = logger.LevelInfo
	defaultEnvironment   = logger.EnvProduction
	defaultIssuer        = "authkeeper"
	defaultAudience      = "authkeeper"
	defaultAccessTTL     = 15 * time.Minute
	defaultRefreshTTL    = 24 * time.Hour
	defaultSweepInterval = time.Hour
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the authkeeper service will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Redis to keep sessions in. Sessions are kept in database if empty
	RedisAddr string

	// Secret key
	// Tokens are signed with HMAC, so this key is used for that purpose
	SecretKey string

	// Environment
	Environment string

	// Issuer and audience of issued tokens
	Issuer   string
	Audience string

	// Token lifetimes
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Session policies
	AllowMultipleLogins bool
	RevokeAllOnSignout  bool

	// How often expired sessions are removed. Zero disables sweeping
	SweepInterval time.Duration
}

func NewConfig() *Config {
	return &Config{
		LogLevel:            defaultLoggingLevel,
		ListenAddr:          defaultListenAddr,
		Environment:         defaultEnvironment,
		Issuer:              defaultIssuer,
		Audience:            defaultAudience,
		AccessTTL:           defaultAccessTTL,
		RefreshTTL:          defaultRefreshTTL,
		AllowMultipleLogins: true,
		RevokeAllOnSignout:  false,
		SweepInterval:       defaultSweepInterval,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			*o = d
			return nil
		}
	}
	setBool := func(o *bool) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			b, err := strconv.ParseBool(value)
			if err != nil {
				return err
			}
			*o = b
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":           setString(&c.ListenAddr),
		"DATABASE_URI":          setString(&c.DatabaseDSN),
		"REDIS_ADDRESS":         setString(&c.RedisAddr),
		"SECRET_KEY":            setString(&c.SecretKey),
		"LOG_LEVEL":             setString(&c.LogLevel),
		"ENVIRONMENT":           setString(&c.Environment),
		"TOKEN_ISSUER":          setString(&c.Issuer),
		"TOKEN_AUDIENCE":        setString(&c.Audience),
		"ACCESS_TOKEN_TTL":      setDuration(&c.AccessTTL),
		"REFRESH_TOKEN_TTL":     setDuration(&c.RefreshTTL),
		"SWEEP_INTERVAL":        setDuration(&c.SweepInterval),
		"ALLOW_MULTIPLE_LOGINS": setBool(&c.AllowMultipleLogins),
		"REVOKE_ALL_ON_SIGNOUT": setBool(&c.RevokeAllOnSignout),
	}

	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			return fmt.Errorf("invalid %s value: %w", key, err)
		}
	}

	return nil
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("authkeeper", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVar(&c.RedisAddr, "redis", c.RedisAddr, "Redis address to keep sessions in")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.StringVar(&c.Issuer, "issuer", c.Issuer, "Tokens issuer")
	fs.StringVar(&c.Audience, "audience", c.Audience, "Tokens audience")
	fs.DurationVar(&c.AccessTTL, "access-ttl", c.AccessTTL, "Access token lifetime")
	fs.DurationVar(&c.RefreshTTL, "refresh-ttl", c.RefreshTTL, "Refresh token lifetime")
	fs.DurationVar(&c.SweepInterval, "sweep-interval", c.SweepInterval, "Expired sessions sweep interval, 0 disables sweeping")
	fs.BoolVar(&c.AllowMultipleLogins, "allow-multiple-logins", c.AllowMultipleLogins, "Keep other user sessions on login")
	fs.BoolVar(&c.RevokeAllOnSignout, "revoke-all-on-signout", c.RevokeAllOnSignout, "Drop all user sessions on sign out")

	return fs.Parse(args)
}

// Check required options are set
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseDSN == "" {
		errs = append(errs, errors.New("database DSN is required"))
	}
	if c.SecretKey == "" {
		errs = append(errs, errors.New("secret key is required"))
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		errs = append(errs, errors.New("token lifetimes must be positive"))
	}
	if c.SweepInterval < 0 {
		errs = append(errs, errors.New("sweep interval must not be negative"))
	}

	return errors.Join(errs...)
}
