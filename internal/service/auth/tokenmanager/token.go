package tokenmanager

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nkiryanov/authkeeper/internal/apperrors"
	"github.com/nkiryanov/authkeeper/internal/logger"
	"github.com/nkiryanov/authkeeper/internal/models"
	"github.com/nkiryanov/authkeeper/internal/service/fingerprint"
)

const (
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultSigningMethod   = "HS256"
	defaultRefreshTokenTTL = 24 * time.Hour
	defaultIssuer          = "authkeeper"
)

// Values of "typ" claim
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

type AccessTokenClaims struct {
	jwt.RegisteredClaims
	Type     string   `json:"typ,omitempty"`
	UserID   string   `json:"uid,omitempty"`
	Username string   `json:"username,omitempty"`
	Email    string   `json:"email,omitempty"`
	Serial   string   `json:"serial,omitempty"`
	Roles    []string `json:"role,omitempty"`
}

// Empty reports whether the token carries no claims at all
func (c *AccessTokenClaims) Empty() bool {
	if c == nil {
		return true
	}

	r := c.RegisteredClaims
	return r.ID == "" && r.Issuer == "" && r.Subject == "" && len(r.Audience) == 0 &&
		r.IssuedAt == nil && r.ExpiresAt == nil && r.NotBefore == nil &&
		c.Type == "" && c.UserID == "" && c.Username == "" && c.Email == "" && c.Serial == "" && len(c.Roles) == 0
}

type RefreshTokenClaims struct {
	jwt.RegisteredClaims
	Type   string `json:"typ"`
	Serial string `json:"serial"`
}

// Token manager with sensible default
type Config struct {
	// Secret key to sign tokens
	// Required to be set
	SecretKey string

	// JWT MAC (Message Authentication Code) algorithm
	// If not set than default is used
	Alg string

	// Issuer and audience set to every token
	// If issuer not set than default is used; audience may be empty
	Issuer   string
	Audience string

	// Access and refresh token lifetimes
	// If not set than default is used
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// TokenManager mints and parses signed token pairs
// It is pure: no storage is touched here
type TokenManager struct {
	// Secret key to sign tokens
	key []byte

	// JWT MAC (Message Authentication Code) algorithm
	alg jwt.SigningMethod

	issuer   string
	audience string

	// Access and refresh token lifetimes
	accessTTL  time.Duration
	refreshTTL time.Duration

	logger logger.Logger
}

func New(cfg Config, l logger.Logger) (*TokenManager, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("secret key must not be empty")
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}
	alg, ok := jwt.GetSigningMethod(cfg.Alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("signing method %q is not supported, only HMAC allowed", cfg.Alg)
	}

	if cfg.Issuer == "" {
		cfg.Issuer = defaultIssuer
	}

	setDefaultDuration := func(field *time.Duration, def time.Duration) {
		if *field == 0 {
			*field = def
		}
	}
	setDefaultDuration(&cfg.AccessTTL, defaultAccessTokenTTL)
	setDefaultDuration(&cfg.RefreshTTL, defaultRefreshTokenTTL)

	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &TokenManager{
		key:        []byte(cfg.SecretKey),
		alg:        alg,
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		logger:     l,
	}, nil
}

// Mint issues access and refresh tokens for the user
// The plain refresh serial is returned too: caller needs it to fingerprint the session
func (m *TokenManager) Mint(user models.User) (models.TokenPair, error) {
	var pair models.TokenPair
	now := time.Now().Truncate(time.Second)
	accessExpiresAt := now.Add(m.accessTTL)
	refreshExpiresAt := now.Add(m.refreshTTL)

	accessID, err := fingerprint.NewSecureID()
	if err != nil {
		return pair, fmt.Errorf("error while generating access token id. Err: %w", err)
	}

	access, err := m.sign(AccessTokenClaims{
		RegisteredClaims: m.registered(accessID.String(), now, accessExpiresAt, user.ID.String()),
		Type:             TypeAccess,
		UserID:           user.ID.String(),
		Username:         user.Username,
		Email:            user.Email,
		Serial:           user.Serial,
		Roles:            user.Roles,
	})
	if err != nil {
		return pair, fmt.Errorf("error while signing access token. Err: %w", err)
	}

	refreshID, err := fingerprint.NewSecureID()
	if err != nil {
		return pair, fmt.Errorf("error while generating refresh token id. Err: %w", err)
	}
	serial, err := fingerprint.NewSerial()
	if err != nil {
		return pair, fmt.Errorf("error while generating refresh serial. Err: %w", err)
	}

	refresh, err := m.sign(RefreshTokenClaims{
		RegisteredClaims: m.registered(refreshID.String(), now, refreshExpiresAt, ""),
		Type:             TypeRefresh,
		Serial:           serial,
	})
	if err != nil {
		return pair, fmt.Errorf("error while signing refresh token. Err: %w", err)
	}

	return models.TokenPair{
		Access:        models.IssuedToken{Value: access, ExpiresAt: accessExpiresAt},
		Refresh:       models.IssuedToken{Value: refresh, ExpiresAt: refreshExpiresAt},
		RefreshSerial: serial,
	}, nil
}

// RecoverSerial validates refresh token signature and lifetime and returns its serial
// Any failure is routine for refresh tokens: it is logged and reported as absent serial
func (m *TokenManager) RecoverSerial(refresh string) (string, bool) {
	if refresh == "" {
		return "", false
	}

	claims := &RefreshTokenClaims{}
	_, err := jwt.ParseWithClaims(refresh, claims, m.keyFunc, m.parserOptions()...)
	if err != nil {
		m.logger.Warn("Failed to validate refresh token", "token", tokenPrefix(refresh), "error", err)
		return "", false
	}

	if claims.Type != TypeRefresh {
		m.logger.Warn("Token is not a refresh token", "token", tokenPrefix(refresh), "typ", claims.Type)
		return "", false
	}

	if claims.Serial == "" {
		m.logger.Warn("Refresh token has no serial", "token", tokenPrefix(refresh))
		return "", false
	}

	return claims.Serial, true
}

// ParseAccess verifies access token signature, lifetime, issuer and audience
// Session related checks are up to token validator
func (m *TokenManager) ParseAccess(access string) (*AccessTokenClaims, error) {
	claims := &AccessTokenClaims{}
	_, err := jwt.ParseWithClaims(access, claims, m.keyFunc, m.parserOptions()...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrAccessTokenInvalid, err)
	}

	return claims, nil
}

func (m *TokenManager) parserOptions() []jwt.ParserOption {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.alg.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(m.issuer),
	}
	if m.audience != "" {
		opts = append(opts, jwt.WithAudience(m.audience))
	}
	return opts
}

func (m *TokenManager) registered(id string, now time.Time, expiresAt time.Time, subject string) jwt.RegisteredClaims {
	claims := jwt.RegisteredClaims{
		ID:        id,
		Issuer:    m.issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	if m.audience != "" {
		claims.Audience = jwt.ClaimStrings{m.audience}
	}
	return claims
}

func (m *TokenManager) sign(claims jwt.Claims) (string, error) {
	return jwt.NewWithClaims(m.alg, claims).SignedString(m.key)
}

func (m *TokenManager) keyFunc(*jwt.Token) (any, error) {
	return m.key, nil
}

// Never log whole token: the prefix is enough to correlate
func tokenPrefix(token string) string {
	const n = 12
	if len(token) <= n {
		return token
	}
	return token[:n] + "..."
}
