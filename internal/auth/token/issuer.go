package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/smallbiznis/tollgate/internal/auth/domain"
	"github.com/smallbiznis/tollgate/internal/clock"
	"github.com/smallbiznis/tollgate/internal/config"
)

// Claims are the JWT claims carried by both token types.
type Claims struct {
	Type domain.TokenType `json:"typ"`
	jwt.RegisteredClaims
}

// Issuer signs HS256 tokens. It keeps no server-side session state.
type Issuer struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	clock      clock.Clock
	parser     *jwt.Parser
}

func New(cfg config.Config, clk clock.Clock) (domain.TokenIssuer, error) {
	return NewIssuer(cfg.Auth, clk)
}

func NewIssuer(cfg config.AuthConfig, clk clock.Clock) (*Issuer, error) {
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return nil, errors.New("token signing secret is required")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token lifetimes must be positive")
	}
	if clk == nil {
		clk = clock.New()
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = "tollgate"
	}

	return &Issuer{
		secret:     []byte(cfg.JWTSecret),
		issuer:     issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		clock:      clk,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(issuer),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
			jwt.WithTimeFunc(clk.Now),
		),
	}, nil
}

// Issue returns a fresh access and refresh token for userID.
func (i *Issuer) Issue(userID snowflake.ID) (*domain.TokenPair, error) {
	access, err := i.IssueAccess(userID)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := i.sign(userID, domain.TokenTypeRefresh, i.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &domain.TokenPair{
		AccessToken:      access.Token,
		RefreshToken:     refresh,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (i *Issuer) IssueAccess(userID snowflake.ID) (*domain.AccessToken, error) {
	raw, exp, err := i.sign(userID, domain.TokenTypeAccess, i.accessTTL)
	if err != nil {
		return nil, err
	}
	return &domain.AccessToken{Token: raw, ExpiresAt: exp}, nil
}

// Parse verifies raw and returns its subject. Tokens of any type other than want are rejected.
func (i *Issuer) Parse(raw string, want domain.TokenType) (snowflake.ID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, domain.ErrTokenInvalid
	}

	var claims Claims
	_, err := i.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, domain.ErrTokenExpired
		}
		return 0, fmt.Errorf("%w: %v", domain.ErrTokenInvalid, err)
	}

	if claims.Type != want {
		return 0, domain.ErrTokenWrongType
	}

	userID, err := snowflake.ParseString(claims.Subject)
	if err != nil || userID == 0 {
		return 0, domain.ErrTokenInvalid
	}
	return userID, nil
}

func (i *Issuer) sign(userID snowflake.ID, use domain.TokenType, ttl time.Duration) (string, time.Time, error) {
	now := i.clock.Now().UTC()
	exp := now.Add(ttl)
	claims := Claims{
		Type: use,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   userID.String(),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return raw, exp, nil
}

var _ domain.TokenIssuer = (*Issuer)(nil)
