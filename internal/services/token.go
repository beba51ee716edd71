package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/vidtube/apiserver/config"
	"github.com/vidtube/apiserver/types"
)

// AccessClaims is the payload of an access token: the registered
// claims plus the identity fields handlers need without a lookup.
type AccessClaims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
}

// TokenPair is one issued access/refresh credential pair.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// TokenService issues and verifies the signed session tokens. Access
// and refresh tokens use separate secrets and lifetimes; the refresh
// token is additionally mirrored into the user's single-slot
// refresh_token column so it can be revoked server-side. Concurrent
// logins race on that slot, last write wins, and the earlier session's
// refresh token stops working.
type TokenService struct {
	users         UserRepository
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewTokenService(users UserRepository, cfg config.AuthConfig) *TokenService {
	return &TokenService{
		users:         users,
		accessSecret:  []byte(cfg.AccessTokenSecret),
		refreshSecret: []byte(cfg.RefreshTokenSecret),
		accessTTL:     cfg.AccessTokenTTL,
		refreshTTL:    cfg.RefreshTokenTTL,
	}
}

// IssueAccessToken signs a short-lived token carrying the user's
// identity fields. No side effects.
func (s *TokenService) IssueAccessToken(user types.User) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
		Username: user.Username,
		FullName: user.FullName,
		Email:    user.Email,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.accessSecret)
}

// IssueRefreshToken signs a longer-lived token carrying only the user
// id. The jti claim makes every issued token unique, so rotation always
// replaces the stored slot value even within the same second. No side
// effects.
func (s *TokenService) IssueRefreshToken(user types.User) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   strconv.FormatInt(user.ID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.refreshTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.refreshSecret)
}

// IssueTokenPair loads the user, issues both tokens, and persists the
// new refresh token onto the user record, replacing whatever session
// was active before.
func (s *TokenService) IssueTokenPair(ctx context.Context, userID int64) (TokenPair, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return TokenPair{}, err
	}

	accessToken, err := s.IssueAccessToken(user)
	if err != nil {
		return TokenPair{}, err
	}
	refreshToken, err := s.IssueRefreshToken(user)
	if err != nil {
		return TokenPair{}, err
	}

	if err := s.users.UpdateRefreshToken(ctx, user.ID, refreshToken); err != nil {
		return TokenPair{}, fmt.Errorf("persist refresh token: %w", err)
	}

	return TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// Rotate verifies a presented refresh token and, on success, issues and
// stores a new pair. Rotation is mandatory: the presented token stops
// being valid the moment the new pair is stored. A token that does not
// exactly match the user's stored slot is rejected even when its
// signature and expiry check out.
func (s *TokenService) Rotate(ctx context.Context, refreshToken string) (TokenPair, error) {
	userID, err := s.verifyRefreshToken(refreshToken)
	if err != nil {
		return TokenPair{}, ErrInvalidRefreshToken
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return TokenPair{}, ErrInvalidRefreshToken
	}

	if user.RefreshToken == "" || user.RefreshToken != refreshToken {
		return TokenPair{}, ErrInvalidRefreshToken
	}

	pair, err := s.IssueTokenPair(ctx, user.ID)
	if err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}

// RefreshTTL returns the configured refresh-token lifetime.
func (s *TokenService) RefreshTTL() time.Duration {
	return s.refreshTTL
}

// Revoke clears the user's stored refresh token, ending the active
// session. Subsequent rotation attempts with the last-issued token fail.
func (s *TokenService) Revoke(ctx context.Context, userID int64) error {
	return s.users.UpdateRefreshToken(ctx, userID, "")
}

// VerifyAccessToken checks signature and expiry against the access
// secret and returns the decoded claims.
func (s *TokenService) VerifyAccessToken(tokenString string) (AccessClaims, error) {
	claims := AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.accessSecret, nil
	})
	if err != nil {
		return AccessClaims{}, err
	}
	if !token.Valid {
		return AccessClaims{}, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return AccessClaims{}, errors.New("missing subject")
	}
	return claims, nil
}

// SubjectID parses the numeric user id out of a token subject.
func SubjectID(claims AccessClaims) (int64, error) {
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id < 1 {
		return 0, errors.New("invalid subject")
	}
	return id, nil
}

func (s *TokenService) verifyRefreshToken(tokenString string) (int64, error) {
	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.refreshSecret, nil
	})
	if err != nil {
		return 0, err
	}
	if !token.Valid {
		return 0, errors.New("invalid token")
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id < 1 {
		return 0, errors.New("invalid subject")
	}
	return id, nil
}
