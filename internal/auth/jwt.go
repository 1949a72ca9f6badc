package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrMissingToken = errors.New("missing authorization token")
	ErrWrongGame    = errors.New("token does not grant access to this game")
)

// AllGames is the game scope of a token that may watch every game.
const AllGames = "*"

// Claims holds the viewer token payload.
type Claims struct {
	Viewer string `json:"viewer"`
	GameID string `json:"game_id"`
	jwt.RegisteredClaims
}

// Allows reports whether the token may watch gameID.
func (c *Claims) Allows(gameID string) bool {
	return c.GameID == AllGames || c.GameID == gameID
}

// JWTManager issues and validates spectator tokens.
type JWTManager struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

// NewJWTManager creates a JWTManager with the given secret.
func NewJWTManager(secret string) *JWTManager {
	return &JWTManager{
		secret: []byte(secret),
		expiry: 24 * time.Hour,
		now:    time.Now,
	}
}

// WithExpiry returns a copy of the manager issuing tokens valid for d.
func (m *JWTManager) WithExpiry(d time.Duration) *JWTManager {
	cp := *m
	cp.expiry = d
	return &cp
}

// GenerateViewerToken creates a token letting viewer watch gameID, or every
// game when gameID is AllGames.
func (m *JWTManager) GenerateViewerToken(viewer, gameID string) (string, error) {
	if gameID == "" {
		return "", errors.New("game id is required")
	}
	now := m.now()
	claims := &Claims{
		Viewer: viewer,
		GameID: gameID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   viewer,
			Audience:  jwt.ClaimStrings{"parley-spectator"},
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// ValidateToken parses and validates a JWT string, returning the claims.
func (m *JWTManager) ValidateToken(tokenStr string) (*Claims, error) {
	if tokenStr == "" {
		return nil, ErrMissingToken
	}
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	}, jwt.WithAudience("parley-spectator"), jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.GameID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
