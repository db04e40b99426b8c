package services

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the caller proven by a bearer token.
type Identity struct {
	UserID int64
	Email  string
}

// Claims carried by board service tokens. Older tokens put the user id in
// user_id instead of sub; both are accepted.
type Claims struct {
	Email  string `json:"email,omitempty"`
	UserID int64  `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

type AuthService struct {
	jwtSecret []byte
	tokenTTL  time.Duration
}

func NewAuthService(secret string, tokenTTL time.Duration) *AuthService {
	if tokenTTL <= 0 {
		tokenTTL = 7 * 24 * time.Hour
	}
	return &AuthService{
		jwtSecret: []byte(secret),
		tokenTTL:  tokenTTL,
	}
}

// CreateJWT generates a signed token for a user
func (s *AuthService) CreateJWT(id Identity) (string, error) {
	if id.UserID <= 0 {
		return "", errors.New("user id must be positive")
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email: id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(id.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	})

	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// VerifyJWT verifies a token and returns the identity it carries
func (s *AuthService) VerifyJWT(tokenString string) (Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Identity{}, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return Identity{}, errors.New("invalid token")
	}

	id := Identity{Email: claims.Email, UserID: claims.UserID}
	if claims.Subject != "" {
		uid, err := strconv.ParseInt(claims.Subject, 10, 64)
		if err != nil {
			return Identity{}, fmt.Errorf("invalid subject claim %q", claims.Subject)
		}
		id.UserID = uid
	}
	if id.UserID <= 0 {
		return Identity{}, errors.New("user id claim missing")
	}
	return id, nil
}
