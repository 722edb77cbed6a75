package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// RoleInstructor is the only role that may manage sheets.
const RoleInstructor = "instructor"

// Token types carried in the "typ" claim.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrWrongType    = errors.New("wrong token type")
)

// TokenPair holds access and refresh tokens.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	AccessExp    time.Time `json:"access_expires_at"`
	RefreshExp   time.Time `json:"refresh_expires_at"`
}

// Claims represents JWT payload.
type Claims struct {
	Role string `json:"role"`
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

// Issuer signs tokens with an HS256 key.
type Issuer struct {
	Name       string
	Key        []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Issue signs an access and a refresh token for subject.
func (i Issuer) Issue(subject, role string) (TokenPair, error) {
	now := time.Now()
	accessExp := now.Add(i.AccessTTL)
	refreshExp := now.Add(i.RefreshTTL)

	access, err := i.sign(subject, role, TypeAccess, now, accessExp)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := i.sign(subject, role, TypeRefresh, now, refreshExp)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		AccessExp:    accessExp,
		RefreshExp:   refreshExp,
	}, nil
}

func (i Issuer) sign(subject, role, typ string, now, exp time.Time) (string, error) {
	claims := Claims{
		Role: role,
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    i.Name,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.Key)
}

// Parse validates a token of the wanted type and returns its claims.
func (i Issuer) Parse(tokenStr, wantType string) (Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if i.Name != "" {
		opts = append(opts, jwt.WithIssuer(i.Name))
	}
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return i.Key, nil
	}, opts...)
	if err != nil {
		return Claims{}, errors.Join(ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return Claims{}, ErrInvalidToken
	}
	if claims.Type != wantType {
		return Claims{}, ErrWrongType
	}
	return *claims, nil
}
