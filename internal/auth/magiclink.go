// Package auth issues and verifies single-use magic sign-in links.
package auth

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/pavelanni/cloudhire/internal/model"
	"github.com/pavelanni/cloudhire/internal/store"
)

// DefaultTTL is how long an issued link stays valid.
const DefaultTTL = 72 * time.Hour

var (
	ErrTokenInvalid = errors.New("invalid sign-in token")
	ErrTokenExpired = errors.New("sign-in token expired")
	ErrTokenUsed    = errors.New("sign-in token already used")
)

// LinkStore records issued tokens so each can be redeemed once.
type LinkStore interface {
	CreateMagicLink(l model.MagicLink) error
	ConsumeMagicLink(tokenID string) (*model.MagicLink, error)
}

// Claims is the payload of a magic-link token.
type Claims struct {
	jwt.RegisteredClaims
}

// Issuer signs magic-link tokens with HS256.
type Issuer struct {
	secret   []byte
	links    LinkStore
	ttl      time.Duration
	siteURL  string
	basePath string
	now      func() time.Time
}

// NewIssuer creates an Issuer. siteURL is the public origin used to build
// links, basePath the optional sub-path prefix.
func NewIssuer(secret string, links LinkStore, siteURL, basePath string, ttl time.Duration) (*Issuer, error) {
	if len(secret) < 16 {
		return nil, errors.New("magic link secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{
		secret:   []byte(secret),
		links:    links,
		ttl:      ttl,
		siteURL:  strings.TrimRight(siteURL, "/"),
		basePath: basePath,
		now:      time.Now,
	}, nil
}

// Issue creates a token for email, records it and returns the token together
// with the full sign-in URL.
func (i *Issuer) Issue(email string) (token, link string, err error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", "", errors.New("email is required")
	}
	now := i.now()
	claims := Claims{jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   email,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		Issuer:    "cloudhire",
	}}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", "", fmt.Errorf("sign token: %w", err)
	}
	err = i.links.CreateMagicLink(model.MagicLink{
		TokenID:   claims.ID,
		Email:     email,
		CreatedAt: now,
		ExpiresAt: now.Add(i.ttl),
	})
	if err != nil {
		return "", "", fmt.Errorf("record magic link: %w", err)
	}
	return token, i.LinkFor(token), nil
}

// LinkFor builds the sign-in URL for a token.
func (i *Issuer) LinkFor(token string) string {
	return i.siteURL + i.basePath + "/auth/magic?token=" + url.QueryEscape(token)
}

// Verify checks the signature and expiry of token and consumes it. It returns
// the email the link was issued to.
func (i *Issuer) Verify(token string) (string, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now), jwt.WithExpirationRequired())
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "", ErrTokenExpired
	case err != nil:
		return "", fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	case claims.ID == "" || claims.Subject == "":
		return "", ErrTokenInvalid
	}

	l, err := i.links.ConsumeMagicLink(claims.ID)
	switch {
	case errors.Is(err, store.ErrLinkUsed):
		return "", ErrTokenUsed
	case errors.Is(err, store.ErrNotFound):
		return "", ErrTokenInvalid
	case err != nil:
		return "", err
	}
	return l.Email, nil
}
