// Package issuer builds and signs access/refresh token pairs. It performs no
// I/O; persisting the refresh record is the caller's job.
package issuer

import (
	"bytes"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/goRotate/jwt"
)

// Identity is the user data embedded in access tokens.
type Identity struct {
	UserID string
	Email  string
	Role   string
}

// Config holds the signing material and lifetimes. Secrets must differ.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// Pair is the output of IssuePair. Refresh holds the claims signed into
// RefreshToken so the caller can persist the matching record.
type Pair struct {
	AccessToken      string
	RefreshToken     string
	Refresh          jwt.RefreshClaims
	AccessExpiresAt  time.Time
	RefreshIssuedAt  time.Time
	RefreshExpiresAt time.Time
}

// Issuer signs token pairs with a shared codec.
type Issuer struct {
	codec  *jwt.Codec
	config Config
}

// New validates cfg and returns an Issuer. Secrets are copied.
func New(codec *jwt.Codec, cfg Config) (*Issuer, error) {
	if codec == nil {
		return nil, errors.New("issuer: codec is required")
	}
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("issuer: access and refresh secrets are required")
	}
	if bytes.Equal(cfg.AccessSecret, cfg.RefreshSecret) {
		return nil, errors.New("issuer: access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("issuer: TTLs must be positive")
	}

	cfg.AccessSecret = append([]byte(nil), cfg.AccessSecret...)
	cfg.RefreshSecret = append([]byte(nil), cfg.RefreshSecret...)
	return &Issuer{codec: codec, config: cfg}, nil
}

// IssuePair signs a fresh access token and a refresh token at version for
// familyID. An empty familyID starts a new family.
func (i *Issuer) IssuePair(id Identity, familyID string, version uint32) (Pair, error) {
	if id.UserID == "" {
		return Pair{}, errors.New("issuer: user id is required")
	}
	if familyID == "" {
		familyID = uuid.NewString()
	}

	access := jwt.AccessClaims{
		UserID:           id.UserID,
		Email:            id.Email,
		Role:             id.Role,
		RegisteredClaims: i.codec.RegisteredClaims(i.config.AccessTTL),
	}
	accessToken, err := i.codec.Sign(access, i.config.AccessSecret)
	if err != nil {
		return Pair{}, err
	}

	refresh := jwt.RefreshClaims{
		UserID:           id.UserID,
		FamilyID:         familyID,
		Version:          version,
		RegisteredClaims: i.codec.RegisteredClaims(i.config.RefreshTTL),
	}
	refreshToken, err := i.codec.Sign(refresh, i.config.RefreshSecret)
	if err != nil {
		return Pair{}, err
	}

	return Pair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		Refresh:          refresh,
		AccessExpiresAt:  access.ExpiresAt.Time,
		RefreshIssuedAt:  refresh.IssuedAt.Time,
		RefreshExpiresAt: refresh.ExpiresAt.Time,
	}, nil
}

// VerifyRefresh checks a refresh token against the refresh secret.
func (i *Issuer) VerifyRefresh(token string) (*jwt.RefreshClaims, error) {
	return i.codec.ParseRefresh(token, i.config.RefreshSecret)
}

// VerifyAccess checks an access token against the access secret.
func (i *Issuer) VerifyAccess(token string) (*jwt.AccessClaims, error) {
	return i.codec.ParseAccess(token, i.config.AccessSecret)
}
