package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Algorithm is the only signing algorithm the codec produces or accepts.
// It is compiled in and cannot be selected by callers or by token headers.
const Algorithm = "HS256"

var (
	// ErrTokenMalformed reports a token that is not a well-formed compact JWS
	// or whose claims cannot be decoded.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrAlgorithmRejected reports a header declaring anything other than HS256,
	// including "none" and a missing alg.
	ErrAlgorithmRejected = errors.New("token algorithm rejected")
	// ErrSignatureInvalid reports an HS256 token whose signature does not match.
	ErrSignatureInvalid = errors.New("token signature invalid")
	// ErrTokenExpired reports an authentic token whose exp is in the past.
	ErrTokenExpired = errors.New("token expired")
	// ErrClaimsInvalid reports an authentic token whose registered claims fail
	// validation for a reason other than expiry (missing exp, issuer, audience, iat).
	ErrClaimsInvalid = errors.New("token claims invalid")
	// ErrEmptySecret is returned when signing or verifying with an empty key.
	ErrEmptySecret = errors.New("empty signing secret")
)

// Config defines a public type used by goRotate APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Issuer   string
	Audience string
	Leeway   time.Duration
	// Now overrides the clock used for iat/exp. Defaults to time.Now.
	Now func() time.Time
}

// Codec signs and verifies compact HS256 tokens.
//
// A Codec holds no key material. Secrets are passed per call so one codec can
// serve both the access and the refresh token, each under its own secret.
type Codec struct {
	config Config
	parser *jwt.Parser
}

// AccessClaims is the stateless claim set carried by access tokens.
type AccessClaims struct {
	UserID string `json:"id"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// RefreshClaims mirrors the persisted refresh record so the engine can
// cross-check a presented token against its stored lineage.
type RefreshClaims struct {
	UserID   string `json:"id"`
	FamilyID string `json:"familyId"`
	Version  uint32 `json:"version"`
	jwt.RegisteredClaims
}

// NewCodec validates cfg and builds the shared parser.
func NewCodec(cfg Config) (*Codec, error) {
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{Algorithm}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(cfg.Now),
	}
	if cfg.Leeway > 0 {
		options = append(options, jwt.WithLeeway(cfg.Leeway))
	}
	if cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		options = append(options, jwt.WithAudience(cfg.Audience))
	}

	return &Codec{config: cfg, parser: jwt.NewParser(options...)}, nil
}

// Now returns the codec clock.
func (c *Codec) Now() time.Time {
	return c.config.Now()
}

// RegisteredClaims returns iss/aud/iat/exp/jti for a token living ttl from now.
// The random jti keeps two tokens minted in the same second distinct.
func (c *Codec) RegisteredClaims(ttl time.Duration) jwt.RegisteredClaims {
	now := c.config.Now()
	rc := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    c.config.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	if c.config.Audience != "" {
		rc.Audience = jwt.ClaimStrings{c.config.Audience}
	}
	return rc
}

// Sign serializes claims as an HS256 compact token under secret.
func (c *Codec) Sign(claims jwt.Claims, secret []byte) (string, error) {
	if len(secret) == 0 {
		return "", ErrEmptySecret
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// Verify parses token into claims and checks signature and registered claims.
//
// The returned error always wraps exactly one of ErrTokenMalformed,
// ErrAlgorithmRejected, ErrSignatureInvalid, ErrTokenExpired or
// ErrClaimsInvalid. Unsigned and foreign-algorithm tokens never reach the key.
func (c *Codec) Verify(token string, secret []byte, claims jwt.Claims) error {
	if len(secret) == 0 {
		return ErrEmptySecret
	}

	parsed, err := c.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method == nil || t.Method.Alg() != Algorithm {
			return nil, fmt.Errorf("unexpected signing algorithm: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return classify(parsed, err)
	}
	if !parsed.Valid {
		return fmt.Errorf("%w: token not valid", ErrClaimsInvalid)
	}
	return nil
}

// ParseAccess verifies an access token.
func (c *Codec) ParseAccess(token string, secret []byte) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := c.Verify(token, secret, claims); err != nil {
		return nil, err
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrClaimsInvalid)
	}
	return claims, nil
}

// ParseRefresh verifies a refresh token.
func (c *Codec) ParseRefresh(token string, secret []byte) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := c.Verify(token, secret, claims); err != nil {
		return nil, err
	}
	if claims.UserID == "" || claims.FamilyID == "" {
		return nil, fmt.Errorf("%w: missing id or familyId", ErrClaimsInvalid)
	}
	return claims, nil
}

// classify maps golang-jwt's error tree onto the codec's flat kinds.
// Structural problems win, then the declared algorithm, then expiry.
func classify(token *jwt.Token, err error) error {
	if errors.Is(err, jwt.ErrTokenMalformed) {
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	if token == nil {
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	if alg, _ := token.Header["alg"].(string); alg != Algorithm {
		return fmt.Errorf("%w: %q", ErrAlgorithmRejected, alg)
	}
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenInvalidClaims):
		return fmt.Errorf("%w: %v", ErrClaimsInvalid, err)
	default:
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
}
