// Package identity は外部のアカウント基盤が発行する着席許可 (seat grant) を検証します。
// 着席許可はEdDSAで署名されたJWTで、ユーザー、ルーム、希望するロールを運びます。
// ルームを持たない許可は、ユーザーが着席中のルームへの再接続に使います。
package identity

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrGrantInvalid  = errors.New("seat grant is invalid")
	ErrGrantExpired  = errors.New("seat grant is expired")
	ErrGrantMismatch = errors.New("seat grant does not match this server")
)

// SeatGrant は検証済みの着席許可です。
type SeatGrant struct {
	JWTID     string
	UserID    string
	Username  string
	RoomID    string
	Role      string
	Muted     bool
	ExpiresAt time.Time
}

type seatGrantClaims struct {
	jwt.RegisteredClaims
	RoomID   string `json:"room_id"`
	Role     string `json:"role,omitempty"`
	Username string `json:"username"`
	Muted    bool   `json:"muted,omitempty"`
}

type VerifierConfig struct {
	Issuer   string
	Audience string
	Key      ed25519.PublicKey
	Now      func() time.Time
}

type Verifier struct {
	cfg VerifierConfig
}

func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	if strings.TrimSpace(cfg.Issuer) == "" || strings.TrimSpace(cfg.Audience) == "" {
		return nil, errors.New("seat grant issuer and audience are required")
	}
	if len(cfg.Key) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("seat grant public key must be %d bytes", ed25519.PublicKeySize)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Verifier{cfg: cfg}, nil
}

// Verify はトークンの署名とクレームを検証します。
func (v *Verifier) Verify(token string) (SeatGrant, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return SeatGrant{}, fmt.Errorf("%w: token is required", ErrGrantInvalid)
	}

	var parsed seatGrantClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return v.cfg.Key, nil
	},
		jwt.WithValidMethods([]string{"EdDSA"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return SeatGrant{}, mapJWTError(err)
	}

	if parsed.Issuer != v.cfg.Issuer {
		return SeatGrant{}, fmt.Errorf("%w: issuer", ErrGrantMismatch)
	}
	if !slices.Contains(parsed.Audience, v.cfg.Audience) {
		return SeatGrant{}, fmt.Errorf("%w: audience", ErrGrantMismatch)
	}
	if parsed.ExpiresAt == nil {
		return SeatGrant{}, fmt.Errorf("%w: exp is required", ErrGrantInvalid)
	}
	now := v.cfg.Now().UTC()
	exp := parsed.ExpiresAt.Time.UTC()
	if !exp.After(now) {
		return SeatGrant{}, ErrGrantExpired
	}
	if parsed.NotBefore != nil && now.Before(parsed.NotBefore.Time) {
		return SeatGrant{}, fmt.Errorf("%w: not active yet", ErrGrantInvalid)
	}
	if strings.TrimSpace(parsed.Subject) == "" {
		return SeatGrant{}, fmt.Errorf("%w: sub is required", ErrGrantInvalid)
	}

	username := strings.TrimSpace(parsed.Username)
	if username == "" {
		username = parsed.Subject
	}
	return SeatGrant{
		JWTID:     parsed.ID,
		UserID:    parsed.Subject,
		Username:  username,
		RoomID:    parsed.RoomID,
		Role:      parsed.Role,
		Muted:     parsed.Muted,
		ExpiresAt: exp,
	}, nil
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrEd25519Verification):
		return fmt.Errorf("%w: signature", ErrGrantInvalid)
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: alg", ErrGrantInvalid)
	default:
		return fmt.Errorf("%w: %w", ErrGrantInvalid, err)
	}
}

// Issuer は着席許可を発行します。本番ではアカウント基盤が担当し、ここではボットとテストが使います。
type Issuer struct {
	issuer   string
	audience string
	key      ed25519.PrivateKey
	ttl      time.Duration
	now      func() time.Time
}

func NewIssuer(issuer, audience string, key ed25519.PrivateKey, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Issuer{issuer: issuer, audience: audience, key: key, ttl: ttl, now: time.Now}
}

func (i *Issuer) Issue(grant SeatGrant) (string, error) {
	now := i.now().UTC()
	claims := seatGrantClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    i.issuer,
			Subject:   grant.UserID,
			Audience:  jwt.ClaimStrings{i.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		RoomID:   grant.RoomID,
		Role:     grant.Role,
		Username: grant.Username,
		Muted:    grant.Muted,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("sign seat grant: %w", err)
	}
	return token, nil
}

// ParsePublicKey はbase64でエンコードされたed25519公開鍵を読みます。
func ParsePublicKey(value string) (ed25519.PublicKey, error) {
	raw, err := decodeBase64(strings.TrimSpace(value))
	if err != nil {
		return nil, fmt.Errorf("decode seat grant public key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("seat grant public key must be %d bytes", ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(raw), nil
}

// ParsePrivateKey はbase64でエンコードされたed25519の秘密鍵またはシードを読みます。
func ParsePrivateKey(value string) (ed25519.PrivateKey, error) {
	raw, err := decodeBase64(strings.TrimSpace(value))
	if err != nil {
		return nil, fmt.Errorf("decode seat grant private key: %w", err)
	}
	switch len(raw) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(raw), nil
	default:
		return nil, fmt.Errorf("seat grant private key must be %d or %d bytes", ed25519.SeedSize, ed25519.PrivateKeySize)
	}
}

func decodeBase64(value string) ([]byte, error) {
	if value == "" {
		return nil, errors.New("empty base64 value")
	}
	decoded, err := base64.RawStdEncoding.DecodeString(value)
	if err == nil {
		return decoded, nil
	}
	return base64.StdEncoding.DecodeString(value)
}
