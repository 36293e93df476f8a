// Package token はセッショントークン（HS256 JWT）の発行と検証を提供する。
// トークンは署名と有効期限のみを保証し、セッションの生存確認はストア側で行う。
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken は署名不一致、ペイロード不正、期限切れのいずれかを表す。
var ErrInvalidToken = errors.New("invalid token")

// Claims はセッショントークンに埋め込むクレーム。
type Claims struct {
	UserID    string
	Email     string
	SessionID string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// jwtClaims はJWTペイロードの表現。jtiにセッションIDを格納する。
type jwtClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid"`
	Email  string `json:"email,omitempty"`
}

// Codec はHMAC-SHA256でトークンを署名・検証する。
type Codec struct {
	secret   []byte
	validity time.Duration
	now      func() time.Time
}

// Option はCodecの生成オプション。
type Option func(*Codec)

// WithClock は現在時刻の取得関数を差し替える。テスト用。
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

// NewCodec はCodecを生成する。
// 署名鍵が空、または有効日数が1未満の場合はエラーを返す（起動を中止する）。
func NewCodec(secret string, validityDays int, opts ...Option) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("token signing secret is not set")
	}
	if validityDays < 1 {
		return nil, fmt.Errorf("token validity must be at least 1 day, got %d", validityDays)
	}

	c := &Codec{
		secret:   []byte(secret),
		validity: time.Duration(validityDays) * 24 * time.Hour,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Validity はトークンの有効期間を返す。
func (c *Codec) Validity() time.Duration {
	return c.validity
}

// Issue はクレームに発行時刻と有効期限を付与して署名済みトークンを返す。
// 戻り値のClaimsには実際に埋め込んだ時刻が入る。
func (c *Codec) Issue(claims Claims) (string, Claims, error) {
	// JWTのNumericDateは秒精度のため、返却値も秒に丸める
	now := c.now().UTC().Truncate(time.Second)
	claims.IssuedAt = now
	claims.ExpiresAt = now.Add(c.validity)

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        claims.SessionID,
			Subject:   claims.UserID,
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
		UserID: claims.UserID,
		Email:  claims.Email,
	})

	signed, err := t.SignedString(c.secret)
	if err != nil {
		return "", Claims{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, claims, nil
}

// Parse は署名と有効期限を検証し、クレームを返す。
// 検証に失敗した場合はErrInvalidTokenをラップしたエラーを返す。
func (c *Codec) Parse(tokenString string) (Claims, error) {
	parsed := &jwtClaims{}
	_, err := jwt.ParseWithClaims(tokenString, parsed, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("wrong signing method %v", t.Header["alg"])
		}
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if parsed.ID == "" || parsed.UserID == "" || parsed.IssuedAt == nil {
		return Claims{}, fmt.Errorf("%w: missing required claims", ErrInvalidToken)
	}

	return Claims{
		UserID:    parsed.UserID,
		Email:     parsed.Email,
		SessionID: parsed.ID,
		IssuedAt:  parsed.IssuedAt.Time.UTC(),
		ExpiresAt: parsed.ExpiresAt.Time.UTC(),
	}, nil
}
