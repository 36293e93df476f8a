package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/marquee/internal/model"
)

const (
	// DefaultGoogleCertsURL はGoogleのJWK Setの公開URL。
	DefaultGoogleCertsURL = "https://www.googleapis.com/oauth2/v3/certs"

	defaultKeysTTL      = 5 * time.Minute
	minRefetchInterval  = 30 * time.Second
	maxCertsBodyBytes   = 1 << 20
	googleCertsService  = "google-certs"
	googleIssuer        = "https://accounts.google.com"
	googleIssuerNoProto = "accounts.google.com"
)

// IDTokenMetrics はIDトークン検証の失敗理由の記録先。
type IDTokenMetrics interface {
	RecordIDTokenFailure(reason string)
}

// GoogleVerifierConfig はGoogleVerifierの設定。
type GoogleVerifierConfig struct {
	ClientID string
	CertsURL string

	// HTTPClient は公開鍵の取得に使う。本番ではsafeurlのクライアントを渡す。
	HTTPClient *http.Client
	// Now は現在時刻の取得関数。テスト用。
	Now func() time.Time
}

// GoogleVerifier はGoogleのIDトークン（RS256 JWT）を検証する。
// 公開鍵はCache-Controlのmax-ageまでキャッシュし、未知のkidを受け取った場合は再取得する。
type GoogleVerifier struct {
	cfg     GoogleVerifierConfig
	metrics IDTokenMetrics

	mu        sync.Mutex
	keys      map[string]*rsa.PublicKey
	expiresAt time.Time
	fetchedAt time.Time
}

// NewGoogleVerifier はGoogleVerifierを生成する。
func NewGoogleVerifier(cfg GoogleVerifierConfig, metrics IDTokenMetrics) *GoogleVerifier {
	if cfg.CertsURL == "" {
		cfg.CertsURL = DefaultGoogleCertsURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &GoogleVerifier{cfg: cfg, metrics: metrics}
}

// googleClaims はGoogle IDトークンのペイロード。
type googleClaims struct {
	jwt.RegisteredClaims
	Email         string       `json:"email"`
	EmailVerified flexibleBool `json:"email_verified"`
	GivenName     string       `json:"given_name"`
	FamilyName    string       `json:"family_name"`
}

// flexibleBool は true と "true" の両方を受け付ける。
type flexibleBool bool

func (b *flexibleBool) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*b = false
		return nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("invalid boolean %q: %w", s, err)
	}
	*b = flexibleBool(v)
	return nil
}

// Verify はIDトークンを検証し、Googleアカウントの情報を返す。
// トークン不正は INVALID_ID_TOKEN、公開鍵の取得失敗は *model.UpstreamError を返す。
func (v *GoogleVerifier) Verify(ctx context.Context, rawIDToken string) (*model.ExternalIdentity, error) {
	if rawIDToken == "" {
		v.metrics.RecordIDTokenFailure("missing")
		return nil, model.NewInvalidIDTokenError()
	}

	var fetchErr error
	claims := &googleClaims{}
	_, err := jwt.ParseWithClaims(rawIDToken, claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		key, err := v.key(ctx, kid)
		if err != nil {
			fetchErr = err
			return nil, err
		}
		if key == nil {
			return nil, fmt.Errorf("unknown key id %q", kid)
		}
		return key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.cfg.ClientID),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.cfg.Now),
	)
	if fetchErr != nil {
		v.metrics.RecordIDTokenFailure("certs_unavailable")
		return nil, &model.UpstreamError{Service: googleCertsService, Err: fetchErr}
	}
	if err != nil {
		v.metrics.RecordIDTokenFailure(failureReason(err))
		slog.Debug("Google IDトークンの検証に失敗しました", slog.String("error", err.Error()))
		return nil, model.NewInvalidIDTokenError()
	}

	if claims.Issuer != googleIssuer && claims.Issuer != googleIssuerNoProto {
		v.metrics.RecordIDTokenFailure("issuer")
		return nil, model.NewInvalidIDTokenError()
	}
	if claims.Subject == "" {
		v.metrics.RecordIDTokenFailure("malformed")
		return nil, model.NewInvalidIDTokenError()
	}

	return &model.ExternalIdentity{
		Subject:       claims.Subject,
		Email:         claims.Email,
		EmailVerified: bool(claims.EmailVerified),
		GivenName:     claims.GivenName,
		FamilyName:    claims.FamilyName,
	}, nil
}

// failureReason はjwtの検証エラーをメトリクス用の理由に分類する。
func failureReason(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired"
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return "audience"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "signature"
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return "unknown_key"
	default:
		return "malformed"
	}
}

// key はkidに対応する公開鍵を返す。キャッシュが期限切れ、またはkidが未知の場合は再取得する。
// 再取得しても見つからない場合はnilを返す。
func (v *GoogleVerifier) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.cfg.Now()
	if key, ok := v.keys[kid]; ok && now.Before(v.expiresAt) {
		return key, nil
	}

	// 未知のkidが続いても証明書エンドポイントへのリクエストが集中しないようにする
	if v.keys != nil && now.Before(v.expiresAt) && now.Sub(v.fetchedAt) < minRefetchInterval {
		return nil, nil
	}

	keys, ttl, err := v.fetchKeys(ctx)
	if err != nil {
		return nil, err
	}
	v.keys = keys
	v.fetchedAt = now
	v.expiresAt = now.Add(ttl)

	return v.keys[kid], nil
}

type jwkSet struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// fetchKeys はJWK Setを取得し、kidごとのRSA公開鍵とキャッシュ期間を返す。
func (v *GoogleVerifier) fetchKeys(ctx context.Context) (map[string]*rsa.PublicKey, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.cfg.CertsURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create certs request: %w", err)
	}

	resp, err := v.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("certs request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("certs request failed with status %d", resp.StatusCode)
	}

	var set jwkSet
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxCertsBodyBytes)).Decode(&set); err != nil {
		return nil, 0, fmt.Errorf("failed to decode certs: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		pub, err := rsaPublicKey(k.N, k.E)
		if err != nil {
			slog.Warn("Googleの公開鍵を読み込めません", slog.String("kid", k.Kid), slog.String("error", err.Error()))
			continue
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return nil, 0, errors.New("no usable RSA keys in certs response")
	}

	slog.Debug("Googleの公開鍵を取得しました", slog.Int("keys", len(keys)))
	return keys, cacheMaxAge(resp.Header.Get("Cache-Control")), nil
}

// rsaPublicKey はbase64url表記のモジュラスと指数からRSA公開鍵を組み立てる。
func rsaPublicKey(n, e string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("invalid modulus: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("invalid exponent: %w", err)
	}
	exp := new(big.Int).SetBytes(eb)
	if !exp.IsInt64() || exp.Int64() < 3 || exp.Int64() > 1<<31-1 {
		return nil, errors.New("exponent out of range")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: int(exp.Int64())}, nil
}

// cacheMaxAge はCache-Controlヘッダーのmax-ageを返す。指定がなければ既定値を返す。
func cacheMaxAge(header string) time.Duration {
	for _, directive := range strings.Split(header, ",") {
		directive = strings.TrimSpace(directive)
		value, ok := strings.CutPrefix(strings.ToLower(directive), "max-age=")
		if !ok {
			continue
		}
		seconds, err := strconv.Atoi(value)
		if err != nil || seconds <= 0 {
			break
		}
		return time.Duration(seconds) * time.Second
	}
	return defaultKeysTTL
}

// compile-time interface check
var _ IDTokenVerifier = (*GoogleVerifier)(nil)
