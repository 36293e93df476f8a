// Package auth はセッションの発行・検証・失効と、サインアップ/Googleログインのフローを提供する。
//
// セッションの有効性は2段階で判定する。トークンの署名と有効期限をtoken.Codecで検証し、
// その後セッションストアに行が残っているかを確認する。ログアウトは行の削除で即時に反映される。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/marquee/internal/model"
	"github.com/hitoshi/marquee/internal/repository"
	"github.com/hitoshi/marquee/internal/token"
)

// sessionIDBytes はセッションIDの乱数バイト数（128bit）。
const sessionIDBytes = 16

// SessionMetrics はセッション関連のメトリクス記録先。
type SessionMetrics interface {
	RecordSessionStarted()
	RecordSessionRejected(reason string)
}

// SessionParams はセッション開始時に記録する情報。
type SessionParams struct {
	UserID    string
	Email     string
	UserAgent string
	IP        string
}

// IssuedSession は発行したセッショントークンとその内容。
// MaxAgeはCookieのMax-Ageに使う。
type IssuedSession struct {
	Token  string
	Claims token.Claims
	MaxAge time.Duration
}

// SessionManager はセッションのライフサイクル（未発行 → 有効 → 失効）を管理する。
type SessionManager struct {
	codec    *token.Codec
	sessions repository.SessionRepository
	metrics  SessionMetrics
	newID    func() (string, error)
}

// NewSessionManager はSessionManagerを生成する。metricsはnilでもよい。
func NewSessionManager(codec *token.Codec, sessions repository.SessionRepository, metrics SessionMetrics) *SessionManager {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &SessionManager{
		codec:    codec,
		sessions: sessions,
		metrics:  metrics,
		newID:    generateSessionID,
	}
}

// StartSession は新しいセッションIDでトークンを発行し、同じ有効期限でセッション行を保存する。
func (m *SessionManager) StartSession(ctx context.Context, p SessionParams) (*IssuedSession, error) {
	sessionID, err := m.newID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	signed, claims, err := m.codec.Issue(token.Claims{
		UserID:    p.UserID,
		Email:     p.Email,
		SessionID: sessionID,
	})
	if err != nil {
		return nil, err
	}

	session := &model.Session{
		ID:        sessionID,
		UserID:    p.UserID,
		UserAgent: p.UserAgent,
		IP:        p.IP,
		ExpiresAt: claims.ExpiresAt,
		CreatedAt: claims.IssuedAt,
	}
	if err := m.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	m.metrics.RecordSessionStarted()
	slog.Info("セッションを開始しました", slog.String("user_id", p.UserID))

	return &IssuedSession{
		Token:  signed,
		Claims: claims,
		MaxAge: m.codec.Validity(),
	}, nil
}

// VerifySession はトークンを検証し、セッションが有効であればクレームを返す。
// 署名不正・期限切れ・失効はいずれも同じUNAUTHORIZEDエラーになる。
// 状態を変更しないため、並行して何度呼び出してもよい。
func (m *SessionManager) VerifySession(ctx context.Context, raw string) (*token.Claims, error) {
	if raw == "" {
		m.metrics.RecordSessionRejected("missing")
		return nil, model.NewUnauthorizedError()
	}

	claims, err := m.codec.Parse(raw)
	if err != nil {
		if !errors.Is(err, token.ErrInvalidToken) {
			return nil, err
		}
		m.metrics.RecordSessionRejected("invalid_token")
		return nil, model.NewUnauthorizedError()
	}

	active, err := m.sessions.IsActive(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if !active {
		m.metrics.RecordSessionRejected("revoked")
		return nil, model.NewUnauthorizedError()
	}

	return &claims, nil
}

// EndSession はセッションを失効させる。IDが空の場合は何もしない。
// 既に失効済みのIDでもエラーにならない。
func (m *SessionManager) EndSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := m.sessions.DeleteByID(ctx, sessionID); err != nil {
		return err
	}
	slog.Info("セッションを終了しました")
	return nil
}

// EndAllSessionsForUser はユーザーの全セッションを失効させる。
func (m *SessionManager) EndAllSessionsForUser(ctx context.Context, userID string) error {
	if err := m.sessions.DeleteByUserID(ctx, userID); err != nil {
		return err
	}
	slog.Info("ユーザーの全セッションを終了しました", slog.String("user_id", userID))
	return nil
}

// generateSessionID は暗号論的乱数から16進表記のセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, sessionIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

type noopMetrics struct{}

func (noopMetrics) RecordSessionStarted() {}
func (noopMetrics) RecordSessionRejected(string) {}
func (noopMetrics) RecordIDTokenFailure(string) {}
