// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"net/http"
)

// APIError はクライアントに返すエラーを表す。
// Statusはハンドラーが返すHTTPステータスコード。
type APIError struct {
	Status  int      // HTTPステータスコード
	Code    string   // エラーコード
	Message string   // エラーメッセージ
	Details []string // フィールドごとのバリデーションエラー
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeInvalidRequest   = "INVALID_REQUEST"
	ErrCodeUserExists       = "USER_EXISTS"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeInvalidIDToken   = "INVALID_ID_TOKEN"
	ErrCodeUserNotFound     = "USER_NOT_FOUND"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	ErrCodePersistence      = "PERSISTENCE_ERROR"
	ErrCodeUpstream         = "UPSTREAM_ERROR"
	ErrCodeInternal         = "INTERNAL_ERROR"
)

// NewValidationError はバリデーションエラーを生成する。
// detailsには全フィールドのエラーをまとめて渡す。
func NewValidationError(details []string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    ErrCodeValidationFailed,
		Message: "Validation failed",
		Details: details,
	}
}

// NewInvalidRequestError はリクエストボディを解釈できない場合のエラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    ErrCodeInvalidRequest,
		Message: "Request body must be a JSON object",
	}
}

// NewUserExistsError は登録済みメールアドレスでのサインアップを拒否するエラーを生成する。
func NewUserExistsError() *APIError {
	return &APIError{
		Status:  http.StatusConflict,
		Code:    ErrCodeUserExists,
		Message: "An account with this email already exists. Log in instead.",
	}
}

// NewUnauthorizedError は認証エラーを生成する。
// 署名不正・期限切れ・失効の区別はクライアントに漏らさない。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Status:  http.StatusUnauthorized,
		Code:    ErrCodeUnauthorized,
		Message: "Unauthorized",
	}
}

// NewInvalidIDTokenError はGoogle IDトークンの検証失敗エラーを生成する。
func NewInvalidIDTokenError() *APIError {
	return &APIError{
		Status:  http.StatusUnauthorized,
		Code:    ErrCodeInvalidIDToken,
		Message: "Invalid Google ID token",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Code:    ErrCodeUserNotFound,
		Message: "User not found",
	}
}

// NewNotFoundError は未定義ルートへのアクセスのエラーを生成する。
func NewNotFoundError() *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Code:    ErrCodeNotFound,
		Message: "Not Found",
	}
}

// NewMethodNotAllowedError は許可されていないメソッドのエラーを生成する。
func NewMethodNotAllowedError() *APIError {
	return &APIError{
		Status:  http.StatusMethodNotAllowed,
		Code:    ErrCodeMethodNotAllowed,
		Message: "Method Not Allowed",
	}
}

// PersistenceError はデータストアの操作失敗を表す。
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// UpstreamError は外部サービス（Google等）の呼び出し失敗を表す。
type UpstreamError struct {
	Service string
	Err     error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error: %s: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
