package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/marquee/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// errorには人が読むメッセージ、codeには機械判定用のコードを入れる。
type ErrorResponseBody struct {
	OK      bool     `json:"ok"`
	Error   string   `json:"error"`
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

// WriteJSON はvalueをJSONで書き込む。
func WriteJSON(w http.ResponseWriter, statusCode int, value interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(value); err != nil {
		slog.Warn("レスポンスの書き込みに失敗しました", slog.String("error", err.Error()))
	}
}

// WriteErrorResponse はAPIErrorを統一フォーマットで書き込む。ステータスはapiErr.Statusを使う。
func WriteErrorResponse(w http.ResponseWriter, apiErr *model.APIError) {
	status := apiErr.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	WriteJSON(w, status, ErrorResponseBody{
		OK:      false,
		Error:   apiErr.Message,
		Code:    apiErr.Code,
		Message: apiErr.Message,
		Details: apiErr.Details,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、クライアントには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, &model.APIError{
		Status:  http.StatusInternalServerError,
		Code:    model.ErrCodeInternal,
		Message: "Internal Server Error",
	})
}

// WriteError はハンドラーとミドルウェアから返されたエラーをレスポンスに変換する。
// 5xxになるエラーのみログに記録する。
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Status >= http.StatusInternalServerError {
			logServerError(r, err)
		}
		WriteErrorResponse(w, apiErr)
		return
	}

	logServerError(r, err)

	var persistErr *model.PersistenceError
	var upstreamErr *model.UpstreamError
	switch {
	case errors.As(err, &persistErr):
		WriteErrorResponse(w, &model.APIError{
			Status:  http.StatusInternalServerError,
			Code:    model.ErrCodePersistence,
			Message: "Internal Server Error",
		})
	case errors.As(err, &upstreamErr):
		WriteErrorResponse(w, &model.APIError{
			Status:  http.StatusInternalServerError,
			Code:    model.ErrCodeUpstream,
			Message: "Internal Server Error",
		})
	default:
		WriteInternalServerError(w)
	}
}

func logServerError(r *http.Request, err error) {
	slog.Error("リクエストの処理に失敗しました",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
}
