package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"

	"github.com/hitoshi/marquee/internal/auth"
	"github.com/hitoshi/marquee/internal/middleware"
	"github.com/hitoshi/marquee/internal/model"
)

const (
	// maxRequestBodyBytes はJSONリクエストボディの上限。
	maxRequestBodyBytes = 100 << 10
	// dateLayout はAPIで扱う日付（誕生日、開催日）の形式。
	dateLayout = "2006-01-02"
)

// okResponse は本文を持たない成功レスポンス。
type okResponse struct {
	OK bool `json:"ok"`
}

// decodeJSON はリクエストボディをdstにデコードする。
// JSONオブジェクトとして解釈できない場合は INVALID_REQUEST を返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return model.NewInvalidRequestError()
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return model.NewInvalidRequestError()
	}
	return nil
}

// requestMeta はセッションに記録するクライアント情報を取り出す。
func requestMeta(r *http.Request) auth.RequestMeta {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	}
	return auth.RequestMeta{UserAgent: r.UserAgent(), IP: ip}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	middleware.WriteJSON(w, status, v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	middleware.WriteError(w, r, err)
}
