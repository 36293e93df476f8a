// Package model はドメインモデルを定義する。
package model

import "time"

// User はサインアップまたはGoogleログインで登録されたユーザーを表す。
// 任意項目はポインタまたは空文字列で未設定を表現する。
type User struct {
	ID                  string
	Email               string
	FirstName           string
	LastName            string
	Phone               string
	Birthday            *time.Time // 日付のみ（時刻は00:00 UTC）
	TikTok              string
	Instagram           string
	GoogleSub           string
	GoogleEmail         string
	GoogleEmailVerified *bool
	CreatedAt           time.Time
}

// HasExternalIdentity はGoogleアカウントが紐付いているかを返す。
func (u *User) HasExternalIdentity() bool {
	return u.GoogleSub != ""
}

// Profile はサインアップフォームから受け取るプロフィール項目。
// Googleの項目はIDトークンが同時に送られた場合のみ設定される。
type Profile struct {
	Email               string
	FirstName           string
	LastName            string
	Phone               string
	Birthday            *time.Time
	TikTok              string
	Instagram           string
	GoogleSub           string
	GoogleEmail         string
	GoogleEmailVerified *bool
}

// ExternalIdentity は検証済みのGoogle IDトークンから取り出したクレーム。
type ExternalIdentity struct {
	Subject       string
	Email         string
	EmailVerified bool
	GivenName     string
	FamilyName    string
}

// Session はブラウザ1つ分のログインセッションを表す。
// IDはトークンのjtiと一致する。
type Session struct {
	ID        string
	UserID    string
	UserAgent string
	IP        string
	ExpiresAt time.Time
	CreatedAt time.Time
}
