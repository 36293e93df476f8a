// Package security はプロフィール入力の無害化と外部通信の安全性確保を提供する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はユーザーが入力したプレーンテキストからマークアップを取り除く。
type TextSanitizer interface {
	// Clean はタグをすべて除去し、前後の空白を取り除いたテキストを返す。
	// 空文字列の入力には空文字列を返す。
	Clean(s string) string
}

const maxCleanPasses = 4

// textSanitizer はbluemondayのStrictPolicyによるTextSanitizerの実装。
// Policyは生成後に変更しなければ並行利用できる。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// Clean はタグを除去したプレーンテキストを返す。
// タグを含まない入力は前後の空白を除くだけで、"&amp;" などの文字列もそのまま残す。
// タグを含む入力はStrictPolicyの出力のエスケープを戻すため、文字参照は復号される。
func (s *textSanitizer) Clean(in string) string {
	out := in
	// 復号で新たなタグが現れることがあるため、変化しなくなるまで繰り返す
	for i := 0; i < maxCleanPasses && strings.ContainsRune(out, '<'); i++ {
		next := html.UnescapeString(s.policy.Sanitize(out))
		if next == out {
			break
		}
		out = next
	}
	return strings.TrimSpace(out)
}

var _ TextSanitizer = (*textSanitizer)(nil)
