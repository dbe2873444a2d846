// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はユーザーが投稿するタイトル・本文・コメントから
// HTMLタグを除去し、プレーンテキストとして保存できる形にする。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はユーザー入力テキストのサニタイズ機能のインターフェース。
type TextSanitizer interface {
	// Sanitize はHTMLタグをすべて除去し、前後の空白を取り除いたプレーンテキストを返す。
	// 空文字列の入力には空文字列を返す。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerの実装。bluemondayのポリシーはスレッドセーフ。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はbluemondayのStrictPolicyを使うTextSanitizerを生成する。
// script, styleなどは中身ごと除去され、その他のタグは中のテキストだけが残る。
func NewTextSanitizer() TextSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はタグを除去する。
// bluemondayはテキスト中の&や<をエンティティにエスケープするため、
// 保存前にプレーンテキストへ戻す。JSONで返すため再エスケープは不要。
func (s *textSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(raw)))
}
