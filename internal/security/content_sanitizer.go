// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizerService はユーザー投稿コンテンツ（掲示板本文、メッセージ、
// プロフィール等）をサニタイズし、XSS攻撃などのセキュリティリスクから
// ユーザーを保護する。bluemondayライブラリを使用した許可リストベースの
// ポリシーで、安全なタグのみを通過させる。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はユーザー投稿コンテンツのサニタイズ機能の
// インターフェースを定義する。保存前に必ず適用する。
type ContentSanitizerService interface {
	// SanitizeRichText は掲示板本文など限定的な装飾を許すフィールドを
	// サニタイズする。許可タグ（p, br, ul, ol, li, blockquote, strong, em, a）
	// のみを通過させ、script, iframe, styleタグおよびon*イベント属性を除去する。
	// aタグにはtarget="_blank"とrel="noopener noreferrer"が自動付与される。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	SanitizeRichText(raw string) string

	// SanitizeText はタイトル、プロフィール、メッセージ本文など
	// プレーンテキストのフィールドからすべてのHTMLタグを除去する。
	// 前後の空白もトリムする。
	SanitizeText(raw string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type contentSanitizer struct {
	richPolicy   *bluemonday.Policy
	strictPolicy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
// 初期化時にbluemondayのカスタムポリシーを構築する。
// リッチテキストポリシーの内容:
//   - 許可タグ: p, br, ul, ol, li, blockquote, strong, em, a
//   - 禁止タグ: script, iframe, style, img および全てのon*イベント属性
//   - aタグ: target="_blank" と rel="noopener noreferrer" を自動付与
//
// プレーンテキストポリシーはすべてのタグを除去する。
func NewContentSanitizer() *contentSanitizer {
	rich := bluemonday.NewPolicy()

	// 許可タグの設定（属性なしのシンプルなタグ）。
	// script, iframe, style等は許可リストに含めないことで自動的に除去される。
	// on*イベント属性はbluemondayのデフォルトで許可されないため除去される。
	// imgはユーザー投稿では許可しない（写真は専用の取得フローを通す）。
	rich.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote",
		"strong", "em",
	)

	// aタグの設定:
	// - href属性を許可
	// - 相対URLは不許可
	// - target="_blank"を全リンクに強制付与
	// - rel="noreferrer noopener"を強制付与
	rich.AllowAttrs("href").OnElements("a")
	rich.AllowStandardURLs()
	rich.AllowRelativeURLs(false)
	rich.AddTargetBlankToFullyQualifiedLinks(true)
	rich.RequireNoReferrerOnLinks(true)

	return &contentSanitizer{
		richPolicy:   rich,
		strictPolicy: bluemonday.StrictPolicy(),
	}
}

// SanitizeRichText は限定的な装飾を許すフィールドをサニタイズする。
func (s *contentSanitizer) SanitizeRichText(raw string) string {
	return s.richPolicy.Sanitize(raw)
}

// SanitizeText はすべてのHTMLタグを除去しプレーンテキストを返す。
func (s *contentSanitizer) SanitizeText(raw string) string {
	return strings.TrimSpace(s.strictPolicy.Sanitize(raw))
}

var _ ContentSanitizerService = (*contentSanitizer)(nil)
