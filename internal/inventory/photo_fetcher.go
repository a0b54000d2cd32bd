// Package inventory はインベントリアイテム管理のドメインロジックを提供する。
package inventory

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/smnguyen/epulo/internal/model"
	"github.com/smnguyen/epulo/internal/security"
)

// PhotoFetcherService は出品写真取得のインターフェース。
type PhotoFetcherService interface {
	// FetchPhoto は指定URLから出品写真を取得する。
	// URLが無効な場合はINVALID_URL、宛先がブロック対象の場合は
	// SSRF_BLOCKEDのエラーを返す。
	// それ以外の取得失敗（ネットワークエラー等）はnilデータと
	// 空MIMEを返し、写真なしのアイテムとして保存を続行できるようにする。
	FetchPhoto(ctx context.Context, photoURL string) (data []byte, mimeType string, err error)
}

// SSRFValidator はURL検証と安全なHTTPクライアント生成のインターフェース。
// security.SSRFGuardServiceの部分集合として定義する。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// LatencyRecorder は写真取得レイテンシの記録インターフェース。
type LatencyRecorder interface {
	RecordPhotoFetchLatency(duration time.Duration)
}

// PhotoFetcher は出品写真取得機能の実装。
// ユーザー指定のURLを扱うためSSRFガード経由でのみ外部アクセスする。
type PhotoFetcher struct {
	ssrfGuard SSRFValidator
	metrics   LatencyRecorder
	timeout   time.Duration
	maxSize   int64
}

// NewPhotoFetcher はPhotoFetcherの新しいインスタンスを生成する。
// metricsはnil可。
func NewPhotoFetcher(ssrfGuard SSRFValidator, metrics LatencyRecorder, timeout time.Duration, maxSize int64) *PhotoFetcher {
	return &PhotoFetcher{
		ssrfGuard: ssrfGuard,
		metrics:   metrics,
		timeout:   timeout,
		maxSize:   maxSize,
	}
}

// FetchPhoto は指定URLから出品写真を取得する。
// URL検証に失敗した場合はエラーを返し、保存を中断させる。
// 検証通過後の取得失敗はnilデータと空MIMEを返す（写真なしとして保存を続行する）。
func (f *PhotoFetcher) FetchPhoto(ctx context.Context, photoURL string) ([]byte, string, error) {
	if photoURL == "" {
		return nil, "", nil
	}

	// SSRF検証
	if f.ssrfGuard != nil {
		if err := f.ssrfGuard.ValidateURL(photoURL); err != nil {
			slog.Warn("写真取得: URL検証に失敗", "url", photoURL, "error", err)
			if errors.Is(err, security.ErrBlockedDestination) {
				return nil, "", model.NewSSRFBlockedError()
			}
			return nil, "", model.NewInvalidURLError(err.Error())
		}
	}

	start := time.Now()
	defer func() {
		if f.metrics != nil {
			f.metrics.RecordPhotoFetchLatency(time.Since(start))
		}
	}()

	client := f.getHTTPClient()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, photoURL, nil)
	if err != nil {
		slog.Warn("写真取得: リクエスト作成失敗", "url", photoURL, "error", err)
		return nil, "", nil
	}
	req.Header.Set("User-Agent", "Epulo/1.0")

	resp, err := client.Do(req)
	if err != nil {
		slog.Warn("写真取得: HTTPリクエスト失敗", "url", photoURL, "error", err)
		return nil, "", nil
	}
	defer resp.Body.Close()

	// 2xx以外は取得失敗として扱う
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Warn("写真取得: HTTPステータス異常", "url", photoURL, "status", resp.StatusCode)
		return nil, "", nil
	}

	// レスポンスボディを読み込み（最大サイズ+1で超過を検出）
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		slog.Warn("写真取得: レスポンス読み取り失敗", "url", photoURL, "error", err)
		return nil, "", nil
	}

	if int64(len(body)) > f.maxSize {
		slog.Warn("写真取得: サイズ超過", "url", photoURL, "size", len(body))
		return nil, "", nil
	}

	mimeType := extractMimeType(resp.Header.Get("Content-Type"))

	// 画像でない場合はnilを返す
	if !isImageMime(mimeType) {
		slog.Warn("写真取得: 画像以外のContent-Type", "url", photoURL, "contentType", mimeType)
		return nil, "", nil
	}

	return body, mimeType, nil
}

// getHTTPClient はHTTPクライアントを取得する。
func (f *PhotoFetcher) getHTTPClient() *http.Client {
	if f.ssrfGuard != nil {
		return f.ssrfGuard.NewSafeClient(f.timeout, f.maxSize)
	}
	return &http.Client{Timeout: f.timeout}
}

// extractMimeType はContent-Typeヘッダーからメディアタイプを抽出する。
func extractMimeType(contentType string) string {
	if contentType == "" {
		return ""
	}
	parts := strings.SplitN(contentType, ";", 2)
	return strings.TrimSpace(strings.ToLower(parts[0]))
}

// isImageMime はMIMEタイプが画像かどうかを判定する。
func isImageMime(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/")
}

var _ PhotoFetcherService = (*PhotoFetcher)(nil)
