package auth

import (
	"sync"
	"time"

	"github.com/smnguyen/epulo/internal/model"
)

// cacheEntry はキャッシュされたユーザーと有効期限を保持する。
type cacheEntry struct {
	user      *model.User
	expiresAt time.Time
}

// SessionCache はセッションIDをキーとしたユーザーのインプロセスキャッシュ。
// リクエストごとのディレクトリ参照を減らすための明示的なキャッシュ層で、
// ログアウト時とユーザー削除時に無効化される。
// TTL経過後のエントリはGetで無視され、バックグラウンドで定期削除される。
type SessionCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	stopCh  chan struct{}
}

// NewSessionCache はSessionCacheを生成し、バックグラウンドで
// 期限切れエントリのクリーンアップを開始する。
func NewSessionCache(ttl time.Duration) *SessionCache {
	c := &SessionCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		stopCh:  make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (c *SessionCache) Stop() {
	close(c.stopCh)
}

// Get はセッションIDに対応するユーザーを返す。
// エントリが存在しないか期限切れの場合は(nil, false)を返す。
func (c *SessionCache) Get(sessionID string) (*model.User, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[sessionID]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.user, true
}

// Put はセッションIDに対応するユーザーをTTL付きで保存する。
func (c *SessionCache) Put(sessionID string, user *model.User) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[sessionID] = cacheEntry{
		user:      user,
		expiresAt: time.Now().Add(c.ttl),
	}
}

// Invalidate は指定セッションのエントリを削除する。ログアウト時に呼ばれる。
func (c *SessionCache) Invalidate(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, sessionID)
}

// InvalidateByUserID は指定ユーザーの全エントリを削除する。
// プロフィール更新やユーザー削除後に古いユーザー像が残らないようにする。
func (c *SessionCache) InvalidateByUserID(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for sessionID, entry := range c.entries {
		if entry.user.ID == userID {
			delete(c.entries, sessionID)
		}
	}
}

// Len は現在のエントリ数を返す。テストおよびメトリクス用。
func (c *SessionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的に削除する。
func (c *SessionCache) cleanupLoop() {
	interval := c.ttl
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stopCh:
			return
		}
	}
}

// cleanup は期限切れエントリを削除する。
func (c *SessionCache) cleanup() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for sessionID, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, sessionID)
		}
	}
}
