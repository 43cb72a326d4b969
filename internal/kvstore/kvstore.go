// Package kvstore 提供 Skill Store 與 Conversation Store 共用的鍵值儲存
package kvstore

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound 表示指定的 key 不存在
var ErrNotFound = errors.New("kvstore: key not found")

// Store 是外部鍵值儲存的最小介面 (get/put/delete/list with prefix scan)
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// List 回傳所有以 prefix 開頭的 key，依字典序排列
	List(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// Locker 為每個 key 提供獨立的互斥鎖，讓同一個 user / session 只有一個寫入者
type Locker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewLocker 建立新的 Locker
func NewLocker() *Locker {
	return &Locker{locks: make(map[string]*keyLock)}
}

// Lock 取得 key 的鎖，回傳的函式負責釋放
func (l *Locker) Lock(key string) (unlock func()) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	kl.mu.Lock()
	return func() {
		kl.mu.Unlock()
		l.mu.Lock()
		kl.refs--
		if kl.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}
