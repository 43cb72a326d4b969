// Package history 保存每個 session 的對話紀錄
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/asccclass/skillbridge/internal/kvstore"
)

const (
	keyPrefix = "session:"
	// MaxMessages 是每個 session 保留的訊息上限，超過時從最舊的開始丟棄
	MaxMessages = 100
)

// 角色
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message 代表對話中的一則訊息
type Message struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Session 代表一次完整的對話會話
type Session struct {
	ID         string    `json:"id"`
	Messages   []Message `json:"messages"`
	LastUpdate time.Time `json:"last_update"`
}

// Store 是 Conversation Store，以 kvstore 為後端
type Store struct {
	kv    kvstore.Store
	locks *kvstore.Locker
	now   func() time.Time
}

// NewStore 建立 Conversation Store
func NewStore(kv kvstore.Store) *Store {
	return &Store{kv: kv, locks: kvstore.NewLocker(), now: time.Now}
}

func sessionKey(id string) string { return keyPrefix + id }

// Load 載入指定 ID 的對話紀錄；不存在時回傳空 Session
func (s *Store) Load(ctx context.Context, id string) (*Session, error) {
	data, err := s.kv.Get(ctx, sessionKey(id))
	if errors.Is(err, kvstore.ErrNotFound) {
		return &Session{ID: id, Messages: []Message{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	if sess.ID == "" {
		sess.ID = id
	}
	if sess.Messages == nil {
		sess.Messages = []Message{}
	}
	return &sess, nil
}

// Append 在尾端加入訊息並套用 MaxMessages 上限，回傳更新後的 Session
func (s *Store) Append(ctx context.Context, id string, msgs ...Message) (*Session, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	sess, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	for _, m := range msgs {
		if m.Timestamp.IsZero() {
			m.Timestamp = now
		}
		sess.Messages = append(sess.Messages, m)
	}
	if over := len(sess.Messages) - MaxMessages; over > 0 {
		sess.Messages = append([]Message(nil), sess.Messages[over:]...)
	}
	sess.LastUpdate = now

	data, err := json.Marshal(sess)
	if err != nil {
		return nil, err
	}
	if err := s.kv.Put(ctx, sessionKey(id), data); err != nil {
		return nil, fmt.Errorf("save session %s: %w", id, err)
	}
	return sess, nil
}

// Clear 刪除指定 session 的所有紀錄
func (s *Store) Clear(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()
	return s.kv.Delete(ctx, sessionKey(id))
}

// PruneIdle 刪除超過 ttl 沒有更新的 session，回傳刪除數量
func (s *Store) PruneIdle(ctx context.Context, ttl time.Duration) (int, error) {
	keys, err := s.kv.List(ctx, keyPrefix)
	if err != nil {
		return 0, err
	}
	cutoff := s.now().Add(-ttl)
	removed := 0
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		id := strings.TrimPrefix(key, keyPrefix)
		sess, err := s.Load(ctx, id)
		if err != nil {
			log.Warnf("[History] 略過無法讀取的 session %s: %v", id, err)
			continue
		}
		if sess.LastUpdate.IsZero() || sess.LastUpdate.After(cutoff) {
			continue
		}
		if err := s.Clear(ctx, id); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
