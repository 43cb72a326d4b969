package systemtesting

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asccclass/skillbridge/internal/kvstore"
	"github.com/asccclass/skillbridge/internal/skillstore"
)

// ============================================================
// Stage 2: Persistence — SQLite 後端在重新啟動後保留資料
// API Key 以密文存放，重開後仍能解密呼叫上游
// ============================================================

func openSQLite(t *testing.T, path string) kvstore.Store {
	t.Helper()
	kv, err := kvstore.Open(context.Background(), kvstore.Options{Driver: "sqlite", SQLitePath: path})
	require.NoError(t, err)
	return kv
}

func TestPersistence_SurvivesRestart(t *testing.T) {
	up := newUpstream(t)
	path := filepath.Join(t.TempDir(), "skillbridge.db")

	// 第一次啟動：註冊並對話
	kv := openSQLite(t, path)
	s := newStack(t, kv)
	register(t, s.router, "alice", up.URL)
	rec := do(t, s.router, http.MethodPost, "/api/chat", "alice", map[string]any{"message": "list my pets", "stream": false})
	require.Equal(t, http.StatusOK, rec.Code)

	// 密文中不應出現明文 key
	keys, err := kv.List(context.Background(), "")
	require.NoError(t, err)
	for _, k := range keys {
		raw, err := kv.Get(context.Background(), k)
		require.NoError(t, err)
		assert.NotContains(t, string(raw), "pet-secret", "key %s", k)
	}
	require.NoError(t, kv.Close())

	// 第二次啟動：資料仍在
	kv = openSQLite(t, path)
	defer kv.Close()
	s = newStack(t, kv)

	rec = do(t, s.router, http.MethodGet, "/api/skills/list", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		APIs []skillstore.APISummary `json:"apis"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.APIs, 1)
	assert.Equal(t, []string{"listPets"}, list.APIs[0].SkillNames)

	rec = do(t, s.router, http.MethodGet, "/api/chat/history", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var hist struct {
		Messages []map[string]any `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hist))
	assert.Len(t, hist.Messages, 2)

	// 重開後再呼叫一次，上游收到同一把 key
	rec = do(t, s.router, http.MethodPost, "/api/chat", "alice", map[string]any{"message": "list my pets again", "stream": false})
	require.Equal(t, http.StatusOK, rec.Code)
	up.mu.Lock()
	defer up.mu.Unlock()
	require.Len(t, up.auth, 2)
	assert.Equal(t, "Bearer pet-secret", up.auth[1])
	assert.True(t, strings.HasPrefix(up.query[1], "limit="))
}
