package systemtesting

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asccclass/skillbridge/internal/agent"
	"github.com/asccclass/skillbridge/internal/history"
	"github.com/asccclass/skillbridge/internal/invoker"
	"github.com/asccclass/skillbridge/internal/kvstore"
	"github.com/asccclass/skillbridge/internal/secret"
	"github.com/asccclass/skillbridge/internal/skillstore"
	"github.com/asccclass/skillbridge/internal/webapi"
	"github.com/asccclass/skillbridge/llms"
)

// ============================================================
// Stage 1: Pipeline — 註冊 spec → 對話 → 呼叫上游 API → 紀錄
// 以真實的 webapi router 串起所有元件，只有模型是假的
// ============================================================

const petSpec = `
openapi: 3.0.0
info:
  title: Petstore
  version: "1.0"
servers:
  - url: %s
paths:
  /pets:
    get:
      operationId: listPets
      summary: List all pets
      parameters:
        - name: limit
          in: query
          schema: {type: integer}
`

// toolThenAnswer 第一次要求呼叫 listPets，之後根據工具結果回答
type toolThenAnswer struct {
	mu    sync.Mutex
	calls int
	seen  []llms.ChatRequest
}

func (p *toolThenAnswer) Name() string { return "stub" }

func (p *toolThenAnswer) Chat(_ context.Context, req llms.ChatRequest) (*llms.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.seen = append(p.seen, req)
	if p.calls == 1 {
		return &llms.Message{Role: llms.RoleAssistant, ToolCalls: []llms.ToolCall{
			{ID: "call_1", Name: "listPets", Arguments: `{"limit":2}`},
		}}, nil
	}
	last := req.Messages[len(req.Messages)-1]
	return &llms.Message{Role: llms.RoleAssistant, Content: "Found: " + last.Content}, nil
}

type upstream struct {
	*httptest.Server
	mu    sync.Mutex
	auth  []string
	query []string
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	u := &upstream{}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.auth = append(u.auth, r.Header.Get("Authorization"))
		u.query = append(u.query, r.URL.RawQuery)
		u.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":1,"name":"Rex"},{"id":2,"name":"Tom"}]`))
	}))
	t.Cleanup(u.Close)
	return u
}

type stack struct {
	router   http.Handler
	provider *toolThenAnswer
	history  *history.Store
}

func newStack(t *testing.T, kv kvstore.Store) *stack {
	t.Helper()
	sealer, err := secret.NewSealer("system-test-key")
	require.NoError(t, err)
	s := &stack{provider: &toolThenAnswer{}, history: history.NewStore(kv)}
	skills := skillstore.New(kv, sealer)
	a := agent.NewAgent(s.provider, "test-model", skills, s.history, invoker.New(0))
	s.router = webapi.NewRouter(webapi.Deps{
		Agent:       a,
		Skills:      skills,
		History:     s.history,
		Provider:    s.provider,
		StoreDriver: "memory",
	})
	return s
}

func do(t *testing.T, h http.Handler, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		payload = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, payload)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(webapi.HeaderUserID, user)
	req.Header.Set(webapi.HeaderSessionID, "sys-"+user)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func register(t *testing.T, h http.Handler, user, baseURL string) {
	t.Helper()
	spec := strings.Replace(petSpec, "%s", baseURL, 1)
	rec := do(t, h, http.MethodPost, "/api/skills/register", user, map[string]any{
		"apiName": "petstore",
		"spec":    spec,
		"apiKey":  "pet-secret",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestPipeline_RegisterChatInvoke(t *testing.T) {
	up := newUpstream(t)
	s := newStack(t, kvstore.NewMemory())
	register(t, s.router, "alice", up.URL)

	rec := do(t, s.router, http.MethodPost, "/api/chat", "alice", map[string]any{"message": "list my pets please"})
	require.Equal(t, http.StatusOK, rec.Code)

	// 讀出 SSE 事件
	var types []string
	var content strings.Builder
	sawDone := false
	sc := bufio.NewScanner(rec.Body)
	for sc.Scan() {
		line := strings.TrimPrefix(sc.Text(), "data: ")
		if line == "" {
			continue
		}
		if line == "[DONE]" {
			sawDone = true
			break
		}
		var ev agent.Event
		require.NoError(t, json.Unmarshal([]byte(line), &ev))
		types = append(types, ev.Type)
		if ev.Type == agent.EventContent {
			content.WriteString(ev.Content)
		}
	}
	assert.True(t, sawDone)
	require.NotEmpty(t, types)
	assert.Equal(t, agent.EventScenarioResults, types[0])
	assert.Contains(t, types, agent.EventExecutingSkills)
	assert.Contains(t, types, agent.EventSkillResult)
	assert.Contains(t, content.String(), "Rex")

	// 上游收到解密後的 key 與參數
	up.mu.Lock()
	assert.Equal(t, []string{"Bearer pet-secret"}, up.auth)
	assert.Equal(t, []string{"limit=2"}, up.query)
	up.mu.Unlock()

	// 模型第一次呼叫時有拿到 listPets 工具
	require.GreaterOrEqual(t, len(s.provider.seen), 2)
	require.Len(t, s.provider.seen[0].Tools, 1)
	assert.Equal(t, "listPets", s.provider.seen[0].Tools[0].Function.Name)

	// 紀錄依序為 user → assistant，並附上工具執行結果
	sess, err := s.history.Load(context.Background(), "sys-alice")
	require.NoError(t, err)
	require.Len(t, sess.Messages, 2)
	assert.Equal(t, history.RoleUser, sess.Messages[0].Role)
	assert.Equal(t, history.RoleAssistant, sess.Messages[1].Role)
	assert.Contains(t, sess.Messages[1].Content, "Rex")
	assert.NotNil(t, sess.Messages[1].Metadata["toolExecutions"])
}

func TestPipeline_UsersAreIsolated(t *testing.T) {
	up := newUpstream(t)
	s := newStack(t, kvstore.NewMemory())
	register(t, s.router, "alice", up.URL)

	rec := do(t, s.router, http.MethodGet, "/api/skills/list", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		APIs []skillstore.APISummary `json:"apis"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Empty(t, list.APIs)

	rec = do(t, s.router, http.MethodGet, "/api/skills/get?apiName=petstore", "bob", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPipeline_PendingCallsWithoutAutoExecute(t *testing.T) {
	up := newUpstream(t)
	s := newStack(t, kvstore.NewMemory())
	register(t, s.router, "alice", up.URL)

	rec := do(t, s.router, http.MethodPost, "/api/chat", "alice", map[string]any{
		"message":          "list my pets please",
		"stream":           false,
		"autoExecuteTools": false,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var res agent.TurnResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.PendingToolCalls, 1)
	assert.Equal(t, "listPets", res.PendingToolCalls[0].Skill)
	assert.Empty(t, res.ToolExecutions)

	up.mu.Lock()
	assert.Empty(t, up.auth)
	up.mu.Unlock()
}
