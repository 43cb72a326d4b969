package webapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asccclass/skillbridge/internal/agent"
	"github.com/asccclass/skillbridge/internal/history"
	"github.com/asccclass/skillbridge/internal/invoker"
	"github.com/asccclass/skillbridge/internal/kvstore"
	"github.com/asccclass/skillbridge/internal/skillstore"
	"github.com/asccclass/skillbridge/llms"
)

// scriptedProvider 依序回傳 replies，最後一個會重複使用
type scriptedProvider struct {
	mu      sync.Mutex
	replies []func(llms.ChatRequest) (*llms.Message, error)
	calls   int
}

func (p *scriptedProvider) Name() string { return "stub" }

func (p *scriptedProvider) Chat(_ context.Context, req llms.ChatRequest) (*llms.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.calls
	if i >= len(p.replies) {
		i = len(p.replies) - 1
	}
	p.calls++
	return p.replies[i](req)
}

func echo(req llms.ChatRequest) (*llms.Message, error) {
	last := req.Messages[len(req.Messages)-1]
	return &llms.Message{Role: llms.RoleAssistant, Content: "echo: " + last.Content}, nil
}

type env struct {
	srv      *httptest.Server
	provider *scriptedProvider
	history  *history.Store
}

func newEnv(t *testing.T, maxSpec int64, replies ...func(llms.ChatRequest) (*llms.Message, error)) *env {
	t.Helper()
	if len(replies) == 0 {
		replies = append(replies, echo)
	}
	kv := kvstore.NewMemory()
	skills := skillstore.New(kv, nil)
	hist := history.NewStore(kv)
	provider := &scriptedProvider{replies: replies}
	a := agent.NewAgent(provider, "stub-model", skills, hist, invoker.New(0))

	srv := httptest.NewServer(NewRouter(Deps{
		Agent:        a,
		Skills:       skills,
		History:      hist,
		Provider:     provider,
		StoreDriver:  "memory",
		MaxSpecBytes: maxSpec,
	}))
	t.Cleanup(srv.Close)
	return &env{srv: srv, provider: provider, history: hist}
}

func (e *env) do(t *testing.T, method, path string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(data)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func decode(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out), string(data))
	return out
}

const petstoreYAML = `openapi: 3.0.0
info:
  title: Petstore
  version: "1.0"
servers:
  - url: %s
paths:
  /pets/{petId}:
    get:
      operationId: getPet
      summary: Find a pet by id
      parameters:
        - name: petId
          in: path
          required: true
          schema:
            type: integer
  /pets:
    get:
      operationId: listPets
      summary: List pets
`

func TestRegisterListGetDelete(t *testing.T) {
	e := newEnv(t, 0)
	user := map[string]string{HeaderUserID: "alice"}

	resp, body := e.do(t, http.MethodPost, "/api/skills/register", map[string]any{
		"apiName": "petstore",
		"spec":    fmt.Sprintf(petstoreYAML, "https://pets.example"),
		"apiKey":  "k",
	}, user)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	out := decode(t, body)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, float64(2), out["skillCount"])
	assert.Equal(t, []any{"getPet", "listPets"}, out["skillNames"])

	resp, body = e.do(t, http.MethodGet, "/api/skills/list", nil, user)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	apis := decode(t, body)["apis"].([]any)
	require.Len(t, apis, 1)
	first := apis[0].(map[string]any)
	assert.Equal(t, "petstore", first["apiName"])
	assert.Equal(t, "https://pets.example", first["baseUrl"])
	assert.Equal(t, float64(2), first["skillCount"])
	assert.NotContains(t, first, "encryptedApiKey")

	// 其他使用者看不到
	_, body = e.do(t, http.MethodGet, "/api/skills/list", nil, nil)
	assert.Empty(t, decode(t, body)["apis"])

	// 以物件形式重新註冊，完整取代
	resp, body = e.do(t, http.MethodPost, "/api/skills/register", map[string]any{
		"apiName": "petstore",
		"spec": map[string]any{
			"swagger": "2.0",
			"host":    "v2.example",
			"paths": map[string]any{
				"/status": map[string]any{"get": map[string]any{"operationId": "status"}},
			},
		},
	}, user)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, body = e.do(t, http.MethodGet, "/api/skills/get?apiName=petstore", nil, user)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode(t, body)
	assert.Equal(t, "https://v2.example", got["baseUrl"])
	assert.Len(t, got["skills"], 1)

	resp, _ = e.do(t, http.MethodGet, "/api/skills/get?apiName=missing", nil, user)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = e.do(t, http.MethodPost, "/api/skills/delete", map[string]any{"apiName": "petstore"}, user)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, body = e.do(t, http.MethodPost, "/api/skills/delete", map[string]any{"apiName": "petstore"}, user)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, decode(t, body)["error"], "not found")
}

func TestRegisterValidation(t *testing.T) {
	e := newEnv(t, 256)

	resp, body := e.do(t, http.MethodPost, "/api/skills/register", map[string]any{
		"apiName": "big",
		"spec":    strings.Repeat("x", 300),
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decode(t, body)["error"], "Spec is too large")

	resp, _ = e.do(t, http.MethodPost, "/api/skills/register", map[string]any{"spec": `{"openapi":"3.0.0","paths":{}}`}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = e.do(t, http.MethodPost, "/api/skills/register", map[string]any{
		"apiName": "empty",
		"spec":    `{"openapi":"3.0.0","paths":{}}`,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decode(t, body)["error"], "No valid operations")

	resp, _ = e.do(t, http.MethodPost, "/api/skills/register", map[string]any{
		"apiName": "junk",
		"spec":    "- just\n- a list\n",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChatNonStreaming(t *testing.T) {
	e := newEnv(t, 0)
	headers := map[string]string{HeaderSessionID: "s1"}

	resp, body := e.do(t, http.MethodPost, "/api/chat", map[string]any{"message": "Hi there", "stream": false}, headers)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode(t, body)
	assert.Equal(t, "echo: Hi there", out["response"])
	assert.NotContains(t, out, "error")

	sess, err := e.history.Load(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, sess.Messages, 2)
	assert.Equal(t, "user", sess.Messages[0].Role)
	assert.Equal(t, "assistant", sess.Messages[1].Role)

	resp, body = e.do(t, http.MethodGet, "/api/chat/history", nil, headers)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode(t, body)["messages"], 2)

	resp, _ = e.do(t, http.MethodDelete, "/api/chat/history", nil, headers)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, body = e.do(t, http.MethodGet, "/api/chat/history", nil, headers)
	assert.Empty(t, decode(t, body)["messages"])
}

func TestChatDefaultSession(t *testing.T) {
	e := newEnv(t, 0)
	resp, _ := e.do(t, http.MethodPost, "/api/chat", map[string]any{"message": "Hi", "stream": false}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	sess, err := e.history.Load(context.Background(), "default-session")
	require.NoError(t, err)
	assert.Len(t, sess.Messages, 2)
}

func TestChatRequiresMessage(t *testing.T) {
	e := newEnv(t, 0)
	for _, body := range []map[string]any{{"message": ""}, {}, {"message": 42}, {"message": "   "}} {
		resp, data := e.do(t, http.MethodPost, "/api/chat", body, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, decode(t, data)["error"], "Message is required")
	}
}

func TestChatModelFailureIs200(t *testing.T) {
	e := newEnv(t, 0, func(llms.ChatRequest) (*llms.Message, error) {
		return nil, errors.New("model down")
	})
	resp, body := e.do(t, http.MethodPost, "/api/chat", map[string]any{"message": "Hi there", "stream": false}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode(t, body)
	assert.Contains(t, out["response"], "AI service is currently unavailable")
	assert.Equal(t, "ai-unavailable", out["error"].(map[string]any)["type"])
}

// readSSE 回傳所有 data 行 (含 [DONE])
func readSSE(t *testing.T, resp *http.Response) []string {
	t.Helper()
	var lines []string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "data: ") {
			lines = append(lines, strings.TrimPrefix(line, "data: "))
		}
	}
	require.NoError(t, sc.Err())
	return lines
}

func TestChatStreamingToolRound(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":7,"name":"Rex"}`))
	}))
	defer backend.Close()

	e := newEnv(t, 0,
		func(req llms.ChatRequest) (*llms.Message, error) {
			return &llms.Message{Role: llms.RoleAssistant, ToolCalls: []llms.ToolCall{{ID: "c1", Name: "getPet", Arguments: `{"petId":7}`}}}, nil
		},
		func(req llms.ChatRequest) (*llms.Message, error) {
			return &llms.Message{Role: llms.RoleAssistant, Content: "Rex"}, nil
		},
	)
	resp, body := e.do(t, http.MethodPost, "/api/skills/register", map[string]any{
		"apiName": "petstore",
		"spec":    fmt.Sprintf(petstoreYAML, backend.URL),
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	data, _ := json.Marshal(map[string]any{"message": "get pet 7"})
	httpResp, err := http.Post(e.srv.URL+"/api/chat", "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer httpResp.Body.Close()
	assert.Equal(t, "text/event-stream", httpResp.Header.Get("Content-Type"))

	lines := readSSE(t, httpResp)
	require.GreaterOrEqual(t, len(lines), 5)
	assert.Equal(t, "[DONE]", lines[len(lines)-1])

	var types []string
	var content strings.Builder
	for _, l := range lines[:len(lines)-1] {
		var ev map[string]any
		require.NoError(t, json.Unmarshal([]byte(l), &ev))
		types = append(types, ev["type"].(string))
		if ev["type"] == "content" {
			content.WriteString(ev["content"].(string))
		}
		if ev["type"] == "skill_result" {
			assert.Equal(t, true, ev["success"])
			assert.Equal(t, "getPet", ev["skill"])
		}
	}
	assert.Equal(t, []string{"scenario_results", "executing_skills", "skill_result", "content", "content", "content"}, types)
	assert.Equal(t, "Rex", content.String())
	assert.Equal(t, 2, e.provider.calls)

	sess, err := e.history.Load(context.Background(), "default-session")
	require.NoError(t, err)
	require.Len(t, sess.Messages, 2)
	assert.Contains(t, sess.Messages[1].Metadata, "toolExecutions")
}

func TestCORSPreflight(t *testing.T) {
	e := newEnv(t, 0)
	resp, _ := e.do(t, http.MethodOptions, "/api/chat", nil, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	allowed := resp.Header.Get("Access-Control-Allow-Headers")
	for _, h := range []string{"Content-Type", "X-Session-ID", "X-User-ID"} {
		assert.Contains(t, allowed, h)
	}
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "POST")
}

func TestHealthz(t *testing.T) {
	e := newEnv(t, 0)
	resp, body := e.do(t, http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode(t, body)
	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, "stub", out["provider"])
	assert.Equal(t, "memory", out["store"])
}

func TestWebSocketChat(t *testing.T) {
	e := newEnv(t, 0)
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/api/chat/ws?sessionId=ws1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{"message": ""}))
	var frame map[string]any
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "error", frame["type"])

	require.NoError(t, conn.WriteJSON(map[string]any{"message": "Hi"}))
	var content strings.Builder
	for {
		frame = nil
		require.NoError(t, conn.ReadJSON(&frame))
		if frame["type"] == "done" {
			break
		}
		require.Equal(t, "content", frame["type"])
		content.WriteString(frame["content"].(string))
	}
	assert.Equal(t, "echo: Hi", content.String())
	assert.Equal(t, "echo: Hi", frame["result"].(map[string]any)["response"])

	sess, err := e.history.Load(context.Background(), "ws1")
	require.NoError(t, err)
	assert.Len(t, sess.Messages, 2)
}
