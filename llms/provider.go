// Package llms 定義模型呼叫的共用型別與各家 Provider
package llms

import (
	"context"
	"encoding/json"

	"github.com/ollama/ollama/api"
)

// 角色
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall 是模型要求的一次工具呼叫；Arguments 為 JSON 字串
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message 是與供應商無關的對話訊息
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // role=tool 時對應的 ToolCall.ID
	Name       string     `json:"name,omitempty"`         // role=tool 時的工具名稱
}

// ChatRequest 是單次模型呼叫的輸入；ToolChoice 只有在有 Tools 時才有意義
type ChatRequest struct {
	Model      string
	Messages   []Message
	Tools      []api.Tool
	ToolChoice string
}

// Provider 定義了所有 LLM 供應商必須實作的方法
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (*Message, error)
	Name() string
}

// Pinger 由可以檢查連線狀態的 Provider 實作
type Pinger interface {
	Ping(ctx context.Context) error
}

// ToolParameters 把 api.Tool 的參數 schema 轉成一般的 map
func ToolParameters(t api.Tool) map[string]any {
	out := map[string]any{}
	data, err := json.Marshal(t.Function.Parameters)
	if err != nil {
		return out
	}
	_ = json.Unmarshal(data, &out)
	if _, ok := out["type"]; !ok {
		out["type"] = "object"
	}
	return out
}

// splitSystem 取出所有 system 訊息，合併成一段文字
func splitSystem(messages []Message) (string, []Message) {
	var system string
	rest := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}
