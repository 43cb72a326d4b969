package llms

import (
	"context"
	"encoding/json"

	"github.com/asccclass/skillbridge/llms/ollama"
)

// OllamaProvider 透過 /api/chat 呼叫本地 Ollama
type OllamaProvider struct {
	client *ollama.Client
}

func NewOllamaProvider(host string) *OllamaProvider {
	return &OllamaProvider{client: ollama.NewClient(host)}
}

func (p *OllamaProvider) Name() string { return "ollama" }

func (p *OllamaProvider) Ping(ctx context.Context) error {
	_, err := p.client.Ping(ctx)
	return err
}

// Chat 實作 Provider；Ollama 沒有 tool_choice，有 tools 時即為 auto
func (p *OllamaProvider) Chat(ctx context.Context, req ChatRequest) (*Message, error) {
	msgs := make([]ollama.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, toOllamaMessage(m))
	}
	resp, err := p.client.Chat(ctx, req.Model, msgs, req.Tools)
	if err != nil {
		return nil, err
	}
	return fromOllamaMessage(resp), nil
}

func toOllamaMessage(m Message) ollama.Message {
	out := ollama.Message{Role: m.Role, Content: m.Content}
	if m.Role == RoleTool {
		out.ToolName = m.Name
	}
	for _, tc := range m.ToolCalls {
		args := json.RawMessage(tc.Arguments)
		if !json.Valid(args) {
			args = json.RawMessage("{}")
		}
		out.ToolCalls = append(out.ToolCalls, ollama.ToolCall{
			ID:       tc.ID,
			Function: ollama.ToolCallFunction{Name: tc.Name, Arguments: args},
		})
	}
	return out
}

func fromOllamaMessage(m ollama.Message) *Message {
	msg := &Message{Role: RoleAssistant, Content: m.Content}
	for _, tc := range m.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: rawArguments(tc.Function.Arguments),
		})
	}
	return msg
}

// rawArguments 物件原樣轉成字串；若模型回傳的是 JSON 字串則取出內容
func rawArguments(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return "{}"
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
