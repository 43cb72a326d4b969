package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/ollama/ollama/api"
)

const DefaultHost = "http://localhost:11434"

// Message 代表對話中的一則訊息（符合 Ollama /api/chat 標準）
type Message struct {
	Role      string     `json:"role"`                 // system, user, assistant, tool
	Content   string     `json:"content"`              // 訊息內容
	ToolCalls []ToolCall `json:"tool_calls,omitempty"` // AI 請求的工具呼叫
	ToolName  string     `json:"tool_name,omitempty"`  // role=tool 時對應的工具名稱
}

// ToolCall 是 Ollama 回傳的工具呼叫；arguments 是 JSON 物件
type ToolCall struct {
	ID       string           `json:"id,omitempty"`
	Function ToolCallFunction `json:"function"`
}

type ToolCallFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ChatRequest 定義發送至 /api/chat 的資料結構
type ChatRequest struct {
	Model    string     `json:"model"`
	Messages []Message  `json:"messages"`
	Tools    []api.Tool `json:"tools,omitempty"` // 工具定義清單
	Stream   bool       `json:"stream"`
}

// ChatResponse 是非串流模式的回傳格式
type ChatResponse struct {
	Model   string  `json:"model"`
	Message Message `json:"message"`
	Done    bool    `json:"done"`
	Error   string  `json:"error,omitempty"`
}

// Client 包裝對 Ollama 伺服器的呼叫
type Client struct {
	host string
	http *resty.Client
}

// NewClient 建立 Client；host 為空時使用 OLLAMA 預設位址
func NewClient(host string) *Client {
	if host == "" {
		host = DefaultHost
	}
	host = strings.TrimSuffix(host, "/")
	return &Client{
		host: host,
		http: resty.New().SetBaseURL(host).SetTimeout(5 * time.Minute),
	}
}

// Host 回傳伺服器位址
func (c *Client) Host() string { return c.host }

// Chat 送出非串流的 /api/chat 請求
func (c *Client) Chat(ctx context.Context, model string, messages []Message, tools []api.Tool) (Message, error) {
	var out ChatResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(ChatRequest{Model: model, Messages: messages, Tools: tools, Stream: false}).
		SetResult(&out).
		SetError(&out).
		Post("/api/chat")
	if err != nil {
		return Message{}, fmt.Errorf("連線至 Ollama 失敗: %w", err)
	}
	if resp.IsError() {
		if out.Error != "" {
			return Message{}, fmt.Errorf("Ollama 回傳錯誤碼 %d: %s", resp.StatusCode(), out.Error)
		}
		return Message{}, fmt.Errorf("Ollama 回傳錯誤碼: %d", resp.StatusCode())
	}

	msg := out.Message
	if msg.Role == "" {
		msg.Role = "assistant"
	}
	// Ollama 不一定會給 tool call id，補上一個讓 tool 訊息可以對應
	for i := range msg.ToolCalls {
		if msg.ToolCalls[i].ID == "" {
			msg.ToolCalls[i].ID = "call_" + uuid.New().String()
		}
	}
	return msg, nil
}
