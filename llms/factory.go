package llms

import (
	"errors"
	"strings"
)

// Options 是建立 Provider 需要的設定
type Options struct {
	Provider        string
	OllamaHost      string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	AnthropicAPIKey string
}

// DefaultModel 回傳各 Provider 在未指定模型時使用的名稱
func DefaultModel(provider string) string {
	switch strings.ToLower(provider) {
	case "openai":
		return "gpt-4o-mini"
	case "anthropic":
		return "claude-sonnet-4-20250514"
	default:
		return "llama3.1"
	}
}

// NewProvider 回傳指定名稱的 Provider
// 目前支援: "ollama" (預設), "openai", "anthropic"
func NewProvider(opts Options) (Provider, error) {
	switch strings.ToLower(opts.Provider) {
	case "ollama", "": // 預設為 Ollama
		return NewOllamaProvider(opts.OllamaHost), nil
	case "openai":
		if opts.OpenAIAPIKey == "" && opts.OpenAIBaseURL == "" {
			return nil, errors.New("openai provider requires OPENAI_API_KEY or OPENAI_BASE_URL")
		}
		return NewOpenAIProvider(opts.OpenAIAPIKey, opts.OpenAIBaseURL), nil
	case "anthropic":
		if opts.AnthropicAPIKey == "" {
			return nil, errors.New("anthropic provider requires ANTHROPIC_API_KEY")
		}
		return NewAnthropicProvider(opts.AnthropicAPIKey), nil
	default:
		return nil, errors.New("unsupported provider: " + opts.Provider)
	}
}
