package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/ollama/ollama/api"
	log "github.com/sirupsen/logrus"

	"github.com/asccclass/skillbridge/internal/invoker"
)

// AgentTool 是模型可以呼叫的工具
type AgentTool interface {
	// Name 回傳工具名稱 (也就是 skill 名稱)
	Name() string

	// Source 回傳工具所屬的 API 名稱
	Source() string

	// Description 回傳給人看的描述
	Description() string

	// Definition 回傳給模型看的 JSON Schema
	Definition() api.Tool

	// Run 以已解析的參數執行工具；失敗一律放在 Result 內
	Run(ctx context.Context, args map[string]any) invoker.Result
}

// Registry 管理單一回合可用的工具，以名稱為 key
type Registry struct {
	tools map[string]AgentTool
	order []string
}

// NewRegistry 建立新的註冊表
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]AgentTool)}
}

// Register 註冊工具；同名時後註冊者覆蓋先前的工具
func (r *Registry) Register(t AgentTool) {
	name := t.Name()
	if prev, ok := r.tools[name]; ok {
		log.Debugf("[Registry] skill %q 來自 %s，覆蓋了 %s 的同名 skill", name, t.Source(), prev.Source())
	} else {
		r.order = append(r.order, name)
	}
	r.tools[name] = t
}

// Lookup 依名稱取得工具
func (r *Registry) Lookup(name string) (AgentTool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Len 回傳工具數量
func (r *Registry) Len() int {
	return len(r.order)
}

// Tools 依註冊順序回傳所有工具
func (r *Registry) Tools() []AgentTool {
	out := make([]AgentTool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// GetDefinitions 依註冊順序取得所有工具的 api.Tool 定義
func (r *Registry) GetDefinitions() []api.Tool {
	defs := make([]api.Tool, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition())
	}
	return defs
}

// GetToolPrompt 產生 system prompt 中的 skills 清單，最多列出 limit 筆
func (r *Registry) GetToolPrompt(limit int) string {
	var sb strings.Builder
	for i, name := range r.order {
		if limit > 0 && i >= limit {
			fmt.Fprintf(&sb, "... and %d more\n", len(r.order)-limit)
			break
		}
		t := r.tools[name]
		fmt.Fprintf(&sb, "- %s: %s [%s]\n", t.Name(), t.Description(), t.Source())
	}
	return sb.String()
}
