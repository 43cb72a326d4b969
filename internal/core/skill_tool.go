package core

import (
	"context"
	"fmt"

	"github.com/ollama/ollama/api"

	"github.com/asccclass/skillbridge/internal/invoker"
	"github.com/asccclass/skillbridge/internal/skillloader"
	"github.com/asccclass/skillbridge/internal/skillstore"
)

// Executor 是 skill 的實際執行者 (invoker.Invoker)
type Executor interface {
	Execute(ctx context.Context, skill *skillloader.Skill, params map[string]any, apiKey string) invoker.Result
}

// KeyFunc 在執行前才解開 API Key
type KeyFunc func() (string, error)

// SkillTool 把已註冊的 skill 包成 AgentTool
type SkillTool struct {
	apiName string
	skill   skillloader.Skill
	exec    Executor
	key     KeyFunc
}

// NewSkillTool 建立 SkillTool；key 可為 nil
func NewSkillTool(apiName string, skill skillloader.Skill, exec Executor, key KeyFunc) *SkillTool {
	return &SkillTool{apiName: apiName, skill: skill, exec: exec, key: key}
}

func (t *SkillTool) Name() string        { return t.skill.Name }
func (t *SkillTool) Source() string      { return t.apiName }
func (t *SkillTool) Description() string { return t.skill.Description }

func (t *SkillTool) Definition() api.Tool {
	return skillloader.ConvertToToolSchema(&t.skill)
}

func (t *SkillTool) Run(ctx context.Context, args map[string]any) invoker.Result {
	apiKey := ""
	if t.key != nil {
		k, err := t.key()
		if err != nil {
			return invoker.Result{Success: false, Error: fmt.Sprintf("decrypt api key: %v", err)}
		}
		apiKey = k
	}
	return t.exec.Execute(ctx, &t.skill, args, apiKey)
}

// BuildRegistry 將使用者所有 API 的 skills 依註冊順序放進 Registry
func BuildRegistry(set *skillstore.UserSkillSet, store *skillstore.Store, exec Executor) *Registry {
	reg := NewRegistry()
	if set == nil {
		return reg
	}
	for _, entry := range set.Ordered() {
		entry := entry
		key := func() (string, error) { return store.APIKey(entry) }
		for _, sk := range entry.Skills {
			reg.Register(NewSkillTool(entry.APIName, sk, exec, key))
		}
	}
	return reg
}
