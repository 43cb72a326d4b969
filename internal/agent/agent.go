// Package agent 負責單一回合的對話流程：載入上下文、決定是否提供工具、呼叫模型、執行 skill 並保存結果
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/asccclass/skillbridge/internal/core"
	"github.com/asccclass/skillbridge/internal/history"
	"github.com/asccclass/skillbridge/internal/kvstore"
	"github.com/asccclass/skillbridge/internal/skillstore"
	"github.com/asccclass/skillbridge/llms"
)

// ErrEmptyMessage 表示使用者訊息為空
var ErrEmptyMessage = errors.New("message is required")

const (
	ApologyMessage         = "I'm sorry, but the AI service is currently unavailable. Please try again in a moment."
	ErrorTypeAIUnavailable = "ai-unavailable"
	toolChoiceAuto         = "auto"
)

// TurnRequest 是一次對話回合的輸入
type TurnRequest struct {
	SessionID        string
	UserID           string
	Message          string
	Persona          string
	AutoExecuteTools bool
}

// ToolExecution 是一次工具呼叫的執行紀錄
type ToolExecution struct {
	Tool       string `json:"tool,omitempty"` // 所屬 API
	Skill      string `json:"skill"`
	ToolCallID string `json:"toolCallId"`
	Success    bool   `json:"success"`
	Result     any    `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`
}

// PendingToolCall 是未自動執行的工具呼叫
type PendingToolCall struct {
	ID        string `json:"id"`
	Skill     string `json:"skill"`
	Arguments any    `json:"arguments"`
}

// TurnError 描述回合中可恢復的錯誤 (目前只有 ai-unavailable)
type TurnError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// TurnResult 是一次回合的輸出
type TurnResult struct {
	Response         string            `json:"response"`
	ToolExecutions   []ToolExecution   `json:"toolExecutions,omitempty"`
	PendingToolCalls []PendingToolCall `json:"pendingToolCalls,omitempty"`
	Error            *TurnError        `json:"error,omitempty"`
}

// Agent 封裝了對話邏輯、工具呼叫與 Session 管理
type Agent struct {
	provider llms.Provider
	model    string
	skills   *skillstore.Store
	history  *history.Store
	exec     core.Executor
	budget   Budget
	locks    *kvstore.Locker
}

// NewAgent 建立一個新的 Agent 實例
func NewAgent(provider llms.Provider, model string, skills *skillstore.Store, hist *history.Store, exec core.Executor) *Agent {
	return &Agent{
		provider: provider,
		model:    model,
		skills:   skills,
		history:  hist,
		exec:     exec,
		budget:   DefaultBudget(),
		locks:    kvstore.NewLocker(),
	}
}

// SetBudget 調整上下文上限；非正數的欄位沿用預設值
func (a *Agent) SetBudget(b Budget) {
	def := DefaultBudget()
	if b.MaxChars <= 0 {
		b.MaxChars = def.MaxChars
	}
	if b.MaxTokens <= 0 {
		b.MaxTokens = def.MaxTokens
	}
	a.budget = b
}

// Chat 處理一個回合；emit 為 nil 時不推送事件。
// 只有儲存層錯誤會以 error 回傳，模型與工具的失敗都收在 TurnResult 內。
func (a *Agent) Chat(ctx context.Context, req TurnRequest, emit EmitFunc) (*TurnResult, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, ErrEmptyMessage
	}
	if emit == nil {
		emit = func(Event) {}
	}
	tl := TurnLoggerFrom(ctx)

	unlock := a.locks.Lock(req.SessionID)
	defer unlock()

	tl.UserInput(req.Message)

	sess, err := a.history.Append(ctx, req.SessionID, history.Message{Role: history.RoleUser, Content: req.Message})
	if err != nil {
		return nil, err
	}
	set, err := a.skills.Load(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	reg := core.BuildRegistry(set, a.skills, a.exec)

	tools := reg.Tools()
	offer := reg.Len() > 0 && ShouldOfferTools(req.Message, tools)
	if offer {
		emit(Event{
			Type:          EventScenarioResults,
			ToolsOffered:  true,
			SkillCount:    reg.Len(),
			MatchedSkills: MatchSkills(req.Message, tools),
		})
	}

	system := llms.Message{Role: llms.RoleSystem, Content: BuildSystemPrompt(req.Persona, reg)}
	past := sess.Messages[:len(sess.Messages)-1]
	prior := make([]llms.Message, 0, len(past))
	for _, m := range past {
		prior = append(prior, llms.Message{Role: m.Role, Content: m.Content})
	}
	messages := a.budget.Trim(system, prior, llms.Message{Role: llms.RoleUser, Content: req.Message})

	chatReq := llms.ChatRequest{Model: a.model, Messages: messages}
	if offer {
		chatReq.Tools = reg.GetDefinitions()
		chatReq.ToolChoice = toolChoiceAuto
	}

	result := &TurnResult{}
	first, err := a.provider.Chat(ctx, chatReq)
	switch {
	case err != nil:
		tl.Error("model call failed", err)
		a.fail(result, err)
	case len(first.ToolCalls) == 0:
		result.Response = first.Content
	case !req.AutoExecuteTools:
		result.Response = first.Content
		for _, tc := range first.ToolCalls {
			args, perr := parseArguments(tc.Arguments)
			var shown any = args
			if perr != nil {
				shown = tc.Arguments
			}
			result.PendingToolCalls = append(result.PendingToolCalls, PendingToolCall{ID: tc.ID, Skill: tc.Name, Arguments: shown})
		}
	default:
		a.runTools(ctx, reg, first, messages, result, emit)
	}

	tl.AIResponse(result.Response)
	for _, r := range result.Response {
		emit(Event{Type: EventContent, Content: string(r)})
	}

	if err := a.persist(ctx, req.SessionID, result); err != nil {
		return nil, err
	}
	return result, nil
}

// runTools 依序執行所有工具呼叫，再帶著結果呼叫模型第二次
func (a *Agent) runTools(ctx context.Context, reg *core.Registry, first *llms.Message, messages []llms.Message, result *TurnResult, emit EmitFunc) {
	tl := TurnLoggerFrom(ctx)
	emit(Event{Type: EventExecutingSkills, Count: len(first.ToolCalls)})

	followUp := append([]llms.Message(nil), messages...)
	followUp = append(followUp, llms.Message{
		Role:      llms.RoleAssistant,
		Content:   first.Content,
		ToolCalls: first.ToolCalls,
	})

	for _, tc := range first.ToolCalls {
		tl.ToolCall(tc.Name, tc.Arguments)
		exec := a.executeCall(ctx, reg, tc)
		tl.ToolResult(tc.Name, exec.Success, exec.Error)
		result.ToolExecutions = append(result.ToolExecutions, exec)

		success := exec.Success
		emit(Event{
			Type:       EventSkillResult,
			Skill:      exec.Skill,
			ToolCallID: exec.ToolCallID,
			Success:    &success,
			Result:     exec.Result,
			Error:      exec.Error,
		})
		followUp = append(followUp, llms.Message{
			Role:       llms.RoleTool,
			Content:    toolContent(exec),
			ToolCallID: tc.ID,
			Name:       tc.Name,
		})
	}

	second, err := a.provider.Chat(ctx, llms.ChatRequest{Model: a.model, Messages: followUp})
	if err != nil {
		tl.Error("follow-up model call failed", err)
		a.fail(result, err)
		return
	}
	result.Response = second.Content
}

func (a *Agent) executeCall(ctx context.Context, reg *core.Registry, tc llms.ToolCall) ToolExecution {
	exec := ToolExecution{Skill: tc.Name, ToolCallID: tc.ID}

	args, err := parseArguments(tc.Arguments)
	if err != nil {
		exec.Error = fmt.Sprintf("Invalid arguments for %s: %v", tc.Name, err)
		return exec
	}
	tool, ok := reg.Lookup(tc.Name)
	if !ok {
		exec.Error = fmt.Sprintf("Skill %s not found", tc.Name)
		return exec
	}
	exec.Tool = tool.Source()

	res := tool.Run(ctx, args)
	exec.Success = res.Success
	exec.Result = res.Result
	exec.Error = res.Error
	return exec
}

func (a *Agent) fail(result *TurnResult, err error) {
	result.Response = ApologyMessage
	result.Error = &TurnError{Type: ErrorTypeAIUnavailable, Message: err.Error()}
}

func (a *Agent) persist(ctx context.Context, sessionID string, result *TurnResult) error {
	msg := history.Message{Role: history.RoleAssistant, Content: result.Response}
	meta := map[string]any{}
	if len(result.ToolExecutions) > 0 {
		meta["toolExecutions"] = result.ToolExecutions
	}
	if len(result.PendingToolCalls) > 0 {
		meta["pendingToolCalls"] = result.PendingToolCalls
	}
	if result.Error != nil {
		meta["error"] = result.Error
	}
	if len(meta) > 0 {
		msg.Metadata = meta
	}
	_, err := a.history.Append(ctx, sessionID, msg)
	return err
}

// parseArguments 空字串視為沒有參數；其餘必須是 JSON 物件
func parseArguments(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// toolContent 是回給模型的 tool 訊息內容
func toolContent(exec ToolExecution) string {
	if !exec.Success {
		return "Error: " + exec.Error
	}
	data, err := json.Marshal(exec.Result)
	if err != nil {
		return fmt.Sprintf("%v", exec.Result)
	}
	return string(data)
}
