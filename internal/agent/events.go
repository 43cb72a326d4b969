package agent

// 串流事件類型
const (
	EventScenarioResults = "scenario_results"
	EventExecutingSkills = "executing_skills"
	EventSkillResult     = "skill_result"
	EventContent         = "content"
)

// Event 是推送給客戶端的一筆進度事件，欄位依 Type 決定
type Event struct {
	Type string `json:"type"`

	// scenario_results
	ToolsOffered  bool     `json:"toolsOffered,omitempty"`
	SkillCount    int      `json:"skillCount,omitempty"`
	MatchedSkills []string `json:"matchedSkills,omitempty"`

	// executing_skills
	Count int `json:"count,omitempty"`

	// skill_result
	Skill      string `json:"skill,omitempty"`
	ToolCallID string `json:"toolCallId,omitempty"`
	Success    *bool  `json:"success,omitempty"`
	Result     any    `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`

	// content
	Content string `json:"content,omitempty"`
}

// EmitFunc 接收事件；nil 代表不需要串流
type EmitFunc func(Event)
