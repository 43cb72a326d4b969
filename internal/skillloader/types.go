package skillloader

// ==========================================
// Skill：由單一 OpenAPI operation 產生的可呼叫單元
// ==========================================

// 參數位置
const (
	InPath   = "path"
	InQuery  = "query"
	InHeader = "header"
	InBody   = "body"
)

type Skill struct {
	Name        string       `json:"name"`
	OperationID string       `json:"operationId"`
	Description string       `json:"description"`
	Method      string       `json:"method"` // GET / POST / PUT / PATCH / DELETE
	Path        string       `json:"path"`   // 可能包含 {param}
	BaseURL     string       `json:"baseUrl"`
	Parameters  []Parameter  `json:"parameters"`
	RequestBody *RequestBody `json:"requestBody,omitempty"`
}

type Parameter struct {
	Name        string `json:"name"`
	In          string `json:"in"` // path | query | header | body
	Required    bool   `json:"required"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

type RequestBody struct {
	Required    bool           `json:"required"`
	ContentType string         `json:"contentType"`
	Schema      map[string]any `json:"schema,omitempty"`
}

// Metadata 來自 spec 的 info 區塊
type Metadata struct {
	Title       string `json:"title,omitempty"`
	Version     string `json:"version,omitempty"`
	Description string `json:"description,omitempty"`
}

// Compiled 是 ParseSpecToSkills 的結果
type Compiled struct {
	Skills   []Skill
	BaseURL  string
	Metadata *Metadata
}

// Names 依宣告順序回傳所有 skill 名稱
func (c *Compiled) Names() []string {
	names := make([]string, len(c.Skills))
	for i, s := range c.Skills {
		names[i] = s.Name
	}
	return names
}

// HasParam 檢查 skill 是否宣告了指定位置的參數
func (s *Skill) HasParam(name, in string) bool {
	for _, p := range s.Parameters {
		if p.Name == name && p.In == in {
			return true
		}
	}
	return false
}
