package skillloader

import (
	"encoding/json"
	"fmt"

	"github.com/ollama/ollama/api"
)

// SkillsToToolSchemas 將 skill 轉為給模型看的 function tool 定義 (每個 skill 一個)
func SkillsToToolSchemas(skills []Skill) []api.Tool {
	tools := make([]api.Tool, 0, len(skills))
	for i := range skills {
		tools = append(tools, ConvertToToolSchema(&skills[i]))
	}
	return tools
}

// ConvertToToolSchema 將單一 skill 轉為 api.Tool
func ConvertToToolSchema(skill *Skill) api.Tool {
	propsMap := make(map[string]interface{})
	required := []string{}

	for _, p := range skill.Parameters {
		desc := p.Description
		if desc == "" {
			desc = fmt.Sprintf("%s parameter", p.Name)
		}
		propsMap[p.Name] = map[string]interface{}{
			"type":        p.Type,
			"description": desc,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}

	if skill.RequestBody != nil && skill.RequestBody.Required {
		propsMap["body"] = map[string]interface{}{
			"type":        "object",
			"description": "Request body data",
		}
		required = append(required, "body")
	}

	// 透過 JSON 轉換來產生 api.ToolPropertiesMap，避免內部型別不一致的問題
	var apiProps api.ToolPropertiesMap
	propsBytes, _ := json.Marshal(propsMap)
	_ = json.Unmarshal(propsBytes, &apiProps)

	return api.Tool{
		Type: "function",
		Function: api.ToolFunction{
			Name:        skill.Name,
			Description: fmt.Sprintf("%s (%s %s)", skill.Description, skill.Method, skill.Path),
			Parameters: api.ToolFunctionParameters{
				Type:       "object",
				Properties: &apiProps,
				Required:   required,
			},
		},
	}
}
