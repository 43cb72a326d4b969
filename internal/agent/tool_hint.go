package agent

import (
	"regexp"
	"strings"

	"github.com/asccclass/skillbridge/internal/core"
)

const greetingMaxLen = 60

var greetingPattern = regexp.MustCompile(
	`^(hi|hello|hey|hola|yo|howdy)\b` +
		`|good (morning|afternoon|evening|night)` +
		`|how are you` +
		`|what'?s up` +
		`|(hi|hello|hey) there`,
)

// toolKeywords 出現任一個就提供工具；尾端有空白的是動詞
var toolKeywords = []string{
	"api", "weather", "forecast", "fetch", "retrieve", "request", "http",
	"endpoint", "data", "skill", "openapi", "swagger", "spec", "register",
	"delete", "update", "upload", "search", "lookup", "look up", "query",
	"create", "status",
	"call ", "get ", "show ", "list ", "find ", "check ",
}

// ShouldOfferTools 判斷這一輪是否把工具定義交給模型
func ShouldOfferTools(message string, tools []core.AgentTool) bool {
	normalized := strings.ToLower(strings.TrimSpace(message))
	if normalized == "" {
		return false
	}
	if len([]rune(normalized)) <= greetingMaxLen && greetingPattern.MatchString(normalized) {
		return false
	}
	for _, kw := range toolKeywords {
		if strings.Contains(normalized, kw) {
			return true
		}
	}
	return len(matchTools(normalized, tools)) > 0
}

// MatchSkills 回傳名稱、描述或所屬 API 出現在訊息中的 skills
func MatchSkills(message string, tools []core.AgentTool) []string {
	return matchTools(strings.ToLower(strings.TrimSpace(message)), tools)
}

func matchTools(normalized string, tools []core.AgentTool) []string {
	if normalized == "" {
		return nil
	}
	var matched []string
	for _, t := range tools {
		for _, s := range []string{t.Name(), t.Description(), t.Source()} {
			s = strings.ToLower(strings.TrimSpace(s))
			if s != "" && strings.Contains(normalized, s) {
				matched = append(matched, t.Name())
				break
			}
		}
	}
	return matched
}
