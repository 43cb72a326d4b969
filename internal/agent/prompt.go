package agent

import (
	"fmt"
	"strings"

	"github.com/asccclass/skillbridge/internal/core"
)

const maxPromptSkills = 10

const basePrompt = `You are SkillBridge, an assistant that can call the HTTP APIs the user has registered as skills.

Guidelines:
- For greetings and casual conversation, reply naturally and do not call any tool.
- When the user asks for live data or an action that one of the skills provides, call the matching skill with the arguments it needs.
- If a required argument is missing, ask the user for it instead of guessing.
- After a skill runs, answer from its result. If it failed, explain the error plainly.
- Never invent skill results.`

var personas = map[string]string{
	"tutor":          "Act as a patient tutor: explain what each API call does and why, step by step.",
	"deployment":     "Act as a deployment assistant: focus on environments, releases and configuration, and confirm before making changes.",
	"troubleshooter": "Act as a troubleshooter: narrow problems down methodically and suggest the next diagnostic step.",
	"technical":      "Act as a senior engineer: be precise and concise, and include request details when they matter.",
}

// BuildSystemPrompt 組合固定指示、persona 以及 skills 摘要
func BuildSystemPrompt(persona string, reg *core.Registry) string {
	var sb strings.Builder
	sb.WriteString(basePrompt)

	if clause, ok := personas[strings.ToLower(strings.TrimSpace(persona))]; ok {
		sb.WriteString("\n\n")
		sb.WriteString(clause)
	}

	sb.WriteString("\n\n")
	if reg == nil || reg.Len() == 0 {
		sb.WriteString("The user has not registered any APIs yet. If they ask for something an API could do, invite them to upload an OpenAPI or Swagger spec so it can be turned into skills.")
		return sb.String()
	}
	fmt.Fprintf(&sb, "Available skills (%d):\n", reg.Len())
	sb.WriteString(strings.TrimRight(reg.GetToolPrompt(maxPromptSkills), "\n"))
	return sb.String()
}
