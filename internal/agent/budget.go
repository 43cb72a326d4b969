package agent

import (
	"unicode/utf8"

	"github.com/asccclass/skillbridge/llms"
)

const (
	DefaultMaxChars  = 50000
	DefaultMaxTokens = 120000
)

// Budget 是單次模型呼叫的上下文上限
type Budget struct {
	MaxChars  int
	MaxTokens int
}

// DefaultBudget 回傳預設上限
func DefaultBudget() Budget {
	return Budget{MaxChars: DefaultMaxChars, MaxTokens: DefaultMaxTokens}
}

// EstimateTokens 以每 4 個字元約 1 個 token 估算
func EstimateTokens(chars int) int {
	return (chars + 3) / 4
}

func contentChars(msgs ...llms.Message) int {
	n := 0
	for _, m := range msgs {
		n += utf8.RuneCountInString(m.Content)
	}
	return n
}

// Trim 組出 system + history + turn；超過上限時從最舊的 history 整則移除
func (b Budget) Trim(system llms.Message, history []llms.Message, turn llms.Message) []llms.Message {
	total := contentChars(system, turn) + contentChars(history...)

	target := 0
	if b.MaxChars > 0 && total > b.MaxChars {
		target = total - b.MaxChars
	}
	if b.MaxTokens > 0 && EstimateTokens(total) > b.MaxTokens {
		if over := total - b.MaxTokens*4; over > target {
			target = over
		}
	}

	out := make([]llms.Message, 0, len(history)+2)
	out = append(out, system)
	removed := 0
	for _, m := range history {
		if removed < target {
			removed += utf8.RuneCountInString(m.Content)
			continue
		}
		out = append(out, m)
	}
	return append(out, turn)
}
