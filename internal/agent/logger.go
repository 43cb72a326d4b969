package agent

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
)

// LogEvent 定義日誌事件類型
type LogEvent string

const (
	EventUserInput  LogEvent = "user_input"
	EventToolCall   LogEvent = "tool_call"
	EventToolResult LogEvent = "tool_result"
	EventAIResponse LogEvent = "ai_response"
	EventError      LogEvent = "error"
)

// SystemLogger 是整個行程共用的對話日誌 (JSONL, system.log)
type SystemLogger struct {
	logger *log.Logger
	closer io.Closer
}

// NewSystemLogger 初始化日誌器
// logDir: 日誌目錄，例如 "botmemory"
func NewSystemLogger(logDir string) (*SystemLogger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	filePath := filepath.Join(logDir, "system.log")
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open system log file: %w", err)
	}
	l := NewSystemLoggerTo(f)
	l.closer = f
	return l, nil
}

// NewSystemLoggerTo 將日誌寫到任意 io.Writer
func NewSystemLoggerTo(w io.Writer) *SystemLogger {
	logger := log.New()
	logger.SetOutput(w)
	logger.SetFormatter(&log.JSONFormatter{TimestampFormat: time.RFC3339})
	logger.SetLevel(log.InfoLevel)
	return &SystemLogger{logger: logger}
}

// Close 關閉檔案
func (l *SystemLogger) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// ForTurn 建立單一回合使用的 TurnLogger；l 為 nil 時回傳 nil
func (l *SystemLogger) ForTurn(sessionID, userID string) *TurnLogger {
	if l == nil {
		return nil
	}
	return &TurnLogger{entry: l.logger.WithFields(log.Fields{
		"session_id": sessionID,
		"user_id":    userID,
	})}
}

// TurnLogger 綁定 session 與 user 的日誌；nil 值的所有方法都不做事
type TurnLogger struct {
	entry *log.Entry
}

type turnLoggerKey struct{}

// WithTurnLogger 將 TurnLogger 放入 context
func WithTurnLogger(ctx context.Context, tl *TurnLogger) context.Context {
	return context.WithValue(ctx, turnLoggerKey{}, tl)
}

// TurnLoggerFrom 從 context 取出 TurnLogger，沒有時回傳 nil
func TurnLoggerFrom(ctx context.Context) *TurnLogger {
	tl, _ := ctx.Value(turnLoggerKey{}).(*TurnLogger)
	return tl
}

func (t *TurnLogger) event(ev LogEvent) *log.Entry {
	return t.entry.WithField("event", string(ev))
}

// UserInput 記錄使用者輸入
func (t *TurnLogger) UserInput(input string) {
	if t == nil {
		return
	}
	t.event(EventUserInput).WithField("content", input).Info("user input")
}

// ToolCall 記錄工具呼叫
func (t *TurnLogger) ToolCall(name, args string) {
	if t == nil {
		return
	}
	t.event(EventToolCall).WithFields(log.Fields{"tool_name": name, "tool_args": args}).Info("tool call")
}

// ToolResult 記錄工具執行結果
func (t *TurnLogger) ToolResult(name string, success bool, errMsg string) {
	if t == nil {
		return
	}
	e := t.event(EventToolResult).WithFields(log.Fields{"tool_name": name, "success": success})
	if errMsg != "" {
		e = e.WithField("error", errMsg)
	}
	e.Info("tool result")
}

// AIResponse 記錄 AI 回應
func (t *TurnLogger) AIResponse(response string) {
	if t == nil {
		return
	}
	t.event(EventAIResponse).WithField("content", response).Info("ai response")
}

// Error 記錄一般錯誤
func (t *TurnLogger) Error(prefix string, err error) {
	if t == nil || err == nil {
		return
	}
	t.event(EventError).WithField("content", prefix).WithError(err).Error(prefix)
}
