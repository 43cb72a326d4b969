package webapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/asccclass/skillbridge/internal/agent"
	"github.com/asccclass/skillbridge/internal/history"
)

const messageRequired = "Message is required and must be a non-empty string"

// ChatHandler 負責 /api/chat 與對話紀錄
type ChatHandler struct {
	agent          *agent.Agent
	history        *history.Store
	logger         *agent.SystemLogger
	defaultSession string
}

// NewChatHandler 建立新的 Chat Handler；logger 可為 nil
func NewChatHandler(a *agent.Agent, hist *history.Store, logger *agent.SystemLogger, defaultSession string) *ChatHandler {
	if defaultSession == "" {
		defaultSession = "default-session"
	}
	return &ChatHandler{agent: a, history: hist, logger: logger, defaultSession: defaultSession}
}

// AddRoutes 註冊 API 路由
func (h *ChatHandler) AddRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		h.handleChat(w, r)
	})
	mux.HandleFunc("/api/chat/history", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.handleHistory(w, r)
		case http.MethodDelete:
			h.handleClear(w, r)
		default:
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})
	mux.HandleFunc("/api/chat/ws", h.handleWebSocket)
}

// chatBody 是 /api/chat 與 WebSocket frame 共用的輸入
type chatBody struct {
	Message          json.RawMessage `json:"message"`
	Persona          string          `json:"persona"`
	Stream           *bool           `json:"stream"`
	AutoExecuteTools *bool           `json:"autoExecuteTools"`
}

// turnRequest 驗證訊息並套用預設值
func (b chatBody) turnRequest(sid, uid string) (agent.TurnRequest, error) {
	var msg string
	if len(b.Message) == 0 || json.Unmarshal(b.Message, &msg) != nil || strings.TrimSpace(msg) == "" {
		return agent.TurnRequest{}, agent.ErrEmptyMessage
	}
	auto := true
	if b.AutoExecuteTools != nil {
		auto = *b.AutoExecuteTools
	}
	return agent.TurnRequest{
		SessionID:        sid,
		UserID:           uid,
		Message:          msg,
		Persona:          b.Persona,
		AutoExecuteTools: auto,
	}, nil
}

// turnContext 回合不隨客戶端斷線取消，讓結果仍能寫入紀錄
func (h *ChatHandler) turnContext(r *http.Request, sid, uid string) context.Context {
	ctx := context.WithoutCancel(r.Context())
	return agent.WithTurnLogger(ctx, h.logger.ForTurn(sid, uid))
}

func (h *ChatHandler) handleChat(w http.ResponseWriter, r *http.Request) {
	var body chatBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sid, uid := sessionID(r, h.defaultSession), userID(r)
	req, err := body.turnRequest(sid, uid)
	if err != nil {
		writeError(w, http.StatusBadRequest, messageRequired)
		return
	}
	ctx := h.turnContext(r, sid, uid)

	if body.Stream != nil && !*body.Stream {
		res, err := h.agent.Chat(ctx, req, nil)
		if err != nil {
			h.fail(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
		return
	}

	sse := newSSEWriter(w)
	_, err = h.agent.Chat(ctx, req, func(ev agent.Event) { sse.send(ev) })
	if err != nil {
		if !sse.started {
			h.fail(w, req, err)
			return
		}
		log.Errorf("[Chat] session=%s 串流中發生錯誤: %v", sid, err)
		sse.send(map[string]any{"type": "error", "error": err.Error()})
	}
	sse.done()
}

func (h *ChatHandler) fail(w http.ResponseWriter, req agent.TurnRequest, err error) {
	if errors.Is(err, agent.ErrEmptyMessage) {
		writeError(w, http.StatusBadRequest, messageRequired)
		return
	}
	log.Errorf("[Chat] session=%s user=%s 處理失敗: %v", req.SessionID, req.UserID, err)
	writeError(w, http.StatusInternalServerError, err.Error())
}

func (h *ChatHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	sid := sessionID(r, h.defaultSession)
	sess, err := h.history.Load(r.Context(), sid)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessionId": sid, "messages": sess.Messages})
}

func (h *ChatHandler) handleClear(w http.ResponseWriter, r *http.Request) {
	sid := sessionID(r, h.defaultSession)
	if err := h.history.Clear(r.Context(), sid); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "sessionId": sid})
}
