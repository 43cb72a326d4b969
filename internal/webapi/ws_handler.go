package webapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/asccclass/skillbridge/internal/agent"
)

var upgrader = websocket.Upgrader{
	// CORS 已開放所有來源，WebSocket 也一樣
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsFrame 是回給客戶端的 done / error frame
type wsFrame struct {
	Type   string            `json:"type"`
	Error  string            `json:"error,omitempty"`
	Result *agent.TurnResult `json:"result,omitempty"`
}

// handleWebSocket 每個收到的 text frame 執行一個回合，事件以 JSON frame 推送
func (h *ChatHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sid, uid := sessionID(r, h.defaultSession), userID(r)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("[WebSocket] 升級失敗: %v", err)
		return
	}
	defer conn.Close()
	log.Infof("[WebSocket] session=%s user=%s 已連線", sid, uid)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warnf("[WebSocket] 讀取錯誤: %v", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var body chatBody
		if err := json.Unmarshal(data, &body); err != nil {
			_ = conn.WriteJSON(wsFrame{Type: "error", Error: "invalid frame"})
			continue
		}
		req, err := body.turnRequest(sid, uid)
		if err != nil {
			_ = conn.WriteJSON(wsFrame{Type: "error", Error: messageRequired})
			continue
		}

		// 同一個 goroutine 寫入，不會有併發寫入的問題
		res, err := h.agent.Chat(h.turnContext(r, sid, uid), req, func(ev agent.Event) {
			_ = conn.WriteJSON(ev)
		})
		if err != nil {
			log.Errorf("[WebSocket] session=%s 處理失敗: %v", sid, err)
			_ = conn.WriteJSON(wsFrame{Type: "error", Error: err.Error()})
			continue
		}
		if err := conn.WriteJSON(wsFrame{Type: "done", Result: res}); err != nil {
			return
		}
	}
}
