package webapi

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// sseWriter 在第一次送出事件時才寫入標頭，之前發生的錯誤仍可回傳一般的 JSON 錯誤
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
	broken  bool
}

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	f, _ := w.(http.Flusher)
	return &sseWriter{w: w, flusher: f}
}

func (s *sseWriter) start() {
	if s.started {
		return
	}
	s.started = true
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
}

func (s *sseWriter) writeRaw(payload string) {
	s.start()
	if s.broken {
		return
	}
	// 客戶端斷線後的寫入一律忽略
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		s.broken = true
		return
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
}

func (s *sseWriter) send(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	s.writeRaw(string(data))
}

func (s *sseWriter) done() {
	s.writeRaw("[DONE]")
}
