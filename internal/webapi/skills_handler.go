package webapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/asccclass/skillbridge/internal/skillloader"
	"github.com/asccclass/skillbridge/internal/skillstore"
)

const DefaultMaxSpecBytes = 5 << 20

// SkillsHandler 負責 API 的註冊、列出、查詢與刪除
type SkillsHandler struct {
	store        *skillstore.Store
	maxSpecBytes int64
}

// NewSkillsHandler maxSpecBytes <= 0 時使用 5MB
func NewSkillsHandler(store *skillstore.Store, maxSpecBytes int64) *SkillsHandler {
	if maxSpecBytes <= 0 {
		maxSpecBytes = DefaultMaxSpecBytes
	}
	return &SkillsHandler{store: store, maxSpecBytes: maxSpecBytes}
}

// AddRoutes 註冊 API 路由
func (h *SkillsHandler) AddRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/skills/register", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		h.handleRegister(w, r)
	})
	mux.HandleFunc("/api/skills/list", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		h.handleList(w, r)
	})
	mux.HandleFunc("/api/skills/get", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		h.handleGet(w, r)
	})
	mux.HandleFunc("/api/skills/delete", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost && r.Method != http.MethodDelete {
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		h.handleDelete(w, r)
	})
}

func (h *SkillsHandler) tooLarge() string {
	return fmt.Sprintf("Spec is too large. Maximum size is %dMB", h.maxSpecBytes>>20)
}

// specBytes spec 可以是 JSON/YAML 字串，也可以直接是物件
func specBytes(raw json.RawMessage) ([]byte, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, errors.New("spec is required")
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		if strings.TrimSpace(s) == "" {
			return nil, errors.New("spec is required")
		}
		return []byte(s), nil
	}
	return []byte(trimmed), nil
}

func (h *SkillsHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	// 字串形式的 spec 在 JSON 中會被跳脫，讀取上限放寬一倍再加一點餘裕
	limit := h.maxSpecBytes*2 + 64<<10
	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if int64(len(body)) > limit {
		writeError(w, http.StatusBadRequest, h.tooLarge())
		return
	}

	var req struct {
		APIName string          `json:"apiName"`
		Spec    json.RawMessage `json:"spec"`
		APIKey  string          `json:"apiKey"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.APIName = strings.TrimSpace(req.APIName)
	if req.APIName == "" {
		writeError(w, http.StatusBadRequest, "apiName is required")
		return
	}
	raw, err := specBytes(req.Spec)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if int64(len(raw)) > h.maxSpecBytes {
		writeError(w, http.StatusBadRequest, h.tooLarge())
		return
	}

	compiled, err := skillloader.Compile(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to parse spec: "+err.Error())
		return
	}
	if len(compiled.Skills) == 0 {
		writeError(w, http.StatusBadRequest, "No valid operations found in spec")
		return
	}

	uid := userID(r)
	if _, err := h.store.Register(r.Context(), uid, req.APIName, compiled, req.APIKey); err != nil {
		log.Errorf("[Skills] 註冊 %s 失敗 (user=%s): %v", req.APIName, uid, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	log.Infof("[Skills] user=%s 註冊 %s，共 %d 個 skills", uid, req.APIName, len(compiled.Skills))

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"message":    fmt.Sprintf("Registered %d skills from %s", len(compiled.Skills), req.APIName),
		"skillCount": len(compiled.Skills),
		"skillNames": compiled.Names(),
	})
}

func (h *SkillsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	apis, err := h.store.List(r.Context(), userID(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"apis": apis})
}

func (h *SkillsHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("apiName"))
	if name == "" {
		writeError(w, http.StatusBadRequest, "apiName is required")
		return
	}
	api, err := h.store.Get(r.Context(), userID(r), name)
	if errors.Is(err, skillstore.ErrAPINotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("API %s not found", name))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"apiName":      api.APIName,
		"baseUrl":      api.BaseURL,
		"skills":       api.Skills,
		"registeredAt": api.RegisteredAt,
		"metadata":     api.Metadata,
	})
}

func (h *SkillsHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		APIName string `json:"apiName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	name := strings.TrimSpace(req.APIName)
	if name == "" {
		writeError(w, http.StatusBadRequest, "apiName is required")
		return
	}
	uid := userID(r)
	err := h.store.Delete(r.Context(), uid, name)
	if errors.Is(err, skillstore.ErrAPINotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("API %s not found", name))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	log.Infof("[Skills] user=%s 刪除 %s", uid, name)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("API %s deleted", name),
	})
}
