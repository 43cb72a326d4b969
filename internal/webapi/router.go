package webapi

import (
	"context"
	"net/http"

	"github.com/asccclass/skillbridge/internal/agent"
	"github.com/asccclass/skillbridge/internal/history"
	"github.com/asccclass/skillbridge/internal/skillstore"
	"github.com/asccclass/skillbridge/llms"
)

// Deps 是建立路由需要的元件
type Deps struct {
	Agent          *agent.Agent
	Skills         *skillstore.Store
	History        *history.Store
	Logger         *agent.SystemLogger
	Provider       llms.Provider
	StoreDriver    string
	DefaultSession string
	MaxSpecBytes   int64
}

// NewMux 註冊所有 API 路由
func NewMux(d Deps) *http.ServeMux {
	mux := http.NewServeMux()
	NewSkillsHandler(d.Skills, d.MaxSpecBytes).AddRoutes(mux)
	NewChatHandler(d.Agent, d.History, d.Logger, d.DefaultSession).AddRoutes(mux)
	mux.HandleFunc("/healthz", healthHandler(d.Provider, d.StoreDriver))
	return mux
}

// NewRouter 組合所有路由並套上 CORS
func NewRouter(d Deps) http.Handler {
	return WithCORS(NewMux(d))
}

func healthHandler(provider llms.Provider, store string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{"status": "ok", "store": store}
		if provider != nil {
			resp["provider"] = provider.Name()
			if p, ok := provider.(llms.Pinger); ok {
				resp["providerReachable"] = p.Ping(context.WithoutCancel(r.Context())) == nil
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
