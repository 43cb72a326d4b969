package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	SherryServer "github.com/asccclass/sherryserver"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/asccclass/skillbridge/internal/agent"
	"github.com/asccclass/skillbridge/internal/config"
	"github.com/asccclass/skillbridge/internal/history"
	"github.com/asccclass/skillbridge/internal/invoker"
	"github.com/asccclass/skillbridge/internal/kvstore"
	"github.com/asccclass/skillbridge/internal/scheduler"
	"github.com/asccclass/skillbridge/internal/secret"
	"github.com/asccclass/skillbridge/internal/skillstore"
	"github.com/asccclass/skillbridge/internal/webapi"
	"github.com/asccclass/skillbridge/llms"
)

func init() {
	serveCmd.Flags().StringVarP(&cfg.Port, "port", "p", cfg.Port, "HTTP 埠號")
	serveCmd.Flags().StringVar(&cfg.Provider, "provider", cfg.Provider, "模型供應商 (ollama|openai|anthropic)")
	serveCmd.Flags().StringVarP(&cfg.Model, "model", "m", cfg.Model, "指定使用的模型")
	serveCmd.Flags().StringVar(&cfg.Store, "store", cfg.Store, "儲存後端 (sqlite|redis|memory)")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "啟動 SkillBridge API 伺服器",
	RunE:  runServe,
}

// app 是伺服器執行時需要的所有元件
type app struct {
	store    kvstore.Store
	skills   *skillstore.Store
	history  *history.Store
	provider llms.Provider
	agent    *agent.Agent
	logger   *agent.SystemLogger
}

func (a *app) Close() {
	if a.logger != nil {
		_ = a.logger.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}

// buildApp 依設定組出儲存、模型供應商與 Agent
func buildApp(ctx context.Context, c *config.Config) (*app, error) {
	a := &app{}

	store, err := kvstore.Open(ctx, kvstore.Options{
		Driver:        c.Store,
		SQLitePath:    c.SQLitePath,
		RedisAddr:     c.RedisAddr,
		RedisPassword: c.RedisPassword,
		RedisDB:       c.RedisDB,
		Namespace:     "skillbridge:",
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.store = store
	if strings.EqualFold(c.Store, "redis") {
		log.Warn("[Server] redis 後端的 session / user 鎖只在本行程內有效，請只執行一個 SkillBridge 實例")
	}

	sealer, err := secret.NewSealer(c.SecretKey)
	if err != nil {
		a.Close()
		return nil, err
	}
	if !sealer.Encrypting() {
		log.Warn("[Server] 未設定 SKILLBRIDGE_SECRET_KEY，API Key 只做 base64 混淆，並未加密")
	}

	provider, err := llms.NewProvider(llms.Options{
		Provider:        c.Provider,
		OllamaHost:      c.OllamaHost,
		OpenAIAPIKey:    c.OpenAIAPIKey,
		OpenAIBaseURL:   c.OpenAIBaseURL,
		AnthropicAPIKey: c.AnthropicAPIKey,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	model := c.Model
	if model == "" {
		model = llms.DefaultModel(c.Provider)
	}

	logger, err := agent.NewSystemLogger(c.LogDir)
	if err != nil {
		log.Warnf("[Server] 無法建立 system log，對話日誌停用: %v", err)
	}

	a.skills = skillstore.New(store, sealer)
	a.history = history.NewStore(store)
	a.provider = provider
	a.logger = logger
	a.agent = agent.NewAgent(provider, model, a.skills, a.history, invoker.New(c.SkillTimeout))
	a.agent.SetBudget(agent.Budget{MaxChars: c.ContextChars, MaxTokens: c.ContextTokens})
	log.Infof("[Server] provider=%s model=%s store=%s", provider.Name(), model, c.Store)
	return a, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if p, ok := a.provider.(llms.Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			log.Warnf("[Server] 無法連線至 %s: %v", a.provider.Name(), err)
		}
	}

	engine := scheduler.NewCronEngine()
	if err := engine.ScheduleSweep(cfg.SweepCron, a.history, cfg.SessionTTL); err != nil {
		return err
	}
	engine.Start()
	defer engine.Stop()

	server, err := SherryServer.NewServer(":"+cfg.Port, cfg.DocumentRoot, cfg.TemplateRoot)
	if err != nil {
		return fmt.Errorf("無法建立伺服器: %w", err)
	}

	router := webapi.NewMux(webapi.Deps{
		Agent:          a.agent,
		Skills:         a.skills,
		History:        a.history,
		Logger:         a.logger,
		Provider:       a.provider,
		StoreDriver:    cfg.Store,
		DefaultSession: cfg.DefaultSession,
		MaxSpecBytes:   cfg.MaxSpecBytes,
	})
	// 有網頁目錄時一併提供靜態檔案
	if info, err := os.Stat(cfg.DocumentRoot); err == nil && info.IsDir() {
		staticServer := SherryServer.StaticFileServer{StaticPath: cfg.DocumentRoot, IndexPath: "index.html"}
		staticServer.AddRouter(router)
	}

	server.Server.Handler = webapi.WithCORS(router)
	log.Infof("[Server] SkillBridge 已啟動: http://localhost:%s", cfg.Port)
	server.Start()
	return nil
}
