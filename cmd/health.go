package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/asccclass/skillbridge/internal/kvstore"
	"github.com/asccclass/skillbridge/llms"
	"github.com/asccclass/skillbridge/llms/ollama"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "檢查 SkillBridge 運行環境狀態",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		fmt.Println(lipgloss.NewStyle().Bold(true).Render("\n🔍 SkillBridge 系統健康檢查\n"))

		// 1. 伺服器
		fmt.Print(labelStyle.Render(fmt.Sprintf("1. 伺服器 [%s]: ", serverURL)))
		var health struct {
			Status            string `json:"status"`
			Store             string `json:"store"`
			Provider          string `json:"provider"`
			ProviderReachable *bool  `json:"providerReachable"`
		}
		resp, err := newAPIClient().R().SetContext(ctx).SetResult(&health).Get("/healthz")
		if err == nil {
			err = apiError(resp)
		}
		if err != nil {
			fmt.Println(failStyle.Render("○ 離線 (ERROR) - 請執行 'skillbridge serve'"))
		} else {
			fmt.Println(successStyle.Render(fmt.Sprintf("● %s (store=%s, provider=%s)", health.Status, health.Store, health.Provider)))
		}

		// 2. 儲存後端
		fmt.Print(labelStyle.Render(fmt.Sprintf("2. 儲存後端 [%s]: ", cfg.Store)))
		if err := checkStore(ctx); err != nil {
			fmt.Println(failStyle.Render("○ 無法使用: ") + err.Error())
		} else {
			fmt.Println(successStyle.Render("● 正常 (OK)"))
		}

		// 3. Ollama
		if !strings.EqualFold(cfg.Provider, "ollama") && cfg.Provider != "" {
			fmt.Println(labelStyle.Render("3. 模型供應商: ") + cfg.Provider + dimStyle.Render(" (未檢查連線)"))
			fmt.Println()
			return
		}
		client := ollama.NewClient(cfg.OllamaHost)
		fmt.Print(labelStyle.Render("3. Ollama 服務狀態: "))
		latency, err := client.Ping(ctx)
		if err != nil {
			fmt.Println(failStyle.Render("○ 離線 (ERROR) - 請確認 Ollama 是否已啟動"))
			fmt.Println()
			return
		}
		fmt.Println(successStyle.Render(fmt.Sprintf("● 在線 (%s)", latency.Round(time.Millisecond))))

		model := cfg.Model
		if model == "" {
			model = llms.DefaultModel(cfg.Provider)
		}
		fmt.Print(labelStyle.Render(fmt.Sprintf("4. 模型狀態 [%s]: ", model)))
		pulled, err := client.IsModelPulled(ctx, model)
		if err == nil && pulled {
			fmt.Println(successStyle.Render("● 已下載 (OK)"))
		} else {
			fmt.Println(failStyle.Render("○ 未找到 - 請執行 'ollama pull " + model + "'"))
		}
		fmt.Println()
	},
}

// checkStore 開啟並寫讀一筆測試資料
func checkStore(ctx context.Context) error {
	store, err := kvstore.Open(ctx, kvstore.Options{
		Driver:        cfg.Store,
		SQLitePath:    cfg.SQLitePath,
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
		Namespace:     "skillbridge:",
	})
	if err != nil {
		return err
	}
	defer store.Close()
	const key = "health:probe"
	if err := store.Put(ctx, key, []byte(time.Now().UTC().Format(time.RFC3339))); err != nil {
		return err
	}
	if _, err := store.Get(ctx, key); err != nil {
		return err
	}
	return store.Delete(ctx, key)
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
