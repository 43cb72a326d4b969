package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/asccclass/skillbridge/internal/config"
)

// cfg 在所有 init 之前載入，子指令的旗標以它為預設值
var cfg = config.LoadConfig()

// rootCmd 代表基礎指令，當不帶任何子指令執行時觸發
var rootCmd = &cobra.Command{
	Use:   "skillbridge",
	Short: "SkillBridge - 把 OpenAPI 變成 AI 可以呼叫的 skills",
	Long:  `註冊第三方 HTTP API 的 OpenAPI/Swagger 規格，讓語言模型在對話中呼叫它們。`,
}

// Execute 將所有子指令註冊到根指令並執行
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
