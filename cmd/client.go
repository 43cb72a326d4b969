package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/go-resty/resty/v2"

	"github.com/asccclass/skillbridge/internal/webapi"
)

var (
	serverURL string
	userFlag  string
	sessFlag  string

	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:"+cfg.Port, "SkillBridge 伺服器位址")
	rootCmd.PersistentFlags().StringVar(&userFlag, "user", "", "使用者 ID (X-User-ID)")
	rootCmd.PersistentFlags().StringVar(&sessFlag, "session", "", "對話 ID (X-Session-ID)")
}

// newAPIClient 建立帶有使用者與對話標頭的 resty client
func newAPIClient() *resty.Client {
	c := resty.New().SetBaseURL(strings.TrimRight(serverURL, "/"))
	if userFlag != "" {
		c.SetHeader(webapi.HeaderUserID, userFlag)
	}
	if sessFlag != "" {
		c.SetHeader(webapi.HeaderSessionID, sessFlag)
	}
	return c
}

// apiError 把非 2xx 的回應轉成錯誤
func apiError(resp *resty.Response) error {
	if resp.IsSuccess() {
		return nil
	}
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err == nil && body.Error != "" {
		return fmt.Errorf("%s: %s", resp.Status(), body.Error)
	}
	return fmt.Errorf("%s", resp.Status())
}
