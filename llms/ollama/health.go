package ollama

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Ping 測試 Ollama 伺服器是否在線，回傳延遲
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	start := time.Now()
	resp, err := c.http.R().SetContext(ctx).Get("/api/tags")
	if err != nil {
		return 0, err
	}
	if resp.StatusCode() != http.StatusOK {
		return 0, fmt.Errorf("ollama /api/tags: HTTP %d", resp.StatusCode())
	}
	return time.Since(start), nil
}

// IsModelPulled 檢查特定模型是否已經下載
func (c *Client) IsModelPulled(ctx context.Context, modelName string) (bool, error) {
	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	resp, err := c.http.R().SetContext(ctx).SetResult(&tags).Get("/api/tags")
	if err != nil {
		return false, err
	}
	if resp.IsError() {
		return false, fmt.Errorf("ollama /api/tags: HTTP %d", resp.StatusCode())
	}
	for _, m := range tags.Models {
		// Ollama 回傳的名稱可能帶有 :latest 標籤
		if m.Name == modelName || m.Name == modelName+":latest" {
			return true, nil
		}
	}
	return false, nil
}
