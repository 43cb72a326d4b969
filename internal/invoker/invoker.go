// Package invoker 對 skill 的實際端點發出 HTTP 請求
package invoker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/asccclass/skillbridge/internal/skillloader"
	"github.com/go-resty/resty/v2"
)

const DefaultUserAgent = "SkillBridge-Agent/1.0"

// Result 是單次 skill 執行的正規化結果；失敗一律以值回傳，不會 panic 或回傳 error
type Result struct {
	Success bool   `json:"success"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Invoker 包裝 resty client
type Invoker struct {
	client *resty.Client
}

// New 建立 Invoker；timeout <= 0 時不設逾時 (交給 transport)
func New(timeout time.Duration) *Invoker {
	client := resty.New().
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(5)).
		SetRetryCount(0)
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return &Invoker{client: client}
}

// Execute 執行一個 skill：組 URL、標頭與 body，發出剛好一次請求
func (inv *Invoker) Execute(ctx context.Context, skill *skillloader.Skill, params map[string]any, apiKey string) Result {
	if params == nil {
		params = map[string]any{}
	}

	target := BuildURL(skill, params)

	req := inv.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", DefaultUserAgent)

	if apiKey != "" {
		// 已經帶有 "Bearer " 的值直接沿用
		if strings.HasPrefix(apiKey, "Bearer ") {
			req.SetHeader("Authorization", apiKey)
		} else {
			req.SetHeader("Authorization", "Bearer "+apiKey)
		}
	}
	for _, p := range skill.Parameters {
		if p.In != skillloader.InHeader {
			continue
		}
		if v, ok := params[p.Name]; ok && v != nil {
			req.SetHeader(p.Name, stringify(v))
		}
	}

	method := strings.ToUpper(skill.Method)
	if body, ok := buildBody(skill, method, params); ok {
		data, err := json.Marshal(body)
		if err != nil {
			return Result{Success: false, Error: fmt.Sprintf("encode request body: %v", err)}
		}
		req.SetBody(data)
	}

	resp, err := req.Execute(method, target)
	if err != nil {
		return Result{Success: false, Error: err.Error()}
	}

	payload := decodeBody(resp.Header().Get("Content-Type"), resp.Body())
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return Result{
			Success: false,
			Error:   fmt.Sprintf("HTTP %d: %s", resp.StatusCode(), stringifyBody(payload)),
		}
	}
	return Result{Success: true, Result: payload}
}

// BuildURL 組出最終 URL：baseUrl + path，替換 path 參數並依宣告順序附加 query
func BuildURL(skill *skillloader.Skill, params map[string]any) string {
	target := skill.BaseURL + skill.Path
	// spec 設定錯誤時 baseUrl 可能已經包含 path
	if skill.Path != "" && strings.HasSuffix(skill.BaseURL, skill.Path) {
		target = skill.BaseURL
	}

	var query []string
	for _, p := range skill.Parameters {
		v, ok := params[p.Name]
		if !ok || v == nil {
			continue
		}
		switch p.In {
		case skillloader.InPath:
			target = strings.ReplaceAll(target, "{"+p.Name+"}", encodeComponent(stringify(v)))
		case skillloader.InQuery:
			query = append(query, encodeComponent(p.Name)+"="+encodeComponent(stringify(v)))
		}
	}

	if len(query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + strings.Join(query, "&")
	}
	return target
}

// buildBody 只有 POST / PUT / PATCH 會送 body
func buildBody(skill *skillloader.Skill, method string, params map[string]any) (any, bool) {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return nil, false
	}

	if body, ok := params["body"]; ok && body != nil {
		return body, true
	}
	if skill.RequestBody == nil {
		return nil, false
	}

	// 沒有明確的 body 時，把所有未宣告為 path/query/header 的參數收成 body
	collected := map[string]any{}
	for k, v := range params {
		if skill.HasParam(k, skillloader.InPath) || skill.HasParam(k, skillloader.InQuery) || skill.HasParam(k, skillloader.InHeader) {
			continue
		}
		collected[k] = v
	}
	if len(collected) == 0 {
		return nil, false
	}
	return collected, true
}

func decodeBody(contentType string, raw []byte) any {
	if strings.Contains(strings.ToLower(contentType), "application/json") && len(raw) > 0 {
		var v any
		if err := json.Unmarshal(raw, &v); err == nil {
			return v
		}
	}
	return string(raw)
}

func stringifyBody(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// stringify 將參數值轉成字串；數字一律用十進位 (12345678 而不是 1.2345678e+07)
func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int, int64, int32, bool, json.Number:
		return fmt.Sprint(t)
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	}
}

// encodeComponent 行為接近 encodeURIComponent (空白為 %20)
func encodeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
