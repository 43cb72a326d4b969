package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"

	"github.com/asccclass/skillbridge/internal/skillloader"
	"github.com/asccclass/skillbridge/internal/skillstore"
)

var (
	apiNameFlag string
	apiKeyFlag  string
	schemaFlag  bool
)

var skillsCmd = &cobra.Command{
	Use:   "skills",
	Short: "管理已註冊的 API 與 skills",
}

var skillsInspectCmd = &cobra.Command{
	Use:   "inspect FILE",
	Short: "在本機解析 OpenAPI 檔案並列出產生的 skills",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		compiled, err := skillloader.LoadSpecFile(args[0], cfg.MaxSpecBytes)
		if err != nil {
			return err
		}
		return printCompiled(cmd.OutOrStdout(), compiled, schemaFlag)
	},
}

var skillsRegisterCmd = &cobra.Command{
	Use:   "register FILE",
	Short: "上傳 OpenAPI 檔案到伺服器註冊為 skills",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		name := apiNameFlag
		if name == "" {
			name = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
		}
		var result struct {
			Message    string   `json:"message"`
			SkillNames []string `json:"skillNames"`
		}
		resp, err := newAPIClient().R().
			SetBody(map[string]any{"apiName": name, "spec": string(raw), "apiKey": apiKeyFlag}).
			SetResult(&result).
			Post("/api/skills/register")
		if err != nil {
			return err
		}
		if err := apiError(resp); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, successStyle.Render("✔ ")+result.Message)
		for _, s := range result.SkillNames {
			fmt.Fprintln(out, "  - "+s)
		}
		return nil
	},
}

var skillsListCmd = &cobra.Command{
	Use:   "list",
	Short: "列出伺服器上已註冊的 API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printSkillList(newAPIClient(), cmd.OutOrStdout())
	},
}

var skillsDeleteCmd = &cobra.Command{
	Use:   "delete API",
	Short: "刪除已註冊的 API",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := newAPIClient().R().
			SetBody(map[string]string{"apiName": args[0]}).
			Post("/api/skills/delete")
		if err != nil {
			return err
		}
		if err := apiError(resp); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("✔ ")+"已刪除 "+args[0])
		return nil
	},
}

func init() {
	skillsInspectCmd.Flags().BoolVar(&schemaFlag, "schema", false, "輸出 tool schema JSON")
	skillsRegisterCmd.Flags().StringVar(&apiNameFlag, "api", "", "API 名稱 (預設為檔名)")
	skillsRegisterCmd.Flags().StringVar(&apiKeyFlag, "key", "", "呼叫該 API 時使用的 API Key")
	skillsCmd.AddCommand(skillsInspectCmd, skillsRegisterCmd, skillsListCmd, skillsDeleteCmd)
	rootCmd.AddCommand(skillsCmd)
}

// printCompiled 列出解析結果；withSchema 時輸出給模型的 tool 定義
func printCompiled(out io.Writer, c *skillloader.Compiled, withSchema bool) error {
	if withSchema {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(skillloader.SkillsToToolSchemas(c.Skills))
	}
	if c.Metadata != nil && c.Metadata.Title != "" {
		fmt.Fprintln(out, labelStyle.Render(fmt.Sprintf("%s %s", c.Metadata.Title, c.Metadata.Version)))
	}
	fmt.Fprintln(out, dimStyle.Render("baseUrl: "+c.BaseURL))
	for _, s := range c.Skills {
		fmt.Fprintf(out, "  %-7s %-30s %s\n", s.Method, s.Path, s.Name)
	}
	fmt.Fprintf(out, "共 %d 個 skills\n", len(c.Skills))
	return nil
}

// printSkillList 取得 /api/skills/list 並逐一列出
func printSkillList(client *resty.Client, out io.Writer) error {
	var result struct {
		APIs []skillstore.APISummary `json:"apis"`
	}
	resp, err := client.R().SetResult(&result).Get("/api/skills/list")
	if err != nil {
		return err
	}
	if err := apiError(resp); err != nil {
		return err
	}
	if len(result.APIs) == 0 {
		fmt.Fprintln(out, dimStyle.Render("尚未註冊任何 API"))
		return nil
	}
	for _, api := range result.APIs {
		fmt.Fprintf(out, "%s %s\n", labelStyle.Render(api.APIName), dimStyle.Render(fmt.Sprintf("(%d skills, %s)", api.SkillCount, api.BaseURL)))
		for _, name := range api.SkillNames {
			fmt.Fprintln(out, "  - "+name)
		}
	}
	return nil
}
