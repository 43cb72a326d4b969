package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/asccclass/skillbridge/internal/agent"
)

var (
	personaFlag string
	noAutoExec  bool

	promptStr = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(">>> ")
	aiStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	toolStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
)

func init() {
	chatCmd.Flags().StringVar(&personaFlag, "persona", "", "角色 (tutor|deployment|troubleshooter|technical)")
	chatCmd.Flags().BoolVar(&noAutoExec, "no-auto", false, "不自動執行 skill，只列出待執行的呼叫")
	rootCmd.AddCommand(chatCmd)
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "連線到 SkillBridge 伺服器進行對話",
	Run:   runChat,
}

var errStreamIncomplete = errors.New("stream ended without [DONE]")

// readStream 解析 SSE 串流，每個 data 事件交給 onEvent，遇到 [DONE] 結束
func readStream(r io.Reader, onEvent func(agent.Event)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			return nil
		}
		var ev agent.Event
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			continue
		}
		if ev.Type == "error" {
			return fmt.Errorf("server: %s", ev.Error)
		}
		onEvent(ev)
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return errStreamIncomplete
}

// turnView 累積一個回合的串流輸出
type turnView struct {
	out     io.Writer
	content strings.Builder
}

func (v *turnView) handle(ev agent.Event) {
	switch ev.Type {
	case agent.EventScenarioResults:
		if len(ev.MatchedSkills) > 0 {
			fmt.Fprintln(v.out, dimStyle.Render(fmt.Sprintf("可能相關的 skills: %s", strings.Join(ev.MatchedSkills, ", "))))
		}
	case agent.EventExecutingSkills:
		fmt.Fprintln(v.out, toolStyle.Render(fmt.Sprintf(">> 執行 %d 個 skill...", ev.Count)))
	case agent.EventSkillResult:
		if ev.Success != nil && *ev.Success {
			fmt.Fprintln(v.out, successStyle.Render("  ✔ ")+ev.Skill)
		} else {
			fmt.Fprintln(v.out, failStyle.Render("  ✘ ")+ev.Skill+dimStyle.Render(" "+ev.Error))
		}
	case agent.EventContent:
		v.content.WriteString(ev.Content)
	}
}

func runChat(cmd *cobra.Command, args []string) {
	client := newAPIClient()
	renderer, _ := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(0),
	)

	fmt.Println(lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Render("🚀 SkillBridge 已連線: " + serverURL))
	fmt.Println(dimStyle.Render("指令: /skills 列出已註冊 API, /clear 清除對話, /exit 離開"))

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(promptStr)
		if !scanner.Scan() {
			return
		}
		input := strings.TrimSpace(scanner.Text())
		switch input {
		case "":
			continue
		case "/exit", "/quit":
			return
		case "/clear":
			resp, err := client.R().Delete("/api/chat/history")
			if err == nil {
				err = apiError(resp)
			}
			if err != nil {
				fmt.Println(failStyle.Render("清除失敗: ") + err.Error())
				continue
			}
			fmt.Println(successStyle.Render("對話已清除"))
			continue
		case "/skills":
			if err := printSkillList(client, os.Stdout); err != nil {
				fmt.Println(failStyle.Render("讀取失敗: ") + err.Error())
			}
			continue
		}

		body := map[string]any{"message": input, "stream": true, "autoExecuteTools": !noAutoExec}
		if personaFlag != "" {
			body["persona"] = personaFlag
		}
		resp, err := client.R().
			SetContext(context.Background()).
			SetBody(body).
			SetDoNotParseResponse(true).
			Post("/api/chat")
		if err != nil {
			fmt.Println(failStyle.Render("連線失敗: ") + err.Error())
			continue
		}
		raw := resp.RawBody()
		if resp.IsError() {
			msg, _ := io.ReadAll(raw)
			raw.Close()
			fmt.Println(failStyle.Render(resp.Status()+": ") + strings.TrimSpace(string(msg)))
			continue
		}
		view := &turnView{out: os.Stdout}
		err = readStream(raw, view.handle)
		raw.Close()
		if err != nil {
			fmt.Println(failStyle.Render("串流錯誤: ") + err.Error())
		}

		answer := view.content.String()
		if answer == "" {
			continue
		}
		fmt.Println(aiStyle.Render("AI:"))
		if renderer != nil {
			if out, rerr := renderer.Render(answer); rerr == nil {
				fmt.Print(out)
				continue
			}
		}
		fmt.Println(answer)
	}
}
