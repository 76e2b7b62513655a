package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"vidpredict/internal/prediction"
)

// RenderMarkdown 使用 Glamour 渲染 markdown 文本
// RenderMarkdown renders markdown text using Glamour
func RenderMarkdown(content string, width int) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}
	if width <= 0 {
		width = 80
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content
	}

	rendered, err := r.Render(content)
	if err != nil {
		return content
	}

	return strings.TrimRight(rendered, "\n")
}

// DetailMarkdown 预测详情的 markdown 文本
// DetailMarkdown is the markdown shown for one prediction
func DetailMarkdown(p prediction.Prediction, title, createdLabel string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "%s\n\n", strings.TrimSpace(p.Text))
	fmt.Fprintf(&b, "---\n\n*%s:* %s  \n`%s`\n", createdLabel, p.CreatedAt.String(), p.ID)
	return b.String()
}

// RenderRow 渲染列表中的一行
// RenderRow renders one list row truncated to width
func RenderRow(p prediction.Prediction, width int, selected bool, theme Theme) string {
	date := p.CreatedAt.String()
	text := strings.Join(strings.Fields(p.Text), " ")

	room := width - lipgloss.Width(date) - 4
	if room < 8 {
		room = 8
	}
	text = truncate(text, room)

	if selected {
		line := fmt.Sprintf(" %s  %s", date, text)
		if pad := width - lipgloss.Width(line); pad > 0 {
			line += strings.Repeat(" ", pad)
		}
		return theme.SelectedStyle.Render(line)
	}
	return " " + theme.DateStyle.Render(date) + "  " + theme.RowStyle.Render(text)
}

func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max == 1 {
		return "…"
	}
	return string(runes[:max-1]) + "…"
}
