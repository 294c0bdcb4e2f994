package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"

	"refind/internal/model"
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

// RenderItemLine 渲染物品列表的一行
// RenderItemLine renders one row of the item list
func RenderItemLine(item model.Item, theme Theme, selected bool) string {
	badge := theme.BadgeFor(item.Status).Render(strings.ToUpper(item.Status))
	line := fmt.Sprintf("%s  %s", badge, item.Title)
	if item.Location != "" {
		line += theme.MutedStyle.Render("  @ " + item.Location)
	}
	if item.CategoryName != "" {
		line += theme.MutedStyle.Render("  [" + item.CategoryName + "]")
	}
	if selected {
		return theme.SelectedStyle.Render("> " + line)
	}
	return "  " + line
}

// RenderMessageLine 渲染一条聊天消息
// RenderMessageLine renders one chat message line. Pending optimistic
// messages (local negative ids) show a sending marker.
func RenderMessageLine(msg model.Message, selfID int64, theme Theme) string {
	ts := msg.Timestamp.Local().Format("15:04")
	if msg.ID < 0 {
		return theme.PendingMsgStyle.Render(fmt.Sprintf("[%s] you: %s (sending…)", ts, msg.Body))
	}
	if msg.Sender == selfID {
		return theme.SelfMsgStyle.Render(fmt.Sprintf("[%s] you: %s", ts, msg.Body))
	}
	name := msg.SenderUsername
	if name == "" {
		name = fmt.Sprintf("user %d", msg.Sender)
	}
	return theme.OtherMsgStyle.Render(fmt.Sprintf("[%s] %s: %s", ts, name, msg.Body))
}

// RenderRelativeTime 将时间渲染为相对描述
// RenderRelativeTime renders a timestamp as a short relative description
func RenderRelativeTime(ts, now time.Time) string {
	if ts.IsZero() {
		return ""
	}
	d := now.Sub(ts)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return ts.Local().Format("Jan 2")
	}
}

// RenderClaimStatus 渲染认领状态摘要
// RenderClaimStatus renders the claim summary line for an item
func RenderClaimStatus(item model.Item, theme Theme) string {
	if item.ClaimStatus == nil {
		return theme.MutedStyle.Render("No claims yet")
	}
	cs := item.ClaimStatus
	switch cs.Status {
	case "pending":
		return theme.SuccessStyle.Render(fmt.Sprintf("Claim pending from %s", cs.ClaimerUsername))
	case "approved":
		return theme.SuccessStyle.Render(fmt.Sprintf("Claim approved for %s", cs.ClaimerUsername))
	case "rejected":
		return theme.MutedStyle.Render("Last claim was rejected")
	default:
		return theme.MutedStyle.Render(cs.Status)
	}
}
