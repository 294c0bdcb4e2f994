package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"refind/internal/model"
)

func (a *App) View() string {
	if a.width == 0 || a.height == 0 {
		return "Loading…"
	}

	var body string
	switch a.screen {
	case ScreenAuth:
		body = a.viewAuth()
	case ScreenDashboard:
		body = a.viewDashboard()
	case ScreenItems:
		body = a.viewItems()
	case ScreenItemDetail:
		body = a.viewItemDetail()
	case ScreenReport:
		body = a.viewReport()
	case ScreenChat:
		body = a.viewChat()
	case ScreenNotifications:
		body = a.viewNotifications()
	case ScreenAssistant:
		body = a.viewAssistant()
	}

	if a.screen == ScreenAuth {
		return body
	}
	header := a.renderTabs()
	status := a.renderStatusBar()
	return lipgloss.JoinVertical(lipgloss.Left, header, body, status)
}

func (a *App) viewAuth() string {
	var b strings.Builder
	title := " ReFind — Campus Lost & Found"
	if a.signupMode {
		title = " ReFind — Create an account"
	}
	b.WriteString(a.theme.TitleStyle.Render(title) + "\n\n")
	for i, in := range a.authInputs {
		cursor := "  "
		if i == a.authFocus {
			cursor = a.theme.TitleStyle.Render("> ")
		}
		b.WriteString(cursor + in.View() + "\n")
	}
	b.WriteString("\n")
	if a.authPending {
		b.WriteString(a.theme.MutedStyle.Render("  Signing in…") + "\n")
	}
	if a.authErr != "" {
		b.WriteString(a.theme.ErrorStyle.Render("  "+a.authErr) + "\n")
	}
	hint := "  enter: sign in · ctrl+s: create account · ctrl+c: quit"
	if a.signupMode {
		hint = "  enter: register · ctrl+s: back to sign in · ctrl+c: quit"
	}
	b.WriteString("\n" + a.theme.MutedStyle.Render(hint))
	return b.String()
}

func (a *App) viewDashboard() string {
	var b strings.Builder
	profile := a.deps.Session.Profile()
	b.WriteString(a.theme.TitleStyle.Render(fmt.Sprintf(" Welcome, %s", displayName(profile.Name, profile.Username))) + "\n\n")

	if !a.hasDashboard {
		b.WriteString(a.theme.MutedStyle.Render("  Loading dashboard…"))
		return b.String()
	}
	d := a.dashboard
	b.WriteString(fmt.Sprintf("  Lost: %d   Found: %d   AI matches: %d   Recovery rate: %.0f%%\n\n",
		d.TotalLostItems, d.TotalFoundItems, d.TotalAIMatches, d.SuccessRatio*100))

	b.WriteString(a.theme.TitleStyle.Render(" Recent lost") + "\n")
	b.WriteString(a.renderItemPreview(d.LostItems))
	b.WriteString(a.theme.TitleStyle.Render(" Recent found") + "\n")
	b.WriteString(a.renderItemPreview(d.FoundItems))
	return b.String()
}

func (a *App) renderItemPreview(items []model.Item) string {
	if len(items) == 0 {
		return a.theme.MutedStyle.Render("  nothing yet") + "\n\n"
	}
	var b strings.Builder
	max := 5
	if len(items) < max {
		max = len(items)
	}
	now := time.Now()
	for _, item := range items[:max] {
		b.WriteString(RenderItemLine(item, a.theme, false))
		b.WriteString(a.theme.MutedStyle.Render("  " + RenderRelativeTime(item.CreatedAt, now)))
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return b.String()
}

func (a *App) viewItems() string {
	var b strings.Builder
	if a.searching {
		b.WriteString(" Search: " + a.searchInput.View() + "\n\n")
	} else if a.searchQuery != "" {
		b.WriteString(a.theme.MutedStyle.Render(fmt.Sprintf(" Filtered by %q (/ to change)", a.searchQuery)) + "\n\n")
	} else {
		b.WriteString(a.theme.MutedStyle.Render(" / to filter · enter to open · n to report · r to reload") + "\n\n")
	}

	if len(a.items) == 0 {
		b.WriteString(a.theme.MutedStyle.Render("  No items to show."))
		return b.String()
	}
	visible := a.height - 8
	if visible < 3 {
		visible = 3
	}
	start := 0
	if a.itemCursor >= visible {
		start = a.itemCursor - visible + 1
	}
	end := start + visible
	if end > len(a.items) {
		end = len(a.items)
	}
	for i := start; i < end; i++ {
		b.WriteString(RenderItemLine(a.items[i], a.theme, i == a.itemCursor))
		b.WriteByte('\n')
	}
	return b.String()
}

func (a *App) viewItemDetail() string {
	item := a.currentItem
	var b strings.Builder
	b.WriteString(a.theme.BadgeFor(item.Status).Render(strings.ToUpper(item.Status)))
	b.WriteString("  " + a.theme.TitleStyle.Render(item.Title) + "\n\n")
	if item.Description != "" {
		b.WriteString("  " + item.Description + "\n")
	}
	if item.Location != "" {
		b.WriteString(a.theme.MutedStyle.Render("  Location: "+item.Location) + "\n")
	}
	if item.CategoryName != "" {
		b.WriteString(a.theme.MutedStyle.Render("  Category: "+item.CategoryName) + "\n")
	}
	b.WriteString(a.theme.MutedStyle.Render("  Reported "+RenderRelativeTime(item.CreatedAt, time.Now())) + "\n\n")
	b.WriteString("  " + RenderClaimStatus(item, a.theme) + "\n\n")

	if a.claimPrompt {
		b.WriteString(" Claim note: " + a.claimNoteInput.View() + "\n")
		b.WriteString(a.theme.MutedStyle.Render("  enter to submit · esc to cancel") + "\n")
		return b.String()
	}

	if a.showMatches {
		b.WriteString(a.theme.TitleStyle.Render(" Possible matches") + "\n")
		if len(a.matches) == 0 {
			b.WriteString(a.theme.MutedStyle.Render("  No candidates found.") + "\n")
		}
		for _, m := range a.matches {
			b.WriteString(fmt.Sprintf("  %3.0f%%  %s", m.Score*100, m.Details.TitleHint))
			if m.Details.LocationHint != "" {
				b.WriteString(a.theme.MutedStyle.Render("  @ " + m.Details.LocationHint))
			}
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}

	owner := item.User == a.deps.Session.Profile().ID
	if owner {
		b.WriteString(a.theme.MutedStyle.Render("  a: approve claim · f/l/d: mark found/lost/claimed · v: matches · m: chat · esc: back"))
	} else {
		b.WriteString(a.theme.MutedStyle.Render("  c: claim · m: message owner · esc: back"))
	}
	return b.String()
}

func (a *App) viewReport() string {
	var b strings.Builder
	b.WriteString(a.theme.TitleStyle.Render(" Report an item") + "\n\n")
	b.WriteString("  Status: " + a.theme.BadgeFor(a.reportStatus).Render(strings.ToUpper(a.reportStatus)))
	b.WriteString(a.theme.MutedStyle.Render("  (ctrl+t toggles lost/found)") + "\n\n")
	for i, in := range a.reportInputs {
		cursor := "  "
		if i == a.reportFocus {
			cursor = a.theme.TitleStyle.Render("> ")
		}
		b.WriteString(cursor + in.View() + "\n")
	}
	b.WriteString("\n")
	if len(a.categories) > 0 {
		var names []string
		for _, c := range a.categories {
			names = append(names, fmt.Sprintf("%d %s", c.ID, c.Name))
		}
		b.WriteString(a.theme.MutedStyle.Render("  Categories: "+strings.Join(names, " · ")) + "\n")
	}
	if a.reportPending {
		b.WriteString(a.theme.MutedStyle.Render("  Submitting…") + "\n")
	}
	if a.reportErr != "" {
		b.WriteString(a.theme.ErrorStyle.Render("  "+a.reportErr) + "\n")
	}
	b.WriteString("\n" + a.theme.MutedStyle.Render("  enter: submit · tab: next field · esc: cancel"))
	return b.String()
}

func (a *App) viewChat() string {
	var b strings.Builder
	title := fmt.Sprintf(" Chat — item #%d", 0)
	if a.chatSession != nil {
		title = fmt.Sprintf(" Chat — item #%d", a.chatSession.Key().ItemID)
	}
	b.WriteString(a.theme.TitleStyle.Render(title) + "\n")
	b.WriteString(a.chatView.View() + "\n")
	b.WriteString(a.theme.InputStyle.Width(a.contentWidth()).Render(a.chatInput.View()))
	return b.String()
}

func (a *App) viewNotifications() string {
	var b strings.Builder
	b.WriteString(a.theme.MutedStyle.Render(" enter: mark all read · r: reload") + "\n\n")
	if len(a.notifications) == 0 {
		b.WriteString(a.theme.MutedStyle.Render("  Nothing here."))
		return b.String()
	}
	now := time.Now()
	for _, n := range a.notifications {
		marker := "  "
		if !n.IsRead {
			marker = a.theme.UnreadBadge.Render("●") + " "
		}
		b.WriteString(fmt.Sprintf("%s%s %s\n", marker, n.Message,
			a.theme.MutedStyle.Render(RenderRelativeTime(n.CreatedAt, now))))
	}
	return b.String()
}

func (a *App) viewAssistant() string {
	var b strings.Builder
	b.WriteString(a.assistantView.View() + "\n")
	if a.assistantPending {
		b.WriteString(a.theme.MutedStyle.Render(" Thinking…") + "\n")
	}
	b.WriteString(a.theme.InputStyle.Width(a.contentWidth()).Render(a.assistantInput.View()))
	return b.String()
}

func (a *App) renderTabs() string {
	names := map[Screen]string{
		ScreenDashboard:     "Dashboard",
		ScreenItems:         "My Items",
		ScreenNotifications: "Notifications",
		ScreenAssistant:     "Assistant",
	}
	active := a.screen
	// Detail and chat screens highlight their parent tab.
	switch a.screen {
	case ScreenItemDetail, ScreenReport, ScreenChat:
		active = ScreenItems
	}

	var parts []string
	for _, s := range mainTabs {
		label := names[s]
		if s == ScreenNotifications && a.unread > 0 {
			label = fmt.Sprintf("%s (%d)", label, a.unread)
		}
		style := a.theme.InactiveTabStyle
		if s == active {
			style = a.theme.ActiveTabStyle
		}
		parts = append(parts, style.Render(label))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (a *App) renderStatusBar() string {
	profile := a.deps.Session.Profile()
	left := fmt.Sprintf(" %s · tab: switch · q: logout", displayName(profile.Name, profile.Username))
	right := ""
	if a.statusMsg != "" {
		if a.statusErr {
			right = a.theme.ErrorStyle.Render(a.statusMsg) + " "
		} else {
			right = a.statusMsg + " "
		}
	}
	gap := a.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}
	return a.theme.StatusBarStyle.Width(a.width).Render(left + strings.Repeat(" ", gap) + right)
}

func displayName(name, username string) string {
	if strings.TrimSpace(name) != "" {
		return name
	}
	if username != "" {
		return username
	}
	return "there"
}
