package tui

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"refind/internal/api"
	"refind/internal/chat"
	"refind/internal/claims"
	"refind/internal/model"
	"refind/internal/poll"
	"refind/internal/session"
)

// Screen 当前显示的页面 / Screen identifies the visible view.
type Screen int

const (
	ScreenAuth Screen = iota
	ScreenDashboard
	ScreenItems
	ScreenItemDetail
	ScreenReport
	ScreenChat
	ScreenNotifications
	ScreenAssistant
)

// mainTabs are the screens reachable with tab while logged in.
var mainTabs = []Screen{ScreenDashboard, ScreenItems, ScreenNotifications, ScreenAssistant}

// --- Tea Messages ---

// AuthChangedMsg 登录状态变化 / AuthChangedMsg reports a state machine move.
type AuthChangedMsg struct{ State session.State }

// DashboardMsg 仪表盘数据就绪 / DashboardMsg carries fresh dashboard data.
type DashboardMsg struct{ Dashboard model.Dashboard }

// UnreadMsg 未读计数更新，后到覆盖先到
// UnreadMsg carries the unread counter; last write wins.
type UnreadMsg struct{ Summary model.NotificationSummary }

// ChatUpdateMsg 会话消息列表更新 / ChatUpdateMsg carries the merged message
// list of the open conversation.
type ChatUpdateMsg struct {
	Key      model.ConversationKey
	Messages []model.Message
}

type itemsLoadedMsg struct {
	items []model.Item
	err   error
}

type itemLoadedMsg struct {
	item model.Item
	err  error
}

type notificationsLoadedMsg struct {
	notifications []model.Notification
	err           error
}

type matchesLoadedMsg struct {
	itemID  int64
	matches []model.Match
	err     error
}

type categoriesLoadedMsg struct {
	categories []model.Category
	err        error
}

type reportResultMsg struct {
	item model.Item
	err  error
}

type loginResultMsg struct{ err error }

type signupResultMsg struct{ err error }

type sendResultMsg struct{ err error }

type claimResultMsg struct {
	item model.Item
	err  error
}

type assistantReplyMsg struct {
	reply string
	err   error
}

// Deps 注入应用依赖 / Deps carries the wired dependencies.
type Deps struct {
	Client  *api.Client
	Session *session.Manager
	Claims  *claims.Workflow
	Logger  *slog.Logger

	ChatInterval          time.Duration
	NotificationsInterval time.Duration
	DashboardInterval     time.Duration
}

// App Bubble Tea 主 Model
// App is the main Bubble Tea model. All state mutation happens on the Update
// goroutine; background pollers hand their results over through the events
// channel.
type App struct {
	deps   Deps
	events chan tea.Msg
	ctx    context.Context

	// 布局 / Layout
	width  int
	height int

	// 页面 / Screens
	screen     Screen
	lastScreen Screen

	// 登录表单 / Auth form
	authInputs  []textinput.Model
	authFocus   int
	signupMode  bool
	authErr     string
	authPending bool

	// 数据 / Data
	dashboard     model.Dashboard
	hasDashboard  bool
	items         []model.Item
	itemCursor    int
	searchQuery   string
	searchInput   textinput.Model
	searching     bool
	currentItem   model.Item
	matches       []model.Match
	showMatches   bool
	notifications []model.Notification
	unread        int

	// 上报表单 / Report form
	reportInputs  []textinput.Model
	reportFocus   int
	reportStatus  string
	reportErr     string
	reportPending bool
	categories    []model.Category

	// 聊天 / Chat
	chatSession    *chat.Session
	chatView       viewport.Model
	chatInput      textarea.Model
	chatMsgs       []model.Message
	chatOpen       bool
	chatReadSynced bool
	sendFailed     string

	// 助手 / Assistant
	assistantView    viewport.Model
	assistantInput   textarea.Model
	assistantLog     strings.Builder
	assistantPending bool

	// 认领 / Claims
	claimNoteInput textinput.Model
	claimPrompt    bool

	// 状态 / Status
	statusMsg string
	statusErr bool

	// 轮询 / Pollers
	notifSync *poll.Synchronizer[model.NotificationSummary]
	dashSync  *poll.Synchronizer[model.Dashboard]

	theme Theme
	keys  KeyMap
}

// NewApp 创建 TUI 应用 / NewApp creates the TUI application model.
func NewApp(ctx context.Context, deps Deps) *App {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	a := &App{
		deps:   deps,
		events: make(chan tea.Msg, 64),
		ctx:    ctx,
		screen: ScreenAuth,
		theme:  DarkTheme(),
		keys:   DefaultKeyMap(),
	}
	a.resetAuthInputs()

	a.searchInput = textinput.New()
	a.searchInput.Placeholder = "search items"
	a.searchInput.CharLimit = 120

	a.claimNoteInput = textinput.New()
	a.claimNoteInput.Placeholder = "why is this item yours?"
	a.claimNoteInput.CharLimit = 500

	a.chatInput = textarea.New()
	a.chatInput.Placeholder = "Type a message…"
	a.chatInput.CharLimit = 2000
	a.chatInput.SetHeight(3)

	a.assistantInput = textarea.New()
	a.assistantInput.Placeholder = "Ask the campus assistant…"
	a.assistantInput.CharLimit = 2000
	a.assistantInput.SetHeight(3)

	deps.Session.OnChange = func(s session.State) {
		a.events <- AuthChangedMsg{State: s}
	}

	a.notifSync = poll.New(poll.Options[model.NotificationSummary]{
		Name:     "notifications",
		Interval: deps.NotificationsInterval,
		Fetch:    deps.Client.NotificationSummary,
		Equal: func(x, y model.NotificationSummary) bool {
			return x.UnreadMessages == y.UnreadMessages
		},
		Active:   func() bool { return deps.Session.State() == session.StateAuthenticated },
		OnUpdate: func(s model.NotificationSummary) { a.events <- UnreadMsg{Summary: s} },
		Logger:   deps.Logger,
	})
	a.dashSync = poll.New(poll.Options[model.Dashboard]{
		Name:     "dashboard",
		Interval: deps.DashboardInterval,
		Fetch:    deps.Client.Dashboard,
		Equal:    dashboardsEqual,
		Active:   func() bool { return deps.Session.State() == session.StateAuthenticated },
		OnUpdate: func(d model.Dashboard) { a.events <- DashboardMsg{Dashboard: d} },
		Logger:   deps.Logger,
	})
	return a
}

func (a *App) resetAuthInputs() {
	labels := []string{"email", "password"}
	if a.signupMode {
		labels = []string{"username", "password", "email", "full name", "student id", "phone (optional)"}
	}
	a.authInputs = make([]textinput.Model, len(labels))
	for i, label := range labels {
		ti := textinput.New()
		ti.Placeholder = label
		ti.CharLimit = 150
		if label == "password" {
			ti.EchoMode = textinput.EchoPassword
			ti.EchoCharacter = '•'
		}
		a.authInputs[i] = ti
	}
	a.authFocus = 0
	a.authInputs[0].Focus()
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(a.waitForEvent(), a.bootstrapCmd(), textinput.Blink)
}

// waitForEvent re-arms the background event pump.
func (a *App) waitForEvent() tea.Cmd {
	return func() tea.Msg { return <-a.events }
}

func (a *App) bootstrapCmd() tea.Cmd {
	return func() tea.Msg {
		// Transitions arrive through the events channel via OnChange.
		a.deps.Session.Bootstrap(a.ctx)
		return nil
	}
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			a.shutdown()
			return a, tea.Quit
		}
		return a.updateKey(msg)

	case tea.WindowSizeMsg:
		a.width, a.height = msg.Width, msg.Height
		a.relayout()
		return a, nil

	case AuthChangedMsg:
		return a.onAuthChanged(msg.State)

	case DashboardMsg:
		a.dashboard = msg.Dashboard
		a.hasDashboard = true
		return a, a.waitForEvent()

	case UnreadMsg:
		a.unread = msg.Summary.UnreadMessages
		return a, a.waitForEvent()

	case ChatUpdateMsg:
		if a.chatSession != nil && msg.Key == a.chatSession.Key() {
			a.chatMsgs = msg.Messages
			a.refreshChatView()
			if !a.chatReadSynced {
				// The first thread fetch marked the counterpart's
				// messages read server-side; resync the badge once.
				a.chatReadSynced = true
				a.notifSync.Refresh()
			}
		}
		return a, a.waitForEvent()

	case itemsLoadedMsg:
		if msg.err != nil {
			a.setStatus(api.UserMessage(msg.err, "Could not load items."), true)
			return a, nil
		}
		a.items = msg.items
		if a.itemCursor >= len(a.items) {
			a.itemCursor = 0
		}
		a.setStatus(fmt.Sprintf("%d items", len(a.items)), false)
		return a, nil

	case itemLoadedMsg:
		if msg.err != nil {
			a.setStatus(api.UserMessage(msg.err, "Could not load the item."), true)
			return a, nil
		}
		a.currentItem = msg.item
		a.screen = ScreenItemDetail
		a.showMatches = false
		return a, nil

	case notificationsLoadedMsg:
		if msg.err != nil {
			a.setStatus(api.UserMessage(msg.err, "Could not load notifications."), true)
			return a, nil
		}
		a.notifications = msg.notifications
		return a, nil

	case matchesLoadedMsg:
		if msg.err != nil {
			a.setStatus(api.UserMessage(msg.err, "Could not load matches."), true)
			return a, nil
		}
		if msg.itemID == a.currentItem.ID {
			a.matches = msg.matches
			a.showMatches = true
		}
		return a, nil

	case categoriesLoadedMsg:
		if msg.err != nil {
			a.setStatus(api.UserMessage(msg.err, "Could not load categories."), true)
			return a, nil
		}
		a.categories = msg.categories
		return a, nil

	case reportResultMsg:
		a.reportPending = false
		if msg.err != nil {
			a.reportErr = api.UserMessage(msg.err, "Report failed. Please review the form.")
			return a, nil
		}
		a.screen = ScreenItems
		a.setStatus(fmt.Sprintf("Reported %q.", msg.item.Title), false)
		return a, a.loadItemsCmd()

	case loginResultMsg:
		a.authPending = false
		if msg.err != nil {
			a.authErr = api.UserMessage(msg.err, "Login failed. Please check your credentials.")
			return a, nil
		}
		a.authErr = ""
		return a, nil

	case signupResultMsg:
		a.authPending = false
		if msg.err != nil {
			a.authErr = api.UserMessage(msg.err, "Registration failed. Please review your details.")
			return a, nil
		}
		a.authErr = ""
		return a, nil

	case sendResultMsg:
		if msg.err != nil {
			// Put the text back so the user can retry with enter.
			a.chatInput.SetValue(a.sendFailed)
			a.setStatus(api.UserMessage(msg.err, "Message failed to send. Press enter to retry."), true)
		} else {
			a.sendFailed = ""
		}
		return a, nil

	case claimResultMsg:
		if msg.err != nil {
			a.setStatus(api.UserMessage(msg.err, "Claim action failed."), true)
			return a, nil
		}
		a.currentItem = msg.item
		a.setStatus("Done. Item status updated.", false)
		return a, nil

	case assistantReplyMsg:
		a.assistantPending = false
		if msg.err != nil {
			a.setStatus(api.UserMessage(msg.err, "The assistant is unavailable right now."), true)
			return a, nil
		}
		a.assistantLog.WriteString(RenderMarkdown(msg.reply, a.contentWidth()) + "\n\n")
		a.assistantView.SetContent(a.assistantLog.String())
		a.assistantView.GotoBottom()
		return a, nil
	}

	return a.updateFocused(msg)
}

func (a *App) onAuthChanged(s session.State) (tea.Model, tea.Cmd) {
	switch s {
	case session.StateAuthenticated:
		a.screen = ScreenDashboard
		a.notifSync.Start(a.ctx)
		a.dashSync.Start(a.ctx)
		return a, tea.Batch(a.waitForEvent(), a.loadItemsCmd())
	case session.StateAnonymous:
		a.closeChat()
		a.screen = ScreenAuth
		a.resetAuthInputs()
		return a, a.waitForEvent()
	default:
		return a, a.waitForEvent()
	}
}

func (a *App) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch a.screen {
	case ScreenAuth:
		return a.updateAuthKey(msg)
	case ScreenChat:
		return a.updateChatKey(msg)
	case ScreenAssistant:
		return a.updateAssistantKey(msg)
	case ScreenItemDetail:
		return a.updateItemDetailKey(msg)
	case ScreenReport:
		return a.updateReportKey(msg)
	case ScreenItems:
		return a.updateItemsKey(msg)
	case ScreenNotifications:
		return a.updateNotificationsKey(msg)
	default:
		return a.updateListKey(msg)
	}
}

func (a *App) updateAuthKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "tab", "shift+tab", "down", "up":
		delta := 1
		if msg.String() == "shift+tab" || msg.String() == "up" {
			delta = len(a.authInputs) - 1
		}
		a.authInputs[a.authFocus].Blur()
		a.authFocus = (a.authFocus + delta) % len(a.authInputs)
		a.authInputs[a.authFocus].Focus()
		return a, nil
	case "ctrl+s":
		a.signupMode = !a.signupMode
		a.authErr = ""
		a.resetAuthInputs()
		return a, nil
	case "enter":
		if a.authPending {
			return a, nil
		}
		return a, a.submitAuthCmd()
	}
	var cmd tea.Cmd
	a.authInputs[a.authFocus], cmd = a.authInputs[a.authFocus].Update(msg)
	return a, cmd
}

func (a *App) submitAuthCmd() tea.Cmd {
	first := strings.TrimSpace(a.authInputs[0].Value())
	password := a.authInputs[1].Value()
	if first == "" || password == "" {
		if a.signupMode {
			a.authErr = "Username and password are required."
		} else {
			a.authErr = "Email and password are required."
		}
		return nil
	}
	a.authPending = true
	a.authErr = ""
	if !a.signupMode {
		return func() tea.Msg {
			return loginResultMsg{err: a.deps.Session.Login(a.ctx, first, password)}
		}
	}
	payload := model.RegisterPayload{
		Username:  first,
		Password:  password,
		Email:     strings.TrimSpace(a.authInputs[2].Value()),
		Name:      strings.TrimSpace(a.authInputs[3].Value()),
		StudentID: strings.TrimSpace(a.authInputs[4].Value()),
		Phone:     strings.TrimSpace(a.authInputs[5].Value()),
	}
	return func() tea.Msg {
		return signupResultMsg{err: a.deps.Session.Signup(a.ctx, payload)}
	}
}

func (a *App) updateItemsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.searching {
		switch msg.String() {
		case "enter":
			a.searching = false
			a.searchQuery = strings.TrimSpace(a.searchInput.Value())
			a.searchInput.Blur()
			return a, a.loadItemsCmd()
		case "esc":
			a.searching = false
			a.searchInput.Blur()
			return a, nil
		}
		var cmd tea.Cmd
		a.searchInput, cmd = a.searchInput.Update(msg)
		return a, cmd
	}

	switch msg.String() {
	case "/":
		a.searching = true
		a.searchInput.Focus()
		return a, textinput.Blink
	case "up", "k":
		if a.itemCursor > 0 {
			a.itemCursor--
		}
		return a, nil
	case "down", "j":
		if a.itemCursor < len(a.items)-1 {
			a.itemCursor++
		}
		return a, nil
	case "enter":
		if len(a.items) == 0 {
			return a, nil
		}
		return a, a.loadItemCmd(a.items[a.itemCursor].ID)
	case "r":
		return a, a.loadItemsCmd()
	case "n":
		return a, a.openReportCmd()
	}
	return a.updateListKey(msg)
}

func (a *App) resetReportInputs() {
	labels := []string{"title", "description", "location", "category", "private note (optional)"}
	a.reportInputs = make([]textinput.Model, len(labels))
	for i, label := range labels {
		ti := textinput.New()
		ti.Placeholder = label
		ti.CharLimit = 500
		a.reportInputs[i] = ti
	}
	a.reportFocus = 0
	a.reportInputs[0].Focus()
	a.reportStatus = model.StatusLost
	a.reportErr = ""
	a.reportPending = false
}

// openReportCmd opens the report form and fetches the category list in the
// background so the user can pick one by id or name.
func (a *App) openReportCmd() tea.Cmd {
	a.resetReportInputs()
	a.screen = ScreenReport
	return tea.Batch(textinput.Blink, func() tea.Msg {
		categories, err := a.deps.Client.Categories(a.ctx)
		return categoriesLoadedMsg{categories: categories, err: err}
	})
}

func (a *App) updateReportKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		a.screen = ScreenItems
		return a, nil
	case "tab", "shift+tab", "down", "up":
		delta := 1
		if msg.String() == "shift+tab" || msg.String() == "up" {
			delta = len(a.reportInputs) - 1
		}
		a.reportInputs[a.reportFocus].Blur()
		a.reportFocus = (a.reportFocus + delta) % len(a.reportInputs)
		a.reportInputs[a.reportFocus].Focus()
		return a, nil
	case "ctrl+t":
		if a.reportStatus == model.StatusLost {
			a.reportStatus = model.StatusFound
		} else {
			a.reportStatus = model.StatusLost
		}
		return a, nil
	case "enter":
		if a.reportPending {
			return a, nil
		}
		return a, a.submitReportCmd()
	}
	var cmd tea.Cmd
	a.reportInputs[a.reportFocus], cmd = a.reportInputs[a.reportFocus].Update(msg)
	return a, cmd
}

func (a *App) submitReportCmd() tea.Cmd {
	title := strings.TrimSpace(a.reportInputs[0].Value())
	location := strings.TrimSpace(a.reportInputs[2].Value())
	if title == "" || location == "" {
		a.reportErr = "Title and location are required."
		return nil
	}
	categoryID, ok := a.resolveCategory(strings.TrimSpace(a.reportInputs[3].Value()))
	if !ok {
		a.reportErr = "Pick a category from the list below."
		return nil
	}
	payload := model.ReportItemPayload{
		Title:       title,
		Description: strings.TrimSpace(a.reportInputs[1].Value()),
		Location:    location,
		Status:      a.reportStatus,
		CategoryID:  categoryID,
		PrivateNote: strings.TrimSpace(a.reportInputs[4].Value()),
	}
	a.reportPending = true
	a.reportErr = ""
	return func() tea.Msg {
		item, err := a.deps.Client.ReportItem(a.ctx, payload)
		return reportResultMsg{item: item, err: err}
	}
}

// resolveCategory accepts either a category id or a category name from the
// fetched list.
func (a *App) resolveCategory(value string) (int64, bool) {
	if value == "" {
		return 0, false
	}
	if id, err := strconv.ParseInt(value, 10, 64); err == nil {
		for _, c := range a.categories {
			if c.ID == id {
				return id, true
			}
		}
	}
	for _, c := range a.categories {
		if strings.EqualFold(c.Name, value) {
			return c.ID, true
		}
	}
	return 0, false
}

func (a *App) updateItemDetailKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.claimPrompt {
		switch msg.String() {
		case "enter":
			note := strings.TrimSpace(a.claimNoteInput.Value())
			a.claimPrompt = false
			a.claimNoteInput.Blur()
			a.claimNoteInput.SetValue("")
			return a, a.claimCmd(a.currentItem.ID, note)
		case "esc":
			a.claimPrompt = false
			a.claimNoteInput.Blur()
			return a, nil
		}
		var cmd tea.Cmd
		a.claimNoteInput, cmd = a.claimNoteInput.Update(msg)
		return a, cmd
	}

	switch msg.String() {
	case "esc":
		a.screen = ScreenItems
		a.showMatches = false
		return a, nil
	case "c":
		if a.deps.Claims.InFlight(a.currentItem.ID) {
			a.setStatus("A claim action is already running for this item.", true)
			return a, nil
		}
		a.claimPrompt = true
		a.claimNoteInput.Focus()
		return a, textinput.Blink
	case "a":
		return a, a.approveCmd(a.currentItem.ID)
	case "f":
		return a, a.updateStatusCmd(a.currentItem.ID, model.StatusFound)
	case "l":
		return a, a.updateStatusCmd(a.currentItem.ID, model.StatusLost)
	case "d":
		return a, a.updateStatusCmd(a.currentItem.ID, model.StatusClaimed)
	case "m":
		return a.openChatForCurrentItem()
	case "v":
		return a, a.loadMatchesCmd(a.currentItem)
	}
	return a.updateListKey(msg)
}

func (a *App) updateChatKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		a.closeChat()
		a.screen = ScreenItemDetail
		return a, nil
	case "enter":
		body := strings.TrimSpace(a.chatInput.Value())
		if body == "" || a.chatSession == nil {
			return a, nil
		}
		a.chatInput.Reset()
		a.sendFailed = body
		sess := a.chatSession
		return a, func() tea.Msg {
			return sendResultMsg{err: sess.Send(a.ctx, body)}
		}
	case "pgup":
		a.chatView.HalfViewUp()
		return a, nil
	case "pgdown":
		a.chatView.HalfViewDown()
		return a, nil
	}
	var cmd tea.Cmd
	a.chatInput, cmd = a.chatInput.Update(msg)
	return a, cmd
}

func (a *App) updateAssistantKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "tab":
		return a.nextTab()
	case "enter":
		question := strings.TrimSpace(a.assistantInput.Value())
		if question == "" || a.assistantPending {
			return a, nil
		}
		a.assistantInput.Reset()
		a.assistantPending = true
		a.assistantLog.WriteString(a.theme.SelfMsgStyle.Render("you: "+question) + "\n")
		a.assistantView.SetContent(a.assistantLog.String())
		a.assistantView.GotoBottom()
		return a, func() tea.Msg {
			reply, err := a.deps.Client.Assistant(a.ctx, question)
			return assistantReplyMsg{reply: reply, err: err}
		}
	case "pgup":
		a.assistantView.HalfViewUp()
		return a, nil
	case "pgdown":
		a.assistantView.HalfViewDown()
		return a, nil
	}
	var cmd tea.Cmd
	a.assistantInput, cmd = a.assistantInput.Update(msg)
	return a, cmd
}

func (a *App) updateNotificationsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		return a, func() tea.Msg {
			// Fetching the unread list marks those entries read on the
			// server, so a plain fetch is the mark-read action.
			if _, err := a.deps.Client.Notifications(a.ctx, false); err != nil {
				return notificationsLoadedMsg{err: err}
			}
			a.notifSync.Refresh()
			notifications, err := a.deps.Client.Notifications(a.ctx, true)
			return notificationsLoadedMsg{notifications: notifications, err: err}
		}
	case "r":
		return a, a.loadNotificationsCmd()
	}
	return a.updateListKey(msg)
}

// updateListKey handles the keys shared by every logged-in screen.
func (a *App) updateListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "tab":
		return a.nextTab()
	case "q":
		a.deps.Session.Logout()
		return a, nil
	}
	return a, nil
}

func (a *App) nextTab() (tea.Model, tea.Cmd) {
	for i, s := range mainTabs {
		if s == a.screen {
			a.screen = mainTabs[(i+1)%len(mainTabs)]
			return a, a.enterScreenCmd()
		}
	}
	a.screen = ScreenDashboard
	return a, nil
}

func (a *App) enterScreenCmd() tea.Cmd {
	switch a.screen {
	case ScreenItems:
		return a.loadItemsCmd()
	case ScreenNotifications:
		return a.loadNotificationsCmd()
	case ScreenDashboard:
		a.dashSync.Refresh()
	}
	return nil
}

func (a *App) updateFocused(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch a.screen {
	case ScreenAuth:
		a.authInputs[a.authFocus], cmd = a.authInputs[a.authFocus].Update(msg)
	case ScreenReport:
		a.reportInputs[a.reportFocus], cmd = a.reportInputs[a.reportFocus].Update(msg)
	case ScreenChat:
		a.chatInput, cmd = a.chatInput.Update(msg)
	case ScreenAssistant:
		a.assistantInput, cmd = a.assistantInput.Update(msg)
	}
	return a, cmd
}

// --- Commands ---

func (a *App) loadItemsCmd() tea.Cmd {
	query := strings.ToLower(a.searchQuery)
	return func() tea.Msg {
		items, err := a.deps.Client.MyItems(a.ctx)
		if err == nil && query != "" {
			filtered := make([]model.Item, 0, len(items))
			for _, it := range items {
				hay := strings.ToLower(it.Title + " " + it.Location + " " + it.CategoryName)
				if strings.Contains(hay, query) {
					filtered = append(filtered, it)
				}
			}
			items = filtered
		}
		return itemsLoadedMsg{items: items, err: err}
	}
}

func (a *App) loadItemCmd(id int64) tea.Cmd {
	return func() tea.Msg {
		item, err := a.deps.Client.Item(a.ctx, id)
		return itemLoadedMsg{item: item, err: err}
	}
}

func (a *App) loadNotificationsCmd() tea.Cmd {
	return func() tea.Msg {
		notifications, err := a.deps.Client.Notifications(a.ctx, true)
		return notificationsLoadedMsg{notifications: notifications, err: err}
	}
}

// loadMatchesCmd asks the matching engine for candidates using the item's
// own title and location as the query.
func (a *App) loadMatchesCmd(item model.Item) tea.Cmd {
	return func() tea.Msg {
		matches, err := a.deps.Client.Matches(a.ctx, item.Title, item.Location)
		return matchesLoadedMsg{itemID: item.ID, matches: matches, err: err}
	}
}

func (a *App) claimCmd(itemID int64, note string) tea.Cmd {
	return func() tea.Msg {
		item, err := a.deps.Claims.Claim(a.ctx, itemID, note)
		return claimResultMsg{item: item, err: err}
	}
}

func (a *App) approveCmd(itemID int64) tea.Cmd {
	return func() tea.Msg {
		item, err := a.deps.Claims.Approve(a.ctx, itemID)
		return claimResultMsg{item: item, err: err}
	}
}

func (a *App) updateStatusCmd(itemID int64, status string) tea.Cmd {
	return func() tea.Msg {
		item, err := a.deps.Claims.UpdateStatus(a.ctx, itemID, status)
		return claimResultMsg{item: item, err: err}
	}
}

// --- Chat wiring ---

func (a *App) openChatForCurrentItem() (tea.Model, tea.Cmd) {
	counterpart := a.currentItem.User
	self := a.deps.Session.Profile().ID
	if counterpart == self && a.currentItem.ClaimStatus != nil {
		// Owners chat with the claimer instead.
		counterpart = a.currentItem.ClaimStatus.ClaimerID
	}
	key := model.ConversationKey{ItemID: a.currentItem.ID, CounterpartID: counterpart}
	if err := key.Validate(); err != nil {
		a.setStatus(err.Error(), true)
		return a, nil
	}

	a.closeChat()
	chatOpen := &a.chatOpen
	sess, err := chat.NewSession(a.deps.Client, key, self, a.deps.ChatInterval,
		func() bool { return *chatOpen }, a.deps.Logger)
	if err != nil {
		a.setStatus(err.Error(), true)
		return a, nil
	}
	sess.OnMessages = func(msgs []model.Message) {
		a.events <- ChatUpdateMsg{Key: key, Messages: msgs}
	}
	a.chatSession = sess
	a.chatMsgs = sess.Messages()
	a.chatOpen = true
	a.chatReadSynced = false
	a.screen = ScreenChat
	a.chatInput.Focus()
	a.refreshChatView()
	sess.Start(a.ctx)

	return a, textarea.Blink
}

func (a *App) closeChat() {
	a.chatOpen = false
	if a.chatSession != nil {
		a.chatSession.Stop()
		a.chatSession = nil
	}
	a.chatMsgs = nil
	a.chatInput.Reset()
}

func (a *App) refreshChatView() {
	self := a.deps.Session.Profile().ID
	var b strings.Builder
	for _, m := range a.chatMsgs {
		b.WriteString(RenderMessageLine(m, self, a.theme))
		b.WriteByte('\n')
	}
	a.chatView.SetContent(b.String())
	a.chatView.GotoBottom()
}

// --- Layout and status ---

func (a *App) relayout() {
	w := a.contentWidth()
	h := a.height - 8
	if h < 3 {
		h = 3
	}
	a.chatView = viewport.New(w, h)
	a.assistantView = viewport.New(w, h)
	a.assistantView.SetContent(a.assistantLog.String())
	a.chatInput.SetWidth(w - 4)
	a.assistantInput.SetWidth(w - 4)
	a.searchInput.Width = w - 10
	a.refreshChatView()
}

func (a *App) contentWidth() int {
	if a.width <= 0 {
		return 80
	}
	return a.width
}

func (a *App) setStatus(text string, isErr bool) {
	a.statusMsg = text
	a.statusErr = isErr
}

func (a *App) shutdown() {
	a.closeChat()
	a.notifSync.Stop()
	a.dashSync.Stop()
}

func dashboardsEqual(x, y model.Dashboard) bool {
	if x.TotalLostItems != y.TotalLostItems || x.TotalFoundItems != y.TotalFoundItems ||
		x.TotalAIMatches != y.TotalAIMatches || x.SuccessRatio != y.SuccessRatio ||
		len(x.LostItems) != len(y.LostItems) || len(x.FoundItems) != len(y.FoundItems) {
		return false
	}
	for i := range x.LostItems {
		if x.LostItems[i].ID != y.LostItems[i].ID || x.LostItems[i].Status != y.LostItems[i].Status {
			return false
		}
	}
	for i := range x.FoundItems {
		if x.FoundItems[i].ID != y.FoundItems[i].ID || x.FoundItems[i].Status != y.FoundItems[i].Status {
			return false
		}
	}
	return true
}

// Run 启动 Bubble Tea TUI
// Run starts the Bubble Tea TUI application
func Run(ctx context.Context, deps Deps) error {
	app := NewApp(ctx, deps)
	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, err := p.Run()
	app.shutdown()
	return err
}
