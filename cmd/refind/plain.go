package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"refind/internal/api"
	"refind/internal/bootstrap"
	"refind/internal/model"
	"refind/internal/session"
	"refind/internal/tui"
)

// runPlain is the line-based front end. It covers the same operations as the
// full-screen UI without taking over the terminal, which also makes it
// scriptable.
func runPlain(ctx context.Context, deps *bootstrap.BuildResult) error {
	in := newLineInput(filepath.Join(deps.Config.Storage.BaseDir, "history"))
	defer in.Close()

	state := deps.Session.Bootstrap(ctx)
	if state == session.StateAuthenticated {
		p := deps.Session.Profile()
		fmt.Printf("Signed in as %s.\n", p.Username)
	} else {
		fmt.Println("Not signed in. Use `login <email>` or `signup`.")
	}
	fmt.Println("Type `help` for commands.")

	for {
		line, err := in.ReadLine("refind> ")
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		cmd, args := fields[0], fields[1:]
		if cmd == "quit" || cmd == "exit" {
			return nil
		}
		if err := runCommand(ctx, deps, in, cmd, args); err != nil {
			if errors.Is(err, errUsage) {
				continue
			}
			fmt.Println(api.UserMessage(err, err.Error()))
		}
	}
}

var errUsage = errors.New("usage shown")

func runCommand(ctx context.Context, deps *bootstrap.BuildResult, in lineInput, cmd string, args []string) error {
	switch cmd {
	case "help":
		printHelp()
		return nil
	case "login":
		return cmdLogin(ctx, deps, in, args)
	case "signup":
		return cmdSignup(ctx, deps, in)
	case "logout":
		deps.Session.Logout()
		fmt.Println("Signed out.")
		return nil
	case "whoami":
		return cmdWhoami(deps)
	case "dashboard":
		return cmdDashboard(ctx, deps)
	case "items":
		return cmdItems(ctx, deps, strings.Join(args, " "))
	case "item":
		return cmdItem(ctx, deps, args)
	case "report":
		return cmdReport(ctx, deps, in, args)
	case "claim":
		return cmdClaim(ctx, deps, args)
	case "approve":
		return cmdApprove(ctx, deps, args)
	case "status":
		return cmdStatus(ctx, deps, args)
	case "chat":
		return cmdChat(ctx, deps, args)
	case "send":
		return cmdSend(ctx, deps, args)
	case "notifications":
		return cmdNotifications(ctx, deps, args)
	case "matches":
		return cmdMatches(ctx, deps, args)
	case "ask":
		return cmdAsk(ctx, deps, strings.Join(args, " "))
	default:
		fmt.Printf("Unknown command %q. Type `help`.\n", cmd)
		return nil
	}
}

func printHelp() {
	fmt.Print(`Commands:
  login <email>                 sign in (password is prompted)
  signup                        create an account
  logout                        sign out locally
  whoami                        show the current profile
  dashboard                     campus-wide stats and recent items
  items [filter]                list your reported items
  item <id>                     show one item with its claim status
  report <lost|found>           report an item (details are prompted)
  claim <id> [note...]          claim an item
  approve <id>                  approve the pending claim on your item
  status <id> <lost|found|claimed>  move your item to a new status
  chat <item> <user>            show a conversation (marks it read)
  send <item> <user> <text>     send a message into a conversation
  notifications [all]           list unread notifications (marks them read)
  matches <query> [@location]   AI match candidates for a description
  ask <question>                ask the support assistant
  quit
`)
}

func requireAuth(deps *bootstrap.BuildResult) error {
	if deps.Session.State() != session.StateAuthenticated {
		return errors.New("you need to sign in first")
	}
	return nil
}

func cmdLogin(ctx context.Context, deps *bootstrap.BuildResult, in lineInput, args []string) error {
	if len(args) != 1 {
		fmt.Println("usage: login <email>")
		return errUsage
	}
	password, err := in.ReadPassword("password: ")
	if err != nil {
		return err
	}
	if err := deps.Session.Login(ctx, args[0], password); err != nil {
		return err
	}
	fmt.Printf("Signed in as %s.\n", deps.Session.Profile().Username)
	return nil
}

func cmdSignup(ctx context.Context, deps *bootstrap.BuildResult, in lineInput) error {
	read := func(prompt string) (string, error) {
		v, err := in.ReadLine(prompt)
		return strings.TrimSpace(v), err
	}
	username, err := read("username: ")
	if err != nil {
		return err
	}
	password, err := in.ReadPassword("password: ")
	if err != nil {
		return err
	}
	email, err := read("email: ")
	if err != nil {
		return err
	}
	name, err := read("full name: ")
	if err != nil {
		return err
	}
	studentID, err := read("student id: ")
	if err != nil {
		return err
	}
	phone, err := read("phone (optional): ")
	if err != nil {
		return err
	}
	err = deps.Session.Signup(ctx, model.RegisterPayload{
		Username:  username,
		Password:  password,
		Email:     email,
		Name:      name,
		StudentID: studentID,
		Phone:     phone,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Account created. Signed in as %s.\n", deps.Session.Profile().Username)
	return nil
}

func cmdWhoami(deps *bootstrap.BuildResult) error {
	if err := requireAuth(deps); err != nil {
		return err
	}
	p := deps.Session.Profile()
	fmt.Printf("%s (%s)\n  email: %s\n  student id: %s\n", p.Name, p.Username, p.Email, p.StudentID)
	return nil
}

func cmdDashboard(ctx context.Context, deps *bootstrap.BuildResult) error {
	if err := requireAuth(deps); err != nil {
		return err
	}
	d, err := deps.Client.Dashboard(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Lost: %d  Found: %d  AI matches: %d  Recovery rate: %.0f%%\n",
		d.TotalLostItems, d.TotalFoundItems, d.TotalAIMatches, d.SuccessRatio*100)
	printItems(d.LostItems, "Recent lost")
	printItems(d.FoundItems, "Recent found")
	return nil
}

func cmdItems(ctx context.Context, deps *bootstrap.BuildResult, filter string) error {
	if err := requireAuth(deps); err != nil {
		return err
	}
	items, err := deps.Client.MyItems(ctx)
	if err != nil {
		return err
	}
	filter = strings.ToLower(strings.TrimSpace(filter))
	if filter != "" {
		kept := make([]model.Item, 0, len(items))
		for _, it := range items {
			hay := strings.ToLower(it.Title + " " + it.Location + " " + it.CategoryName)
			if strings.Contains(hay, filter) {
				kept = append(kept, it)
			}
		}
		items = kept
	}
	printItems(items, fmt.Sprintf("%d items", len(items)))
	return nil
}

func printItems(items []model.Item, heading string) {
	fmt.Println(heading + ":")
	if len(items) == 0 {
		fmt.Println("  (none)")
		return
	}
	for _, item := range items {
		fmt.Printf("  #%-4d [%s] %s", item.ID, item.Status, item.Title)
		if item.Location != "" {
			fmt.Printf("  @ %s", item.Location)
		}
		fmt.Println()
	}
}

func cmdItem(ctx context.Context, deps *bootstrap.BuildResult, args []string) error {
	if err := requireAuth(deps); err != nil {
		return err
	}
	id, err := parseID(args, "item <id>")
	if err != nil {
		return err
	}
	item, err := deps.Client.Item(ctx, id)
	if err != nil {
		return err
	}
	printItemDetail(item)
	return nil
}

func printItemDetail(item model.Item) {
	fmt.Printf("#%d [%s] %s\n", item.ID, item.Status, item.Title)
	if item.Description != "" {
		fmt.Println("  " + item.Description)
	}
	if item.Location != "" {
		fmt.Println("  location: " + item.Location)
	}
	if item.CategoryName != "" {
		fmt.Println("  category: " + item.CategoryName)
	}
	fmt.Printf("  reported by user %d at %s\n", item.User, item.CreatedAt.Local().Format(time.RFC822))
	if item.ClaimStatus != nil {
		fmt.Printf("  claim: %s by %s\n", item.ClaimStatus.Status, item.ClaimStatus.ClaimerUsername)
	}
}

func cmdReport(ctx context.Context, deps *bootstrap.BuildResult, in lineInput, args []string) error {
	if err := requireAuth(deps); err != nil {
		return err
	}
	if len(args) != 1 || (args[0] != model.StatusLost && args[0] != model.StatusFound) {
		fmt.Println("usage: report <lost|found>")
		return errUsage
	}
	read := func(prompt string) (string, error) {
		v, err := in.ReadLine(prompt)
		return strings.TrimSpace(v), err
	}
	title, err := read("title: ")
	if err != nil {
		return err
	}
	if title == "" {
		return errors.New("a title is required")
	}
	description, err := read("description: ")
	if err != nil {
		return err
	}
	location, err := read("location: ")
	if err != nil {
		return err
	}
	if location == "" {
		return errors.New("a location is required")
	}
	categories, err := deps.Client.Categories(ctx)
	if err != nil {
		return err
	}
	for _, c := range categories {
		fmt.Printf("  %d %s\n", c.ID, c.Name)
	}
	raw, err := read("category id: ")
	if err != nil {
		return err
	}
	categoryID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || categoryID <= 0 {
		return errors.New("pick a category id from the list")
	}
	note, err := read("private note (optional): ")
	if err != nil {
		return err
	}
	imagePath, err := read("image path (optional): ")
	if err != nil {
		return err
	}
	payload := model.ReportItemPayload{
		Title:       title,
		Description: description,
		Location:    location,
		Status:      args[0],
		CategoryID:  categoryID,
		PrivateNote: note,
	}
	if imagePath != "" {
		data, err := os.ReadFile(imagePath)
		if err != nil {
			return err
		}
		payload.ImageName = filepath.Base(imagePath)
		payload.ImageData = data
	}
	item, err := deps.Client.ReportItem(ctx, payload)
	if err != nil {
		return err
	}
	fmt.Println("Item reported.")
	printItemDetail(item)
	return nil
}

func cmdClaim(ctx context.Context, deps *bootstrap.BuildResult, args []string) error {
	if err := requireAuth(deps); err != nil {
		return err
	}
	if len(args) < 1 {
		fmt.Println("usage: claim <id> [note...]")
		return errUsage
	}
	id, err := parseID(args[:1], "claim <id> [note...]")
	if err != nil {
		return err
	}
	note := strings.Join(args[1:], " ")
	item, err := deps.Claims.Claim(ctx, id, note)
	if err != nil {
		return err
	}
	fmt.Println("Claim submitted.")
	printItemDetail(item)
	return nil
}

func cmdApprove(ctx context.Context, deps *bootstrap.BuildResult, args []string) error {
	if err := requireAuth(deps); err != nil {
		return err
	}
	id, err := parseID(args, "approve <id>")
	if err != nil {
		return err
	}
	item, err := deps.Claims.Approve(ctx, id)
	if err != nil {
		return err
	}
	fmt.Println("Claim approved.")
	printItemDetail(item)
	return nil
}

func cmdStatus(ctx context.Context, deps *bootstrap.BuildResult, args []string) error {
	if err := requireAuth(deps); err != nil {
		return err
	}
	if len(args) != 2 || !model.ValidStatus(args[1]) {
		fmt.Println("usage: status <id> <lost|found|claimed>")
		return errUsage
	}
	id, err := parseID(args[:1], "status <id> <lost|found|claimed>")
	if err != nil {
		return err
	}
	item, err := deps.Claims.UpdateStatus(ctx, id, args[1])
	if err != nil {
		return err
	}
	fmt.Println("Status updated.")
	printItemDetail(item)
	return nil
}

func cmdChat(ctx context.Context, deps *bootstrap.BuildResult, args []string) error {
	if err := requireAuth(deps); err != nil {
		return err
	}
	key, err := parseConversation(args, "chat <item> <user>")
	if err != nil {
		return err
	}
	msgs, err := deps.Client.Conversation(ctx, key)
	if err != nil {
		return err
	}
	self := deps.Session.Profile().ID
	if len(msgs) == 0 {
		fmt.Println("No messages yet.")
	}
	for _, m := range msgs {
		who := m.SenderUsername
		if m.Sender == self {
			who = "you"
		}
		fmt.Printf("[%s] %s: %s\n", m.Timestamp.Local().Format("Jan 2 15:04"), who, m.Body)
	}
	return nil
}

func cmdSend(ctx context.Context, deps *bootstrap.BuildResult, args []string) error {
	if err := requireAuth(deps); err != nil {
		return err
	}
	if len(args) < 3 {
		fmt.Println("usage: send <item> <user> <text...>")
		return errUsage
	}
	key, err := parseConversation(args[:2], "send <item> <user> <text...>")
	if err != nil {
		return err
	}
	body := strings.Join(args[2:], " ")
	if _, err := deps.Client.SendMessage(ctx, key, body); err != nil {
		return err
	}
	fmt.Println("Sent.")
	return nil
}

func cmdNotifications(ctx context.Context, deps *bootstrap.BuildResult, args []string) error {
	if err := requireAuth(deps); err != nil {
		return err
	}
	includeRead := len(args) == 1 && args[0] == "all"
	notifications, err := deps.Client.Notifications(ctx, includeRead)
	if err != nil {
		return err
	}
	if len(notifications) == 0 {
		fmt.Println("Nothing here.")
		return nil
	}
	for _, n := range notifications {
		marker := " "
		if !n.IsRead {
			marker = "*"
		}
		fmt.Printf("%s %s (%s)\n", marker, n.Message, n.CreatedAt.Local().Format("Jan 2 15:04"))
	}
	return nil
}

func cmdMatches(ctx context.Context, deps *bootstrap.BuildResult, args []string) error {
	if err := requireAuth(deps); err != nil {
		return err
	}
	if len(args) == 0 {
		fmt.Println("usage: matches <query> [@location]")
		return errUsage
	}
	location := ""
	if last := args[len(args)-1]; strings.HasPrefix(last, "@") {
		location = strings.TrimPrefix(last, "@")
		args = args[:len(args)-1]
	}
	query := strings.Join(args, " ")
	matches, err := deps.Client.Matches(ctx, query, location)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		fmt.Println("No candidates found.")
		return nil
	}
	for _, m := range matches {
		fmt.Printf("  %3.0f%%  #%-4d %s", m.Score*100, m.ItemID, m.Details.TitleHint)
		if m.Details.LocationHint != "" {
			fmt.Printf("  @ %s", m.Details.LocationHint)
		}
		fmt.Println()
	}
	return nil
}

func cmdAsk(ctx context.Context, deps *bootstrap.BuildResult, question string) error {
	if err := requireAuth(deps); err != nil {
		return err
	}
	question = strings.TrimSpace(question)
	if question == "" {
		fmt.Println("usage: ask <question>")
		return errUsage
	}
	reply, err := deps.Client.Assistant(ctx, question)
	if err != nil {
		return err
	}
	fmt.Println(tui.RenderMarkdown(reply, 100))
	return nil
}

func parseID(args []string, usage string) (int64, error) {
	if len(args) != 1 {
		fmt.Println("usage: " + usage)
		return 0, errUsage
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		fmt.Println("usage: " + usage)
		return 0, errUsage
	}
	return id, nil
}

func parseConversation(args []string, usage string) (model.ConversationKey, error) {
	if len(args) != 2 {
		fmt.Println("usage: " + usage)
		return model.ConversationKey{}, errUsage
	}
	key, err := model.ParseConversationKey(args[0], args[1])
	if err != nil {
		fmt.Println(err.Error())
		return model.ConversationKey{}, errUsage
	}
	return key, nil
}
