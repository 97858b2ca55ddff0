// Package ui is the terminal presentation layer: it renders store state and
// forwards user intents to the coordinator. No chat logic lives here.
package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/avlasenko/talkline/internal/api"
	"github.com/avlasenko/talkline/internal/chat"
	"github.com/avlasenko/talkline/internal/conversations"
	"github.com/avlasenko/talkline/internal/domain"
	"github.com/avlasenko/talkline/internal/i18n"
	"github.com/avlasenko/talkline/internal/messages"
	"github.com/avlasenko/talkline/internal/notify"
	"github.com/avlasenko/talkline/internal/session"
	"github.com/avlasenko/talkline/internal/store"
	"github.com/avlasenko/talkline/internal/theme"
)

// CLI is the interactive command loop.
type CLI struct {
	in       io.Reader
	out      io.Writer
	sessions *session.Manager
	manager  *chat.Manager
	client   *api.Client
	convos   *conversations.Store
	msgs     *messages.Store
	bridge   *notify.Bridge
	settings store.Settings
	bundle   *i18n.Bundle
}

// New creates the command loop over the given streams.
func New(in io.Reader, out io.Writer, sessions *session.Manager, manager *chat.Manager, client *api.Client,
	convos *conversations.Store, msgs *messages.Store, bridge *notify.Bridge, settings store.Settings, bundle *i18n.Bundle) *CLI {
	return &CLI{
		in:       in,
		out:      out,
		sessions: sessions,
		manager:  manager,
		client:   client,
		convos:   convos,
		msgs:     msgs,
		bridge:   bridge,
		settings: settings,
		bundle:   bundle,
	}
}

// Run processes commands until EOF, /quit, or context cancellation. Bare
// input lines are sent as messages to the selected conversation.
func (c *CLI) Run(ctx context.Context) error {
	c.printf("%s\n", c.bundle.T("app.title"))
	if sess := c.sessions.Current(); !sess.Active() {
		// The settings/login surface opens first for an anonymous user.
		c.printf("%s\n", c.bundle.T("auth.login_prompt"))
	}

	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			c.sendText(line)
			continue
		}
		if quit := c.Dispatch(ctx, line); quit {
			return nil
		}
	}
	return scanner.Err()
}

// Dispatch executes one slash command, returning true for /quit.
func (c *CLI) Dispatch(ctx context.Context, line string) bool {
	cmd, args := ParseCommand(line)
	switch cmd {
	case "quit", "exit":
		return true
	case "help":
		c.printHelp()
	case "login":
		c.login(ctx, args)
	case "register":
		c.register(ctx, args)
	case "logout":
		c.logout(ctx)
	case "list":
		c.renderConversations()
	case "open":
		c.open(ctx, args)
	case "more":
		c.more(ctx)
	case "send":
		c.sendText(strings.Join(args, " "))
	case "retry":
		c.retry(args)
	case "search":
		c.search(ctx, args)
	case "friends":
		c.friends(ctx)
	case "add":
		c.addFriend(ctx, args)
	case "requests":
		c.pendingRequests(ctx)
	case "accept":
		c.decideRequest(ctx, args, true)
	case "reject":
		c.decideRequest(ctx, args, false)
	case "chat":
		c.initiateChat(ctx, args)
	case "group":
		c.group(ctx, args)
	case "theme":
		c.setTheme(ctx, args)
	case "lang":
		c.setLocale(ctx, args)
	case "reconnect":
		if err := c.manager.Reconnect(ctx); err != nil {
			c.printf("reconnect failed: %v\n", err)
		}
	case "notify":
		c.enableNotifications()
	case "status":
		c.status()
	default:
		c.printf("unknown command: /%s (try /help)\n", cmd)
	}
	return false
}

// ParseCommand splits "/cmd a b" into the command name and arguments.
func ParseCommand(line string) (string, []string) {
	fields := strings.Fields(strings.TrimPrefix(line, "/"))
	if len(fields) == 0 {
		return "", nil
	}
	return strings.ToLower(fields[0]), fields[1:]
}

func (c *CLI) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

func (c *CLI) printHelp() {
	c.printf(`commands:
  /login <user> <password>      /register <user> <password> [nick] [email]
  /logout                       /list
  /open <n>                     /more
  /send <text> (or bare text)   /retry <message-id>
  /search <query>               /friends
  /add <user-id>                /requests  /accept <id>  /reject <id>
  /chat <user-id>               /group create <name> <member-id...>
  /group join|leave|members|fix <id>
  /theme auto|light|dark        /lang <locale>
  /reconnect                    /notify
  /status
  /quit
`)
}

func (c *CLI) login(ctx context.Context, args []string) {
	if len(args) < 2 {
		c.printf("usage: /login <username> <password>\n")
		return
	}
	err := c.sessions.Login(ctx, api.Credentials{Username: args[0], Password: args[1]})
	if err != nil {
		c.printf("%s\n", c.bundle.Tf("auth.login_failed", err.Error()))
		return
	}
	if err := c.manager.StartSession(ctx); err != nil {
		c.printf("failed to load conversations: %v\n", err)
	}
	c.printf("%s\n", c.bundle.Tf("auth.logged_in", c.sessions.Current().CurrentUser.DisplayName()))
	c.renderConversations()
}

func (c *CLI) register(ctx context.Context, args []string) {
	if len(args) < 2 {
		c.printf("usage: /register <username> <password> [nickname] [email]\n")
		return
	}
	reg := api.Registration{Username: args[0], Password: args[1]}
	if len(args) > 2 {
		reg.Nickname = args[2]
	}
	if len(args) > 3 {
		reg.Email = args[3]
	}
	user, err := c.sessions.Register(ctx, reg)
	if err != nil {
		c.printf("registration failed: %v\n", err)
		return
	}
	name := reg.Username
	if user != nil {
		name = user.DisplayName()
	}
	c.printf("%s\n", c.bundle.Tf("auth.registered", name))
}

func (c *CLI) logout(ctx context.Context) {
	c.manager.Teardown()
	c.sessions.Logout(ctx)
	c.printf("%s\n", c.bundle.T("auth.logged_out"))
}

func (c *CLI) renderConversations() {
	list := c.convos.List()
	c.printf("%s:\n", c.bundle.T("conversations.header"))
	if len(list) == 0 {
		c.printf("  %s\n", c.bundle.T("conversations.empty"))
		return
	}
	for i, conv := range list {
		marker := " "
		if sel := c.convos.Selected(); sel != nil && sel.ID == conv.ID {
			marker = "*"
		}
		when := ""
		if ts := conv.LastMessageTimestamp; ts != nil {
			when = ts.Local().Format("15:04")
		}
		c.printf("%s %2d. %-20s %s %s\n", marker, i+1, conv.Name, truncate(conv.LastMessage, 40), when)
	}
}

func (c *CLI) open(ctx context.Context, args []string) {
	if len(args) != 1 {
		c.printf("usage: /open <n>\n")
		return
	}
	n, err := strconv.Atoi(args[0])
	list := c.convos.List()
	if err != nil || n < 1 || n > len(list) {
		c.printf("no conversation %q\n", args[0])
		return
	}
	conv := list[n-1]
	if err := c.manager.OpenConversation(ctx, conv); err != nil {
		c.printf("failed to load messages: %v\n", err)
	}
	c.renderMessages(conv.ID)
}

func (c *CLI) more(ctx context.Context) {
	selected := c.convos.Selected()
	if selected == nil {
		c.printf("%s\n", c.bundle.T("chat.no_conversation"))
		return
	}
	if !c.msgs.Cursor(selected.ID).HasMore {
		c.printf("%s\n", c.bundle.T("chat.no_more_history"))
		return
	}
	if err := c.manager.LoadMore(ctx); err != nil {
		c.printf("failed to load history: %v\n", err)
		return
	}
	c.renderMessages(selected.ID)
}

func (c *CLI) renderMessages(conversationID string) {
	me := ""
	if u := c.sessions.Current().CurrentUser; u != nil {
		me = u.ID
	}
	for _, msg := range c.msgs.Messages(conversationID) {
		sender := msg.SenderID
		if sender == me {
			sender = "me"
		}
		suffix := ""
		switch msg.Status {
		case domain.StatusSending:
			suffix = " …"
		case domain.StatusFailed:
			suffix = " ✗ [" + msg.ID + "]"
		}
		c.printf("[%s] %s: %s%s\n", msg.Timestamp.Local().Format("15:04"), sender, msg.Content, suffix)
	}
}

func (c *CLI) sendText(content string) {
	if strings.TrimSpace(content) == "" {
		return
	}
	selected := c.convos.Selected()
	if selected == nil {
		c.printf("%s\n", c.bundle.T("chat.no_conversation"))
		return
	}
	if _, err := c.manager.SendText(content); err != nil {
		if err == chat.ErrSendFailed {
			c.printf("%s\n", c.bundle.T("chat.send_failed"))
			return
		}
		c.printf("send failed: %v\n", err)
	}
}

func (c *CLI) retry(args []string) {
	selected := c.convos.Selected()
	if selected == nil || len(args) != 1 {
		c.printf("usage: /retry <message-id>\n")
		return
	}
	if err := c.manager.Retry(selected.ID, args[0]); err != nil {
		c.printf("retry failed: %v\n", err)
	}
}

func (c *CLI) search(ctx context.Context, args []string) {
	query := strings.Join(args, " ")
	users, err := c.client.SearchUsers(ctx, query)
	if err != nil {
		if err == api.ErrEmptyQuery {
			c.printf("%s\n", c.bundle.T("search.empty"))
			return
		}
		c.printf("search failed: %v\n", err)
		return
	}
	for _, u := range users {
		c.printf("  %s  %s\n", u.ID, u.DisplayName())
	}
}

func (c *CLI) friends(ctx context.Context) {
	users, err := c.client.Friends(ctx)
	if err != nil {
		c.printf("failed to list friends: %v\n", err)
		return
	}
	for _, u := range users {
		online := ""
		if u.IsOnline {
			online = " (online)"
		}
		c.printf("  %s  %s%s\n", u.ID, u.DisplayName(), online)
	}
}

func (c *CLI) addFriend(ctx context.Context, args []string) {
	if len(args) != 1 {
		c.printf("usage: /add <user-id>\n")
		return
	}
	if err := c.client.SendFriendRequest(ctx, args[0]); err != nil {
		c.printf("failed to send friend request: %v\n", err)
		return
	}
	c.printf("%s\n", c.bundle.T("friends.request_sent"))
}

func (c *CLI) pendingRequests(ctx context.Context) {
	reqs, err := c.client.PendingFriendRequests(ctx)
	if err != nil {
		c.printf("failed to list friend requests: %v\n", err)
		return
	}
	if len(reqs) == 0 {
		c.printf("%s\n", c.bundle.T("friends.none_pending"))
		return
	}
	for _, r := range reqs {
		from := "?"
		if r.Sender != nil {
			from = r.Sender.DisplayName()
		}
		c.printf("  %s  from %s\n", r.ID, from)
	}
}

func (c *CLI) decideRequest(ctx context.Context, args []string, accept bool) {
	if len(args) != 1 {
		c.printf("usage: /accept|/reject <request-id>\n")
		return
	}
	var err error
	if accept {
		err = c.client.AcceptFriendRequest(ctx, args[0])
	} else {
		err = c.client.RejectFriendRequest(ctx, args[0])
	}
	if err != nil {
		c.printf("request update failed: %v\n", err)
		return
	}
	if accept {
		c.printf("%s\n", c.bundle.T("friends.request_accepted"))
	} else {
		c.printf("%s\n", c.bundle.T("friends.request_rejected"))
	}
}

func (c *CLI) initiateChat(ctx context.Context, args []string) {
	if len(args) != 1 {
		c.printf("usage: /chat <user-id>\n")
		return
	}
	conv, err := c.manager.InitiatePrivate(ctx, args[0])
	if err != nil {
		c.printf("failed to start conversation: %v\n", err)
		return
	}
	if err := c.manager.OpenConversation(ctx, *conv); err != nil {
		c.printf("failed to load messages: %v\n", err)
	}
	c.renderMessages(conv.ID)
}

func (c *CLI) group(ctx context.Context, args []string) {
	if len(args) == 0 {
		c.printf("usage: /group create <name> [member-id...] | join <id> | leave <id> | members <id> | fix <id>\n")
		return
	}
	sub, rest := args[0], args[1:]
	var err error
	switch sub {
	case "create":
		if len(rest) == 0 {
			c.printf("usage: /group create <name> <member-id...>\n")
			return
		}
		var group *api.Group
		group, err = c.client.CreateGroup(ctx, api.GroupSpec{Name: rest[0], MemberIDs: rest[1:]})
		if err == api.ErrNoMembers {
			c.printf("%s\n", c.bundle.T("groups.no_members"))
			return
		}
		if err == nil {
			c.printf("%s\n", c.bundle.Tf("groups.created", group.Name))
			c.refreshList(ctx)
		}
	case "join":
		if err = c.requireOneArg(rest, "/group join <id>"); err == nil {
			if err = c.client.JoinGroup(ctx, rest[0]); err == nil {
				c.printf("%s\n", c.bundle.T("groups.joined"))
				c.refreshList(ctx)
			}
		}
	case "leave":
		if err = c.requireOneArg(rest, "/group leave <id>"); err == nil {
			if err = c.client.LeaveGroup(ctx, rest[0]); err == nil {
				c.printf("%s\n", c.bundle.T("groups.left"))
				c.refreshList(ctx)
			}
		}
	case "members":
		if err = c.requireOneArg(rest, "/group members <id>"); err == nil {
			var members []domain.User
			if members, err = c.client.GroupMembers(ctx, rest[0]); err == nil {
				for _, u := range members {
					c.printf("  %s  %s\n", u.ID, u.DisplayName())
				}
			}
		}
	case "fix":
		if err = c.requireOneArg(rest, "/group fix <id>"); err == nil {
			if err = c.client.FixGroupParticipants(ctx, rest[0]); err == nil {
				c.refreshList(ctx)
			}
		}
	default:
		c.printf("unknown group subcommand %q\n", sub)
		return
	}
	if err != nil && err != errUsagePrinted {
		c.printf("group operation failed: %v\n", err)
	}
}

var errUsagePrinted = fmt.Errorf("usage printed")

func (c *CLI) requireOneArg(args []string, usage string) error {
	if len(args) != 1 {
		c.printf("usage: %s\n", usage)
		return errUsagePrinted
	}
	return nil
}

func (c *CLI) refreshList(ctx context.Context) {
	sess := c.sessions.Current()
	if !sess.Active() {
		return
	}
	if err := c.convos.Refresh(ctx, sess.CurrentUser.ID); err != nil {
		c.printf("failed to refresh conversations: %v\n", err)
	}
}

func (c *CLI) setTheme(ctx context.Context, args []string) {
	if len(args) != 1 {
		c.printf("usage: /theme auto|light|dark\n")
		return
	}
	pref, err := theme.ParsePreference(args[0])
	if err != nil {
		c.printf("%v\n", err)
		return
	}
	if err := c.settings.SetThemePreference(ctx, pref); err != nil {
		c.printf("failed to save theme: %v\n", err)
		return
	}
	c.printf("%s\n", c.bundle.Tf("settings.theme_set", pref))
}

func (c *CLI) setLocale(ctx context.Context, args []string) {
	if len(args) != 1 {
		c.printf("usage: /lang <locale> (available: %s)\n", strings.Join(i18n.Available(), ", "))
		return
	}
	locale := i18n.Normalize(args[0])
	if err := c.bundle.SetLocale(locale); err != nil {
		c.printf("unknown locale %q (available: %s)\n", args[0], strings.Join(i18n.Available(), ", "))
		return
	}
	if err := c.settings.SetLocale(ctx, locale); err != nil {
		c.printf("failed to save locale: %v\n", err)
		return
	}
	c.printf("%s\n", c.bundle.Tf("settings.locale_set", locale))
}

func (c *CLI) enableNotifications() {
	if c.bridge.RequestPermission() {
		c.printf("%s\n", c.bundle.T("notify.enabled"))
		return
	}
	c.printf("%s\n", c.bundle.T("notify.denied"))
}

func (c *CLI) status() {
	sess := c.sessions.Current()
	if sess.Active() {
		c.printf("logged in as %s\n", sess.CurrentUser.DisplayName())
	} else {
		c.printf("not logged in\n")
	}
	if c.manager == nil {
		return
	}
	c.printf("connection: %s\n", c.manager.ChannelState())
	for _, e := range c.manager.RecentEvents() {
		c.printf("  %s  %s\n", e.At.Local().Format("15:04:05"), e.Text)
	}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
