package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/chitragupt/chitragupt/pkg/identity"
	"github.com/chitragupt/chitragupt/pkg/observability"
	"github.com/chitragupt/chitragupt/pkg/purge"
	"github.com/chitragupt/chitragupt/pkg/rbac"
	"github.com/chitragupt/chitragupt/pkg/telegram"
)

// Purger abstracts the bulk deletion planner for testing
type Purger interface {
	Purge(ctx context.Context, chatID, fromID int64) (purge.Result, error)
}

// Bot owns the command handlers. It knows nothing about transport: the
// dispatcher feeds it parsed requests and it talks back through ChatAPI.
type Bot struct {
	api      ChatAPI
	store    *rbac.Store
	engine   *rbac.Engine
	workflow *Workflow
	purger   Purger
	logger   *observability.Logger
}

func NewBot(api ChatAPI, store *rbac.Store, engine *rbac.Engine, workflow *Workflow, purger Purger, logger *observability.Logger) *Bot {
	return &Bot{
		api:      api,
		store:    store,
		engine:   engine,
		workflow: workflow,
		purger:   purger,
		logger:   logger,
	}
}

// RegisterCommands installs every command into the registry
func (b *Bot) RegisterCommands(r *Registry) error {
	commands := []Command{
		{Slug: "start", Action: rbac.ActionViewHelp, Description: "introduce yourself and request access", Order: 10, Handler: b.handleStart},
		{Slug: "help", Action: rbac.ActionViewHelp, Description: "list the commands available to you", Order: 20, Handler: b.handleHelp},
		{Slug: "status", Action: rbac.ActionViewHelp, Description: "show your id, role and permissions", Order: 30, Handler: b.handleStatus},
		{Slug: "inspect", Action: rbac.ActionInspectFile, Description: "show metadata of a replied-to file", Order: 40, Handler: b.handleInspect},
		{Slug: "kick", Action: rbac.ActionKickUser, Description: "ban the sender of a replied-to message", Order: 50, Handler: b.handleKick},
		{Slug: "purge", Action: rbac.ActionPurgeChat, Description: "delete from a replied-to message to now", Order: 60, Handler: b.handlePurge},
		{Slug: "promote", Action: rbac.ActionManageUsers, Description: "set a user's role level", Order: 70, Handler: b.handlePromote},
		{Slug: "stop", Action: rbac.ActionViewHelp, Description: "say goodbye", Order: 80, Handler: b.handleStop},
		{Slug: "exit", Action: rbac.ActionViewHelp, Description: "say goodbye", Order: 81, Handler: b.handleStop},
	}
	for _, cmd := range commands {
		if err := r.Register(cmd); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) handleStart(ctx context.Context, req *Request) error {
	id := req.Principal.ID
	chatID := req.Message.Chat.ID

	if level := b.engine.Level(id); level > rbac.LevelGuest {
		text := fmt.Sprintf("Welcome back, %s. Your role is %s; send /help for your commands.",
			principalDisplay(req), b.engine.RoleName(id))
		_, err := b.api.SendMessage(ctx, chatID, text, nil)
		return err
	}

	if existing, ok := b.store.GetRequest(id); ok && !existing.Status.Terminal() {
		_, err := b.api.SendMessage(ctx, chatID, "Your request is still waiting for a decision. Hang tight.", nil)
		return err
	}

	prompts, err := b.workflow.Open(ctx, id, principalDisplay(req))
	if err != nil {
		return err
	}
	text := "Hello! I have asked the admins to let you in; you will hear back here."
	if prompts == 0 {
		text = "Hello! There is nobody around to approve you right now; try again later."
	}
	_, err = b.api.SendMessage(ctx, chatID, text, nil)
	return err
}

func (b *Bot) handleHelp(ctx context.Context, req *Request) error {
	id := req.Principal.ID
	commands := req.registry.ListFor(func(action string) bool {
		return b.engine.HasPermission(id, action)
	})

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s. Your commands:\n", b.engine.RoleName(id))
	var rows [][]telegram.InlineKeyboardButton
	for _, cmd := range commands {
		fmt.Fprintf(&sb, "/%s - %s\n", cmd.Slug, cmd.Description)
		rows = append(rows, []telegram.InlineKeyboardButton{{
			Text:         "/" + cmd.Slug,
			CallbackData: menuCallbackPrefix + cmd.Slug,
		}})
	}
	_, err := b.api.SendMessage(ctx, req.Message.Chat.ID, sb.String(), &telegram.InlineKeyboardMarkup{InlineKeyboard: rows})
	return err
}

func (b *Bot) handleStatus(ctx context.Context, req *Request) error {
	id := req.Principal.ID
	actions := b.engine.UserActions(id)
	text := fmt.Sprintf("id: %d\nrole: %s (level %d)\nallowed: %s",
		id, b.engine.RoleName(id), int(b.engine.Level(id)), strings.Join(actions, ", "))
	if req.Principal.Special {
		text += "\nacting as the chat itself"
	}
	_, err := b.api.SendMessage(ctx, req.Message.Chat.ID, text, nil)
	return err
}

func (b *Bot) handleInspect(ctx context.Context, req *Request) error {
	chatID := req.Message.Chat.ID
	target := req.Message.ReplyToMessage
	if target == nil || target.Document == nil {
		_, err := b.api.SendMessage(ctx, chatID, "Reply to a message carrying a file and try again.", nil)
		return err
	}

	doc := target.Document
	file, err := b.api.GetFile(ctx, doc.FileID)
	if err != nil {
		_, sendErr := b.api.SendMessage(ctx, chatID, "I could not fetch that file's metadata.", nil)
		if sendErr != nil {
			return sendErr
		}
		return err
	}

	text := fmt.Sprintf("name: %s\ntype: %s\nsize: %d bytes\npath: %s",
		doc.FileName, doc.MimeType, file.FileSize, file.FilePath)
	_, err = b.api.SendMessage(ctx, chatID, text, nil)
	return err
}

func (b *Bot) handleKick(ctx context.Context, req *Request) error {
	chatID := req.Message.Chat.ID
	target := req.Message.ReplyToMessage
	if target == nil {
		_, err := b.api.SendMessage(ctx, chatID, "Reply to a message from the user you want to kick.", nil)
		return err
	}
	victim, ok := identity.Resolve(target)
	if !ok || victim.Special {
		_, err := b.api.SendMessage(ctx, chatID, "I cannot kick that sender.", nil)
		return err
	}
	if b.engine.Level(victim.ID) >= b.engine.Level(req.Principal.ID) {
		_, err := b.api.SendMessage(ctx, chatID, "You cannot kick someone at or above your own level.", nil)
		return err
	}

	if err := b.api.BanChatMember(ctx, chatID, victim.ID); err != nil {
		return err
	}
	b.logger.WithFields(map[string]any{
		"chat":   chatID,
		"victim": victim.ID,
		"by":     req.Principal.ID,
	}).Info("user kicked")
	_, err := b.api.SendMessage(ctx, chatID, fmt.Sprintf("User %d is out.", victim.ID), nil)
	return err
}

func (b *Bot) handlePurge(ctx context.Context, req *Request) error {
	chatID := req.Message.Chat.ID
	target := req.Message.ReplyToMessage
	if target == nil {
		_, err := b.api.SendMessage(ctx, chatID, "Reply to the first message you want removed.", nil)
		return err
	}

	res, err := b.purger.Purge(ctx, chatID, target.MessageID)
	if err != nil {
		return err
	}
	text := fmt.Sprintf("Removed %d messages.", res.Deleted)
	if res.Failed > 0 {
		text = fmt.Sprintf("Removed %d messages; %d could not be deleted.", res.Deleted, res.Failed)
	}
	_, err = b.api.SendMessage(ctx, chatID, text, nil)
	return err
}

func (b *Bot) handlePromote(ctx context.Context, req *Request) error {
	chatID := req.Message.Chat.ID
	if len(req.Args) < 2 {
		_, err := b.api.SendMessage(ctx, chatID, "Usage: /promote <user id> <level>", nil)
		return err
	}

	targetID, err := strconv.ParseInt(req.Args[0], 10, 64)
	if err != nil {
		_, sendErr := b.api.SendMessage(ctx, chatID, fmt.Sprintf("%q is not a user id.", req.Args[0]), nil)
		return sendErr
	}
	levelNum, err := strconv.Atoi(req.Args[1])
	if err != nil {
		_, sendErr := b.api.SendMessage(ctx, chatID, fmt.Sprintf("%q is not a level.", req.Args[1]), nil)
		return sendErr
	}
	level := rbac.Level(levelNum)

	// SuperAdmin is granted through configuration, never through chat
	if level >= rbac.LevelSuperAdmin {
		_, err := b.api.SendMessage(ctx, chatID, "SuperAdmin cannot be granted from chat.", nil)
		return err
	}
	if !level.Valid() {
		_, err := b.api.SendMessage(ctx, chatID, fmt.Sprintf("Level %d is not one of the known levels.", levelNum), nil)
		return err
	}

	name := strconv.FormatInt(targetID, 10)
	if p, ok := b.store.GetPrincipal(targetID); ok {
		name = p.Name
	}
	if err := b.engine.SetUserLevel(targetID, level, name); err != nil {
		return err
	}
	_, err = b.api.SendMessage(ctx, chatID,
		fmt.Sprintf("User %d is now %s (level %d).", targetID, b.engine.RoleName(targetID), levelNum), nil)
	return err
}

func (b *Bot) handleStop(ctx context.Context, req *Request) error {
	_, err := b.api.SendMessage(ctx, req.Message.Chat.ID, "Alright, I will stay quiet. Send /start when you need me.", nil)
	return err
}

func principalDisplay(req *Request) string {
	msg := req.Message
	if msg.SenderChat != nil && msg.SenderChat.Title != "" {
		return msg.SenderChat.Title
	}
	if msg.From != nil {
		return presserName(msg.From)
	}
	return strconv.FormatInt(req.Principal.ID, 10)
}
